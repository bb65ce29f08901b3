package logstream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API sits behind the operator's own ingress; origin policy is
	// enforced there.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wireLine is the JSON frame sent to tail clients.
type wireLine struct {
	ExecutionID string `json:"execution_id"`
	LineNumber  int    `json:"line_number"`
	Stream      string `json:"stream"`
	Content     string `json:"content"`
}

// ServeTail upgrades the request to a websocket and streams live log
// lines for one workload until the client disconnects. Replay of lines
// persisted before the subscription is the HTTP list endpoint's job.
func (b *Broker) ServeTail(w http.ResponseWriter, r *http.Request, workloadID string, log *zap.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	lines, cancel := b.Subscribe(workloadID)
	defer cancel()

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				// Evicted for falling behind.
				deadline := time.Now().Add(writeWait)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"),
					deadline)
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(toWire(line)); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func toWire(l core.CommandLog) wireLine {
	return wireLine{
		ExecutionID: l.ExecutionID,
		LineNumber:  l.LineNumber,
		Stream:      string(l.Stream),
		Content:     l.Content,
	}
}
