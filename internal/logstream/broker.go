// Package logstream fans persisted log lines out to live subscribers.
// Delivery is best-effort: the database is the source of truth and a
// slow subscriber is dropped rather than allowed to stall the writer.
package logstream

import (
	"sync"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
)

const subscriberBuffer = 256

type subscriber struct {
	ch chan core.CommandLog
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[*subscriber]struct{}{}}
}

// Subscribe returns a channel of lines for a workload and a cancel
// function. The channel is closed on cancel or when the subscriber
// falls too far behind.
func (b *Broker) Subscribe(workloadID string) (<-chan core.CommandLog, func()) {
	s := &subscriber{ch: make(chan core.CommandLog, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[workloadID] == nil {
		b.subs[workloadID] = map[*subscriber]struct{}{}
	}
	b.subs[workloadID][s] = struct{}{}
	b.mu.Unlock()
	observability.LogSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if b.remove(workloadID, s) {
				observability.LogSubscribers.Dec()
			}
		})
	}
	return s.ch, cancel
}

// Publish delivers one line to every current subscriber of the
// workload. Subscribers whose buffer is full are evicted.
func (b *Broker) Publish(workloadID string, line core.CommandLog) {
	b.mu.Lock()
	var evict []*subscriber
	for s := range b.subs[workloadID] {
		select {
		case s.ch <- line:
		default:
			evict = append(evict, s)
		}
	}
	for _, s := range evict {
		delete(b.subs[workloadID], s)
		close(s.ch)
	}
	if len(b.subs[workloadID]) == 0 {
		delete(b.subs, workloadID)
	}
	b.mu.Unlock()
	for range evict {
		observability.LogSubscribers.Dec()
	}
}

func (b *Broker) remove(workloadID string, s *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[workloadID]
	if !ok {
		return false
	}
	if _, live := set[s]; !live {
		return false
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(b.subs, workloadID)
	}
	return true
}
