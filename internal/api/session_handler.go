package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/store"
)

type SessionResponse struct {
	ID          string `json:"id"`
	WorkloadID  string `json:"workload_id"`
	SessionUUID string `json:"session_uuid"`
	Diff        string `json:"diff,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// CreateSession opens a new agent session on the workload. The
// session UUID is fixed at creation; the first successful turn starts
// the conversation under it.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if !wl.State.IsUp() {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not running"))
		return
	}

	sess, err := a.queries.CreateSession(ctx, store.CreateSessionParams{
		ID:          core.NewID(),
		WorkloadID:  wl.ID,
		SessionUUID: uuid.New().String(),
	})
	if err != nil {
		a.log.Error("create session failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create session"))
		return
	}

	_ = a.writeAudit(ctx, wl.ID, "session.create", nil, map[string]string{"session_id": sess.ID})
	WriteJSON(w, http.StatusCreated, sessionToResponse(sess))
}

// ListSessions lists a workload's sessions, newest first.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}

	sessions, err := a.queries.ListSessions(ctx, wl.ID)
	if err != nil {
		a.log.Error("list sessions failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list sessions"))
		return
	}

	resp := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionToResponse(s)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// GetSession returns one session including its captured diff.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.queries.GetSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "session not found"))
		return
	}
	WriteJSON(w, http.StatusOK, sessionToResponse(sess))
}

type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// Prompt enqueues one agent turn against the session.
func (a *API) Prompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := a.queries.GetSession(ctx, chi.URLParam(r, "session_id"))
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "session not found"))
		return
	}

	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "prompt is required"))
		return
	}

	wl, err := a.queries.GetWorkload(ctx, sess.WorkloadID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "workload not found"))
		return
	}
	if !wl.State.IsUp() {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not running"))
		return
	}

	params, _ := json.Marshal(map[string]string{
		"session_id": sess.ID,
		"prompt":     req.Prompt,
	})
	taskID, err := a.enqueue(ctx, wl.ID, core.OpPrompt, params, 1800)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "session.prompt", &taskID, map[string]string{"session_id": sess.ID})
	WriteAccepted(w, taskID)
}

func sessionToResponse(s core.Session) SessionResponse {
	resp := SessionResponse{
		ID:          s.ID,
		WorkloadID:  s.WorkloadID,
		SessionUUID: s.SessionUUID,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
	if s.Diff != nil {
		resp.Diff = *s.Diff
	}
	return resp
}
