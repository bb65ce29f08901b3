package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/store"
)

type ExecutionResponse struct {
	ID         string `json:"id"`
	WorkloadID string `json:"workload_id"`
	SessionID  string `json:"session_id,omitempty"`
	Command    string `json:"command"`
	Kind       string `json:"kind"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type LogLineResponse struct {
	LineNumber int    `json:"line_number"`
	Stream     string `json:"stream"`
	Content    string `json:"content"`
}

// ListExecutions lists a workload's command executions, newest first.
func (a *API) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)

	execs, err := a.queries.ListExecutions(ctx, store.ListExecutionsParams{
		WorkloadID: wl.ID,
		Limit:      int32(limit),
	})
	if err != nil {
		a.log.Error("list executions failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list executions"))
		return
	}

	resp := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		resp[i] = executionToResponse(e)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"executions": resp})
}

// ListExecutionLogs returns the full ordered log of one execution.
// This is the replay path; live output goes over the tail websocket.
func (a *API) ListExecutionLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	executionID := chi.URLParam(r, "execution_id")

	if _, err := a.queries.GetExecution(ctx, executionID); err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "execution not found"))
		return
	}

	logs, err := a.queries.ListLogs(ctx, executionID)
	if err != nil {
		a.log.Error("list logs failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list logs"))
		return
	}

	resp := make([]LogLineResponse, len(logs))
	for i, l := range logs {
		resp[i] = LogLineResponse{LineNumber: l.LineNumber, Stream: string(l.Stream), Content: l.Content}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"lines":        resp,
	})
}

// TailLogs upgrades to a websocket streaming live log lines for the
// workload.
func (a *API) TailLogs(w http.ResponseWriter, r *http.Request) {
	wl, err := a.resolveWorkload(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	a.broker.ServeTail(w, r, wl.ID, a.log)
}

func executionToResponse(e core.CommandExecution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:         e.ID,
		WorkloadID: e.WorkloadID,
		Command:    e.Command,
		Kind:       string(e.Kind),
		ExitCode:   e.ExitCode,
		StartedAt:  e.StartedAt.Format(time.RFC3339),
	}
	if e.SessionID != nil {
		resp.SessionID = *e.SessionID
	}
	if e.FinishedAt != nil {
		resp.FinishedAt = e.FinishedAt.Format(time.RFC3339)
	}
	return resp
}
