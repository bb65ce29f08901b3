package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/store"
)

type TaskResponse struct {
	TaskID          string                 `json:"task_id"`
	WorkloadID      string                 `json:"workload_id"`
	Op              string                 `json:"op"`
	Status          string                 `json:"status"`
	CreatedAt       string                 `json:"created_at"`
	StartedAt       string                 `json:"started_at,omitempty"`
	EndedAt         string                 `json:"ended_at,omitempty"`
	Attempt         int                    `json:"attempt"`
	MaxAttempts     int                    `json:"max_attempts"`
	NextRunAt       string                 `json:"next_run_at"`
	TimeoutSeconds  int                    `json:"timeout_seconds"`
	CancelRequested bool                   `json:"cancel_requested"`
	Params          map[string]interface{} `json:"params"`
	Error           map[string]interface{} `json:"error,omitempty"`
}

// ListTasks lists tasks, optionally filtered by workload.
func (a *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)

	tasks, err := a.queries.ListTasks(ctx, store.ListTasksParams{
		WorkloadID: r.URL.Query().Get("workload_id"),
		Limit:      int32(limit),
	})
	if err != nil {
		a.log.Error("list tasks failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list tasks"))
		return
	}

	resp := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = taskToResponse(t)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tasks": resp})
}

// GetTask gets a single task by ID.
func (a *API) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := a.queries.GetTask(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "task not found"))
		return
	}
	WriteJSON(w, http.StatusOK, taskToResponse(task))
}

// CancelTask requests cancellation. Terminal tasks are returned as-is;
// the worker honors the flag at its next look at the task.
func (a *API) CancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "task_id")

	task, err := a.queries.GetTask(ctx, taskID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "task not found"))
		return
	}
	if task.IsTerminal() {
		WriteJSON(w, http.StatusOK, taskToResponse(task))
		return
	}

	if err := a.queries.CancelTask(ctx, taskID); err != nil {
		a.log.Error("cancel task failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to cancel task"))
		return
	}
	task.CancelRequested = true

	_ = a.writeAudit(ctx, task.WorkloadID, "task.cancel", &taskID, nil)
	WriteJSON(w, http.StatusOK, taskToResponse(task))
}

func taskToResponse(t core.Task) TaskResponse {
	var params, errMsg map[string]interface{}
	json.Unmarshal(t.Params, &params)
	if t.Error != nil {
		json.Unmarshal(t.Error, &errMsg)
	}

	resp := TaskResponse{
		TaskID:          t.TaskID,
		WorkloadID:      t.WorkloadID,
		Op:              string(t.Op),
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		Attempt:         t.Attempt,
		MaxAttempts:     t.MaxAttempts,
		NextRunAt:       t.NextRunAt.Format(time.RFC3339),
		TimeoutSeconds:  t.TimeoutSeconds,
		CancelRequested: t.CancelRequested,
		Params:          params,
		Error:           errMsg,
	}
	if t.StartedAt != nil {
		resp.StartedAt = t.StartedAt.Format(time.RFC3339)
	}
	if t.EndedAt != nil {
		resp.EndedAt = t.EndedAt.Format(time.RFC3339)
	}
	return resp
}
