package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/store"
)

type CreateWorkloadRequest struct {
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
	RepoURL  string `json:"repo_url"`
	Branch   string `json:"branch"`
}

type WorkloadResponse struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Exposed   bool   `json:"exposed"`
	Provider  string `json:"provider"`
	RepoURL   string `json:"repo_url"`
	Branch    string `json:"branch"`
	ServerIP  string `json:"server_ip,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListWorkloads lists workloads, newest first.
func (a *API) ListWorkloads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)

	workloads, err := a.queries.ListWorkloads(ctx, store.ListWorkloadsParams{Limit: int32(limit)})
	if err != nil {
		a.log.Error("list workloads failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list workloads"))
		return
	}

	resp := make([]WorkloadResponse, len(workloads))
	for i, wl := range workloads {
		resp[i] = workloadToResponse(wl)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"workloads": resp})
}

// GetWorkload gets a single workload by id or slug.
func (a *API) GetWorkload(w http.ResponseWriter, r *http.Request) {
	wl, err := a.resolveWorkload(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, workloadToResponse(wl))
}

// CreateWorkload registers a workload and enqueues its provisioning.
// The slug is generated here and is stable for the workload's life.
func (a *API) CreateWorkload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateWorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.RepoURL == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "repo_url is required"))
		return
	}
	kind := core.WorkloadKind(req.Kind)
	if kind == "" {
		kind = core.KindSandbox
	}
	if kind != core.KindSandbox && kind != core.KindRelease {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "kind must be sandbox or release"))
		return
	}
	if !a.knownProvider(req.Provider) {
		WriteError(w, core.NewAppError(core.ErrUnknownProvider, "unknown provider "+req.Provider))
		return
	}

	wl, err := a.queries.CreateWorkload(ctx, store.CreateWorkloadParams{
		ID:       core.NewID(),
		Slug:     core.NewSlug(),
		Kind:     kind,
		Provider: req.Provider,
		RepoURL:  req.RepoURL,
		Branch:   req.Branch,
	})
	if err != nil {
		a.log.Error("create workload failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create workload"))
		return
	}

	taskID, err := a.enqueue(ctx, wl.ID, core.OpProvision, nil, 600)
	if err != nil {
		WriteError(w, err)
		return
	}

	_ = a.writeAudit(ctx, wl.ID, "workload.create", &taskID, req)

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"workload":    workloadToResponse(wl),
		"task_id":     taskID,
		"status_href": "/v1/tasks/" + taskID,
	})
}

// DestroyWorkload enqueues teardown of a workload.
func (a *API) DestroyWorkload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if wl.State.IsTerminal() {
		WriteJSON(w, http.StatusOK, workloadToResponse(wl))
		return
	}

	count, _ := a.queries.CountActiveTasks(ctx, wl.ID)
	if count > 0 {
		WriteError(w, core.NewAppError(core.ErrConflict, "workload has active tasks"))
		return
	}

	taskID, err := a.enqueue(ctx, wl.ID, core.OpDeprovision, nil, 600)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.destroy", &taskID, nil)
	WriteAccepted(w, taskID)
}

// RetryProvision re-enqueues provisioning for a workload stuck in
// PROVISIONING. This is the only way a stuck provision moves again;
// nothing sweeps them automatically.
func (a *API) RetryProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if wl.State != core.WorkloadProvisioning && wl.State != core.WorkloadPending {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not provisioning"))
		return
	}

	count, _ := a.queries.CountActiveTasks(ctx, wl.ID)
	if count > 0 {
		WriteError(w, core.NewAppError(core.ErrConflict, "a provision task is already queued"))
		return
	}

	taskID, err := a.enqueue(ctx, wl.ID, core.OpProvision, nil, 600)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.retry_provision", &taskID, nil)
	WriteAccepted(w, taskID)
}

// Redeploy enqueues a rebuild and rollout for a deployed release.
func (a *API) Redeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if wl.Kind != core.KindRelease || wl.State != core.WorkloadDeployed {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "only deployed releases can be redeployed"))
		return
	}

	taskID, err := a.enqueue(ctx, wl.ID, core.OpRedeploy, nil, 900)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.redeploy", &taskID, nil)
	WriteAccepted(w, taskID)
}

type SetExposureRequest struct {
	Exposed *bool `json:"exposed"`
}

// SetExposure toggles public exposure synchronously.
func (a *API) SetExposure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req SetExposureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Exposed == nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "body must carry an exposed boolean"))
		return
	}

	updated, err := a.lifecycle.SetExposed(ctx, wl.ID, *req.Exposed)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.exposure", nil, req)
	WriteJSON(w, http.StatusOK, workloadToResponse(updated))
}

// ListOrphans sweeps the configured providers for resources that
// outlived their workload.
func (a *API) ListOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := a.lifecycle.DetectOrphans(r.Context())
	if err != nil {
		a.log.Error("orphan sweep failed", zap.Error(err))
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"orphans": orphans})
}

func (a *API) enqueue(ctx context.Context, workloadID string, op core.TaskOp, params json.RawMessage, timeoutSeconds int) (string, error) {
	taskID := core.NewID()
	_, err := a.queries.CreateTask(ctx, store.CreateTaskParams{
		TaskID:         taskID,
		WorkloadID:     workloadID,
		Op:             op,
		Params:         params,
		MaxAttempts:    5,
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		a.log.Error("create task failed", zap.Error(err), zap.String("op", string(op)))
		return "", core.NewAppError(core.ErrInternal, "failed to create task")
	}
	return taskID, nil
}

func (a *API) knownProvider(key string) bool {
	for _, p := range a.providers {
		if p == key {
			return true
		}
	}
	return false
}

func workloadToResponse(wl core.Workload) WorkloadResponse {
	return WorkloadResponse{
		ID:        wl.ID,
		Slug:      wl.Slug,
		Kind:      string(wl.Kind),
		State:     string(wl.State),
		Exposed:   wl.Exposed,
		Provider:  wl.Provider,
		RepoURL:   wl.RepoURL,
		Branch:    wl.Branch,
		ServerIP:  wl.ServerIP,
		CreatedAt: wl.CreatedAt.Format(time.RFC3339),
		UpdatedAt: wl.UpdatedAt.Format(time.RFC3339),
	}
}
