package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
)

type DatabaseRef struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RunSQLRequest struct {
	Statement string      `json:"statement"`
	Database  DatabaseRef `json:"database"`
}

type DumpDatabaseRequest struct {
	Database DatabaseRef `json:"database"`
}

type RestoreDatabaseRequest struct {
	DumpPath string      `json:"dump_path"`
	Database DatabaseRef `json:"database"`
}

func (d DatabaseRef) validate() error {
	switch remoteexec.DatabaseType(d.Type) {
	case remoteexec.DBPostgres, remoteexec.DBMySQL:
	default:
		return core.NewAppError(core.ErrConfiguration, "database type must be postgres or mysql")
	}
	if d.Name == "" || d.User == "" {
		return core.NewAppError(core.ErrConfiguration, "database name and user are required")
	}
	return nil
}

// RunSQL enqueues a one-shot statement against the workload's
// self-hosted database. Output lands in the execution log.
func (a *API) RunSQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req RunSQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Statement == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "body must carry a statement"))
		return
	}
	if err := req.Database.validate(); err != nil {
		WriteError(w, err)
		return
	}
	if !wl.State.IsUp() {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not running"))
		return
	}

	params, _ := json.Marshal(req)
	taskID, err := a.enqueue(ctx, wl.ID, core.OpSQL, params, 300)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.sql", &taskID, nil)
	WriteAccepted(w, taskID)
}

// DumpDatabase enqueues a full logical dump, streamed through the
// ordered log pipeline.
func (a *API) DumpDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req DumpDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if err := req.Database.validate(); err != nil {
		WriteError(w, err)
		return
	}
	if !wl.State.IsUp() {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not running"))
		return
	}

	params, _ := json.Marshal(req)
	taskID, err := a.enqueue(ctx, wl.ID, core.OpDump, params, 1800)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.db_dump", &taskID, nil)
	WriteAccepted(w, taskID)
}

// RestoreDatabase feeds a dump file already on the host back into the
// database.
func (a *API) RestoreDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, err := a.resolveWorkload(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var req RestoreDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DumpPath == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "body must carry a dump_path"))
		return
	}
	if err := req.Database.validate(); err != nil {
		WriteError(w, err)
		return
	}
	if !wl.State.IsUp() {
		WriteError(w, core.NewAppError(core.ErrInvalidState, "workload is not running"))
		return
	}

	params, _ := json.Marshal(req)
	taskID, err := a.enqueue(ctx, wl.ID, core.OpRestore, params, 1800)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = a.writeAudit(ctx, wl.ID, "workload.db_restore", &taskID, nil)
	WriteAccepted(w, taskID)
}
