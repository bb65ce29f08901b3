package api

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/api/middleware"
	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/logstream"
	"github.com/hatchery-io/hatchery/internal/orchestrator"
	"github.com/hatchery-io/hatchery/internal/store"
)

// Lifecycle is the synchronous slice of the orchestrator the API
// calls directly. Everything else goes through the task queue.
type Lifecycle interface {
	SetExposed(ctx context.Context, workloadID string, desired bool) (core.Workload, error)
	DetectOrphans(ctx context.Context) ([]orchestrator.Orphan, error)
}

type API struct {
	pool      *pgxpool.Pool
	queries   *store.Queries
	lifecycle Lifecycle
	broker    *logstream.Broker
	providers []string
	log       *zap.Logger
}

func NewAPI(pool *pgxpool.Pool, lifecycle Lifecycle, broker *logstream.Broker, providers []string, log *zap.Logger) *API {
	return &API{
		pool:      pool,
		queries:   store.New(pool),
		lifecycle: lifecycle,
		broker:    broker,
		providers: providers,
		log:       log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Workloads
		r.Get("/workloads", a.ListWorkloads)
		r.Post("/workloads", a.CreateWorkload)
		r.Get("/workloads/{ref}", a.GetWorkload)
		r.Delete("/workloads/{ref}", a.DestroyWorkload)
		r.Post("/workloads/{ref}/retry-provision", a.RetryProvision)
		r.Post("/workloads/{ref}/redeploy", a.Redeploy)
		r.Post("/workloads/{ref}/exposure", a.SetExposure)
		r.Post("/workloads/{ref}/db/sql", a.RunSQL)
		r.Post("/workloads/{ref}/db/dump", a.DumpDatabase)
		r.Post("/workloads/{ref}/db/restore", a.RestoreDatabase)

		// Executions and logs
		r.Get("/workloads/{ref}/executions", a.ListExecutions)
		r.Get("/executions/{execution_id}/logs", a.ListExecutionLogs)
		r.Get("/workloads/{ref}/logs/tail", a.TailLogs)

		// Sessions
		r.Post("/workloads/{ref}/sessions", a.CreateSession)
		r.Get("/workloads/{ref}/sessions", a.ListSessions)
		r.Get("/sessions/{session_id}", a.GetSession)
		r.Post("/sessions/{session_id}/prompt", a.Prompt)

		// Tasks
		r.Get("/tasks", a.ListTasks)
		r.Get("/tasks/{task_id}", a.GetTask)
		r.Post("/tasks/{task_id}:cancel", a.CancelTask)

		// Operations
		r.Get("/orphans", a.ListOrphans)
	})

	return r
}

// resolveWorkload accepts either a workload id or its slug, so
// operators can use the short name they see on the provider.
func (a *API) resolveWorkload(ctx context.Context, ref string) (core.Workload, error) {
	w, err := a.queries.GetWorkload(ctx, ref)
	if err == nil {
		return w, nil
	}
	w, err = a.queries.GetWorkloadBySlug(ctx, ref)
	if err != nil {
		return w, core.NewAppError(core.ErrNotFound, "workload not found")
	}
	return w, nil
}

// writeAudit writes an audit log entry.
func (a *API) writeAudit(ctx context.Context, workloadID, action string, taskID *string, payload interface{}) error {
	var taskIDVal pgtype.Text
	if taskID != nil {
		taskIDVal = pgtype.Text{String: *taskID, Valid: true}
	}

	payloadBytes, _ := json.Marshal(payload)
	actor, _ := json.Marshal(map[string]string{"source": "api"})

	_, err := a.queries.InsertAudit(ctx, store.InsertAuditParams{
		WorkloadID: pgtype.Text{String: workloadID, Valid: true},
		Actor:      actor,
		Action:     action,
		TaskID:     taskIDVal,
		Payload:    payloadBytes,
	})
	return err
}

func parseLimit(s string, defaultVal, maxVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultVal
	}
	if n > maxVal {
		return maxVal
	}
	return n
}
