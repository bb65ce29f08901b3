// Package worker polls the task queue and drives the orchestrator.
// Delivery is at-least-once; the orchestrator's idempotent operations
// absorb duplicate deliveries.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
)

// Queue is the task and lookup surface the worker needs from the
// store.
type Queue interface {
	DequeueTask(ctx context.Context) (core.Task, error)
	CompleteTask(ctx context.Context, p store.CompleteTaskParams) error
	FailTask(ctx context.Context, p store.FailTaskParams) error
	MarkTaskDead(ctx context.Context, p store.MarkTaskDeadParams) error
	GetQueueDepth(ctx context.Context) (int64, error)
	GetWorkload(ctx context.Context, id string) (core.Workload, error)
	GetSession(ctx context.Context, id string) (core.Session, error)
}

// Orchestrator is the lifecycle surface tasks dispatch into.
type Orchestrator interface {
	Provision(ctx context.Context, workloadID string) error
	Deprovision(ctx context.Context, workloadID string) error
	Redeploy(ctx context.Context, workloadID string) error
	SupportsSelfHostedDatabase(providerKey string) bool
}

// PromptRunner runs one agent turn; *session.Runner satisfies it.
type PromptRunner interface {
	Run(ctx context.Context, target remoteexec.Target, sess core.Session, prompt string) (*core.CommandExecution, error)
}

// Executor runs one remote command; *remoteexec.Engine satisfies it.
// Database tasks go through it directly instead of the orchestrator.
type Executor interface {
	Exec(ctx context.Context, target remoteexec.Target, command string, opts remoteexec.ExecOpts) (*core.CommandExecution, error)
}

type Worker struct {
	queue   Queue
	orch    Orchestrator
	runner  PromptRunner
	exec    Executor
	sshUser string
	cfg     Config
	log     *zap.Logger
}

func New(queue Queue, orch Orchestrator, runner PromptRunner, exec Executor, cfg Config, log *zap.Logger) *Worker {
	return &Worker{
		queue:   queue,
		orch:    orch,
		runner:  runner,
		exec:    exec,
		sshUser: remoteexec.DefaultUser,
		cfg:     cfg,
		log:     log,
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return
		default:
		}

		task, err := w.queue.DequeueTask(ctx)
		if err != nil {
			// No task available
			observability.DequeueEmptyTotal.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdleBackoff):
				continue
			}
		}

		log := observability.TaskLogger(w.log, task.TaskID, task.WorkloadID, string(task.Op)).
			With(zap.Int("attempt", task.Attempt))
		log.Info("task dequeued")

		if task.CancelRequested {
			errJSON, _ := json.Marshal(map[string]string{"error": "canceled"})
			_ = w.queue.CompleteTask(ctx, store.CompleteTaskParams{
				TaskID: task.TaskID,
				Status: core.TaskCanceled,
				Error:  errJSON,
			})
			log.Info("task canceled")
			continue
		}

		w.dispatch(ctx, &task, log)

		if depth, err := w.queue.GetQueueDepth(ctx); err == nil {
			observability.TaskQueueDepth.Set(float64(depth))
		}
	}
}
