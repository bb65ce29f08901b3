package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
)

func (w *Worker) dispatch(ctx context.Context, task *core.Task, log *zap.Logger) {
	start := time.Now()
	defer func() {
		observability.TaskDuration.WithLabelValues(string(task.Op)).Observe(time.Since(start).Seconds())
	}()

	opCtx := ctx
	if task.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var err error
	switch task.Op {
	case core.OpProvision:
		err = w.orch.Provision(opCtx, task.WorkloadID)
	case core.OpDeprovision:
		err = w.orch.Deprovision(opCtx, task.WorkloadID)
	case core.OpRedeploy:
		err = w.orch.Redeploy(opCtx, task.WorkloadID)
	case core.OpPrompt:
		err = w.runPrompt(opCtx, task)
	case core.OpSQL:
		err = w.runDB(opCtx, task, core.ExecKindSQL)
	case core.OpDump:
		err = w.runDB(opCtx, task, core.ExecKindDump)
	case core.OpRestore:
		err = w.runDB(opCtx, task, core.ExecKindRestore)
	default:
		err = fmt.Errorf("unknown op: %s", task.Op)
	}

	if err != nil {
		w.failTask(ctx, task, err, log)
		return
	}

	_ = w.queue.CompleteTask(ctx, store.CompleteTaskParams{
		TaskID: task.TaskID,
		Status: core.TaskSucceeded,
	})
	observability.TaskTotal.WithLabelValues(string(task.Op), string(core.TaskSucceeded)).Inc()
	log.Info("task succeeded")
}

type promptParams struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func (w *Worker) runPrompt(ctx context.Context, task *core.Task) error {
	var params promptParams
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return fmt.Errorf("prompt params: %w", err)
	}
	if params.SessionID == "" || params.Prompt == "" {
		return fmt.Errorf("prompt task requires session_id and prompt")
	}

	sess, err := w.queue.GetSession(ctx, params.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	wl, err := w.queue.GetWorkload(ctx, task.WorkloadID)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}
	if !wl.State.IsUp() {
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s is %s; prompts need a running workload", wl.Slug, wl.State))
	}

	target := remoteexec.Target{
		Host:          wl.ServerIP,
		User:          w.sshUser,
		PrivateKeyPEM: wl.SSHPrivateKey,
	}
	exec, err := w.runner.Run(ctx, target, sess, params.Prompt)
	if err != nil {
		return err
	}
	if exec.Failed() {
		// The nonzero exit is already recorded on the execution.
		// Retrying would replay the same prompt as a duplicate turn,
		// so the task completes either way.
		w.log.Warn("agent turn failed",
			zap.String("session_id", sess.ID),
			zap.Int("exit_code", *exec.ExitCode))
	}
	return nil
}

type dbParams struct {
	Statement string `json:"statement,omitempty"`
	DumpPath  string `json:"dump_path,omitempty"`
	Database  struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		User     string `json:"user"`
		Password string `json:"password"`
	} `json:"database"`
}

// runDB executes a database convenience command on the workload host.
// The statement and credentials travel in the task params; output lands
// in the ordered execution log like any other remote command.
func (w *Worker) runDB(ctx context.Context, task *core.Task, kind core.ExecutionKind) error {
	var params dbParams
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return fmt.Errorf("db params: %w", err)
	}

	db := remoteexec.DatabaseConfig{
		Type:     remoteexec.DatabaseType(params.Database.Type),
		Name:     params.Database.Name,
		User:     params.Database.User,
		Password: params.Database.Password,
	}

	var command string
	var err error
	switch kind {
	case core.ExecKindSQL:
		if params.Statement == "" {
			return fmt.Errorf("sql task requires a statement")
		}
		command, err = remoteexec.SQLCommand(db, params.Statement)
	case core.ExecKindDump:
		command, err = remoteexec.DumpCommand(db)
	case core.ExecKindRestore:
		if params.DumpPath == "" {
			return fmt.Errorf("restore task requires a dump_path")
		}
		command, err = remoteexec.RestoreCommand(db, params.DumpPath)
	default:
		return fmt.Errorf("unknown db execution kind: %s", kind)
	}
	if err != nil {
		return err
	}

	wl, err := w.queue.GetWorkload(ctx, task.WorkloadID)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}
	if !wl.State.IsUp() {
		return core.NewAppError(core.ErrInvalidState,
			fmt.Sprintf("workload %s is %s; database commands need a running workload", wl.Slug, wl.State))
	}
	if !w.orch.SupportsSelfHostedDatabase(wl.Provider) {
		return core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("provider %s does not host workload databases", wl.Provider))
	}

	target := remoteexec.Target{
		Host:          wl.ServerIP,
		User:          w.sshUser,
		PrivateKeyPEM: wl.SSHPrivateKey,
	}
	exec, err := w.exec.Exec(ctx, target, command, remoteexec.ExecOpts{
		WorkloadID: wl.ID,
		Kind:       kind,
	})
	if err != nil {
		return err
	}
	if exec.Failed() {
		return fmt.Errorf("database command exited %d", *exec.ExitCode)
	}
	return nil
}

func (w *Worker) failTask(ctx context.Context, task *core.Task, taskErr error, log *zap.Logger) {
	errJSON, _ := json.Marshal(map[string]string{"error": taskErr.Error()})

	if task.Attempt >= task.MaxAttempts {
		_ = w.queue.MarkTaskDead(ctx, store.MarkTaskDeadParams{TaskID: task.TaskID, Error: errJSON})
		observability.TaskTotal.WithLabelValues(string(task.Op), string(core.TaskDead)).Inc()
		log.Error("task dead", zap.Error(taskErr))
		return
	}

	backoff := w.cfg.RetryBackoff * time.Duration(task.Attempt)
	_ = w.queue.FailTask(ctx, store.FailTaskParams{
		TaskID:  task.TaskID,
		Error:   errJSON,
		Backoff: backoff,
	})
	observability.TaskTotal.WithLabelValues(string(task.Op), string(core.TaskFailed)).Inc()
	observability.TaskRetryTotal.WithLabelValues(string(task.Op)).Inc()
	log.Warn("task failed, will retry", zap.Error(taskErr), zap.Int("attempt", task.Attempt))
}
