package store

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hatchery-io/hatchery/internal/core"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hatchery"),
		postgres.WithUsername("hatchery"),
		postgres.WithPassword("hatchery_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := NewPool(ctx, connStr, 4)
	if err != nil {
		t.Fatalf("failed to connect: %s", err)
	}
	defer pool.Close()

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("failed to apply schema: %s", err)
	}

	queries := New(pool)
	workloadID := core.NewID()

	t.Run("CreateWorkload", func(t *testing.T) {
		w, err := queries.CreateWorkload(ctx, CreateWorkloadParams{
			ID:       workloadID,
			Slug:     "a1b2c3",
			Kind:     core.KindSandbox,
			Provider: "hetzner",
			RepoURL:  "https://example.com/repo.git",
			Branch:   "main",
		})
		if err != nil {
			t.Fatalf("failed to create workload: %s", err)
		}
		if w.State != core.WorkloadPending {
			t.Errorf("expected state PENDING, got %s", w.State)
		}
		if w.Exposed {
			t.Error("new workload must not be exposed")
		}
	})

	t.Run("SlugUnique", func(t *testing.T) {
		_, err := queries.CreateWorkload(ctx, CreateWorkloadParams{
			ID:       core.NewID(),
			Slug:     "a1b2c3",
			Kind:     core.KindSandbox,
			Provider: "hetzner",
			RepoURL:  "https://example.com/other.git",
			Branch:   "main",
		})
		if err == nil {
			t.Fatal("expected unique violation on duplicate slug")
		}
	})

	t.Run("KeysWrittenOnce", func(t *testing.T) {
		err := queries.SetWorkloadKeys(ctx, SetWorkloadKeysParams{
			ID: workloadID, PublicKey: "pub-1", PrivateKey: "priv-1",
		})
		if err != nil {
			t.Fatalf("failed to set keys: %s", err)
		}
		// second write is a no-op while keys are present
		err = queries.SetWorkloadKeys(ctx, SetWorkloadKeysParams{
			ID: workloadID, PublicKey: "pub-2", PrivateKey: "priv-2",
		})
		if err != nil {
			t.Fatalf("second set keys: %s", err)
		}
		w, err := queries.GetWorkload(ctx, workloadID)
		if err != nil {
			t.Fatalf("get workload: %s", err)
		}
		if w.SSHPublicKey != "pub-1" {
			t.Errorf("keys were rotated: got %q", w.SSHPublicKey)
		}
	})

	var taskID string
	t.Run("TaskQueue", func(t *testing.T) {
		taskID = core.NewID()
		task, err := queries.CreateTask(ctx, CreateTaskParams{
			TaskID:         taskID,
			WorkloadID:     workloadID,
			Op:             core.OpProvision,
			MaxAttempts:    3,
			TimeoutSeconds: 1800,
		})
		if err != nil {
			t.Fatalf("failed to create task: %s", err)
		}
		if task.Status != core.TaskPending {
			t.Errorf("expected status PENDING, got %s", task.Status)
		}

		got, err := queries.DequeueTask(ctx)
		if err != nil {
			t.Fatalf("failed to dequeue: %s", err)
		}
		if got.TaskID != taskID {
			t.Errorf("expected task %s, got %s", taskID, got.TaskID)
		}
		if got.Status != core.TaskRunning || got.Attempt != 1 {
			t.Errorf("dequeue did not claim: status=%s attempt=%d", got.Status, got.Attempt)
		}

		// queue must be empty now
		if _, err := queries.DequeueTask(ctx); err == nil {
			t.Error("expected no rows on second dequeue")
		}

		if err := queries.CompleteTask(ctx, CompleteTaskParams{
			TaskID: taskID, Status: core.TaskSucceeded,
		}); err != nil {
			t.Fatalf("complete task: %s", err)
		}
	})

	var sessionID string
	t.Run("Sessions", func(t *testing.T) {
		sessionID = core.NewID()
		s, err := queries.CreateSession(ctx, CreateSessionParams{
			ID: sessionID, WorkloadID: workloadID, SessionUUID: "d9b6fbf3-0000-4000-8000-000000000001",
		})
		if err != nil {
			t.Fatalf("create session: %s", err)
		}
		if s.Diff != nil {
			t.Error("new session must have no diff")
		}

		diff := "diff --git a/f b/f"
		if err := queries.SetSessionDiff(ctx, sessionID, &diff); err != nil {
			t.Fatalf("set diff: %s", err)
		}
		s, _ = queries.GetSession(ctx, sessionID)
		if s.Diff == nil || *s.Diff != diff {
			t.Errorf("diff not stored: %v", s.Diff)
		}

		// empty diff stored as absent
		empty := ""
		if err := queries.SetSessionDiff(ctx, sessionID, &empty); err != nil {
			t.Fatalf("set empty diff: %s", err)
		}
		s, _ = queries.GetSession(ctx, sessionID)
		if s.Diff != nil {
			t.Errorf("empty diff must be stored as NULL, got %q", *s.Diff)
		}
	})

	t.Run("ExecutionsAndLogs", func(t *testing.T) {
		execID := core.NewID()
		e, err := queries.CreateExecution(ctx, CreateExecutionParams{
			ID:         execID,
			WorkloadID: workloadID,
			SessionID:  &sessionID,
			Command:    "echo hello",
			Kind:       core.ExecKindExec,
		})
		if err != nil {
			t.Fatalf("create execution: %s", err)
		}
		if e.ExitCode != nil || e.FinishedAt != nil {
			t.Error("new execution must be open")
		}

		for i, content := range []string{"hello", "world"} {
			if err := queries.AppendLog(ctx, AppendLogParams{
				ExecutionID: execID, LineNumber: i + 1,
				Stream: core.StreamStdout, Content: content,
			}); err != nil {
				t.Fatalf("append log %d: %s", i+1, err)
			}
		}

		// duplicate line number violates the ordering contract
		if err := queries.AppendLog(ctx, AppendLogParams{
			ExecutionID: execID, LineNumber: 1,
			Stream: core.StreamStdout, Content: "dup",
		}); err == nil {
			t.Error("expected unique violation on duplicate line number")
		}

		logs, err := queries.ListLogs(ctx, execID)
		if err != nil {
			t.Fatalf("list logs: %s", err)
		}
		if len(logs) != 2 || logs[0].LineNumber != 1 || logs[1].LineNumber != 2 {
			t.Errorf("unexpected logs: %+v", logs)
		}

		e, err = queries.FinishExecution(ctx, FinishExecutionParams{ID: execID, ExitCode: 0})
		if err != nil {
			t.Fatalf("finish execution: %s", err)
		}
		if !e.Success() {
			t.Error("expected success after exit 0")
		}

		// The exec-kind execution above succeeded, but only agent turns
		// make a session resumable.
		n, err := queries.CountSessionSuccesses(ctx, sessionID)
		if err != nil {
			t.Fatalf("count successes: %s", err)
		}
		if n != 0 {
			t.Errorf("auxiliary execution counted as agent success: %d", n)
		}

		failedTurn := core.NewID()
		if _, err := queries.CreateExecution(ctx, CreateExecutionParams{
			ID: failedTurn, WorkloadID: workloadID, SessionID: &sessionID,
			Command: "claude -p 'go'", Kind: core.ExecKindClaude,
		}); err != nil {
			t.Fatalf("create agent execution: %s", err)
		}
		if _, err := queries.FinishExecution(ctx, FinishExecutionParams{ID: failedTurn, ExitCode: 1}); err != nil {
			t.Fatalf("finish agent execution: %s", err)
		}
		if n, _ = queries.CountSessionSuccesses(ctx, sessionID); n != 0 {
			t.Errorf("failed agent turn counted as success: %d", n)
		}

		okTurn := core.NewID()
		if _, err := queries.CreateExecution(ctx, CreateExecutionParams{
			ID: okTurn, WorkloadID: workloadID, SessionID: &sessionID,
			Command: "claude -p 'go'", Kind: core.ExecKindClaude,
		}); err != nil {
			t.Fatalf("create agent execution: %s", err)
		}
		if _, err := queries.FinishExecution(ctx, FinishExecutionParams{ID: okTurn, ExitCode: 0}); err != nil {
			t.Fatalf("finish agent execution: %s", err)
		}
		if n, _ = queries.CountSessionSuccesses(ctx, sessionID); n != 1 {
			t.Errorf("expected 1 successful agent turn, got %d", n)
		}
	})
}
