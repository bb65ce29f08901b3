// Package session runs AI coding-agent turns inside a workload and
// captures the resulting workspace diff.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
)

const agentBinary = "claude"

// Store is the slice of the database the runner needs.
type Store interface {
	GetSession(ctx context.Context, id string) (core.Session, error)
	CreateSession(ctx context.Context, p store.CreateSessionParams) (core.Session, error)
	CountSessionSuccesses(ctx context.Context, sessionID string) (int64, error)
	SetSessionDiff(ctx context.Context, id string, diff *string) error
}

// Executor runs commands on the workload; *remoteexec.Engine satisfies it.
type Executor interface {
	Exec(ctx context.Context, target remoteexec.Target, command string, opts remoteexec.ExecOpts) (*core.CommandExecution, error)
}

type Runner struct {
	store    Store
	exec     Executor
	workdir  string
	log      *zap.Logger
}

func NewRunner(st Store, exec Executor, workdir string, log *zap.Logger) *Runner {
	if workdir == "" {
		workdir = "/workspace"
	}
	return &Runner{store: st, exec: exec, workdir: workdir, log: log}
}

// BuildCommand assembles the agent invocation for one turn. A session
// with no prior successful turn gets a fresh --session-id; a session
// with at least one gets --resume. Exactly one of the two flags is
// ever present.
func BuildCommand(workdir, sessionUUID, prompt string, resume bool) string {
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(remoteexec.SingleQuote(workdir))
	b.WriteString(" && ")
	b.WriteString(agentBinary)
	b.WriteString(" --print --verbose --output-format stream-json --dangerously-skip-permissions")
	if resume {
		b.WriteString(" --resume ")
	} else {
		b.WriteString(" --session-id ")
	}
	b.WriteString(remoteexec.SingleQuote(sessionUUID))
	b.WriteString(" ")
	b.WriteString(remoteexec.SingleQuote(prompt))
	return b.String()
}

// promptLine renders the synthetic first log line that records what
// the user asked, in the same stream-json shape the agent emits.
func promptLine(prompt string) string {
	payload := struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "user", Text: prompt}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

// Run executes one prompt turn against the session, streaming the
// agent's output through the ordered log, then refreshes the
// session's diff. Agent failure is reported through the execution's
// exit code, not as an error.
func (r *Runner) Run(ctx context.Context, target remoteexec.Target, sess core.Session, prompt string) (*core.CommandExecution, error) {
	successes, err := r.store.CountSessionSuccesses(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("count session turns: %w", err)
	}
	resume := successes > 0

	cmd := BuildCommand(r.workdir, sess.SessionUUID, prompt, resume)
	exec, err := r.exec.Exec(ctx, target, cmd, remoteexec.ExecOpts{
		WorkloadID: sess.WorkloadID,
		SessionID:  &sess.ID,
		Kind:       core.ExecKindClaude,
		Preamble: []remoteexec.Line{
			{Stream: core.StreamUser, Content: promptLine(prompt)},
		},
	})
	if err != nil {
		observability.SessionRunTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if exec.Success() {
		observability.SessionRunTotal.WithLabelValues("ok").Inc()
	} else {
		observability.SessionRunTotal.WithLabelValues("failed").Inc()
	}

	r.captureDiff(ctx, target, sess)
	return exec, nil
}

// captureDiff refreshes the session's stored workspace diff. Diff
// capture is best effort: a turn whose work survives but whose diff
// read fails must not fail the turn.
func (r *Runner) captureDiff(ctx context.Context, target remoteexec.Target, sess core.Session) {
	var lines []string
	cmd := fmt.Sprintf("cd %s && git add -N . && git diff HEAD", remoteexec.SingleQuote(r.workdir))
	exec, err := r.exec.Exec(ctx, target, cmd, remoteexec.ExecOpts{
		WorkloadID: sess.WorkloadID,
		SessionID:  &sess.ID,
		Kind:       core.ExecKindExec,
		OnLine: func(l core.CommandLog) {
			lines = append(lines, l.Content)
		},
	})
	if err != nil || exec.Failed() {
		observability.DiffCaptureFailTotal.Inc()
		r.log.Warn("diff capture failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	diff := strings.Join(lines, "\n")
	if err := r.store.SetSessionDiff(ctx, sess.ID, &diff); err != nil {
		observability.DiffCaptureFailTotal.Inc()
		r.log.Warn("diff persist failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
