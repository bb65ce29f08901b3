// Package remoteexec runs commands on provisioned hosts over SSH and
// persists their output line by line. Line ordering is the durability
// contract: numbers start at 1 and increase by 1 with no gaps, and the
// engine is the single writer per execution.
package remoteexec

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/store"
)

// maxLineBytes bounds a single remote output line.
const maxLineBytes = 1 << 20

// Recorder is the slice of the store the engine writes through.
// *store.Queries satisfies it; tests substitute an in-memory one.
type Recorder interface {
	CreateExecution(ctx context.Context, p store.CreateExecutionParams) (core.CommandExecution, error)
	AppendLog(ctx context.Context, p store.AppendLogParams) error
	FinishExecution(ctx context.Context, p store.FinishExecutionParams) (core.CommandExecution, error)
}

// Sink receives every persisted line, after it is persisted, in the
// same order. The fan-out broker implements it.
type Sink interface {
	Publish(workloadID string, line core.CommandLog)
}

// LineFunc is the caller's synchronous per-line callback.
type LineFunc func(line core.CommandLog)

// Line is a pending log line (used for the synthetic preamble).
type Line struct {
	Stream  core.LogStream
	Content string
}

type ExecOpts struct {
	WorkloadID string
	SessionID  *string
	Kind       core.ExecutionKind
	// Preamble lines are persisted before any process output, holding
	// the first line numbers of the execution.
	Preamble []Line
	OnLine   LineFunc
}

type Engine struct {
	rec    Recorder
	sink   Sink
	dialer Dialer
	log    *zap.Logger
}

func NewEngine(rec Recorder, sink Sink, dialer Dialer, log *zap.Logger) *Engine {
	if dialer == nil {
		dialer = SSHDialer{}
	}
	return &Engine{rec: rec, sink: sink, dialer: dialer, log: log}
}

// Exec opens one remote session, streams the command's combined output
// and records the exit status. A failure to connect is returned as a
// connectivity error; a failing remote command is not an error, the
// exit code lands on the CommandExecution and callers inspect it.
func (e *Engine) Exec(ctx context.Context, target Target, command string, opts ExecOpts) (*core.CommandExecution, error) {
	if opts.Kind == "" {
		opts.Kind = core.ExecKindExec
	}

	exec, err := e.rec.CreateExecution(ctx, store.CreateExecutionParams{
		ID:         core.NewID(),
		WorkloadID: opts.WorkloadID,
		SessionID:  opts.SessionID,
		Command:    command,
		Kind:       opts.Kind,
	})
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	log := e.log.With(
		zap.String("execution_id", exec.ID),
		zap.String("workload_id", opts.WorkloadID),
		zap.String("kind", string(opts.Kind)),
	)

	lineNo := 0
	emit := func(stream core.LogStream, content string) error {
		lineNo++
		line := core.CommandLog{
			ExecutionID: exec.ID,
			LineNumber:  lineNo,
			Stream:      stream,
			Content:     content,
		}
		if err := e.rec.AppendLog(ctx, store.AppendLogParams{
			ExecutionID: line.ExecutionID,
			LineNumber:  line.LineNumber,
			Stream:      line.Stream,
			Content:     line.Content,
		}); err != nil {
			return fmt.Errorf("append log line %d: %w", lineNo, err)
		}
		observability.CommandLinesTotal.WithLabelValues(string(stream)).Inc()
		if opts.OnLine != nil {
			opts.OnLine(line)
		}
		if e.sink != nil {
			e.sink.Publish(opts.WorkloadID, line)
		}
		return nil
	}

	for _, pre := range opts.Preamble {
		if err := emit(pre.Stream, pre.Content); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	conn, err := e.dialer.Dial(ctx, target)
	if err != nil {
		observability.SSHConnectFailTotal.Inc()
		e.finish(ctx, exec.ID, -1, log)
		return nil, core.NewAppError(core.ErrConnectivity,
			fmt.Sprintf("ssh %s: %v", target.Addr(), err))
	}
	defer conn.Close()

	proc, err := conn.Start(ctx, target.WrapCommand(command))
	if err != nil {
		observability.SSHConnectFailTotal.Inc()
		e.finish(ctx, exec.ID, -1, log)
		return nil, core.NewAppError(core.ErrConnectivity,
			fmt.Sprintf("start on %s: %v", target.Addr(), err))
	}

	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := emit(core.StreamStdout, scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("output stream truncated", zap.Error(err))
	}

	exitCode := proc.Wait()
	observability.CommandDuration.WithLabelValues(string(opts.Kind)).Observe(time.Since(start).Seconds())

	finished, err := e.rec.FinishExecution(ctx, store.FinishExecutionParams{ID: exec.ID, ExitCode: exitCode})
	if err != nil {
		return nil, fmt.Errorf("finish execution: %w", err)
	}
	if finished.Failed() {
		log.Info("remote command failed", zap.Int("exit_code", exitCode), zap.Int("lines", lineNo))
	} else {
		log.Debug("remote command finished", zap.Int("lines", lineNo))
	}
	return &finished, nil
}

// finish closes an execution that never produced a real exit code.
func (e *Engine) finish(ctx context.Context, id string, code int, log *zap.Logger) {
	if _, err := e.rec.FinishExecution(ctx, store.FinishExecutionParams{ID: id, ExitCode: code}); err != nil {
		log.Error("finish execution failed", zap.Error(err))
	}
}
