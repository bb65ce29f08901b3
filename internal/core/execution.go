package core

import "time"

// ExecutionKind records what produced a command execution.
type ExecutionKind string

const (
	ExecKindExec    ExecutionKind = "exec"
	ExecKindClaude  ExecutionKind = "claude"
	ExecKindSQL     ExecutionKind = "sql"
	ExecKindDump    ExecutionKind = "db_dump"
	ExecKindRestore ExecutionKind = "db_restore"
)

// CommandExecution is one remote command invocation. A nonzero exit code
// is data, not an error: callers inspect Success/Failed.
type CommandExecution struct {
	ID         string        `json:"id"`
	WorkloadID string        `json:"workload_id"`
	SessionID  *string       `json:"session_id,omitempty"`
	Command    string        `json:"command"`
	Kind       ExecutionKind `json:"kind"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

func (e *CommandExecution) Success() bool {
	return e.ExitCode != nil && *e.ExitCode == 0
}

func (e *CommandExecution) Failed() bool {
	return e.ExitCode != nil && *e.ExitCode != 0
}

// LogStream identifies which stream a log line came from. The synthetic
// prompt line of an AI run is recorded on the "user" stream.
type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
	StreamUser   LogStream = "user"
)

// CommandLog is one line of remote output. Line numbers start at 1 and
// increase by 1 with no gaps per execution; ordering is the durability
// contract replay consumers depend on.
type CommandLog struct {
	ExecutionID string    `json:"execution_id"`
	LineNumber  int       `json:"line_number"`
	Stream      LogStream `json:"stream"`
	Content     string    `json:"content"`
}
