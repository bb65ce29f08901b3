package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
)

type memStore struct {
	sessions map[string]core.Session
	execs    []core.CommandExecution
	diffErr  error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]core.Session{}}
}

func (m *memStore) GetSession(_ context.Context, id string) (core.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return s, errors.New("no such session")
	}
	return s, nil
}

func (m *memStore) CreateSession(_ context.Context, p store.CreateSessionParams) (core.Session, error) {
	s := core.Session{ID: p.ID, WorkloadID: p.WorkloadID, SessionUUID: p.SessionUUID}
	m.sessions[s.ID] = s
	return s, nil
}

// CountSessionSuccesses mirrors the store query: only agent turns with
// exit code 0 count, never diff captures or other linked executions.
func (m *memStore) CountSessionSuccesses(_ context.Context, id string) (int64, error) {
	var n int64
	for _, e := range m.execs {
		if e.SessionID != nil && *e.SessionID == id && e.Kind == core.ExecKindClaude && e.Success() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) SetSessionDiff(_ context.Context, id string, diff *string) error {
	if m.diffErr != nil {
		return m.diffErr
	}
	s := m.sessions[id]
	if diff != nil && *diff == "" {
		diff = nil
	}
	s.Diff = diff
	m.sessions[id] = s
	return nil
}

// scriptedExec answers each Exec call in order with canned output.
// Finished executions land in st so the fake store counts them the way
// the real one does.
type scriptedExec struct {
	st       *memStore
	calls    []execCall
	outputs  [][]string
	exitCode []int
	execErr  []error
}

type execCall struct {
	command string
	opts    remoteexec.ExecOpts
}

func (s *scriptedExec) Exec(_ context.Context, _ remoteexec.Target, command string, opts remoteexec.ExecOpts) (*core.CommandExecution, error) {
	i := len(s.calls)
	s.calls = append(s.calls, execCall{command: command, opts: opts})
	if i < len(s.execErr) && s.execErr[i] != nil {
		return nil, s.execErr[i]
	}

	n := 0
	emit := func(stream core.LogStream, content string) {
		n++
		if opts.OnLine != nil {
			opts.OnLine(core.CommandLog{ExecutionID: "e", LineNumber: n, Stream: stream, Content: content})
		}
	}
	for _, pre := range opts.Preamble {
		emit(pre.Stream, pre.Content)
	}
	if i < len(s.outputs) {
		for _, line := range s.outputs[i] {
			emit(core.StreamStdout, line)
		}
	}

	code := 0
	if i < len(s.exitCode) {
		code = s.exitCode[i]
	}
	exec := core.CommandExecution{ID: "e", WorkloadID: opts.WorkloadID, SessionID: opts.SessionID, Kind: opts.Kind, ExitCode: &code}
	if s.st != nil {
		s.st.execs = append(s.st.execs, exec)
	}
	return &exec, nil
}

func TestBuildCommandFlagExclusivity(t *testing.T) {
	fresh := BuildCommand("/workspace", "uuid-1", "fix the bug", false)
	if !strings.Contains(fresh, "--session-id 'uuid-1'") {
		t.Errorf("fresh session missing --session-id: %q", fresh)
	}
	if strings.Contains(fresh, "--resume") {
		t.Errorf("fresh session must not carry --resume: %q", fresh)
	}

	resumed := BuildCommand("/workspace", "uuid-1", "fix the bug", true)
	if !strings.Contains(resumed, "--resume 'uuid-1'") {
		t.Errorf("resumed session missing --resume: %q", resumed)
	}
	if strings.Contains(resumed, "--session-id") {
		t.Errorf("resumed session must not carry --session-id: %q", resumed)
	}

	for _, cmd := range []string{fresh, resumed} {
		for _, flag := range []string{"--print", "--verbose", "--output-format stream-json", "--dangerously-skip-permissions"} {
			if !strings.Contains(cmd, flag) {
				t.Errorf("command missing %s: %q", flag, cmd)
			}
		}
	}
}

func TestBuildCommandQuotesPrompt(t *testing.T) {
	cmd := BuildCommand("/workspace", "uuid-1", "don't break; $(rm -rf /)", false)
	if !strings.Contains(cmd, `'don'\''t break; $(rm -rf /)'`) {
		t.Errorf("prompt not single-quote escaped: %q", cmd)
	}
}

func TestRunPromptIsFirstLogLine(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	exec := &scriptedExec{outputs: [][]string{{"a", "b"}, {}}}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	_, err := r.Run(context.Background(), remoteexec.Target{Host: "1.2.3.4"}, sess, "hello")
	if err != nil {
		t.Fatal(err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("expected agent call plus diff call, got %d", len(exec.calls))
	}
	agent := exec.calls[0]
	if len(agent.opts.Preamble) != 1 {
		t.Fatalf("expected one preamble line, got %d", len(agent.opts.Preamble))
	}
	first := agent.opts.Preamble[0]
	if first.Stream != core.StreamUser {
		t.Errorf("prompt line stream = %q, want user", first.Stream)
	}
	if first.Content != `{"type":"user","text":"hello"}` {
		t.Errorf("prompt line = %q", first.Content)
	}
	if agent.opts.Kind != core.ExecKindClaude {
		t.Errorf("agent execution kind = %q", agent.opts.Kind)
	}
	if agent.opts.SessionID == nil || *agent.opts.SessionID != "s1" {
		t.Errorf("agent execution not linked to session")
	}
}

func TestRunResumesAfterFirstSuccess(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	exec := &scriptedExec{st: st}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	if _, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "first"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(exec.calls[0].command, "--session-id") {
		t.Errorf("first turn should start the session: %q", exec.calls[0].command)
	}

	if _, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "second"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(exec.calls[2].command, "--resume") {
		t.Errorf("later turn should resume: %q", exec.calls[2].command)
	}
}

func TestRunFailedTurnStaysFresh(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	// Each turn is a failed agent run followed by a successful diff
	// capture. The capture's exit 0 must not make the session look
	// resumable: the next turn starts the session rather than resuming
	// a conversation that never took hold.
	exec := &scriptedExec{st: st, exitCode: []int{1, 0, 1, 0}}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "go"); err != nil {
			t.Fatal(err)
		}
	}
	for _, i := range []int{0, 2} {
		if !strings.Contains(exec.calls[i].command, "--session-id") {
			t.Errorf("turn %d should use --session-id: %q", i, exec.calls[i].command)
		}
	}
}

func TestRunCapturesDiff(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	exec := &scriptedExec{outputs: [][]string{
		{"done"},
		{"diff --git a/f b/f", "+new line"},
	}}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	if _, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "edit f"); err != nil {
		t.Fatal(err)
	}
	got := st.sessions["s1"].Diff
	if got == nil || *got != "diff --git a/f b/f\n+new line" {
		t.Errorf("diff = %v", got)
	}
	if !strings.Contains(exec.calls[1].command, "git diff") {
		t.Errorf("diff call command = %q", exec.calls[1].command)
	}
}

func TestRunEmptyDiffStoredAbsent(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	exec := &scriptedExec{outputs: [][]string{{"done"}, {}}}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	if _, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "noop"); err != nil {
		t.Fatal(err)
	}
	if st.sessions["s1"].Diff != nil {
		t.Errorf("empty diff should be stored absent, got %q", *st.sessions["s1"].Diff)
	}
}

func TestRunDiffFailureDoesNotFailTurn(t *testing.T) {
	st := newMemStore()
	sess, _ := st.CreateSession(context.Background(), store.CreateSessionParams{ID: "s1", WorkloadID: "w1", SessionUUID: "uuid-1"})

	exec := &scriptedExec{
		outputs:  [][]string{{"done"}, {}},
		exitCode: []int{0, 128},
	}
	r := NewRunner(st, exec, "/workspace", zap.NewNop())

	res, err := r.Run(context.Background(), remoteexec.Target{Host: "h"}, sess, "go")
	if err != nil {
		t.Fatalf("diff failure leaked into turn result: %v", err)
	}
	if !res.Success() {
		t.Errorf("turn should report the agent's exit, got %v", res.ExitCode)
	}
	if st.sessions["s1"].Diff != nil {
		t.Errorf("failed diff capture must not overwrite, got %v", st.sessions["s1"].Diff)
	}
}
