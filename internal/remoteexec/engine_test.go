package remoteexec

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/store"
)

type memRecorder struct {
	execs map[string]core.CommandExecution
	logs  []core.CommandLog
}

func newMemRecorder() *memRecorder {
	return &memRecorder{execs: map[string]core.CommandExecution{}}
}

func (m *memRecorder) CreateExecution(_ context.Context, p store.CreateExecutionParams) (core.CommandExecution, error) {
	e := core.CommandExecution{ID: p.ID, WorkloadID: p.WorkloadID, SessionID: p.SessionID, Command: p.Command, Kind: p.Kind}
	m.execs[e.ID] = e
	return e, nil
}

func (m *memRecorder) AppendLog(_ context.Context, p store.AppendLogParams) error {
	for _, l := range m.logs {
		if l.ExecutionID == p.ExecutionID && l.LineNumber == p.LineNumber {
			return errors.New("duplicate line number")
		}
	}
	m.logs = append(m.logs, core.CommandLog{
		ExecutionID: p.ExecutionID, LineNumber: p.LineNumber, Stream: p.Stream, Content: p.Content,
	})
	return nil
}

func (m *memRecorder) FinishExecution(_ context.Context, p store.FinishExecutionParams) (core.CommandExecution, error) {
	e, ok := m.execs[p.ID]
	if !ok {
		return e, errors.New("no such execution")
	}
	code := p.ExitCode
	e.ExitCode = &code
	m.execs[p.ID] = e
	return e, nil
}

type fakeProcess struct {
	out  io.Reader
	code int
}

func (p *fakeProcess) Output() io.Reader { return p.out }
func (p *fakeProcess) Wait() int         { return p.code }

type fakeConn struct {
	output   string
	exitCode int
	startErr error
	lastCmd  string
}

func (c *fakeConn) Start(_ context.Context, command string) (Process, error) {
	c.lastCmd = command
	if c.startErr != nil {
		return nil, c.startErr
	}
	return &fakeProcess{out: strings.NewReader(c.output), code: c.exitCode}, nil
}

func (c *fakeConn) Close() error { return nil }

type fakeDialer struct {
	conn    *fakeConn
	dialErr error
}

func (d *fakeDialer) Dial(_ context.Context, _ Target) (Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.conn, nil
}

type memSink struct {
	lines []core.CommandLog
}

func (s *memSink) Publish(_ string, line core.CommandLog) {
	s.lines = append(s.lines, line)
}

func testEngine(rec Recorder, sink Sink, d Dialer) *Engine {
	return NewEngine(rec, sink, d, zap.NewNop())
}

func TestExecGaplessOrdering(t *testing.T) {
	rec := newMemRecorder()
	sink := &memSink{}
	dialer := &fakeDialer{conn: &fakeConn{output: "alpha\nbeta\ngamma\n"}}
	eng := testEngine(rec, sink, dialer)

	exec, err := eng.Exec(context.Background(), Target{Host: "10.0.0.1"}, "ls", ExecOpts{
		WorkloadID: "w1",
		Preamble: []Line{
			{Stream: core.StreamUser, Content: `{"type":"user","text":"hello"}`},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !exec.Success() {
		t.Fatalf("expected success, exit=%v", exec.ExitCode)
	}

	want := []string{`{"type":"user","text":"hello"}`, "alpha", "beta", "gamma"}
	if len(rec.logs) != len(want) {
		t.Fatalf("got %d lines, want %d", len(rec.logs), len(want))
	}
	for i, l := range rec.logs {
		if l.LineNumber != i+1 {
			t.Errorf("line %d numbered %d, want %d", i, l.LineNumber, i+1)
		}
		if l.Content != want[i] {
			t.Errorf("line %d = %q, want %q", i+1, l.Content, want[i])
		}
	}
	if rec.logs[0].Stream != core.StreamUser {
		t.Errorf("preamble stream = %q, want user", rec.logs[0].Stream)
	}
	if rec.logs[1].Stream != core.StreamStdout {
		t.Errorf("output stream = %q, want stdout", rec.logs[1].Stream)
	}

	// Sink sees the same lines in the same order, after persistence.
	if len(sink.lines) != len(want) {
		t.Fatalf("sink got %d lines, want %d", len(sink.lines), len(want))
	}
	for i := range sink.lines {
		if sink.lines[i] != rec.logs[i] {
			t.Errorf("sink line %d diverges from persisted line", i+1)
		}
	}
}

func TestExecRemoteFailureIsData(t *testing.T) {
	rec := newMemRecorder()
	dialer := &fakeDialer{conn: &fakeConn{output: "boom\n", exitCode: 3}}
	eng := testEngine(rec, nil, dialer)

	exec, err := eng.Exec(context.Background(), Target{Host: "10.0.0.1"}, "false", ExecOpts{WorkloadID: "w1"})
	if err != nil {
		t.Fatalf("remote failure must not surface as error, got %v", err)
	}
	if !exec.Failed() || *exec.ExitCode != 3 {
		t.Errorf("exit code = %v, want 3", exec.ExitCode)
	}
}

func TestExecConnectFailure(t *testing.T) {
	rec := newMemRecorder()
	eng := testEngine(rec, nil, &fakeDialer{dialErr: errors.New("connection refused")})

	_, err := eng.Exec(context.Background(), Target{Host: "10.0.0.1"}, "ls", ExecOpts{WorkloadID: "w1"})
	if core.CodeOf(err) != core.ErrConnectivity {
		t.Fatalf("want connectivity error, got %v", err)
	}

	// The execution row is still closed out with a terminal code.
	for _, e := range rec.execs {
		if e.ExitCode == nil || *e.ExitCode != -1 {
			t.Errorf("dial failure should finish execution with -1, got %v", e.ExitCode)
		}
	}
}

func TestExecStartFailure(t *testing.T) {
	rec := newMemRecorder()
	dialer := &fakeDialer{conn: &fakeConn{startErr: errors.New("session rejected")}}
	eng := testEngine(rec, nil, dialer)

	_, err := eng.Exec(context.Background(), Target{Host: "10.0.0.1"}, "ls", ExecOpts{WorkloadID: "w1"})
	if core.CodeOf(err) != core.ErrConnectivity {
		t.Fatalf("want connectivity error, got %v", err)
	}
}

func TestExecOnLineCallback(t *testing.T) {
	rec := newMemRecorder()
	dialer := &fakeDialer{conn: &fakeConn{output: "one\ntwo\n"}}
	eng := testEngine(rec, nil, dialer)

	var seen []string
	_, err := eng.Exec(context.Background(), Target{Host: "10.0.0.1"}, "ls", ExecOpts{
		WorkloadID: "w1",
		OnLine:     func(l core.CommandLog) { seen = append(seen, l.Content) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "one" || seen[1] != "two" {
		t.Errorf("callback saw %v", seen)
	}
}

func TestExecContainerWrap(t *testing.T) {
	rec := newMemRecorder()
	conn := &fakeConn{output: ""}
	eng := testEngine(rec, nil, &fakeDialer{conn: conn})

	_, err := eng.Exec(context.Background(),
		Target{Host: "10.0.0.1", Container: "hatch-ab12cd-app"}, "env", ExecOpts{WorkloadID: "w1"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conn.lastCmd, "docker exec hatch-ab12cd-app") {
		t.Errorf("command not wrapped for container: %q", conn.lastCmd)
	}
}
