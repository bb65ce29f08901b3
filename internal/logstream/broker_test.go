package logstream

import (
	"testing"

	"github.com/hatchery-io/hatchery/internal/core"
)

func line(n int) core.CommandLog {
	return core.CommandLog{ExecutionID: "e1", LineNumber: n, Stream: core.StreamStdout, Content: "x"}
}

func TestBrokerDeliversInOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("w1")
	defer cancel()

	for i := 1; i <= 5; i++ {
		b.Publish("w1", line(i))
	}
	for i := 1; i <= 5; i++ {
		got := <-ch
		if got.LineNumber != i {
			t.Fatalf("line %d arrived as %d", i, got.LineNumber)
		}
	}
}

func TestBrokerIsolatesWorkloads(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("w1")
	defer cancel()

	b.Publish("w2", line(1))
	select {
	case l := <-ch:
		t.Fatalf("got line %d for foreign workload", l.LineNumber)
	default:
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("w1")
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// Publishing after cancel must not panic.
	b.Publish("w1", line(1))
}

func TestBrokerEvictsSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("w1")
	defer cancel()

	for i := 0; i <= subscriberBuffer; i++ {
		b.Publish("w1", line(i+1))
	}

	n := 0
	for range ch {
		n++
	}
	if n != subscriberBuffer {
		t.Fatalf("drained %d lines, want %d then close", n, subscriberBuffer)
	}
}
