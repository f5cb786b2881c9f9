package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/planlane/authcore/rbac"
)

func collectEvents(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()
	events := make([]AuditEvent, 0, want)
	deadline := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out with %d/%d events", len(events), want)
		}
	}
	return events
}

func TestAuditLoginEvents(t *testing.T) {
	sink := NewChannelSink(64)
	store := newMemSubjectStore()
	e, err := New().
		WithConfig(testConfig()).
		WithMemorySessions().
		WithSubjectStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	mustCreateSubject(t, e, "dev@example.com", rbac.RoleDeveloper)
	if _, err := e.Login(ctx, "dev@example.com", "Wr0ng!pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if _, err := e.Login(ctx, "dev@example.com", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	events := collectEvents(t, sink, 3)
	if events[0].EventType != auditEventSubjectCreated {
		t.Fatalf("event 0: %q", events[0].EventType)
	}
	fail, ok := events[1], events[2]
	if fail.EventType != auditEventLoginFailure || fail.Success {
		t.Fatalf("event 1: %+v", fail)
	}
	if fail.IP != "203.0.113.9" {
		t.Fatalf("client IP not captured: %q", fail.IP)
	}
	if fail.Error == "" {
		t.Fatal("failure event carries no error")
	}
	if ok.EventType != auditEventLoginSuccess || !ok.Success || ok.SessionID == "" {
		t.Fatalf("event 2: %+v", ok)
	}
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, AuditEvent) { <-block })
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event occupies the goroutine, one fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	waitFor(t, func() bool { return d.Dropped() >= 3 })

	close(block)
	d.Close()
}

func TestAuditDispatcherDrainsOnClose(t *testing.T) {
	var got int
	done := make(chan struct{})
	sink := sinkFunc(func(_ context.Context, ev AuditEvent) {
		got++
		if got == 3 {
			close(done)
		}
	})
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	d.Close()

	select {
	case <-done:
	default:
		t.Fatalf("only %d events delivered before Close returned", got)
	}

	// Emit after Close is a no-op, not a panic.
	d.Emit(context.Background(), AuditEvent{EventType: "late"})
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EventType: auditEventLoginSuccess,
		SubjectID: "s1",
		Success:   true,
	})

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.EventType != auditEventLoginSuccess || decoded.SubjectID != "s1" || !decoded.Success {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if buf.Bytes()[buf.Len()-1] != '\n' {
		t.Fatal("missing trailing newline")
	}
}

// sinkFunc adapts a function to the AuditSink interface.
type sinkFunc func(ctx context.Context, event AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
