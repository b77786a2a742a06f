package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	delay  time.Duration
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAuditDispatcher_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess, UserID: int64(i)})
	}
	d.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("delivered = %d, want 5", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, ev := range sink.events {
		if ev.UserID != int64(i) {
			t.Errorf("event %d has userID %d, delivery reordered", i, ev.UserID)
		}
	}
}

func TestAuditDispatcher_CloseDrainsBuffer(t *testing.T) {
	sink := &recordingSink{delay: time.Millisecond}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	}
	d.Close()

	if got := sink.count(); got != 20 {
		t.Fatalf("delivered = %d after Close, want 20", got)
	}
}

func TestAuditDispatcher_DropIfFull(t *testing.T) {
	sink := &recordingSink{delay: 50 * time.Millisecond}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer d.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			d.Emit(context.Background(), AuditEvent{EventType: auditEventRefreshSuccess})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with DropIfFull set")
	}

	if d.Dropped() == 0 {
		t.Error("no events counted as dropped")
	}
}

func TestAuditDispatcher_DisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &recordingSink{})
	if d != nil {
		t.Fatal("disabled config should produce nil dispatcher")
	}

	// All methods must be safe on the nil dispatcher.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Error("nil dispatcher reports drops")
	}
}

func TestAuditDispatcher_CloseIdempotent(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, &recordingSink{})
	d.Close()
	d.Close()

	// Emit after Close must not panic or block.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
}

func TestAuditDispatcher_NilSinkDefaultsToNoOp(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, nil)
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess})
	d.Close()
}
