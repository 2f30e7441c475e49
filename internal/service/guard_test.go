package service_test

import (
	"context"
	"testing"
	"time"

	"scrub/internal/logging"
	"scrub/internal/service"
)

// ─────────────────────────────────────────────────────────────
// runningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("job-1") {
		t.Fatal("expected second TryLock for same job to fail")
	}
	if !g.TryLock("job-2") {
		t.Fatal("expected TryLock for different job to succeed")
	}
	g.Unlock("job-1")
	g.Unlock("job-2")

	if !g.TryLock("job-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("job-1")
}

func TestRunningGuard_IsRunning(t *testing.T) {
	var g service.ExportedRunningGuard

	if g.IsRunning("job-1") {
		t.Fatal("nothing locked yet")
	}
	g.TryLock("job-1")
	if !g.IsRunning("job-1") {
		t.Fatal("expected job-1 to report as running")
	}
	g.Unlock("job-1")
	if g.IsRunning("job-1") {
		t.Fatal("expected job-1 to be released")
	}
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

func TestService_WaitRunningImmediate(t *testing.T) {
	// With no running jobs, WaitRunning should return immediately.
	svc := service.NewJobService(nil, nil, nil, &service.MockEmitter{}, logging.NewNop())

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		svc.WaitRunning(ctx)
		close(done)
	}()

	select {
	case <-done:
		// expected — no jobs running
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitRunning hung with no running jobs")
	}
}

func TestService_StopIdempotent(t *testing.T) {
	// Stop with nothing started should not panic.
	svc := service.NewJobService(nil, nil, nil, &service.MockEmitter{}, logging.NewNop())
	svc.Stop()
	svc.Stop() // second call should also be safe
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", m.Events[0].Event)
	}
	if m.Events[len(m.Events)-1].Event != "test:event2" {
		t.Errorf("expected last event 'test:event2', got %q", m.Events[len(m.Events)-1].Event)
	}
}
