package service

import (
	"context"
	"sync"
	"time"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningJobsGuard

// ─────────────────────────────────────────────────────────────
// runningJobsGuard — prevents concurrent execution of the same job
// ─────────────────────────────────────────────────────────────

// runningJobsGuard ensures only one run of a given job ID is live at a
// time. Two triggers firing for the same job (a cron tick during a
// manual run, a file-watch burst) must not interleave commits or dedup
// state. Start times are kept so callers can report what is in flight.
type runningJobsGuard struct {
	mu      sync.Mutex
	running map[string]time.Time
	wg      sync.WaitGroup
}

// TryLock marks jobID as running and reports whether it succeeded. A
// false return means a run for this job is already in flight.
func (g *runningJobsGuard) TryLock(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]time.Time)
	}
	if _, live := g.running[jobID]; live {
		return false
	}
	g.running[jobID] = time.Now()
	g.wg.Add(1)
	return true
}

// Unlock releases the job. Must pair with a successful TryLock.
func (g *runningJobsGuard) Unlock(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, jobID)
	g.wg.Done()
}

// IsRunning reports whether a run for jobID is currently live.
func (g *runningJobsGuard) IsRunning(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, live := g.running[jobID]
	return live
}

// WaitAll blocks until every live run finishes or ctx is cancelled.
func (g *runningJobsGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
