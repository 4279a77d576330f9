// Package sweep runs periodic, read-only buffer maintenance — integrity
// checks and external-change detection — on a cron schedule, outside the
// core's single-threaded call path.
//
// Grounded on storage.Scheduler (internal/storage/scheduler.go): a
// github.com/robfig/cron/v3 instance plus a run-tracking map, generalized
// from executing arbitrary catalog SQL jobs to running a fixed pair of
// buffer checks. Jobs here take no SQL executor — the spec's concurrency
// model (§5) restricts a background goroutine to read-only operations, so
// there is no JobExecutor-style write path to abstract over.
package sweep

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CheckFunc is one scheduled maintenance check. It must not mutate buffer
// content — only inspect it (file-change detection, integrity validation)
// and report what it finds via its own side channel (typically a
// notify.Bus the caller closed over).
type CheckFunc func(ctx context.Context) error

// Runner wraps a cron scheduler dedicated to buffer maintenance checks.
type Runner struct {
	cron *cron.Cron

	mu      sync.Mutex
	running map[cron.EntryID]time.Time
}

// New constructs a Runner using UTC and second-resolution cron expressions,
// matching storage.Scheduler's own cron.New options.
func New() *Runner {
	loc, _ := time.LoadLocation("UTC")
	return &Runner{
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		running: make(map[cron.EntryID]time.Time),
	}
}

// Schedule registers fn to run on spec (a standard cron expression,
// optionally with a leading seconds field), with a per-run timeout.
func (r *Runner) Schedule(spec string, timeout time.Duration, fn CheckFunc) (cron.EntryID, error) {
	var id cron.EntryID
	var err error
	id, err = r.cron.AddFunc(spec, func() {
		r.runOnce(id, timeout, fn)
	})
	if err != nil {
		return 0, fmt.Errorf("sweep: invalid schedule %q: %w", spec, err)
	}
	return id, nil
}

func (r *Runner) runOnce(id cron.EntryID, timeout time.Duration, fn CheckFunc) {
	r.mu.Lock()
	if _, already := r.running[id]; already {
		r.mu.Unlock()
		log.Printf("sweep: check %d still running, skipping this tick", id)
		return
	}
	r.running[id] = time.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
	}()

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		log.Printf("sweep: check %d failed: %v", id, err)
	}
}

// Start begins the cron loop.
func (r *Runner) Start() { r.cron.Start() }

// Stop halts the cron loop and waits for any in-flight entries to finish
// their current invocation before returning.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
