package scheduler

import (
	"context"
	"sync"
	"time"
)

// Executor is the execution strategy for one job type.
//
// Execute runs the job body; failure is signalled by the returned error and
// the result value is opaque to the scheduler. EstimateDuration and CanExecute
// must be pure and fast: the former is advisory only, the latter is a
// per-type admission guard consulted with the current CPU load on every tick,
// independent of the scheduler's global load gate.
type Executor interface {
	Execute(ctx context.Context, payload any) (any, error)
	EstimateDuration(payload any) time.Duration
	CanExecute(cpuPercent float64) bool
}

// registry maps job type tags to executors. The set is open-ended and unknown
// to the scheduler; re-registration overwrites silently.
type registry struct {
	mu    sync.RWMutex
	execs map[string]Executor
}

func newRegistry() *registry {
	return &registry{execs: make(map[string]Executor)}
}

func (r *registry) register(jobType string, ex Executor) {
	r.mu.Lock()
	r.execs[jobType] = ex
	r.mu.Unlock()
}

func (r *registry) lookup(jobType string) (Executor, bool) {
	r.mu.RLock()
	ex, ok := r.execs[jobType]
	r.mu.RUnlock()
	return ex, ok
}
