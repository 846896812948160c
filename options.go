package desipipe

import (
	"time"

	"github.com/adematti/desipipe/internal/provider"
	"github.com/adematti/desipipe/internal/scheduler"
)

// TMOption configures a TaskManager, per spec.md section 4.9's
// `clone(...)`: "some declared tasks can run with e.g. one worker
// while others use four."
type TMOption func(*TaskManager)

// WithMaxWorkers sets the scheduler's worker pool size for this
// TaskManager's clone (it does not affect siblings sharing the queue).
func WithMaxWorkers(n int) TMOption {
	return func(tm *TaskManager) { tm.schedCfg.MaxWorkers = n }
}

// WithLeaseFor overrides how long a claimed task's RUNNING lease lasts
// before the liveness sweep considers the worker dead.
func WithLeaseFor(d time.Duration) TMOption {
	return func(tm *TaskManager) { tm.schedCfg.LeaseFor = d }
}

// WithEnviron attaches an Environment whose variables are exported
// into every worker this TaskManager dispatches, per spec.md section 6.
// Build one with NewEnvironment.
func WithEnviron(e *Environment) TMOption {
	return func(tm *TaskManager) { tm.environ = e }
}

// WithProvider overrides the dispatch backend (default: a Local
// process provider re-execing the current binary).
func WithProvider(p provider.Provider) TMOption {
	return func(tm *TaskManager) { tm.provider = p }
}

// WithAutoSpawn marks the queue to auto-launch a detached manager
// process on first enqueue, per spec.md section 4.8's `spawn=True`.
func WithAutoSpawn(autoSpawn bool) TMOption {
	return func(tm *TaskManager) { tm.autoSpawn = autoSpawn }
}

func (tm *TaskManager) apply(opts []TMOption) {
	for _, opt := range opts {
		opt(tm)
	}
}

func (tm *TaskManager) schedulerConfig() scheduler.Config {
	cfg := tm.schedCfg
	if tm.environ != nil {
		cfg.Environ = tm.environ.Vars()
	}
	return cfg
}
