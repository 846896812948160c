// Package scheduler implements the Worker Scheduler of spec.md section
// 4.6: it maintains a pool of at most max_workers concurrent workers,
// pulls ready tasks FIFO, substitutes resolved dependency results into
// their argument tree, dispatches them through a Provider, and records
// their outcome back into the store and the result cache.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adematti/desipipe/internal/cache"
	"github.com/adematti/desipipe/internal/provider"
	"github.com/adematti/desipipe/internal/resolver"
	"github.com/adematti/desipipe/internal/store"
	"github.com/adematti/desipipe/internal/workerspec"
)

// Config mirrors the knobs a TaskManager.Clone can vary per spec.md
// section 4.9: "some declared tasks can run with e.g. one worker while
// others use four."
type Config struct {
	MaxWorkers int
	LeaseFor   time.Duration
	PollEvery  time.Duration
	Environ    map[string]string
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
	if c.LeaseFor <= 0 {
		c.LeaseFor = 10 * time.Minute
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 500 * time.Millisecond
	}
	return c
}

type inFlight struct {
	taskID string
	handle provider.Handle
	spec   workerspec.Spec
}

// Scheduler drives one queue's claim/dispatch/finalize loop.
type Scheduler struct {
	store    *store.Store
	cache    *cache.Cache
	provider provider.Provider
	cfg      Config

	running []inFlight
}

func New(st *store.Store, c *cache.Cache, p provider.Provider, cfg Config) *Scheduler {
	return &Scheduler{store: st, cache: c, provider: p, cfg: cfg.withDefaults()}
}

// RunOnce performs one iteration: claim as many ready tasks as there
// are free slots, then poll every in-flight task for completion.
// Returns the number of tasks still running after the iteration, so
// callers (the Manager Loop) can decide whether to keep looping.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	for len(s.running) < s.cfg.MaxWorkers {
		claimed, err := s.claimAndDispatch(ctx)
		if err != nil {
			if err == store.ErrNotFound {
				break // nothing pending right now
			}
			return len(s.running), err
		}
		if !claimed {
			break
		}
	}
	if err := s.pollInFlight(ctx); err != nil {
		return len(s.running), err
	}
	return len(s.running), nil
}

func (s *Scheduler) claimAndDispatch(ctx context.Context) (bool, error) {
	rec, err := s.store.NextPending(ctx, s.cfg.LeaseFor)
	if err != nil {
		return false, err
	}
	spec, err := s.materialize(ctx, rec)
	if err != nil {
		// The dependency graph guarantees every dep is SUCCEEDED before a
		// task leaves WAITING, so a materialization failure here means a
		// corrupt cache entry, not a logic error -- fail the task rather
		// than the whole scheduler.
		_ = s.store.Update(ctx, rec.ID, store.StateRunning, store.StateFailed, func(r *store.Record) {
			r.Errno, r.Err = 70, fmt.Sprintf("materialize args: %v", err)
		})
		return true, nil
	}
	handle, err := s.provider.Spawn(ctx, spec)
	if err != nil {
		spawnErr := &provider.ProviderError{Reason: err.Error()}
		_ = s.store.Update(ctx, rec.ID, store.StateRunning, store.StateFailed, func(r *store.Record) {
			r.Errno, r.Err = 71, spawnErr.Error()
		})
		return true, nil
	}
	_ = s.store.Update(ctx, rec.ID, store.StateRunning, store.StateRunning, func(r *store.Record) {
		r.JobID = handle.JobID()
	})
	s.running = append(s.running, inFlight{taskID: rec.ID, handle: handle, spec: spec})
	return true, nil
}

// materialize loads every dependency's cached result, substitutes them
// into the task's argument tree, and builds the worker-facing spec.
// Per spec.md section 4.5's ordering guarantee, this only happens once
// the task has been claimed -- results are never read before then.
func (s *Scheduler) materialize(ctx context.Context, rec store.Record) (workerspec.Spec, error) {
	results := map[string]any{}
	for _, depID := range rec.DepIDs {
		dep, err := s.store.Get(ctx, depID)
		if err != nil {
			return workerspec.Spec{}, err
		}
		payload, err := s.cache.Get(dep.ResultRef)
		if err != nil {
			return workerspec.Spec{}, err
		}
		var v any
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &v); err != nil {
				return workerspec.Spec{}, err
			}
		}
		results[depID] = v
	}

	var argsNode, kwargsNode resolver.Node
	if len(rec.ArgsBlob) > 0 {
		if err := json.Unmarshal(rec.ArgsBlob, &argsNode); err != nil {
			return workerspec.Spec{}, err
		}
	}
	if len(rec.KwargsBlob) > 0 {
		if err := json.Unmarshal(rec.KwargsBlob, &kwargsNode); err != nil {
			return workerspec.Spec{}, err
		}
	}
	argsVal, err := resolver.Substitute(argsNode, results)
	if err != nil {
		return workerspec.Spec{}, err
	}
	kwargsVal, err := resolver.Substitute(kwargsNode, results)
	if err != nil {
		return workerspec.Spec{}, err
	}
	args, _ := argsVal.([]any)
	kwargs, _ := kwargsVal.(map[string]any)

	return workerspec.Spec{
		TaskID:  rec.ID,
		AppName: rec.AppName,
		Kind:    string(rec.Kind),
		Args:    args,
		Kwargs:  kwargs,
		Environ: s.cfg.Environ,
	}, nil
}

// PollOnly checks in-flight workers for completion without claiming
// any new task. Used by the Manager Loop while the queue is PAUSED,
// per spec.md section 5: "running workers finish" but no new RUNNING
// transitions occur.
func (s *Scheduler) PollOnly(ctx context.Context) (int, error) {
	if err := s.pollInFlight(ctx); err != nil {
		return len(s.running), err
	}
	return len(s.running), nil
}

func (s *Scheduler) pollInFlight(ctx context.Context) error {
	var stillRunning []inFlight
	for _, f := range s.running {
		status, err := s.provider.Poll(ctx, f.handle)
		if err != nil {
			return err
		}
		if status == provider.Running {
			stillRunning = append(stillRunning, f)
			continue
		}
		if err := s.finalize(ctx, f, status); err != nil {
			return err
		}
	}
	s.running = stillRunning
	return nil
}

func (s *Scheduler) finalize(ctx context.Context, f inFlight, status provider.Status) error {
	result, readErr := readResult(f.handle.ResultPath())
	if status == provider.Succeeded && readErr == nil && result.Errno == 0 {
		rec, err := s.store.Get(ctx, f.taskID)
		if err != nil {
			return err
		}
		if err := s.cache.Put(rec.Fingerprint, result.Payload); err != nil {
			return err
		}
		return s.store.Update(ctx, f.taskID, store.StateRunning, store.StateSucceeded, func(r *store.Record) {
			r.ResultRef = rec.Fingerprint
			r.Out, r.Err = result.Out, result.Err
		})
	}

	next := store.StateFailed
	errno, errStr, out := 1, "", ""
	switch {
	case status == provider.Killed:
		// A killed worker exits before writing a result file; trust the
		// Provider's own attribution rather than readResult's error.
		next, errno, errStr = store.StateKilled, 15, "killed by provider"
	case readErr == nil:
		errno, errStr, out = result.Errno, result.Err, result.Out
		if errno == 15 { // SIGTERM reported by the worker itself
			next = store.StateKilled
		}
	default:
		errStr = fmt.Sprintf("no result file: %v", readErr)
	}
	return s.store.Update(ctx, f.taskID, store.StateRunning, next, func(r *store.Record) {
		r.Errno, r.Err, r.Out = errno, errStr, out
	})
}

func readResult(path string) (workerspec.Result, error) {
	var r workerspec.Result
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	return r, json.Unmarshal(b, &r)
}

// Idle reports whether there is nothing running, pending or waiting,
// used by the Manager Loop's exit condition (spec.md section 4.8).
func (s *Scheduler) Idle(ctx context.Context) (bool, error) {
	if len(s.running) > 0 {
		return false, nil
	}
	pending, err := s.store.List(ctx, store.ListFilter{State: store.StatePending, Limit: 1})
	if err != nil {
		return false, err
	}
	waiting, err := s.store.List(ctx, store.ListFilter{State: store.StateWaiting, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(pending) == 0 && len(waiting) == 0, nil
}

// KillAll terminates every in-flight worker, used when the manager
// shuts down without waiting for in-flight tasks to finish.
func (s *Scheduler) KillAll(ctx context.Context) {
	for _, f := range s.running {
		_ = s.provider.Kill(ctx, f.handle)
	}
}

// NumRunning reports how many workers are currently in flight.
func (s *Scheduler) NumRunning() int { return len(s.running) }
