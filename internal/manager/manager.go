// Package manager implements the Manager Loop ("spawn") of spec.md
// section 4.8: a long-lived process owning one Scheduler for one
// Queue, honoring pause/resume, and exiting cleanly when there is no
// more work or on signal.
package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adematti/desipipe/internal/scheduler"
	"github.com/adematti/desipipe/internal/store"
)

type Config struct {
	PollInterval   time.Duration
	SweepInterval  time.Duration
	Idle           time.Duration // exit after the queue has been empty this long
	WaitForInFlight bool          // on shutdown, wait for in-flight tasks instead of killing them
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
	return c
}

// Manager owns exactly one Scheduler for one Queue Store.
type Manager struct {
	st    *store.Store
	sched *scheduler.Scheduler
	owner string
	cfg   Config
}

func New(st *store.Store, sched *scheduler.Scheduler, owner string, cfg Config) *Manager {
	return &Manager{st: st, sched: sched, owner: owner, cfg: cfg.withDefaults()}
}

// Run acquires the singleton manager lock, then drives the scheduler
// until the queue is empty, paused-with-no-inflight, or ctx is
// cancelled (a caller-installed signal handler cancels ctx on
// SIGINT/SIGTERM, per spec.md section 4.8's "Exits... on signal").
func (m *Manager) Run(ctx context.Context) error {
	if err := m.st.AcquireManagerLock(ctx, m.owner, os.Getpid()); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	defer func() { _ = m.st.ReleaseManagerLock(context.Background(), m.owner) }()

	pollTicker := time.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(m.cfg.SweepInterval)
	defer sweepTicker.Stop()
	heartbeatTicker := time.NewTicker(m.cfg.PollInterval * 4)
	defer heartbeatTicker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			if !m.cfg.WaitForInFlight {
				m.sched.KillAll(context.Background())
				return nil
			}
			for m.sched.NumRunning() > 0 {
				if _, err := m.sched.PollOnly(context.Background()); err != nil {
					return err
				}
				time.Sleep(m.cfg.PollInterval)
			}
			return nil
		case <-heartbeatTicker.C:
			_ = m.st.Heartbeat(context.Background(), m.owner)
		case <-sweepTicker.C:
			_, _ = m.st.SweepExpiredLeases(ctx)
		case <-pollTicker.C:
			state, err := m.st.QueueState(ctx)
			if err != nil {
				return fmt.Errorf("manager: read queue state: %w", err)
			}
			if state == "PAUSED" {
				inFlight, err := m.sched.PollOnly(ctx)
				if err != nil {
					return err
				}
				if inFlight == 0 {
					return nil
				}
				continue
			}
			running, err := m.sched.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("manager: scheduler iteration: %w", err)
			}
			idle := false
			if running == 0 {
				if idle, err = m.sched.Idle(ctx); err != nil {
					return err
				}
			}
			if !idle {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if time.Since(idleSince) >= m.cfg.Idle {
				return nil
			}
		}
	}
}
