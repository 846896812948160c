package manager

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/adematti/desipipe/internal/cache"
	"github.com/adematti/desipipe/internal/provider"
	"github.com/adematti/desipipe/internal/scheduler"
	"github.com/adematti/desipipe/internal/store"
	"github.com/adematti/desipipe/internal/workerspec"
)

// noopProvider reports every spawned task as immediately Succeeded
// with an empty payload, so the manager loop can run to completion
// without a real worker process.
type noopHandle struct{ resultPath string }

func (h *noopHandle) JobID() string      { return "job" }
func (h *noopHandle) ResultPath() string { return h.resultPath }

type noopProvider struct{ dir string }

func (p *noopProvider) Spawn(ctx context.Context, spec workerspec.Spec) (provider.Handle, error) {
	path := p.dir + "/result-" + spec.TaskID + ".json"
	if err := os.WriteFile(path, []byte(`{"errno":0}`), 0o600); err != nil {
		return nil, err
	}
	return &noopHandle{resultPath: path}, nil
}
func (p *noopProvider) Poll(ctx context.Context, h provider.Handle) (provider.Status, error) {
	return provider.Succeeded, nil
}
func (p *noopProvider) Kill(ctx context.Context, h provider.Handle) error { return nil }

func TestRunExitsWhenQueueIsEmpty(t *testing.T) {
	baseDir := t.TempDir()
	st, err := store.Open(baseDir, "q")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	c, err := cache.Open(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(st, c, &noopProvider{dir: t.TempDir()}, scheduler.Config{MaxWorkers: 1})
	mgr := New(st, sched, "owner", Config{PollInterval: 5 * time.Millisecond, SweepInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Run(ctx); err != nil {
		t.Fatalf("expected Run to exit cleanly on an empty queue, got %v", err)
	}
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	baseDir := t.TempDir()
	st, err := store.Open(baseDir, "q")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.AcquireManagerLock(context.Background(), "other-owner", 1); err != nil {
		t.Fatal(err)
	}

	c, err := cache.Open(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(st, c, &noopProvider{dir: t.TempDir()}, scheduler.Config{MaxWorkers: 1})
	mgr := New(st, sched, "this-owner", Config{})

	if err := mgr.Run(context.Background()); err == nil {
		t.Fatal("expected Run to refuse to start while another owner holds the manager lock")
	}
}

func TestRunDrainsPendingTaskBeforeExiting(t *testing.T) {
	baseDir := t.TempDir()
	st, err := store.Open(baseDir, "q")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	c, err := cache.Open(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	id, err := st.Append(context.Background(), store.Record{AppName: "a", Kind: store.KindPythonApp, Fingerprint: "fp1"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	sched := scheduler.New(st, c, &noopProvider{dir: t.TempDir()}, scheduler.Config{MaxWorkers: 1})
	mgr := New(st, sched, "owner", Config{PollInterval: 5 * time.Millisecond, SweepInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Run(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != store.StateSucceeded {
		t.Fatalf("expected the pending task to be drained to SUCCEEDED before Run exits, got %s", rec.State)
	}
}
