package desipipe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/adematti/desipipe/internal/environ"
	"github.com/adematti/desipipe/internal/fingerprint"
	"github.com/adematti/desipipe/internal/manager"
	"github.com/adematti/desipipe/internal/provider"
	"github.com/adematti/desipipe/internal/resolver"
	"github.com/adematti/desipipe/internal/scheduler"
	"github.com/adematti/desipipe/internal/store"
)

// TaskManager is the user-facing binding of spec.md section 4.9: it
// wraps callables into Apps, captures their call arguments, enqueues
// records, and returns Futures.
type TaskManager struct {
	queue *Queue

	environ   *environ.Environment
	schedCfg  scheduler.Config
	provider  provider.Provider
	autoSpawn bool

	spawnOnce sync.Once
}

// NewTaskManager opens (or attaches to) the named queue under baseDir
// and returns a TaskManager bound to it.
func NewTaskManager(baseDir, queueName string, opts ...TMOption) (*TaskManager, error) {
	q, err := OpenQueue(baseDir, queueName)
	if err != nil {
		return nil, err
	}
	tm := &TaskManager{queue: q, environ: environ.New(), schedCfg: scheduler.Config{MaxWorkers: 1}}
	tm.apply(opts)
	return tm, nil
}

// Queue returns the TaskManager's bound queue, for pause/resume/retry
// and inspection operations that don't go through an App.
func (tm *TaskManager) Queue() *Queue { return tm.queue }

// Clone returns a sibling TaskManager sharing the same queue but with
// its own scheduler configuration, per spec.md section 4.9: "some
// declared tasks can run with e.g. one worker while others use four."
func (tm *TaskManager) Clone(opts ...TMOption) *TaskManager {
	clone := &TaskManager{
		queue:     tm.queue,
		environ:   tm.environ,
		schedCfg:  tm.schedCfg,
		provider:  tm.provider,
		autoSpawn: tm.autoSpawn,
	}
	clone.apply(opts)
	return clone
}

// PythonApp registers fn as a PYTHON_APP: calling the returned App
// enqueues a task that runs fn on a worker and captures its return
// value.
func (tm *TaskManager) PythonApp(name string, fn PythonFunc, opts ...AppOption) *App {
	a := newApp(tm, name, KindPythonApp, opts)
	a.pyFn = fn
	registerApp(a)
	return a
}

// BashApp registers fn as a BASH_APP: calling the returned App
// enqueues a task whose worker runs the argv fn returns and captures
// its stdout.
func (tm *TaskManager) BashApp(name string, fn BashFunc, opts ...AppOption) *App {
	a := newApp(tm, name, KindBashApp, opts)
	a.bashFn = fn
	registerApp(a)
	return a
}

// Call enqueues one invocation of app with args/kwargs, per the
// Task Manager protocol of spec.md section 4.9:
//  1. capture args/kwargs and the callable's identity;
//  2. walk them via the Resolver to lift embedded futures;
//  3. compute the fingerprint;
//  4. skip, cache-hit, or insert a new record; return a Future.
func (a *App) Call(ctx context.Context, args []any, kwargs map[string]any) (*Future, error) {
	return a.tm.add(ctx, a, args, kwargs)
}

func (tm *TaskManager) add(ctx context.Context, app *App, args []any, kwargs map[string]any) (*Future, error) {
	if app.skip {
		return &Future{null: true}, nil
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	argsNode, argDepIDs, argDepFps, err := resolver.Walk(args)
	if err != nil {
		return nil, &EnqueueError{Reason: fmt.Sprintf("walk args: %v", err)}
	}
	kwargsNode, kwDepIDs, kwDepFps, err := resolver.Walk(kwargs)
	if err != nil {
		return nil, &EnqueueError{Reason: fmt.Sprintf("walk kwargs: %v", err)}
	}
	depIDs, depFps := mergeDeps(argDepIDs, argDepFps, kwDepIDs, kwDepFps)

	identity := app.identity(primaryFunc(app))
	fp, err := fingerprint.Compute(identity, argsNode.Canonical(), kwargsNode.Canonical(), depFps)
	if err != nil {
		return nil, &EnqueueError{Reason: fmt.Sprintf("compute fingerprint: %v", err)}
	}

	argsBlob, err := json.Marshal(argsNode)
	if err != nil {
		return nil, &EnqueueError{Reason: fmt.Sprintf("marshal args: %v", err)}
	}
	kwargsBlob, err := json.Marshal(kwargsNode)
	if err != nil {
		return nil, &EnqueueError{Reason: fmt.Sprintf("marshal kwargs: %v", err)}
	}

	rec := store.Record{
		AppName:     app.name,
		Kind:        app.kind,
		CodeBlob:    identity,
		ArgsBlob:    argsBlob,
		KwargsBlob:  kwargsBlob,
		Fingerprint: fp,
	}
	if tm.queue.cache.Has(fp) {
		rec.State = StateSucceeded
		rec.ResultRef = fp
	}

	id, err := tm.queue.st.Append(ctx, rec, depIDs)
	if err != nil {
		return nil, &EnqueueError{Reason: err.Error()}
	}

	if rec.State != StateSucceeded && tm.autoSpawn {
		tm.maybeSpawnDetached()
	}
	return &Future{queue: tm.queue, taskID: id, fingerprint: fp}, nil
}

// Spawn runs one manager loop for this TaskManager's queue in the
// calling goroutine, blocking until the queue is idle or ctx is
// cancelled. It is the in-process equivalent of the `spawn` CLI
// command, for callers that embed desipipe as a library rather than
// shelling out, mirroring the original implementation's
// `TaskManager.spawn` delegating straight to `self.scheduler(...)`.
func (tm *TaskManager) Spawn(ctx context.Context) error {
	p := tm.provider
	if p == nil {
		specDir := filepath.Join(tm.queue.BaseDir, ".desipipe", "work", tm.queue.Name)
		local, err := provider.NewLocal(specDir)
		if err != nil {
			return err
		}
		p = local
	}
	sched := scheduler.New(tm.queue.st, tm.queue.cache, p, tm.schedulerConfig())
	owner := fmt.Sprintf("pid-%d", os.Getpid())
	mgr := manager.New(tm.queue.st, sched, owner, manager.Config{})
	return mgr.Run(ctx)
}

func primaryFunc(app *App) any {
	if app.pyFn != nil {
		return app.pyFn
	}
	return app.bashFn
}

// mergeDeps concatenates the args-tree and kwargs-tree dependency
// lists in encounter order, de-duplicating by task id. Because task
// ids are monotonic and a Future can only ever reference an
// already-committed (lower-id) task, there is no runtime cycle to
// detect here.
func mergeDeps(argIDs, argFps, kwIDs, kwFps []string) ([]string, []string) {
	seen := map[string]bool{}
	var ids, fps []string
	add := func(id, fp string) {
		if seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
		fps = append(fps, fp)
	}
	for i, id := range argIDs {
		add(id, argFps[i])
	}
	for i, id := range kwIDs {
		add(id, kwFps[i])
	}
	return ids, fps
}

// maybeSpawnDetached launches one manager in the background for this
// TaskManager's queue, per spec.md section 4.8's `spawn=True`: "a
// queue declared with spawn=True auto-launches one manager in the
// background when the first task is enqueued." It is best-effort and
// idempotent within this process; if another manager already holds
// the queue's lock, the spawned process fails to acquire it and exits.
func (tm *TaskManager) maybeSpawnDetached() {
	tm.spawnOnce.Do(func() {
		_ = SpawnDetached(tm.queue.BaseDir, tm.queue.Name)
	})
}

// SpawnDetached launches one manager loop for the named queue in the
// background, by re-execing the current binary with the
// `spawn --queue <name> --base-dir <dir>` CLI invocation. Used by
// TaskManager's spawn=True auto-launch and by the `resume --spawn`/
// `spawn --spawn` CLI flags.
func SpawnDetached(baseDir, queueName string) error {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, "spawn", "--queue", queueName, "--base-dir", baseDir)
	cmd.Stdout, cmd.Stderr = nil, nil
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
