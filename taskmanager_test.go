package desipipe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/adematti/desipipe/internal/fingerprint"
	"github.com/adematti/desipipe/internal/resolver"
)

func newTestTaskManager(t *testing.T) *TaskManager {
	t.Helper()
	tm, err := NewTaskManager(t.TempDir(), "q")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tm.Queue().Close() })
	return tm
}

func noopFn(args []any, kwargs map[string]any) (any, error) { return nil, nil }

func TestSkipAppReturnsNullFutureWithoutEnqueuing(t *testing.T) {
	tm := newTestTaskManager(t)
	app := tm.PythonApp("skip-app", noopFn, Skip())

	fut, err := app.Call(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !fut.IsNull() {
		t.Fatal("expected a Skip()-marked app to return a null future")
	}
	v, err := fut.Result(context.Background())
	if err != nil || v != nil {
		t.Fatalf("expected a null future's Result to be (nil, nil), got (%v, %v)", v, err)
	}

	records, err := tm.Queue().ListTasks(context.Background(), ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected a skipped call to enqueue nothing, found %d records", len(records))
	}
}

func TestCallEnqueuesPendingRecordWithNoDeps(t *testing.T) {
	tm := newTestTaskManager(t)
	app := tm.PythonApp("plain-app", noopFn)

	fut, err := app.Call(context.Background(), []any{1, "x"}, map[string]any{"k": true})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := tm.Queue().GetTask(context.Background(), fut.TaskID())
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StatePending {
		t.Fatalf("expected PENDING for a dep-free call, got %s", rec.State)
	}
	if rec.AppName != "plain-app" {
		t.Fatalf("expected app_name=plain-app, got %s", rec.AppName)
	}
}

func TestCallWithPrePopulatedCacheEntrySucceedsImmediately(t *testing.T) {
	tm := newTestTaskManager(t)
	app := tm.PythonApp("cached-app", noopFn)

	args := []any{1, 2}
	kwargs := map[string]any{}
	argsNode, _, _, err := resolver.Walk(args)
	if err != nil {
		t.Fatal(err)
	}
	kwargsNode, _, _, err := resolver.Walk(kwargs)
	if err != nil {
		t.Fatal(err)
	}
	identity := app.identity(noopFn)
	fp, err := fingerprint.Compute(identity, argsNode.Canonical(), kwargsNode.Canonical(), nil)
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal("precomputed")
	if err := tm.Queue().cache.Put(fp, payload); err != nil {
		t.Fatal(err)
	}

	fut, err := app.Call(context.Background(), args, kwargs)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := tm.Queue().GetTask(context.Background(), fut.TaskID())
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != StateSucceeded {
		t.Fatalf("expected a cache hit to insert straight into SUCCEEDED, got %s", rec.State)
	}

	v, err := fut.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "precomputed" {
		t.Fatalf("expected the future to resolve to the pre-populated cache payload, got %v", v)
	}
}

func TestCallWithFutureArgumentRecordsDependencyAndWaits(t *testing.T) {
	tm := newTestTaskManager(t)
	app := tm.PythonApp("dep-app", noopFn)

	futA, err := app.Call(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	futB, err := app.Call(context.Background(), []any{futA}, nil)
	if err != nil {
		t.Fatal(err)
	}
	recB, err := tm.Queue().GetTask(context.Background(), futB.TaskID())
	if err != nil {
		t.Fatal(err)
	}
	if len(recB.DepIDs) != 1 || recB.DepIDs[0] != futA.TaskID() {
		t.Fatalf("expected recB to depend on futA, got %v", recB.DepIDs)
	}
	if recB.State != StateWaiting {
		t.Fatalf("expected WAITING while the dependency has not succeeded, got %s", recB.State)
	}
}

func TestNamedAsAliasesFingerprintAcrossDistinctFunctions(t *testing.T) {
	tm := newTestTaskManager(t)
	fnA := func(args []any, kwargs map[string]any) (any, error) { return "a", nil }
	fnB := func(args []any, kwargs map[string]any) (any, error) { return "b", nil }
	appA := tm.PythonApp("app-a", fnA, NamedAs("shared"))
	appB := tm.PythonApp("app-b", fnB, NamedAs("shared"))

	futA, err := appA.Call(context.Background(), []any{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	recA, err := tm.Queue().GetTask(context.Background(), futA.TaskID())
	if err != nil {
		t.Fatal(err)
	}

	futB, err := appB.Call(context.Background(), []any{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	recB, err := tm.Queue().GetTask(context.Background(), futB.TaskID())
	if err != nil {
		t.Fatal(err)
	}
	if recA.Fingerprint != recB.Fingerprint {
		t.Fatalf("expected two differently-implemented apps aliased under the same name and called with the same args to share a fingerprint, got %s vs %s", recA.Fingerprint, recB.Fingerprint)
	}
}

func TestCloneIsolatesSchedulerConfig(t *testing.T) {
	tm := newTestTaskManager(t)
	clone := tm.Clone(WithMaxWorkers(4))
	if tm.schedCfg.MaxWorkers == clone.schedCfg.MaxWorkers {
		t.Fatal("expected Clone to not mutate the parent's scheduler config")
	}
	if clone.schedCfg.MaxWorkers != 4 {
		t.Fatalf("expected the clone's MaxWorkers to be 4, got %d", clone.schedCfg.MaxWorkers)
	}
	if clone.Queue() != tm.Queue() {
		t.Fatal("expected Clone to share the same underlying Queue")
	}
}

func TestWithEnvironIsReachableFromThePublicAPI(t *testing.T) {
	env := NewEnvironment().Set("DESIPIPE_TEST_VAR", "1")
	tm := newTestTaskManager(t)
	clone := tm.Clone(WithEnviron(env))
	if clone.schedulerConfig().Environ["DESIPIPE_TEST_VAR"] != "1" {
		t.Fatalf("expected WithEnviron to flow into the scheduler config, got %v", clone.schedulerConfig().Environ)
	}
}

func TestFuncIdentityIsStableAcrossCalls(t *testing.T) {
	id1 := funcIdentity(noopFn)
	id2 := funcIdentity(noopFn)
	if id1 != id2 {
		t.Fatalf("expected the same function value to produce a stable identity, got %q vs %q", id1, id2)
	}
	if id1 == "" {
		t.Fatal("expected a non-empty fallback identity")
	}
}
