package desipipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adematti/desipipe/internal/cache"
	"github.com/adematti/desipipe/internal/store"
)

// Queue is a named, persistent container, per spec.md section 3: a
// store file plus a shared result cache rooted at the same base_dir.
type Queue struct {
	Name    string
	BaseDir string

	st    *store.Store
	cache *cache.Cache
}

// OpenQueue attaches to (creating if needed) the queue named name
// under baseDir.
func OpenQueue(baseDir, name string) (*Queue, error) {
	st, err := store.Open(baseDir, name)
	if err != nil {
		return nil, &StoreUnavailableError{Path: filepath.Join(baseDir, name+".sqlite"), Reason: err.Error()}
	}
	c, err := cache.Open(baseDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &Queue{Name: name, BaseDir: baseDir, st: st, cache: c}, nil
}

func (q *Queue) Close() error { return q.st.Close() }

// State returns the queue's current ACTIVE/PAUSED state.
func (q *Queue) State(ctx context.Context) (QueueState, error) {
	s, err := q.st.QueueState(ctx)
	return QueueState(s), err
}

// Pause sets the queue state PAUSED: scheduler peers stop claiming new
// tasks on their next poll, but running workers finish (spec.md §5).
func (q *Queue) Pause(ctx context.Context) error {
	return q.st.SetQueueState(ctx, string(QueuePaused))
}

// Resume sets the queue state ACTIVE. The caller is responsible for
// launching a manager if one is not already running; this mirrors the
// CLI's `resume --spawn` rather than auto-spawning from inside Resume,
// so a library caller retains control over process lifetime.
func (q *Queue) Resume(ctx context.Context) error {
	return q.st.SetQueueState(ctx, string(QueueActive))
}

// Retry moves every record in fromState back to PENDING, clearing its
// terminal fields and result_ref, per spec.md §5's `retry` operation.
func (q *Queue) Retry(ctx context.Context, fromState TaskState) (int, error) {
	return q.st.Retry(ctx, fromState)
}

// Summary counts tasks by state, backing the `queues` CLI command of
// spec.md §6.
func (q *Queue) Summary(ctx context.Context) (map[TaskState]int, error) {
	return q.st.Summary(ctx)
}

// ListTasks lists tasks matching filter, ascending by id.
func (q *Queue) ListTasks(ctx context.Context, filter ListFilter) ([]TaskRecord, error) {
	return q.st.List(ctx, filter)
}

// GetTask returns a snapshot of one task record.
func (q *Queue) GetTask(ctx context.Context, id string) (TaskRecord, error) {
	return q.st.Get(ctx, id)
}

// GetConfig, SetConfig and AllConfig expose the queue's small
// key/value config table (generalized from the teacher's
// max_retries/backoff_base pair into an arbitrary store).
func (q *Queue) GetConfig(ctx context.Context, key string) (string, bool, error) {
	return q.st.GetConfig(ctx, key)
}

func (q *Queue) SetConfig(ctx context.Context, key, value string) error {
	return q.st.SetConfig(ctx, key, value)
}

func (q *Queue) AllConfig(ctx context.Context) (map[string]string, error) {
	return q.st.AllConfig(ctx)
}

// Delete removes the queue's backing store file and closes it. Per
// spec.md §5, this also forces any running manager to exit on its
// next poll once the file disappears out from under it.
func (q *Queue) Delete(ctx context.Context) error {
	if err := q.st.Delete(ctx); err != nil {
		return err
	}
	if err := os.Remove(q.st.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListQueues returns the names of every queue under baseDir whose
// name matches glob, per the original implementation's `get_queue`
// user/queue globbing -- simplified to a single-user namespace, since
// this module has no multi-user concept (out of scope per §1).
func ListQueues(baseDir, glob string) ([]string, error) {
	if glob == "" {
		glob = "*"
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sqlite" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".sqlite")]
		ok, err := filepath.Match(glob, name)
		if err != nil {
			return nil, fmt.Errorf("desipipe: bad glob %q: %w", glob, err)
		}
		if ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// pollUntilTerminal polls a task record with bounded exponential
// backoff (capped at pollMax) until it reaches a terminal state, per
// the Future Handle suspension points of spec.md section 5.
func pollUntilTerminal(ctx context.Context, q *Queue, taskID string) (TaskRecord, error) {
	delay := pollMin
	for {
		rec, err := q.st.Get(ctx, taskID)
		if err != nil {
			return TaskRecord{}, err
		}
		if rec.State.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return TaskRecord{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > pollMax {
			delay = pollMax
		}
	}
}
