package desipipe

import (
	"context"
	"encoding/json"
	"time"
)

// Future is the client-side reference of spec.md section 4.4:
// {queue_name, task_id, expected_fingerprint}. It is created at
// enqueue, never mutated, and dereferences by polling the backing
// record until terminal.
type Future struct {
	queue       *Queue
	taskID      string
	fingerprint string
	null        bool
}

// RefTaskID and RefFingerprint satisfy internal/resolver.FutureRef,
// letting a Future be embedded directly in another task's arguments
// without the resolver package importing this one.
func (f *Future) RefTaskID() string       { return f.taskID }
func (f *Future) RefFingerprint() string  { return f.fingerprint }

// IsNull reports whether this future came from a Skip()-marked app
// call: it was never enqueued and participates in no graph.
func (f *Future) IsNull() bool { return f.null }

// TaskID returns the backing record's id, empty for a null future.
func (f *Future) TaskID() string { return f.taskID }

const (
	pollMin = 10 * time.Millisecond
	pollMax = 1 * time.Second
)

// Result blocks until the backing record reaches a terminal state and
// returns its deserialized payload, or a *TaskFailedError if the task
// ended FAILED or KILLED. A null future resolves to (nil, nil)
// immediately.
func (f *Future) Result(ctx context.Context) (any, error) {
	if f.null {
		return nil, nil
	}
	rec, err := f.poll(ctx)
	if err != nil {
		return nil, err
	}
	if rec.State != StateSucceeded {
		return nil, &TaskFailedError{TaskID: f.taskID, Errno: rec.Errno, Err: rec.Err}
	}
	payload, err := f.queue.cache.Get(rec.Fingerprint)
	if err != nil {
		return nil, &CacheCorruptError{Fingerprint: rec.Fingerprint, Reason: err.Error()}
	}
	if len(payload) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, &CacheCorruptError{Fingerprint: rec.Fingerprint, Reason: err.Error()}
	}
	return v, nil
}

// Out blocks until terminal and returns captured stdout. A null
// future resolves to "" immediately.
func (f *Future) Out(ctx context.Context) (string, error) {
	if f.null {
		return "", nil
	}
	rec, err := f.poll(ctx)
	if err != nil {
		return "", err
	}
	if rec.State != StateSucceeded {
		return "", &TaskFailedError{TaskID: f.taskID, Errno: rec.Errno, Err: rec.Err}
	}
	return rec.Out, nil
}

// poll waits, with bounded exponential backoff capped at pollMax, for
// the record to leave WAITING/PENDING/RUNNING.
func (f *Future) poll(ctx context.Context) (TaskRecord, error) {
	return pollUntilTerminal(ctx, f.queue, f.taskID)
}
