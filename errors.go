package desipipe

import (
	"fmt"

	"github.com/adematti/desipipe/internal/provider"
)

// EnqueueError wraps the invalid-callable / unserializable-argument
// failures of spec.md section 7, returned to App.Call's caller. (A cyclic
// dependency among futures cannot occur in this implementation: a
// Future only exists once its task has been committed to the store
// under a monotonic id, so an argument tree can never embed a future
// referencing the task currently being enqueued.)
type EnqueueError struct{ Reason string }

func (e *EnqueueError) Error() string { return "desipipe: enqueue failed: " + e.Reason }

// TaskFailedError is returned by Future.Result/Out when the backing
// task finished in FAILED or KILLED state.
type TaskFailedError struct {
	TaskID string
	Errno  int
	Err    string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("desipipe: task %s failed (errno=%d): %s", e.TaskID, e.Errno, e.Err)
}

// StoreUnavailableError surfaces a missing or locked queue file to CLIs.
type StoreUnavailableError struct {
	Path   string
	Reason string
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("desipipe: store %s unavailable: %s", e.Path, e.Reason)
}

// ProviderError re-exports internal/provider's type at the public API
// boundary: it marks a worker that could not be launched. The
// scheduler records the owning task FAILED with this error's text and
// continues rather than propagating it to the manager process.
type ProviderError = provider.ProviderError

// CacheCorruptError marks a cache entry that exists but fails to
// deserialize; callers should treat it as a cache miss and re-run.
type CacheCorruptError struct {
	Fingerprint string
	Reason      string
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("desipipe: cache entry %s corrupt: %s", e.Fingerprint, e.Reason)
}
