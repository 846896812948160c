package desipipe

import "github.com/adematti/desipipe/internal/store"

// TaskState and QueueState re-export the store's state vocabulary at
// the public API boundary, so callers never need to import internal/store.
type TaskState = store.State

const (
	StateWaiting   = store.StateWaiting
	StatePending   = store.StatePending
	StateRunning   = store.StateRunning
	StateSucceeded = store.StateSucceeded
	StateFailed    = store.StateFailed
	StateKilled    = store.StateKilled
	StateUnknown   = store.StateUnknown
)

// AllTaskStates lists every task state, per spec.md section 3's DAG.
var AllTaskStates = store.AllStates

type QueueState string

const (
	QueueActive QueueState = "ACTIVE"
	QueuePaused QueueState = "PAUSED"
)

// TaskRecord is the public view of a queue store record, returned by
// Queue.ListTasks and Queue.GetTask.
type TaskRecord = store.Record

// ListFilter selects a subset of tasks for Queue.ListTasks.
type ListFilter = store.ListFilter

// Kind distinguishes a native-function app from a shell-command app.
type Kind = store.Kind

const (
	KindPythonApp = store.KindPythonApp
	KindBashApp   = store.KindBashApp
)
