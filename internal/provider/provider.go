// Package provider abstracts over how a task's worker process is
// actually started, per spec.md section 4.7. The scheduler never
// constructs exec.Cmd or batch-submission arguments itself; it only
// calls Spawn/Poll/Kill.
package provider

import (
	"context"

	"github.com/adematti/desipipe/internal/workerspec"
)

// Status is the outcome a Provider reports for a handle.
type Status int

const (
	Running Status = iota
	Succeeded
	Failed
	// Killed is reported once a Provider can positively attribute a
	// worker's termination to its own Kill call, rather than to the
	// worker exiting on its own (Succeeded/Failed). A Provider that
	// cannot distinguish the two -- e.g. no result file either way --
	// should report Failed instead.
	Killed
)

// Handle identifies one spawned worker process to its Provider.
type Handle interface {
	// JobID is the provider-issued identifier recorded on the task
	// record (spec.md section 3's `jobid`).
	JobID() string
	// ResultPath is where the worker will write its workerspec.Result,
	// so the caller can read it back after Poll reports a terminal
	// status -- a Provider may default this itself when the Spec it
	// was given leaves it blank, so the scheduler must read it back
	// from the Handle rather than from its own copy of the Spec.
	ResultPath() string
}

// Provider is the contract of spec.md section 4.7: "spawn(task_spec) ->
// handle; poll(handle) -> {running, succeeded, failed}; kill(handle)."
// A Provider never inspects fingerprints or the queue store -- it only
// launches and observes processes.
type Provider interface {
	Spawn(ctx context.Context, spec workerspec.Spec) (Handle, error)
	Poll(ctx context.Context, h Handle) (Status, error)
	Kill(ctx context.Context, h Handle) error
}
