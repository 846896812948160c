// Package desipipe implements a distributed task pipeline framework
// for scientific data processing: users declare computational tasks
// (native Go functions or shell commands) that depend on each other,
// the framework records them into a persistent queue, resolves their
// dependencies, dispatches them to workers, caches their results keyed
// by code+inputs, and exposes pause/resume/retry/spawn/delete
// management operations.
package desipipe
