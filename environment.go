package desipipe

import "github.com/adematti/desipipe/internal/environ"

// Environment re-exports internal/environ's type at the public API
// boundary, per spec.md section 6: "any variables set on Environment
// are exported into the worker's process environment verbatim."
// Without this alias an external caller could never construct the
// value WithEnviron expects.
type Environment = environ.Environment

// NewEnvironment returns an empty Environment ready for Set/RecordVersion,
// to be passed to WithEnviron.
func NewEnvironment() *Environment { return environ.New() }
