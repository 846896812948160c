package store

import (
	"context"
	"math"
	"strings"
	"time"
)

// retrier re-runs a query when SQLite reports one of the transient
// errors that show up under concurrent access from multiple managers
// and CLI invocations sharing one queue file -- the same shape as the
// original implementation's _query helper ("Perform a database query
// retrying if needed"), with exponential backoff standing in for its
// fixed timestep.
type retrier struct {
	backoffBase float64
	maxElapsed  time.Duration
}

func newRetrier() retrier {
	return retrier{backoffBase: 2.0, maxElapsed: 120 * time.Second}
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	t0 := time.Now()
	attempt := 0
	for {
		err := fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if time.Since(t0) >= r.maxElapsed {
			return err
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
}

// backoff caps at 5s per step -- a manager lock or task claim that is
// still contended after a few seconds should surface the error rather
// than stall the caller.
func (r retrier) backoff(attempt int) time.Duration {
	const maxStep = 5 * time.Second
	// Steps grow from a 100ms unit: 200ms, 400ms, 800ms, ... up to maxStep.
	units := math.Pow(r.backoffBase, float64(attempt))
	step := time.Duration(units * float64(100*time.Millisecond))
	if step > maxStep {
		step = maxStep
	}
	return step
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "busy")
}
