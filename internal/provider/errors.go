package provider

import "fmt"

// ProviderError marks a worker that could not be launched through a
// Provider. The scheduler records the owning task FAILED with this
// error's text and continues, rather than propagating it to the
// manager process.
type ProviderError struct{ Reason string }

func (e *ProviderError) Error() string { return fmt.Sprintf("provider: spawn failed: %s", e.Reason) }
