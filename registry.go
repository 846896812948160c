package desipipe

import "sync"

// registry holds every app registered in this process, keyed by name.
// A worker process is the same binary re-exec'd by the Local Provider
// (spec.md section 4.7), so it re-runs the same registration code as
// the enqueuing process and finds the same apps under the same names --
// there is no cross-process code transfer, per the REDESIGN FLAGS note
// on decorator-based task declaration.
var registry = struct {
	mu   sync.RWMutex
	apps map[string]*App
}{apps: map[string]*App{}}

func registerApp(a *App) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.apps[a.name] = a
}

// lookupApp returns the app registered under name, used by RunWork to
// dispatch a worker-side task spec to its callable.
func lookupApp(name string) (*App, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	a, ok := registry.apps[name]
	return a, ok
}
