// Package runctl tracks cancellation callbacks for in-flight job runs.
// Cancellation is cooperative: it only works while a run has a callback
// registered, and there is no forced termination.
package runctl

import "sync"

type entry struct {
	ref    string
	cancel func()
}

// Registry maps job id to the active run's cancel callback. Create one at
// process start and pass it explicitly to the executor and bridge.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register installs the cancel callback for jobID's current run. ref
// identifies this particular run so a stale cleanup cannot clobber a newer
// registration.
func (r *Registry) Register(jobID, ref string, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[jobID] = entry{ref: ref, cancel: cancel}
}

// RequestCancel invokes the registered callback for jobID, if any, and
// reports whether one was present. The entry stays registered; the run's own
// cleanup removes it.
func (r *Registry) RequestCancel(jobID string) bool {
	r.mu.Lock()
	e, ok := r.entries[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Clear removes jobID's entry only if ref still matches the registered run.
func (r *Registry) Clear(jobID, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[jobID]; ok && e.ref == ref {
		delete(r.entries, jobID)
	}
}

// Active reports whether jobID currently has a registered run.
func (r *Registry) Active(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[jobID]
	return ok
}
