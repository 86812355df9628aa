package supervisor

import (
	"sort"
	"sync"
)

// Registry is a thread-safe set of named subsystem supervisors, read by
// /status.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]*Supervisor{}}
}

// Set registers (or replaces) a supervisor under name. A nil sup deletes it.
func (r *Registry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *Registry) Delete(name string) { r.Set(name, nil) }

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot returns the current state of every registered supervisor.
func (r *Registry) Snapshot() map[string]Snapshot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.m))
	for k, v := range r.m {
		out[k] = v.Snapshot()
	}
	return out
}
