package router

import (
	"sort"
	"sync"

	"rotabot/internal/runtime/supervisor"
)

// SupervisorRegistry tracks the running subsystem supervisors so /status
// can report on them.
type SupervisorRegistry struct {
	mu sync.RWMutex
	m  map[string]*supervisor.Supervisor
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{m: map[string]*supervisor.Supervisor{}}
}

// Set registers sup under name; a nil sup deletes the entry.
func (r *SupervisorRegistry) Set(name string, sup *supervisor.Supervisor) {
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

func (r *SupervisorRegistry) Delete(name string) { r.Set(name, nil) }

// Names returns the registered names in order.
func (r *SupervisorRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats returns the task stats of one supervisor.
func (r *SupervisorRegistry) Stats(name string) ([]supervisor.TaskStats, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	sup, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sup.Snapshot(), true
}
