package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAgentNotFound is returned when a roster lookup fails.
var ErrAgentNotFound = errors.New("agent not found")

// Roster holds the agents of a session by name.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRoster creates a roster from the given agents. Later agents with a
// duplicate name replace earlier ones.
func NewRoster(agents ...*Agent) *Roster {
	r := &Roster{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Add registers an agent; names must be unique.
func (r *Roster) Add(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.Name()]; ok {
		return fmt.Errorf("agent %q already registered", a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// Get returns the named agent.
func (r *Roster) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

// Has reports whether name is registered.
func (r *Roster) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Agents returns the registered agents sorted by name.
func (r *Roster) Agents() []*Agent {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(names))
	for _, n := range names {
		if a, ok := r.agents[n]; ok {
			out = append(out, a)
		}
	}
	return out
}
