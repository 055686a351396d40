package toolrouter

import (
	"fmt"
	"sync/atomic"

	"github.com/pandora-run/pandora/internal/agent"
)

// Registry holds the set of tools the router can dispatch to. It is
// populated at startup; runtime registration is allowed but requires an
// atomic swap of the registry pointer, so in-flight Execute calls
// always see a consistent snapshot.
type Registry struct {
	tools atomic.Pointer[map[string]agent.Tool]
}

// NewRegistry builds a Registry from the given tools, keyed by Name().
func NewRegistry(tools ...agent.Tool) *Registry {
	r := &Registry{}
	r.Replace(tools...)
	return r
}

// Replace atomically swaps in a new tool set.
func (r *Registry) Replace(tools ...agent.Tool) {
	m := make(map[string]agent.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	r.tools.Store(&m)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (agent.Tool, bool) {
	m := r.tools.Load()
	if m == nil {
		return nil, false
	}
	t, ok := (*m)[name]
	return t, ok
}

// List returns every registered tool, for presenting to the LLM or CLI.
func (r *Registry) List() []agent.Tool {
	m := r.tools.Load()
	if m == nil {
		return nil
	}
	out := make([]agent.Tool, 0, len(*m))
	for _, t := range *m {
		out = append(out, t)
	}
	return out
}

func (r *Registry) mustGet(name string) (agent.Tool, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not registered: %s", name)
	}
	return t, nil
}
