// Package tools implements the callable tool surface exposed to model agents.
// A tool is named, self-describing (JSON Schema parameters), and invoked with
// raw JSON arguments so any chat backend's tool-call payload can be passed
// through unchanged.
package tools

import (
	"context"
	"sync"
)

// Tool is a capability a model agent may invoke during its reasoning loop.
type Tool interface {
	// Name returns the identifier the model uses to call this tool.
	Name() string
	// Description tells the model what the tool does and when to use it.
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any
	// Invoke runs the tool with JSON-encoded arguments and returns a
	// textual result suitable for a tool-role message.
	Invoke(ctx context.Context, argsJSON string) (string, error)
}

// Registry holds a named set of tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry builds the standard tool set handed to model agents:
// web search (when a search client is configured) and basic arithmetic.
func DefaultRegistry(search *SearchClient) *Registry {
	r := NewRegistry()
	if search != nil {
		r.Register(&WebSearch{Client: search})
	}
	for _, t := range MathTools() {
		r.Register(t)
	}
	return r
}
