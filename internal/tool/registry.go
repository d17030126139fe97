package tool

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Registry maps tool names to Tool instances and enforces the allow-list.
//
// The registry is populated once at startup and read-only afterwards; the
// mutex exists because tools/call requests resolve names from parallel
// dispatcher tasks.
type Registry struct {
	log     *slog.Logger
	mu      sync.RWMutex
	tools   map[string]Tool
	allowed map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:     log.With("component", "registry"),
		tools:   make(map[string]Tool, 8),
		allowed: make(map[string]struct{}, 8),
	}
}

// Register adds a tool. Registering the same name twice overrides the
// previous tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Debug("Registering tool", "name", t.Name())
	r.tools[t.Name()] = t
}

// Allow marks names as reachable from tools/call. A registered tool that is
// never allowed exists in the schema list but cannot be invoked.
func (r *Registry) Allow(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		r.allowed[name] = struct{}{}
	}
}

// Get returns the tool for name. The boolean is false when the name is
// unregistered or not on the allow-list.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.allowed[name]; !ok {
		return nil, false
	}

	t, ok := r.tools[name]

	return t, ok
}

// Schemas returns the descriptor list for initialize and tools/list,
// sorted by name so the order is deterministic within a run.
func (r *Registry) Schemas() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	sort.Strings(names)

	result := make([]map[string]any, 0, len(names))

	for _, name := range names {
		t := r.tools[name]
		entry := map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
		}

		// Round-trip the schema through JSON so the descriptor is a plain
		// map shaped exactly as it will appear on the wire.
		if schema := t.InputSchema(); schema != nil {
			data, err := json.Marshal(schema)
			if err != nil {
				r.log.Error("Failed to marshal tool schema", "name", name, "error", err)

				continue
			}

			var schemaMap map[string]any
			if err := json.Unmarshal(data, &schemaMap); err == nil {
				entry["inputSchema"] = schemaMap
			}
		}

		result = append(result, entry)
	}

	return result
}
