package ai

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is a hosted capability the model may call during a completion.
type Tool struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
}

// ToolRegistry holds the hosted tools and which of them are switched on.
type ToolRegistry struct {
	mu    sync.Mutex
	tools []Tool
}

// NewToolRegistry returns a registry with every known tool disabled.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: []Tool{
		{ID: "google_search", Name: "Google Search", Description: "Search the web for up-to-date information."},
		{ID: "code_execution", Name: "Code Execution", Description: "Write and run Python code to compute answers."},
		{ID: "url_context", Name: "URL Context", Description: "Read the content of URLs mentioned in the prompt."},
	}}
}

// Tools returns a snapshot of all registered tools.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tool(nil), r.tools...)
}

// Toggle flips the tool and returns its new state.
func (r *ToolRegistry) Toggle(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tools {
		if r.tools[i].ID == id {
			r.tools[i].Enabled = !r.tools[i].Enabled
			return r.tools[i].Enabled, nil
		}
	}
	return false, fmt.Errorf("no tool found with id: %s", id)
}

// Enable switches on exactly the given tools and switches off the rest.
func (r *ToolRegistry) Enable(ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tools {
		r.tools[i].Enabled = want[r.tools[i].ID]
	}
}

// Enabled returns the IDs of the enabled tools, in registry order.
func (r *ToolRegistry) Enabled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, t := range r.tools {
		if t.Enabled {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// EnabledNames returns the display names of the enabled tools.
func (r *ToolRegistry) EnabledNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, t := range r.tools {
		if t.Enabled {
			names = append(names, t.Name)
		}
	}
	return names
}

// Reset disables every tool.
func (r *ToolRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tools {
		r.tools[i].Enabled = false
	}
}

// toolSpec returns the generateContent tool declaration for id.
func toolSpec(id string) (json.RawMessage, error) {
	switch id {
	case "google_search", "code_execution", "url_context":
		return json.RawMessage(fmt.Sprintf(`{%q:{}}`, id)), nil
	}
	return nil, fmt.Errorf("unknown tool: %s", id)
}
