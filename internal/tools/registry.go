// Package tools provides the per-task tool registry and dispatch layer.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"morgus/internal/agent/ports"
	"morgus/internal/logging"
)

// Registry implements ports.ToolRegistry. One registry is built per task and
// bound to that task's sandbox handle; it is never shared across tasks.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ports.ToolExecutor
	order  []string
	logger logging.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]ports.ToolExecutor),
		logger: logging.NewComponentLogger("tool-registry"),
	}
}

// Register adds a tool. Duplicate names are a configuration error, not a
// silent overwrite.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (ports.ToolExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns schemas in registration order so the provider payload is
// stable across iterations.
func (r *Registry) List() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Dispatch executes the named tool and always returns a textual result. The
// only consumer is the next model turn, which needs a diagnosable string
// rather than a crashed phase: unknown tools, argument validation failures,
// execution errors, and panics are all converted to error text here.
func (r *Registry) Dispatch(ctx context.Context, call ports.ToolCall) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked: %v", call.Name, rec)
			result = fmt.Sprintf("Error: tool %s failed internally: %v", call.Name, rec)
		}
	}()

	tool, err := r.Get(call.Name)
	if err != nil {
		return fmt.Sprintf("Error: tool '%s' not found", call.Name)
	}

	if err := validateArguments(tool.Definition(), call.Arguments); err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
	}

	res, err := tool.Execute(ctx, call)
	if err != nil {
		r.logger.Warn("tool %s execution error: %v", call.Name, err)
		return fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}
	if res == nil {
		return fmt.Sprintf("Error: tool %s returned no result", call.Name)
	}
	if res.Error != nil {
		return fmt.Sprintf("Error executing tool %s: %v", call.Name, res.Error)
	}
	return res.Content
}

// validateArguments checks required parameters and loose JSON types against
// the declared schema before a tool ever sees the call.
func validateArguments(def ports.ToolDefinition, args map[string]any) error {
	for _, required := range def.Parameters.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("missing required parameter %q", required)
		}
	}
	for name, value := range args {
		prop, ok := def.Parameters.Properties[name]
		if !ok {
			// Unknown parameters are tolerated; the model sometimes
			// includes extras and tools ignore them.
			continue
		}
		if err := checkType(prop.Type, value); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

func checkType(schemaType string, value any) error {
	if value == nil {
		return nil
	}
	switch schemaType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "integer", "number":
		switch value.(type) {
		case float64, int, int64, json.Number:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	}
	return nil
}
