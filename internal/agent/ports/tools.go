package ports

import "context"

// ToolExecutor executes a single tool call.
type ToolExecutor interface {
	// Execute runs the tool with given arguments
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// Definition returns the tool's schema for LLM
	Definition() ToolDefinition

	// Metadata returns tool metadata
	Metadata() ToolMetadata
}

// ToolRegistry manages the tools available to one task. Registries are built
// per task and bound to that task's sandbox handle; they are never shared.
type ToolRegistry interface {
	// Register adds a tool. Registering a duplicate name is a
	// configuration error.
	Register(tool ToolExecutor) error

	// Get retrieves a tool by name
	Get(name string) (ToolExecutor, error)

	// List returns all declared tool schemas
	List() []ToolDefinition

	// Dispatch executes the named tool. Failures of any kind are
	// converted to a textual error result and never propagate.
	Dispatch(ctx context.Context, call ToolCall) string
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the execution result.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Content  string         `json:"content"`
	Error    error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolDefinition describes a tool for the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ToolMetadata contains tool information.
type ToolMetadata struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags,omitempty"`
	Dangerous bool     `json:"dangerous,omitempty"`
}

// ParameterSchema defines tool parameters (JSON Schema format).
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Items       *Item  `json:"items,omitempty"`
}

// Item describes array element types for array-typed parameters.
type Item struct {
	Type string `json:"type"`
}
