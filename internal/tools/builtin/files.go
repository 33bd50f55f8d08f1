// Package builtin contains the tool inventory exposed to the model. Each
// tool is a thin adapter over a collaborator (sandbox, store, web) plus the
// command safety validator; tools are constructed per task.
package builtin

import (
	"context"
	"fmt"

	"morgus/internal/agent/ports"
	"morgus/internal/security"
)

const fileReadLimit = 10000

type fileRead struct {
	sandbox   ports.Sandbox
	validator *security.CommandValidator
}

func NewFileRead(sandbox ports.Sandbox, validator *security.CommandValidator) ports.ToolExecutor {
	return &fileRead{sandbox: sandbox, validator: validator}
}

func (t *fileRead) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, ok := call.Arguments["path"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'path'")}, nil
	}
	if err := t.validator.ValidatePath(path); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	content, err := t.sandbox.ReadFile(ctx, path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("could not read %s: %w", path, err)}, nil
	}
	if len(content) > fileReadLimit {
		content = content[:fileReadLimit] + fmt.Sprintf("\n\n... (truncated, total %d chars)", len(content))
	}
	return &ports.ToolResult{CallID: call.ID, Content: content}, nil
}

func (t *fileRead) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_read",
		Description: "Read the contents of a file from the project workspace",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Path to the file (relative to project root)"},
			},
			Required: []string{"path"},
		},
	}
}

func (t *fileRead) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_read", Version: "1.0.0", Category: "file_operations"}
}

type fileWrite struct {
	sandbox   ports.Sandbox
	validator *security.CommandValidator
}

func NewFileWrite(sandbox ports.Sandbox, validator *security.CommandValidator) ports.ToolExecutor {
	return &fileWrite{sandbox: sandbox, validator: validator}
}

func (t *fileWrite) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, ok := call.Arguments["path"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'path'")}, nil
	}
	content, ok := call.Arguments["content"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'content'")}, nil
	}
	if err := t.validator.ValidatePath(path); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	if err := t.sandbox.WriteFile(ctx, path, content); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to write %s: %w", path, err)}, nil
	}
	return &ports.ToolResult{
		CallID:  call.ID,
		Content: fmt.Sprintf("Successfully wrote %d characters to %s", len(content), path),
	}, nil
}

func (t *fileWrite) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_write",
		Description: "Create or overwrite a file with given content",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "Path to the file (relative to project root)"},
				"content": {Type: "string", Description: "Content to write to the file"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *fileWrite) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_write", Version: "1.0.0", Category: "file_operations"}
}

type fileAppend struct {
	sandbox   ports.Sandbox
	validator *security.CommandValidator
}

func NewFileAppend(sandbox ports.Sandbox, validator *security.CommandValidator) ports.ToolExecutor {
	return &fileAppend{sandbox: sandbox, validator: validator}
}

func (t *fileAppend) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path, ok := call.Arguments["path"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'path'")}, nil
	}
	content, ok := call.Arguments["content"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'content'")}, nil
	}
	if err := t.validator.ValidatePath(path); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	existing, err := t.sandbox.ReadFile(ctx, path)
	if err != nil {
		existing = ""
	}
	if err := t.sandbox.WriteFile(ctx, path, existing+content); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to append to %s: %w", path, err)}, nil
	}
	return &ports.ToolResult{
		CallID:  call.ID,
		Content: fmt.Sprintf("Appended %d characters to %s", len(content), path),
	}, nil
}

func (t *fileAppend) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_append",
		Description: "Append content to an existing file, creating it if absent",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "Path to the file (relative to project root)"},
				"content": {Type: "string", Description: "Content to append"},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *fileAppend) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_append", Version: "1.0.0", Category: "file_operations"}
}

type fileList struct {
	sandbox   ports.Sandbox
	validator *security.CommandValidator
}

func NewFileList(sandbox ports.Sandbox, validator *security.CommandValidator) ports.ToolExecutor {
	return &fileList{sandbox: sandbox, validator: validator}
}

func (t *fileList) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	path := "."
	if p, ok := call.Arguments["path"].(string); ok && p != "" {
		path = p
	}
	if path != "." {
		if err := t.validator.ValidatePath(path); err != nil {
			return &ports.ToolResult{CallID: call.ID, Error: err}, nil
		}
	}

	listing, err := t.sandbox.ListFiles(ctx, path)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("could not list %s: %w", path, err)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: listing}, nil
}

func (t *fileList) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "file_list",
		Description: "List files and directories in a given path",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Directory path (default: current directory)", Default: "."},
			},
		},
	}
}

func (t *fileList) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "file_list", Version: "1.0.0", Category: "file_operations"}
}
