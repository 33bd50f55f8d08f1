package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"morgus/internal/agent/ports"
	"morgus/internal/security"
)

const shellOutputLimit = 5000

type shellExec struct {
	sandbox        ports.Sandbox
	validator      *security.CommandValidator
	defaultTimeout time.Duration
}

// NewShellExec builds the sandboxed shell tool. Commands are validated
// against the allow/block lists before they reach the sandbox; a rejected
// command never crosses the boundary.
func NewShellExec(sandbox ports.Sandbox, validator *security.CommandValidator, defaultTimeout time.Duration) ports.ToolExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &shellExec{sandbox: sandbox, validator: validator, defaultTimeout: defaultTimeout}
}

func (t *shellExec) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	command, ok := call.Arguments["command"].(string)
	if !ok {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'command'")}, nil
	}

	if err := t.validator.ValidateCommand(command); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("command rejected: %w", err)}, nil
	}

	timeout := t.defaultTimeout
	if raw, ok := call.Arguments["timeout"]; ok {
		if secs := numberToInt(raw); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	res, err := t.sandbox.Exec(ctx, command, timeout)
	if err != nil {
		// A failed invocation (including timeout) is a tool error fed
		// back to the model, not a phase failure.
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("execution failed: %w", err)}, nil
	}

	result := fmt.Sprintf("Exit code: %d\n", res.ExitCode)
	if res.Stdout != "" {
		result += fmt.Sprintf("\nStdout:\n%s", res.Stdout)
	}
	if res.Stderr != "" {
		result += fmt.Sprintf("\nStderr:\n%s", res.Stderr)
	}
	if len(result) > shellOutputLimit {
		result = result[:shellOutputLimit] + fmt.Sprintf("\n\n... (truncated, total %d chars)", len(result))
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: result,
		Metadata: map[string]any{
			"command":   command,
			"exit_code": res.ExitCode,
		},
	}, nil
}

func (t *shellExec) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "shell_exec",
		Description: "Execute a shell command in the sandbox environment. Returns stdout, stderr, and exit code.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"command": {Type: "string", Description: "Shell command to execute"},
				"timeout": {Type: "integer", Description: "Optional timeout in seconds (default: 300)", Default: 300},
			},
			Required: []string{"command"},
		},
	}
}

func (t *shellExec) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "shell_exec", Version: "1.0.0", Category: "execution", Dangerous: true}
}

func numberToInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	return 0
}
