package ports

import (
	"context"
	"time"
)

// ExecResult carries the outcome of one sandboxed shell invocation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Sandbox is an isolated execution environment bound to one task. All paths
// crossing this boundary are pre-validated by the command safety layer.
type Sandbox interface {
	// ID identifies the underlying container
	ID() string

	// Exec runs a shell command inside the sandbox working root
	Exec(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)

	// ReadFile returns the contents of a file relative to the working root
	ReadFile(ctx context.Context, path string) (string, error)

	// WriteFile creates or overwrites a file relative to the working root
	WriteFile(ctx context.Context, path, content string) error

	// ListFiles lists a directory relative to the working root
	ListFiles(ctx context.Context, dir string) (string, error)
}

// SandboxManager provisions and tears down sandboxes. The task orchestrator
// owns the lifecycle exclusively: at most one live handle per running task.
type SandboxManager interface {
	Create(ctx context.Context, taskID string) (Sandbox, error)
	Destroy(ctx context.Context, sb Sandbox) error
}
