package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"morgus/internal/agent/ports"
)

const gitCommandTimeout = 60 * time.Second

type gitInit struct {
	sandbox ports.Sandbox
}

func NewGitInit(sandbox ports.Sandbox) ports.ToolExecutor {
	return &gitInit{sandbox: sandbox}
}

func (t *gitInit) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	res, err := t.sandbox.Exec(ctx,
		"git init && git config user.name 'Morgus Agent' && git config user.email 'agent@morgus.dev'",
		gitCommandTimeout)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if res.ExitCode != 0 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("git init failed: %s", res.Stderr)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: "Git repository initialized successfully"}, nil
}

func (t *gitInit) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "git_init",
		Description: "Initialize a git repository in the current directory",
		Parameters:  ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *gitInit) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "git_init", Version: "1.0.0", Category: "git"}
}

type gitAdd struct {
	sandbox ports.Sandbox
}

func NewGitAdd(sandbox ports.Sandbox) ports.ToolExecutor {
	return &gitAdd{sandbox: sandbox}
}

func (t *gitAdd) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	res, err := t.sandbox.Exec(ctx, "git add .", gitCommandTimeout)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if res.ExitCode != 0 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("git add failed: %s", res.Stderr)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: "All changes staged successfully"}, nil
}

func (t *gitAdd) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "git_add",
		Description: "Stage all changes for commit",
		Parameters:  ports.ParameterSchema{Type: "object", Properties: map[string]ports.Property{}},
	}
}

func (t *gitAdd) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "git_add", Version: "1.0.0", Category: "git"}
}

type gitCommit struct {
	sandbox ports.Sandbox
}

func NewGitCommit(sandbox ports.Sandbox) ports.ToolExecutor {
	return &gitCommit{sandbox: sandbox}
}

func (t *gitCommit) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	message, ok := call.Arguments["message"].(string)
	if !ok || strings.TrimSpace(message) == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'message'")}, nil
	}

	escaped := strings.ReplaceAll(message, "'", `'\''`)
	res, err := t.sandbox.Exec(ctx, fmt.Sprintf("git commit -m '%s'", escaped), gitCommandTimeout)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if res.ExitCode != 0 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("git commit failed: %s", res.Stderr)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: fmt.Sprintf("Committed successfully: %s", message)}, nil
}

func (t *gitCommit) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "git_commit",
		Description: "Commit staged changes with a message",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message": {Type: "string", Description: "Commit message"},
			},
			Required: []string{"message"},
		},
	}
}

func (t *gitCommit) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "git_commit", Version: "1.0.0", Category: "git"}
}

type gitPush struct {
	sandbox ports.Sandbox
}

func NewGitPush(sandbox ports.Sandbox) ports.ToolExecutor {
	return &gitPush{sandbox: sandbox}
}

func (t *gitPush) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	remote := "origin"
	if r, ok := call.Arguments["remote"].(string); ok && r != "" {
		remote = r
	}
	branch := "main"
	if b, ok := call.Arguments["branch"].(string); ok && b != "" {
		branch = b
	}

	res, err := t.sandbox.Exec(ctx, fmt.Sprintf("git push %s %s", remote, branch), 2*gitCommandTimeout)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	if res.ExitCode != 0 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("git push failed: %s", res.Stderr)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: fmt.Sprintf("Pushed to %s/%s successfully", remote, branch)}, nil
}

func (t *gitPush) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "git_push",
		Description: "Push commits to a remote repository",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"remote": {Type: "string", Description: "Remote name (default: origin)", Default: "origin"},
				"branch": {Type: "string", Description: "Branch name (default: main)", Default: "main"},
			},
		},
	}
}

func (t *gitPush) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "git_push", Version: "1.0.0", Category: "git"}
}
