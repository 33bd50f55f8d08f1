package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"morgus/internal/agent/ports"
)

const deployTimeout = 3 * time.Minute

type cloudflareDeploy struct {
	sandbox        ports.Sandbox
	store          ports.TaskStore
	taskID         string
	defaultProject string
}

// NewCloudflareDeploy builds the Cloudflare Pages deploy tool. A successful
// deploy records the published URL as a task artifact.
func NewCloudflareDeploy(sandbox ports.Sandbox, store ports.TaskStore, taskID, defaultProject string) ports.ToolExecutor {
	return &cloudflareDeploy{
		sandbox:        sandbox,
		store:          store,
		taskID:         taskID,
		defaultProject: defaultProject,
	}
}

func (t *cloudflareDeploy) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	directory := "dist"
	if d, ok := call.Arguments["directory"].(string); ok && d != "" {
		directory = d
	}
	project := t.defaultProject
	if p, ok := call.Arguments["project_name"].(string); ok && p != "" {
		project = p
	}

	command := fmt.Sprintf("npx wrangler pages publish %s --project-name=%s", directory, project)
	res, err := t.sandbox.Exec(ctx, command, deployTimeout)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("deployment failed: %w", err)}, nil
	}
	if res.ExitCode != 0 {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("deployment failed: %s", strings.TrimSpace(res.Stderr)),
		}, nil
	}

	url := extractPagesURL(res.Stdout)
	result := "Deployment successful!\n"
	if url != "" {
		result += fmt.Sprintf("URL: %s\n", url)
		artifact := &ports.Artifact{
			TaskID: t.taskID,
			Type:   "deployment",
			Name:   project,
			URL:    url,
			Metadata: map[string]any{
				"directory": directory,
			},
		}
		if err := t.store.AppendArtifact(ctx, artifact); err != nil {
			result += fmt.Sprintf("(warning: failed to record deployment artifact: %v)\n", err)
		}
	}
	result += fmt.Sprintf("\nOutput:\n%s", res.Stdout)

	return &ports.ToolResult{CallID: call.ID, Content: result}, nil
}

// extractPagesURL pulls the first pages.dev URL out of wrangler output.
func extractPagesURL(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "https://") || !strings.Contains(line, "pages.dev") {
			continue
		}
		rest := line[strings.Index(line, "https://"):]
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func (t *cloudflareDeploy) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "cloudflare_deploy",
		Description: "Deploy a static site or application to Cloudflare Pages using Wrangler",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"directory":    {Type: "string", Description: "Directory containing the built site (e.g., 'dist', 'build', '.')", Default: "dist"},
				"project_name": {Type: "string", Description: "Cloudflare Pages project name (optional, uses default if not provided)"},
			},
			Required: []string{"directory"},
		},
	}
}

func (t *cloudflareDeploy) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "cloudflare_deploy", Version: "1.0.0", Category: "deployment", Dangerous: true}
}
