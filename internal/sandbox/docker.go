// Package sandbox manages per-task Docker containers for isolated execution.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"morgus/internal/agent/ports"
	"morgus/internal/logging"
)

const (
	containerPrefix  = "morgus-sandbox-"
	workspaceDir     = "/workspace"
	createTimeout    = 45 * time.Second
	destroyTimeout   = 30 * time.Second
	fileOpTimeout    = 30 * time.Second
	heredocDelimiter = "MORGUS_EOF"
)

// dockerCLI abstracts docker invocations so tests can substitute a fake.
type dockerCLI interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, args ...string) (string, string, int, error)
}

type execDockerCLI struct{}

func (execDockerCLI) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execDockerCLI) Run(ctx context.Context, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			exitCode = -1
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// Config carries container resource settings.
type Config struct {
	Image       string
	MemoryLimit string
	CPULimit    float64
}

// Manager implements ports.SandboxManager on top of the docker CLI.
type Manager struct {
	cli    dockerCLI
	cfg    Config
	logger logging.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.Image == "" {
		cfg.Image = "morgus-sandbox:latest"
	}
	return &Manager{
		cli:    execDockerCLI{},
		cfg:    cfg,
		logger: logging.NewComponentLogger("sandbox"),
	}
}

func newManagerWithCLI(cli dockerCLI, cfg Config) *Manager {
	m := NewManager(cfg)
	m.cli = cli
	return m
}

// Create starts a detached container for the task. The container is kept
// alive with a no-op process and torn down by Destroy.
func (m *Manager) Create(ctx context.Context, taskID string) (ports.Sandbox, error) {
	if _, err := m.cli.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker CLI not found: %w", err)
	}

	name := containerPrefix + taskID
	args := []string{
		"run", "-d",
		"--name", name,
		"--workdir", workspaceDir,
		"--network", "bridge",
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
		"--cap-add", "CHOWN", "--cap-add", "DAC_OVERRIDE", "--cap-add", "FOWNER",
		"--cap-add", "SETGID", "--cap-add", "SETUID",
		"-e", "TASK_ID=" + taskID,
		"-e", "DEBIAN_FRONTEND=noninteractive",
	}
	if m.cfg.MemoryLimit != "" {
		args = append(args, "--memory", m.cfg.MemoryLimit)
	}
	if m.cfg.CPULimit > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%.1f", m.cfg.CPULimit))
	}
	args = append(args, m.cfg.Image, "tail", "-f", "/dev/null")

	runCtx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	stdout, stderr, exitCode, err := m.cli.Run(runCtx, args...)
	if err != nil {
		return nil, fmt.Errorf("docker run: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("docker run failed: %s", strings.TrimSpace(stderr))
	}

	containerID := strings.TrimSpace(stdout)
	m.logger.Info("created sandbox container %s for task %s", name, taskID)

	return &container{
		id:   containerID,
		name: name,
		cli:  m.cli,
	}, nil
}

// Destroy stops and removes the container. It is safe to call once per
// sandbox; errors are returned but the container is force-removed best
// effort.
func (m *Manager) Destroy(ctx context.Context, sb ports.Sandbox) error {
	if sb == nil {
		return nil
	}
	c, ok := sb.(*container)
	if !ok {
		return fmt.Errorf("unexpected sandbox type %T", sb)
	}

	// Removal proceeds even when the caller's ctx is already cancelled,
	// otherwise a shutdown mid-task leaks the container.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
	defer cancel()

	if _, stderr, exitCode, err := m.cli.Run(stopCtx, "stop", "-t", "10", c.name); err != nil || exitCode != 0 {
		m.logger.Warn("docker stop %s failed: %v %s", c.name, err, strings.TrimSpace(stderr))
	}
	if _, stderr, exitCode, err := m.cli.Run(stopCtx, "rm", "-f", c.name); err != nil || exitCode != 0 {
		return fmt.Errorf("docker rm %s failed: %v %s", c.name, err, strings.TrimSpace(stderr))
	}
	m.logger.Info("cleaned up sandbox container %s", c.name)
	return nil
}

// container is one live sandbox handle.
type container struct {
	id   string
	name string
	cli  dockerCLI
}

func (c *container) ID() string {
	return c.id
}

func (c *container) Exec(ctx context.Context, command string, timeout time.Duration) (*ports.ExecResult, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := c.cli.Run(execCtx,
		"exec", "--workdir", workspaceDir, c.name, "/bin/bash", "-c", command)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", timeout)
		}
		return nil, fmt.Errorf("docker exec: %w", err)
	}
	return &ports.ExecResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

func (c *container) ReadFile(ctx context.Context, filePath string) (string, error) {
	res, err := c.Exec(ctx, fmt.Sprintf("cat %s", shellQuote(filePath)), fileOpTimeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("read %s: %s", filePath, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

func (c *container) WriteFile(ctx context.Context, filePath, content string) error {
	if dir := path.Dir(filePath); dir != "" && dir != "." {
		if res, err := c.Exec(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(dir)), fileOpTimeout); err != nil {
			return err
		} else if res.ExitCode != 0 {
			return fmt.Errorf("mkdir %s: %s", dir, strings.TrimSpace(res.Stderr))
		}
	}

	// Quoted heredoc so content is written byte for byte.
	script := fmt.Sprintf("cat > %s << '%s'\n%s\n%s",
		shellQuote(filePath), heredocDelimiter, content, heredocDelimiter)
	res, err := c.Exec(ctx, script, fileOpTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("write %s: %s", filePath, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (c *container) ListFiles(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	res, err := c.Exec(ctx, fmt.Sprintf("ls -la %s", shellQuote(dir)), fileOpTimeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("list %s: %s", dir, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
