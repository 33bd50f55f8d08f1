package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morgus/internal/agent/ports"
	"morgus/internal/config"
	"morgus/internal/llm"
	"morgus/internal/storage"
)

type fakeSandbox struct {
	mu       sync.Mutex
	files    map[string]string
	commands []string
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{files: make(map[string]string)}
}

func (f *fakeSandbox) ID() string { return "fake-sandbox" }

func (f *fakeSandbox) Exec(_ context.Context, command string, _ time.Duration) (*ports.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return &ports.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

func (f *fakeSandbox) ReadFile(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return content, nil
}

func (f *fakeSandbox) WriteFile(_ context.Context, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return nil
}

func (f *fakeSandbox) ListFiles(_ context.Context, _ string) (string, error) {
	return "total 0", nil
}

type fakeSandboxManager struct {
	mu            sync.Mutex
	sandbox       *fakeSandbox
	created       int
	destroyed     int
	createErr     error
	destroyCtxErr error
}

func (m *fakeSandboxManager) Create(_ context.Context, _ string) (ports.Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	if m.sandbox == nil {
		m.sandbox = newFakeSandbox()
	}
	return m.sandbox, nil
}

func (m *fakeSandboxManager) Destroy(ctx context.Context, _ ports.Sandbox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed++
	m.destroyCtxErr = ctx.Err()
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Model:              "gpt-4o",
		Temperature:        0.7,
		MaxTokens:          4096,
		MaxIterations:      10,
		StepContentLimit:   1000,
		CommandTimeout:     time.Minute,
		PollInterval:       time.Millisecond,
		ErrorBackoff:       time.Millisecond,
		MaxConcurrentTasks: 2,
		AllowedCommands:    config.DefaultAllowedCommands,
		BlockedCommands:    config.DefaultBlockedCommands,
	}
}

func newFixture(t *testing.T, client ports.LLMClient) (*Orchestrator, *storage.MemoryStore, *fakeSandboxManager, *ports.Task) {
	t.Helper()
	store := storage.NewMemoryStore()
	task, err := store.CreateTask(context.Background(), "Hello World Website", "Create a simple hello world website", "gpt-4o")
	require.NoError(t, err)

	manager := &fakeSandboxManager{}
	orch := New(testConfig(), store, llm.NewRouter(client, nil), manager)
	return orch, store, manager, task
}

func stepKinds(steps []*ports.TaskStep) []string {
	kinds := make([]string, len(steps))
	for i, step := range steps {
		kinds[i] = step.Kind
	}
	return kinds
}

func TestExecuteTaskCompletesAllPhases(t *testing.T) {
	client := llm.NewMockClient("gpt-4o", llm.TextResponse("All done. Phase complete."))
	orch, store, manager, task := newFixture(t, client)
	ctx := context.Background()

	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusCompleted, got.Status)
	assert.Equal(t, PhaseFinalize, got.Phase)

	// One completion per phase.
	assert.Equal(t, 5, client.CallCount())
	assert.Equal(t, 1, manager.created)
	assert.Equal(t, 1, manager.destroyed)

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)

	var phases []string
	for _, step := range steps {
		if step.Kind == ports.StepPhaseStart {
			phases = append(phases, step.Phase)
		}
	}
	assert.Equal(t, []string{PhaseResearch, PhasePlan, PhaseBuild, PhaseExecute, PhaseFinalize}, phases)

	kinds := stepKinds(steps)
	assert.Equal(t, []string{
		ports.StepPhaseStart, ports.StepLLMResponse, ports.StepPhaseComplete,
		ports.StepPhaseStart, ports.StepLLMResponse, ports.StepPhaseComplete,
		ports.StepPhaseStart, ports.StepLLMResponse, ports.StepPhaseComplete,
		ports.StepPhaseStart, ports.StepLLMResponse, ports.StepPhaseComplete,
		ports.StepPhaseStart, ports.StepLLMResponse, ports.StepPhaseComplete,
	}, kinds)
}

func TestExecuteTaskIterationBudgetExhausted(t *testing.T) {
	client := llm.NewMockClient("gpt-4o", llm.TextResponse("Still thinking about it."))
	orch, store, manager, task := newFixture(t, client)
	orch.cfg.MaxIterations = 3
	ctx := context.Background()

	err := orch.ExecuteTask(ctx, task.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete within 3 iterations")

	got, getErr := store.GetTask(ctx, task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, ports.StatusError, got.Status)
	assert.Equal(t, PhaseResearch, got.Phase)

	// Exactly the budget, never more.
	assert.Equal(t, 3, client.CallCount())
	assert.Equal(t, 1, manager.destroyed)
}

func TestExecuteTaskDispatchesToolCalls(t *testing.T) {
	client := llm.NewMockClient("gpt-4o",
		llm.ToolCallResponse(ports.ToolCall{
			ID:   "call-1",
			Name: "file_write",
			Arguments: map[string]any{
				"path":    "index.html",
				"content": "<h1>Hello</h1>",
			},
		}),
		llm.TextResponse("The file is written. Phase complete."),
	)
	orch, store, manager, task := newFixture(t, client)
	ctx := context.Background()

	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	assert.Equal(t, "<h1>Hello</h1>", manager.sandbox.files["index.html"])

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)

	var toolCall, toolResult *ports.TaskStep
	for _, step := range steps {
		switch step.Kind {
		case ports.StepToolCall:
			if toolCall == nil {
				toolCall = step
			}
		case ports.StepToolResult:
			if toolResult == nil {
				toolResult = step
			}
		}
	}
	require.NotNil(t, toolCall)
	require.NotNil(t, toolResult)
	assert.Equal(t, "Tool: file_write", toolCall.Content)
	assert.Equal(t, "index.html", toolCall.Metadata["arguments"].(map[string]any)["path"])

	// The tool result also reached the model as a tool message.
	last := client.Requests[len(client.Requests)-1]
	var sawToolMessage bool
	for _, msg := range last.Messages {
		if msg.Role == "tool" && msg.ToolCallID == "call-1" {
			sawToolMessage = true
		}
	}
	assert.True(t, sawToolMessage)
}

func TestExecuteTaskTruncatesToolResultStep(t *testing.T) {
	longContent := strings.Repeat("x", 5000)
	client := llm.NewMockClient("gpt-4o",
		llm.ToolCallResponse(ports.ToolCall{
			ID:   "call-1",
			Name: "file_write",
			Arguments: map[string]any{
				"path":    "big.txt",
				"content": longContent,
			},
		}),
		llm.ToolCallResponse(ports.ToolCall{
			ID:        "call-2",
			Name:      "file_read",
			Arguments: map[string]any{"path": "big.txt"},
		}),
		llm.TextResponse("Phase complete."),
	)
	orch, store, _, task := newFixture(t, client)
	ctx := context.Background()

	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)
	for _, step := range steps {
		if step.Kind == ports.StepToolResult {
			assert.LessOrEqual(t, len(step.Content), 1000)
		}
	}
}

func TestExecuteTaskToolFailureDoesNotAbortPhase(t *testing.T) {
	client := llm.NewMockClient("gpt-4o",
		llm.ToolCallResponse(ports.ToolCall{
			ID:        "call-1",
			Name:      "no_such_tool",
			Arguments: map[string]any{},
		}),
		llm.TextResponse("Recovered. Phase complete."),
	)
	orch, store, _, task := newFixture(t, client)
	ctx := context.Background()

	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusCompleted, got.Status)

	// The error text was fed back to the model, not raised.
	second := client.Requests[1]
	var sawError bool
	for _, msg := range second.Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, "not found") {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestExecuteTaskSandboxFailureMarksError(t *testing.T) {
	client := llm.NewMockClient("gpt-4o", llm.TextResponse("Phase complete."))
	orch, store, manager, task := newFixture(t, client)
	manager.createErr = fmt.Errorf("docker daemon unreachable")
	ctx := context.Background()

	err := orch.ExecuteTask(ctx, task.ID)
	require.Error(t, err)

	got, getErr := store.GetTask(ctx, task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, ports.StatusError, got.Status)
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, 0, manager.destroyed)
}

// strictStore honors context cancellation on writes, the way a real HTTP
// backed store does.
type strictStore struct {
	*storage.MemoryStore
}

func (s *strictStore) UpdateTask(ctx context.Context, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.UpdateTask(ctx, id, fields)
}

// cancellingClient cancels the run mid-phase, simulating a shutdown signal
// arriving while a completion is in flight.
type cancellingClient struct {
	cancel context.CancelFunc
}

func (c *cancellingClient) Model() string { return "gpt-4o" }

func (c *cancellingClient) Complete(ctx context.Context, _ ports.CompletionRequest) (*ports.CompletionResponse, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestExecuteTaskCleanupSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &strictStore{storage.NewMemoryStore()}
	task, err := store.CreateTask(context.Background(), "Hello World Website", "Create a simple hello world website", "gpt-4o")
	require.NoError(t, err)

	manager := &fakeSandboxManager{}
	orch := New(testConfig(), store, llm.NewRouter(&cancellingClient{cancel: cancel}, nil), manager)

	err = orch.ExecuteTask(ctx, task.ID)
	require.Error(t, err)

	// The error status lands even though ctx is cancelled; otherwise the
	// task would be stuck in running and never re-polled.
	got, getErr := store.GetTask(context.Background(), task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, ports.StatusError, got.Status)

	// The sandbox teardown saw a live context.
	assert.Equal(t, 1, manager.destroyed)
	assert.NoError(t, manager.destroyCtxErr)
}

func TestPhasePromptsAndContinuation(t *testing.T) {
	client := llm.NewMockClient("gpt-4o",
		llm.TextResponse("Looking into it."),
		llm.TextResponse("Phase complete."),
	)
	orch, _, _, task := newFixture(t, client)
	ctx := context.Background()

	// Second scripted reply keeps repeating, completing every later phase.
	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	first := client.Requests[0]
	assert.Equal(t, "system", first.Messages[0].Role)
	assert.Contains(t, first.Messages[0].Content, "You are Morgus")

	entry := first.Messages[len(first.Messages)-1]
	assert.Equal(t, "user", entry.Role)
	assert.Contains(t, entry.Content, "Task: Hello World Website")
	assert.Contains(t, entry.Content, "Current Phase: RESEARCH")
	assert.Contains(t, entry.Content, "gather information")

	second := client.Requests[1]
	assert.Equal(t, "Continue with the task.", second.Messages[len(second.Messages)-1].Content)

	// A new phase starts with its own entry prompt again.
	third := client.Requests[2]
	assert.Contains(t, third.Messages[len(third.Messages)-1].Content, "Current Phase: PLAN")

	// All requests declare the full tool inventory.
	assert.Len(t, first.Tools, 14)
	assert.Equal(t, "auto", first.ToolChoice)
}

func TestHelloWorldTraceWithRejectedCommand(t *testing.T) {
	client := llm.NewMockClient("gpt-4o",
		llm.ToolCallResponse(
			ports.ToolCall{
				ID:   "call-1",
				Name: "file_write",
				Arguments: map[string]any{
					"path":    "index.html",
					"content": "<h1>Hi</h1>",
				},
			},
			ports.ToolCall{
				ID:        "call-2",
				Name:      "shell_exec",
				Arguments: map[string]any{"command": "sudo apt-get install x"},
			},
		),
		llm.TextResponse("Phase complete."),
	)
	orch, store, manager, task := newFixture(t, client)
	ctx := context.Background()

	require.NoError(t, orch.ExecuteTask(ctx, task.ID))

	assert.Equal(t, "<h1>Hi</h1>", manager.sandbox.files["index.html"])
	// The blocked command never reached the sandbox.
	assert.Empty(t, manager.sandbox.commands)

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)

	var results []string
	for _, step := range steps {
		if step.Kind == ports.StepToolResult {
			results = append(results, step.Content)
		}
	}
	require.Len(t, results, 2)
	assert.Contains(t, results[0], "Successfully wrote")
	assert.Contains(t, results[1], "command rejected")

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusCompleted, got.Status)
}

func TestIsPhaseComplete(t *testing.T) {
	cases := []struct {
		content string
		phase   string
		want    bool
	}{
		{"The RESEARCH phase is now over. Phase complete.", "RESEARCH", true},
		{"I am ready to proceed to the next step.", "PLAN", true},
		{"research is complete", "RESEARCH", true},
		{"Everything completed successfully!", "EXECUTE", true},
		{"Moving to next phase now.", "BUILD", true},
		{"I am finished with the setup work.", "BUILD", true},
		{"Still working on the plan.", "PLAN", false},
		{"", "RESEARCH", false},
		{"plan is complete", "RESEARCH", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isPhaseComplete(tc.content, tc.phase), "content=%q", tc.content)
	}
}

func TestServiceDispatchesPendingOnce(t *testing.T) {
	client := llm.NewMockClient("gpt-4o", llm.TextResponse("Phase complete."))
	orch, store, _, task := newFixture(t, client)
	service := NewService(orch.cfg, store, orch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			got, err := store.GetTask(context.Background(), task.ID)
			if err == nil && got.Status == ports.StatusCompleted {
				cancel()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	_ = service.Run(ctx)

	got, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusCompleted, got.Status)
	// Five phases means exactly five completions; a double dispatch would
	// have produced more.
	assert.Equal(t, 5, client.CallCount())
}
