package ports

import (
	"context"
	"time"
)

// Task status values. The orchestrator owns every transition except
// waiting_for_input, which the ask_user tool sets.
const (
	StatusPending         = "pending"
	StatusRunning         = "running"
	StatusWaitingForInput = "waiting_for_input"
	StatusCompleted       = "completed"
	StatusError           = "error"
)

// Step kinds recorded in the durable task log.
const (
	StepPhaseStart       = "PHASE_START"
	StepLLMResponse      = "LLM_RESPONSE"
	StepToolCall         = "TOOL_CALL"
	StepToolResult       = "TOOL_RESULT"
	StepPhaseComplete    = "PHASE_COMPLETE"
	StepUserNotification = "USER_NOTIFICATION"
	StepUserQuestion     = "USER_QUESTION"
)

// Task is one unit of autonomous work.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskStep is an immutable, append-only log entry. Ordering by CreatedAt is
// significant and must be preserved on read.
type TaskStep struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Phase     string         `json:"phase"`
	Kind      string         `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Artifact is an output reference produced during execution.
type Artifact struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	URL       string         `json:"url,omitempty"`
	Path      string         `json:"path,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TaskStore is the persistent task/step/artifact store. Timestamps are
// assigned by the store at write time.
type TaskStore interface {
	CreateTask(ctx context.Context, title, description, model string) (*Task, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)
	UpdateTask(ctx context.Context, taskID string, fields map[string]any) error
	ListPending(ctx context.Context) ([]*Task, error)

	AppendStep(ctx context.Context, taskID, phase, kind, content string, metadata map[string]any) error
	ListSteps(ctx context.Context, taskID string) ([]*TaskStep, error)

	AppendArtifact(ctx context.Context, artifact *Artifact) error
	ListArtifacts(ctx context.Context, taskID string) ([]*Artifact, error)
}
