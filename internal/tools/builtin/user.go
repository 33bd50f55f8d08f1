package builtin

import (
	"context"
	"fmt"
	"strings"

	"morgus/internal/agent/ports"
)

type notifyUser struct {
	store  ports.TaskStore
	taskID string
	phase  func() string
}

// NewNotifyUser builds the progress notification tool. phase reports the
// task's current phase at call time so the step lands in the right bucket.
func NewNotifyUser(store ports.TaskStore, taskID string, phase func() string) ports.ToolExecutor {
	return &notifyUser{store: store, taskID: taskID, phase: phase}
}

func (t *notifyUser) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	message, ok := call.Arguments["message"].(string)
	if !ok || strings.TrimSpace(message) == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'message'")}, nil
	}

	if err := t.store.AppendStep(ctx, t.taskID, t.phase(), ports.StepUserNotification, message, nil); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to send notification: %w", err)}, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: "Notification sent to user"}, nil
}

func (t *notifyUser) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "notify_user",
		Description: "Send a progress update or notification to the user",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message": {Type: "string", Description: "Message to send to the user"},
			},
			Required: []string{"message"},
		},
	}
}

func (t *notifyUser) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "notify_user", Version: "1.0.0", Category: "user"}
}

type askUser struct {
	store  ports.TaskStore
	taskID string
	phase  func() string
}

// NewAskUser builds the user question tool. Asking a question flips the task
// to waiting_for_input; the submission API re-queues the task once an answer
// arrives.
func NewAskUser(store ports.TaskStore, taskID string, phase func() string) ports.ToolExecutor {
	return &askUser{store: store, taskID: taskID, phase: phase}
}

func (t *askUser) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	question, ok := call.Arguments["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'question'")}, nil
	}

	if err := t.store.UpdateTask(ctx, t.taskID, map[string]any{"status": ports.StatusWaitingForInput}); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to ask user: %w", err)}, nil
	}

	var metadata map[string]any
	if options, ok := call.Arguments["options"].([]any); ok && len(options) > 0 {
		metadata = map[string]any{"options": options}
	}
	if err := t.store.AppendStep(ctx, t.taskID, t.phase(), ports.StepUserQuestion, question, metadata); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to record question: %w", err)}, nil
	}

	return &ports.ToolResult{CallID: call.ID, Content: "User input requested. Task paused awaiting response."}, nil
}

func (t *askUser) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "ask_user",
		Description: "Ask the user a question and wait for their response",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"question": {Type: "string", Description: "Question to ask the user"},
				"options":  {Type: "array", Description: "Optional list of predefined options", Items: &ports.Item{Type: "string"}},
			},
			Required: []string{"question"},
		},
	}
}

func (t *askUser) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "ask_user", Version: "1.0.0", Category: "user"}
}
