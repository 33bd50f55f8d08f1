package orchestrator

import (
	"context"
	"fmt"

	"morgus/internal/agent/ports"
)

const continuePrompt = "Continue with the task."

// runPhase drives the agent loop for one phase. It returns (true, nil) when
// the model signals completion, (false, nil) when the iteration budget runs
// out, and a non-nil error only for infrastructure failures. Tool failures
// are fed back to the model as text and never abort the phase.
func (o *Orchestrator) runPhase(ctx context.Context, task *ports.Task, phase string, registry ports.ToolRegistry, conv *conversation) (bool, error) {
	entryPrompt := buildPhasePrompt(task, phase)

	if err := o.appendStep(ctx, task.ID, phase, ports.StepPhaseStart,
		fmt.Sprintf("Starting %s phase", phase), nil); err != nil {
		return false, err
	}

	client := o.router.ClientFor(phase)
	schemas := registry.List()

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		o.logger.Info("task %s phase %s iteration %d", task.ID, phase, iteration)

		userMessage := continuePrompt
		if iteration == 1 {
			userMessage = entryPrompt
		}

		resp, err := client.Complete(ctx, ports.CompletionRequest{
			Messages:    conv.messages(userMessage),
			Tools:       schemas,
			ToolChoice:  "auto",
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		})
		if err != nil {
			return false, fmt.Errorf("completion: %w", err)
		}

		conv.addUser(userMessage)
		conv.addAssistant(resp)

		if resp.Content != "" {
			if err := o.appendStep(ctx, task.ID, phase, ports.StepLLMResponse, resp.Content, nil); err != nil {
				return false, err
			}
		}

		if len(resp.ToolCalls) == 0 {
			if isPhaseComplete(resp.Content, phase) {
				o.logger.Info("task %s phase %s completed", task.ID, phase)
				if err := o.appendStep(ctx, task.ID, phase, ports.StepPhaseComplete,
					fmt.Sprintf("%s phase completed", phase), nil); err != nil {
					return false, err
				}
				return true, nil
			}
			continue
		}

		// Tool calls run sequentially in the order the model issued them.
		for _, call := range resp.ToolCalls {
			o.logger.Info("task %s executing tool %s", task.ID, call.Name)
			if err := o.appendStep(ctx, task.ID, phase, ports.StepToolCall,
				fmt.Sprintf("Tool: %s", call.Name),
				map[string]any{"arguments": call.Arguments}); err != nil {
				return false, err
			}

			result := registry.Dispatch(ctx, call)

			if err := o.appendStep(ctx, task.ID, phase, ports.StepToolResult,
				truncate(result, o.cfg.StepContentLimit), nil); err != nil {
				return false, err
			}
			conv.addToolResult(call.ID, result)
		}
	}

	o.logger.Warn("task %s phase %s reached max iterations", task.ID, phase)
	return false, nil
}

func (o *Orchestrator) appendStep(ctx context.Context, taskID, phase, kind, content string, metadata map[string]any) error {
	if err := o.store.AppendStep(ctx, taskID, phase, kind, content, metadata); err != nil {
		return fmt.Errorf("append %s step: %w", kind, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
