package orchestrator

import (
	"context"
	"fmt"

	"morgus/internal/agent/ports"
	"morgus/internal/config"
	"morgus/internal/llm"
	"morgus/internal/logging"
	"morgus/internal/security"
	"morgus/internal/tools"
	"morgus/internal/tools/builtin"
)

// Orchestrator executes one task at a time through the phase sequence. It is
// safe to run multiple Orchestrators concurrently over disjoint tasks; each
// ExecuteTask call owns its own sandbox, registry and conversation.
type Orchestrator struct {
	cfg    *config.Config
	store  ports.TaskStore
	router *llm.Router
	sboxes ports.SandboxManager
	logger logging.Logger

	// metrics hooks, optional
	onPhase func(phase, outcome string)
	onTask  func(outcome string)
}

func New(cfg *config.Config, store ports.TaskStore, router *llm.Router, sboxes ports.SandboxManager) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		router: router,
		sboxes: sboxes,
		logger: logging.NewComponentLogger("orchestrator"),
	}
}

// SetObservers installs optional callbacks fired after each phase and task.
func (o *Orchestrator) SetObservers(onPhase func(phase, outcome string), onTask func(outcome string)) {
	o.onPhase = onPhase
	o.onTask = onTask
}

// ExecuteTask runs the task through RESEARCH, PLAN, BUILD, EXECUTE and
// FINALIZE in order. The task ends completed only if every phase signals
// completion; any phase failure or infrastructure error marks it error. The
// sandbox is destroyed exactly once on every path.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string) (err error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	o.logger.Info("starting task %s: %s", taskID, task.Title)

	if err := o.store.UpdateTask(ctx, taskID, map[string]any{"status": ports.StatusRunning}); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	// Teardown runs detached from ctx: a cancelled ctx (shutdown signal)
	// must still record the error status and remove the container.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err != nil {
			o.logger.Error("task %s failed: %v", taskID, err)
			if updateErr := o.store.UpdateTask(cleanupCtx, taskID, map[string]any{"status": ports.StatusError}); updateErr != nil {
				o.logger.Error("mark task %s error: %v", taskID, updateErr)
			}
			o.observeTask("error")
		}
	}()

	sb, err := o.sboxes.Create(ctx, taskID)
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		if destroyErr := o.sboxes.Destroy(cleanupCtx, sb); destroyErr != nil {
			o.logger.Error("destroy sandbox for task %s: %v", taskID, destroyErr)
		}
	}()

	currentPhase := task.Phase
	registry, err := o.buildRegistry(sb, taskID, func() string { return currentPhase })
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	conv := newConversation()

	for _, phase := range phaseOrder {
		o.logger.Info("task %s entering phase %s", taskID, phase)
		currentPhase = phase
		if err = o.store.UpdateTask(ctx, taskID, map[string]any{"phase": phase}); err != nil {
			return fmt.Errorf("set phase %s: %w", phase, err)
		}

		ok, phaseErr := o.runPhase(ctx, task, phase, registry, conv)
		if phaseErr != nil {
			o.observePhase(phase, "error")
			err = fmt.Errorf("phase %s: %w", phase, phaseErr)
			return err
		}
		if !ok {
			o.observePhase(phase, "exhausted")
			err = fmt.Errorf("phase %s did not complete within %d iterations", phase, o.cfg.MaxIterations)
			return err
		}
		o.observePhase(phase, "completed")
	}

	if err = o.store.UpdateTask(ctx, taskID, map[string]any{
		"status": ports.StatusCompleted,
		"phase":  PhaseFinalize,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	o.logger.Info("task %s completed successfully", taskID)
	o.observeTask("completed")
	return nil
}

// buildRegistry assembles the per-task tool set bound to this task's sandbox.
func (o *Orchestrator) buildRegistry(sb ports.Sandbox, taskID string, phase func() string) (ports.ToolRegistry, error) {
	validator := security.NewCommandValidator(o.cfg.AllowedCommands, o.cfg.BlockedCommands)
	registry := tools.NewRegistry()

	executors := []ports.ToolExecutor{
		builtin.NewFileRead(sb, validator),
		builtin.NewFileWrite(sb, validator),
		builtin.NewFileAppend(sb, validator),
		builtin.NewFileList(sb, validator),
		builtin.NewShellExec(sb, validator, o.cfg.CommandTimeout),
		builtin.NewGitInit(sb),
		builtin.NewGitAdd(sb),
		builtin.NewGitCommit(sb),
		builtin.NewGitPush(sb),
		builtin.NewWebSearch(o.cfg.TavilyAPIKey),
		builtin.NewWebFetch(),
		builtin.NewCloudflareDeploy(sb, o.store, taskID, o.cfg.CloudflareProject),
		builtin.NewNotifyUser(o.store, taskID, phase),
		builtin.NewAskUser(o.store, taskID, phase),
	}
	for _, executor := range executors {
		if err := registry.Register(executor); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (o *Orchestrator) observePhase(phase, outcome string) {
	if o.onPhase != nil {
		o.onPhase(phase, outcome)
	}
}

func (o *Orchestrator) observeTask(outcome string) {
	if o.onTask != nil {
		o.onTask(outcome)
	}
}
