package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"morgus/internal/agent/ports"
	"morgus/internal/config"
	"morgus/internal/llm"
	"morgus/internal/logging"
	"morgus/internal/metrics"
	"morgus/internal/orchestrator"
	"morgus/internal/sandbox"
	"morgus/internal/server"
	"morgus/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and task orchestrator",
	Long: `Starts the HTTP API for task submission and the polling service that
picks up pending tasks and executes them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.APIKey == "" {
		color.Yellow("Warning: OPENAI_API_KEY is not set; completions will fail")
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	defaultClient, err := llm.NewOpenAIClient(cfg.Model, llm.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("build LLM client: %w", err)
	}
	var codeClient ports.LLMClient
	if cfg.CodeModel != "" && cfg.CodeModel != cfg.Model {
		codeClient, err = llm.NewOpenAIClient(cfg.CodeModel, llm.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("build code LLM client: %w", err)
		}
	}
	router := llm.NewRouter(defaultClient, codeClient)

	manager := sandbox.NewManager(sandbox.Config{
		Image:       cfg.SandboxImage,
		MemoryLimit: cfg.SandboxMemoryLimit,
		CPULimit:    cfg.SandboxCPULimit,
	})

	m := metrics.New()
	orch := orchestrator.New(cfg, store, router, manager)
	orch.SetObservers(m.ObservePhase, m.ObserveTask)
	service := orchestrator.NewService(cfg, store, orch)

	api := server.New(server.Config{
		Host:         cfg.ServerHost,
		Port:         cfg.ServerPort,
		DefaultModel: cfg.Model,
		Debug:        cfg.Verbose,
	}, store, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	color.Green("Morgus orchestrator starting on %s:%d", cfg.ServerHost, cfg.ServerPort)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(ctx)
	})
	group.Go(api.Start)
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return api.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	color.Green("Morgus orchestrator stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if viper.GetBool("verbose") {
		cfg.Verbose = true
	}
	if cfg.Verbose {
		logging.SetLevel(logging.DEBUG)
	}
	return cfg, nil
}

// buildStore picks PostgREST when a store URL is configured and falls back
// to the in-process store for local runs.
func buildStore(cfg *config.Config) (ports.TaskStore, error) {
	if cfg.StoreURL == "" {
		color.Yellow("MORGUS_STORE_URL not set, using in-memory task store")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewPostgRESTStore(storage.PostgRESTConfig{
		BaseURL: cfg.StoreURL,
		APIKey:  cfg.StoreKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build task store: %w", err)
	}
	return store, nil
}
