package config

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func noFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func fixedHome() (string, error) { return "/home/test", nil }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(
		WithEnvLookup(noEnv),
		WithFileReader(noFile),
		WithHomeDir(fixedHome),
	)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, 1000, cfg.StepContentLimit)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, 1, cfg.MaxConcurrentTasks)
	assert.Contains(t, cfg.AllowedCommands, "npm")
	assert.Contains(t, cfg.BlockedCommands, "sudo")
}

func TestLoadConfigFile(t *testing.T) {
	yaml := []byte(`
model: gpt-4o
code_model: deepseek-coder
max_iterations: 25
server_port: 9000
sandbox_memory_limit: 4g
`)
	cfg, err := Load(
		WithEnvLookup(noEnv),
		WithFileReader(func(path string) ([]byte, error) {
			assert.Equal(t, "/home/test/.morgus-config.yaml", path)
			return yaml, nil
		}),
		WithHomeDir(fixedHome),
	)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "deepseek-coder", cfg.CodeModel)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, "4g", cfg.SandboxMemoryLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		"MORGUS_MODEL":          "o1",
		"OPENAI_API_KEY":        "sk-test",
		"TAVILY_API_KEY":        "tvly-test",
		"MORGUS_POLL_INTERVAL":  "2s",
		"MORGUS_MAX_ITERATIONS": "7",
		"MORGUS_VERBOSE":        "true",
	}
	cfg, err := Load(
		WithEnvLookup(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}),
		WithFileReader(func(string) ([]byte, error) {
			return []byte("model: from-file\n"), nil
		}),
		WithHomeDir(fixedHome),
	)
	require.NoError(t, err)

	assert.Equal(t, "o1", cfg.Model)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "tvly-test", cfg.TavilyAPIKey)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.True(t, cfg.Verbose)
}

func TestLoadExplicitConfigPathMustExist(t *testing.T) {
	_, err := Load(
		WithEnvLookup(noEnv),
		WithFileReader(func(string) ([]byte, error) {
			return nil, fmt.Errorf("permission denied")
		}),
		WithConfigPath("/etc/morgus.yaml"),
		WithHomeDir(fixedHome),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/etc/morgus.yaml")
}

func TestNormalizeFallbacks(t *testing.T) {
	cfg, err := Load(
		WithEnvLookup(func(key string) (string, bool) {
			if key == "MORGUS_MAX_ITERATIONS" {
				return "-5", true
			}
			if key == "OPENAI_BASE_URL" {
				return "https://llm.internal/v1/", true
			}
			return "", false
		}),
		WithFileReader(noFile),
		WithHomeDir(fixedHome),
	)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, "https://llm.internal/v1", cfg.BaseURL)
}

func TestValidateReportsMissing(t *testing.T) {
	cfg, err := Load(
		WithEnvLookup(noEnv),
		WithFileReader(noFile),
		WithHomeDir(fixedHome),
	)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "MORGUS_STORE_URL")
}
