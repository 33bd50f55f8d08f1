package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every user-configurable setting, read once at startup.
// Precedence: defaults, then config file, then environment overrides.
type Config struct {
	// LLM
	Model       string  `yaml:"model"`
	CodeModel   string  `yaml:"code_model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Task store (PostgREST-compatible endpoint)
	StoreURL string `yaml:"store_url"`
	StoreKey string `yaml:"store_key"`

	// Web search
	TavilyAPIKey string `yaml:"tavily_api_key"`

	// Deployment
	CloudflareProject string `yaml:"cloudflare_project"`

	// Sandbox
	SandboxImage       string        `yaml:"sandbox_image"`
	SandboxMemoryLimit string        `yaml:"sandbox_memory_limit"`
	SandboxCPULimit    float64       `yaml:"sandbox_cpu_limit"`
	CommandTimeout     time.Duration `yaml:"command_timeout"`

	// Agent loop
	MaxIterations    int `yaml:"max_iterations"`
	StepContentLimit int `yaml:"step_content_limit"`

	// Polling service
	PollInterval       time.Duration `yaml:"poll_interval"`
	ErrorBackoff       time.Duration `yaml:"error_backoff"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`

	// API server
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`

	// Command safety
	AllowedCommands []string `yaml:"allowed_commands"`
	BlockedCommands []string `yaml:"blocked_commands"`

	Verbose bool `yaml:"verbose"`
}

// DefaultAllowedCommands is the build toolchain whitelist for sandboxed
// shell execution. First-token basenames must appear here verbatim.
var DefaultAllowedCommands = []string{
	"npm", "node", "pnpm", "yarn",
	"python", "python3", "pip", "pip3",
	"git", "gcc", "g++", "make",
	"wrangler", "npx", "tsc",
	"ls", "cat", "echo", "mkdir", "cd", "pwd",
	"cp", "mv", "rm", "touch", "chmod",
	"grep", "find", "sed", "awk",
}

// DefaultBlockedCommands are rejected when they appear anywhere in a command
// string. Matching is substring-based and deliberately conservative.
var DefaultBlockedCommands = []string{
	"sudo", "su", "passwd", "useradd", "usermod",
	"fdisk", "mkfs", "mount", "umount",
	"iptables", "netstat", "ifconfig",
	"reboot", "shutdown", "init",
}

type loadOptions struct {
	envLookup  func(string) (string, bool)
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	configPath string
}

// Option customizes Load, mainly for tests.
type Option func(*loadOptions)

// WithEnvLookup replaces the environment lookup function.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader replaces the file reader.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithConfigPath points Load at an explicit config file instead of the
// default search locations.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithHomeDir replaces home directory resolution.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// Load builds the runtime configuration.
func Load(opts ...Option) (*Config, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := &Config{
		Model:              "gpt-4o-mini",
		CodeModel:          "gpt-4o-mini",
		BaseURL:            "https://api.openai.com/v1",
		Temperature:        0.7,
		MaxTokens:          4096,
		CloudflareProject:  "morgus-deploy",
		SandboxImage:       "morgus-sandbox:latest",
		SandboxMemoryLimit: "2g",
		SandboxCPULimit:    2.0,
		CommandTimeout:     5 * time.Minute,
		MaxIterations:      50,
		StepContentLimit:   1000,
		PollInterval:       5 * time.Second,
		ErrorBackoff:       10 * time.Second,
		MaxConcurrentTasks: 1,
		ServerHost:         "0.0.0.0",
		ServerPort:         8000,
		AllowedCommands:    append([]string(nil), DefaultAllowedCommands...),
		BlockedCommands:    append([]string(nil), DefaultBlockedCommands...),
	}

	if err := applyFile(cfg, options); err != nil {
		return nil, err
	}
	applyEnv(cfg, options.envLookup)
	normalize(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, options loadOptions) error {
	path := options.configPath
	if path == "" {
		home, err := options.homeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".morgus-config.yaml")
	}

	data, err := options.readFile(path)
	if err != nil {
		if os.IsNotExist(err) && options.configPath == "" {
			return nil
		}
		if options.configPath == "" {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	setString(lookup, "MORGUS_MODEL", &cfg.Model)
	setString(lookup, "MORGUS_CODE_MODEL", &cfg.CodeModel)
	setString(lookup, "OPENAI_API_KEY", &cfg.APIKey)
	setString(lookup, "OPENAI_BASE_URL", &cfg.BaseURL)
	setFloat(lookup, "MORGUS_TEMPERATURE", &cfg.Temperature)
	setInt(lookup, "MORGUS_MAX_TOKENS", &cfg.MaxTokens)

	setString(lookup, "MORGUS_STORE_URL", &cfg.StoreURL)
	setString(lookup, "MORGUS_STORE_KEY", &cfg.StoreKey)
	setString(lookup, "TAVILY_API_KEY", &cfg.TavilyAPIKey)
	setString(lookup, "CLOUDFLARE_PROJECT_NAME", &cfg.CloudflareProject)

	setString(lookup, "MORGUS_SANDBOX_IMAGE", &cfg.SandboxImage)
	setString(lookup, "MORGUS_SANDBOX_MEMORY", &cfg.SandboxMemoryLimit)
	setFloat(lookup, "MORGUS_SANDBOX_CPU", &cfg.SandboxCPULimit)
	setDuration(lookup, "MORGUS_COMMAND_TIMEOUT", &cfg.CommandTimeout)

	setInt(lookup, "MORGUS_MAX_ITERATIONS", &cfg.MaxIterations)
	setInt(lookup, "MORGUS_STEP_CONTENT_LIMIT", &cfg.StepContentLimit)
	setDuration(lookup, "MORGUS_POLL_INTERVAL", &cfg.PollInterval)
	setInt(lookup, "MORGUS_MAX_CONCURRENT_TASKS", &cfg.MaxConcurrentTasks)

	setString(lookup, "MORGUS_SERVER_HOST", &cfg.ServerHost)
	setInt(lookup, "MORGUS_SERVER_PORT", &cfg.ServerPort)

	if v, ok := lookup("MORGUS_VERBOSE"); ok {
		cfg.Verbose = v == "1" || strings.EqualFold(v, "true")
	}
}

func normalize(cfg *Config) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")
	if cfg.CodeModel == "" {
		cfg.CodeModel = cfg.Model
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	if cfg.StepContentLimit <= 0 {
		cfg.StepContentLimit = 1000
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 10 * time.Second
	}
}

// Validate reports missing required settings for production use.
func (c *Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.StoreURL == "" {
		missing = append(missing, "MORGUS_STORE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setString(lookup func(string) (string, bool), key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup func(string) (string, bool), key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(lookup func(string) (string, bool), key string, dst *float64) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(lookup func(string) (string, bool), key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
