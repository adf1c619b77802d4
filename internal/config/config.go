// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMConfig
	Detector() DetectorConfig
	Oracle() OracleConfig
	Repair() RepairConfig
	Store() StoreConfig
	Server() ServerConfig
	Metrics() MetricsConfig

	// Repair Setters
	SetRepairMaxAttempts(int)
	SetRepairConcurrency(int)

	// Oracle Setters
	SetOracleCommand(string)
	SetOracleRunner(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	DetectorCfg DetectorConfig `mapstructure:"detector" yaml:"detector"`
	OracleCfg   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	RepairCfg   RepairConfig   `mapstructure:"repair" yaml:"repair"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) Detector() DetectorConfig { return c.DetectorCfg }
func (c *Config) Oracle() OracleConfig     { return c.OracleCfg }
func (c *Config) Repair() RepairConfig     { return c.RepairCfg }
func (c *Config) Store() StoreConfig       { return c.StoreCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRepairMaxAttempts(n int) { c.RepairCfg.MaxAttempts = n }
func (c *Config) SetRepairConcurrency(n int) { c.RepairCfg.Concurrency = n }
func (c *Config) SetOracleCommand(cmd string) { c.OracleCfg.Command = cmd }
func (c *Config) SetOracleRunner(r string)    { c.OracleCfg.Runner = r }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the color used for each log level in console output.
// Values are ANSI color numbers ("1" red) or hex codes ("#ff8700").
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider is the backend family a model is served by.
type LLMProvider string

const (
	ProviderLlamaCPP LLMProvider = "llamacpp"
	ProviderOpenAI   LLMProvider = "openai"
	ProviderOllama   LLMProvider = "ollama"
	ProviderGemini   LLMProvider = "gemini"
)

// LLMConfig configures model routing and the shared inference limits.
type LLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// RequestsPerSecond throttles calls across all sessions. Zero disables throttling.
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	RetryMaxElapsed   time.Duration `mapstructure:"retry_max_elapsed" yaml:"retry_max_elapsed"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DetectorConfig tunes the static-analysis stage.
type DetectorConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxComplexity    int           `mapstructure:"max_complexity" yaml:"max_complexity"`
	MaxArgs          int           `mapstructure:"max_args" yaml:"max_args"`
	MaxFunctionLines int           `mapstructure:"max_function_lines" yaml:"max_function_lines"`
	// Linters lists external tools (ruff, flake8, black, govet) run alongside the rule engine.
	Linters       []string      `mapstructure:"linters" yaml:"linters"`
	LinterTimeout time.Duration `mapstructure:"linter_timeout" yaml:"linter_timeout"`
}

// DockerConfig configures the container test runner.
type DockerConfig struct {
	Image   string `mapstructure:"image" yaml:"image"`
	WorkDir string `mapstructure:"workdir" yaml:"workdir"`
	Network string `mapstructure:"network" yaml:"network"`
}

// OracleConfig configures how candidates are tested.
type OracleConfig struct {
	// Command is run through /bin/sh -c inside the sandbox. Empty selects a
	// per-language default.
	Command                string        `mapstructure:"command" yaml:"command"`
	Timeout                time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Runner                 string        `mapstructure:"runner" yaml:"runner"`
	Workspace              string        `mapstructure:"workspace" yaml:"workspace"`
	TempDir                string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	IgnoreDirs             []string      `mapstructure:"ignore_dirs" yaml:"ignore_dirs"`
	Env                    []string      `mapstructure:"env" yaml:"env"`
	KeepWorkspaceOnFailure bool          `mapstructure:"keep_workspace_on_failure" yaml:"keep_workspace_on_failure"`
	MaxOutputBytes         int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	Docker                 DockerConfig  `mapstructure:"docker" yaml:"docker"`
}

// FeedbackConfig controls how much of a failing test run is fed back into
// the next prompt.
type FeedbackConfig struct {
	Mode         string `mapstructure:"mode" yaml:"mode"`
	TailLines    int    `mapstructure:"tail_lines" yaml:"tail_lines"`
	Excerpt      bool   `mapstructure:"excerpt" yaml:"excerpt"`
	ExcerptLines int    `mapstructure:"excerpt_lines" yaml:"excerpt_lines"`
	// MaxBytes caps each pasted block of test output. Zero disables the cap.
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// BackoffConfig spaces out attempts after a generation failure.
type BackoffConfig struct {
	Initial time.Duration `mapstructure:"initial" yaml:"initial"`
	Max     time.Duration `mapstructure:"max" yaml:"max"`
}

// RepairConfig configures the attempt loop.
type RepairConfig struct {
	MaxAttempts      int            `mapstructure:"max_attempts" yaml:"max_attempts"`
	AttemptTimeout   time.Duration  `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	InferenceTimeout time.Duration  `mapstructure:"inference_timeout" yaml:"inference_timeout"`
	Concurrency      int            `mapstructure:"concurrency" yaml:"concurrency"`
	Temperature      float64        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int            `mapstructure:"max_tokens" yaml:"max_tokens"`
	StopSequences    []string       `mapstructure:"stop_sequences" yaml:"stop_sequences"`
	SystemPrompt     string         `mapstructure:"system_prompt" yaml:"system_prompt"`
	ArtifactFormat   string         `mapstructure:"artifact_format" yaml:"artifact_format"`
	Explain          bool           `mapstructure:"explain" yaml:"explain"`
	RetainSessions   int            `mapstructure:"retain_sessions" yaml:"retain_sessions"`
	Feedback         FeedbackConfig `mapstructure:"feedback" yaml:"feedback"`
	Backoff          BackoffConfig  `mapstructure:"backoff" yaml:"backoff"`
}

// StoreConfig selects the session archive backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	URL    string `mapstructure:"url" yaml:"-"`
}

// ServerConfig configures the local llama.cpp inference server.
type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Python         string        `mapstructure:"python" yaml:"python"`
	ModelsDir      string        `mapstructure:"models_dir" yaml:"models_dir"`
	LogsDir        string        `mapstructure:"logs_dir" yaml:"logs_dir"`
	PIDFile        string        `mapstructure:"pid_file" yaml:"pid_file"`
	DefaultModel   string        `mapstructure:"default_model" yaml:"default_model"`
	ContextSize    int           `mapstructure:"context_size" yaml:"context_size"`
	GPULayers      int           `mapstructure:"gpu_layers" yaml:"gpu_layers"`
	ChatFormat     string        `mapstructure:"chat_format" yaml:"chat_format"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codedoc")
	v.SetDefault("logger.log_file", "~/.codedoc/logs/codedoc.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "6")
	v.SetDefault("logger.colors.info", "2")
	v.SetDefault("logger.colors.warn", "3")
	v.SetDefault("logger.colors.error", "1")
	v.SetDefault("logger.colors.dpanic", "5")
	v.SetDefault("logger.colors.panic", "5")
	v.SetDefault("logger.colors.fatal", "5")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "local")
	v.SetDefault("llm.default_powerful_model", "local")
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.retry_max_elapsed", "30s")
	v.SetDefault("llm.models", map[string]interface{}{
		"local": map[string]interface{}{
			"provider":    string(ProviderLlamaCPP),
			"model":       "local-model",
			"api_key":     "sk-no-key-required",
			"endpoint":    "http://127.0.0.1:8000/v1",
			"api_timeout": "120s",
			"temperature": 0.2,
			"top_p":       0.95,
			"max_tokens":  4096,
		},
	})

	// -- Detector --
	v.SetDefault("detector.timeout", "10s")
	v.SetDefault("detector.max_complexity", 10)
	v.SetDefault("detector.max_args", 6)
	v.SetDefault("detector.max_function_lines", 60)
	v.SetDefault("detector.linters", []string{})
	v.SetDefault("detector.linter_timeout", "5s")

	// -- Oracle --
	v.SetDefault("oracle.command", "")
	v.SetDefault("oracle.timeout", "5m")
	v.SetDefault("oracle.runner", "local")
	v.SetDefault("oracle.workspace", "copy")
	v.SetDefault("oracle.temp_dir", "")
	v.SetDefault("oracle.ignore_dirs", []string{".git", "node_modules", "__pycache__", ".venv", "venv", ".pytest_cache", "dist", "build"})
	v.SetDefault("oracle.keep_workspace_on_failure", false)
	v.SetDefault("oracle.max_output_bytes", 256*1024)
	v.SetDefault("oracle.docker.image", "")
	v.SetDefault("oracle.docker.workdir", "/workspace")
	v.SetDefault("oracle.docker.network", "none")

	// -- Repair --
	v.SetDefault("repair.max_attempts", 3)
	v.SetDefault("repair.attempt_timeout", "10m")
	v.SetDefault("repair.inference_timeout", "2m")
	v.SetDefault("repair.concurrency", 2)
	v.SetDefault("repair.temperature", 0.2)
	v.SetDefault("repair.max_tokens", 4096)
	v.SetDefault("repair.stop_sequences", []string{})
	v.SetDefault("repair.system_prompt", "")
	v.SetDefault("repair.artifact_format", "json")
	v.SetDefault("repair.explain", false)
	v.SetDefault("repair.retain_sessions", 128)
	v.SetDefault("repair.feedback.mode", "full")
	v.SetDefault("repair.feedback.tail_lines", 80)
	v.SetDefault("repair.feedback.excerpt", true)
	v.SetDefault("repair.feedback.excerpt_lines", 5)
	v.SetDefault("repair.feedback.max_bytes", 16*1024)
	v.SetDefault("repair.backoff.initial", "500ms")
	v.SetDefault("repair.backoff.max", "10s")

	// -- Store --
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "~/.codedoc/sessions.db")
	v.SetDefault("store.url", "")

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.python", "python3")
	v.SetDefault("server.models_dir", "~/.codedoc/models")
	v.SetDefault("server.logs_dir", "~/.codedoc/logs")
	v.SetDefault("server.pid_file", "~/.codedoc/server.pid")
	v.SetDefault("server.default_model", "qwen2.5-coder-3b-instruct-q4_k_m.gguf")
	v.SetDefault("server.context_size", 16384)
	v.SetDefault("server.gpu_layers", 999)
	v.SetDefault("server.chat_format", "chatml")
	v.SetDefault("server.startup_timeout", "30s")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.url", "CODEDOC_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// API keys are never expected in the config file for hosted providers.
	for name, m := range cfg.LLMCfg.Models {
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case ProviderOpenAI:
			m.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderGemini:
			m.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		cfg.LLMCfg.Models[name] = m
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in every filesystem path setting.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.StoreCfg.Path,
		&c.ServerCfg.ModelsDir,
		&c.ServerCfg.LogsDir,
		&c.ServerCfg.PIDFile,
		&c.OracleCfg.TempDir,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.DetectorCfg.Validate(); err != nil {
		return fmt.Errorf("detector configuration invalid: %w", err)
	}
	if err := c.OracleCfg.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if err := c.RepairCfg.Validate(); err != nil {
		return fmt.Errorf("repair configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.ServerCfg.Port <= 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// Validate checks the model map and that both routing tiers resolve.
func (l *LLMConfig) Validate() error {
	if len(l.Models) == 0 {
		return fmt.Errorf("at least one model must be configured under llm.models")
	}
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		if _, ok := l.Models[name]; !ok {
			return fmt.Errorf("default model %q is not defined in llm.models", name)
		}
	}
	for name, m := range l.Models {
		switch m.Provider {
		case ProviderLlamaCPP, ProviderOllama:
			if m.Endpoint == "" {
				return fmt.Errorf("model %q: endpoint is required for provider %s", name, m.Provider)
			}
		case ProviderOpenAI, ProviderGemini:
		default:
			return fmt.Errorf("model %q: unknown provider %q", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("model %q: model name is required", name)
		}
	}
	if l.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// Validate checks the detector thresholds.
func (d *DetectorConfig) Validate() error {
	if d.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if d.MaxComplexity <= 0 || d.MaxArgs <= 0 || d.MaxFunctionLines <= 0 {
		return fmt.Errorf("max_complexity, max_args and max_function_lines must be positive")
	}
	return nil
}

// Validate checks the oracle runner and workspace strategy.
func (o *OracleConfig) Validate() error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	switch o.Runner {
	case "local":
	case "docker":
		if o.Docker.Image == "" {
			return fmt.Errorf("docker.image is required when runner is docker")
		}
	default:
		return fmt.Errorf("unknown runner %q (expected local or docker)", o.Runner)
	}
	if o.Workspace != "copy" && o.Workspace != "git" {
		return fmt.Errorf("unknown workspace strategy %q (expected copy or git)", o.Workspace)
	}
	return nil
}

// Validate checks the attempt budget and feedback policy.
func (r *RepairConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be a positive duration")
	}
	if r.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	switch r.Feedback.Mode {
	case "full", "tail", "none":
	default:
		return fmt.Errorf("unknown feedback mode %q (expected full, tail or none)", r.Feedback.Mode)
	}
	if r.Feedback.Mode == "tail" && r.Feedback.TailLines <= 0 {
		return fmt.Errorf("feedback.tail_lines must be positive when mode is tail")
	}
	if r.RetainSessions < 0 {
		return fmt.Errorf("retain_sessions must not be negative")
	}
	if r.Feedback.MaxBytes < 0 {
		return fmt.Errorf("feedback.max_bytes must not be negative")
	}
	if r.ArtifactFormat != "json" && r.ArtifactFormat != "yaml" {
		return fmt.Errorf("unknown artifact_format %q (expected json or yaml)", r.ArtifactFormat)
	}
	return nil
}

// Validate checks the archive driver.
func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case "none":
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite driver")
		}
	case "postgres":
		if s.URL == "" {
			return fmt.Errorf("url is required for the postgres driver. Ensure CODEDOC_STORE_URL is set")
		}
	default:
		return fmt.Errorf("unknown driver %q (expected sqlite, postgres or none)", s.Driver)
	}
	return nil
}
