// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator" yaml:"evaluator"`
	Recorder  RecorderConfig  `mapstructure:"recorder" yaml:"recorder"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
}

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes how long the browser is given for page operations.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// BackendConfig configures the demo web backend event/reset API client.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// EvaluatorConfig holds the knobs recognized by the evaluation pipelines.
type EvaluatorConfig struct {
	// ChunkSize bounds the number of concurrently running browser contexts.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
	// MaxConsecutiveActionFailures trips the circuit breaker and forces a
	// final score of zero for the run.
	MaxConsecutiveActionFailures int `mapstructure:"max_consecutive_action_failures" yaml:"max_consecutive_action_failures"`
	// BrowserTimeout is the default deadline applied to each browser context.
	BrowserTimeout time.Duration `mapstructure:"browser_timeout" yaml:"browser_timeout"`
	// MaxIterations caps the number of actions an iterative agent may execute.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// StepTimeout bounds a single stateful-session action execution.
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// TaskDelay is an optional pause inserted before each solution run.
	TaskDelay            time.Duration          `mapstructure:"task_delay" yaml:"task_delay"`
	ShouldRecordGIF      bool                   `mapstructure:"should_record_gif" yaml:"should_record_gif"`
	EnableGroupingTasks  bool                   `mapstructure:"enable_grouping_tasks" yaml:"enable_grouping_tasks"`
	DebugMode            bool                   `mapstructure:"debug_mode" yaml:"debug_mode"`
	VerboseLogging       bool                   `mapstructure:"verbose_logging" yaml:"verbose_logging"`
	DynamicPhaseConfig   map[string]interface{} `mapstructure:"dynamic_phase_config" yaml:"dynamic_phase_config"`
	// TestingMode relaxes the loopback-only rule of the navigation sandbox.
	// Used by instrumented harnesses that host demo projects off-loopback.
	TestingMode bool `mapstructure:"testing_mode" yaml:"testing_mode"`
}

// RecorderConfig controls the optional GIF artifact.
type RecorderConfig struct {
	FrameDelay int `mapstructure:"frame_delay" yaml:"frame_delay"` // hundredths of a second
	LoopCount  int `mapstructure:"loop_count" yaml:"loop_count"`
	MaxFrames  int `mapstructure:"max_frames" yaml:"max_frames"`
}

// StoreConfig configures optional persistence of evaluation results.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// AgentConfig configures the built-in LLM web agent.
type AgentConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with pure defaults, but keep the failure loud.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webgym")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "500ms")

	// -- Backend --
	v.SetDefault("backend.base_url", "http://localhost:8090")
	v.SetDefault("backend.request_timeout", "10s")
	v.SetDefault("backend.rate_limit", 10.0)
	v.SetDefault("backend.max_retries", 3)

	// -- Evaluator --
	v.SetDefault("evaluator.chunk_size", 4)
	v.SetDefault("evaluator.max_consecutive_action_failures", 3)
	v.SetDefault("evaluator.browser_timeout", "120s")
	v.SetDefault("evaluator.max_iterations", 20)
	v.SetDefault("evaluator.step_timeout", "15s")
	v.SetDefault("evaluator.task_delay", "0s")
	v.SetDefault("evaluator.should_record_gif", false)
	v.SetDefault("evaluator.enable_grouping_tasks", true)
	v.SetDefault("evaluator.debug_mode", false)
	v.SetDefault("evaluator.verbose_logging", false)
	v.SetDefault("evaluator.testing_mode", false)

	// -- Recorder --
	v.SetDefault("recorder.frame_delay", 80)
	v.SetDefault("recorder.loop_count", 0)
	v.SetDefault("recorder.max_frames", 120)

	// -- Store --
	v.SetDefault("store.enabled", false)

	// -- Agent --
	v.SetDefault("agent.api_timeout", "60s")
	v.SetDefault("agent.temperature", 0.2)
	v.SetDefault("agent.max_tokens", 2048)
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment only.
	v.BindEnv("agent.api_key", "WEBGYM_AGENT_API_KEY")
	v.BindEnv("store.url", "WEBGYM_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Evaluator.ChunkSize <= 0 {
		return fmt.Errorf("evaluator.chunk_size must be a positive integer")
	}
	if c.Evaluator.MaxConsecutiveActionFailures <= 0 {
		return fmt.Errorf("evaluator.max_consecutive_action_failures must be a positive integer")
	}
	if c.Evaluator.MaxIterations <= 0 {
		return fmt.Errorf("evaluator.max_iterations must be a positive integer")
	}
	if c.Evaluator.StepTimeout <= 0 {
		return fmt.Errorf("evaluator.step_timeout must be a positive duration")
	}
	if c.Backend.RateLimit <= 0 {
		return fmt.Errorf("backend.rate_limit must be positive")
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when store.enabled is true")
	}
	return nil
}
