// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and handed to constructors by value; nothing reads it globally.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Risk     RiskConfig     `mapstructure:"risk" yaml:"risk"`
	Git      GitConfig      `mapstructure:"git" yaml:"git"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Format      string      `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age" validate:"gte=0"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RiskConfig holds the thresholds and bonuses used to rank candidate files.
type RiskConfig struct {
	// HotFileThreshold is the change count at which a file earns HotFileBonus.
	HotFileThreshold    int `mapstructure:"hot_file_threshold" yaml:"hot_file_threshold" validate:"gte=1"`
	HotFileBonus        int `mapstructure:"hot_file_bonus" yaml:"hot_file_bonus" validate:"gte=0"`
	SecurityCommitBonus int `mapstructure:"security_commit_bonus" yaml:"security_commit_bonus" validate:"gte=0"`
	// MaxFiles caps the prioritized list. Zero disables the cap.
	MaxFiles int `mapstructure:"max_files" yaml:"max_files" validate:"gte=0"`
}

// GitConfig controls history mining.
type GitConfig struct {
	CloneDepth   int           `mapstructure:"clone_depth" yaml:"clone_depth" validate:"gte=0"`
	MaxCommits   int           `mapstructure:"max_commits" yaml:"max_commits" validate:"gte=1"`
	BlameEnabled bool          `mapstructure:"blame_enabled" yaml:"blame_enabled"`
	BlameTimeout time.Duration `mapstructure:"blame_timeout" yaml:"blame_timeout"`
}

// ScanConfig holds the per-run scan policy.
type ScanConfig struct {
	DeepScanThreshold   float64  `mapstructure:"deep_scan_threshold" yaml:"deep_scan_threshold" validate:"gte=0,lte=1"`
	ForceDeep           bool     `mapstructure:"force_deep" yaml:"force_deep"`
	MaxFileSize         int      `mapstructure:"max_file_size" yaml:"max_file_size" validate:"gt=0"`
	Extensions          []string `mapstructure:"extensions" yaml:"extensions" validate:"min=1,dive,startswith=."`
	Concurrency         int      `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1"`
	ModelCallsPerSecond float64  `mapstructure:"model_calls_per_second" yaml:"model_calls_per_second" validate:"gt=0"`
	ErrorMessageLimit   int      `mapstructure:"error_message_limit" yaml:"error_message_limit" validate:"gte=4"`
}

// SourceConfig configures how working copies are obtained.
type SourceConfig struct {
	WorkDir      string        `mapstructure:"work_dir" yaml:"work_dir"`
	CloneTimeout time.Duration `mapstructure:"clone_timeout" yaml:"clone_timeout"`
	GitHubToken  string        `mapstructure:"github_token" yaml:"-"`
}

// AgentConfig holds settings related to the model clients.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
)

// LLMRouterConfig configures the two model tiers. The top-level fields are
// defaults shared by every model; Models holds per-model overrides keyed by
// an alias (model ids contain dots, which viper treats as key separators).
type LLMRouterConfig struct {
	DefaultFastModel     string        `mapstructure:"default_fast_model" yaml:"default_fast_model" validate:"required"`
	DefaultPowerfulModel string        `mapstructure:"default_powerful_model" yaml:"default_powerful_model" validate:"required"`
	Provider             LLMProvider   `mapstructure:"provider" yaml:"provider" validate:"oneof=gemini openai ollama"`
	APIKey               string        `mapstructure:"api_key" yaml:"-"`
	Endpoint             string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout           time.Duration `mapstructure:"api_timeout" yaml:"api_timeout" validate:"gt=0"`
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=1"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
	Temperature          float32       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`

	Models map[string]LLMModelConfig `mapstructure:"models" yaml:"models" validate:"dive"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=gemini openai ollama"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ModelConfig resolves the effective configuration for a model id. An entry
// in Models matches when its alias or its Model field equals id; unset fields
// fall back to the router-level defaults.
func (r LLMRouterConfig) ModelConfig(id string) LLMModelConfig {
	resolved := LLMModelConfig{Model: id}
	for alias, m := range r.Models {
		if alias == id || m.Model == id {
			resolved = m
			break
		}
	}
	if resolved.Model == "" {
		resolved.Model = id
	}
	if resolved.Provider == "" {
		resolved.Provider = r.Provider
	}
	if resolved.APIKey == "" {
		resolved.APIKey = r.APIKey
	}
	if resolved.Endpoint == "" {
		resolved.Endpoint = r.Endpoint
	}
	if resolved.APITimeout <= 0 {
		resolved.APITimeout = r.APITimeout
	}
	if resolved.MaxRetries <= 0 {
		resolved.MaxRetries = r.MaxRetries
	}
	if resolved.RetryDelay <= 0 {
		resolved.RetryDelay = r.RetryDelay
	}
	if resolved.Temperature == 0 {
		resolved.Temperature = r.Temperature
	}
	return resolved
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration section.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codebouncer")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Risk --
	v.SetDefault("risk.hot_file_threshold", 3)
	v.SetDefault("risk.hot_file_bonus", 1)
	v.SetDefault("risk.security_commit_bonus", 2)
	v.SetDefault("risk.max_files", 50)

	// -- Git --
	v.SetDefault("git.clone_depth", 50)
	v.SetDefault("git.max_commits", 50)
	v.SetDefault("git.blame_enabled", true)
	v.SetDefault("git.blame_timeout", "10s")

	// -- Scan --
	v.SetDefault("scan.deep_scan_threshold", 0.7)
	v.SetDefault("scan.force_deep", false)
	v.SetDefault("scan.max_file_size", 50000)
	v.SetDefault("scan.extensions", []string{".py", ".js", ".ts", ".tsx", ".jsx", ".go"})
	v.SetDefault("scan.concurrency", 1)
	v.SetDefault("scan.model_calls_per_second", 1.0)
	v.SetDefault("scan.error_message_limit", 500)

	// -- Source --
	v.SetDefault("source.work_dir", "")
	v.SetDefault("source.clone_timeout", "5m")

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-3.0-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-3.0-pro")
	v.SetDefault("agent.llm.provider", string(ProviderGemini))
	v.SetDefault("agent.llm.api_timeout", "120s")
	v.SetDefault("agent.llm.max_retries", 3)
	v.SetDefault("agent.llm.retry_delay", "2s")
	v.SetDefault("agent.llm.temperature", 0.1)
}

// BindEnv binds secrets to their conventional environment variable names in
// addition to the prefixed ones picked up by AutomaticEnv.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "BOUNCER_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("agent.llm.api_key", "BOUNCER_AGENT_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("source.github_token", "BOUNCER_SOURCE_GITHUB_TOKEN", "GITHUB_TOKEN")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.Source.WorkDir, err = homedir.Expand(c.Source.WorkDir); err != nil {
		return fmt.Errorf("failed to expand source.work_dir: %w", err)
	}
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	return nil
}

// normalize lowercases extensions so allow-list lookups are case-insensitive.
func (c *Config) normalize() {
	for i, ext := range c.Scan.Extensions {
		c.Scan.Extensions[i] = strings.ToLower(strings.TrimSpace(ext))
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
