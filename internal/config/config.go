package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Config is the process configuration. Values are layered: defaults, then an
// optional YAML file, then .env, then the environment.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Prompts  PromptsConfig  `koanf:"prompts"`
	Executor ExecutorConfig `koanf:"executor"`
	Logging  LoggingConfig  `koanf:"logging"`
	Upload   UploadConfig   `koanf:"upload"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	Mode            string        `koanf:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	PublicURL       string        `koanf:"public_url"`
}

type GatewayConfig struct {
	Provider        string  `koanf:"provider"` // gemini, genai, anthropic
	APIKey          string  `koanf:"api_key"`
	GeminiAPIKey    string  `koanf:"gemini_api_key"`
	GoogleAPIKey    string  `koanf:"google_api_key"`
	AnthropicAPIKey string  `koanf:"anthropic_api_key"`
	Model           string  `koanf:"model"`
	BaseURL         string  `koanf:"base_url"`
	MaxTokens       int     `koanf:"max_tokens"`
	Temperature     float32 `koanf:"temperature"`
	TopP            float32 `koanf:"top_p"`

	Breaker BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
	Interval     time.Duration `koanf:"interval"`
	OpenTimeout  time.Duration `koanf:"open_timeout"`
}

type PipelineConfig struct {
	Mode          string `koanf:"mode"` // compound or decomposed
	ItemCount     int    `koanf:"item_count"`
	DefaultLocale string `koanf:"default_locale"`
}

type PromptsConfig struct {
	// Path to a YAML template file replacing the embedded templates.
	Path string `koanf:"path"`
}

type ExecutorConfig struct {
	PoolSize       int            `koanf:"pool_size"`
	Pools          map[string]int `koanf:"pools"`
	SingleDeadline time.Duration  `koanf:"single_deadline"`
	FullDeadline   time.Duration  `koanf:"full_deadline"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type UploadConfig struct {
	MaxBytes int64 `koanf:"max_bytes"`
}

const (
	ProviderGemini    = "gemini"
	ProviderGenAI     = "genai"
	ProviderAnthropic = "anthropic"

	ModeCompound   = "compound"
	ModeDecomposed = "decomposed"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 6 * time.Minute,
		},
		Gateway: GatewayConfig{
			Provider:    ProviderGemini,
			MaxTokens:   10000,
			Temperature: 0.7,
			TopP:        0.95,
			Breaker: BreakerConfig{
				Enabled:      false,
				MinRequests:  10,
				FailureRatio: 0.6,
				Interval:     time.Minute,
				OpenTimeout:  30 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			Mode:          ModeCompound,
			ItemCount:     10,
			DefaultLocale: "en",
		},
		Executor: ExecutorConfig{
			PoolSize:       5,
			SingleDeadline: time.Minute,
			FullDeadline:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upload: UploadConfig{
			MaxBytes: 20 << 20,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// ResolvedAPIKey returns the key for the configured provider, falling back
// to the provider-specific variables. GEMINI_API_KEY wins over GOOGLE_API_KEY.
func (g GatewayConfig) ResolvedAPIKey() string {
	if g.APIKey != "" {
		return g.APIKey
	}
	if g.Provider == ProviderAnthropic {
		return g.AnthropicAPIKey
	}
	if g.GeminiAPIKey != "" {
		return g.GeminiAPIKey
	}
	return g.GoogleAPIKey
}

// DefaultModel returns the configured model or the provider default.
func (g GatewayConfig) DefaultModel() string {
	if g.Model != "" {
		return g.Model
	}
	switch g.Provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	default:
		return "gemini-2.5-flash"
	}
}

// PoolSizeFor returns the worker count for stage.
func (e ExecutorConfig) PoolSizeFor(stage models.Stage) int {
	if n, ok := e.Pools[string(stage)]; ok && n > 0 {
		return n
	}
	return e.PoolSize
}

// DeadlineFor returns the deadline for stage.
func (e ExecutorConfig) DeadlineFor(stage models.Stage) time.Duration {
	if stage == models.StageFull {
		return e.FullDeadline
	}
	return e.SingleDeadline
}

// Validate checks the configuration for values the process cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Gateway.Provider {
	case ProviderGemini, ProviderGenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("gateway.provider %q: must be one of gemini, genai, anthropic", c.Gateway.Provider))
	}
	if c.Gateway.ResolvedAPIKey() == "" {
		errs = append(errs, errors.New("gateway api key is required (GEMINI_API_KEY, GOOGLE_API_KEY, ANTHROPIC_API_KEY or RECO_GATEWAY__API_KEY)"))
	}
	if c.Gateway.MaxTokens <= 0 {
		errs = append(errs, errors.New("gateway.max_tokens must be positive"))
	}
	switch c.Pipeline.Mode {
	case ModeCompound, ModeDecomposed:
	default:
		errs = append(errs, fmt.Errorf("pipeline.mode %q: must be compound or decomposed", c.Pipeline.Mode))
	}
	if c.Pipeline.ItemCount <= 0 {
		errs = append(errs, errors.New("pipeline.item_count must be positive"))
	}
	if strings.TrimSpace(c.Pipeline.DefaultLocale) == "" {
		errs = append(errs, errors.New("pipeline.default_locale is required"))
	}
	if c.Executor.PoolSize <= 0 {
		errs = append(errs, errors.New("executor.pool_size must be positive"))
	}
	for name, n := range c.Executor.Pools {
		if !models.Stage(name).Valid() {
			errs = append(errs, fmt.Errorf("executor.pools.%s: unknown stage", name))
		}
		if n <= 0 {
			errs = append(errs, fmt.Errorf("executor.pools.%s must be positive", name))
		}
	}
	if c.Executor.SingleDeadline <= 0 || c.Executor.FullDeadline <= 0 {
		errs = append(errs, errors.New("executor deadlines must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}

	return errors.Join(errs...)
}
