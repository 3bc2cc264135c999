package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix marks generic overrides: RECO_EXECUTOR__POOL_SIZE=8 sets
// executor.pool_size.
const EnvPrefix = "RECO_"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// envAliases maps conventional variable names onto config keys.
var envAliases = map[string]string{
	"PORT":              "server.port",
	"GIN_MODE":          "server.mode",
	"PUBLIC_URL":        "server.public_url",
	"GEMINI_API_KEY":    "gateway.gemini_api_key",
	"GOOGLE_API_KEY":    "gateway.google_api_key",
	"ANTHROPIC_API_KEY": "gateway.anthropic_api_key",
	"LLM_PROVIDER":      "gateway.provider",
	"LLM_MODEL":         "gateway.model",
	"PIPELINE_MODE":     "pipeline.mode",
	"NUMBER_OF_ITEMS":   "pipeline.item_count",
	"DEFAULT_LOCALE":    "pipeline.default_locale",
	"PROMPTS_PATH":      "prompts.path",
	"LOG_LEVEL":         "logging.level",
	"LOG_FORMAT":        "logging.format",
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile(), ".env")
}

// LoadFrom reads configuration using an explicit YAML path and .env path.
// Either may be empty or missing.
func LoadFrom(configPath, dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if dotenvPath != "" {
		// godotenv never overrides variables already present in the environment.
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform returns the config key for an environment variable, or ""
// to ignore it.
func envTransform(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}
	if rest, ok := strings.CutPrefix(name, EnvPrefix); ok && rest != "" {
		return strings.ReplaceAll(strings.ToLower(rest), "__", ".")
	}
	return ""
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
