package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v6"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreDynamoDB StoreBackend = "dynamodb"
	StoreSupabase StoreBackend = "supabase"
)

type Runtime string

const (
	RuntimeLambda Runtime = "lambda"
	RuntimeHTTP   Runtime = "http"
)

// demoKey is the placeholder credential that keeps the scripted dialogue on.
const demoKey = "demo-key"

type Config struct {
	// LLM settings
	OpenAIAPIKey      string  `env:"OPENAI_API_KEY"`
	OpenAIKeyParam    string  `env:"OPENAI_KEY_PARAM"`
	OpenAIBaseURL     string  `env:"OPENAI_BASE_URL"`
	OpenAIModel       string  `env:"OPENAI_MODEL" envDefault:"gpt-4-turbo-preview"`
	OpenAITemperature float32 `env:"OPENAI_TEMPERATURE" envDefault:"0.7"`
	OpenAIMaxTokens   int     `env:"OPENAI_MAX_TOKENS" envDefault:"500"`

	// Storage
	StoreBackend StoreBackend `env:"STORE_BACKEND" envDefault:"memory"`
	StateTable   string       `env:"STATE_TABLE"`
	SupabaseURL  string       `env:"SUPABASE_URL"`
	SupabaseKey  string       `env:"SUPABASE_KEY"`

	// Serving
	Runtime  Runtime `env:"RUNTIME" envDefault:"lambda"`
	HTTPAddr string  `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string  `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb store")
		}
	case StoreSupabase:
		if strings.TrimSpace(c.SupabaseURL) == "" || strings.TrimSpace(c.SupabaseKey) == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_KEY are required for the supabase store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.Runtime {
	case RuntimeLambda, RuntimeHTTP:
	default:
		return fmt.Errorf("config: unknown RUNTIME %q", c.Runtime)
	}

	if c.OpenAIMaxTokens <= 0 {
		return fmt.Errorf("config: OPENAI_MAX_TOKENS must be positive, got %d", c.OpenAIMaxTokens)
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("config: OPENAI_TEMPERATURE must be within 0-2, got %v", c.OpenAITemperature)
	}
	return nil
}

// DemoMode reports whether no usable model credential is configured.
func (c *Config) DemoMode() bool {
	if strings.TrimSpace(c.OpenAIKeyParam) != "" {
		return false
	}
	key := strings.TrimSpace(c.OpenAIAPIKey)
	return key == "" || key == demoKey
}

// SlogLevel maps LOG_LEVEL onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
