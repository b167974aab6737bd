// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (RECALL_ prefix, plus DATABASE_URL)
//  2. Config file (~/.recall/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (database password, search API key) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, truncated to
	// 768 via OutputDimensionality to match the pgvector schema.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultHistoryMessages is the default number of prior messages loaded
	// into the model context per turn.
	DefaultHistoryMessages = 100
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider"`
	ModelName     string  `mapstructure:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host"`

	// Conversation history configuration
	HistoryMessages int `mapstructure:"history_messages"`

	// Outgoing model call budget. Zero disables the limiter.
	ModelRequestsPerMinute int `mapstructure:"model_requests_per_minute"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Web search provider (empty disables web search)
	SearchAPIKey  string `mapstructure:"search_api_key"`
	SearchBaseURL string `mapstructure:"search_base_url"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".recall"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine: defaults + env carry the load.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("history_messages", DefaultHistoryMessages)
	v.SetDefault("model_requests_per_minute", 60)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "recall")
	v.SetDefault("postgres_password", "recall_dev_password")
	v.SetDefault("postgres_db_name", "recall")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("search_base_url", "https://api.tavily.com")

	v.SetDefault("server_addr", "127.0.0.1:3400")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate checks configuration values against allowed ranges.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be 0.0-2.0)", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}
	return nil
}
