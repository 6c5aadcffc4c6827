// Package config loads service configuration from config.yaml with
// environment variable overrides. Secrets (PGPASSWORD, AI API keys) come
// from environment variables only.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the campaign pipeline service.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Logging
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogEncoding string `yaml:"log_encoding" env:"LOG_ENCODING" env-default:"json"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis cache for grounding packs (optional)
	Redis RedisConfig `yaml:"redis"`

	// AI provider endpoints
	AI AIConfig `yaml:"ai"`

	// Generation pipeline knobs
	Generation GenerationConfig `yaml:"generation"`

	// Grounding pipeline knobs
	Grounding GroundingConfig `yaml:"grounding"`

	// MigrationsPath is the directory golang-migrate reads from.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cip"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"campaign_pipeline"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds the optional Redis cache configuration. An empty host
// disables the cache.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds the completion and embedding provider configuration.
type AIConfig struct {
	// Provider selects the completion adapter: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`

	LLMBaseURL string `yaml:"llm_base_url" env:"AI_LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel   string `yaml:"llm_model" env:"AI_LLM_MODEL" env-default:"gpt-4o"`
	LLMAPIKey  string `yaml:"-" env:"AI_LLM_API_KEY"` // Secret - not in YAML

	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"AI_EMBEDDING_BASE_URL" env-default:""`
	EmbeddingModel   string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`

	Temperature float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.7"`
}

// EffectiveEmbeddingBaseURL falls back to the LLM endpoint when no
// dedicated embedding endpoint is configured.
func (c *AIConfig) EffectiveEmbeddingBaseURL() string {
	if c.EmbeddingBaseURL != "" {
		return c.EmbeddingBaseURL
	}
	return c.LLMBaseURL
}

// GenerationConfig bounds a single generation run.
type GenerationConfig struct {
	// ContextTokenBudget caps the assembled prompt context.
	ContextTokenBudget int `yaml:"context_token_budget" env:"GENERATION_CONTEXT_TOKEN_BUDGET" env-default:"6000"`
	// MaxOutputTokens caps completion length.
	MaxOutputTokens int `yaml:"max_output_tokens" env:"GENERATION_MAX_OUTPUT_TOKENS" env-default:"2048"`
	// Timeout cancels the completion call; partial output is still finalized.
	Timeout time.Duration `yaml:"timeout" env:"GENERATION_TIMEOUT" env-default:"120s"`
	// ConversationWindow is how many recent messages join the context.
	ConversationWindow int `yaml:"conversation_window" env:"GENERATION_CONVERSATION_WINDOW" env-default:"10"`
}

// GroundingConfig bounds grounding queries.
type GroundingConfig struct {
	// Timeout after which grounding degrades to an empty pack.
	Timeout time.Duration `yaml:"timeout" env:"GROUNDING_TIMEOUT" env-default:"5s"`
	// TopK is the maximum snippets returned per query.
	TopK int `yaml:"top_k" env:"GROUNDING_TOP_K" env-default:"8"`
	// CacheTTL for grounding packs in Redis.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"GROUNDING_CACHE_TTL" env-default:"5m"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml is absent, environment variables alone are
// used. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}
