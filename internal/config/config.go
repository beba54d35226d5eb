package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultMatchThreshold is the default minimum similarity score for a
	// duplicate candidate.
	DefaultMatchThreshold = 0.7

	// DefaultMaxResults is the default candidate count returned per
	// duplicate scan.
	DefaultMaxResults = 5
)

// Config holds all configuration for tami-graph.
type Config struct {
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Claude   ClaudeConfig   `mapstructure:"claude"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// PostgresConfig holds the relational mirror settings. An empty DSN
// disables the mirror entirely.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EmbedderConfig holds embedding service settings. Provider is "ollama",
// "openai", or "none".
type EmbedderConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ClaudeConfig holds Anthropic Claude API settings for disambiguation.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	masked := maskAPIKey(c.APIKey)
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", masked, c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// MatcherConfig holds the default duplicate-scan parameters. Per-request
// options override these; both are clamped the same way.
type MatcherConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	MaxResults    int     `mapstructure:"max_results"`
	SkipExpensive bool    `mapstructure:"skip_expensive"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("embedder.provider", "ollama")
	v.SetDefault("embedder.base_url", "http://localhost:11434")
	v.SetDefault("embedder.model", "nomic-embed-text")
	v.SetDefault("embedder.dimensions", 768)

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("matcher.threshold", DefaultMatchThreshold)
	v.SetDefault("matcher.max_results", DefaultMaxResults)
	v.SetDefault("matcher.skip_expensive", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".tami-graph"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("TAMI_GRAPH")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("embedder.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("neo4j.uri", "TAMI_GRAPH_NEO4J_URI")
	_ = v.BindEnv("neo4j.username", "TAMI_GRAPH_NEO4J_USERNAME")
	_ = v.BindEnv("neo4j.password", "TAMI_GRAPH_NEO4J_PASSWORD")
	_ = v.BindEnv("postgres.dsn", "TAMI_GRAPH_POSTGRES_DSN")
	_ = v.BindEnv("api.listen_addr", "TAMI_GRAPH_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "TAMI_GRAPH_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri must not be empty")
	}
	if c.Neo4j.Database == "" {
		return fmt.Errorf("neo4j.database must not be empty")
	}
	switch c.Embedder.Provider {
	case "ollama", "openai", "none":
	default:
		return fmt.Errorf("embedder.provider must be one of ollama, openai, none")
	}
	if c.Embedder.Provider == "ollama" && c.Embedder.BaseURL == "" {
		return fmt.Errorf("embedder.base_url must not be empty")
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder.dimensions must be greater than 0")
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher.threshold must be between 0 and 1")
	}
	if c.Matcher.MaxResults < 1 || c.Matcher.MaxResults > 100 {
		return fmt.Errorf("matcher.max_results must be between 1 and 100")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
