package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Embedder: EmbedderConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Matcher: MatcherConfig{
			Threshold:  0.7,
			MaxResults: 5,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	cfg := validConfig()
	cfg.Neo4j.URI = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Neo4j.Database = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Embedder.Provider = "word2vec"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Embedder.Dimensions = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Matcher.Threshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Matcher.MaxResults = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Matcher.MaxResults = 500
	assert.Error(t, cfg.Validate())
}

func TestValidate_ProviderNoneSkipsBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Embedder.Provider = "none"
	cfg.Embedder.BaseURL = ""
	assert.NoError(t, cfg.Validate())
}

func TestClaudeConfig_StringMasksAPIKey(t *testing.T) {
	c := ClaudeConfig{APIKey: "sk-ant-REDACTED", Model: "claude-haiku-4-5-20251001"}
	s := c.String()
	assert.NotContains(t, s, "very-secret")
	assert.Contains(t, s, "sk-a")

	short := ClaudeConfig{APIKey: "tiny"}
	assert.Contains(t, short.String(), "***")
	assert.NotContains(t, short.String(), "tiny")
}
