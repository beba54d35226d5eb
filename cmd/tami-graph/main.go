package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/config"
	"github.com/tamihq/tami-graph/internal/disambig"
	"github.com/tamihq/tami-graph/internal/embedder"
	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/match"
	"github.com/tamihq/tami-graph/internal/mirror"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "tami-graph",
		Short: "tami-graph - knowledge graph entity resolution engine",
		Long:  "tami-graph resolves extracted meeting entities into a per-user knowledge graph: upserts, duplicate detection, merging, and lifecycle cleanup.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		entitiesCmd(),
		searchCmd(),
		duplicatesCmd(),
		mergeCmd(),
		ingestCmd(),
		cleanupCmd(),
		connectionsCmd(),
		inferCmd(),
		statsCmd(),
		schemaCmd(),
		serveCmd(),
		mcpCmd(),
		healthCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context, logger *slog.Logger) (graph.Store, error) {
	st, err := graph.NewNeo4jStore(
		ctx,
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
		logger,
	)
	if err != nil {
		// Return an untyped nil so callers can compare the interface to nil.
		return nil, err
	}
	return st, nil
}

// newEmbedder returns nil when the embedder provider is "none"; the matcher
// then scores lexically only.
func newEmbedder(logger *slog.Logger) embedder.Embedder {
	switch cfg.Embedder.Provider {
	case "openai":
		return embedder.NewOpenAIEmbedder(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Dimensions, logger)
	case "none":
		return nil
	default:
		return embedder.NewOllamaEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model, cfg.Embedder.Dimensions, logger)
	}
}

// matchDefaults maps the configured matcher section onto scan defaults.
func matchDefaults() match.Defaults {
	return match.Defaults{
		Threshold:     cfg.Matcher.Threshold,
		MaxResults:    cfg.Matcher.MaxResults,
		SkipExpensive: cfg.Matcher.SkipExpensive,
	}
}

// newJudge returns nil when no Claude API key is configured.
func newJudge(logger *slog.Logger) disambig.Judge {
	if cfg.Claude.APIKey == "" {
		return nil
	}
	return disambig.NewClaudeJudge(cfg.Claude.APIKey, cfg.Claude.Model, logger)
}

// newMirror returns nil when no Postgres DSN is configured; all mirror
// writes become no-ops.
func newMirror(ctx context.Context, logger *slog.Logger) (*mirror.Mirror, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return mirror.New(pool, logger), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
