package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tamihq/tami-graph/internal/match"
	tamimcp "github.com/tamihq/tami-graph/internal/mcp"
	"github.com/tamihq/tami-graph/internal/merge"
)

func mcpCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.
Every tool call is scoped to the owner given by --owner.

Tools exposed:
  entity_search    search entities by name or alias
  entity_get       fetch one entity with mentions and relationships
  find_duplicates  advisory duplicate scan for an entity
  merge_entities   atomically merge one entity into another
  entity_stats     entity counts per category

If the graph store is unavailable at startup the server still starts;
individual tool calls will return MCP error responses on failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, storeErr := newStore(ctx, logger)
			if storeErr != nil {
				// Log to stderr and continue with a nil store.
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: failed to connect to store; tool calls requiring storage will fail",
					"error", storeErr)
			}

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			var matcher *match.Matcher
			var merger *merge.Engine
			if st != nil {
				matcher = match.NewMatcherWithDefaults(st, newEmbedder(logger), newJudge(logger), matchDefaults(), logger)
				merger = merge.NewEngine(st, m, logger)
			}

			srv := tamimcp.NewServer(st, matcher, merger, owner, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: tami-graph MCP server starting", "transport", "stdio", "owner", owner)

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
