// Package mcp implements the Model Context Protocol server for tami-graph.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/match"
	"github.com/tamihq/tami-graph/internal/merge"
	"github.com/tamihq/tami-graph/internal/models"
)

const (
	// defaultSearchLimit is the default number of results for entity_search.
	defaultSearchLimit = 10
)

// Server wraps an MCPServer with tami-graph dependencies. Tools operate on
// behalf of a single owner fixed at construction, matching the per-user
// stdio transport.
type Server struct {
	mcp     *mcpserver.MCPServer
	st      graph.Store
	matcher *match.Matcher
	merger  *merge.Engine
	owner   string
	logger  *slog.Logger
}

// NewServer creates a new MCP server scoped to the given owner. If st is
// nil, tool calls return an error response instead of panicking.
func NewServer(st graph.Store, matcher *match.Matcher, merger *merge.Engine, owner string, logger *slog.Logger) *Server {
	s := &Server{
		st:      st,
		matcher: matcher,
		merger:  merger,
		owner:   owner,
		logger:  logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"tami-graph",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildSearchTool(), s.handleSearch)
	mcpSrv.AddTool(buildGetEntityTool(), s.handleGetEntity)
	mcpSrv.AddTool(buildFindDuplicatesTool(), s.handleFindDuplicates)
	mcpSrv.AddTool(buildMergeTool(), s.handleMerge)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleSearch is the exported handler for the "entity_search" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearch(ctx, req)
}

// HandleGetEntity is the exported handler for the "entity_get" tool.
func (s *Server) HandleGetEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGetEntity(ctx, req)
}

// HandleFindDuplicates is the exported handler for the "find_duplicates" tool.
func (s *Server) HandleFindDuplicates(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleFindDuplicates(ctx, req)
}

// HandleMerge is the exported handler for the "merge_entities" tool.
func (s *Server) HandleMerge(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleMerge(ctx, req)
}

// HandleStats is the exported handler for the "entity_stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildSearchTool() mcpgo.Tool {
	return mcpgo.NewTool("entity_search",
		mcpgo.WithDescription("Search the knowledge graph for entities by name or alias."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The name fragment to search for"),
		),
		mcpgo.WithString("category",
			mcpgo.Description("Restrict results to one category: person, organization, project, topic, location, date, product, technology, other"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 10)"),
		),
	)
}

func buildGetEntityTool() mcpgo.Tool {
	return mcpgo.NewTool("entity_get",
		mcpgo.WithDescription("Get one entity with its meeting mentions and relationships."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The entity ID"),
		),
	)
}

func buildFindDuplicatesTool() mcpgo.Tool {
	return mcpgo.NewTool("find_duplicates",
		mcpgo.WithDescription("Find likely duplicates of an entity among same-category entities. Advisory only; nothing is merged."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The entity ID to scan for duplicates of"),
		),
		mcpgo.WithNumber("threshold",
			mcpgo.Description("Minimum similarity score 0.0-1.0 (default: 0.7)"),
		),
		mcpgo.WithNumber("max_results",
			mcpgo.Description("Maximum number of candidates 1-100 (default: 5)"),
		),
	)
}

func buildMergeTool() mcpgo.Tool {
	return mcpgo.NewTool("merge_entities",
		mcpgo.WithDescription("Merge the source entity into the target, combining mentions, relationships, and aliases. The source is deleted."),
		mcpgo.WithString("target_id",
			mcpgo.Required(),
			mcpgo.Description("The entity that survives the merge"),
		),
		mcpgo.WithString("source_id",
			mcpgo.Required(),
			mcpgo.Description("The entity absorbed into the target"),
		),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("entity_stats",
		mcpgo.WithDescription("Get knowledge graph statistics: entity counts per category."),
	)
}

// --- tool handlers ---

// handleSearch runs a name search over the owner's entities.
func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}

	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var categories []models.EntityCategory
	if raw := req.GetString("category", ""); raw != "" {
		categories = append(categories, models.ParseCategory(raw))
	}

	results, err := s.st.SearchEntities(ctx, s.owner, query, categories, limit)
	if err != nil {
		return mcpgo.NewToolResultErrorf("search failed: %s", err.Error()), nil
	}

	return toolResultJSON(map[string]any{"results": results})
}

// handleGetEntity returns the full detail view of one entity.
func (s *Server) handleGetEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	id := req.GetString("id", "")
	if strings.TrimSpace(id) == "" {
		return mcpgo.NewToolResultError("id is required and must not be empty"), nil
	}

	detail, err := s.st.GetEntityDetail(ctx, s.owner, id)
	if err != nil {
		return mcpgo.NewToolResultErrorf("get failed: %s", err.Error()), nil
	}

	return toolResultJSON(detail)
}

// handleFindDuplicates runs an advisory duplicate scan.
func (s *Server) handleFindDuplicates(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.matcher == nil {
		return mcpgo.NewToolResultError("matcher is unavailable"), nil
	}

	id := req.GetString("id", "")
	if strings.TrimSpace(id) == "" {
		return mcpgo.NewToolResultError("id is required and must not be empty"), nil
	}

	opts := match.Options{
		MaxResults: req.GetInt("max_results", 0),
	}
	// An explicit threshold of 0 is a valid request, so only set the option
	// when the argument is actually present.
	if raw, ok := req.GetArguments()["threshold"]; ok {
		if f, isFloat := raw.(float64); isFloat {
			opts.Threshold = match.Float(f)
		}
	}

	candidates, err := s.matcher.FindDuplicates(ctx, s.owner, id, opts)
	if err != nil {
		return mcpgo.NewToolResultErrorf("duplicate scan failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: duplicate scan", "id", id, "candidates", len(candidates))
	return toolResultJSON(map[string]any{"candidates": candidates})
}

// handleMerge folds source into target.
func (s *Server) handleMerge(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.merger == nil {
		return mcpgo.NewToolResultError("merge engine is unavailable"), nil
	}

	targetID := req.GetString("target_id", "")
	sourceID := req.GetString("source_id", "")
	if strings.TrimSpace(targetID) == "" || strings.TrimSpace(sourceID) == "" {
		return mcpgo.NewToolResultError("target_id and source_id are required"), nil
	}

	merged, err := s.merger.Merge(ctx, s.owner, targetID, sourceID)
	if err != nil {
		return mcpgo.NewToolResultErrorf("merge failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: merged entities", "target_id", targetID, "source_id", sourceID)
	return toolResultJSON(merged)
}

// handleStats returns per-category entity counts.
func (s *Server) handleStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	stats, err := s.st.Stats(ctx, s.owner)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}
