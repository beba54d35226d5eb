package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/match"
	"github.com/tamihq/tami-graph/internal/merge"
	"github.com/tamihq/tami-graph/internal/models"
)

const testOwner = "user-1"

// newMCPServer returns a Server backed by the in-memory store.
func newMCPServer(t *testing.T) (*Server, *graph.MemoryStore) {
	t.Helper()
	st := graph.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := NewServer(
		st,
		match.NewMatcher(st, nil, nil, logger),
		merge.NewEngine(st, nil, logger),
		testOwner,
		logger,
	)
	return srv, st
}

// makeReq builds a CallToolRequest with the given string/number/bool arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func seedPerson(t *testing.T, st *graph.MemoryStore, name string, mentions int) *models.Entity {
	t.Helper()
	e, err := st.UpsertExtracted(context.Background(), testOwner, models.ExtractedEntity{
		Category:     "person",
		DisplayValue: name,
		MentionCount: mentions,
	})
	require.NoError(t, err)
	return e
}

func TestHandleSearch(t *testing.T) {
	srv, st := newMCPServer(t)
	seedPerson(t, st, "Jonathan Smith", 3)

	result, err := srv.HandleSearch(context.Background(), makeReq("entity_search", map[string]any{
		"query": "jonathan",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string][]models.Entity
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out["results"], 1)
	assert.Equal(t, "Jonathan Smith", out["results"][0].DisplayValue)
}

func TestHandleSearch_RequiresQuery(t *testing.T) {
	srv, _ := newMCPServer(t)

	result, err := srv.HandleSearch(context.Background(), makeReq("entity_search", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetEntity(t *testing.T) {
	srv, st := newMCPServer(t)
	e := seedPerson(t, st, "John", 2)

	result, err := srv.HandleGetEntity(context.Background(), makeReq("entity_get", map[string]any{
		"id": e.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var detail models.EntityDetail
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &detail))
	assert.Equal(t, e.ID, detail.Entity.ID)

	result, err = srv.HandleGetEntity(context.Background(), makeReq("entity_get", map[string]any{
		"id": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleFindDuplicates(t *testing.T) {
	srv, st := newMCPServer(t)
	src := seedPerson(t, st, "John Smith", 3)
	seedPerson(t, st, "Jon Smith", 1)

	result, err := srv.HandleFindDuplicates(context.Background(), makeReq("find_duplicates", map[string]any{
		"id": src.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string][]models.MatchCandidate
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out["candidates"], 1)
	assert.NotEqual(t, src.ID, out["candidates"][0].Entity.ID)
}

func TestHandleFindDuplicates_ExplicitZeroThreshold(t *testing.T) {
	srv, st := newMCPServer(t)
	src := seedPerson(t, st, "John Smith", 3)
	seedPerson(t, st, "Zachary Quinto", 1)

	// A threshold of 0 in the arguments is honored rather than replaced
	// with the default.
	result, err := srv.HandleFindDuplicates(context.Background(), makeReq("find_duplicates", map[string]any{
		"id":        src.ID,
		"threshold": 0.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string][]models.MatchCandidate
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out["candidates"], 1)
}

func TestHandleMerge(t *testing.T) {
	srv, st := newMCPServer(t)
	target := seedPerson(t, st, "John", 3)
	source := seedPerson(t, st, "Jon", 2)

	result, err := srv.HandleMerge(context.Background(), makeReq("merge_entities", map[string]any{
		"target_id": target.ID,
		"source_id": source.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var merged models.Entity
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &merged))
	assert.Equal(t, 5, merged.MentionCount)

	// Self-merge comes back as a tool error, not a transport error.
	result, err = srv.HandleMerge(context.Background(), makeReq("merge_entities", map[string]any{
		"target_id": target.ID,
		"source_id": target.ID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleStats(t *testing.T) {
	srv, st := newMCPServer(t)
	seedPerson(t, st, "John", 1)
	seedPerson(t, st, "Jane", 1)

	result, err := srv.HandleStats(context.Background(), makeReq("entity_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats models.EntityStats
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &stats))
	assert.Equal(t, int64(2), stats.Total)
}

func TestNilStoreReturnsToolError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := NewServer(nil, nil, nil, testOwner, logger)

	result, err := srv.HandleStats(context.Background(), makeReq("entity_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
