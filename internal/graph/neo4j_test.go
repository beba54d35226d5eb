package graph

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamihq/tami-graph/internal/models"
)

// fakeResult serves canned records to collectRows. Only Collect is ever
// called on a result; the embedded interface panics on anything else.
type fakeResult struct {
	neo4j.ResultWithContext
	records []*neo4j.Record
}

func (f *fakeResult) Collect(context.Context) ([]*neo4j.Record, error) {
	return f.records, nil
}

// fakeTx records every statement run against it and dequeues one canned
// result set per call.
type fakeTx struct {
	neo4j.ManagedTransaction
	statements []string
	params     []map[string]any
	results    [][]*neo4j.Record
}

func (f *fakeTx) Run(_ context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error) {
	f.statements = append(f.statements, cypher)
	f.params = append(f.params, params)
	var recs []*neo4j.Record
	if len(f.results) > 0 {
		recs = f.results[0]
		f.results = f.results[1:]
	}
	return &fakeResult{records: recs}, nil
}

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func personProps(id, name string, aliases ...string) map[string]any {
	return map[string]any{
		"id":               id,
		"user_id":          testOwner,
		"category":         "person",
		"display_value":    name,
		"normalized_value": strings.ToLower(name),
		"aliases":          aliases,
		"mention_count":    int64(2),
	}
}

func quietStore() *Neo4jStore {
	return &Neo4jStore{logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))}
}

func TestMergeInTx_StatementSequence(t *testing.T) {
	target := personProps("t-1", "John Smith")
	source := personProps("s-1", "Jon Smith", "Jonny")

	tx := &fakeTx{results: [][]*neo4j.Record{
		// Lookup finds both nodes.
		{record([]string{"target", "source"}, []any{target, source})},
		// Mention transfer reports nothing of interest.
		nil,
		// Source touches three edges: one valid outgoing, one valid
		// incoming, one of a type outside the enum.
		{
			record([]string{"other_id", "rel_type", "outgoing", "props"},
				[]any{"o-1", "WORKS_AT", true, map[string]any{"confidence": 0.8}}),
			record([]string{"other_id", "rel_type", "outgoing", "props"},
				[]any{"o-2", "MANAGES", false, map[string]any{}}),
			record([]string{"other_id", "rel_type", "outgoing", "props"},
				[]any{"o-3", "BESPOKE_EDGE", true, map[string]any{}}),
		},
		// Two repoints.
		nil,
		nil,
		// Final fold returns the merged target.
		{record([]string{"target"}, []any{personProps("t-1", "John Smith", "Jon Smith", "jon smith", "Jonny")})},
	}}

	merged, err := quietStore().mergeInTx(context.Background(), tx, testOwner, "t-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", merged.ID)
	assert.Contains(t, merged.Aliases, "Jonny")

	require.Len(t, tx.statements, 6)
	assert.Contains(t, tx.statements[0], "RETURN target, source")
	assert.Equal(t, map[string]any{"target_id": "t-1", "source_id": "s-1", "owner": testOwner}, tx.params[0])
	assert.Contains(t, tx.statements[1], "MERGE (target)-[nr:MENTIONED_IN]->(m)")
	assert.Contains(t, tx.statements[1], "DELETE r")
	assert.Contains(t, tx.statements[2], "type(r) <> 'MENTIONED_IN'")

	// Repoints splice the enum type and keep the edge direction. The
	// unknown type never produces a statement.
	assert.Contains(t, tx.statements[3], "MERGE (target)-[nr:WORKS_AT]->(other)")
	assert.Equal(t, "o-1", tx.params[3]["other_id"])
	assert.Contains(t, tx.statements[4], "MERGE (other)-[nr:MANAGES]->(target)")
	assert.Equal(t, "o-2", tx.params[4]["other_id"])
	for _, stmt := range tx.statements {
		assert.NotContains(t, stmt, "BESPOKE_EDGE")
	}

	assert.Contains(t, tx.statements[5], "DETACH DELETE source")
	folded := asStringSlice(tx.params[5]["aliases"])
	assert.Contains(t, folded, "Jon Smith")
	assert.Contains(t, folded, "Jonny")
}

func TestMergeInTx_SelfLoopEdgeIsDropped(t *testing.T) {
	tx := &fakeTx{results: [][]*neo4j.Record{
		{record([]string{"target", "source"}, []any{personProps("t-1", "John"), personProps("s-1", "Jon")})},
		nil,
		// The source's only edge points at the target itself.
		{record([]string{"other_id", "rel_type", "outgoing", "props"},
			[]any{"t-1", "COLLABORATES_WITH", true, map[string]any{}})},
		{record([]string{"target"}, []any{personProps("t-1", "John")})},
	}}

	_, err := quietStore().mergeInTx(context.Background(), tx, testOwner, "t-1", "s-1")
	require.NoError(t, err)

	// Lookup, mention transfer, edge collection, final fold. No repoint.
	require.Len(t, tx.statements, 4)
	assert.Contains(t, tx.statements[3], "DETACH DELETE source")
}

func TestMergeInTx_MissingPairIsNotFound(t *testing.T) {
	tx := &fakeTx{}

	_, err := quietStore().mergeInTx(context.Background(), tx, testOwner, "t-1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, tx.statements, 1)
}

func TestClampHops(t *testing.T) {
	assert.Equal(t, 4, clampHops(0))
	assert.Equal(t, 4, clampHops(-2))
	assert.Equal(t, 1, clampHops(1))
	assert.Equal(t, 6, clampHops(6))
	assert.Equal(t, 6, clampHops(50))
}

func TestConnectionPathFromRow(t *testing.T) {
	path := connectionPathFromRow(map[string]any{
		"path_nodes": []any{
			map[string]any{"id": "e-1", "name": "John", "labels": []any{"Entity", "Person"}},
			map[string]any{"id": "m-1", "name": "m-1", "labels": []any{"Meeting"}},
			map[string]any{"id": "e-2", "name": "Jane", "labels": []any{"Entity", "Person"}},
		},
		"path_edges": []any{
			map[string]any{"from": "e-1", "to": "m-1", "type": "MENTIONED_IN"},
			map[string]any{"from": "e-2", "to": "m-1", "type": "MENTIONED_IN"},
		},
	})

	require.Len(t, path.Nodes, 3)
	assert.Equal(t, models.PathNode{ID: "e-1", Kind: "entity", Name: "John"}, path.Nodes[0])
	assert.Equal(t, "meeting", path.Nodes[1].Kind)
	require.Len(t, path.Edges, 2)
	assert.Equal(t, "MENTIONED_IN", path.Edges[0].Type)
}
