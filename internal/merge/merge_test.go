package merge

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/models"
)

const testOwner = "user-1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMerge_JohnJonScenario(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	john, err := s.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category: "person", DisplayValue: "John", MentionCount: 3,
	})
	require.NoError(t, err)
	jon, err := s.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category: "person", DisplayValue: "Jon", MentionCount: 2, Aliases: []string{"Jonathan"},
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	merged, err := engine.Merge(ctx, testOwner, john.ID, jon.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, merged.MentionCount)
	assert.Subset(t, merged.Aliases, []string{"Jon", "jon", "Jonathan"})

	_, err = s.GetEntity(ctx, testOwner, jon.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestMerge_SelfMergeRejected(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	_, err = engine.Merge(ctx, testOwner, e.ID, e.ID)
	assert.ErrorIs(t, err, graph.ErrInvalidOperation)
}

func TestMerge_GhostSourceRejected(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	_, err = engine.Merge(ctx, testOwner, e.ID, "ghost-id")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestMerge_CrossOwnerIsNotFound(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	mine, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)
	theirs, err := s.CreateEntity(ctx, "someone-else", graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "Jon",
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	_, err = engine.Merge(ctx, testOwner, mine.ID, theirs.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	// The foreign entity is untouched.
	got, err := s.GetEntity(ctx, "someone-else", theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jon", got.DisplayValue)
}
