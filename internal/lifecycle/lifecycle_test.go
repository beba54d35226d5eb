package lifecycle

import (
	"context"
	"fmt"
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

// unavailableStore wraps the in-memory store and fails selected operations
// with ErrUpstreamUnavailable.
type unavailableStore struct {
	graph.Store
	failRemove bool
	failOrphan bool
	failDelete bool
}

func (u *unavailableStore) RemoveMeetingMentions(ctx context.Context, owner, meetingID string) (int, error) {
	if u.failRemove {
		return 0, fmt.Errorf("%w: connection refused", graph.ErrUpstreamUnavailable)
	}
	return u.Store.RemoveMeetingMentions(ctx, owner, meetingID)
}

func (u *unavailableStore) ListOrphans(ctx context.Context, owner string) ([]models.Entity, error) {
	if u.failOrphan {
		return nil, fmt.Errorf("%w: connection refused", graph.ErrUpstreamUnavailable)
	}
	return u.Store.ListOrphans(ctx, owner)
}

func (u *unavailableStore) DeleteEntity(ctx context.Context, owner, id string) error {
	if u.failDelete {
		return fmt.Errorf("%w: connection refused", graph.ErrUpstreamUnavailable)
	}
	return u.Store.DeleteEntity(ctx, owner, id)
}

func seedAcme(t *testing.T, s *graph.MemoryStore) *models.Entity {
	t.Helper()
	ctx := context.Background()
	acme, err := s.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category:     "organization",
		DisplayValue: "Acme Corp",
		MentionCount: 1,
	})
	require.NoError(t, err)
	require.NoError(t, s.AddMention(ctx, testOwner, models.Mention{
		EntityID: acme.ID, MeetingID: "m-1", Count: 1,
	}))
	return acme
}

func TestOnMeetingDeleted_RemovesOrphan(t *testing.T) {
	s := graph.NewMemoryStore()
	acme := seedAcme(t, s)
	engine := NewEngine(s, nil, testLogger())

	report, err := engine.OnMeetingDeleted(context.Background(), testOwner, "m-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.EntitiesTouched)
	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Contains(t, report.OrphanIDs, acme.ID)

	// Acme Corp had one mention in the deleted meeting; it is gone entirely.
	_, err = s.GetEntity(context.Background(), testOwner, acme.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestOnMeetingDeleted_RetainsUserCreated(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	manual, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category:     models.CategoryOrganization,
		DisplayValue: "Globex",
	})
	require.NoError(t, err)
	require.NoError(t, s.AddMention(ctx, testOwner, models.Mention{
		EntityID: manual.ID, MeetingID: "m-1", Count: 1,
	}))

	engine := NewEngine(s, nil, testLogger())
	report, err := engine.OnMeetingDeleted(ctx, testOwner, "m-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.EntitiesTouched)
	assert.Equal(t, 0, report.OrphansRemoved)

	// User-created entities survive at zero mentions.
	got, err := s.GetEntity(ctx, testOwner, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MentionCount)
}

func TestOnMeetingDeleted_RepeatedDeletionsFloorAtZero(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category:     models.CategoryPerson,
		DisplayValue: "John",
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	for i := 0; i < 3; i++ {
		meeting := fmt.Sprintf("m-%d", i)
		require.NoError(t, s.AddMention(ctx, testOwner, models.Mention{
			EntityID: e.ID, MeetingID: meeting, Count: 4,
		}))
		_, err = engine.OnMeetingDeleted(ctx, testOwner, meeting)
		require.NoError(t, err)
	}

	got, err := s.GetEntity(ctx, testOwner, e.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.MentionCount, 0)
}

func TestOnMeetingDeleted_SwallowsUpstreamUnavailable(t *testing.T) {
	s := graph.NewMemoryStore()
	seedAcme(t, s)

	engine := NewEngine(&unavailableStore{Store: s, failRemove: true}, nil, testLogger())

	// Graph unreachable: log and report empty, never propagate.
	report, err := engine.OnMeetingDeleted(context.Background(), testOwner, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntitiesTouched)
	assert.Equal(t, 0, report.OrphansRemoved)
}

func TestOnMeetingDeleted_SwallowsOrphanScanFailure(t *testing.T) {
	s := graph.NewMemoryStore()
	seedAcme(t, s)

	engine := NewEngine(&unavailableStore{Store: s, failOrphan: true}, nil, testLogger())

	report, err := engine.OnMeetingDeleted(context.Background(), testOwner, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntitiesTouched)
	assert.Equal(t, 0, report.OrphansRemoved)
}

func TestOnMeetingDeleted_ContinuesPastOrphanDeleteFailure(t *testing.T) {
	s := graph.NewMemoryStore()
	seedAcme(t, s)

	engine := NewEngine(&unavailableStore{Store: s, failDelete: true}, nil, testLogger())

	report, err := engine.OnMeetingDeleted(context.Background(), testOwner, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.OrphansRemoved)
}

func TestOnEntityDeleted(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category:     models.CategoryPerson,
		DisplayValue: "John",
	})
	require.NoError(t, err)

	engine := NewEngine(s, nil, testLogger())
	require.NoError(t, engine.OnEntityDeleted(ctx, testOwner, e.ID))

	_, err = s.GetEntity(ctx, testOwner, e.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	// Deleting an absent entity is a NotFound the caller sees.
	err = engine.OnEntityDeleted(ctx, testOwner, e.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestOnEntityDeleted_SwallowsUpstreamUnavailable(t *testing.T) {
	s := graph.NewMemoryStore()
	engine := NewEngine(&unavailableStore{Store: s, failDelete: true}, nil, testLogger())

	err := engine.OnEntityDeleted(context.Background(), testOwner, "whatever")
	assert.NoError(t, err)
}
