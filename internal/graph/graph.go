// Package graph is the system of record for resolved entity identity: the
// graph of entities, mention edges, and relationship edges.
package graph

import (
	"context"
	"errors"

	"github.com/tamihq/tami-graph/internal/models"
)

// ErrNotFound is returned when an entity is absent or not owned by the
// caller. Ownership violations are indistinguishable from absence.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidOperation is returned for operations that can never succeed,
// such as merging an entity into itself.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrValidation is returned when required fields are missing on create
// or update.
var ErrValidation = errors.New("validation failed")

// ErrUpstreamUnavailable is returned when the backing graph store cannot
// be reached. Best-effort cleanup paths log and swallow it; all other
// paths surface it.
var ErrUpstreamUnavailable = errors.New("graph store unavailable")

// CreateEntityInput carries the fields for an explicit entity creation.
type CreateEntityInput struct {
	Category     models.EntityCategory
	DisplayValue string
	Aliases      []string
	Description  string
}

// EntityPatch is a partial update. Nil fields are left unchanged.
// Changing DisplayValue also recomputes the normalized value.
type EntityPatch struct {
	DisplayValue *string
	Description  *string
	Aliases      *[]string
}

// ListOptions controls grouped entity listings.
type ListOptions struct {
	Category   *models.EntityCategory
	SearchText string
	Limit      int
	Offset     int
}

// Store is the entity graph contract. Every operation filters by owner;
// entities are never shared across owners. Implementations serialize
// writes through their own transaction mechanism, and each mutating
// operation is atomic: partial application is not observable.
type Store interface {
	// EnsureSchema idempotently creates constraints and indexes.
	EnsureSchema(ctx context.Context) error

	// CreateEntity explicitly creates a user-created entity.
	// Fails with ErrValidation when category or display value is empty.
	CreateEntity(ctx context.Context, owner string, in CreateEntityInput) (*models.Entity, error)

	// UpsertExtracted merges an extraction result into an existing entity
	// with the same (owner, category, normalized value), adding mention
	// counts and unioning aliases, or creates a new auto-created entity.
	UpsertExtracted(ctx context.Context, owner string, ex models.ExtractedEntity) (*models.Entity, error)

	// AddMention links an entity to a meeting. At most one mention edge
	// exists per (entity, meeting) pair; repeats increment its count.
	AddMention(ctx context.Context, owner string, m models.Mention) error

	// GetEntity retrieves a single entity.
	GetEntity(ctx context.Context, owner, id string) (*models.Entity, error)

	// GetEntityDetail retrieves an entity with its mention edges and
	// non-mention relationships.
	GetEntityDetail(ctx context.Context, owner, id string) (*models.EntityDetail, error)

	// UpdateEntity applies a partial update and bumps updated_at.
	UpdateEntity(ctx context.Context, owner, id string, patch EntityPatch) (*models.Entity, error)

	// DeleteEntity removes the entity and every incident edge. No edge
	// referencing the entity remains afterwards.
	DeleteEntity(ctx context.Context, owner, id string) error

	// ListEntities returns a grouped-by-category listing with counts.
	// When SearchText is set the full-text index is consulted instead of
	// scanning every node.
	ListEntities(ctx context.Context, owner string, opts ListOptions) (*models.GroupedListing, error)

	// SearchEntities finds entities by display/normalized value or alias,
	// optionally restricted to the given categories.
	SearchEntities(ctx context.Context, owner, text string, categories []models.EntityCategory, limit int) ([]models.Entity, error)

	// ListCandidates returns every entity of the owner in the given
	// category except excludeID. This is the matcher's candidate pool.
	ListCandidates(ctx context.Context, owner string, category models.EntityCategory, excludeID string) ([]models.Entity, error)

	// CreateRelationship creates a typed directed edge between two owned
	// entities, skipping exact duplicates (same ordered pair and type).
	CreateRelationship(ctx context.Context, owner string, rel models.Relationship) error

	// ListRelationships returns an entity's relationship edges in the
	// given direction, mention edges excluded.
	ListRelationships(ctx context.Context, owner, id string, dir models.RelDirection) ([]models.Relationship, error)

	// DeleteRelationship removes one specific edge.
	DeleteRelationship(ctx context.Context, owner, fromID, toID string, typ models.RelationType) error

	// MergeEntities atomically folds source into target: mention edges
	// combined per meeting, relationship edges re-pointed with duplicate
	// suppression, counts summed, aliases extended, source deleted.
	// Fails with ErrInvalidOperation on self-merge and ErrNotFound when
	// either entity is absent or foreign-owned; retrying a completed
	// merge therefore fails cleanly with ErrNotFound.
	MergeEntities(ctx context.Context, owner, targetID, sourceID string) (*models.Entity, error)

	// RemoveMeetingMentions deletes every mention edge into the meeting,
	// decrementing each entity's mention count by that edge's own count,
	// floored at zero. Returns the number of entities affected.
	RemoveMeetingMentions(ctx context.Context, owner, meetingID string) (int, error)

	// ListOrphans returns auto-created entities whose mention count has
	// reached zero. User-created entities are never reported.
	ListOrphans(ctx context.Context, owner string) ([]models.Entity, error)

	// CoOccurrences returns entity pairs sharing at least minMeetings
	// distinct meetings.
	CoOccurrences(ctx context.Context, owner string, minMeetings, limit int) ([]models.CoOccurrence, error)

	// InferCollaborations creates COLLABORATES_WITH edges between person
	// entities co-occurring in at least minShared distinct meetings. The
	// edge carries source "inferred"; existing edges are refreshed, not
	// duplicated. Returns the number of qualifying pairs.
	InferCollaborations(ctx context.Context, owner string, minShared int) (int, error)

	// FindConnections returns paths connecting two entities through
	// relationship and mention edges, up to maxHops hops.
	FindConnections(ctx context.Context, owner, fromID, toID string, maxHops int) ([]models.ConnectionPath, error)

	// Stats returns per-category entity counts for the owner.
	Stats(ctx context.Context, owner string) (*models.EntityStats, error)

	// Close releases the underlying driver resources.
	Close(ctx context.Context) error
}
