// Package merge folds one entity into another while preserving every
// mention and relationship edge.
package merge

import (
	"context"
	"log/slog"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/metrics"
	"github.com/tamihq/tami-graph/internal/mirror"
	"github.com/tamihq/tami-graph/internal/models"
)

// Engine executes entity merges against the graph store and keeps the
// relational mirror in step. The graph is the system of record; mirror
// failures are logged, never propagated.
type Engine struct {
	store  graph.Store
	mirror *mirror.Mirror
	logger *slog.Logger
}

// NewEngine creates a merge engine. m may be nil when no relational mirror
// is configured.
func NewEngine(store graph.Store, m *mirror.Mirror, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		mirror: m,
		logger: logger,
	}
}

// Merge atomically folds the source entity into the target and returns the
// updated target. Self-merges fail with ErrInvalidOperation; a missing or
// foreign-owned entity fails with ErrNotFound. Callers retrying a merge
// whose response was lost should treat ErrNotFound as already merged.
func (e *Engine) Merge(ctx context.Context, owner, targetID, sourceID string) (*models.Entity, error) {
	if targetID == sourceID {
		metrics.Inc(metrics.MergesFailed)
		return nil, graph.ErrInvalidOperation
	}

	merged, err := e.store.MergeEntities(ctx, owner, targetID, sourceID)
	if err != nil {
		metrics.Inc(metrics.MergesFailed)
		return nil, err
	}
	metrics.Inc(metrics.MergesTotal)

	// The mirror is an eventually-consistent read cache; a failed write
	// here leaves it stale, not wrong enough to fail the merge.
	if e.mirror != nil {
		if mirrorErr := e.mirror.Upsert(ctx, merged); mirrorErr != nil {
			e.logger.Warn("mirror upsert failed after merge",
				"entity_id", merged.ID, "error", mirrorErr)
		}
		if mirrorErr := e.mirror.Delete(ctx, owner, sourceID); mirrorErr != nil {
			e.logger.Warn("mirror delete failed after merge",
				"entity_id", sourceID, "error", mirrorErr)
		}
	}

	e.logger.Info("merged entities",
		"owner", owner, "target_id", targetID, "source_id", sourceID,
		"mention_count", merged.MentionCount)
	return merged, nil
}
