// Package lifecycle keeps mention counts accurate and removes orphaned
// auto-created entities as meetings and entities are deleted.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/metrics"
	"github.com/tamihq/tami-graph/internal/mirror"
)

// Report summarizes one cleanup run.
type Report struct {
	EntitiesTouched int      `json:"entities_touched"`
	OrphansRemoved  int      `json:"orphans_removed"`
	OrphanIDs       []string `json:"orphan_ids,omitempty"`
}

// Engine runs the graph-side cleanup triggered by meeting and entity
// deletion. Graph unavailability on these paths is logged and swallowed:
// the relational deletion already succeeded and the graph cleanup is
// best-effort.
type Engine struct {
	store  graph.Store
	mirror *mirror.Mirror
	logger *slog.Logger
}

// NewEngine creates a lifecycle engine. m may be nil when no relational
// mirror is configured.
func NewEngine(store graph.Store, m *mirror.Mirror, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		mirror: m,
		logger: logger,
	}
}

// OnMeetingDeleted removes the meeting's mention edges, decrementing each
// entity's mention count by the edge's own count (floored at zero), then
// deletes auto-created entities left with zero mentions. User-created
// entities are retained regardless of mention count.
func (e *Engine) OnMeetingDeleted(ctx context.Context, owner, meetingID string) (*Report, error) {
	report := &Report{}

	touched, err := e.store.RemoveMeetingMentions(ctx, owner, meetingID)
	if err != nil {
		if errors.Is(err, graph.ErrUpstreamUnavailable) {
			metrics.Inc(metrics.CleanupErrors)
			e.logger.Warn("graph unavailable during meeting cleanup, skipping",
				"owner", owner, "meeting_id", meetingID, "error", err)
			return report, nil
		}
		return nil, err
	}
	report.EntitiesTouched = touched

	orphans, err := e.store.ListOrphans(ctx, owner)
	if err != nil {
		if errors.Is(err, graph.ErrUpstreamUnavailable) {
			metrics.Inc(metrics.CleanupErrors)
			e.logger.Warn("graph unavailable during orphan scan, skipping",
				"owner", owner, "meeting_id", meetingID, "error", err)
			return report, nil
		}
		return nil, err
	}

	for i := range orphans {
		if delErr := e.store.DeleteEntity(ctx, owner, orphans[i].ID); delErr != nil {
			metrics.Inc(metrics.CleanupErrors)
			e.logger.Warn("orphan deletion failed",
				"entity_id", orphans[i].ID, "error", delErr)
			continue
		}
		metrics.Inc(metrics.OrphansRemoved)
		report.OrphansRemoved++
		report.OrphanIDs = append(report.OrphanIDs, orphans[i].ID)
		e.mirrorDelete(ctx, owner, orphans[i].ID)
	}

	e.logger.Info("meeting cleanup complete",
		"owner", owner, "meeting_id", meetingID,
		"entities_touched", report.EntitiesTouched,
		"orphans_removed", report.OrphansRemoved)
	return report, nil
}

// OnEntityDeleted removes the entity and all its edges. Other entities'
// mention counts are untouched; relationship edges to the entity are simply
// dropped.
func (e *Engine) OnEntityDeleted(ctx context.Context, owner, entityID string) error {
	if err := e.store.DeleteEntity(ctx, owner, entityID); err != nil {
		if errors.Is(err, graph.ErrUpstreamUnavailable) {
			metrics.Inc(metrics.CleanupErrors)
			e.logger.Warn("graph unavailable during entity cleanup, skipping",
				"owner", owner, "entity_id", entityID, "error", err)
			return nil
		}
		return err
	}
	e.mirrorDelete(ctx, owner, entityID)
	e.logger.Info("entity deleted", "owner", owner, "entity_id", entityID)
	return nil
}

func (e *Engine) mirrorDelete(ctx context.Context, owner, id string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Delete(ctx, owner, id); err != nil {
		e.logger.Warn("mirror delete failed", "entity_id", id, "error", err)
	}
}
