// Package ingest consumes the external extraction step's output and feeds
// it into the entity graph and the relational mirror.
package ingest

import (
	"context"
	"log/slog"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/metrics"
	"github.com/tamihq/tami-graph/internal/mirror"
	"github.com/tamihq/tami-graph/internal/models"
)

// Report summarizes one ingest run for a meeting.
type Report struct {
	Upserted  int      `json:"upserted"`
	Failed    int      `json:"failed"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// Pipeline upserts extracted entities and their mention edges. Ingest is
// best-effort per entity: one bad extraction result does not abort the
// batch.
type Pipeline struct {
	store  graph.Store
	mirror *mirror.Mirror
	logger *slog.Logger
}

// NewPipeline creates an ingest pipeline. m may be nil when no relational
// mirror is configured.
func NewPipeline(store graph.Store, m *mirror.Mirror, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		mirror: m,
		logger: logger,
	}
}

// IngestMeeting upserts every extracted entity for one meeting and records
// a mention edge per entity. Repeat ingests of the same meeting increment
// the existing mention edges rather than creating parallel ones.
func (p *Pipeline) IngestMeeting(ctx context.Context, owner, meetingID string, extracted []models.ExtractedEntity) (*Report, error) {
	report := &Report{}

	for i := range extracted {
		ex := extracted[i]

		entity, err := p.store.UpsertExtracted(ctx, owner, ex)
		if err != nil {
			report.Failed++
			p.logger.Warn("entity upsert failed",
				"owner", owner, "meeting_id", meetingID,
				"display_value", ex.DisplayValue, "error", err)
			continue
		}
		metrics.Inc(metrics.EntitiesCreated)

		count := ex.MentionCount
		if count <= 0 {
			count = 1
		}
		m := models.Mention{
			EntityID:       entity.ID,
			MeetingID:      meetingID,
			Context:        ex.Context,
			Count:          count,
			TimestampStart: ex.TimestampStart,
			TimestampEnd:   ex.TimestampEnd,
			Speaker:        ex.Speaker,
			Sentiment:      ex.Sentiment,
		}
		if err := p.store.AddMention(ctx, owner, m); err != nil {
			report.Failed++
			p.logger.Warn("mention upsert failed",
				"entity_id", entity.ID, "meeting_id", meetingID, "error", err)
			continue
		}
		metrics.Inc(metrics.MentionsRecorded)

		if p.mirror != nil {
			if mirrorErr := p.mirror.Upsert(ctx, entity); mirrorErr != nil {
				p.logger.Warn("mirror upsert failed during ingest",
					"entity_id", entity.ID, "error", mirrorErr)
			}
		}

		report.Upserted++
		report.EntityIDs = append(report.EntityIDs, entity.ID)
	}

	p.logger.Info("meeting ingest complete",
		"owner", owner, "meeting_id", meetingID,
		"upserted", report.Upserted, "failed", report.Failed)
	return report, nil
}
