// Package mirror maintains the relational copy of entities used for fast
// per-user listings. The graph is the system of record for identity; this
// table is a denormalized read cache reconciled on the same write path.
// Writes here happen before the corresponding graph write, and entries for
// entities the graph later loses are cleaned up by the same callers.
package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamihq/tami-graph/internal/models"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is the lightweight relational copy of one entity.
type Entry struct {
	ID              string                `json:"id"`
	Owner           string                `json:"owner"`
	Value           string                `json:"value"`
	NormalizedValue string                `json:"normalized_value"`
	Category        models.EntityCategory `json:"category"`
}

// Mirror writes entity rows to Postgres. A nil *Mirror is valid and turns
// every method into a no-op, so deployments without the mirror table work
// unchanged.
type Mirror struct {
	db     dbConn
	logger *slog.Logger
}

// New creates a Mirror backed by the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Mirror {
	return &Mirror{db: pool, logger: logger}
}

// EnsureTable idempotently creates the mirror table and its lookup index.
func (m *Mirror) EnsureTable(ctx context.Context) error {
	if m == nil {
		return nil
	}
	_, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entity_mirror (
			id               TEXT PRIMARY KEY,
			owner            TEXT NOT NULL,
			value            TEXT NOT NULL,
			normalized_value TEXT NOT NULL,
			category         TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating entity_mirror table: %w", err)
	}
	_, err = m.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS entity_mirror_owner_idx
		ON entity_mirror (owner, normalized_value)`)
	if err != nil {
		return fmt.Errorf("creating entity_mirror index: %w", err)
	}
	return nil
}

// Upsert writes the current state of an entity into the mirror.
func (m *Mirror) Upsert(ctx context.Context, e *models.Entity) error {
	if m == nil {
		return nil
	}
	_, err := m.db.Exec(ctx, `
		INSERT INTO entity_mirror (id, owner, value, normalized_value, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			value = EXCLUDED.value,
			normalized_value = EXCLUDED.normalized_value,
			category = EXCLUDED.category`,
		e.ID, e.Owner, e.DisplayValue, e.NormalizedValue, string(e.Category))
	if err != nil {
		return fmt.Errorf("upserting mirror row %s: %w", e.ID, err)
	}
	return nil
}

// Delete removes an entity's mirror row. Deleting an absent row is not an
// error.
func (m *Mirror) Delete(ctx context.Context, owner, id string) error {
	if m == nil {
		return nil
	}
	_, err := m.db.Exec(ctx, `DELETE FROM entity_mirror WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting mirror row %s: %w", id, err)
	}
	return nil
}

// List returns the owner's mirror entries, optionally filtered by category,
// without touching the graph.
func (m *Mirror) List(ctx context.Context, owner string, category *models.EntityCategory) ([]Entry, error) {
	if m == nil {
		return nil, nil
	}

	var rows pgx.Rows
	var err error
	if category != nil {
		rows, err = m.db.Query(ctx, `
			SELECT id, owner, value, normalized_value, category
			FROM entity_mirror
			WHERE owner = $1 AND category = $2
			ORDER BY normalized_value`, owner, string(*category))
	} else {
		rows, err = m.db.Query(ctx, `
			SELECT id, owner, value, normalized_value, category
			FROM entity_mirror
			WHERE owner = $1
			ORDER BY category, normalized_value`, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("listing mirror rows: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var category string
		if err := rows.Scan(&entry.ID, &entry.Owner, &entry.Value, &entry.NormalizedValue, &category); err != nil {
			return nil, fmt.Errorf("scanning mirror row: %w", err)
		}
		entry.Category = models.ParseCategory(category)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mirror rows: %w", err)
	}
	return out, nil
}
