package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tamihq/tami-graph/internal/models"
)

// Neo4jStore implements Store against a Neo4j database. All statements are
// parameterized; the only values ever spliced into a pattern are node
// labels and relationship types drawn from the closed enums in models,
// plus the clamped integer hop bound of FindConnections.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, username, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: verifying neo4j connectivity: %v", ErrUpstreamUnavailable, err)
	}

	logger.Info("connected to neo4j", "uri", uri, "database", database)

	return &Neo4jStore{driver: driver, database: database, logger: logger}, nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// --- query primitives ---

// runMany executes a read statement and returns all rows with graph-native
// values normalized to plain Go values.
func (s *Neo4jStore) runMany(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return rows.([]map[string]any), nil
}

// runSingle executes a read statement expecting at most one row.
func (s *Neo4jStore) runSingle(ctx context.Context, cypher string, params map[string]any) (map[string]any, error) {
	rows, err := s.runMany(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// writeSingle executes a write statement in its own transaction and returns
// at most one row.
func (s *Neo4jStore) writeSingle(ctx context.Context, cypher string, params map[string]any) (map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	rows, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, cypher, params)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	rs := rows.([]map[string]any)
	if len(rs) == 0 {
		return nil, nil
	}
	return rs[0], nil
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			val, _ := record.Get(key)
			row[key] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// --- schema ---

// EnsureSchema idempotently creates the constraints and indexes the engine
// relies on: a unique entity id, the (owner, normalized value) lookup index
// used by extraction upserts, and the full-text name index.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT meeting_id_unique IF NOT EXISTS FOR (m:Meeting) REQUIRE m.id IS UNIQUE`,
		`CREATE INDEX entity_owner_normalized IF NOT EXISTS FOR (e:Entity) ON (e.user_id, e.normalized_value)`,
		`CREATE FULLTEXT INDEX entity_search IF NOT EXISTS FOR (e:Entity) ON EACH [e.display_value, e.normalized_value]`,
	}
	for _, stmt := range statements {
		if _, err := s.writeSingle(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	s.logger.Debug("graph schema ensured")
	return nil
}

// --- entity CRUD ---

func (s *Neo4jStore) CreateEntity(ctx context.Context, owner string, in CreateEntityInput) (*models.Entity, error) {
	if strings.TrimSpace(in.DisplayValue) == "" {
		return nil, fmt.Errorf("%w: display value is required", ErrValidation)
	}
	if in.Category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	category := models.ParseCategory(string(in.Category))
	now := time.Now().UTC()
	cypher := fmt.Sprintf(`
		CREATE (e:Entity:%s {
			id: $id, user_id: $owner, category: $category,
			normalized_value: $normalized, display_value: $display,
			aliases: $aliases, description: $description,
			mention_count: 0, confidence: 1.0, is_user_created: true,
			first_seen: $now, last_seen: $now, created_at: $now, updated_at: $now
		})
		RETURN e`, category.Label())

	row, err := s.writeSingle(ctx, cypher, map[string]any{
		"id":          uuid.New().String(),
		"owner":       owner,
		"category":    string(category),
		"normalized":  models.NormalizeValue(in.DisplayValue),
		"display":     strings.TrimSpace(in.DisplayValue),
		"aliases":     models.MergeAliases(nil, in.Aliases...),
		"description": in.Description,
		"now":         now,
	})
	if err != nil {
		return nil, err
	}
	return entityFromRow(row, "e")
}

func (s *Neo4jStore) UpsertExtracted(ctx context.Context, owner string, ex models.ExtractedEntity) (*models.Entity, error) {
	if strings.TrimSpace(ex.DisplayValue) == "" {
		return nil, fmt.Errorf("%w: display value is required", ErrValidation)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	category := models.ParseCategory(ex.Category)
	count := ex.MentionCount
	if count <= 0 {
		count = 1
	}

	cypher := fmt.Sprintf(`
		MERGE (e:Entity:%s {user_id: $owner, normalized_value: $normalized})
		ON CREATE SET
			e.id = $id,
			e.category = $category,
			e.display_value = $display,
			e.aliases = $aliases,
			e.description = $description,
			e.mention_count = $count,
			e.confidence = $confidence,
			e.is_user_created = false,
			e.first_seen = $now, e.last_seen = $now,
			e.created_at = $now, e.updated_at = $now
		ON MATCH SET
			e.mention_count = e.mention_count + $count,
			e.last_seen = $now,
			e.updated_at = $now,
			e.aliases = e.aliases + [a IN $aliases WHERE NOT a IN e.aliases],
			e.description = CASE WHEN e.description IS NULL OR e.description = '' THEN $description ELSE e.description END
		RETURN e`, category.Label())

	row, err := s.writeSingle(ctx, cypher, map[string]any{
		"id":          uuid.New().String(),
		"owner":       owner,
		"category":    string(category),
		"normalized":  models.NormalizeValue(ex.DisplayValue),
		"display":     strings.TrimSpace(ex.DisplayValue),
		"aliases":     models.MergeAliases(nil, ex.Aliases...),
		"description": ex.Description,
		"count":       count,
		"confidence":  ex.Confidence,
		"now":         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return entityFromRow(row, "e")
}

func (s *Neo4jStore) AddMention(ctx context.Context, owner string, m models.Mention) error {
	if m.EntityID == "" || m.MeetingID == "" {
		return fmt.Errorf("%w: entity and meeting ids are required", ErrValidation)
	}
	count := m.Count
	if count <= 0 {
		count = 1
	}

	cypher := `
		MATCH (e:Entity {id: $entity_id, user_id: $owner})
		MERGE (mt:Meeting {id: $meeting_id})
		ON CREATE SET mt.user_id = $owner, mt.created_at = $now
		MERGE (e)-[r:MENTIONED_IN]->(mt)
		ON CREATE SET
			r.context = $context,
			r.mention_count = $count,
			r.timestamp_start = $ts_start,
			r.timestamp_end = $ts_end,
			r.speaker = $speaker,
			r.sentiment = $sentiment,
			r.created_at = $now
		ON MATCH SET
			r.mention_count = r.mention_count + $count
		RETURN e.id AS id`

	row, err := s.writeSingle(ctx, cypher, map[string]any{
		"entity_id":  m.EntityID,
		"meeting_id": m.MeetingID,
		"owner":      owner,
		"context":    m.Context,
		"count":      count,
		"ts_start":   m.TimestampStart,
		"ts_end":     m.TimestampEnd,
		"speaker":    m.Speaker,
		"sentiment":  m.Sentiment,
		"now":        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, m.EntityID)
	}
	return nil
}

func (s *Neo4jStore) GetEntity(ctx context.Context, owner, id string) (*models.Entity, error) {
	row, err := s.runSingle(ctx,
		`MATCH (e:Entity {id: $id, user_id: $owner}) RETURN e`,
		map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entityFromRow(row, "e")
}

func (s *Neo4jStore) GetEntityDetail(ctx context.Context, owner, id string) (*models.EntityDetail, error) {
	entity, err := s.GetEntity(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	detail := &models.EntityDetail{Entity: *entity}

	mentionRows, err := s.runMany(ctx, `
		MATCH (e:Entity {id: $id, user_id: $owner})-[r:MENTIONED_IN]->(m:Meeting)
		RETURN m.id AS meeting_id, properties(r) AS props
		ORDER BY m.id`,
		map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, err
	}
	for _, row := range mentionRows {
		props, _ := row["props"].(map[string]any)
		detail.Mentions = append(detail.Mentions, mentionFromProps(id, asString(row["meeting_id"]), props))
	}

	rels, err := s.ListRelationships(ctx, owner, id, models.DirectionBoth)
	if err != nil {
		return nil, err
	}
	detail.Relationships = rels
	return detail, nil
}

func (s *Neo4jStore) UpdateEntity(ctx context.Context, owner, id string, patch EntityPatch) (*models.Entity, error) {
	// Build the SET clause from a fixed field list; only parameter values
	// vary per request.
	setClauses := []string{"e.updated_at = $now"}
	params := map[string]any{"id": id, "owner": owner, "now": time.Now().UTC()}

	if patch.DisplayValue != nil {
		display := strings.TrimSpace(*patch.DisplayValue)
		if display == "" {
			return nil, fmt.Errorf("%w: display value must not be empty", ErrValidation)
		}
		setClauses = append(setClauses, "e.display_value = $display", "e.normalized_value = $normalized")
		params["display"] = display
		params["normalized"] = models.NormalizeValue(display)
	}
	if patch.Description != nil {
		setClauses = append(setClauses, "e.description = $description")
		params["description"] = *patch.Description
	}
	if patch.Aliases != nil {
		setClauses = append(setClauses, "e.aliases = $aliases")
		params["aliases"] = models.MergeAliases(nil, (*patch.Aliases)...)
	}

	cypher := fmt.Sprintf(`
		MATCH (e:Entity {id: $id, user_id: $owner})
		SET %s
		RETURN e`, strings.Join(setClauses, ", "))

	row, err := s.writeSingle(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entityFromRow(row, "e")
}

func (s *Neo4jStore) DeleteEntity(ctx context.Context, owner, id string) error {
	row, err := s.writeSingle(ctx, `
		MATCH (e:Entity {id: $id, user_id: $owner})
		WITH e, count(e) AS found
		DETACH DELETE e
		RETURN found`,
		map[string]any{"id": id, "owner": owner})
	if err != nil {
		return err
	}
	if row == nil || asInt(row["found"]) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Debug("deleted entity", "id", id)
	return nil
}

// --- listing and search ---

func (s *Neo4jStore) ListEntities(ctx context.Context, owner string, opts ListOptions) (*models.GroupedListing, error) {
	var rows []map[string]any
	var err error

	switch {
	case opts.SearchText != "":
		// Index lookup instead of a full node scan.
		rows, err = s.runMany(ctx, `
			CALL db.index.fulltext.queryNodes('entity_search', $text) YIELD node, score
			WHERE node.user_id = $owner AND ($category = '' OR node.category = $category)
			OPTIONAL MATCH (node)-[:MENTIONED_IN]->(m:Meeting)
			WITH node AS e, count(DISTINCT m) AS meeting_count, max(score) AS score
			RETURN e, meeting_count
			ORDER BY score DESC, e.mention_count DESC
			SKIP $offset LIMIT $limit`,
			map[string]any{
				"text":     fulltextQuery(opts.SearchText),
				"owner":    owner,
				"category": categoryParam(opts.Category),
				"offset":   listOffset(opts),
				"limit":    listLimit(opts),
			})
	case opts.Category != nil:
		rows, err = s.runMany(ctx, fmt.Sprintf(`
			MATCH (e:Entity:%s {user_id: $owner})
			OPTIONAL MATCH (e)-[:MENTIONED_IN]->(m:Meeting)
			WITH e, count(DISTINCT m) AS meeting_count
			RETURN e, meeting_count
			ORDER BY e.mention_count DESC
			SKIP $offset LIMIT $limit`, opts.Category.Label()),
			map[string]any{"owner": owner, "offset": listOffset(opts), "limit": listLimit(opts)})
	default:
		rows, err = s.runMany(ctx, `
			MATCH (e:Entity {user_id: $owner})
			OPTIONAL MATCH (e)-[:MENTIONED_IN]->(m:Meeting)
			WITH e, count(DISTINCT m) AS meeting_count
			RETURN e, meeting_count
			ORDER BY e.mention_count DESC
			SKIP $offset LIMIT $limit`,
			map[string]any{"owner": owner, "offset": listOffset(opts), "limit": listLimit(opts)})
	}
	if err != nil {
		return nil, err
	}

	listing := &models.GroupedListing{
		Groups: make(map[models.EntityCategory][]models.EntityListing),
		Counts: make(map[models.EntityCategory]int),
	}
	for _, row := range rows {
		entity, err := entityFromRow(row, "e")
		if err != nil {
			return nil, err
		}
		item := models.EntityListing{Entity: *entity, MeetingCount: asInt(row["meeting_count"])}
		listing.Groups[entity.Category] = append(listing.Groups[entity.Category], item)
		listing.Counts[entity.Category]++
		listing.Total++
	}
	return listing, nil
}

func (s *Neo4jStore) SearchEntities(ctx context.Context, owner, text string, categories []models.EntityCategory, limit int) ([]models.Entity, error) {
	cats := make([]string, 0, len(categories))
	for _, c := range categories {
		cats = append(cats, string(models.ParseCategory(string(c))))
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.runMany(ctx, `
		CALL db.index.fulltext.queryNodes('entity_search', $text) YIELD node, score
		WHERE node.user_id = $owner AND (size($categories) = 0 OR node.category IN $categories)
		RETURN node AS e
		ORDER BY score DESC
		LIMIT $limit`,
		map[string]any{
			"text":       fulltextQuery(text),
			"owner":      owner,
			"categories": cats,
			"limit":      limit,
		})
	if err != nil {
		return nil, err
	}
	return entitiesFromRows(rows, "e")
}

func (s *Neo4jStore) ListCandidates(ctx context.Context, owner string, category models.EntityCategory, excludeID string) ([]models.Entity, error) {
	cypher := fmt.Sprintf(`
		MATCH (e:Entity:%s {user_id: $owner})
		WHERE e.id <> $exclude
		RETURN e
		ORDER BY e.mention_count DESC`, models.ParseCategory(string(category)).Label())

	rows, err := s.runMany(ctx, cypher, map[string]any{"owner": owner, "exclude": excludeID})
	if err != nil {
		return nil, err
	}
	return entitiesFromRows(rows, "e")
}

// --- relationships ---

func (s *Neo4jStore) CreateRelationship(ctx context.Context, owner string, rel models.Relationship) error {
	if !rel.Type.IsValid() {
		return fmt.Errorf("%w: unknown relationship type %q", ErrInvalidOperation, rel.Type)
	}
	if rel.FromID == rel.ToID {
		return fmt.Errorf("%w: relationship endpoints must differ", ErrInvalidOperation)
	}

	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $from_id, user_id: $owner})
		MATCH (b:Entity {id: $to_id, user_id: $owner})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET
			r.confidence = $confidence,
			r.context = $context,
			r.source = $source,
			r.created_at = $now
		RETURN a.id AS id`, rel.Type)

	row, err := s.writeSingle(ctx, cypher, map[string]any{
		"from_id":    rel.FromID,
		"to_id":      rel.ToID,
		"owner":      owner,
		"confidence": rel.Confidence,
		"context":    rel.Context,
		"source":     rel.Source,
		"now":        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: relationship endpoints", ErrNotFound)
	}
	return nil
}

func (s *Neo4jStore) ListRelationships(ctx context.Context, owner, id string, dir models.RelDirection) ([]models.Relationship, error) {
	var cypher string
	switch dir {
	case models.DirectionOutgoing:
		cypher = `
			MATCH (e:Entity {id: $id, user_id: $owner})-[r]->(other:Entity)
			WHERE type(r) <> 'MENTIONED_IN'
			RETURN e.id AS from_id, other.id AS to_id, type(r) AS rel_type, properties(r) AS props`
	case models.DirectionIncoming:
		cypher = `
			MATCH (other:Entity)-[r]->(e:Entity {id: $id, user_id: $owner})
			WHERE type(r) <> 'MENTIONED_IN'
			RETURN other.id AS from_id, e.id AS to_id, type(r) AS rel_type, properties(r) AS props`
	default:
		cypher = `
			MATCH (e:Entity {id: $id, user_id: $owner})-[r]-(other:Entity)
			WHERE type(r) <> 'MENTIONED_IN'
			RETURN startNode(r).id AS from_id, endNode(r).id AS to_id, type(r) AS rel_type, properties(r) AS props`
	}

	rows, err := s.runMany(ctx, cypher, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, err
	}

	out := make([]models.Relationship, 0, len(rows))
	for _, row := range rows {
		typ, ok := models.ParseRelationType(asString(row["rel_type"]))
		if !ok {
			continue
		}
		props, _ := row["props"].(map[string]any)
		out = append(out, models.Relationship{
			FromID:     asString(row["from_id"]),
			ToID:       asString(row["to_id"]),
			Type:       typ,
			Confidence: asFloat(props["confidence"]),
			Context:    asString(props["context"]),
			Source:     asString(props["source"]),
			CreatedAt:  asTime(props["created_at"]),
		})
	}
	return out, nil
}

func (s *Neo4jStore) DeleteRelationship(ctx context.Context, owner, fromID, toID string, typ models.RelationType) error {
	if !typ.IsValid() {
		return fmt.Errorf("%w: unknown relationship type %q", ErrInvalidOperation, typ)
	}

	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $from_id, user_id: $owner})-[r:%s]->(b:Entity {id: $to_id})
		WITH r, count(r) AS found
		DELETE r
		RETURN found`, typ)

	row, err := s.writeSingle(ctx, cypher, map[string]any{
		"from_id": fromID, "to_id": toID, "owner": owner,
	})
	if err != nil {
		return err
	}
	if row == nil || asInt(row["found"]) == 0 {
		return fmt.Errorf("%w: relationship", ErrNotFound)
	}
	return nil
}

// --- merge ---

// MergeEntities folds source into target inside one managed write
// transaction: either every effect applies or none do.
func (s *Neo4jStore) MergeEntities(ctx context.Context, owner, targetID, sourceID string) (*models.Entity, error) {
	if targetID == sourceID {
		return nil, fmt.Errorf("%w: cannot merge an entity into itself", ErrInvalidOperation)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return s.mergeInTx(ctx, tx, owner, targetID, sourceID)
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return merged.(*models.Entity), nil
}

func (s *Neo4jStore) mergeInTx(ctx context.Context, tx neo4j.ManagedTransaction, owner, targetID, sourceID string) (*models.Entity, error) {
	ids := map[string]any{"target_id": targetID, "source_id": sourceID, "owner": owner}

	// Both nodes must exist under this owner; a retried merge finds the
	// source already deleted and fails here with ErrNotFound.
	rows, err := collectRows(ctx, tx, `
		MATCH (target:Entity {id: $target_id, user_id: $owner})
		MATCH (source:Entity {id: $source_id, user_id: $owner})
		RETURN target, source`, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: merge of %s into %s", ErrNotFound, sourceID, targetID)
	}
	target, err := entityFromRow(rows[0], "target")
	if err != nil {
		return nil, err
	}
	source, err := entityFromRow(rows[0], "source")
	if err != nil {
		return nil, err
	}

	// Transfer mention edges, combining counts and timestamps per meeting.
	if _, err := collectRows(ctx, tx, `
		MATCH (source:Entity {id: $source_id, user_id: $owner})-[r:MENTIONED_IN]->(m:Meeting)
		MATCH (target:Entity {id: $target_id, user_id: $owner})
		MERGE (target)-[nr:MENTIONED_IN]->(m)
		ON CREATE SET nr = properties(r)
		ON MATCH SET
			nr.mention_count = coalesce(nr.mention_count, 0) + coalesce(r.mention_count, 1),
			nr.timestamp_start = CASE
				WHEN r.timestamp_start IS NOT NULL AND r.timestamp_start > 0
					AND (nr.timestamp_start IS NULL OR nr.timestamp_start = 0 OR r.timestamp_start < nr.timestamp_start)
				THEN r.timestamp_start ELSE nr.timestamp_start END,
			nr.timestamp_end = CASE
				WHEN r.timestamp_end IS NOT NULL AND (nr.timestamp_end IS NULL OR r.timestamp_end > nr.timestamp_end)
				THEN r.timestamp_end ELSE nr.timestamp_end END,
			nr.context = CASE
				WHEN r.context IS NULL OR r.context = '' OR nr.context CONTAINS r.context THEN nr.context
				WHEN nr.context IS NULL OR nr.context = '' THEN r.context
				ELSE nr.context + '\n' + r.context END
		DELETE r
		RETURN count(r) AS moved`, ids); err != nil {
		return nil, err
	}

	// Collect relationship edges touching the source, then re-point each
	// onto the target. Types come back from the store and are filtered
	// through the closed enum before being spliced into a pattern.
	relRows, err := collectRows(ctx, tx, `
		MATCH (source:Entity {id: $source_id, user_id: $owner})-[r]-(other:Entity)
		WHERE type(r) <> 'MENTIONED_IN'
		RETURN other.id AS other_id, type(r) AS rel_type,
		       startNode(r).id = $source_id AS outgoing, properties(r) AS props`, ids)
	if err != nil {
		return nil, err
	}
	for _, row := range relRows {
		typ, ok := models.ParseRelationType(asString(row["rel_type"]))
		if !ok {
			continue
		}
		otherID := asString(row["other_id"])
		if otherID == targetID {
			// Would become a self-loop on the target; dropped.
			continue
		}
		pattern := `MATCH (target:Entity {id: $target_id, user_id: $owner})
			MATCH (other:Entity {id: $other_id})
			MERGE (target)-[nr:%s]->(other)
			ON CREATE SET nr = $props`
		if !asBool(row["outgoing"]) {
			pattern = `MATCH (target:Entity {id: $target_id, user_id: $owner})
			MATCH (other:Entity {id: $other_id})
			MERGE (other)-[nr:%s]->(target)
			ON CREATE SET nr = $props`
		}
		if _, err := collectRows(ctx, tx, fmt.Sprintf(pattern, typ), map[string]any{
			"target_id": targetID,
			"owner":     owner,
			"other_id":  otherID,
			"props":     row["props"],
		}); err != nil {
			return nil, err
		}
	}

	// Fold counts, aliases and seen-range into the target, then delete the
	// now-edgeless source.
	aliases := models.MergeAliases(target.Aliases,
		append([]string{source.DisplayValue, source.NormalizedValue}, source.Aliases...)...)
	firstSeen := target.FirstSeen
	if !source.FirstSeen.IsZero() && source.FirstSeen.Before(firstSeen) {
		firstSeen = source.FirstSeen
	}
	lastSeen := target.LastSeen
	if source.LastSeen.After(lastSeen) {
		lastSeen = source.LastSeen
	}

	finalRows, err := collectRows(ctx, tx, `
		MATCH (target:Entity {id: $target_id, user_id: $owner})
		MATCH (source:Entity {id: $source_id, user_id: $owner})
		SET target.mention_count = target.mention_count + source.mention_count,
		    target.aliases = $aliases,
		    target.first_seen = $first_seen,
		    target.last_seen = $last_seen,
		    target.updated_at = $now
		DETACH DELETE source
		RETURN target`, map[string]any{
		"target_id":  targetID,
		"source_id":  sourceID,
		"owner":      owner,
		"aliases":    aliases,
		"first_seen": firstSeen,
		"last_seen":  lastSeen,
		"now":        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if len(finalRows) == 0 {
		return nil, fmt.Errorf("%w: merge of %s into %s", ErrNotFound, sourceID, targetID)
	}

	s.logger.Info("merged entities", "target", targetID, "source", sourceID, "owner", owner)
	return entityFromRow(finalRows[0], "target")
}

// --- cleanup primitives ---

func (s *Neo4jStore) RemoveMeetingMentions(ctx context.Context, owner, meetingID string) (int, error) {
	row, err := s.writeSingle(ctx, `
		MATCH (e:Entity {user_id: $owner})-[r:MENTIONED_IN]->(m:Meeting {id: $meeting_id})
		WITH e, r, coalesce(r.mention_count, 1) AS c
		SET e.mention_count = CASE
			WHEN e.mention_count - c < 0 THEN 0
			ELSE e.mention_count - c END,
		    e.updated_at = $now
		DELETE r
		RETURN count(e) AS affected`,
		map[string]any{"owner": owner, "meeting_id": meetingID, "now": time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return asInt(row["affected"]), nil
}

func (s *Neo4jStore) ListOrphans(ctx context.Context, owner string) ([]models.Entity, error) {
	rows, err := s.runMany(ctx, `
		MATCH (e:Entity {user_id: $owner})
		WHERE e.mention_count = 0 AND e.is_user_created = false
		RETURN e`,
		map[string]any{"owner": owner})
	if err != nil {
		return nil, err
	}
	return entitiesFromRows(rows, "e")
}

// --- analytics ---

func (s *Neo4jStore) CoOccurrences(ctx context.Context, owner string, minMeetings, limit int) ([]models.CoOccurrence, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.runMany(ctx, `
		MATCH (e1:Entity {user_id: $owner})-[:MENTIONED_IN]->(m:Meeting)<-[:MENTIONED_IN]-(e2:Entity {user_id: $owner})
		WHERE e1.id < e2.id
		WITH e1, e2, count(DISTINCT m) AS shared
		WHERE shared >= $min_meetings
		RETURN e1, e2, shared
		ORDER BY shared DESC
		LIMIT $limit`,
		map[string]any{"owner": owner, "min_meetings": minMeetings, "limit": limit})
	if err != nil {
		return nil, err
	}

	out := make([]models.CoOccurrence, 0, len(rows))
	for _, row := range rows {
		first, err := entityFromRow(row, "e1")
		if err != nil {
			return nil, err
		}
		second, err := entityFromRow(row, "e2")
		if err != nil {
			return nil, err
		}
		out = append(out, models.CoOccurrence{
			First:          *first,
			Second:         *second,
			SharedMeetings: asInt(row["shared"]),
		})
	}
	return out, nil
}

// InferCollaborations mirrors the co-occurrence query as a single write:
// person pairs sharing enough meetings get a COLLABORATES_WITH edge with
// source "inferred". Re-running refreshes the context on inferred edges and
// leaves user or extraction edges alone.
func (s *Neo4jStore) InferCollaborations(ctx context.Context, owner string, minShared int) (int, error) {
	if minShared < 1 {
		minShared = 1
	}

	person := models.CategoryPerson.Label()
	row, err := s.writeSingle(ctx, fmt.Sprintf(`
		MATCH (p1:Entity:%s {user_id: $owner})-[:MENTIONED_IN]->(m:Meeting)<-[:MENTIONED_IN]-(p2:Entity:%s {user_id: $owner})
		WHERE p1.id < p2.id
		WITH p1, p2, count(DISTINCT m) AS shared
		WHERE shared >= $min_shared
		MERGE (p1)-[r:COLLABORATES_WITH]->(p2)
		ON CREATE SET
			r.confidence = 1.0,
			r.context = 'co-occurred in ' + toString(shared) + ' meetings',
			r.source = 'inferred',
			r.created_at = $now
		ON MATCH SET
			r.context = CASE WHEN r.source = 'inferred'
				THEN 'co-occurred in ' + toString(shared) + ' meetings'
				ELSE r.context END
		RETURN count(r) AS inferred`, person, person),
		map[string]any{"owner": owner, "min_shared": minShared, "now": time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}

	inferred := asInt(row["inferred"])
	s.logger.Info("inferred collaborations", "owner", owner, "min_shared", minShared, "pairs", inferred)
	return inferred, nil
}

// FindConnections runs a bounded shortest-path query between two owned
// entities. Paths may pass through meetings via mention edges. The hop
// bound is an integer clamped to [1,6] before being spliced into the
// variable-length pattern, which Cypher cannot parameterize.
func (s *Neo4jStore) FindConnections(ctx context.Context, owner, fromID, toID string, maxHops int) ([]models.ConnectionPath, error) {
	if fromID == toID {
		return nil, fmt.Errorf("%w: connection endpoints must differ", ErrInvalidOperation)
	}

	// Both endpoints must exist under this owner.
	if _, err := s.GetEntity(ctx, owner, fromID); err != nil {
		return nil, err
	}
	if _, err := s.GetEntity(ctx, owner, toID); err != nil {
		return nil, err
	}

	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $from_id, user_id: $owner})
		MATCH (b:Entity {id: $to_id, user_id: $owner})
		MATCH path = shortestPath((a)-[*1..%d]-(b))
		RETURN [node IN nodes(path) | {id: node.id, name: coalesce(node.display_value, node.id), labels: labels(node)}] AS path_nodes,
		       [rel IN relationships(path) | {from: startNode(rel).id, to: endNode(rel).id, type: type(rel)}] AS path_edges
		LIMIT 5`, clampHops(maxHops))

	rows, err := s.runMany(ctx, cypher, map[string]any{
		"from_id": fromID, "to_id": toID, "owner": owner,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ConnectionPath, 0, len(rows))
	for _, row := range rows {
		out = append(out, connectionPathFromRow(row))
	}
	return out, nil
}

func connectionPathFromRow(row map[string]any) models.ConnectionPath {
	var path models.ConnectionPath

	nodes, _ := row["path_nodes"].([]any)
	for _, raw := range nodes {
		props, _ := raw.(map[string]any)
		kind := "entity"
		for _, label := range asStringSlice(props["labels"]) {
			if label == "Meeting" {
				kind = "meeting"
			}
		}
		path.Nodes = append(path.Nodes, models.PathNode{
			ID:   asString(props["id"]),
			Kind: kind,
			Name: asString(props["name"]),
		})
	}

	edges, _ := row["path_edges"].([]any)
	for _, raw := range edges {
		props, _ := raw.(map[string]any)
		path.Edges = append(path.Edges, models.PathEdge{
			FromID: asString(props["from"]),
			ToID:   asString(props["to"]),
			Type:   asString(props["type"]),
		})
	}
	return path
}

func (s *Neo4jStore) Stats(ctx context.Context, owner string) (*models.EntityStats, error) {
	rows, err := s.runMany(ctx, `
		MATCH (e:Entity {user_id: $owner})
		RETURN e.category AS category, count(e) AS count
		ORDER BY count DESC`,
		map[string]any{"owner": owner})
	if err != nil {
		return nil, err
	}

	stats := &models.EntityStats{ByCategory: make(map[models.EntityCategory]int64)}
	for _, row := range rows {
		category := models.ParseCategory(asString(row["category"]))
		count := int64(asInt(row["count"]))
		stats.ByCategory[category] += count
		stats.Total += count
	}
	return stats, nil
}

// --- helpers ---

func isDomainErr(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrValidation)
}

func listOffset(opts ListOptions) int {
	if opts.Offset < 0 {
		return 0
	}
	return opts.Offset
}

func listLimit(opts ListOptions) int {
	if opts.Limit <= 0 {
		return 100
	}
	return opts.Limit
}

// clampHops bounds the variable-length pattern of a connection search.
func clampHops(hops int) int {
	if hops < 1 {
		return 4
	}
	if hops > 6 {
		return 6
	}
	return hops
}

func categoryParam(c *models.EntityCategory) string {
	if c == nil {
		return ""
	}
	return string(models.ParseCategory(string(*c)))
}

// fulltextQuery quotes user text for the Lucene-backed full-text index so
// that operators in entity names are treated literally.
func fulltextQuery(text string) string {
	escaped := strings.ReplaceAll(strings.TrimSpace(text), `"`, `\"`)
	return `"` + escaped + `"`
}
