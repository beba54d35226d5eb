package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamihq/tami-graph/internal/models"
)

// MemoryStore is an in-memory implementation of Store. It backs tests and
// single-process development setups; all mutating operations run under one
// lock, which gives the same atomicity the graph database provides through
// its transactions.
type MemoryStore struct {
	mu sync.RWMutex

	entities map[string]*models.Entity
	// mentions is entityID -> meetingID -> edge.
	mentions map[string]map[string]*models.Mention
	// relationships is keyed by fromID|toID|type for duplicate suppression.
	relationships map[string]*models.Relationship
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:      make(map[string]*models.Entity),
		mentions:      make(map[string]map[string]*models.Mention),
		relationships: make(map[string]*models.Relationship),
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *MemoryStore) EnsureSchema(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(_ context.Context) error { return nil }

func relKey(fromID, toID string, typ models.RelationType) string {
	return fromID + "|" + toID + "|" + string(typ)
}

func copyEntity(e *models.Entity) *models.Entity {
	out := *e
	if len(e.Aliases) > 0 {
		out.Aliases = make([]string, len(e.Aliases))
		copy(out.Aliases, e.Aliases)
	}
	return &out
}

func (s *MemoryStore) owned(owner, id string) (*models.Entity, error) {
	e, ok := s.entities[id]
	if !ok || e.Owner != owner {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) CreateEntity(_ context.Context, owner string, in CreateEntityInput) (*models.Entity, error) {
	if strings.TrimSpace(in.DisplayValue) == "" {
		return nil, fmt.Errorf("%w: display value is required", ErrValidation)
	}
	if in.Category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	e := &models.Entity{
		ID:              uuid.New().String(),
		Owner:           owner,
		Category:        models.ParseCategory(string(in.Category)),
		NormalizedValue: models.NormalizeValue(in.DisplayValue),
		DisplayValue:    strings.TrimSpace(in.DisplayValue),
		Aliases:         models.MergeAliases(nil, in.Aliases...),
		Description:     in.Description,
		Confidence:      1.0,
		IsUserCreated:   true,
		FirstSeen:       now,
		LastSeen:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.entities[e.ID] = e
	return copyEntity(e), nil
}

func (s *MemoryStore) UpsertExtracted(_ context.Context, owner string, ex models.ExtractedEntity) (*models.Entity, error) {
	if strings.TrimSpace(ex.DisplayValue) == "" {
		return nil, fmt.Errorf("%w: display value is required", ErrValidation)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	category := models.ParseCategory(ex.Category)
	normalized := models.NormalizeValue(ex.DisplayValue)
	count := ex.MentionCount
	if count <= 0 {
		count = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, e := range s.entities {
		if e.Owner != owner || e.Category != category || e.NormalizedValue != normalized {
			continue
		}
		e.MentionCount += count
		e.LastSeen = now
		e.UpdatedAt = now
		e.Aliases = models.MergeAliases(e.Aliases, ex.Aliases...)
		if e.Description == "" {
			e.Description = ex.Description
		}
		return copyEntity(e), nil
	}

	e := &models.Entity{
		ID:              uuid.New().String(),
		Owner:           owner,
		Category:        category,
		NormalizedValue: normalized,
		DisplayValue:    strings.TrimSpace(ex.DisplayValue),
		Aliases:         models.MergeAliases(nil, ex.Aliases...),
		Description:     ex.Description,
		MentionCount:    count,
		Confidence:      ex.Confidence,
		IsUserCreated:   false,
		FirstSeen:       now,
		LastSeen:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.entities[e.ID] = e
	return copyEntity(e), nil
}

func (s *MemoryStore) AddMention(_ context.Context, owner string, m models.Mention) error {
	if m.EntityID == "" || m.MeetingID == "" {
		return fmt.Errorf("%w: entity and meeting ids are required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(owner, m.EntityID); err != nil {
		return err
	}

	count := m.Count
	if count <= 0 {
		count = 1
	}

	edges := s.mentions[m.EntityID]
	if edges == nil {
		edges = make(map[string]*models.Mention)
		s.mentions[m.EntityID] = edges
	}
	if existing, ok := edges[m.MeetingID]; ok {
		existing.Count += count
		return nil
	}
	edge := m
	edge.Count = count
	edge.CreatedAt = time.Now().UTC()
	edges[m.MeetingID] = &edge
	return nil
}

func (s *MemoryStore) GetEntity(_ context.Context, owner, id string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.owned(owner, id)
	if err != nil {
		return nil, err
	}
	return copyEntity(e), nil
}

func (s *MemoryStore) GetEntityDetail(_ context.Context, owner, id string) (*models.EntityDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.owned(owner, id)
	if err != nil {
		return nil, err
	}

	detail := &models.EntityDetail{Entity: *copyEntity(e)}
	for _, edge := range s.mentions[id] {
		detail.Mentions = append(detail.Mentions, *edge)
	}
	sort.Slice(detail.Mentions, func(i, j int) bool {
		return detail.Mentions[i].MeetingID < detail.Mentions[j].MeetingID
	})
	for _, rel := range s.relationships {
		if rel.FromID == id || rel.ToID == id {
			detail.Relationships = append(detail.Relationships, *rel)
		}
	}
	sort.Slice(detail.Relationships, func(i, j int) bool {
		a, b := detail.Relationships[i], detail.Relationships[j]
		return relKey(a.FromID, a.ToID, a.Type) < relKey(b.FromID, b.ToID, b.Type)
	})
	return detail, nil
}

func (s *MemoryStore) UpdateEntity(_ context.Context, owner, id string, patch EntityPatch) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.owned(owner, id)
	if err != nil {
		return nil, err
	}

	if patch.DisplayValue != nil {
		if strings.TrimSpace(*patch.DisplayValue) == "" {
			return nil, fmt.Errorf("%w: display value must not be empty", ErrValidation)
		}
		e.DisplayValue = strings.TrimSpace(*patch.DisplayValue)
		e.NormalizedValue = models.NormalizeValue(e.DisplayValue)
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Aliases != nil {
		e.Aliases = models.MergeAliases(nil, *patch.Aliases...)
	}
	e.UpdatedAt = time.Now().UTC()
	return copyEntity(e), nil
}

func (s *MemoryStore) DeleteEntity(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(owner, id); err != nil {
		return err
	}
	s.deleteLocked(id)
	return nil
}

// deleteLocked removes the node and every incident edge. Callers hold mu.
func (s *MemoryStore) deleteLocked(id string) {
	delete(s.entities, id)
	delete(s.mentions, id)
	for key, rel := range s.relationships {
		if rel.FromID == id || rel.ToID == id {
			delete(s.relationships, key)
		}
	}
}

func (s *MemoryStore) ListEntities(_ context.Context, owner string, opts ListOptions) (*models.GroupedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.EntityListing
	for _, e := range s.entities {
		if e.Owner != owner {
			continue
		}
		if opts.Category != nil && e.Category != *opts.Category {
			continue
		}
		if opts.SearchText != "" && !matchesText(e, opts.SearchText) {
			continue
		}
		all = append(all, models.EntityListing{
			Entity:       *copyEntity(e),
			MeetingCount: len(s.mentions[e.ID]),
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Entity.MentionCount != all[j].Entity.MentionCount {
			return all[i].Entity.MentionCount > all[j].Entity.MentionCount
		}
		return all[i].Entity.ID < all[j].Entity.ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			all = nil
		} else {
			all = all[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}

	listing := &models.GroupedListing{
		Groups: make(map[models.EntityCategory][]models.EntityListing),
		Counts: make(map[models.EntityCategory]int),
	}
	for _, item := range all {
		cat := item.Entity.Category
		listing.Groups[cat] = append(listing.Groups[cat], item)
		listing.Counts[cat]++
		listing.Total++
	}
	return listing, nil
}

func matchesText(e *models.Entity, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	if strings.Contains(e.NormalizedValue, needle) ||
		strings.Contains(strings.ToLower(e.DisplayValue), needle) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) SearchEntities(_ context.Context, owner, text string, categories []models.EntityCategory, limit int) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entity
	for _, e := range s.entities {
		if e.Owner != owner || !matchesText(e, text) {
			continue
		}
		if len(categories) > 0 {
			found := false
			for _, c := range categories {
				if e.Category == c {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListCandidates(_ context.Context, owner string, category models.EntityCategory, excludeID string) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entity
	for _, e := range s.entities {
		if e.Owner != owner || e.Category != category || e.ID == excludeID {
			continue
		}
		out = append(out, *copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateRelationship(_ context.Context, owner string, rel models.Relationship) error {
	if !rel.Type.IsValid() {
		return fmt.Errorf("%w: unknown relationship type %q", ErrInvalidOperation, rel.Type)
	}
	if rel.FromID == rel.ToID {
		return fmt.Errorf("%w: relationship endpoints must differ", ErrInvalidOperation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(owner, rel.FromID); err != nil {
		return err
	}
	if _, err := s.owned(owner, rel.ToID); err != nil {
		return err
	}

	key := relKey(rel.FromID, rel.ToID, rel.Type)
	if _, ok := s.relationships[key]; ok {
		return nil
	}
	edge := rel
	edge.CreatedAt = time.Now().UTC()
	s.relationships[key] = &edge
	return nil
}

func (s *MemoryStore) ListRelationships(_ context.Context, owner, id string, dir models.RelDirection) ([]models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.owned(owner, id); err != nil {
		return nil, err
	}

	var out []models.Relationship
	for _, rel := range s.relationships {
		outgoing := rel.FromID == id
		incoming := rel.ToID == id
		switch dir {
		case models.DirectionOutgoing:
			if !outgoing {
				continue
			}
		case models.DirectionIncoming:
			if !incoming {
				continue
			}
		default:
			if !outgoing && !incoming {
				continue
			}
		}
		out = append(out, *rel)
	}
	sort.Slice(out, func(i, j int) bool {
		return relKey(out[i].FromID, out[i].ToID, out[i].Type) < relKey(out[j].FromID, out[j].ToID, out[j].Type)
	})
	return out, nil
}

func (s *MemoryStore) DeleteRelationship(_ context.Context, owner, fromID, toID string, typ models.RelationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(owner, fromID); err != nil {
		return err
	}
	key := relKey(fromID, toID, typ)
	if _, ok := s.relationships[key]; !ok {
		return fmt.Errorf("%w: relationship %s", ErrNotFound, key)
	}
	delete(s.relationships, key)
	return nil
}

func (s *MemoryStore) MergeEntities(_ context.Context, owner, targetID, sourceID string) (*models.Entity, error) {
	if targetID == sourceID {
		return nil, fmt.Errorf("%w: cannot merge an entity into itself", ErrInvalidOperation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.owned(owner, targetID)
	if err != nil {
		return nil, err
	}
	source, err := s.owned(owner, sourceID)
	if err != nil {
		return nil, err
	}

	// Mention edges: combine per meeting, keeping the earliest start and
	// latest end and unioning context snippets.
	targetEdges := s.mentions[targetID]
	if targetEdges == nil {
		targetEdges = make(map[string]*models.Mention)
		s.mentions[targetID] = targetEdges
	}
	for meetingID, srcEdge := range s.mentions[sourceID] {
		if tgtEdge, ok := targetEdges[meetingID]; ok {
			tgtEdge.Count += srcEdge.Count
			if srcEdge.TimestampStart > 0 && (tgtEdge.TimestampStart == 0 || srcEdge.TimestampStart < tgtEdge.TimestampStart) {
				tgtEdge.TimestampStart = srcEdge.TimestampStart
			}
			if srcEdge.TimestampEnd > tgtEdge.TimestampEnd {
				tgtEdge.TimestampEnd = srcEdge.TimestampEnd
			}
			tgtEdge.Context = unionContext(tgtEdge.Context, srcEdge.Context)
			continue
		}
		moved := *srcEdge
		moved.EntityID = targetID
		targetEdges[meetingID] = &moved
	}
	delete(s.mentions, sourceID)

	// Relationship edges: re-point both directions, skipping exact
	// duplicates already present on the target. Edges between source and
	// target would become self-loops and are dropped.
	for key, rel := range s.relationships {
		if rel.FromID != sourceID && rel.ToID != sourceID {
			continue
		}
		delete(s.relationships, key)
		moved := *rel
		if moved.FromID == sourceID {
			moved.FromID = targetID
		}
		if moved.ToID == sourceID {
			moved.ToID = targetID
		}
		if moved.FromID == moved.ToID {
			continue
		}
		newKey := relKey(moved.FromID, moved.ToID, moved.Type)
		if _, ok := s.relationships[newKey]; !ok {
			s.relationships[newKey] = &moved
		}
	}

	target.MentionCount += source.MentionCount
	target.Aliases = models.MergeAliases(target.Aliases,
		append([]string{source.DisplayValue, source.NormalizedValue}, source.Aliases...)...)
	if source.FirstSeen.Before(target.FirstSeen) {
		target.FirstSeen = source.FirstSeen
	}
	if source.LastSeen.After(target.LastSeen) {
		target.LastSeen = source.LastSeen
	}
	target.UpdatedAt = time.Now().UTC()

	delete(s.entities, sourceID)
	return copyEntity(target), nil
}

func unionContext(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || a == b || strings.Contains(a, b):
		return a
	default:
		return a + "\n" + b
	}
}

func (s *MemoryStore) RemoveMeetingMentions(_ context.Context, owner, meetingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for entityID, edges := range s.mentions {
		edge, ok := edges[meetingID]
		if !ok {
			continue
		}
		e := s.entities[entityID]
		if e == nil || e.Owner != owner {
			continue
		}
		e.MentionCount -= edge.Count
		if e.MentionCount < 0 {
			e.MentionCount = 0
		}
		e.UpdatedAt = time.Now().UTC()
		delete(edges, meetingID)
		affected++
	}
	return affected, nil
}

func (s *MemoryStore) ListOrphans(_ context.Context, owner string) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entity
	for _, e := range s.entities {
		if e.Owner == owner && !e.IsUserCreated && e.MentionCount == 0 {
			out = append(out, *copyEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CoOccurrences(_ context.Context, owner string, minMeetings, limit int) ([]models.CoOccurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.entities {
		if e.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []models.CoOccurrence
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			shared := 0
			for meetingID := range s.mentions[ids[i]] {
				if _, ok := s.mentions[ids[j]][meetingID]; ok {
					shared++
				}
			}
			if shared >= minMeetings && minMeetings > 0 {
				out = append(out, models.CoOccurrence{
					First:          *copyEntity(s.entities[ids[i]]),
					Second:         *copyEntity(s.entities[ids[j]]),
					SharedMeetings: shared,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SharedMeetings > out[j].SharedMeetings })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InferCollaborations(_ context.Context, owner string, minShared int) (int, error) {
	if minShared < 1 {
		minShared = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.entities {
		if e.Owner == owner && e.Category == models.CategoryPerson {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	inferred := 0
	now := time.Now().UTC()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			shared := 0
			for meetingID := range s.mentions[ids[i]] {
				if _, ok := s.mentions[ids[j]][meetingID]; ok {
					shared++
				}
			}
			if shared < minShared {
				continue
			}
			inferred++
			context := fmt.Sprintf("co-occurred in %d meetings", shared)
			key := relKey(ids[i], ids[j], models.RelCollaboratesWith)
			if existing, ok := s.relationships[key]; ok {
				if existing.Source == models.SourceInferred {
					existing.Context = context
				}
				continue
			}
			s.relationships[key] = &models.Relationship{
				FromID:     ids[i],
				ToID:       ids[j],
				Type:       models.RelCollaboratesWith,
				Confidence: 1.0,
				Context:    context,
				Source:     models.SourceInferred,
				CreatedAt:  now,
			}
		}
	}
	return inferred, nil
}

// pathStep identifies a node on the traversal graph. Meetings and entities
// live in separate id spaces.
type pathStep struct {
	kind string
	id   string
}

func (s *MemoryStore) FindConnections(_ context.Context, owner, fromID, toID string, maxHops int) ([]models.ConnectionPath, error) {
	maxHops = clampHops(maxHops)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.owned(owner, fromID); err != nil {
		return nil, err
	}
	if _, err := s.owned(owner, toID); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: connection endpoints must differ", ErrInvalidOperation)
	}

	type hop struct {
		to   pathStep
		edge models.PathEdge
	}
	adjacent := func(n pathStep) []hop {
		var out []hop
		if n.kind == "meeting" {
			for entityID, edges := range s.mentions {
				e := s.entities[entityID]
				if e == nil || e.Owner != owner {
					continue
				}
				if _, ok := edges[n.id]; ok {
					out = append(out, hop{
						to:   pathStep{kind: "entity", id: entityID},
						edge: models.PathEdge{FromID: entityID, ToID: n.id, Type: "MENTIONED_IN"},
					})
				}
			}
			return out
		}
		for meetingID := range s.mentions[n.id] {
			out = append(out, hop{
				to:   pathStep{kind: "meeting", id: meetingID},
				edge: models.PathEdge{FromID: n.id, ToID: meetingID, Type: "MENTIONED_IN"},
			})
		}
		for _, rel := range s.relationships {
			if rel.FromID == n.id {
				out = append(out, hop{
					to:   pathStep{kind: "entity", id: rel.ToID},
					edge: models.PathEdge{FromID: rel.FromID, ToID: rel.ToID, Type: string(rel.Type)},
				})
			}
			if rel.ToID == n.id {
				out = append(out, hop{
					to:   pathStep{kind: "entity", id: rel.FromID},
					edge: models.PathEdge{FromID: rel.FromID, ToID: rel.ToID, Type: string(rel.Type)},
				})
			}
		}
		return out
	}

	// Breadth-first search bounded by maxHops yields one shortest path.
	start := pathStep{kind: "entity", id: fromID}
	goal := pathStep{kind: "entity", id: toID}
	parent := map[pathStep]hop{}
	visited := map[pathStep]bool{start: true}
	frontier := []pathStep{start}

	found := false
	for depth := 0; depth < maxHops && len(frontier) > 0 && !found; depth++ {
		var next []pathStep
		for _, n := range frontier {
			for _, h := range adjacent(n) {
				if visited[h.to] {
					continue
				}
				visited[h.to] = true
				parent[h.to] = hop{to: n, edge: h.edge}
				if h.to == goal {
					found = true
					break
				}
				next = append(next, h.to)
			}
			if found {
				break
			}
		}
		frontier = next
	}
	if !found {
		return nil, nil
	}

	var path models.ConnectionPath
	for n := goal; ; {
		path.Nodes = append([]models.PathNode{s.pathNode(n)}, path.Nodes...)
		if n == start {
			break
		}
		p := parent[n]
		path.Edges = append([]models.PathEdge{p.edge}, path.Edges...)
		n = p.to
	}
	return []models.ConnectionPath{path}, nil
}

func (s *MemoryStore) pathNode(n pathStep) models.PathNode {
	node := models.PathNode{ID: n.id, Kind: n.kind, Name: n.id}
	if e := s.entities[n.id]; n.kind == "entity" && e != nil {
		node.Name = e.DisplayValue
	}
	return node
}

func (s *MemoryStore) Stats(_ context.Context, owner string) (*models.EntityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.EntityStats{ByCategory: make(map[models.EntityCategory]int64)}
	for _, e := range s.entities {
		if e.Owner != owner {
			continue
		}
		stats.ByCategory[e.Category]++
		stats.Total++
	}
	return stats, nil
}
