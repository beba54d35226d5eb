package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/ingest"
	"github.com/tamihq/tami-graph/internal/lifecycle"
	"github.com/tamihq/tami-graph/internal/match"
	"github.com/tamihq/tami-graph/internal/merge"
	"github.com/tamihq/tami-graph/internal/metrics"
	"github.com/tamihq/tami-graph/internal/models"
)

// Server is an HTTP API server exposing the entity graph operations. Every
// authenticated route is scoped to the owner given in the X-User-ID header.
type Server struct {
	store     graph.Store
	matcher   *match.Matcher
	merger    *merge.Engine
	cleaner   *lifecycle.Engine
	pipeline  *ingest.Pipeline
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(st graph.Store, matcher *match.Matcher, merger *merge.Engine, cleaner *lifecycle.Engine, pipeline *ingest.Pipeline, logger *slog.Logger, authToken string) *Server {
	return &Server{
		store:     st,
		matcher:   matcher,
		merger:    merger,
		cleaner:   cleaner,
		pipeline:  pipeline,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/entities", s.auth(s.handleCreateEntity))
	mux.HandleFunc("GET /v1/entities", s.auth(s.handleListEntities))
	mux.HandleFunc("GET /v1/entities/{id}", s.auth(s.handleGetEntity))
	mux.HandleFunc("PATCH /v1/entities/{id}", s.auth(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /v1/entities/{id}", s.auth(s.handleDeleteEntity))
	mux.HandleFunc("GET /v1/entities/{id}/duplicates", s.auth(s.handleDuplicates))
	mux.HandleFunc("GET /v1/entities/{id}/relationships", s.auth(s.handleListRelationships))

	mux.HandleFunc("POST /v1/merge", s.auth(s.handleMerge))
	mux.HandleFunc("POST /v1/relationships", s.auth(s.handleCreateRelationship))
	mux.HandleFunc("DELETE /v1/relationships", s.auth(s.handleDeleteRelationship))

	mux.HandleFunc("POST /v1/meetings/{id}/entities", s.auth(s.handleIngestMeeting))
	mux.HandleFunc("DELETE /v1/meetings/{id}", s.auth(s.handleDeleteMeeting))

	mux.HandleFunc("GET /v1/search", s.auth(s.handleSearch))
	mux.HandleFunc("GET /v1/connections", s.auth(s.handleConnections))
	mux.HandleFunc("GET /v1/co-occurrences", s.auth(s.handleCoOccurrences))
	mux.HandleFunc("POST /v1/infer-collaborations", s.auth(s.handleInferCollaborations))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		if r.Header.Get("X-User-ID") == "" {
			s.writeError(w, http.StatusBadRequest, "X-User-ID header is required")
			return
		}
		next(w, r)
	}
}

// owner returns the caller's user id. The auth middleware guarantees it is
// non-empty.
func owner(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createEntityRequest is the body accepted by POST /v1/entities.
type createEntityRequest struct {
	Category     string   `json:"category"`
	DisplayValue string   `json:"display_value"`
	Aliases      []string `json:"aliases"`
	Description  string   `json:"description"`
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req createEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entity, err := s.store.CreateEntity(r.Context(), owner(r), graph.CreateEntityInput{
		Category:     models.ParseCategory(req.Category),
		DisplayValue: req.DisplayValue,
		Aliases:      req.Aliases,
		Description:  req.Description,
	})
	if err != nil {
		s.writeStoreError(w, err, "failed to create entity")
		return
	}
	metrics.Inc(metrics.EntitiesCreated)

	s.writeJSON(w, http.StatusCreated, entity)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	opts := graph.ListOptions{
		SearchText: r.URL.Query().Get("q"),
		Limit:      intQuery(r, "limit", 0),
		Offset:     intQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("category"); raw != "" {
		cat := models.ParseCategory(raw)
		opts.Category = &cat
	}

	listing, err := s.store.ListEntities(r.Context(), owner(r), opts)
	if err != nil {
		s.writeStoreError(w, err, "failed to list entities")
		return
	}

	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	detail, err := s.store.GetEntityDetail(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "failed to get entity")
		return
	}

	s.writeJSON(w, http.StatusOK, detail)
}

// updateEntityRequest is the body accepted by PATCH /v1/entities/{id}.
// Absent fields are left unchanged.
type updateEntityRequest struct {
	DisplayValue *string   `json:"display_value"`
	Description  *string   `json:"description"`
	Aliases      *[]string `json:"aliases"`
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req updateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entity, err := s.store.UpdateEntity(r.Context(), owner(r), r.PathValue("id"), graph.EntityPatch{
		DisplayValue: req.DisplayValue,
		Description:  req.Description,
		Aliases:      req.Aliases,
	})
	if err != nil {
		s.writeStoreError(w, err, "failed to update entity")
		return
	}

	s.writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.cleaner.OnEntityDeleted(r.Context(), owner(r), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err, "failed to delete entity")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	opts := match.Options{
		Threshold:     floatQueryPtr(r, "threshold"),
		MaxResults:    intQuery(r, "max_results", 0),
		SkipExpensive: r.URL.Query().Get("skip_expensive") == "true",
	}

	candidates, err := s.matcher.FindDuplicates(r.Context(), owner(r), r.PathValue("id"), opts)
	if err != nil {
		s.writeStoreError(w, err, "failed to scan for duplicates")
		return
	}
	metrics.Inc(metrics.DuplicateScans)

	s.writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// mergeRequest is the body accepted by POST /v1/merge.
type mergeRequest struct {
	TargetID string `json:"target_id"`
	SourceID string `json:"source_id"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetID == "" || req.SourceID == "" {
		s.writeError(w, http.StatusBadRequest, "target_id and source_id are required")
		return
	}

	merged, err := s.merger.Merge(r.Context(), owner(r), req.TargetID, req.SourceID)
	if err != nil {
		s.writeStoreError(w, err, "failed to merge entities")
		return
	}

	s.writeJSON(w, http.StatusOK, merged)
}

// relationshipRequest is the body accepted by POST /v1/relationships and
// DELETE /v1/relationships.
type relationshipRequest struct {
	FromID     string  `json:"from_id"`
	ToID       string  `json:"to_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ, ok := models.ParseRelationType(req.Type)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid relationship type")
		return
	}

	err := s.store.CreateRelationship(r.Context(), owner(r), models.Relationship{
		FromID:     req.FromID,
		ToID:       req.ToID,
		Type:       typ,
		Confidence: req.Confidence,
		Context:    req.Context,
	})
	if err != nil {
		s.writeStoreError(w, err, "failed to create relationship")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]bool{"created": true})
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ, ok := models.ParseRelationType(req.Type)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid relationship type")
		return
	}

	if err := s.store.DeleteRelationship(r.Context(), owner(r), req.FromID, req.ToID, typ); err != nil {
		s.writeStoreError(w, err, "failed to delete relationship")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	dir := models.DirectionBoth
	switch r.URL.Query().Get("direction") {
	case "outgoing":
		dir = models.DirectionOutgoing
	case "incoming":
		dir = models.DirectionIncoming
	}

	rels, err := s.store.ListRelationships(r.Context(), owner(r), r.PathValue("id"), dir)
	if err != nil {
		s.writeStoreError(w, err, "failed to list relationships")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

// ingestRequest is the body accepted by POST /v1/meetings/{id}/entities.
type ingestRequest struct {
	Entities []models.ExtractedEntity `json:"entities"`
}

func (s *Server) handleIngestMeeting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20) // 4 MB limit
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entities) == 0 {
		s.writeError(w, http.StatusBadRequest, "entities is required")
		return
	}

	report, err := s.pipeline.IngestMeeting(r.Context(), owner(r), r.PathValue("id"), req.Entities)
	if err != nil {
		s.writeStoreError(w, err, "failed to ingest meeting entities")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	report, err := s.cleaner.OnMeetingDeleted(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, "failed to clean up meeting")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	var categories []models.EntityCategory
	for _, raw := range r.URL.Query()["category"] {
		categories = append(categories, models.ParseCategory(raw))
	}

	results, err := s.store.SearchEntities(r.Context(), owner(r), q, categories, intQuery(r, "limit", 20))
	if err != nil {
		s.writeStoreError(w, err, "failed to search entities")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	fromID := r.URL.Query().Get("from")
	toID := r.URL.Query().Get("to")
	if fromID == "" || toID == "" {
		s.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	paths, err := s.store.FindConnections(r.Context(), owner(r), fromID, toID, intQuery(r, "max_hops", 0))
	if err != nil {
		s.writeStoreError(w, err, "failed to find connections")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"paths": paths})
}

func (s *Server) handleInferCollaborations(w http.ResponseWriter, r *http.Request) {
	inferred, err := s.store.InferCollaborations(r.Context(), owner(r), intQuery(r, "min_shared", 3))
	if err != nil {
		s.writeStoreError(w, err, "failed to infer collaborations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"inferred": inferred})
}

func (s *Server) handleCoOccurrences(w http.ResponseWriter, r *http.Request) {
	minMeetings := intQuery(r, "min_meetings", 2)
	limit := intQuery(r, "limit", 20)

	pairs, err := s.store.CoOccurrences(r.Context(), owner(r), minMeetings, limit)
	if err != nil {
		s.writeStoreError(w, err, "failed to compute co-occurrences")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), owner(r))
	if err != nil {
		s.writeStoreError(w, err, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// writeStoreError maps the graph error taxonomy onto HTTP status codes.
// Ownership violations arrive as ErrNotFound, so cross-owner lookups are
// indistinguishable from absence at this layer too.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, graph.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrInvalidOperation):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, graph.ErrUpstreamUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "graph store unavailable")
	default:
		s.logger.Error(fallback, "error", err)
		s.writeError(w, http.StatusInternalServerError, fallback)
	}
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// floatQueryPtr returns nil when the parameter is absent or malformed, so
// an explicit "0" stays distinguishable from "not given".
func floatQueryPtr(r *http.Request, key string) *float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
