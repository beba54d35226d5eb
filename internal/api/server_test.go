package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/ingest"
	"github.com/tamihq/tami-graph/internal/lifecycle"
	"github.com/tamihq/tami-graph/internal/match"
	"github.com/tamihq/tami-graph/internal/merge"
	"github.com/tamihq/tami-graph/internal/models"
)

const testOwner = "user-1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *graph.MemoryStore) {
	t.Helper()
	logger := testLogger()
	st := graph.NewMemoryStore()

	srv := NewServer(
		st,
		match.NewMatcher(st, nil, nil, logger),
		merge.NewEngine(st, nil, logger),
		lifecycle.NewEngine(st, nil, logger),
		ingest.NewPipeline(st, nil, logger),
		logger,
		authToken,
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doRequest(t *testing.T, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func asOwner(extra ...string) map[string]string {
	h := map[string]string{"X-User-ID": testOwner}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, asOwner())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, asOwner("Authorization", "Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, asOwner("Authorization", "Bearer secret"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_RequiresUserHeader(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateAndGetEntity(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/entities", map[string]any{
		"category":      "person",
		"display_value": "John Smith",
		"aliases":       []string{"Johnny"},
	}, asOwner())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Entity](t, resp)
	assert.Equal(t, "john smith", created.NormalizedValue)
	assert.True(t, created.IsUserCreated)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/entities/"+created.ID, nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody[models.EntityDetail](t, resp)
	assert.Equal(t, created.ID, detail.Entity.ID)
}

func TestCreateEntity_Validation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/entities", map[string]any{
		"category": "person",
	}, asOwner())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetEntity_CrossOwnerIsNotFound(t *testing.T) {
	ts, st := newTestServer(t, "")

	e, err := st.CreateEntity(context.Background(), "someone-else", graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/entities/"+e.ID, nil, asOwner())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMergeEndpoint(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	john, err := st.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category: "person", DisplayValue: "John", MentionCount: 3,
	})
	require.NoError(t, err)
	jon, err := st.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category: "person", DisplayValue: "Jon", MentionCount: 2,
	})
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/merge", map[string]string{
		"target_id": john.ID,
		"source_id": jon.ID,
	}, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	merged := decodeBody[models.Entity](t, resp)
	assert.Equal(t, 5, merged.MentionCount)

	// Self-merge is a conflict, retry of a done merge is not-found.
	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/merge", map[string]string{
		"target_id": john.ID,
		"source_id": john.ID,
	}, asOwner())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/merge", map[string]string{
		"target_id": john.ID,
		"source_id": jon.ID,
	}, asOwner())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestIngestAndMeetingDelete(t *testing.T) {
	ts, st := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/meetings/m-1/entities", map[string]any{
		"entities": []models.ExtractedEntity{
			{Category: "organization", DisplayValue: "Acme Corp", MentionCount: 1},
			{Category: "person", DisplayValue: "John", MentionCount: 2},
		},
	}, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[ingest.Report](t, resp)
	assert.Equal(t, 2, report.Upserted)
	assert.Equal(t, 0, report.Failed)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/meetings/m-1", nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleanup := decodeBody[lifecycle.Report](t, resp)
	assert.Equal(t, 2, cleanup.EntitiesTouched)
	assert.Equal(t, 2, cleanup.OrphansRemoved)

	stats, err := st.Stats(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestDuplicatesEndpoint(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	src, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John Smith",
	})
	require.NoError(t, err)
	_, err = st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John  Smith",
	})
	require.NoError(t, err)

	url := fmt.Sprintf("%s/v1/entities/%s/duplicates?threshold=0.5&skip_expensive=true", ts.URL, src.ID)
	resp := doRequest(t, http.MethodGet, url, nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string][]models.MatchCandidate](t, resp)
	require.Len(t, body["candidates"], 1)
	assert.Equal(t, 1.0, body["candidates"][0].Score)
}

func TestDuplicatesEndpoint_ExplicitZeroThreshold(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	src, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John Smith",
	})
	require.NoError(t, err)
	_, err = st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "Zachary Quinto",
	})
	require.NoError(t, err)

	// threshold=0 is an explicit request for everything, not the default.
	url := fmt.Sprintf("%s/v1/entities/%s/duplicates?threshold=0", ts.URL, src.ID)
	resp := doRequest(t, http.MethodGet, url, nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.MatchCandidate](t, resp)
	require.Len(t, body["candidates"], 1)

	// Omitting the parameter falls back to the default, which drops the
	// unrelated name.
	url = fmt.Sprintf("%s/v1/entities/%s/duplicates", ts.URL, src.ID)
	resp = doRequest(t, http.MethodGet, url, nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody[map[string][]models.MatchCandidate](t, resp)
	assert.Empty(t, body["candidates"])
}

func TestConnectionsEndpoint(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	a, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)
	b, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "Jane",
	})
	require.NoError(t, err)
	for _, id := range []string{a.ID, b.ID} {
		require.NoError(t, st.AddMention(ctx, testOwner, models.Mention{EntityID: id, MeetingID: "m-1"}))
	}

	url := fmt.Sprintf("%s/v1/connections?from=%s&to=%s", ts.URL, a.ID, b.ID)
	resp := doRequest(t, http.MethodGet, url, nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.ConnectionPath](t, resp)
	require.Len(t, body["paths"], 1)
	assert.Len(t, body["paths"][0].Edges, 2)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/connections?from="+a.ID, nil, asOwner())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	// Self-pairs map onto conflict like other invalid operations.
	url = fmt.Sprintf("%s/v1/connections?from=%s&to=%s", ts.URL, a.ID, a.ID)
	resp = doRequest(t, http.MethodGet, url, nil, asOwner())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestInferCollaborationsEndpoint(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	a, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)
	b, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "Jane",
	})
	require.NoError(t, err)
	for _, meeting := range []string{"m-1", "m-2"} {
		for _, id := range []string{a.ID, b.ID} {
			require.NoError(t, st.AddMention(ctx, testOwner, models.Mention{EntityID: id, MeetingID: meeting}))
		}
	}

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/infer-collaborations?min_shared=2", nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, body["inferred"])

	rels, err := st.ListRelationships(ctx, testOwner, a.ID, models.DirectionBoth)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, models.SourceInferred, rels[0].Source)
}

func TestRelationshipEndpoints(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	a, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryPerson, DisplayValue: "John",
	})
	require.NoError(t, err)
	b, err := st.CreateEntity(ctx, testOwner, graph.CreateEntityInput{
		Category: models.CategoryOrganization, DisplayValue: "Acme",
	})
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/relationships", map[string]any{
		"from_id": a.ID, "to_id": b.ID, "type": "works_at", "confidence": 0.9,
	}, asOwner())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	// Unknown types never reach the store.
	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/relationships", map[string]any{
		"from_id": a.ID, "to_id": b.ID, "type": "summons",
	}, asOwner())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/entities/"+a.ID+"/relationships", nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.Relationship](t, resp)
	require.Len(t, body["relationships"], 1)
	assert.Equal(t, models.RelWorksAt, body["relationships"][0].Type)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/relationships", map[string]any{
		"from_id": a.ID, "to_id": b.ID, "type": "works_at",
	}, asOwner())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSearchEndpoint(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	_, err := st.UpsertExtracted(ctx, testOwner, models.ExtractedEntity{
		Category: "person", DisplayValue: "Jonathan Smith",
	})
	require.NoError(t, err)

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/search?q=jonathan", nil, asOwner())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.Entity](t, resp)
	assert.Len(t, body["results"], 1)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/search", nil, asOwner())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}
