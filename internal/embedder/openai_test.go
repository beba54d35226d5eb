package embedder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenAIEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 768, req.Dimensions)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)

		// Return items out of order; the client must reassemble by index.
		resp := openAIEmbedResponse{Data: []openAIEmbedData{
			{Index: 1, Embedding: []float32{0.3, 0.4}},
			{Index: 0, Embedding: []float32{0.1, 0.2}},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedderWithURL(srv.URL, "test-key", "", 0, testLogger())

	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestOpenAIEmbedSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := openAIEmbedResponse{Data: []openAIEmbedData{
			{Index: 0, Embedding: []float32{0.5, 0.6, 0.7}},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedderWithURL(srv.URL, "test-key", "custom-model", 3, testLogger())
	assert.Equal(t, 3, e.Dimension())

	vec, err := e.Embed(context.Background(), "gamma")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6, 0.7}, vec)
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedderWithURL(srv.URL, "bad-key", "", 0, testLogger())

	_, err := e.Embed(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key provided")
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIEmbedEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedderWithURL(srv.URL, "test-key", "", 0, testLogger())

	_, err := e.Embed(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embeddings")
}

func TestOpenAIEmbedBatchEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder("test-key", "", 0, testLogger())
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
