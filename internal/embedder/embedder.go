// Package embedder generates vector embeddings for entity names and
// aliases. Embeddings feed the similarity matcher's semantic score; they
// are never stored in the graph.
package embedder

import "context"

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns vector embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
