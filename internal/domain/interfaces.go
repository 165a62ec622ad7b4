package domain

import "context"

// Document is a unit of ingested text. Documents are never mutated after ingestion.
type Document struct {
	ID     string
	Source string
	Text   string
}

// Chunk is an overlapping word window of a document, the unit of embedding and retrieval.
// Index is the 0-based position of the chunk within its document's chunking pass.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// Hit is a vector index match addressed by ordinal.
type Hit struct {
	Ordinal int
	Score   float64
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Embedder converts a batch of texts into unit-normalized vectors of one dimension.
// The returned slice has the same length and order as texts.
type Embedder interface {
	Name() string
	// Dimension reports the vector size, or 0 while it is still unknown.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex stores vectors by ordinal and answers inner-product top-k queries.
type VectorIndex interface {
	Dimension() int
	Len() int
	Add(vectors [][]float32) error
	Search(query []float32, k int) ([]Hit, error)
	Truncate(n int) error
	Reset()
}

// ChunkCatalog is the ordinal-addressed metadata store kept parallel to a VectorIndex.
type ChunkCatalog interface {
	Len() int
	Append(chunks []Chunk) error
	Get(ordinal int) (Chunk, error)
	Truncate(n int) error
	Reset()
}
