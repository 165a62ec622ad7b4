// Package retrieval ties chunking, embedding, the vector index and the chunk catalog
// together behind an add/search/rebuild API.
//
// The index and the catalog are always mutated together: for every ordinal i the
// i-th vector and the i-th catalog entry describe the same chunk. Mutations are
// serialized, and readers only ever see the stores between two commits.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"docrag/internal/catalog"
	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/vectorstore/flat"
)

// DefaultTopK is used by Search when the caller passes a non-positive k.
const DefaultTopK = 5

// Engine is an in-memory retrieval index over chunked documents.
type Engine struct {
	embedder     domain.Embedder
	chunking     chunker.Config
	embedTimeout time.Duration
	dimension    int

	// writeMu serializes AddDocument and RebuildFrom end to end.
	writeMu sync.Mutex
	// mu guards index and catalog; it is held for writing only while committing.
	mu      sync.RWMutex
	index   domain.VectorIndex
	catalog domain.ChunkCatalog
}

// Option configures an Engine.
type Option func(*Engine)

// WithDimension fixes the vector dimension up front instead of inferring it.
func WithDimension(dim int) Option {
	return func(e *Engine) { e.dimension = dim }
}

// WithChunking sets the window used by AddDocument and RebuildFrom.
func WithChunking(cfg chunker.Config) Option {
	return func(e *Engine) { e.chunking = cfg }
}

// WithEmbedTimeout bounds every embedding call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(e *Engine) { e.embedTimeout = d }
}

// WithStores replaces the default flat index and catalog. WithDimension has no
// effect on an injected index.
func WithStores(index domain.VectorIndex, cat domain.ChunkCatalog) Option {
	return func(e *Engine) {
		e.index = index
		e.catalog = cat
	}
}

// New creates an engine. Without WithDimension the dimension comes from the
// embedder when it knows it, otherwise from the first committed batch.
func New(embedder domain.Embedder, opts ...Option) *Engine {
	e := &Engine{
		embedder: embedder,
		chunking: chunker.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.index == nil {
		dim := e.dimension
		if dim <= 0 && embedder != nil {
			dim = embedder.Dimension()
		}
		e.index = flat.New(dim)
	}
	if e.catalog == nil {
		e.catalog = catalog.New()
	}
	return e
}

// Stats is a point-in-time view of the stores.
type Stats struct {
	Vectors   int
	Chunks    int
	Dimension int
}

// Stats reports store sizes under the read lock.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Vectors: e.index.Len(), Chunks: e.catalog.Len(), Dimension: e.index.Dimension()}
}

// Len returns the number of indexed chunks.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Len()
}

// ChunkingConfig returns the default window.
func (e *Engine) ChunkingConfig() chunker.Config { return e.chunking }

// CheckConsistency returns ErrIndexCatalogDesync if the stores disagree in length.
func (e *Engine) CheckConsistency() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkLocked()
}

func (e *Engine) checkLocked() error {
	if n, m := e.index.Len(), e.catalog.Len(); n != m {
		return fmt.Errorf("%w: %d vectors, %d catalog entries", domain.ErrIndexCatalogDesync, n, m)
	}
	return nil
}

// AddDocument indexes text with the engine's default chunking.
func (e *Engine) AddDocument(ctx context.Context, docID, text string) error {
	_, err := e.IndexDocument(ctx, docID, text, e.chunking)
	return err
}

// AddDocumentWith chunks, embeds and indexes one document. Either every chunk of
// the document becomes searchable or the stores are left as they were.
// Text without tokens is a no-op.
func (e *Engine) AddDocumentWith(ctx context.Context, docID, text string, cfg chunker.Config) error {
	_, err := e.IndexDocument(ctx, docID, text, cfg)
	return err
}

// IndexDocument is AddDocumentWith that also reports how many chunks were committed.
func (e *Engine) IndexDocument(ctx context.Context, docID, text string, cfg chunker.Config) (int, error) {
	if docID == "" {
		return 0, domain.ErrEmptyDocumentID
	}
	chunks, err := chunker.Chunks(domain.Document{ID: docID, Text: text}, cfg)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	vectors, err := e.embedChunks(ctx, chunks, e.index.Dimension())
	if err != nil {
		return 0, fmt.Errorf("add document %s: %w", docID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLocked(); err != nil {
		return 0, err
	}
	if err := e.commitLocked(vectors, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// commitLocked appends one aligned batch, undoing the index append if the catalog refuses it.
func (e *Engine) commitLocked(vectors [][]float32, chunks []domain.Chunk) error {
	before := e.index.Len()
	if err := e.index.Add(vectors); err != nil {
		return err
	}
	if err := e.catalog.Append(chunks); err != nil {
		if terr := e.index.Truncate(before); terr != nil {
			return fmt.Errorf("%w: rollback failed: %w (append: %v)", domain.ErrIndexCatalogDesync, terr, err)
		}
		return fmt.Errorf("append catalog: %w", err)
	}
	return nil
}

// Search embeds query and returns the topK most similar chunks, best first.
// An empty engine returns no results and makes no embedding call.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if e.Len() == 0 {
		return []domain.SearchResult{}, nil
	}

	vectors, err := e.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("search: %w: %d vectors for a single query", domain.ErrDimensionMismatch, len(vectors))
	}
	if err := checkUsable(0, vectors[0]); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkLocked(); err != nil {
		return nil, err
	}
	hits, err := e.index.Search(vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		ch, err := e.catalog.Get(h.Ordinal)
		if err != nil {
			return nil, fmt.Errorf("%w: ordinal %d: %w", domain.ErrIndexCatalogDesync, h.Ordinal, err)
		}
		results = append(results, domain.SearchResult{Chunk: ch, Score: h.Score})
	}
	return results, nil
}

type stagedDocument struct {
	chunks  []domain.Chunk
	vectors [][]float32
}

// RebuildFrom replaces the whole index with docs, in order, using the default
// chunking. All documents are embedded before any store is touched, so a
// failing embedding leaves the previous contents in place.
func (e *Engine) RebuildFrom(ctx context.Context, docs []domain.Document) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("rebuild document %d: %w", i, domain.ErrEmptyDocumentID)
		}
	}

	dim := e.index.Dimension()
	staged := make([]stagedDocument, 0, len(docs))
	for _, doc := range docs {
		chunks, err := chunker.Chunks(doc, e.chunking)
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", doc.ID, err)
		}
		if len(chunks) == 0 {
			continue
		}
		vectors, err := e.embedChunks(ctx, chunks, dim)
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", doc.ID, err)
		}
		if dim == 0 {
			dim = len(vectors[0])
		}
		staged = append(staged, stagedDocument{chunks: chunks, vectors: vectors})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.index.Reset()
	e.catalog.Reset()
	for _, s := range staged {
		if err := e.commitLocked(s.vectors, s.chunks); err != nil {
			e.index.Reset()
			e.catalog.Reset()
			if errors.Is(err, domain.ErrIndexCatalogDesync) {
				return err
			}
			return fmt.Errorf("%w: rebuild aborted, stores cleared: %w", domain.ErrIndexCatalogDesync, err)
		}
	}
	return nil
}

// embedChunks embeds a document's chunks in one call and checks the result shape.
// A zero dim accepts whatever dimension the first vector has.
func (e *Engine) embedChunks(ctx context.Context, chunks []domain.Chunk, dim int) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrDimensionMismatch, len(vectors), len(texts))
	}
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: embedder returned empty vectors", domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
		if err := checkUsable(i, v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// checkUsable rejects vectors that cannot be ranked: all zeros, NaN or Inf.
func checkUsable(i int, v []float32) error {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: vector %d has a non-finite component", domain.ErrInvalidVector, i)
		}
		sum += f * f
	}
	if sum == 0 {
		return fmt.Errorf("%w: vector %d is all zeros", domain.ErrInvalidVector, i)
	}
	return nil
}

func (e *Engine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", domain.ErrEmbeddingUnavailable)
	}
	if e.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.embedTimeout)
		defer cancel()
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, e.embedder.Name(), err)
	}
	return vectors, nil
}
