package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/catalog"
	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	"docrag/internal/vectorstore/flat"
)

// faultyEmbedder wraps the hashing embedder and can be told to misbehave.
type faultyEmbedder struct {
	inner *hashing.Embedder

	mu       sync.Mutex
	fail     bool
	calls    int
	extraDim bool
	dropOne  bool
	block    chan struct{}
}

func newFaulty(dim int) *faultyEmbedder { return &faultyEmbedder{inner: hashing.NewEmbedder(dim)} }

func (f *faultyEmbedder) Name() string   { return "faulty" }
func (f *faultyEmbedder) Dimension() int { return 0 }

func (f *faultyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	fail, extra, drop, block := f.fail, f.extraDim, f.dropOne, f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("provider down")
	}
	vecs, err := f.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if extra {
		vecs[len(vecs)-1] = append(vecs[len(vecs)-1], 0)
	}
	if drop {
		vecs = vecs[:len(vecs)-1]
	}
	return vecs, nil
}

func (f *faultyEmbedder) set(fn func(f *faultyEmbedder)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// rejectingCatalog refuses appends after the first n successful ones.
type rejectingCatalog struct {
	*catalog.Catalog
	allow int
}

func (r *rejectingCatalog) Append(chunks []domain.Chunk) error {
	if r.allow <= 0 {
		return errors.New("catalog full")
	}
	r.allow--
	return r.Catalog.Append(chunks)
}

func longText(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func snapshot(t *testing.T, e *Engine, query string) []domain.SearchResult {
	t.Helper()
	res, err := e.Search(context.Background(), query, 10)
	require.NoError(t, err)
	return res
}

func TestEngine_SelfMatch(t *testing.T) {
	e := New(hashing.NewEmbedder(256))
	require.NoError(t, e.AddDocument(context.Background(), "d1", "the quick brown fox"))

	res, err := e.Search(context.Background(), "the quick brown fox", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "d1", res[0].Chunk.DocumentID)
	assert.Equal(t, 0, res[0].Chunk.Index)
	assert.Equal(t, "the quick brown fox", res[0].Chunk.Text)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

func TestEngine_SearchEmptyIndex(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	res, err := e.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
	assert.Equal(t, 0, emb.callCount())
}

func TestEngine_EmptyDocumentIsNoop(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	require.NoError(t, e.AddDocument(context.Background(), "d1", "  \n\t "))
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, emb.callCount())
}

func TestEngine_AlignmentAcrossDocuments(t *testing.T) {
	e := New(hashing.NewEmbedder(64), WithChunking(chunker.Config{Size: 4, Overlap: 1}))
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "a", longText(10, "alpha")))
	require.NoError(t, e.AddDocument(ctx, "b", longText(4, "beta")))
	require.NoError(t, e.AddDocumentWith(ctx, "c", longText(7, "gamma"), chunker.Config{Size: 3, Overlap: 0}))

	st := e.Stats()
	assert.Equal(t, st.Vectors, st.Chunks)
	assert.Equal(t, 3+1+3, st.Vectors)
	assert.Equal(t, 64, st.Dimension)
	require.NoError(t, e.CheckConsistency())

	res, err := e.Search(ctx, "beta0 beta1 beta2 beta3", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.Chunk{DocumentID: "b", Index: 0, Text: "beta0 beta1 beta2 beta3"}, res[0].Chunk)

	res, err = e.Search(ctx, "gamma6", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].Chunk.DocumentID)
	assert.Equal(t, 2, res[0].Chunk.Index)
}

func TestEngine_SearchResultsSortedAndBounded(t *testing.T) {
	e := New(hashing.NewEmbedder(128), WithChunking(chunker.Config{Size: 3, Overlap: 0}))
	require.NoError(t, e.AddDocument(context.Background(), "d", longText(30, "tok")))

	res, err := e.Search(context.Background(), "tok3 tok4 tok5", 4)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, 1, res[0].Chunk.Index)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	res, err = e.Search(context.Background(), "tok3", 0)
	require.NoError(t, err)
	assert.Len(t, res, DefaultTopK)

	res, err = e.Search(context.Background(), "tok3", 100)
	require.NoError(t, err)
	assert.Len(t, res, 10)
}

func TestEngine_InvalidChunkingRejectedBeforeEmbedding(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "d0", "existing content"))
	calls := emb.callCount()
	before := snapshot(t, e, "existing")

	for _, cfg := range []chunker.Config{{Size: 100, Overlap: 100}, {Size: 100, Overlap: 150}, {Size: 0}} {
		err := e.AddDocumentWith(ctx, "d1", "some new words", cfg)
		assert.ErrorIs(t, err, domain.ErrInvalidChunkingConfig)
	}
	assert.Equal(t, calls+1, emb.callCount())
	assert.Equal(t, before, snapshot(t, e, "existing"))
	assert.Equal(t, 1, e.Len())
}

func TestEngine_EmbeddingFailureLeavesStateUnchanged(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "d0", "stable content here"))
	before := snapshot(t, e, "stable")

	emb.set(func(f *faultyEmbedder) { f.fail = true })
	err := e.AddDocument(ctx, "d1", "doomed content")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	_, err = e.Search(ctx, "stable", 3)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	emb.set(func(f *faultyEmbedder) { f.fail = false })
	assert.Equal(t, before, snapshot(t, e, "stable"))
	assert.Equal(t, Stats{Vectors: 1, Chunks: 1, Dimension: 32}, e.Stats())
}

func TestEngine_ShapeMismatchIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	cfg := chunker.Config{Size: 2, Overlap: 0}

	emb := newFaulty(16)
	e := New(emb, WithChunking(cfg))
	require.NoError(t, e.AddDocument(ctx, "d0", "a b c d"))

	emb.set(func(f *faultyEmbedder) { f.extraDim = true })
	err := e.AddDocument(ctx, "d1", "e f g h")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	emb.set(func(f *faultyEmbedder) { f.extraDim = false; f.dropOne = true })
	err = e.AddDocument(ctx, "d1", "e f g h")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	assert.Equal(t, 2, e.Len())
	require.NoError(t, e.CheckConsistency())
}

func TestEngine_ExplicitDimensionEnforced(t *testing.T) {
	e := New(newFaulty(16), WithDimension(8))
	err := e.AddDocument(context.Background(), "d", "some words")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 8, e.Stats().Dimension)
}

func TestEngine_CatalogFailureRollsBackIndex(t *testing.T) {
	idx := flat.New(0)
	cat := &rejectingCatalog{Catalog: catalog.New(), allow: 1}
	e := New(hashing.NewEmbedder(32), WithStores(idx, cat))
	ctx := context.Background()

	require.NoError(t, e.AddDocument(ctx, "d0", "first document"))
	err := e.AddDocument(ctx, "d1", "second document")
	require.Error(t, err)

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, cat.Len())
	require.NoError(t, e.CheckConsistency())
	res := snapshot(t, e, "second document")
	require.Len(t, res, 1)
	assert.Equal(t, "d0", res[0].Chunk.DocumentID)
}

func TestEngine_EmbedTimeout(t *testing.T) {
	emb := newFaulty(8)
	emb.set(func(f *faultyEmbedder) { f.block = make(chan struct{}) })
	e := New(emb, WithEmbedTimeout(20*time.Millisecond))

	err := e.AddDocument(context.Background(), "d", "slow provider")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, e.Len())
}

func TestEngine_RebuildIsIdempotent(t *testing.T) {
	docs := []domain.Document{
		{ID: "a", Text: longText(1200, "apple")},
		{ID: "b", Text: "banana bread with walnuts"},
		{ID: "c", Text: ""},
		{ID: "d", Text: longText(40, "date")},
	}
	e := New(hashing.NewEmbedder(128))
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "stale", "stale content to be dropped"))

	require.NoError(t, e.RebuildFrom(ctx, docs))
	first := snapshot(t, e, "banana walnuts apple7")
	st := e.Stats()

	require.NoError(t, e.RebuildFrom(ctx, docs))
	assert.Equal(t, first, snapshot(t, e, "banana walnuts apple7"))
	assert.Equal(t, st, e.Stats())

	// 1200 tokens at 500/50 is 3 chunks, then one each for b and d
	assert.Equal(t, 5, st.Vectors)
	for _, r := range snapshot(t, e, "stale content") {
		assert.NotEqual(t, "stale", r.Chunk.DocumentID)
	}
}

func TestEngine_RebuildFailureKeepsPreviousState(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "keep", "keep this content"))
	before := snapshot(t, e, "keep")

	emb.set(func(f *faultyEmbedder) { f.fail = true })
	err := e.RebuildFrom(ctx, []domain.Document{{ID: "x", Text: "replacement"}})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	emb.set(func(f *faultyEmbedder) { f.fail = false })
	assert.Equal(t, before, snapshot(t, e, "keep"))
}

func TestEngine_RebuildRecoversFromDesync(t *testing.T) {
	idx := flat.New(32)
	cat := catalog.New()
	e := New(hashing.NewEmbedder(32), WithStores(idx, cat))
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "a", "alpha text"))

	// simulate external corruption
	require.NoError(t, idx.Add([][]float32{make([]float32, 32)}))
	assert.ErrorIs(t, e.CheckConsistency(), domain.ErrIndexCatalogDesync)
	_, err := e.Search(ctx, "alpha", 2)
	assert.ErrorIs(t, err, domain.ErrIndexCatalogDesync)
	assert.ErrorIs(t, e.AddDocument(ctx, "b", "beta"), domain.ErrIndexCatalogDesync)

	require.NoError(t, e.RebuildFrom(ctx, []domain.Document{{ID: "a", Text: "alpha text"}}))
	require.NoError(t, e.CheckConsistency())
	res := snapshot(t, e, "alpha text")
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

func TestEngine_RebuildCommitFailureLeavesAlignedEmptyStores(t *testing.T) {
	cat := &rejectingCatalog{Catalog: catalog.New(), allow: 1}
	idx := flat.New(0)
	e := New(hashing.NewEmbedder(16), WithStores(idx, cat))
	ctx := context.Background()

	err := e.RebuildFrom(ctx, []domain.Document{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}})
	assert.ErrorIs(t, err, domain.ErrIndexCatalogDesync)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, cat.Len())
	require.NoError(t, e.CheckConsistency())
}

func TestEngine_ConcurrentAddAndSearchStayAligned(t *testing.T) {
	e := New(hashing.NewEmbedder(64), WithChunking(chunker.Config{Size: 5, Overlap: 2}))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 256)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := e.AddDocument(ctx, fmt.Sprintf("w%d-%d", w, i), longText(12, fmt.Sprintf("w%dx%d", w, i))); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := e.Search(ctx, "w1x3", 3); err != nil {
					errs <- err
				}
				if err := e.CheckConsistency(); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	st := e.Stats()
	assert.Equal(t, st.Vectors, st.Chunks)
	// 12 tokens at 5/2 gives 4 chunks per document
	assert.Equal(t, 4*10*4, st.Vectors)
}

func TestEngine_NoEmbedder(t *testing.T) {
	e := New(nil)
	err := e.AddDocument(context.Background(), "d", "text")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

// constEmbedder returns a copy of vec for every text.
type constEmbedder struct{ vec []float32 }

func (c constEmbedder) Name() string   { return "const" }
func (c constEmbedder) Dimension() int { return len(c.vec) }
func (c constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = append([]float32(nil), c.vec...)
	}
	return out, nil
}

func TestEngine_RejectsUnusableVectors(t *testing.T) {
	nan := float32(math.NaN())
	for name, vec := range map[string][]float32{
		"zero": {0, 0, 0},
		"nan":  {nan, 0.5, 0.5},
		"inf":  {float32(math.Inf(-1)), 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			e := New(constEmbedder{vec: vec})
			err := e.AddDocument(context.Background(), "d", "some words")
			require.ErrorIs(t, err, domain.ErrInvalidVector)
			assert.Equal(t, Stats{Dimension: 3}, e.Stats())
			require.NoError(t, e.CheckConsistency())
		})
	}
}

func TestEngine_SearchRejectsUnusableQueryVector(t *testing.T) {
	idx := flat.New(3)
	cat := catalog.New()
	require.NoError(t, idx.Add([][]float32{{1, 0, 0}}))
	require.NoError(t, cat.Append([]domain.Chunk{{DocumentID: "d", Text: "x"}}))

	e := New(constEmbedder{vec: []float32{0, 0, 0}}, WithStores(idx, cat))
	_, err := e.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidVector)
}

func TestEngine_EmptyDocumentIDRejectedBeforeEmbedding(t *testing.T) {
	emb := newFaulty(32)
	e := New(emb)
	ctx := context.Background()
	require.NoError(t, e.AddDocument(ctx, "keep", "keep this content"))
	calls := emb.callCount()

	err := e.AddDocument(ctx, "", "orphan words")
	require.ErrorIs(t, err, domain.ErrEmptyDocumentID)

	err = e.RebuildFrom(ctx, []domain.Document{{ID: "a", Text: "alpha"}, {Text: "no id"}})
	require.ErrorIs(t, err, domain.ErrEmptyDocumentID)

	assert.Equal(t, calls, emb.callCount())
	assert.Equal(t, 1, e.Len())
	assert.Equal(t, "keep", snapshot(t, e, "keep this content")[0].Chunk.DocumentID)
}

func TestEngine_IndexDocumentReportsChunks(t *testing.T) {
	e := New(hashing.NewEmbedder(32))
	ctx := context.Background()

	n, err := e.IndexDocument(ctx, "d", longText(10, "w"), chunker.Config{Size: 4, Overlap: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = e.IndexDocument(ctx, "blank", "   ", chunker.Config{Size: 4, Overlap: 1})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, e.Len())
}
