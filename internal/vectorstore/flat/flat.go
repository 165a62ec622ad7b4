package flat

import (
	"container/heap"
	"fmt"
	"math"
	"sync"

	"docrag/internal/domain"
)

// Index is an exact in-memory vector index scored by inner product.
// Vectors are expected to be L2-normalized, which makes the score a cosine similarity.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
}

// New creates an empty index. A zero dimension is adopted from the first Add.
func New(dimension int) *Index {
	if dimension < 0 {
		dimension = 0
	}
	return &Index{dimension: dimension}
}

// Dimension returns the fixed vector size, or 0 if no vector has been added yet.
func (s *Index) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Len returns the number of stored vectors.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Add appends vectors in order. The batch is validated as a whole and nothing is
// stored if any vector has the wrong dimension.
func (s *Index) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
		if !finite(v) {
			return fmt.Errorf("%w: vector %d has a non-finite component", domain.ErrInvalidVector, i)
		}
	}
	s.dimension = dim
	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		s.vectors = append(s.vectors, cp)
	}
	return nil
}

// Search returns the min(k, Len) best ordinals by descending score.
// Equal scores keep insertion order.
func (s *Index) Search(query []float32, k int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 || k <= 0 {
		return []domain.Hit{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	if !finite(query) {
		return nil, fmt.Errorf("%w: query has a non-finite component", domain.ErrInvalidVector)
	}
	if k > len(s.vectors) {
		k = len(s.vectors)
	}
	h := make(hitHeap, 0, k)
	for i, v := range s.vectors {
		hit := domain.Hit{Ordinal: i, Score: dot(v, query)}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if better(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	out := make([]domain.Hit, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(domain.Hit)
	}
	return out, nil
}

// Vector returns a copy of the vector stored at ordinal.
func (s *Index) Vector(ordinal int) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(s.vectors) {
		return nil, fmt.Errorf("%w: %d (len %d)", domain.ErrOrdinalOutOfRange, ordinal, len(s.vectors))
	}
	cp := make([]float32, len(s.vectors[ordinal]))
	copy(cp, s.vectors[ordinal])
	return cp, nil
}

// Truncate drops every vector at ordinal n or later.
func (s *Index) Truncate(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n > len(s.vectors) {
		return fmt.Errorf("%w: truncate to %d (len %d)", domain.ErrOrdinalOutOfRange, n, len(s.vectors))
	}
	for i := n; i < len(s.vectors); i++ {
		s.vectors[i] = nil
	}
	s.vectors = s.vectors[:n]
	return nil
}

// Reset drops all vectors. The dimension stays fixed.
func (s *Index) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
}

// finite reports whether v has no NaN or Inf component, so scores stay totally ordered.
func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// better reports whether a ranks ahead of b.
func better(a, b domain.Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Ordinal < b.Ordinal
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []domain.Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) { *h = append(*h, x.(domain.Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
