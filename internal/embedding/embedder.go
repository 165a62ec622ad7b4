// Package embedding holds helpers shared by the embedding providers in its
// subpackages. Providers implement domain.Embedder.
package embedding

import "math"

// Normalize scales v to unit length in place. It reports false and leaves v
// untouched when v has zero length.
func Normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// NormalizeAll normalizes every vector of a batch in place.
func NormalizeAll(vs [][]float32) {
	for _, v := range vs {
		Normalize(v)
	}
}

// Batches splits texts into consecutive slices of at most size elements.
func Batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
