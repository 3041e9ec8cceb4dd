package embedder

import (
	"encoding/json"
	"fmt"
	"math"
)

// Normalize scales v to unit length in place and returns it. After
// normalization, cosine similarity between two vectors reduces to their dot
// product, which is what every Searcher implementation relies on. A zero
// vector is returned unchanged — there is no direction to preserve.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Marshal serializes an embedding as a JSON float array — the transportable
// textual form used in request bodies and in the store's embedding column.
func Marshal(v []float32) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("embedder: marshal vector: %w", err)
	}
	return string(data), nil
}

// Unmarshal parses a JSON float array back into an embedding.
func Unmarshal(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("embedder: unmarshal vector: %w", err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("embedder: empty vector")
	}
	return v, nil
}

// Dot returns the dot product of two equal-length vectors. For unit vectors
// this is their cosine similarity.
func Dot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedder: dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum), nil
}
