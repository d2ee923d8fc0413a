package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicEmbedder avoids network calls by hashing text into a vector.
// It exists for local development and tests only.
type DeterministicEmbedder struct {
	dim int
}

// NewDeterministicEmbedder constructs the embedder.
func NewDeterministicEmbedder(dim int) *DeterministicEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &DeterministicEmbedder{dim: dim}
}

// Embed converts text into a pseudo-random unit vector.
func (e *DeterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dim)
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(text))
	seed := hash.Sum64()
	var norm float64
	for i := 0; i < e.dim; i++ {
		seed = seed*1099511628211 + 1469598103934665603
		v := float64(seed%1997)/998.5 - 1
		vector[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector, nil
}
