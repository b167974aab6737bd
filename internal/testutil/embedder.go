package testutil

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/pgvector/pgvector-go"
)

const embedderDim = 768

// FakeEmbedder produces deterministic unit vectors derived from the input
// text, so similarity tests run without any model provider. Identical text
// always embeds identically; Assign pins chosen texts to chosen directions
// when a test needs controlled similarity ordering.
type FakeEmbedder struct {
	assigned map[string][]float32
}

// NewFakeEmbedder creates a FakeEmbedder.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{assigned: make(map[string][]float32)}
}

// Assign pins text to a unit vector pointing along the given axis. Texts
// assigned to the same axis are maximally similar to each other.
func (f *FakeEmbedder) Assign(text string, axis int) {
	vec := make([]float32, embedderDim)
	vec[axis%embedderDim] = 1
	f.assigned[text] = vec
}

// Embed returns the deterministic vector for text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	if vec, ok := f.assigned[text]; ok {
		return pgvector.NewVector(vec), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, embedderDim)
	var norm float64
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		v := float32(int64(state>>33))/float32(math.MaxInt32) - 0.5
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return pgvector.NewVector(vec), nil
}
