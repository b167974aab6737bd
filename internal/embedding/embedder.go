// Package embedding turns text into fixed-dimension vectors for similarity
// search.
//
// The underlying model resource is resolved lazily on first use and reused
// for the process lifetime. Initialization is single-flight: concurrent first
// callers share one resolution attempt.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// Dimension is the vector dimension stored in the memories table.
// gemini-embedding-001 supports truncation to 768 via OutputDimensionality
// (Matryoshka Representation Learning); the pgvector schema matches.
const Dimension = 768

// Timeout bounds a single embedding call.
const Timeout = 10 * time.Second

// ErrUnavailable indicates the embedding model could not be initialized or
// returned no usable vector. Callers must not store a memory without an
// embedding; creation aborts on this error.
var ErrUnavailable = errors.New("embedding unavailable")

// ResolveFunc resolves the underlying ai.Embedder. Called once, lazily.
type ResolveFunc func() (ai.Embedder, error)

// Generator computes embeddings via a lazily-resolved genkit embedder.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	resolve ResolveFunc
	logger  *slog.Logger

	once     sync.Once
	embedder ai.Embedder
	initErr  error
}

// NewGenerator creates a Generator. The resolve function is not called until
// the first Embed.
func NewGenerator(resolve ResolveFunc, logger *slog.Logger) (*Generator, error) {
	if resolve == nil {
		return nil, fmt.Errorf("resolve function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{resolve: resolve, logger: logger}, nil
}

// Embed returns the vector for text. Deterministic for a given model version.
// Long inputs are truncated/pooled by the provider rather than failing.
func (g *Generator) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	g.once.Do(func() {
		g.embedder, g.initErr = g.resolve()
		if g.initErr == nil && g.embedder == nil {
			g.initErr = fmt.Errorf("resolver returned nil embedder")
		}
		if g.initErr != nil {
			g.logger.Error("embedder initialization failed", "error", g.initErr)
		}
	})
	if g.initErr != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: %v", ErrUnavailable, g.initErr)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	dim := int32(Dimension)
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: embedding text: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("%w: empty embedding response", ErrUnavailable)
	}

	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
