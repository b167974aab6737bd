// Package rag enriches chat prompts with retrieved memories.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recall-chat/recall/internal/memory"
)

// Retrieval limits. An explicit memory request pulls more, by relevance; the
// ambient pass stays small and recent so it never dominates the prompt.
const (
	ExplicitLimit = 5
	AmbientLimit  = 3
)

// Searcher finds memories similar to a query.
type Searcher interface {
	Search(ctx context.Context, userID, query string, opts memory.SearchOptions) ([]memory.Memory, error)
}

// Enricher appends retrieved memory context to a system prompt.
type Enricher struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(searcher Searcher, logger *slog.Logger) (*Enricher, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{searcher: searcher, logger: logger}, nil
}

// EnrichPrompt returns basePrompt extended with a memory context block built
// from the user's message. explicit marks a direct memory request, which
// retrieves more and sorts by relevance instead of recency.
//
// When nothing relevant is stored, or retrieval fails, basePrompt comes back
// unchanged. A chat turn never fails because memory lookup did.
func (e *Enricher) EnrichPrompt(ctx context.Context, userID, basePrompt, message string, explicit bool) string {
	opts := memory.SearchOptions{Limit: AmbientLimit, SortBy: memory.SortRecency}
	if explicit {
		opts = memory.SearchOptions{Limit: ExplicitLimit, SortBy: memory.SortRelevance}
	}

	memories, err := e.searcher.Search(ctx, userID, message, opts)
	if err != nil {
		e.logger.Warn("memory retrieval failed, continuing without context",
			"user_id", userID, "error", err)
		return basePrompt
	}
	if len(memories) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	if explicit {
		fmt.Fprintf(&b, "## Relevant Context (searching for: %q)\n", message)
	} else {
		b.WriteString("## Background Context\n")
	}
	for _, m := range memories {
		fmt.Fprintf(&b, "- Memory from %s: %s\n", m.CreatedAt.Format("2006-01-02"), m.Content)
	}
	b.WriteString("\nUse this context naturally when relevant. Do not mention that it was retrieved.\n")
	return b.String()
}
