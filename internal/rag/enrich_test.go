package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/recall-chat/recall/internal/log"
	"github.com/recall-chat/recall/internal/memory"
)

type fakeSearcher struct {
	memories []memory.Memory
	err      error
	gotOpts  memory.SearchOptions
	gotQuery string
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, opts memory.SearchOptions) ([]memory.Memory, error) {
	f.gotQuery = query
	f.gotOpts = opts
	return f.memories, f.err
}

const basePrompt = "You are a helpful assistant."

func TestEnrichPromptNoMemories(t *testing.T) {
	e, err := NewEnricher(&fakeSearcher{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewEnricher() unexpected error: %v", err)
	}

	got := e.EnrichPrompt(context.Background(), "user-1", basePrompt, "hello", false)
	if got != basePrompt {
		t.Errorf("EnrichPrompt() with no memories = %q, want base prompt unchanged", got)
	}
}

func TestEnrichPromptSearchFailure(t *testing.T) {
	e, _ := NewEnricher(&fakeSearcher{err: errors.New("db down")}, log.NewNop())

	got := e.EnrichPrompt(context.Background(), "user-1", basePrompt, "hello", true)
	if got != basePrompt {
		t.Errorf("EnrichPrompt() on search failure = %q, want base prompt unchanged", got)
	}
}

func TestEnrichPromptAmbient(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{memories: []memory.Memory{
		{Content: "The user is vegetarian", CreatedAt: day},
		{Content: "The user lives in Berlin", CreatedAt: day},
	}}
	e, _ := NewEnricher(searcher, log.NewNop())

	got := e.EnrichPrompt(context.Background(), "user-1", basePrompt, "suggest dinner ideas", false)

	if searcher.gotOpts.Limit != AmbientLimit {
		t.Errorf("ambient limit = %d, want %d", searcher.gotOpts.Limit, AmbientLimit)
	}
	if searcher.gotOpts.SortBy != memory.SortRecency {
		t.Errorf("ambient sort = %q, want recency", searcher.gotOpts.SortBy)
	}
	if !strings.HasPrefix(got, basePrompt) {
		t.Error("enriched prompt does not start with base prompt")
	}
	if !strings.Contains(got, "## Background Context") {
		t.Errorf("missing ambient header:\n%s", got)
	}
	if strings.Contains(got, "Relevant Context") {
		t.Error("ambient enrichment used the explicit header")
	}
	for _, want := range []string{
		"- Memory from 2026-03-14: The user is vegetarian",
		"- Memory from 2026-03-14: The user lives in Berlin",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing memory line %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "Use this context naturally") {
		t.Error("missing usage note")
	}
}

func TestEnrichPromptExplicit(t *testing.T) {
	searcher := &fakeSearcher{memories: []memory.Memory{
		{Content: "The user plays jazz piano"},
	}}
	e, _ := NewEnricher(searcher, log.NewNop())

	got := e.EnrichPrompt(context.Background(), "user-1", basePrompt, "what do I play", true)

	if searcher.gotOpts.Limit != ExplicitLimit {
		t.Errorf("explicit limit = %d, want %d", searcher.gotOpts.Limit, ExplicitLimit)
	}
	if searcher.gotOpts.SortBy != memory.SortRelevance {
		t.Errorf("explicit sort = %q, want relevance", searcher.gotOpts.SortBy)
	}
	if !strings.Contains(got, `## Relevant Context (searching for: "what do I play")`) {
		t.Errorf("missing explicit header:\n%s", got)
	}
	if searcher.gotQuery != "what do I play" {
		t.Errorf("search query = %q", searcher.gotQuery)
	}
}
