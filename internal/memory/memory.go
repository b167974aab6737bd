// Package memory stores and retrieves user memories with vector similarity
// search backed by pgvector.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// MinContentLength is the shortest fragment worth remembering. Shorter
	// chunks and extracted facts are discarded.
	MinContentLength = 20

	// MaxFactLength caps a single extracted fact. Longer model output is a
	// sign of summarization rather than fact extraction and is dropped.
	MaxFactLength = 300

	// ChunkSize is the maximum length of a stored chunk of raw user input.
	ChunkSize = 500

	// MaxFactsPerMessage bounds how many facts one assistant reply can add.
	MaxFactsPerMessage = 4

	// DefaultSearchLimit is used when a search request does not set a limit.
	DefaultSearchLimit = 5

	// MaxSearchLimit caps a single similarity search.
	MaxSearchLimit = 50
)

var (
	// ErrNotFound indicates the memory does not exist or belongs to
	// another user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidContent indicates content outside the accepted length range.
	ErrInvalidContent = errors.New("invalid memory content")

	// ErrStorageUnavailable indicates the database could not be reached.
	ErrStorageUnavailable = errors.New("memory storage unavailable")
)

// SortBy selects the ordering of search results.
type SortBy string

const (
	// SortRelevance orders by vector similarity, best match first.
	SortRelevance SortBy = "relevance"

	// SortRecency retrieves by similarity, then reorders newest first.
	SortRecency SortBy = "recency"
)

// Memory is a single stored fact or fragment about a user.
type Memory struct {
	ID             uuid.UUID
	UserID         string
	Content        string
	Tags           []string
	ConversationID *uuid.UUID
	Similarity     float64
	CreatedAt      time.Time
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	Limit  int
	SortBy SortBy
}

func (o *SearchOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		o.Limit = MaxSearchLimit
	}
	if o.SortBy != SortRecency {
		o.SortBy = SortRelevance
	}
}
