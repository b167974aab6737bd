package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Embedder computes the vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}

// Store persists memories in PostgreSQL with pgvector similarity search.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a memory store.
func NewStore(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// Create stores a memory. The embedding is computed first; if it fails the
// memory is not stored. Duplicate content for the same user and conversation
// returns the existing row unchanged.
func (s *Store) Create(ctx context.Context, userID, content string, tags []string, conversationID *uuid.UUID) (*Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	content = sanitizeContent(content)
	if len(content) < MinContentLength || len(content) > ChunkSize {
		return nil, fmt.Errorf("%w: length %d outside [%d, %d]", ErrInvalidContent, len(content), MinContentLength, ChunkSize)
	}
	if tags == nil {
		tags = []string{}
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO memories (user_id, content, tags, conversation_id, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, COALESCE(conversation_id, '00000000-0000-0000-0000-000000000000'::uuid), md5(content))
		DO NOTHING
		RETURNING id, user_id, content, tags, conversation_id, created_at`,
		userID, content, tags, conversationID, vec)

	m := &Memory{}
	err = row.Scan(&m.ID, &m.UserID, &m.Content, &m.Tags, &m.ConversationID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: row already exists, return it.
		return s.findExisting(ctx, userID, content, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: inserting memory: %v", ErrStorageUnavailable, err)
	}
	return m, nil
}

func (s *Store) findExisting(ctx context.Context, userID, content string, conversationID *uuid.UUID) (*Memory, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, content, tags, conversation_id, created_at
		FROM memories
		WHERE user_id = $1
		  AND content = $2
		  AND COALESCE(conversation_id, '00000000-0000-0000-0000-000000000000'::uuid)
		    = COALESCE($3, '00000000-0000-0000-0000-000000000000'::uuid)`,
		userID, content, conversationID)

	m := &Memory{}
	if err := row.Scan(&m.ID, &m.UserID, &m.Content, &m.Tags, &m.ConversationID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: fetching existing memory: %v", ErrStorageUnavailable, err)
	}
	return m, nil
}

// Search finds memories similar to query, scoped to userID. With SortRecency
// it over-fetches by similarity and reorders newest first, so results are
// still topically related to the query rather than a plain recency scan.
func (s *Store) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	opts.normalize()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fetchLimit := opts.Limit
	if opts.SortBy == SortRecency {
		fetchLimit = opts.Limit * 3
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, content, tags, conversation_id, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE user_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, userID, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: searching memories: %v", ErrStorageUnavailable, err)
	}

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	if opts.SortBy == SortRecency {
		sort.Slice(memories, func(i, j int) bool {
			return memories[i].CreatedAt.After(memories[j].CreatedAt)
		})
		if len(memories) > opts.Limit {
			memories = memories[:opts.Limit]
		}
	}
	return memories, nil
}

// List returns the user's memories newest first.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, content, tags, conversation_id, created_at, 0 AS similarity
		FROM memories
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing memories: %v", ErrStorageUnavailable, err)
	}
	return scanMemories(rows)
}

// Delete removes a memory owned by userID. Deleting a memory that does not
// exist, or that belongs to another user, returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM memories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%w: deleting memory: %v", ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMemories(rows pgx.Rows) ([]Memory, error) {
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Tags, &m.ConversationID, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning memory: %v", ErrStorageUnavailable, err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading memories: %v", ErrStorageUnavailable, err)
	}
	return memories, nil
}
