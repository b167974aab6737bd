package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists conversations and messages in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create starts a new conversation with the default title.
func (s *Store) Create(ctx context.Context, userID string) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id)
		VALUES ($1)
		RETURNING id, user_id, title, created_at, updated_at`,
		userID)

	c := &Conversation{}
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

// Get returns a conversation owned by userID.
func (s *Store) Get(ctx context.Context, userID string, id uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2`,
		id, userID)

	c := &Conversation{}
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	return c, nil
}

// List returns the user's conversations, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// FindNewestEmpty returns the user's most recent conversation with no
// messages, or ErrNotFound. Reusing it avoids piling up abandoned empty
// threads when a client repeatedly opens a new chat.
func (s *Store) FindNewestEmpty(ctx context.Context, userID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at
		FROM conversations c
		WHERE c.user_id = $1
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)
		ORDER BY c.created_at DESC
		LIMIT 1`,
		userID)

	c := &Conversation{}
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding empty conversation: %w", err)
	}
	return c, nil
}

// Messages returns the conversation's messages oldest first, after verifying
// ownership.
func (s *Store) Messages(ctx context.Context, userID string, conversationID uuid.UUID) ([]Message, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage adds a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, role, content, created_at`,
		conversationID, role, content)

	m := &Message{}
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return m, nil
}

// UpdateTitle sets the conversation title.
func (s *Store) UpdateTitle(ctx context.Context, userID string, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET title = $1, updated_at = now()
		WHERE id = $2 AND user_id = $3`,
		title, id, userID)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and, via cascade, its messages.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessageSuffix removes a message and everything after it in the
// conversation, supporting regeneration from an earlier point.
func (s *Store) DeleteMessageSuffix(ctx context.Context, userID string, conversationID, messageID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages
		WHERE conversation_id = $1
		  AND (created_at, id) >= (
			SELECT created_at, id FROM messages
			WHERE id = $2 AND conversation_id = $1
		  )`,
		conversationID, messageID)
	if err != nil {
		return fmt.Errorf("deleting message suffix: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
