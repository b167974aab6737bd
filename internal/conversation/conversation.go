// Package conversation persists chat threads and their messages.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is assigned at creation and replaced once a title has been
// generated from the opening exchange.
const DefaultTitle = "New Chat"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrNotFound indicates the conversation does not exist or belongs to
// another user.
var ErrNotFound = errors.New("conversation not found")

// Conversation is a chat thread owned by a single user.
type Conversation struct {
	ID        uuid.UUID
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn in a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	CreatedAt      time.Time
}
