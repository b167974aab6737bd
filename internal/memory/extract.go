package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Responder runs a one-shot model call and returns the raw text reply.
type Responder interface {
	Response(ctx context.Context, system, prompt string) (string, error)
}

// Creator stores a single memory. Satisfied by *Store.
type Creator interface {
	Create(ctx context.Context, userID, content string, tags []string, conversationID *uuid.UUID) (*Memory, error)
}

// maxReplyPrefix bounds how much of an assistant reply is sent to the
// extraction model.
const maxReplyPrefix = 6000

const extractSystemPrompt = `You extract durable facts about a user from an assistant's reply.
Return a JSON array of short, self-contained statements about the user
(preferences, circumstances, goals, decisions). Return [] when the reply
contains nothing worth remembering. Output only the JSON array, nothing else.`

// Extractor derives memories from conversation turns. User messages are
// chunked and stored verbatim; assistant replies go through a model call
// that distills standalone facts.
type Extractor struct {
	store     Creator
	responder Responder
	logger    *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(store Creator, responder Responder, logger *slog.Logger) (*Extractor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{store: store, responder: responder, logger: logger}, nil
}

// FromUserMessage chunks a raw user message and stores each fragment. A
// failed fragment is logged and skipped; the remaining fragments still
// store. Returns the number of memories stored.
func (e *Extractor) FromUserMessage(ctx context.Context, userID string, conversationID *uuid.UUID, message string) int {
	stored := 0
	for _, chunk := range chunkContent(message) {
		if _, err := e.store.Create(ctx, userID, chunk, []string{"user-message"}, conversationID); err != nil {
			e.logger.Warn("storing user memory chunk failed", "user_id", userID, "error", err)
			continue
		}
		stored++
	}
	return stored
}

// FromAssistantMessage extracts durable facts from an assistant reply and
// stores them. Extraction is best effort: model or parse failures log and
// return zero rather than erroring.
func (e *Extractor) FromAssistantMessage(ctx context.Context, userID string, conversationID *uuid.UUID, reply string) int {
	if len(reply) > maxReplyPrefix {
		cut := maxReplyPrefix
		for cut > 0 && !utf8.RuneStart(reply[cut]) {
			cut--
		}
		reply = reply[:cut]
	}
	facts, err := e.extractFacts(ctx, reply)
	if err != nil {
		e.logger.Warn("fact extraction failed", "user_id", userID, "error", err)
		return 0
	}

	stored := 0
	for _, fact := range facts {
		if _, err := e.store.Create(ctx, userID, fact, []string{"assistant-extracted"}, conversationID); err != nil {
			e.logger.Warn("storing extracted fact failed", "user_id", userID, "error", err)
			continue
		}
		stored++
	}
	return stored
}

func (e *Extractor) extractFacts(ctx context.Context, reply string) ([]string, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// The reply is fenced with a random nonce so instructions embedded in
	// the conversation cannot masquerade as part of this prompt.
	prompt := fmt.Sprintf("Assistant reply between the %s markers:\n\n%s\n%s\n%s",
		nonce, nonce, reply, nonce)

	raw, err := e.responder.Response(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction model call: %w", err)
	}

	return parseFacts(raw), nil
}

// parseFacts decodes the model's JSON array and filters out entries that are
// too short to matter or too long to be a single fact. At most
// MaxFactsPerMessage survive.
func parseFacts(raw string) []string {
	raw = stripCodeFences(raw)

	var candidates []string
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil
	}

	var facts []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(c) < MinContentLength || len(c) > MaxFactLength {
			continue
		}
		facts = append(facts, c)
		if len(facts) == MaxFactsPerMessage {
			break
		}
	}
	return facts
}

// stripCodeFences removes a surrounding markdown code fence, which models
// add around JSON despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.ContainsAny(s[:i], "[{") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func newNonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
