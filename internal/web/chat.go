package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/recall-chat/recall/internal/assistant"
	"github.com/recall-chat/recall/internal/conversation"
	"github.com/recall-chat/recall/internal/rag"
	"github.com/recall-chat/recall/internal/search"
	"github.com/recall-chat/recall/internal/web/sse"
)

const (
	// maxMessageLength rejects pathological inputs before any model call.
	maxMessageLength = 8000

	// extractionTimeout bounds the background memory extraction for one
	// turn.
	extractionTimeout = 60 * time.Second
)

type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	DeepThinking   bool   `json:"deepThinking,omitempty"`
}

type chatHandler struct {
	assistant     Assistant
	conversations ConversationStore
	preferences   PreferenceStore
	enricher      Enricher
	extractor     Extractor
	searcher      Searcher
	historyLimit  int
	logger        *slog.Logger

	// Background extraction outlives the request. bg is canceled and wg
	// drained on shutdown.
	bg context.Context
	wg *sync.WaitGroup
}

// send runs one chat turn and streams the reply as server-sent events.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := userIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity.")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body.")
		return
	}

	rawMessage := strings.TrimSpace(req.Message)
	if rawMessage == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "Message must not be empty.")
		return
	}
	if len(rawMessage) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "message_too_long", "Message is too long.")
		return
	}

	conv, err := h.resolveConversation(ctx, userID, req.ConversationID)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}

	// History is loaded before the new message is appended, so the model
	// sees it exactly once, as the current turn.
	history, err := h.conversations.Messages(ctx, userID, conv.ID)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	firstExchange := len(history) == 0
	if len(history) > h.historyLimit {
		history = history[len(history)-h.historyLimit:]
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", msgInternal)
		return
	}
	// Past this point errors go through the stream, not HTTP status codes.
	if err := stream.Conversation(conv.ID.String()); err != nil {
		return
	}

	message, directives := rag.ParseDirectives(rawMessage)
	if message == "" {
		message = rawMessage
	}

	system := h.buildSystemPrompt(ctx, userID, message, directives, req.DeepThinking)

	if _, err := h.conversations.AppendMessage(ctx, conv.ID, conversation.RoleUser, rawMessage); err != nil {
		h.logger.Error("persisting user message failed", "conversation_id", conv.ID, "error", err)
		stream.Error(msgInternal)
		stream.Done()
		return
	}
	// The user's own words are worth remembering regardless of how the
	// model call below goes.
	h.extractUser(userID, conv.ID, rawMessage)

	// Chunks accumulate here so a partial reply survives mid-stream
	// failure or client cancellation.
	var replyBuf strings.Builder
	reply, err := h.assistant.Stream(ctx, system, history, message, func(ctx context.Context, chunk string) error {
		replyBuf.WriteString(chunk)
		return stream.Content(chunk)
	})
	if err != nil {
		h.logger.Warn("chat generation failed",
			"conversation_id", conv.ID, "user_id", userID, "error", err)
		if partial := replyBuf.String(); partial != "" {
			h.persistReply(conv.ID, partial)
			h.extractAssistant(userID, conv.ID, partial)
		}
		stream.Error(streamErrorMessage(err))
		stream.Done()
		return
	}
	if reply == "" {
		reply = replyBuf.String()
	}
	if reply == "" {
		h.logger.Warn("model produced no content",
			"conversation_id", conv.ID, "user_id", userID)
		stream.Error(msgInternal)
		stream.Done()
		return
	}

	h.persistReply(conv.ID, reply)
	h.extractAssistant(userID, conv.ID, reply)

	if firstExchange && conv.Title == conversation.DefaultTitle {
		if title := h.assistant.GenerateTitle(ctx, message, reply); title != assistant.TitleFallback {
			if err := h.conversations.UpdateTitle(ctx, userID, conv.ID, title); err != nil {
				h.logger.Warn("saving title failed", "conversation_id", conv.ID, "error", err)
			} else {
				stream.Title(title)
			}
		}
	}

	stream.Done()
}

// resolveConversation returns the target conversation for a turn. An
// explicit ID must exist and belong to the user. Without one, the newest
// empty conversation is reused before a fresh one is created.
func (h *chatHandler) resolveConversation(ctx context.Context, userID, rawID string) (*conversation.Conversation, error) {
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, conversation.ErrNotFound
		}
		return h.conversations.Get(ctx, userID, id)
	}

	conv, err := h.conversations.FindNewestEmpty(ctx, userID)
	if err == nil {
		return conv, nil
	}
	return h.conversations.Create(ctx, userID)
}

// buildSystemPrompt assembles the system prompt for a turn: base prompt,
// memory context, personalization block, and optional web search results.
// Preferences and web search run concurrently; both degrade to absence on
// failure.
func (h *chatHandler) buildSystemPrompt(ctx context.Context, userID, message string, directives rag.Directives, deepThinking bool) string {
	base := assistant.DefaultSystemPrompt
	if deepThinking {
		base = assistant.DeepThinkingPrompt
	}

	var (
		prefBlock   string
		searchBlock string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prefs, err := h.preferences.Get(gctx, userID)
		if err != nil {
			h.logger.Warn("loading preferences failed", "user_id", userID, "error", err)
			return nil
		}
		prefBlock = prefs.PromptBlock()
		return nil
	})
	if h.searcher.Enabled() && (directives.Search || search.ShouldTrigger(message)) {
		g.Go(func() error {
			results, err := h.searcher.Search(gctx, message)
			if err != nil {
				h.logger.Warn("web search failed, continuing without results",
					"user_id", userID, "error", err)
				return nil
			}
			searchBlock = search.FormatResults(message, results)
			return nil
		})
	}
	_ = g.Wait()

	system := h.enricher.EnrichPrompt(ctx, userID, base, message, directives.Memory)
	if prefBlock != "" {
		system += "\n\n" + prefBlock
	}
	if searchBlock != "" {
		system += "\n\n" + searchBlock
	}
	return system
}

// persistReply saves the assistant message on the app lifecycle context, so
// a reply produced before the client went away is not lost with it.
func (h *chatHandler) persistReply(conversationID uuid.UUID, reply string) {
	ctx, cancel := context.WithTimeout(h.bg, 10*time.Second)
	defer cancel()
	if _, err := h.conversations.AppendMessage(ctx, conversationID, conversation.RoleAssistant, reply); err != nil {
		h.logger.Error("persisting assistant message failed",
			"conversation_id", conversationID, "error", err)
	}
}

func (h *chatHandler) extractUser(userID string, conversationID uuid.UUID, message string) {
	h.inBackground(func(ctx context.Context) {
		if n := h.extractor.FromUserMessage(ctx, userID, &conversationID, message); n > 0 {
			h.logger.Debug("user memories stored",
				"user_id", userID, "conversation_id", conversationID, "count", n)
		}
	})
}

func (h *chatHandler) extractAssistant(userID string, conversationID uuid.UUID, reply string) {
	h.inBackground(func(ctx context.Context) {
		if n := h.extractor.FromAssistantMessage(ctx, userID, &conversationID, reply); n > 0 {
			h.logger.Debug("assistant facts stored",
				"user_id", userID, "conversation_id", conversationID, "count", n)
		}
	})
}

// inBackground runs fn on the app lifecycle context so it outlives the
// request. Tracked by the shutdown WaitGroup.
func (h *chatHandler) inBackground(fn func(context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.bg, extractionTimeout)
		defer cancel()
		fn(ctx)
	}()
}
