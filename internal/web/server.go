// Package web exposes the HTTP API: streaming chat, conversation and memory
// management, and user preferences.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recall-chat/recall/internal/assistant"
	"github.com/recall-chat/recall/internal/conversation"
	"github.com/recall-chat/recall/internal/memory"
	"github.com/recall-chat/recall/internal/preference"
	"github.com/recall-chat/recall/internal/search"
)

// Server timeouts. WriteTimeout stays unset because chat responses stream
// for as long as the model produces tokens.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// DefaultHistoryLimit caps how many past messages feed into a turn when the
// configuration does not say otherwise.
const DefaultHistoryLimit = 20

// Assistant generates chat replies and conversation titles.
type Assistant interface {
	Stream(ctx context.Context, system string, history []conversation.Message, message string, stream assistant.StreamFunc) (string, error)
	GenerateTitle(ctx context.Context, userMessage, assistantReply string) string
}

// ConversationStore persists conversations and messages.
type ConversationStore interface {
	Create(ctx context.Context, userID string) (*conversation.Conversation, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*conversation.Conversation, error)
	List(ctx context.Context, userID string) ([]conversation.Conversation, error)
	FindNewestEmpty(ctx context.Context, userID string) (*conversation.Conversation, error)
	Messages(ctx context.Context, userID string, conversationID uuid.UUID) ([]conversation.Message, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*conversation.Message, error)
	UpdateTitle(ctx context.Context, userID string, id uuid.UUID, title string) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	DeleteMessageSuffix(ctx context.Context, userID string, conversationID, messageID uuid.UUID) error
}

// MemoryStore persists and searches user memories.
type MemoryStore interface {
	Create(ctx context.Context, userID, content string, tags []string, conversationID *uuid.UUID) (*memory.Memory, error)
	Search(ctx context.Context, userID, query string, opts memory.SearchOptions) ([]memory.Memory, error)
	List(ctx context.Context, userID string, limit int) ([]memory.Memory, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// PreferenceStore persists user personalization settings.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (preference.Preferences, error)
	Put(ctx context.Context, userID string, p preference.Preferences) (preference.Preferences, error)
}

// Enricher adds memory context to a system prompt.
type Enricher interface {
	EnrichPrompt(ctx context.Context, userID, basePrompt, message string, explicit bool) string
}

// Extractor derives memories from a completed turn.
type Extractor interface {
	FromUserMessage(ctx context.Context, userID string, conversationID *uuid.UUID, message string) int
	FromAssistantMessage(ctx context.Context, userID string, conversationID *uuid.UUID, reply string) int
}

// Searcher runs web searches for chat context.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Logger        *slog.Logger
	Assistant     Assistant
	Conversations ConversationStore
	Memories      MemoryStore
	Preferences   PreferenceStore
	Enricher      Enricher
	Extractor     Extractor
	Searcher      Searcher
	Pool          *pgxpool.Pool // optional, enables pool stats in /ready
	HistoryLimit  int

	// Background controls fire-and-forget work spawned by handlers.
	// Background.Ctx should only be canceled after the HTTP server has
	// stopped; Background.WG is waited on during shutdown.
	BackgroundCtx context.Context
	BackgroundWG  *sync.WaitGroup
}

// Server is the HTTP API server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Assistant == nil:
		return nil, errors.New("assistant is required")
	case cfg.Conversations == nil:
		return nil, errors.New("conversation store is required")
	case cfg.Memories == nil:
		return nil, errors.New("memory store is required")
	case cfg.Preferences == nil:
		return nil, errors.New("preference store is required")
	case cfg.Enricher == nil:
		return nil, errors.New("enricher is required")
	case cfg.Extractor == nil:
		return nil, errors.New("extractor is required")
	case cfg.Searcher == nil:
		return nil, errors.New("searcher is required")
	case cfg.BackgroundWG == nil:
		return nil, errors.New("background wait group is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bg := cfg.BackgroundCtx
	if bg == nil {
		bg = context.Background()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	ch := &chatHandler{
		assistant:     cfg.Assistant,
		conversations: cfg.Conversations,
		preferences:   cfg.Preferences,
		enricher:      cfg.Enricher,
		extractor:     cfg.Extractor,
		searcher:      cfg.Searcher,
		historyLimit:  historyLimit,
		logger:        logger,
		bg:            bg,
		wg:            cfg.BackgroundWG,
	}
	cv := &conversationHandler{store: cfg.Conversations, logger: logger}
	mh := &memoryHandler{store: cfg.Memories, logger: logger}
	ph := &preferenceHandler{store: cfg.Preferences, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", ch.send)

	mux.HandleFunc("POST /api/conversations", cv.create)
	mux.HandleFunc("GET /api/conversations", cv.list)
	mux.HandleFunc("GET /api/conversations/{id}", cv.get)
	mux.HandleFunc("GET /api/conversations/{id}/messages", cv.messages)
	mux.HandleFunc("PATCH /api/conversations/{id}", cv.rename)
	mux.HandleFunc("DELETE /api/conversations/{id}", cv.delete)
	mux.HandleFunc("DELETE /api/conversations/{id}/messages/{messageID}", cv.deleteMessageSuffix)

	mux.HandleFunc("GET /api/memories", mh.list)
	mux.HandleFunc("POST /api/memories", mh.create)
	mux.HandleFunc("POST /api/memories/search", mh.search)
	mux.HandleFunc("DELETE /api/memories/{id}", mh.delete)

	mux.HandleFunc("GET /api/preferences", ph.get)
	mux.HandleFunc("PUT /api/preferences", ph.put)

	// Middleware stack, outermost first: recovery, logging, identity.
	var handler http.Handler = mux
	handler = identityMiddleware()(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the identity requirement.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
