package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/recall-chat/recall/internal/memory"
)

type memoryHandler struct {
	store  MemoryStore
	logger *slog.Logger
}

type memoryView struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Similarity float64   `json:"similarity,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toMemoryView(m memory.Memory) memoryView {
	return memoryView{
		ID:         m.ID.String(),
		Content:    m.Content,
		Tags:       m.Tags,
		Similarity: m.Similarity,
		CreatedAt:  m.CreatedAt,
	}
}

func toMemoryViews(memories []memory.Memory) []memoryView {
	views := make([]memoryView, 0, len(memories))
	for _, m := range memories {
		views = append(views, toMemoryView(m))
	}
	return views
}

func (h *memoryHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	memories, err := h.store.List(r.Context(), userID, memory.MaxSearchLimit)
	if err != nil {
		h.logger.Error("listing memories failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": toMemoryViews(memories)})
}

type createMemoryRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

func (h *memoryHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body.")
		return
	}

	m, err := h.store.Create(r.Context(), userID, req.Content, req.Tags, nil)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryView(*m))
}

type searchMemoryRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	SortBy string `json:"sortBy,omitempty"`
}

func (h *memoryHandler) search(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req searchMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body.")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "empty_query", "Query must not be empty.")
		return
	}

	memories, err := h.store.Search(r.Context(), userID, req.Query, memory.SearchOptions{
		Limit:  req.Limit,
		SortBy: memory.SortBy(req.SortBy),
	})
	if err != nil {
		h.logger.Error("memory search failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": toMemoryViews(memories)})
}

func (h *memoryHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid memory ID.")
		return
	}

	if err := h.store.Delete(r.Context(), userID, id); err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
