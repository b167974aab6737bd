package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/recall-chat/recall/internal/conversation"
)

// maxTitleLength bounds client-supplied conversation titles.
const maxTitleLength = 100

type conversationHandler struct {
	store  ConversationStore
	logger *slog.Logger
}

type conversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func toConversationView(c conversation.Conversation) conversationView {
	return conversationView{
		ID:        c.ID.String(),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	conv, err := h.store.Create(r.Context(), userID)
	if err != nil {
		h.logger.Error("creating conversation failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationView(*conv))
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	conversations, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing conversations failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}

	views := make([]conversationView, 0, len(conversations))
	for _, c := range conversations {
		views = append(views, toConversationView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid conversation ID.")
		return
	}

	conv, err := h.store.Get(r.Context(), userID, id)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(*conv))
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid conversation ID.")
		return
	}

	messages, err := h.store.Messages(r.Context(), userID, id)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

type renameRequest struct {
	Title string `json:"title"`
}

func (h *conversationHandler) rename(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid conversation ID.")
		return
	}

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body.")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_title", "Title must be between 1 and 100 characters.")
		return
	}

	if err := h.store.UpdateTitle(r.Context(), userID, id, title); err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}

	conv, err := h.store.Get(r.Context(), userID, id)
	if err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(*conv))
}

func (h *conversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid conversation ID.")
		return
	}

	if err := h.store.Delete(r.Context(), userID, id); err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMessageSuffix removes a message and everything after it, so the
// client can regenerate from an earlier point in the thread.
func (h *conversationHandler) deleteMessageSuffix(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid conversation ID.")
		return
	}
	msgID, err := uuid.Parse(r.PathValue("messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid message ID.")
		return
	}

	if err := h.store.DeleteMessageSuffix(r.Context(), userID, convID, msgID); err != nil {
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
