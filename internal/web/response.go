package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recall-chat/recall/internal/assistant"
	"github.com/recall-chat/recall/internal/conversation"
	"github.com/recall-chat/recall/internal/embedding"
	"github.com/recall-chat/recall/internal/memory"
)

// User-facing error messages. Provider failures never leak raw error text to
// clients.
const (
	msgRateLimited     = "You're sending messages too quickly. Please wait a moment."
	msgContextTooLarge = "The conversation is too long. Please start a new chat."
	msgUnavailable     = "The assistant is temporarily unavailable. Please try again."
	msgInternal        = "Something went wrong. Please try again."
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes to a buffer first so a failed encode can still produce a
// clean 500 instead of a torn response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("encoding JSON response failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("writing response body failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

// classifyError maps domain errors onto an HTTP status and a user-facing
// message.
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, memory.ErrNotFound), errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found."
	case errors.Is(err, memory.ErrInvalidContent):
		return http.StatusBadRequest, "invalid_content", err.Error()
	case errors.Is(err, assistant.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", msgRateLimited
	case errors.Is(err, assistant.ErrContextTooLarge):
		return http.StatusRequestEntityTooLarge, "context_too_large", msgContextTooLarge
	case errors.Is(err, assistant.ErrUnavailable):
		return http.StatusBadGateway, "model_unavailable", msgUnavailable
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, memory.ErrStorageUnavailable):
		return http.StatusBadGateway, "storage_unavailable", msgUnavailable
	default:
		return http.StatusInternalServerError, "internal_error", msgInternal
	}
}

// streamErrorMessage picks the user-facing text for an error that happens
// mid-stream, where an HTTP status can no longer be sent.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, assistant.ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, assistant.ErrContextTooLarge):
		return msgContextTooLarge
	case errors.Is(err, assistant.ErrUnavailable):
		return msgUnavailable
	default:
		return msgInternal
	}
}
