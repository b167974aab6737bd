package web

import (
	"log/slog"
	"net/http"

	"github.com/recall-chat/recall/internal/preference"
)

type preferenceHandler struct {
	store  PreferenceStore
	logger *slog.Logger
}

type preferencesView struct {
	Nickname           string `json:"nickname"`
	Occupation         string `json:"occupation"`
	Style              string `json:"style"`
	CustomInstructions string `json:"customInstructions"`
	MoreInfo           string `json:"moreInfo"`
}

func (h *preferenceHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	prefs, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading preferences failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, preferencesView(prefs))
}

func (h *preferenceHandler) put(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req preferencesView
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body.")
		return
	}

	saved, err := h.store.Put(r.Context(), userID, preference.Preferences(req))
	if err != nil {
		h.logger.Error("saving preferences failed", "user_id", userID, "error", err)
		status, code, msg := classifyError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, preferencesView(saved))
}
