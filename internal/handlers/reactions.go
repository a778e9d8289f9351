package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ilyrer/immonow-comms/internal/api/middleware"
	"github.com/ilyrer/immonow-comms/internal/metrics"
)

// ReactionRequest represents the react request.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// AddReaction handles POST /messages/{id}/reactions. The wire protocol
// exposes react and un-react as two verbs; the toggle decision lives in the
// client, which checks current state before choosing which verb to call.
// Reacting twice with the same emoji is a no-op.
func (h *Handler) AddReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserFromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Emoji == "" {
		h.Error(w, http.StatusBadRequest, "emoji is required")
		return
	}

	reaction, err := h.db.AddReaction(r.Context(), messageID, userID, req.Emoji)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	metrics.ReactionsToggled.WithLabelValues("add").Inc()
	h.JSON(w, http.StatusCreated, reaction)
}

// RemoveReaction handles DELETE /messages/{id}/reactions?emoji=.
// Removing a reaction that does not exist is a no-op.
func (h *Handler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserFromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	emoji := r.URL.Query().Get("emoji")
	if emoji == "" {
		h.Error(w, http.StatusBadRequest, "emoji query parameter is required")
		return
	}

	if err := h.db.RemoveReaction(r.Context(), messageID, userID, emoji); err != nil {
		h.StoreError(w, err)
		return
	}

	metrics.ReactionsToggled.WithLabelValues("remove").Inc()
	w.WriteHeader(http.StatusNoContent)
}
