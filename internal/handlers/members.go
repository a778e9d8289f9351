package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ilyrer/immonow-comms/internal/models"
)

// AddMemberRequest represents the add-member request.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// UpdateMemberRequest represents a member role change.
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// AddMember handles adding a user to a channel.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	role := models.Role(req.Role)
	if req.Role == "" {
		role = models.RoleMember
	}
	if !models.ValidRole(role) {
		h.Error(w, http.StatusBadRequest, "role must be owner, member or guest")
		return
	}

	member, err := h.db.AddMember(r.Context(), channelID, userID, role)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, member)
}

// UpdateMemberRole handles member role changes. Demoting the only owner is
// rejected to keep the channel owned.
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	role := models.Role(req.Role)
	if !models.ValidRole(role) {
		h.Error(w, http.StatusBadRequest, "role must be owner, member or guest")
		return
	}

	member, err := h.db.UpdateMemberRole(r.Context(), channelID, userID, role)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, member)
}

// RemoveMember handles removing a user from a channel. The member's prior
// messages stay visible.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	if err := h.db.RemoveMember(r.Context(), channelID, userID); err != nil {
		h.StoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
