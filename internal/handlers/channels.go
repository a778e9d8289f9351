package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ilyrer/immonow-comms/internal/api/middleware"
	"github.com/ilyrer/immonow-comms/internal/metrics"
)

// CreateChannelRequest represents the channel creation request.
type CreateChannelRequest struct {
	Name      string   `json:"name"`
	Topic     string   `json:"topic,omitempty"`
	IsPrivate bool     `json:"is_private"`
	TeamID    *string  `json:"team_id,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// UpdateChannelRequest represents a channel patch. Nil fields are left
// untouched.
type UpdateChannelRequest struct {
	Name      *string `json:"name,omitempty"`
	Topic     *string `json:"topic,omitempty"`
	IsPrivate *bool   `json:"is_private,omitempty"`
}

// ListChannels handles listing channels, most recently active first.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)

	channels, total, err := h.db.ListChannels(r.Context(), page, size)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, Page{Items: channels, Total: total, Page: page, Size: size})
}

// CreateChannel handles channel creation. The invoking user is added as
// owner; member_ids join with role member, deduplicated against the owner.
// A blank name is replaced with a timestamped default instead of failing.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserFromContext(r.Context())

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		name = fmt.Sprintf("channel-%d", time.Now().Unix())
	}

	var teamID *uuid.UUID
	if req.TeamID != nil && *req.TeamID != "" {
		id, err := uuid.Parse(*req.TeamID)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid team ID format")
			return
		}
		teamID = &id
	}

	memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
	for _, raw := range req.MemberIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid member ID format")
			return
		}
		memberIDs = append(memberIDs, id)
	}

	channel, err := h.db.CreateChannel(r.Context(), name, req.Topic, req.IsPrivate, teamID, userID, memberIDs)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	metrics.ChannelsCreated.Inc()
	h.JSON(w, http.StatusCreated, channel)
}

// GetChannel handles fetching a single channel with its members.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	channel, err := h.db.GetChannel(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if channel == nil {
		h.Error(w, http.StatusNotFound, "channel not found")
		return
	}

	h.JSON(w, http.StatusOK, channel)
}

// UpdateChannel handles name/topic/privacy updates.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Name != nil {
		name := sanitizeName(*req.Name)
		if name == "" {
			name = fmt.Sprintf("channel-%d", time.Now().Unix())
		}
		req.Name = &name
	}

	channel, err := h.db.UpdateChannel(r.Context(), channelID, req.Name, req.Topic, req.IsPrivate)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, channel)
}

// ArchiveChannel handles channel archival. Channels are never hard-deleted;
// an archived channel drops out of the list but keeps its ledger.
func (h *Handler) ArchiveChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	if err := h.db.ArchiveChannel(r.Context(), channelID); err != nil {
		h.StoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
