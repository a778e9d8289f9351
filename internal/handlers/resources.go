package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ilyrer/immonow-comms/internal/metrics"
	"github.com/ilyrer/immonow-comms/internal/models"
)

// AttachResourceLink handles POST /messages/{id}/resources, tying a message
// to a CRM entity. Duplicate links on one message are accepted; the pinned
// view deduplicates.
func (h *Handler) AttachResourceLink(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req ResourceLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	link := &models.ResourceLink{
		ResourceType: models.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		Label:        req.Label,
	}
	if err := h.db.AttachResourceLink(r.Context(), messageID, link); err != nil {
		h.StoreError(w, err)
		return
	}

	metrics.ResourceLinksAttached.Inc()
	h.JSON(w, http.StatusCreated, link)
}

// PinnedResources handles GET /channels/{id}/resources: the deduplicated,
// first-seen-ordered list of CRM entities referenced by the channel's
// messages. Derived on every read, never persisted.
func (h *Handler) PinnedResources(w http.ResponseWriter, r *http.Request) {
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

	msgs, err := h.db.ChannelResourceLinks(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	pinned := models.PinnedResources(msgs)
	h.JSON(w, http.StatusOK, Page{Items: pinned, Total: len(pinned), Page: 1, Size: len(pinned)})
}
