package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ilyrer/immonow-comms/internal/api/middleware"
	"github.com/ilyrer/immonow-comms/internal/metrics"
	"github.com/ilyrer/immonow-comms/internal/models"
)

const maxContentBytes = 4096

// AttachmentRequest represents an attachment sent with a message.
type AttachmentRequest struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ResourceLinkRequest represents a resource link sent with a message.
type ResourceLinkRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Label        string `json:"label,omitempty"`
}

// SendMessageRequest represents the post-message request.
type SendMessageRequest struct {
	Content       string                `json:"content"`
	ParentID      string                `json:"parent_id,omitempty"`
	Attachments   []AttachmentRequest   `json:"attachments,omitempty"`
	ResourceLinks []ResourceLinkRequest `json:"resource_links,omitempty"`
}

// EditMessageRequest represents the edit-message request.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ListMessages handles fetching a page of a channel's messages in creation
// order. Thread grouping is derived by the client, not stored.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
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

	page, size := pageParams(r)

	msgs, total, err := h.db.ListMessages(r.Context(), channelID, page, size)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, Page{Items: msgs, Total: total, Page: page, Size: size})
}

// SendMessage handles posting a message to a channel. Attachments and
// resource links are persisted atomically with the message: a failed send
// leaves nothing behind.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserFromContext(r.Context())

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusUnprocessableEntity, "content is required")
		return
	}
	if len(req.Content) > maxContentBytes {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg := &models.ChannelMessage{
		ChannelID: channelID,
		UserID:    userID,
		Content:   req.Content,
		ParentID:  req.ParentID,
	}
	for _, a := range req.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			FileURL:  a.FileURL,
			FileName: a.FileName,
			FileType: a.FileType,
			FileSize: a.FileSize,
		})
	}
	for _, l := range req.ResourceLinks {
		msg.ResourceLinks = append(msg.ResourceLinks, models.ResourceLink{
			ResourceType: models.ResourceType(l.ResourceType),
			ResourceID:   l.ResourceID,
			Label:        l.Label,
		})
	}

	if err := h.db.CreateMessage(r.Context(), msg); err != nil {
		h.StoreError(w, err)
		return
	}

	kind := "root"
	if msg.ParentID != "" {
		kind = "reply"
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()

	// Activity leaderboard is best-effort
	if h.redis != nil {
		_ = h.redis.TouchChannelActivity(r.Context(), channelID.String())
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetMessage handles fetching a single message with its attachments,
// reactions and resource links.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	msg, err := h.db.GetMessage(r.Context(), messageID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// EditMessage handles content edits. Only the author may edit; deleted
// messages are immutable.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserFromContext(r.Context())
	messageID := chi.URLParam(r, "id")

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Content) > maxContentBytes {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg, err := h.db.EditMessage(r.Context(), messageID, userID, req.Content)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage soft-deletes a message. The row survives; the content is
// rendered empty. Deleting twice is not an error.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	if err := h.db.DeleteMessage(r.Context(), messageID); err != nil {
		h.StoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
