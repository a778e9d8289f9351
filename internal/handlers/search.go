package handlers

import (
	"net/http"
	"strings"

	"github.com/ilyrer/immonow-comms/internal/metrics"
	"github.com/ilyrer/immonow-comms/internal/models"
)

const maxQueryLength = 100

// SearchMessages handles GET /communications/search?q=. Matching is a
// case-insensitive substring scan over non-deleted messages across all
// channels, newest first. A blank query returns an empty page without
// touching storage, mirroring the client-side guard that skips search
// entirely for blank input.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	page, size := pageParams(r)

	if query == "" {
		h.JSON(w, http.StatusOK, Page{Items: []models.ChannelMessage{}, Total: 0, Page: page, Size: size})
		return
	}
	if len(query) > maxQueryLength {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	metrics.SearchQueries.Inc()

	msgs, total, err := h.db.SearchMessages(r.Context(), query, page, size)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}
	if msgs == nil {
		msgs = []models.ChannelMessage{}
	}

	h.JSON(w, http.StatusOK, Page{Items: msgs, Total: total, Page: page, Size: size})
}
