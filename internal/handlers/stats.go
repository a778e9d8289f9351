package handlers

import (
	"net/http"
)

// ChannelStats represents stats for a single channel.
type ChannelStats struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalChannels  int64          `json:"total_channels"`
	TotalMessages  int64          `json:"total_messages"`
	LastActivity   string         `json:"last_activity"`
	TopChannels    []ChannelStats `json:"top_channels"`
	RecentActivity []string       `json:"recent_activity,omitempty"` // channel IDs from the redis leaderboard
}

// Stats returns workspace statistics for the CRM dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalChannels, err := h.db.CountChannels(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count channels")
		return
	}

	totalMessages, err := h.db.SumMessageCount(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to sum messages")
		return
	}

	lastActivityTime, err := h.db.GetMostRecentActivity(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}
	lastActivity := ""
	if lastActivityTime != nil {
		lastActivity = lastActivityTime.UTC().Format("2006-01-02T15:04:05Z")
	}

	topChannels, err := h.db.GetTopActiveChannels(ctx, 5)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get top channels")
		return
	}

	top := make([]ChannelStats, len(topChannels))
	for i, ch := range topChannels {
		top[i] = ChannelStats{
			ID:           ch.ID.String(),
			Name:         ch.Name,
			MessageCount: ch.MessageCount,
		}
	}

	resp := StatsResponse{
		TotalChannels: totalChannels,
		TotalMessages: totalMessages,
		LastActivity:  lastActivity,
		TopChannels:   top,
	}

	if h.redis != nil {
		// Best-effort: leaderboard absence is not an error
		if recent, err := h.redis.RecentChannelActivity(ctx, 5); err == nil {
			resp.RecentActivity = recent
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
