package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType identifies the kind of CRM entity a message links to.
type ResourceType string

const (
	ResourceContact  ResourceType = "contact"
	ResourceProperty ResourceType = "property"
	ResourceTask     ResourceType = "task"
)

// ValidResourceType reports whether t is one of the linkable CRM entity kinds.
func ValidResourceType(t ResourceType) bool {
	switch t {
	case ResourceContact, ResourceProperty, ResourceTask:
		return true
	}
	return false
}

// ChannelMessage represents a message posted to a channel.
// IDs are ULIDs, so lexicographic order matches creation order.
type ChannelMessage struct {
	ID             string         `json:"id"`
	ChannelID      uuid.UUID      `json:"channel_id"`
	UserID         uuid.UUID      `json:"user_id"`
	Content        string         `json:"content"`
	ParentID       string         `json:"parent_id,omitempty"` // empty for root messages
	HasAttachments bool           `json:"has_attachments"`
	IsDeleted      bool           `json:"is_deleted"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	ResourceLinks  []ResourceLink `json:"resource_links,omitempty"`
}

// Attachment is a file attached to a message. It has no lifecycle of its
// own: it is created in the same transaction as its message.
type Attachment struct {
	ID        uuid.UUID `json:"id"`
	FileURL   string    `json:"file_url"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction is one user's emoji reaction on a message.
// At most one row exists per (message, user, emoji).
type Reaction struct {
	ID        string    `json:"id"`
	Emoji     string    `json:"emoji"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceLink ties a message to a CRM entity (contact, property or task).
type ResourceLink struct {
	ID           uuid.UUID    `json:"id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Label        string       `json:"label,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
