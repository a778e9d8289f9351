package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within a channel.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// ValidRole reports whether r is one of the known channel roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleMember, RoleGuest:
		return true
	}
	return false
}

// Channel represents a team conversation space.
type Channel struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Topic        string          `json:"topic,omitempty"`
	TeamID       *uuid.UUID      `json:"team_id,omitempty"`
	IsPrivate    bool            `json:"is_private"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ArchivedAt   *time.Time      `json:"archived_at,omitempty"`
	MessageCount int64           `json:"message_count"`
	LastActiveAt time.Time       `json:"last_active_at"`
	Members      []ChannelMember `json:"members,omitempty"`
}

// ChannelMember represents one user's membership in a channel.
// At most one row exists per (channel, user).
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}
