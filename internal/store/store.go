package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ilyrer/immonow-comms/internal/models"
)

// ChannelStore defines the interface for persistent storage of channels,
// memberships, messages, reactions and resource links.
// Both PostgresStore and SQLiteStore implement this interface.
type ChannelStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Channel operations
	CreateChannel(ctx context.Context, name, topic string, isPrivate bool, teamID *uuid.UUID, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Channel, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	ListChannels(ctx context.Context, page, size int) ([]models.Channel, int, error)
	UpdateChannel(ctx context.Context, id uuid.UUID, name, topic *string, isPrivate *bool) (*models.Channel, error)
	ArchiveChannel(ctx context.Context, id uuid.UUID) error

	// Membership operations
	AddMember(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error)
	UpdateMemberRole(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error)
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.ChannelMessage) error
	GetMessage(ctx context.Context, id string) (*models.ChannelMessage, error)
	ListMessages(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.ChannelMessage, int, error)
	EditMessage(ctx context.Context, id string, userID uuid.UUID, content string) (*models.ChannelMessage, error)
	DeleteMessage(ctx context.Context, id string) error

	// Reaction operations
	AddReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (*models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error

	// Resource link operations
	AttachResourceLink(ctx context.Context, messageID string, link *models.ResourceLink) error
	ChannelResourceLinks(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMessage, error)

	// Search
	SearchMessages(ctx context.Context, query string, page, size int) ([]models.ChannelMessage, int, error)

	// Stats
	CountChannels(ctx context.Context) (int64, error)
	SumMessageCount(ctx context.Context) (int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
	GetTopActiveChannels(ctx context.Context, limit int) ([]models.Channel, error)
}
