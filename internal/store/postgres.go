package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/ilyrer/immonow-comms/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL DEFAULT '',
		team_id UUID,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		archived_at TIMESTAMPTZ,
		message_count BIGINT NOT NULL DEFAULT 0,
		last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS channel_members (
		channel_id UUID NOT NULL REFERENCES channels(id),
		user_id UUID NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS channel_messages (
		id TEXT PRIMARY KEY,
		channel_id UUID NOT NULL REFERENCES channels(id),
		user_id UUID NOT NULL,
		content TEXT NOT NULL,
		parent_id TEXT,
		has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS message_attachments (
		id UUID PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		file_url TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS message_reactions (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		user_id UUID NOT NULL,
		emoji TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (message_id, user_id, emoji)
	);

	CREATE TABLE IF NOT EXISTS message_resource_links (
		id UUID PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_members_user ON channel_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON channel_messages(channel_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_parent ON channel_messages(parent_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(message_id);
	CREATE INDEX IF NOT EXISTS idx_reactions_message ON message_reactions(message_id);
	CREATE INDEX IF NOT EXISTS idx_links_message ON message_resource_links(message_id);
	CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const pgChannelColumns = `id, name, topic, team_id, is_private, created_by, created_at, updated_at, archived_at, message_count, last_active_at`

func scanPgChannel(row pgx.Row) (*models.Channel, error) {
	ch := &models.Channel{}
	err := row.Scan(
		&ch.ID,
		&ch.Name,
		&ch.Topic,
		&ch.TeamID,
		&ch.IsPrivate,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.UpdatedAt,
		&ch.ArchivedAt,
		&ch.MessageCount,
		&ch.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// CreateChannel creates a channel with its creator as owner plus the given
// members with role member, deduplicated against the owner.
func (s *PostgresStore) CreateChannel(ctx context.Context, name, topic string, isPrivate bool, teamID *uuid.UUID, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Channel, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO channels (name, topic, team_id, is_private, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, name, topic, teamID, isPrivate, createdBy).Scan(&id)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, $3)
	`, id, createdBy, string(models.RoleOwner))
	if err != nil {
		return nil, err
	}

	for _, memberID := range memberIDs {
		if memberID == createdBy {
			continue
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO channel_members (channel_id, user_id, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, user_id) DO NOTHING
		`, id, memberID, string(models.RoleMember))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.GetChannel(ctx, id)
}

// GetChannel retrieves a channel by ID, including its members.
func (s *PostgresStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	ch, err := scanPgChannel(s.pool.QueryRow(ctx, `
		SELECT `+pgChannelColumns+` FROM channels WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	members, err := s.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.Members = members
	return ch, nil
}

// ListChannels retrieves non-archived channels with pagination, most
// recently active first.
func (s *PostgresStore) ListChannels(ctx context.Context, page, size int) ([]models.Channel, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels WHERE archived_at IS NULL`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgChannelColumns+`
		FROM channels
		WHERE archived_at IS NULL
		ORDER BY last_active_at DESC, id
		LIMIT $1 OFFSET $2
	`, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanPgChannel(rows)
		if err != nil {
			return nil, 0, err
		}
		channels = append(channels, *ch)
	}
	return channels, total, rows.Err()
}

// UpdateChannel patches name, topic and/or privacy. Nil fields are left
// untouched.
func (s *PostgresStore) UpdateChannel(ctx context.Context, id uuid.UUID, name, topic *string, isPrivate *bool) (*models.Channel, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channels
		SET name = COALESCE($2, name),
		    topic = COALESCE($3, topic),
		    is_private = COALESCE($4, is_private),
		    updated_at = NOW()
		WHERE id = $1
	`, id, name, topic, isPrivate)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetChannel(ctx, id)
}

// ArchiveChannel marks a channel as archived. Archiving twice is a no-op.
func (s *PostgresStore) ArchiveChannel(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE channels SET archived_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id)
	return err
}

// AddMember adds a user to a channel.
func (s *PostgresStore) AddMember(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, channelID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	m := &models.ChannelMember{ChannelID: channelID, UserID: userID, Role: role}
	err = tx.QueryRow(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, user_id) DO NOTHING
		RETURNING joined_at
	`, channelID, userID, string(role)).Scan(&m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateMember
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMemberRole changes a member's role. Demoting the only remaining
// owner is rejected; the owner count is checked inside the transaction.
func (s *PostgresStore) UpdateMemberRole(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the channel row, not just the member row: the owner count
	// below must hold until commit, and two demotions locking different
	// member rows would otherwise both pass it.
	var one int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM channels WHERE id = $1 FOR UPDATE
	`, channelID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var current string
	var joinedAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT role, joined_at FROM channel_members
		WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID).Scan(&current, &joinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if models.Role(current) == models.RoleOwner && role != models.RoleOwner {
		var owners int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM channel_members WHERE channel_id = $1 AND role = $2
		`, channelID, string(models.RoleOwner)).Scan(&owners)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, ErrLastOwner
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE channel_members SET role = $3 WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID, string(role))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  joinedAt,
	}, nil
}

// RemoveMember removes a user from a channel. Removing the only remaining
// owner is rejected.
func (s *PostgresStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Same locking discipline as UpdateMemberRole: concurrent removals of
	// the two remaining owners must serialize on the channel row so the
	// second one sees the first one's delete.
	var one int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM channels WHERE id = $1 FOR UPDATE
	`, channelID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT role FROM channel_members
		WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if models.Role(current) == models.RoleOwner {
		var owners int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM channel_members WHERE channel_id = $1 AND role = $2
		`, channelID, string(models.RoleOwner)).Scan(&owners)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListMembers retrieves all members of a channel.
func (s *PostgresStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at, user_id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.ChannelMember
	for rows.Next() {
		var m models.ChannelMember
		var roleStr string
		if err := rows.Scan(&m.ChannelID, &m.UserID, &roleStr, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(roleStr)
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateMessage appends a message with its attachments and resource links
// in a single transaction.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.ChannelMessage) error {
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyContent
	}
	for i := range msg.ResourceLinks {
		if !models.ValidResourceType(msg.ResourceLinks[i].ResourceType) {
			return ErrInvalidResourceType
		}
		if strings.TrimSpace(msg.ResourceLinks[i].ResourceID) == "" {
			return ErrEmptyResourceID
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, msg.ChannelID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if msg.ParentID != "" {
		var parentChannel uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT channel_id FROM channel_messages WHERE id = $1
		`, msg.ParentID).Scan(&parentChannel)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if parentChannel != msg.ChannelID {
			return ErrThreadCrossChannel
		}
	}

	now := time.Now().UTC()
	msg.ID = ulid.Make().String()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.HasAttachments = len(msg.Attachments) > 0

	var parentID *string
	if msg.ParentID != "" {
		parentID = &msg.ParentID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO channel_messages (id, channel_id, user_id, content, parent_id, has_attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, msg.ID, msg.ChannelID, msg.UserID, msg.Content, parentID, msg.HasAttachments, now)
	if err != nil {
		return err
	}

	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		a.ID = uuid.New()
		a.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO message_attachments (id, message_id, file_url, file_name, file_type, file_size, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, msg.ID, a.FileURL, a.FileName, a.FileType, a.FileSize, now)
		if err != nil {
			return err
		}
	}

	for i := range msg.ResourceLinks {
		l := &msg.ResourceLinks[i]
		l.ID = uuid.New()
		l.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO message_resource_links (id, message_id, resource_type, resource_id, label, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.ID, msg.ID, string(l.ResourceType), l.ResourceID, l.Label, now)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE channels
		SET message_count = message_count + 1, last_active_at = $2
		WHERE id = $1
	`, msg.ChannelID, now)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const pgMessageColumns = `id, channel_id, user_id, content, parent_id, has_attachments, is_deleted, edited_at, created_at, updated_at`

func scanPgMessage(row pgx.Row) (*models.ChannelMessage, error) {
	m := &models.ChannelMessage{}
	var parentID *string
	err := row.Scan(
		&m.ID,
		&m.ChannelID,
		&m.UserID,
		&m.Content,
		&parentID,
		&m.HasAttachments,
		&m.IsDeleted,
		&m.EditedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		m.ParentID = *parentID
	}
	if m.IsDeleted {
		m.Content = ""
	}
	return m, nil
}

// GetMessage retrieves a message by ID with attachments, reactions and
// resource links.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.ChannelMessage, error) {
	m, err := scanPgMessage(s.pool.QueryRow(ctx, `
		SELECT `+pgMessageColumns+` FROM channel_messages WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	msgs := []models.ChannelMessage{*m}
	if err := s.hydrateMessages(ctx, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

// ListMessages retrieves a page of a channel's messages in creation order
// with ID tiebreak.
func (s *PostgresStore) ListMessages(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.ChannelMessage, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM channel_messages WHERE channel_id = $1
	`, channelID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM channel_messages
		WHERE channel_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, channelID, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.hydrateMessages(ctx, msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (s *PostgresStore) hydrateMessages(ctx context.Context, msgs []models.ChannelMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	index := make(map[string]*models.ChannelMessage, len(msgs))
	ids := make([]string, len(msgs))
	for i := range msgs {
		index[msgs[i].ID] = &msgs[i]
		ids[i] = msgs[i].ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, id, file_url, file_name, file_type, file_size, created_at
		FROM message_attachments
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID string
		var a models.Attachment
		if err := rows.Scan(&msgID, &a.ID, &a.FileURL, &a.FileName, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		if m := index[msgID]; m != nil {
			m.Attachments = append(m.Attachments, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT message_id, id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID string
		var r models.Reaction
		if err := rows.Scan(&msgID, &r.ID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		if m := index[msgID]; m != nil {
			m.Reactions = append(m.Reactions, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT message_id, id, resource_type, resource_id, label, created_at
		FROM message_resource_links
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID, typeStr string
		var l models.ResourceLink
		if err := rows.Scan(&msgID, &l.ID, &typeStr, &l.ResourceID, &l.Label, &l.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		l.ResourceType = models.ResourceType(typeStr)
		if m := index[msgID]; m != nil {
			m.ResourceLinks = append(m.ResourceLinks, l)
		}
	}
	rows.Close()
	return rows.Err()
}

// EditMessage updates a message's content. Only the author may edit, and
// deleted messages are immutable.
func (s *PostgresStore) EditMessage(ctx context.Context, id string, userID uuid.UUID, content string) (*models.ChannelMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var author uuid.UUID
	var isDeleted bool
	err = tx.QueryRow(ctx, `
		SELECT user_id, is_deleted FROM channel_messages WHERE id = $1 FOR UPDATE
	`, id).Scan(&author, &isDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if author != userID {
		return nil, ErrForbidden
	}
	if isDeleted {
		return nil, ErrAlreadyDeleted
	}

	_, err = tx.Exec(ctx, `
		UPDATE channel_messages SET content = $2, edited_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id, content)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetMessage(ctx, id)
}

// DeleteMessage soft-deletes a message. Deleting twice is a no-op.
func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channel_messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE channel_messages SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`, id)
	return err
}

func (s *PostgresStore) messageReactable(ctx context.Context, messageID string) error {
	var isDeleted bool
	err := s.pool.QueryRow(ctx, `
		SELECT is_deleted FROM channel_messages WHERE id = $1
	`, messageID).Scan(&isDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if isDeleted {
		return ErrNotFound
	}
	return nil
}

// AddReaction records a user's emoji reaction on a message. ON CONFLICT DO
// NOTHING makes concurrent double-reacts converge to a single row.
func (s *PostgresStore) AddReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (*models.Reaction, error) {
	if err := s.messageReactable(ctx, messageID); err != nil {
		return nil, err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_reactions (id, message_id, user_id, emoji)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, ulid.Make().String(), messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	r := &models.Reaction{UserID: userID, Emoji: emoji}
	err = s.pool.QueryRow(ctx, `
		SELECT id, created_at FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, messageID, userID, emoji).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveReaction removes a user's emoji reaction; removing a missing
// reaction is a no-op.
func (s *PostgresStore) RemoveReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error {
	if err := s.messageReactable(ctx, messageID); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, messageID, userID, emoji)
	return err
}

// AttachResourceLink ties a message to a CRM entity.
func (s *PostgresStore) AttachResourceLink(ctx context.Context, messageID string, link *models.ResourceLink) error {
	if !models.ValidResourceType(link.ResourceType) {
		return ErrInvalidResourceType
	}
	if strings.TrimSpace(link.ResourceID) == "" {
		return ErrEmptyResourceID
	}
	if err := s.messageReactable(ctx, messageID); err != nil {
		return err
	}

	link.ID = uuid.New()
	return s.pool.QueryRow(ctx, `
		INSERT INTO message_resource_links (id, message_id, resource_type, resource_id, label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, link.ID, messageID, string(link.ResourceType), link.ResourceID, link.Label).Scan(&link.CreatedAt)
}

// ChannelResourceLinks returns the channel's non-deleted messages that
// carry resource links, in creation order, with only the links populated.
func (s *PostgresStore) ChannelResourceLinks(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.created_at, l.id, l.resource_type, l.resource_id, l.label, l.created_at
		FROM channel_messages m
		JOIN message_resource_links l ON l.message_id = m.id
		WHERE m.channel_id = $1 AND m.is_deleted = FALSE
		ORDER BY m.created_at, m.id, l.created_at, l.id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	var current *models.ChannelMessage
	for rows.Next() {
		var msgID, typeStr string
		var msgCreated time.Time
		var l models.ResourceLink
		if err := rows.Scan(&msgID, &msgCreated, &l.ID, &typeStr, &l.ResourceID, &l.Label, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ResourceType = models.ResourceType(typeStr)

		if current == nil || current.ID != msgID {
			msgs = append(msgs, models.ChannelMessage{ID: msgID, ChannelID: channelID, CreatedAt: msgCreated})
			current = &msgs[len(msgs)-1]
		}
		current.ResourceLinks = append(current.ResourceLinks, l)
	}
	return msgs, rows.Err()
}

// SearchMessages finds non-deleted messages whose content contains the
// query, case-insensitively, newest first.
func (s *PostgresStore) SearchMessages(ctx context.Context, query string, page, size int) ([]models.ChannelMessage, int, error) {
	pattern := "%" + query + "%"

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM channel_messages
		WHERE is_deleted = FALSE AND content ILIKE $1
	`, pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM channel_messages
		WHERE is_deleted = FALSE AND content ILIKE $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pattern, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, total, rows.Err()
}

// CountChannels returns the number of non-archived channels.
func (s *PostgresStore) CountChannels(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels WHERE archived_at IS NULL`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all channels.
func (s *PostgresStore) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM channels`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity timestamp across
// all channels.
func (s *PostgresStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_active_at) FROM channels`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTopActiveChannels returns the N busiest non-archived channels.
func (s *PostgresStore) GetTopActiveChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgChannelColumns+`
		FROM channels
		WHERE archived_at IS NULL
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanPgChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

var _ ChannelStore = (*PostgresStore)(nil)
