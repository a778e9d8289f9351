package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/ilyrer/immonow-comms/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/comms.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/comms.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		topic TEXT DEFAULT '',
		team_id TEXT,
		is_private INTEGER DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		archived_at DATETIME,
		message_count INTEGER DEFAULT 0,
		last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channel_members (
		channel_id TEXT NOT NULL REFERENCES channels(id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS channel_messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id),
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		parent_id TEXT,
		has_attachments INTEGER DEFAULT 0,
		is_deleted INTEGER DEFAULT 0,
		edited_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS message_attachments (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		file_url TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT DEFAULT '',
		file_size INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS message_reactions (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (message_id, user_id, emoji)
	);

	CREATE TABLE IF NOT EXISTS message_resource_links (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES channel_messages(id),
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		label TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_members_user ON channel_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON channel_messages(channel_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_parent ON channel_messages(parent_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(message_id);
	CREATE INDEX IF NOT EXISTS idx_reactions_message ON message_reactions(message_id);
	CREATE INDEX IF NOT EXISTS idx_links_message ON message_resource_links(message_id);
	CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateChannel creates a channel with its creator as owner plus the given
// members with role member, deduplicated against the owner.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name, topic string, isPrivate bool, teamID *uuid.UUID, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Channel, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	isPrivateInt := 0
	if isPrivate {
		isPrivateInt = 1
	}

	var teamIDStr *string
	if teamID != nil {
		str := teamID.String()
		teamIDStr = &str
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channels (id, name, topic, team_id, is_private, created_by, created_at, updated_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, id, name, topic, teamIDStr, isPrivateInt, createdBy.String(), now, now, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, id, createdBy.String(), string(models.RoleOwner), now)
	if err != nil {
		return nil, err
	}

	for _, memberID := range memberIDs {
		if memberID == createdBy {
			continue
		}
		// INSERT OR IGNORE also dedupes repeats within memberIDs
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO channel_members (channel_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)
		`, id, memberID.String(), string(models.RoleMember), now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetChannel(ctx, uuid.MustParse(id))
}

// scanChannel scans a channel row from the standard column set.
func scanChannel(scan func(dest ...interface{}) error) (*models.Channel, error) {
	ch := &models.Channel{}
	var idStr, createdByStr string
	var teamIDStr *string
	var isPrivateInt int
	var archivedAt sql.NullTime

	err := scan(
		&idStr,
		&ch.Name,
		&ch.Topic,
		&teamIDStr,
		&isPrivateInt,
		&createdByStr,
		&ch.CreatedAt,
		&ch.UpdatedAt,
		&archivedAt,
		&ch.MessageCount,
		&ch.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}

	ch.ID = uuid.MustParse(idStr)
	ch.CreatedBy = uuid.MustParse(createdByStr)
	ch.IsPrivate = isPrivateInt == 1
	if teamIDStr != nil {
		teamID := uuid.MustParse(*teamIDStr)
		ch.TeamID = &teamID
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		ch.ArchivedAt = &t
	}
	return ch, nil
}

const channelColumns = `id, name, topic, team_id, is_private, created_by, created_at, updated_at, archived_at, message_count, last_active_at`

// GetChannel retrieves a channel by ID, including its members.
func (s *SQLiteStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM channels WHERE id = ?
	`, id.String())

	ch, err := scanChannel(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) ListChannels(ctx context.Context, page, size int) ([]models.Channel, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE archived_at IS NULL`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE archived_at IS NULL
		ORDER BY last_active_at DESC, id
		LIMIT ? OFFSET ?
	`, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		channels = append(channels, *ch)
	}

	return channels, total, rows.Err()
}

// UpdateChannel patches name, topic and/or privacy. Nil fields are left
// untouched.
func (s *SQLiteStore) UpdateChannel(ctx context.Context, id uuid.UUID, name, topic *string, isPrivate *bool) (*models.Channel, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if topic != nil {
		sets = append(sets, "topic = ?")
		args = append(args, *topic)
	}
	if isPrivate != nil {
		v := 0
		if *isPrivate {
			v = 1
		}
		sets = append(sets, "is_private = ?")
		args = append(args, v)
	}
	args = append(args, id.String())

	res, err := s.db.ExecContext(ctx, `
		UPDATE channels SET `+strings.Join(sets, ", ")+` WHERE id = ?
	`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.GetChannel(ctx, id)
}

// ArchiveChannel marks a channel as archived. Archiving twice is a no-op.
func (s *SQLiteStore) ArchiveChannel(ctx context.Context, id uuid.UUID) error {
	var archived sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT archived_at FROM channels WHERE id = ?`, id.String()).Scan(&archived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if archived.Valid {
		return nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE channels SET archived_at = ?, updated_at = ? WHERE id = ?
	`, now, now, id.String())
	return err
}

// AddMember adds a user to a channel.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE id = ?`, channelID.String()).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var dup int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String()).Scan(&dup)
	if err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, ErrDuplicateMember
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, channelID.String(), userID.String(), string(role), now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  now,
	}, nil
}

// UpdateMemberRole changes a member's role. Demoting the only remaining
// owner is rejected; the owner count is checked inside the transaction.
func (s *SQLiteStore) UpdateMemberRole(ctx context.Context, channelID, userID uuid.UUID, role models.Role) (*models.ChannelMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current string
	var joinedAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT role, joined_at FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String()).Scan(&current, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if models.Role(current) == models.RoleOwner && role != models.RoleOwner {
		var owners int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND role = ?
		`, channelID.String(), string(models.RoleOwner)).Scan(&owners)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, ErrLastOwner
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE channel_members SET role = ? WHERE channel_id = ? AND user_id = ?
	`, string(role), channelID.String(), userID.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
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
// owner is rejected. Prior messages by the member remain visible.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String()).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if models.Role(current) == models.RoleOwner {
		var owners int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND role = ?
		`, channelID.String(), string(models.RoleOwner)).Scan(&owners)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListMembers retrieves all members of a channel.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members
		WHERE channel_id = ?
		ORDER BY joined_at, user_id
	`, channelID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.ChannelMember
	for rows.Next() {
		var m models.ChannelMember
		var chStr, userStr, roleStr string
		if err := rows.Scan(&chStr, &userStr, &roleStr, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.ChannelID = uuid.MustParse(chStr)
		m.UserID = uuid.MustParse(userStr)
		m.Role = models.Role(roleStr)
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateMessage appends a message to a channel's ledger. Attachments and
// resource links are written in the same transaction, so a failed insert
// leaves nothing behind. The message's ID and timestamps are filled in.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.ChannelMessage) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE id = ?`, msg.ChannelID.String()).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if msg.ParentID != "" {
		var parentChannel string
		err = tx.QueryRowContext(ctx, `
			SELECT channel_id FROM channel_messages WHERE id = ?
		`, msg.ParentID).Scan(&parentChannel)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if parentChannel != msg.ChannelID.String() {
			return ErrThreadCrossChannel
		}
	}

	now := time.Now().UTC()
	msg.ID = ulid.Make().String()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.HasAttachments = len(msg.Attachments) > 0

	hasAttachmentsInt := 0
	if msg.HasAttachments {
		hasAttachmentsInt = 1
	}
	var parentID *string
	if msg.ParentID != "" {
		parentID = &msg.ParentID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_messages (id, channel_id, user_id, content, parent_id, has_attachments, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, msg.ID, msg.ChannelID.String(), msg.UserID.String(), msg.Content, parentID, hasAttachmentsInt, now, now)
	if err != nil {
		return err
	}

	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		a.ID = uuid.New()
		a.CreatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_attachments (id, message_id, file_url, file_name, file_type, file_size, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.ID.String(), msg.ID, a.FileURL, a.FileName, a.FileType, a.FileSize, now)
		if err != nil {
			return err
		}
	}

	for i := range msg.ResourceLinks {
		l := &msg.ResourceLinks[i]
		l.ID = uuid.New()
		l.CreatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_resource_links (id, message_id, resource_type, resource_id, label, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, l.ID.String(), msg.ID, string(l.ResourceType), l.ResourceID, l.Label, now)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE channels
		SET message_count = message_count + 1, last_active_at = ?
		WHERE id = ?
	`, now, msg.ChannelID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// scanMessage scans a message row from the standard column set. Deleted
// messages keep their row but render with empty content.
func scanMessage(scan func(dest ...interface{}) error) (*models.ChannelMessage, error) {
	m := &models.ChannelMessage{}
	var channelStr, userStr string
	var parentID *string
	var hasAttachmentsInt, isDeletedInt int
	var editedAt sql.NullTime

	err := scan(
		&m.ID,
		&channelStr,
		&userStr,
		&m.Content,
		&parentID,
		&hasAttachmentsInt,
		&isDeletedInt,
		&editedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ChannelID = uuid.MustParse(channelStr)
	m.UserID = uuid.MustParse(userStr)
	if parentID != nil {
		m.ParentID = *parentID
	}
	m.HasAttachments = hasAttachmentsInt == 1
	m.IsDeleted = isDeletedInt == 1
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	if m.IsDeleted {
		m.Content = ""
	}
	return m, nil
}

const messageColumns = `id, channel_id, user_id, content, parent_id, has_attachments, is_deleted, edited_at, created_at, updated_at`

// GetMessage retrieves a message by ID with attachments, reactions and
// resource links.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.ChannelMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM channel_messages WHERE id = ?
	`, id)

	m, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
// with ID tiebreak, hydrated with attachments, reactions and links.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID uuid.UUID, page, size int) ([]models.ChannelMessage, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM channel_messages WHERE channel_id = ?
	`, channelID.String()).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM channel_messages
		WHERE channel_id = ?
		ORDER BY created_at, id
		LIMIT ? OFFSET ?
	`, channelID.String(), size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
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

// hydrateMessages loads attachments, reactions and resource links for the
// given messages in three batched queries.
func (s *SQLiteStore) hydrateMessages(ctx context.Context, msgs []models.ChannelMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	index := make(map[string]*models.ChannelMessage, len(msgs))
	placeholders := make([]string, len(msgs))
	args := make([]interface{}, len(msgs))
	for i := range msgs {
		index[msgs[i].ID] = &msgs[i]
		placeholders[i] = "?"
		args[i] = msgs[i].ID
	}
	in := strings.Join(placeholders, ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, id, file_url, file_name, file_type, file_size, created_at
		FROM message_attachments
		WHERE message_id IN (`+in+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID, idStr string
		var a models.Attachment
		if err := rows.Scan(&msgID, &idStr, &a.FileURL, &a.FileName, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		a.ID = uuid.MustParse(idStr)
		if m := index[msgID]; m != nil {
			m.Attachments = append(m.Attachments, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT message_id, id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id IN (`+in+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID, userStr string
		var r models.Reaction
		if err := rows.Scan(&msgID, &r.ID, &userStr, &r.Emoji, &r.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		r.UserID = uuid.MustParse(userStr)
		if m := index[msgID]; m != nil {
			m.Reactions = append(m.Reactions, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT message_id, id, resource_type, resource_id, label, created_at
		FROM message_resource_links
		WHERE message_id IN (`+in+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID, idStr, typeStr string
		var l models.ResourceLink
		if err := rows.Scan(&msgID, &idStr, &typeStr, &l.ResourceID, &l.Label, &l.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		l.ID = uuid.MustParse(idStr)
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
func (s *SQLiteStore) EditMessage(ctx context.Context, id string, userID uuid.UUID, content string) (*models.ChannelMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var authorStr string
	var isDeletedInt int
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, is_deleted FROM channel_messages WHERE id = ?
	`, id).Scan(&authorStr, &isDeletedInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if authorStr != userID.String() {
		return nil, ErrForbidden
	}
	if isDeletedInt == 1 {
		return nil, ErrAlreadyDeleted
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE channel_messages SET content = ?, edited_at = ?, updated_at = ? WHERE id = ?
	`, content, now, now, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetMessage(ctx, id)
}

// DeleteMessage soft-deletes a message. Deleting twice is a no-op, not an
// error.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	var isDeletedInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT is_deleted FROM channel_messages WHERE id = ?
	`, id).Scan(&isDeletedInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if isDeletedInt == 1 {
		return nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE channel_messages SET is_deleted = 1, updated_at = ? WHERE id = ?
	`, now, id)
	return err
}

// messageReactable returns ErrNotFound when the message is absent or
// soft-deleted.
func (s *SQLiteStore) messageReactable(ctx context.Context, messageID string) error {
	var isDeletedInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT is_deleted FROM channel_messages WHERE id = ?
	`, messageID).Scan(&isDeletedInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if isDeletedInt == 1 {
		return ErrNotFound
	}
	return nil
}

// AddReaction records a user's emoji reaction on a message. The unique
// index on (message_id, user_id, emoji) makes concurrent double-reacts
// converge to a single row.
func (s *SQLiteStore) AddReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (*models.Reaction, error) {
	if err := s.messageReactable(ctx, messageID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reactions (id, message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ulid.Make().String(), messageID, userID.String(), emoji, now)
	if err != nil {
		return nil, err
	}

	r := &models.Reaction{UserID: userID, Emoji: emoji}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM message_reactions
		WHERE message_id = ? AND user_id = ? AND emoji = ?
	`, messageID, userID.String(), emoji).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveReaction removes a user's emoji reaction. Removing a reaction that
// does not exist is a no-op.
func (s *SQLiteStore) RemoveReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error {
	if err := s.messageReactable(ctx, messageID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?
	`, messageID, userID.String(), emoji)
	return err
}

// AttachResourceLink ties a message to a CRM entity. Duplicates at the
// message level are allowed; deduplication happens in the pinned view.
func (s *SQLiteStore) AttachResourceLink(ctx context.Context, messageID string, link *models.ResourceLink) error {
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
	link.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_resource_links (id, message_id, resource_type, resource_id, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, link.ID.String(), messageID, string(link.ResourceType), link.ResourceID, link.Label, link.CreatedAt)
	return err
}

// ChannelResourceLinks returns the channel's non-deleted messages that carry
// resource links, in creation order, with only the links populated. The
// pinned view is derived from this in models.PinnedResources.
func (s *SQLiteStore) ChannelResourceLinks(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.created_at, l.id, l.resource_type, l.resource_id, l.label, l.created_at
		FROM channel_messages m
		JOIN message_resource_links l ON l.message_id = m.id
		WHERE m.channel_id = ? AND m.is_deleted = 0
		ORDER BY m.created_at, m.id, l.created_at, l.id
	`, channelID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	var current *models.ChannelMessage
	for rows.Next() {
		var msgID, linkIDStr, typeStr string
		var msgCreated time.Time
		var l models.ResourceLink
		if err := rows.Scan(&msgID, &msgCreated, &linkIDStr, &typeStr, &l.ResourceID, &l.Label, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ID = uuid.MustParse(linkIDStr)
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
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, page, size int) ([]models.ChannelMessage, int, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM channel_messages
		WHERE is_deleted = 0 AND LOWER(content) LIKE ?
	`, pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM channel_messages
		WHERE is_deleted = 0 AND LOWER(content) LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, pattern, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []models.ChannelMessage
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, total, rows.Err()
}

// CountChannels returns the number of non-archived channels.
func (s *SQLiteStore) CountChannels(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE archived_at IS NULL`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all channels.
func (s *SQLiteStore) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM channels`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity timestamp across
// all channels, or nil when there are none. Reads the column directly
// rather than MAX(): sqlite returns aggregate expressions untyped, which
// breaks time scanning.
func (s *SQLiteStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT last_active_at FROM channels ORDER BY last_active_at DESC LIMIT 1
	`).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	v := t.Time
	return &v, nil
}

// GetTopActiveChannels returns the N busiest non-archived channels.
func (s *SQLiteStore) GetTopActiveChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE archived_at IS NULL
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows.Scan)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

var _ ChannelStore = (*SQLiteStore)(nil)
