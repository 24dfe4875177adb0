package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lucasvml/wishbot/internal/jid"
)

// MessageKind classifies an inbound message for the per-participant
// activity counters.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindSticker  MessageKind = "sticker"
	KindDocument MessageKind = "document"
	KindOther    MessageKind = "other"
)

// Store defines the data access layer for bot state. All identifier
// arguments are canonicalized internally before use, so callers may pass any
// alias form; methods accept context.Context for cancellation and timeouts.
// Writes are last-writer-wins: all mutation happens on the bot's single
// event loop, so there are no parallel writers per key.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetGroup retrieves a group by id. Returns nil, nil if not found.
	GetGroup(ctx context.Context, groupID string) (*Group, error)

	// GetAllGroups retrieves every registered group.
	GetAllGroups(ctx context.Context) ([]Group, error)

	// RegisterGroup inserts a group if it is not registered yet. Returns
	// true if a new row was created.
	RegisterGroup(ctx context.Context, group *Group) (bool, error)

	// UpdateGroupMeta overwrites the protocol-sourced metadata fields of a
	// registered group (name, description, owner, restriction, expiration).
	UpdateGroupMeta(ctx context.Context, group *Group) error

	// DeleteGroup removes a group and all its participant rows.
	DeleteGroup(ctx context.Context, groupID string) error

	// SetGroupName, SetGroupDescription, SetGroupRestricted and
	// SetGroupExpiration apply partial metadata updates.
	SetGroupName(ctx context.Context, groupID, name string) error
	SetGroupDescription(ctx context.Context, groupID, description string) error
	SetGroupRestricted(ctx context.Context, groupID string, restricted bool) error
	SetGroupExpiration(ctx context.Context, groupID string, expiration uint32) error

	// SetGroupMuted and SetGroupAutoSticker toggle per-group flags.
	SetGroupMuted(ctx context.Context, groupID string, muted bool) error
	SetGroupAutoSticker(ctx context.Context, groupID string, enabled bool) error

	// IncrementGroupCommands bumps the per-group executed command counter.
	IncrementGroupCommands(ctx context.Context, groupID string) error

	// UpdateGroupSettings applies mutate to the group's settings document
	// and persists the result. Covers every set-membership operation
	// (blacklist, anti-fake exceptions, word filter, blocked commands,
	// auto-reply rules).
	UpdateGroupSettings(ctx context.Context, groupID string, mutate func(*GroupSettings)) error

	// GetUser retrieves a user by id. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID string) (*User, error)

	// RegisterUser inserts a user on first contact. A no-op when the user
	// already exists or the id does not canonicalize to a user JID.
	RegisterUser(ctx context.Context, userID, name string) error

	// GetBotAdmins returns every user flagged as bot admin.
	GetBotAdmins(ctx context.Context) ([]User, error)

	SetUserName(ctx context.Context, userID, name string) error
	SetUserAdmin(ctx context.Context, userID string, admin bool) error
	SetUserOwner(ctx context.Context, userID string) error
	SetUserReceivedWelcome(ctx context.Context, userID string, received bool) error
	IncrementUserCommands(ctx context.Context, userID string) error

	// UpdateUserRate overwrites the user's command-rate window state.
	UpdateUserRate(ctx context.Context, userID string, limited bool, limitExpires, count, windowExpires int64) error

	// GetParticipant retrieves one membership row. Returns nil, nil if the
	// user is not a participant of the group.
	GetParticipant(ctx context.Context, groupID, userID string) (*Participant, error)

	// GetParticipants retrieves all membership rows of a group.
	GetParticipants(ctx context.Context, groupID string) ([]Participant, error)

	IsParticipant(ctx context.Context, groupID, userID string) (bool, error)
	IsParticipantAdmin(ctx context.Context, groupID, userID string) (bool, error)

	// AddParticipant inserts a membership row if absent. Returns true if a
	// new row was created (duplicate add events are no-ops).
	AddParticipant(ctx context.Context, groupID, userID string, admin bool) (bool, error)

	RemoveParticipant(ctx context.Context, groupID, userID string) error
	SetParticipantAdmin(ctx context.Context, groupID, userID string, admin bool) error

	// IncrementParticipantActivity bumps the message counters for one
	// inbound message of the given kind.
	IncrementParticipantActivity(ctx context.Context, groupID, userID string, kind MessageKind, isCommand bool) error

	AddParticipantWarning(ctx context.Context, groupID, userID string) error
	SetParticipantWarnings(ctx context.Context, groupID, userID string, warnings int64) error

	// UpdateParticipantFlood overwrites the participant's anti-flood window.
	UpdateParticipantFlood(ctx context.Context, groupID, userID string, count, windowExpires int64) error

	// WasNewsSent and MarkNewsSent track already-posted news items for the
	// scheduled news task.
	WasNewsSent(ctx context.Context, guid string) (bool, error)
	MarkNewsSent(ctx context.Context, guid string) error

	// RunMaintenance compacts and re-analyzes the database. Called from the
	// scheduled maintenance task; VACUUM must run outside a transaction.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store backed by sqlx over SQLite.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx. It requires a
// connected sqlx.DB and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// groupRow is the scan target for the groups table; Settings travels as a
// JSON string.
type groupRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Description      string    `db:"description"`
	OwnerID          string    `db:"owner_id"`
	Restricted       bool      `db:"restricted"`
	Expiration       uint32    `db:"expiration"`
	Muted            bool      `db:"muted"`
	AutoSticker      bool      `db:"autosticker"`
	CommandsExecuted int64     `db:"commands_executed"`
	Settings         string    `db:"settings"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// healSettings unmarshals a stored settings document over the current
// defaults. Fields missing from the stored document keep their default
// value; fields present win. The bool result reports whether the healed
// form differs from what was stored.
func healSettings(stored string) (GroupSettings, bool) {
	settings := DefaultGroupSettings()
	if stored != "" {
		// A corrupt document degrades to pure defaults rather than failing
		// the read.
		_ = json.Unmarshal([]byte(stored), &settings)
	}
	healed, err := json.Marshal(settings)
	if err != nil {
		return settings, false
	}
	return settings, string(healed) != stored
}

func marshalSettings(settings GroupSettings) (string, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal group settings: %w", err)
	}
	return string(raw), nil
}

func (row *groupRow) toGroup(settings GroupSettings) *Group {
	return &Group{
		ID:               row.ID,
		Name:             row.Name,
		Description:      row.Description,
		OwnerID:          row.OwnerID,
		Restricted:       row.Restricted,
		Expiration:       row.Expiration,
		Muted:            row.Muted,
		AutoSticker:      row.AutoSticker,
		CommandsExecuted: row.CommandsExecuted,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		Settings:         settings,
	}
}

func (s *sqlxStore) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	groupID = jid.Group(groupID)

	var row groupRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM groups WHERE id = ?`, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	settings, healed := healSettings(row.Settings)
	if healed {
		// Self-healing read: persist the defaults-merged document so the
		// stored row catches up with the current schema.
		raw, err := marshalSettings(settings)
		if err == nil {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE groups SET settings = ?, updated_at = ? WHERE id = ?`,
				raw, time.Now().UTC(), groupID); err != nil {
				s.logger.WarnContext(ctx, "Failed to persist healed group settings",
					"group_id", groupID, "error", err)
			}
		}
	}

	return row.toGroup(settings), nil
}

func (s *sqlxStore) GetAllGroups(ctx context.Context) ([]Group, error) {
	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM groups ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]Group, 0, len(rows))
	for i := range rows {
		settings, _ := healSettings(rows[i].Settings)
		groups = append(groups, *rows[i].toGroup(settings))
	}
	return groups, nil
}

func (s *sqlxStore) RegisterGroup(ctx context.Context, group *Group) (bool, error) {
	if group == nil || group.ID == "" {
		return false, errors.New("cannot register group without id")
	}
	group.ID = jid.Group(group.ID)
	group.OwnerID = jid.User(group.OwnerID)

	existing, err := s.GetGroup(ctx, group.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	if group.Settings.BlockedCommands == nil {
		group.Settings = DefaultGroupSettings()
	}
	raw, err := marshalSettings(group.Settings)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO groups (id, name, description, owner_id, restricted, expiration,
                            muted, autosticker, commands_executed, settings, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, group.OwnerID, group.Restricted,
		group.Expiration, group.Muted, group.AutoSticker, group.CommandsExecuted,
		raw, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to register group %s: %w", group.ID, err)
	}

	s.logger.DebugContext(ctx, "Group registered", "group_id", group.ID, "name", group.Name)
	return true, nil
}

func (s *sqlxStore) UpdateGroupMeta(ctx context.Context, group *Group) error {
	if group == nil || group.ID == "" {
		return errors.New("cannot update group without id")
	}
	groupID := jid.Group(group.ID)
	ownerID := jid.User(group.OwnerID)

	_, err := s.db.ExecContext(ctx, `
        UPDATE groups
        SET name = ?, description = ?, owner_id = ?, restricted = ?, expiration = ?, updated_at = ?
        WHERE id = ?`,
		group.Name, group.Description, ownerID, group.Restricted, group.Expiration,
		time.Now().UTC(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update group meta %s: %w", groupID, err)
	}
	return nil
}

func (s *sqlxStore) DeleteGroup(ctx context.Context, groupID string) error {
	groupID = jid.Group(groupID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to delete participants of group %s: %w", groupID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group deletion: %w", err)
	}

	s.logger.DebugContext(ctx, "Group deleted", "group_id", groupID)
	return nil
}

func (s *sqlxStore) setGroupColumn(ctx context.Context, groupID, column string, value any) error {
	groupID = jid.Group(groupID)
	query := fmt.Sprintf(`UPDATE groups SET %s = ?, updated_at = ? WHERE id = ?`, column)
	if _, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), groupID); err != nil {
		return fmt.Errorf("failed to set group %s %s: %w", groupID, column, err)
	}
	return nil
}

func (s *sqlxStore) SetGroupName(ctx context.Context, groupID, name string) error {
	return s.setGroupColumn(ctx, groupID, "name", name)
}

func (s *sqlxStore) SetGroupDescription(ctx context.Context, groupID, description string) error {
	return s.setGroupColumn(ctx, groupID, "description", description)
}

func (s *sqlxStore) SetGroupRestricted(ctx context.Context, groupID string, restricted bool) error {
	return s.setGroupColumn(ctx, groupID, "restricted", restricted)
}

func (s *sqlxStore) SetGroupExpiration(ctx context.Context, groupID string, expiration uint32) error {
	return s.setGroupColumn(ctx, groupID, "expiration", expiration)
}

func (s *sqlxStore) SetGroupMuted(ctx context.Context, groupID string, muted bool) error {
	return s.setGroupColumn(ctx, groupID, "muted", muted)
}

func (s *sqlxStore) SetGroupAutoSticker(ctx context.Context, groupID string, enabled bool) error {
	return s.setGroupColumn(ctx, groupID, "autosticker", enabled)
}

func (s *sqlxStore) IncrementGroupCommands(ctx context.Context, groupID string) error {
	groupID = jid.Group(groupID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET commands_executed = commands_executed + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), groupID)
	if err != nil {
		return fmt.Errorf("failed to increment group commands %s: %w", groupID, err)
	}
	return nil
}

func (s *sqlxStore) UpdateGroupSettings(ctx context.Context, groupID string, mutate func(*GroupSettings)) error {
	groupID = jid.Group(groupID)

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("group %s is not registered", groupID)
	}

	mutate(&group.Settings)

	raw, err := marshalSettings(group.Settings)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE groups SET settings = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().UTC(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update group settings %s: %w", groupID, err)
	}
	return nil
}

func (s *sqlxStore) GetUser(ctx context.Context, userID string) (*User, error) {
	userID = jid.User(userID)

	var user User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *sqlxStore) RegisterUser(ctx context.Context, userID, name string) error {
	userID = jid.User(userID)
	if userID == "" || jid.IsGroup(userID) {
		return nil
	}

	existing, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO users (id, name, created_at, updated_at, rate_count, rate_window_expires)
        VALUES (?, ?, ?, ?, 0, 0)`,
		userID, name, now, now)
	if err != nil {
		return fmt.Errorf("failed to register user %s: %w", userID, err)
	}

	s.logger.DebugContext(ctx, "User registered", "user_id", userID)
	return nil
}

func (s *sqlxStore) GetBotAdmins(ctx context.Context) ([]User, error) {
	var admins []User
	if err := s.db.SelectContext(ctx, &admins, `SELECT * FROM users WHERE admin = 1`); err != nil {
		return nil, fmt.Errorf("failed to list bot admins: %w", err)
	}
	return admins, nil
}

func (s *sqlxStore) setUserColumn(ctx context.Context, userID, column string, value any) error {
	userID = jid.User(userID)
	query := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = ? WHERE id = ?`, column)
	if _, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("failed to set user %s %s: %w", userID, column, err)
	}
	return nil
}

func (s *sqlxStore) SetUserName(ctx context.Context, userID, name string) error {
	return s.setUserColumn(ctx, userID, "name", name)
}

func (s *sqlxStore) SetUserAdmin(ctx context.Context, userID string, admin bool) error {
	return s.setUserColumn(ctx, userID, "admin", admin)
}

func (s *sqlxStore) SetUserOwner(ctx context.Context, userID string) error {
	userID = jid.User(userID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET owner = 1, admin = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set user %s owner: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) SetUserReceivedWelcome(ctx context.Context, userID string, received bool) error {
	return s.setUserColumn(ctx, userID, "received_welcome", received)
}

func (s *sqlxStore) IncrementUserCommands(ctx context.Context, userID string) error {
	userID = jid.User(userID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET commands = commands + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to increment user commands %s: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) UpdateUserRate(ctx context.Context, userID string, limited bool, limitExpires, count, windowExpires int64) error {
	userID = jid.User(userID)
	_, err := s.db.ExecContext(ctx, `
        UPDATE users
        SET rate_limited = ?, rate_limit_expires = ?, rate_count = ?, rate_window_expires = ?, updated_at = ?
        WHERE id = ?`,
		limited, limitExpires, count, windowExpires, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user rate %s: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) GetParticipant(ctx context.Context, groupID, userID string) (*Participant, error) {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	var p Participant
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM participants WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant (%s, %s): %w", groupID, userID, err)
	}
	return &p, nil
}

func (s *sqlxStore) GetParticipants(ctx context.Context, groupID string) ([]Participant, error) {
	groupID = jid.Group(groupID)

	var participants []Participant
	err := s.db.SelectContext(ctx, &participants,
		`SELECT * FROM participants WHERE group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of %s: %w", groupID, err)
	}
	return participants, nil
}

func (s *sqlxStore) IsParticipant(ctx context.Context, groupID, userID string) (bool, error) {
	p, err := s.GetParticipant(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *sqlxStore) IsParticipantAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	p, err := s.GetParticipant(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return p != nil && p.Admin, nil
}

func (s *sqlxStore) AddParticipant(ctx context.Context, groupID, userID string, admin bool) (bool, error) {
	groupID, userID = jid.Group(groupID), jid.User(userID)
	if groupID == "" || userID == "" {
		return false, errors.New("cannot add participant without group and user ids")
	}

	exists, err := s.IsParticipant(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO participants (group_id, user_id, admin, registered_since)
        VALUES (?, ?, ?, ?)`,
		groupID, userID, admin, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add participant (%s, %s): %w", groupID, userID, err)
	}

	s.logger.DebugContext(ctx, "Participant added", "group_id", groupID, "user_id", userID, "admin", admin)
	return true, nil
}

func (s *sqlxStore) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

func (s *sqlxStore) SetParticipantAdmin(ctx context.Context, groupID, userID string, admin bool) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET admin = ? WHERE group_id = ? AND user_id = ?`,
		admin, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to set participant admin (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

var kindColumns = map[MessageKind]string{
	KindText:     "text_msgs",
	KindImage:    "image_msgs",
	KindAudio:    "audio_msgs",
	KindVideo:    "video_msgs",
	KindSticker:  "sticker_msgs",
	KindDocument: "document_msgs",
	KindOther:    "other_msgs",
}

func (s *sqlxStore) IncrementParticipantActivity(ctx context.Context, groupID, userID string, kind MessageKind, isCommand bool) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	column, ok := kindColumns[kind]
	if !ok {
		column = "other_msgs"
	}

	commandDelta := 0
	if isCommand {
		commandDelta = 1
	}

	query := fmt.Sprintf(`
        UPDATE participants
        SET msgs = msgs + 1, %s = %s + 1, commands = commands + ?
        WHERE group_id = ? AND user_id = ?`, column, column)
	if _, err := s.db.ExecContext(ctx, query, commandDelta, groupID, userID); err != nil {
		return fmt.Errorf("failed to increment activity (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

func (s *sqlxStore) AddParticipantWarning(ctx context.Context, groupID, userID string) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET warnings = warnings + 1 WHERE group_id = ? AND user_id = ?`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to add warning (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

func (s *sqlxStore) SetParticipantWarnings(ctx context.Context, groupID, userID string, warnings int64) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)
	if warnings < 0 {
		warnings = 0
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET warnings = ? WHERE group_id = ? AND user_id = ?`,
		warnings, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to set warnings (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

func (s *sqlxStore) UpdateParticipantFlood(ctx context.Context, groupID, userID string, count, windowExpires int64) error {
	groupID, userID = jid.Group(groupID), jid.User(userID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET flood_count = ?, flood_window_expires = ? WHERE group_id = ? AND user_id = ?`,
		count, windowExpires, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to update flood window (%s, %s): %w", groupID, userID, err)
	}
	return nil
}

func (s *sqlxStore) WasNewsSent(ctx context.Context, guid string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM news_sent WHERE guid = ?`, guid); err != nil {
		return false, fmt.Errorf("failed to check sent news %s: %w", guid, err)
	}
	return count > 0, nil
}

func (s *sqlxStore) MarkNewsSent(ctx context.Context, guid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO news_sent (guid, sent_at) VALUES (?, ?)`, guid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark news sent %s: %w", guid, err)
	}
	return nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
