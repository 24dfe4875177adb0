package database

import (
	"time"
)

// Group represents a WhatsApp group the bot is currently a member of. A row
// exists iff the bot is in the group; the startup reconciler enforces the
// invariant. Set-typed moderation fields live in Settings, serialized as one
// JSON document in the settings column.
type Group struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Description      string    `db:"description"`
	OwnerID          string    `db:"owner_id"`
	Restricted       bool      `db:"restricted"`
	Expiration       uint32    `db:"expiration"`
	Muted            bool      `db:"muted"`
	AutoSticker      bool      `db:"autosticker"`
	CommandsExecuted int64     `db:"commands_executed"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`

	Settings GroupSettings `db:"-"`
}

// GroupSettings holds the per-group moderation configuration. Reads
// deep-merge stored values over current defaults so rows written by older
// schema versions heal transparently.
type GroupSettings struct {
	Welcome         WelcomeSettings   `json:"welcome"`
	AntiFake        AntiFakeSettings  `json:"antifake"`
	AntiLink        AntiLinkSettings  `json:"antilink"`
	AntiFlood       AntiFloodSettings `json:"antiflood"`
	AutoReply       AutoReplySettings `json:"auto_reply"`
	BlockedCommands []string          `json:"block_cmds"`
	Blacklist       []string          `json:"blacklist"`
	WordFilter      []string          `json:"word_filter"`
}

// WelcomeSettings controls the greeting sent when a participant joins.
type WelcomeSettings struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// AntiFakeSettings restricts membership to identities matching an allow-list
// of phone prefixes or explicit JIDs.
type AntiFakeSettings struct {
	Enabled         bool     `json:"enabled"`
	AllowedPrefixes []string `json:"allowed_prefixes"`
	AllowedIDs      []string `json:"allowed_ids"`
}

// AntiLinkSettings controls link removal with a domain allow-list.
type AntiLinkSettings struct {
	Enabled        bool     `json:"enabled"`
	AllowedDomains []string `json:"allowed_domains"`
}

// AntiFloodSettings bounds how many messages a participant may send inside a
// sliding window.
type AntiFloodSettings struct {
	Enabled       bool  `json:"enabled"`
	MaxMessages   int   `json:"max_messages"`
	WindowSeconds int64 `json:"window_seconds"`
}

// AutoReplyRule maps a trigger word to a canned response.
type AutoReplyRule struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

// AutoReplySettings holds the auto-reply rule list.
type AutoReplySettings struct {
	Enabled bool            `json:"enabled"`
	Rules   []AutoReplyRule `json:"rules"`
}

// DefaultGroupSettings returns the settings a freshly registered group
// starts with. Stored rows missing newer fields inherit these on read.
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		Welcome: WelcomeSettings{},
		AntiFake: AntiFakeSettings{
			AllowedPrefixes: []string{"55"},
			AllowedIDs:      []string{},
		},
		AntiLink: AntiLinkSettings{AllowedDomains: []string{}},
		AntiFlood: AntiFloodSettings{
			MaxMessages:   10,
			WindowSeconds: 10,
		},
		AutoReply:       AutoReplySettings{Rules: []AutoReplyRule{}},
		BlockedCommands: []string{},
		Blacklist:       []string{},
		WordFilter:      []string{},
	}
}

// User represents a process-wide account identity, keyed by canonical JID.
// Created lazily on the first observed message from that identity.
type User struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Commands        int64     `db:"commands"`
	ReceivedWelcome bool      `db:"received_welcome"`
	Owner           bool      `db:"owner"`
	Admin           bool      `db:"admin"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`

	// Command-rate window, unix seconds.
	RateLimited       bool  `db:"rate_limited"`
	RateLimitExpires  int64 `db:"rate_limit_expires"`
	RateCount         int64 `db:"rate_count"`
	RateWindowExpires int64 `db:"rate_window_expires"`
}

// Participant is the (group, user) membership row with per-group activity
// counters. A row exists iff the user is currently in the group.
type Participant struct {
	GroupID  string `db:"group_id"`
	UserID   string `db:"user_id"`
	Admin    bool   `db:"admin"`
	Commands int64  `db:"commands"`
	Msgs     int64  `db:"msgs"`
	Text     int64  `db:"text_msgs"`
	Image    int64  `db:"image_msgs"`
	Audio    int64  `db:"audio_msgs"`
	Video    int64  `db:"video_msgs"`
	Sticker  int64  `db:"sticker_msgs"`
	Document int64  `db:"document_msgs"`
	Other    int64  `db:"other_msgs"`
	Warnings int64  `db:"warnings"`

	// Anti-flood window, unix seconds.
	FloodCount         int64 `db:"flood_count"`
	FloodWindowExpires int64 `db:"flood_window_expires"`

	RegisteredSince time.Time `db:"registered_since"`
}
