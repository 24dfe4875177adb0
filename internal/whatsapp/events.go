package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// MessageKind classifies the payload of an inbound message.
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

// Event is one protocol notification delivered on the session's event
// channel. Concrete types: *MessageEvent, *MemberEvent, *GroupMetaEvent,
// *JoinedGroupEvent, *ReadyEvent, *DisconnectedEvent.
type Event any

// MessageEvent is an inbound chat message with its identity and payload
// already flattened; identifiers are raw protocol strings, normalization is
// the consumer's job.
type MessageEvent struct {
	ChatID     string
	SenderID   string
	SenderName string
	MessageID  string
	Timestamp  time.Time
	IsGroup    bool
	FromMe     bool

	Kind MessageKind
	// Text is the body for text messages and the caption for media.
	Text string
	// Expiration carries the chat's ephemeral-message TTL in seconds, zero
	// when disabled. Replies should echo it.
	Expiration uint32

	// image is kept for Client.DownloadImage; opaque outside this package.
	image *waE2E.ImageMessage
}

// HasImage reports whether the message carries downloadable image content.
func (m *MessageEvent) HasImage() bool {
	return m.image != nil
}

// MemberAction is the kind of membership change in a MemberEvent.
type MemberAction string

const (
	MemberAdd     MemberAction = "add"
	MemberRemove  MemberAction = "remove"
	MemberPromote MemberAction = "promote"
	MemberDemote  MemberAction = "demote"
)

// MemberEvent is a group membership change notification. The feed is
// at-least-once: duplicates and reordering are possible.
type MemberEvent struct {
	GroupID   string
	Action    MemberAction
	UserIDs   []string
	Timestamp time.Time
}

// GroupMetaEvent is a partial group metadata update; at most one field is
// expected populated per notification.
type GroupMetaEvent struct {
	GroupID     string
	Name        *string
	Description *string
	Restricted  *bool
	Expiration  *uint32
}

// MemberSnapshot is one roster entry inside a GroupSnapshot.
type MemberSnapshot struct {
	ID    string
	Admin bool
}

// GroupSnapshot is the protocol view of one group and its member roster, as
// returned by roster fetches and join notifications.
type GroupSnapshot struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	Restricted  bool
	Expiration  uint32
	Members     []MemberSnapshot
}

// JoinedGroupEvent fires when the bot itself is added to a group.
type JoinedGroupEvent struct {
	Group GroupSnapshot
}

// ReadyEvent fires once per connection when pending offline notifications
// have been flushed and live processing may begin.
type ReadyEvent struct{}

// DisconnectedEvent fires when the session drops. LoggedOut means the
// credentials were invalidated and reconnecting requires a new pairing.
type DisconnectedEvent struct {
	LoggedOut bool
}
