package whatsapp

import "context"

// SendOpts carries optional send parameters shared by every outbound
// operation: the ephemeral TTL of the target chat and an optional quoted
// message for threaded replies.
type SendOpts struct {
	Expiration   uint32
	QuotedID     string
	QuotedSender string
	QuotedText   string
}

// ReplyTo builds SendOpts quoting the given inbound message.
func ReplyTo(ev *MessageEvent) *SendOpts {
	if ev == nil {
		return nil
	}
	return &SendOpts{
		Expiration:   ev.Expiration,
		QuotedID:     ev.MessageID,
		QuotedSender: ev.SenderID,
		QuotedText:   ev.Text,
	}
}

// Client is the outbound protocol surface the bot depends on. Implemented by
// the live session client; faked in tests.
type Client interface {
	// BotID returns the bot's own user identifier, empty before login.
	BotID() string

	// IsConnected reports whether the underlying socket is up.
	IsConnected() bool

	// SendText sends a plain text message to a chat.
	SendText(ctx context.Context, chatID, text string, opts *SendOpts) error

	// SendTextWithMentions sends text tagging the given user ids; the text
	// itself should contain the matching @phone markers.
	SendTextWithMentions(ctx context.Context, chatID, text string, mentions []string, opts *SendOpts) error

	// SendImageFromURL fetches an image over HTTP and sends it with a
	// caption.
	SendImageFromURL(ctx context.Context, chatID, url, caption string, opts *SendOpts) error

	// SendSticker sends WebP sticker data.
	SendSticker(ctx context.Context, chatID string, webpData []byte, opts *SendOpts) error

	// DownloadImage fetches the media content of an image message.
	DownloadImage(ctx context.Context, ev *MessageEvent) ([]byte, error)

	// Group membership management; all require the bot to hold admin rights
	// in the group.
	AddParticipant(ctx context.Context, groupID, userID string) error
	RemoveParticipant(ctx context.Context, groupID, userID string) error
	PromoteParticipant(ctx context.Context, groupID, userID string) error
	DemoteParticipant(ctx context.Context, groupID, userID string) error

	// FetchAllGroups returns the live roster of every group the bot is a
	// member of.
	FetchAllGroups(ctx context.Context) ([]GroupSnapshot, error)

	// GroupInviteLink returns (optionally resetting) the group invite link.
	GroupInviteLink(ctx context.Context, groupID string, reset bool) (string, error)

	// LeaveGroup makes the bot leave a group.
	LeaveGroup(ctx context.Context, groupID string) error

	// Disconnect tears the socket down without logging out.
	Disconnect()
}
