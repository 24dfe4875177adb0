// Package handlers contains the chat command handlers, their registration
// table and the request context the router hands to each of them.
package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lucasvml/wishbot/internal/config"
	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/gemini"
	"github.com/lucasvml/wishbot/internal/jid"
	"github.com/lucasvml/wishbot/internal/moderation"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// HandlerDeps provides shared dependencies for command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	BotConfig    *database.BotConfigStore
	Engine       *moderation.Engine
	GeminiClient gemini.Client
}

// Request is the resolved context of one command invocation. Group and
// Participant are nil for private chats; identifiers are already canonical.
type Request struct {
	Client whatsapp.Client
	Event  *whatsapp.MessageEvent

	Group       *database.Group
	User        *database.User
	Participant *database.Participant

	// IsBotAdmin reports whether the caller is a registered bot admin;
	// IsGroupAdmin whether they hold admin rights in the current group.
	IsBotAdmin   bool
	IsGroupAdmin bool

	Command string
	Args    []string
	ArgText string
	Prefix  string
}

// sendOpts carries the chat's ephemeral TTL and quotes the invoking message.
func (r *Request) sendOpts() *whatsapp.SendOpts {
	opts := whatsapp.ReplyTo(r.Event)
	if opts != nil && opts.Expiration == 0 && r.Group != nil {
		opts.Expiration = r.Group.Expiration
	}
	return opts
}

// Reply sends text to the invoking chat as a quoted reply.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Client.SendText(ctx, r.Event.ChatID, text, r.sendOpts())
}

// ReplyMentions sends text tagging the given canonical user ids; @phone
// markers are appended when the text does not already carry them.
func (r *Request) ReplyMentions(ctx context.Context, text string, mentions []string) error {
	return r.Client.SendTextWithMentions(ctx, r.Event.ChatID, text, mentions, r.sendOpts())
}

// Mention renders the @phone marker for a canonical user id.
func Mention(userID string) string {
	return "@" + jid.Phone(userID)
}

// TargetUser resolves the user a moderation command acts on: the first
// argument as a phone number or @mention.
func (r *Request) TargetUser() (string, error) {
	if len(r.Args) == 0 {
		return "", Usagef("Usage: %s%s <number>", r.Prefix, r.Command)
	}
	raw := strings.TrimPrefix(r.Args[0], "@")
	target := jid.FromPhone(raw)
	if target == "" {
		return "", Usagef("Invalid number: %s", r.Args[0])
	}
	return target, nil
}
