package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/lucasvml/wishbot/internal/bot/handlers"
	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/jid"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// handleMessage runs the full inbound pipeline for one message: identity and
// state resolution, moderation checks, then command dispatch or the
// non-command fallbacks. Store errors are returned and treated as fatal by
// the event loop.
func (b *Bot) handleMessage(ctx context.Context, client whatsapp.Client, ev *whatsapp.MessageEvent) error {
	cfg := b.botCfg.Get()

	senderID := jid.User(ev.SenderID)
	if ev.FromMe {
		// Commands typed on the paired phone arrive as FromMe and run
		// under the host account. Anything else FromMe is the bot's own
		// outbound traffic echoed back.
		if _, _, _, ok := parseCommand(ev.Text, cfg.Prefix); !ok {
			return nil
		}
		senderID = jid.User(client.BotID())
	}
	if senderID == "" {
		return nil
	}

	var group *database.Group
	if ev.IsGroup {
		g, err := b.store.GetGroup(ctx, ev.ChatID)
		if err != nil {
			return err
		}
		if g == nil {
			b.logger.DebugContext(ctx, "Message from unknown group, discarding", "group_id", ev.ChatID)
			return nil
		}
		group = g
	}

	if err := b.store.RegisterUser(ctx, senderID, ev.SenderName); err != nil {
		return err
	}
	user, err := b.store.GetUser(ctx, senderID)
	if err != nil {
		return err
	}
	if user != nil && ev.SenderName != "" && user.Name != ev.SenderName {
		if err := b.store.SetUserName(ctx, senderID, ev.SenderName); err != nil {
			return err
		}
		user.Name = ev.SenderName
	}
	isBotAdmin := user != nil && user.Admin

	name, args, argText, isCommand := parseCommand(ev.Text, cfg.Prefix)

	var participant *database.Participant
	isGroupAdmin := false
	if group != nil {
		p, err := b.resolveParticipant(ctx, group.ID, senderID)
		if err != nil {
			return err
		}
		participant = p
		isGroupAdmin = p.Admin

		kind := database.MessageKind(ev.Kind)
		if err := b.store.IncrementParticipantActivity(ctx, group.ID, senderID, kind, isCommand); err != nil {
			return err
		}

		if !isGroupAdmin && !isBotAdmin {
			flooded, err := b.engine.RecordMessage(ctx, group, participant)
			if err != nil {
				return err
			}
			if flooded {
				// Notice only when the limit is first crossed, not on
				// every message of an ongoing burst.
				if participant.FloodCount == int64(group.Settings.AntiFlood.MaxMessages)+1 {
					b.notify(ctx, client, group, ev,
						fmt.Sprintf("%s slow down, you are sending too many messages.", mention(senderID)),
						[]string{senderID})
				}
				return nil
			}

			if b.engine.MatchesWordFilter(group, ev.Text) {
				b.notify(ctx, client, group, ev,
					fmt.Sprintf("%s that word is not allowed here.", mention(senderID)),
					[]string{senderID})
				return nil
			}

			if b.engine.ContainsForbiddenLink(group, ev.Text) {
				b.notify(ctx, client, group, ev,
					fmt.Sprintf("%s links are not allowed here.", mention(senderID)),
					[]string{senderID})
				return nil
			}
		}
	}

	if !isCommand {
		return b.handlePlainMessage(ctx, client, group, cfg, ev)
	}

	// Silent gates: a rejected command behaves as if it never matched.
	if group != nil && group.Muted && !isGroupAdmin && !isBotAdmin {
		return nil
	}
	if group != nil && slices.Contains(group.Settings.BlockedCommands, name) {
		return nil
	}
	if slices.Contains(cfg.BlockedCmds, name) {
		return nil
	}
	if !ev.IsGroup && !cfg.CommandsPV && !isBotAdmin {
		return nil
	}
	if cfg.AdminMode && !isBotAdmin {
		return nil
	}

	cmd, known := b.commands[name]
	if !known {
		return b.handlePlainMessage(ctx, client, group, cfg, ev)
	}
	if cmd.Category == handlers.CategoryAdmin && !isBotAdmin {
		return nil
	}

	req := &handlers.Request{
		Client:       client,
		Event:        ev,
		Group:        group,
		User:         user,
		Participant:  participant,
		IsBotAdmin:   isBotAdmin,
		IsGroupAdmin: isGroupAdmin,
		Command:      name,
		Args:         args,
		ArgText:      argText,
		Prefix:       cfg.Prefix,
	}

	if cmd.Category == handlers.CategoryGroup && !ev.IsGroup {
		b.replyError(ctx, req, "This command only works in groups.")
		return nil
	}

	if !isBotAdmin {
		verdict, err := b.engine.AllowCommand(ctx, user, cfg.CommandRate)
		if err != nil {
			return err
		}
		if !verdict.Allowed {
			notice := "You are sending commands too fast, wait before trying again."
			if verdict.JustLimited {
				notice = fmt.Sprintf("Too many commands, you are blocked for %d seconds.",
					cfg.CommandRate.BlockTimeSecs)
			}
			b.replyError(ctx, req, notice)
			return nil
		}
	}

	b.dispatch(ctx, req, cmd)
	return b.recordExecution(ctx, group, senderID)
}

// dispatch runs the handler with a panic guard and the user-error boundary.
func (b *Bot) dispatch(ctx context.Context, req *handlers.Request, cmd handlers.Command) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "Command handler panicked", "command", cmd.Name, "panic", r)
			b.replyError(ctx, req, "Something went wrong, try again later.")
		}
	}()

	err := cmd.Handler(ctx, req)
	if err == nil {
		return
	}
	var userErr *handlers.UserError
	if errors.As(err, &userErr) {
		b.replyError(ctx, req, userErr.Reply)
		return
	}
	b.logger.ErrorContext(ctx, "Command handler failed", "command", cmd.Name, "error", err)
	b.replyError(ctx, req, "Something went wrong, try again later.")
}

func (b *Bot) recordExecution(ctx context.Context, group *database.Group, senderID string) error {
	if err := b.store.IncrementUserCommands(ctx, senderID); err != nil {
		return err
	}
	if group != nil {
		if err := b.store.IncrementGroupCommands(ctx, group.ID); err != nil {
			return err
		}
	}
	if err := b.botCfg.IncrementExecuted(); err != nil {
		b.logger.WarnContext(ctx, "Failed to persist executed command counter", "error", err)
	}
	return nil
}

// handlePlainMessage covers everything that is not a recognized command:
// auto-reply rules, then the auto-sticker fallback for images.
func (b *Bot) handlePlainMessage(ctx context.Context, client whatsapp.Client, group *database.Group, cfg database.BotConfig, ev *whatsapp.MessageEvent) error {
	if group != nil && group.Settings.AutoReply.Enabled && ev.Text != "" {
		lower := strings.ToLower(ev.Text)
		for _, rule := range group.Settings.AutoReply.Rules {
			if rule.Trigger != "" && strings.Contains(lower, strings.ToLower(rule.Trigger)) {
				opts := whatsapp.ReplyTo(ev)
				if err := client.SendText(ctx, ev.ChatID, rule.Response, opts); err != nil {
					b.logger.WarnContext(ctx, "Failed to send auto-reply", "chat_id", ev.ChatID, "error", err)
				}
				return nil
			}
		}
	}

	if ev.HasImage() && (cfg.AutoSticker || (group != nil && group.AutoSticker)) {
		if err := handlers.AutoSticker(ctx, client, ev); err != nil {
			b.logger.WarnContext(ctx, "Auto-sticker conversion failed", "chat_id", ev.ChatID, "error", err)
		}
	}
	return nil
}

// resolveParticipant fetches the sender's membership row, creating it when a
// message arrives from a member the bot never saw join.
func (b *Bot) resolveParticipant(ctx context.Context, groupID, userID string) (*database.Participant, error) {
	p, err := b.store.GetParticipant(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	if _, err := b.store.AddParticipant(ctx, groupID, userID, false); err != nil {
		return nil, err
	}
	p, err = b.store.GetParticipant(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("participant %s vanished after insert in %s", userID, groupID)
	}
	return p, nil
}

func (b *Bot) notify(ctx context.Context, client whatsapp.Client, group *database.Group, ev *whatsapp.MessageEvent, text string, mentions []string) {
	opts := whatsapp.ReplyTo(ev)
	if opts != nil && opts.Expiration == 0 {
		opts.Expiration = group.Expiration
	}
	if err := client.SendTextWithMentions(ctx, group.ID, text, mentions, opts); err != nil {
		b.logger.WarnContext(ctx, "Failed to send moderation notice", "group_id", group.ID, "error", err)
	}
}

func (b *Bot) replyError(ctx context.Context, req *handlers.Request, text string) {
	if err := req.Reply(ctx, text); err != nil {
		b.logger.WarnContext(ctx, "Failed to send error reply", "chat_id", req.Event.ChatID, "error", err)
	}
}

// parseCommand splits "<prefix><name> <args...>" out of a message body. The
// command name is lowercased; argText keeps the original spacing and case of
// everything after the name.
func parseCommand(text, prefix string) (name string, args []string, argText string, ok bool) {
	body := strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return "", nil, "", false
	}
	body = strings.TrimSpace(body[len(prefix):])
	if body == "" {
		return "", nil, "", false
	}

	cut := strings.IndexFunc(body, unicode.IsSpace)
	if cut < 0 {
		return strings.ToLower(body), nil, "", true
	}
	name = strings.ToLower(body[:cut])
	argText = strings.TrimSpace(body[cut:])
	args = strings.Fields(argText)
	return name, args, argText, true
}
