package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/jid"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// handleMemberEvent applies one membership change to the store and runs the
// entry checks for new members. Store errors are returned and treated as
// fatal by the event loop; send and protocol failures are only logged.
func (b *Bot) handleMemberEvent(ctx context.Context, client whatsapp.Client, ev *whatsapp.MemberEvent) error {
	group, err := b.store.GetGroup(ctx, ev.GroupID)
	if err != nil {
		return err
	}
	if group == nil {
		b.logger.DebugContext(ctx, "Membership event for unknown group, discarding",
			"group_id", ev.GroupID, "action", ev.Action)
		return nil
	}

	botID := jid.User(client.BotID())
	switch ev.Action {
	case whatsapp.MemberAdd:
		return b.handleMemberAdd(ctx, client, group, botID, ev.UserIDs)
	case whatsapp.MemberRemove:
		return b.handleMemberRemove(ctx, group, botID, ev.UserIDs)
	case whatsapp.MemberPromote:
		return b.setMemberAdmin(ctx, group.ID, ev.UserIDs, true)
	case whatsapp.MemberDemote:
		return b.setMemberAdmin(ctx, group.ID, ev.UserIDs, false)
	}
	return nil
}

func (b *Bot) handleMemberAdd(ctx context.Context, client whatsapp.Client, group *database.Group, botID string, userIDs []string) error {
	botIsAdmin, err := b.store.IsParticipantAdmin(ctx, group.ID, botID)
	if err != nil {
		return err
	}
	enforceFake, err := b.engine.EnsureAntiFakeEnforceable(ctx, group, botIsAdmin)
	if err != nil {
		return err
	}

	for _, raw := range userIDs {
		userID := jid.User(raw)
		if userID == "" || userID == botID {
			// The bot's own join arrives as a JoinedGroupEvent.
			continue
		}

		known, err := b.store.IsParticipant(ctx, group.ID, userID)
		if err != nil {
			return err
		}
		if known {
			continue
		}

		// Entry checks need admin rights to act; without them the joiner
		// is admitted like anyone else and the startup sweep catches up
		// once the bot is promoted.
		if botIsAdmin && b.engine.IsBlacklisted(group, userID) {
			b.expelMember(ctx, client, group, userID,
				fmt.Sprintf("%s is blacklisted and was removed.", mention(userID)))
			continue
		}
		if enforceFake && !b.engine.AntiFakeAllowed(group, userID, botID, false) {
			b.expelMember(ctx, client, group, userID,
				fmt.Sprintf("%s was removed: numbers from this region are not allowed here.", mention(userID)))
			continue
		}

		if _, err := b.store.AddParticipant(ctx, group.ID, userID, false); err != nil {
			return err
		}
		if err := b.sendWelcome(ctx, client, group, userID); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleMemberRemove(ctx context.Context, group *database.Group, botID string, userIDs []string) error {
	for _, raw := range userIDs {
		userID := jid.User(raw)
		if userID == botID {
			b.logger.InfoContext(ctx, "Bot removed from group, dropping state", "group_id", group.ID)
			return b.store.DeleteGroup(ctx, group.ID)
		}

		known, err := b.store.IsParticipant(ctx, group.ID, userID)
		if err != nil {
			return err
		}
		if !known {
			continue
		}
		if err := b.store.RemoveParticipant(ctx, group.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) setMemberAdmin(ctx context.Context, groupID string, userIDs []string, admin bool) error {
	for _, raw := range userIDs {
		userID := jid.User(raw)
		// A promote for a member we never saw join still creates the row.
		if _, err := b.store.AddParticipant(ctx, groupID, userID, admin); err != nil {
			return err
		}
		if err := b.store.SetParticipantAdmin(ctx, groupID, userID, admin); err != nil {
			return err
		}
	}
	return nil
}

// expelMember kicks a user and posts the notice. Both are best-effort; the
// startup sweep retries removals the bot could not perform.
func (b *Bot) expelMember(ctx context.Context, client whatsapp.Client, group *database.Group, userID, notice string) {
	if err := client.RemoveParticipant(ctx, group.ID, userID); err != nil {
		b.logger.WarnContext(ctx, "Failed to remove participant",
			"group_id", group.ID, "user_id", userID, "error", err)
		return
	}
	opts := &whatsapp.SendOpts{Expiration: group.Expiration}
	if err := client.SendTextWithMentions(ctx, group.ID, notice, []string{userID}, opts); err != nil {
		b.logger.WarnContext(ctx, "Failed to send removal notice", "group_id", group.ID, "error", err)
	}
}

// sendWelcome greets a new member and records the greeting on their account.
// Send failures are logged only; the flag write goes through the store and is
// a no-op for identities without a user row.
func (b *Bot) sendWelcome(ctx context.Context, client whatsapp.Client, group *database.Group, userID string) error {
	welcome := group.Settings.Welcome
	if !welcome.Enabled {
		return nil
	}
	text := welcome.Message
	if text == "" {
		text = "Welcome {{user}}!"
	}
	text = strings.ReplaceAll(text, "{{user}}", mention(userID))

	opts := &whatsapp.SendOpts{Expiration: group.Expiration}
	if err := client.SendTextWithMentions(ctx, group.ID, text, []string{userID}, opts); err != nil {
		b.logger.WarnContext(ctx, "Failed to send welcome message", "group_id", group.ID, "error", err)
		return nil
	}
	return b.store.SetUserReceivedWelcome(ctx, userID, true)
}

// handleGroupMeta applies a partial metadata update for a registered group.
func (b *Bot) handleGroupMeta(ctx context.Context, ev *whatsapp.GroupMetaEvent) error {
	group, err := b.store.GetGroup(ctx, ev.GroupID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	switch {
	case ev.Description != nil:
		return b.store.SetGroupDescription(ctx, group.ID, *ev.Description)
	case ev.Name != nil:
		return b.store.SetGroupName(ctx, group.ID, *ev.Name)
	case ev.Restricted != nil:
		return b.store.SetGroupRestricted(ctx, group.ID, *ev.Restricted)
	case ev.Expiration != nil:
		return b.store.SetGroupExpiration(ctx, group.ID, *ev.Expiration)
	}
	return nil
}

// handleJoinedGroup registers a group the bot was just added to and brings
// its roster in line with the snapshot.
func (b *Bot) handleJoinedGroup(ctx context.Context, client whatsapp.Client, ev *whatsapp.JoinedGroupEvent) error {
	b.logger.InfoContext(ctx, "Joined group", "group_id", ev.Group.ID, "name", ev.Group.Name)
	group, err := b.syncGroup(ctx, ev.Group)
	if err != nil {
		return err
	}
	return b.sweepGroup(ctx, client, group)
}

func mention(userID string) string {
	return "@" + jid.Phone(userID)
}
