package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/jid"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// reconcile brings stored state in line with the live group roster after a
// (re)connect: groups the bot left are dropped, new groups registered, every
// roster resynced, and entry rules re-applied to members that slipped in
// while the bot was offline. Errors are fatal to the connection.
func (b *Bot) reconcile(ctx context.Context, client whatsapp.Client) error {
	snaps, err := client.FetchAllGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch group roster: %w", err)
	}

	live := make(map[string]bool, len(snaps))
	for _, snap := range snaps {
		live[snap.ID] = true
	}

	stored, err := b.store.GetAllGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range stored {
		if !live[g.ID] {
			b.logger.InfoContext(ctx, "Dropping group the bot is no longer in", "group_id", g.ID)
			if err := b.store.DeleteGroup(ctx, g.ID); err != nil {
				return err
			}
		}
	}

	for _, snap := range snaps {
		group, err := b.syncGroup(ctx, snap)
		if err != nil {
			return err
		}
		if err := b.sweepGroup(ctx, client, group); err != nil {
			return err
		}
	}

	b.logger.InfoContext(ctx, "Reconciled group state", "groups", len(snaps))
	return nil
}

// syncGroup registers or refreshes one group from its live snapshot and
// makes the stored participant set match the roster exactly.
func (b *Bot) syncGroup(ctx context.Context, snap whatsapp.GroupSnapshot) (*database.Group, error) {
	group, err := b.store.GetGroup(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		group = &database.Group{
			ID:          snap.ID,
			Name:        snap.Name,
			Description: snap.Description,
			OwnerID:     snap.OwnerID,
			Restricted:  snap.Restricted,
			Expiration:  snap.Expiration,
			Settings:    database.DefaultGroupSettings(),
		}
		if _, err := b.store.RegisterGroup(ctx, group); err != nil {
			return nil, err
		}
	} else {
		group.Name = snap.Name
		group.Description = snap.Description
		group.OwnerID = snap.OwnerID
		group.Restricted = snap.Restricted
		group.Expiration = snap.Expiration
		if err := b.store.UpdateGroupMeta(ctx, group); err != nil {
			return nil, err
		}
	}

	roster := make(map[string]bool, len(snap.Members))
	for _, m := range snap.Members {
		roster[jid.User(m.ID)] = m.Admin
	}

	stored, err := b.store.GetParticipants(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range stored {
		admin, present := roster[p.UserID]
		if !present {
			if err := b.store.RemoveParticipant(ctx, snap.ID, p.UserID); err != nil {
				return nil, err
			}
			continue
		}
		if admin != p.Admin {
			if err := b.store.SetParticipantAdmin(ctx, snap.ID, p.UserID, admin); err != nil {
				return nil, err
			}
		}
	}
	for userID, admin := range roster {
		if _, err := b.store.AddParticipant(ctx, snap.ID, userID, admin); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// sweepGroup re-applies the entry rules to the current membership: blacklisted
// members and anti-fake violators are removed, with one aggregated notice per
// violation kind. Requires the bot to hold admin rights; otherwise a no-op.
func (b *Bot) sweepGroup(ctx context.Context, client whatsapp.Client, group *database.Group) error {
	botID := jid.User(client.BotID())
	botIsAdmin, err := b.store.IsParticipantAdmin(ctx, group.ID, botID)
	if err != nil {
		return err
	}
	enforceFake, err := b.engine.EnsureAntiFakeEnforceable(ctx, group, botIsAdmin)
	if err != nil {
		return err
	}
	if !botIsAdmin {
		return nil
	}

	participants, err := b.store.GetParticipants(ctx, group.ID)
	if err != nil {
		return err
	}

	var blacklisted, fakes []string
	for _, p := range participants {
		if p.UserID == botID {
			continue
		}
		switch {
		case b.engine.IsBlacklisted(group, p.UserID):
			blacklisted = append(blacklisted, p.UserID)
		case enforceFake && !b.engine.AntiFakeAllowed(group, p.UserID, botID, p.Admin):
			fakes = append(fakes, p.UserID)
		}
	}

	removedBlacklisted, err := b.removeViolators(ctx, client, group, blacklisted)
	if err != nil {
		return err
	}
	removedFakes, err := b.removeViolators(ctx, client, group, fakes)
	if err != nil {
		return err
	}

	opts := &whatsapp.SendOpts{Expiration: group.Expiration}
	if len(removedBlacklisted) > 0 {
		text := fmt.Sprintf("Removed blacklisted members: %s", mentionList(removedBlacklisted))
		if err := client.SendTextWithMentions(ctx, group.ID, text, removedBlacklisted, opts); err != nil {
			b.logger.WarnContext(ctx, "Failed to send sweep notice", "group_id", group.ID, "error", err)
		}
	}
	if len(removedFakes) > 0 {
		text := fmt.Sprintf("Removed members with disallowed numbers: %s", mentionList(removedFakes))
		if err := client.SendTextWithMentions(ctx, group.ID, text, removedFakes, opts); err != nil {
			b.logger.WarnContext(ctx, "Failed to send sweep notice", "group_id", group.ID, "error", err)
		}
	}
	return nil
}

// removeViolators kicks each user and drops their membership row, returning
// the ids actually removed. A failed kick keeps the row so the next sweep
// retries it.
func (b *Bot) removeViolators(ctx context.Context, client whatsapp.Client, group *database.Group, userIDs []string) ([]string, error) {
	var removed []string
	for _, userID := range userIDs {
		if err := client.RemoveParticipant(ctx, group.ID, userID); err != nil {
			b.logger.WarnContext(ctx, "Failed to remove participant during sweep",
				"group_id", group.ID, "user_id", userID, "error", err)
			continue
		}
		if err := b.store.RemoveParticipant(ctx, group.ID, userID); err != nil {
			return removed, err
		}
		removed = append(removed, userID)
	}
	return removed, nil
}

func mentionList(userIDs []string) string {
	marks := make([]string, len(userIDs))
	for i, id := range userIDs {
		marks[i] = mention(id)
	}
	return strings.Join(marks, " ")
}
