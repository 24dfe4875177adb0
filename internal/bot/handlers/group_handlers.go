package handlers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lucasvml/wishbot/internal/database"
)

func groupCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "welcome",
			Category:    CategoryGroup,
			Description: "Enable or disable the welcome message (welcome on <text> | off)",
			Handler:     newWelcomeHandler(deps),
		},
		{
			Name:        "antifake",
			Category:    CategoryGroup,
			Description: "Restrict joins to allowed phone prefixes (antifake on [prefixes] | off)",
			Handler:     newAntiFakeHandler(deps),
		},
		{
			Name:        "antilink",
			Category:    CategoryGroup,
			Description: "Remove messages with links outside the allow-list (antilink on [domain ...] | off)",
			Handler:     newAntiLinkHandler(deps),
		},
		{
			Name:        "antiflood",
			Category:    CategoryGroup,
			Description: "Limit messages per participant (antiflood on [max] [seconds] | off)",
			Handler:     newAntiFloodHandler(deps),
		},
		{
			Name:        "blacklist",
			Category:    CategoryGroup,
			Description: "Ban a number from this group",
			Handler:     newBlacklistHandler(deps),
		},
		{
			Name:        "unblacklist",
			Category:    CategoryGroup,
			Description: "Remove a number from the group ban list",
			Handler:     newUnblacklistHandler(deps),
		},
		{
			Name:        "blockcmds",
			Category:    CategoryGroup,
			Description: "Block a command in this group",
			Handler:     newBlockCmdsHandler(deps),
		},
		{
			Name:        "unblockcmds",
			Category:    CategoryGroup,
			Description: "Unblock a command in this group",
			Handler:     newUnblockCmdsHandler(deps),
		},
		{
			Name:        "mute",
			Category:    CategoryGroup,
			Description: "Toggle whether the bot answers in this group",
			Handler:     newMuteHandler(deps),
		},
		{
			Name:        "wordfilter",
			Category:    CategoryGroup,
			Description: "Manage the filtered word list (wordfilter add <word> | del <word> | list)",
			Handler:     newWordFilterHandler(deps),
		},
		{
			Name:        "warn",
			Category:    CategoryGroup,
			Description: "Warn a participant",
			Handler:     newWarnHandler(deps),
		},
		{
			Name:        "unwarn",
			Category:    CategoryGroup,
			Description: "Remove a participant's warnings",
			Handler:     newUnwarnHandler(deps),
		},
		{
			Name:        "link",
			Category:    CategoryGroup,
			Description: "Show the group invite link",
			Handler:     newLinkHandler(deps),
		},
		{
			Name:        "admins",
			Category:    CategoryGroup,
			Description: "Mention the group admins",
			Handler:     newAdminsHandler(deps),
		},
	}
}

// requireGroupAdmin gates moderation commands on the caller's group admin
// rights (bot admins pass too).
func requireGroupAdmin(req *Request) error {
	if req.IsGroupAdmin || req.IsBotAdmin {
		return nil
	}
	return &UserError{Reply: "Only group admins can use this command."}
}

func newWelcomeHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %swelcome on <message> | off  ({{user}} is replaced with a mention)", req.Prefix)
		}

		switch strings.ToLower(req.Args[0]) {
		case "on":
			message := strings.TrimSpace(strings.TrimPrefix(req.ArgText, req.Args[0]))
			if message == "" {
				message = "Welcome {{user}}!"
			}
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.Welcome.Enabled = true
				s.Welcome.Message = message
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Welcome message enabled.")
		case "off":
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.Welcome.Enabled = false
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Welcome message disabled.")
		default:
			return Usagef("Usage: %swelcome on <message> | off", req.Prefix)
		}
	}
}

func newAntiFakeHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %santifake on [prefix ...] | off", req.Prefix)
		}

		switch strings.ToLower(req.Args[0]) {
		case "on":
			prefixes := req.Args[1:]
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiFake.Enabled = true
				if len(prefixes) > 0 {
					s.AntiFake.AllowedPrefixes = prefixes
				}
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-fake enabled.")
		case "off":
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiFake.Enabled = false
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-fake disabled.")
		default:
			return Usagef("Usage: %santifake on [prefix ...] | off", req.Prefix)
		}
	}
}

func newAntiLinkHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %santilink on [allowed domain ...] | off", req.Prefix)
		}

		switch strings.ToLower(req.Args[0]) {
		case "on":
			domains := req.Args[1:]
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiLink.Enabled = true
				if len(domains) > 0 {
					s.AntiLink.AllowedDomains = domains
				}
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-link enabled.")
		case "off":
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiLink.Enabled = false
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-link disabled.")
		default:
			return Usagef("Usage: %santilink on [allowed domain ...] | off", req.Prefix)
		}
	}
}

func newAntiFloodHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %santiflood on [max] [seconds] | off", req.Prefix)
		}

		switch strings.ToLower(req.Args[0]) {
		case "on":
			maxMessages, windowSeconds := 0, int64(0)
			if len(req.Args) > 1 {
				n, err := strconv.Atoi(req.Args[1])
				if err != nil || n < 1 {
					return Usagef("Invalid message limit: %s", req.Args[1])
				}
				maxMessages = n
			}
			if len(req.Args) > 2 {
				n, err := strconv.ParseInt(req.Args[2], 10, 64)
				if err != nil || n < 1 {
					return Usagef("Invalid window seconds: %s", req.Args[2])
				}
				windowSeconds = n
			}
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiFlood.Enabled = true
				if maxMessages > 0 {
					s.AntiFlood.MaxMessages = maxMessages
				}
				if windowSeconds > 0 {
					s.AntiFlood.WindowSeconds = windowSeconds
				}
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-flood enabled.")
		case "off":
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				s.AntiFlood.Enabled = false
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Anti-flood disabled.")
		default:
			return Usagef("Usage: %santiflood on [max] [seconds] | off", req.Prefix)
		}
	}
}

func newBlacklistHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		err = deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
			if !slices.Contains(s.Blacklist, target) {
				s.Blacklist = append(s.Blacklist, target)
			}
		})
		if err != nil {
			return err
		}

		// Kick immediately when the target is present and the bot can.
		present, err := deps.Store.IsParticipant(ctx, req.Group.ID, target)
		if err != nil {
			return err
		}
		if present {
			if err := req.Client.RemoveParticipant(ctx, req.Group.ID, target); err != nil {
				deps.Logger.WarnContext(ctx, "Failed to remove blacklisted participant",
					"group_id", req.Group.ID, "user_id", target, "error", err)
			} else if err := deps.Store.RemoveParticipant(ctx, req.Group.ID, target); err != nil {
				return err
			}
		}
		return req.ReplyMentions(ctx, fmt.Sprintf("%s is now banned from this group.", Mention(target)), []string{target})
	}
}

func newUnblacklistHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		err = deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
			if idx := slices.Index(s.Blacklist, target); idx >= 0 {
				s.Blacklist = slices.Delete(s.Blacklist, idx, idx+1)
			}
		})
		if err != nil {
			return err
		}
		return req.ReplyMentions(ctx, fmt.Sprintf("%s is no longer banned.", Mention(target)), []string{target})
	}
}

func newBlockCmdsHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %sblockcmds <command>", req.Prefix)
		}
		name := strings.ToLower(strings.TrimPrefix(req.Args[0], req.Prefix))

		err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
			if !slices.Contains(s.BlockedCommands, name) {
				s.BlockedCommands = append(s.BlockedCommands, name)
			}
		})
		if err != nil {
			return err
		}
		return req.Reply(ctx, fmt.Sprintf("Command %q blocked in this group.", name))
	}
}

func newUnblockCmdsHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %sunblockcmds <command>", req.Prefix)
		}
		name := strings.ToLower(strings.TrimPrefix(req.Args[0], req.Prefix))

		err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
			if idx := slices.Index(s.BlockedCommands, name); idx >= 0 {
				s.BlockedCommands = slices.Delete(s.BlockedCommands, idx, idx+1)
			}
		})
		if err != nil {
			return err
		}
		return req.Reply(ctx, fmt.Sprintf("Command %q unblocked in this group.", name))
	}
}

func newMuteHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}

		muted := !req.Group.Muted
		if err := deps.Store.SetGroupMuted(ctx, req.Group.ID, muted); err != nil {
			return err
		}
		if muted {
			return req.Reply(ctx, "Bot muted in this group. Admin commands still work.")
		}
		return req.Reply(ctx, "Bot unmuted.")
	}
}

func newWordFilterHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		if len(req.Args) == 0 {
			return Usagef("Usage: %swordfilter add <word> | del <word> | list", req.Prefix)
		}

		switch strings.ToLower(req.Args[0]) {
		case "add":
			if len(req.Args) < 2 {
				return Usagef("Usage: %swordfilter add <word>", req.Prefix)
			}
			word := strings.ToLower(req.Args[1])
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				if !slices.Contains(s.WordFilter, word) {
					s.WordFilter = append(s.WordFilter, word)
				}
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Word added to the filter.")
		case "del":
			if len(req.Args) < 2 {
				return Usagef("Usage: %swordfilter del <word>", req.Prefix)
			}
			word := strings.ToLower(req.Args[1])
			err := deps.Store.UpdateGroupSettings(ctx, req.Group.ID, func(s *database.GroupSettings) {
				if idx := slices.Index(s.WordFilter, word); idx >= 0 {
					s.WordFilter = slices.Delete(s.WordFilter, idx, idx+1)
				}
			})
			if err != nil {
				return err
			}
			return req.Reply(ctx, "Word removed from the filter.")
		case "list":
			if len(req.Group.Settings.WordFilter) == 0 {
				return req.Reply(ctx, "The word filter is empty.")
			}
			return req.Reply(ctx, "Filtered words: "+strings.Join(req.Group.Settings.WordFilter, ", "))
		default:
			return Usagef("Usage: %swordfilter add <word> | del <word> | list", req.Prefix)
		}
	}
}

func newWarnHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		participant, err := deps.Store.GetParticipant(ctx, req.Group.ID, target)
		if err != nil {
			return err
		}
		if participant == nil {
			return Usagef("%s is not in this group.", Mention(target))
		}

		if err := deps.Store.AddParticipantWarning(ctx, req.Group.ID, target); err != nil {
			return err
		}
		return req.ReplyMentions(ctx,
			fmt.Sprintf("%s warned (%d warnings).", Mention(target), participant.Warnings+1),
			[]string{target})
	}
}

func newUnwarnHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if err := requireGroupAdmin(req); err != nil {
			return err
		}
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		if err := deps.Store.SetParticipantWarnings(ctx, req.Group.ID, target, 0); err != nil {
			return err
		}
		return req.ReplyMentions(ctx, fmt.Sprintf("Warnings cleared for %s.", Mention(target)), []string{target})
	}
}

func newLinkHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		link, err := req.Client.GroupInviteLink(ctx, req.Group.ID, false)
		if err != nil {
			return fmt.Errorf("failed to fetch invite link: %w", err)
		}
		return req.Reply(ctx, link)
	}
}

func newAdminsHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		participants, err := deps.Store.GetParticipants(ctx, req.Group.ID)
		if err != nil {
			return err
		}

		var mentions []string
		var b strings.Builder
		b.WriteString("Group admins:\n")
		for _, p := range participants {
			if p.Admin {
				mentions = append(mentions, p.UserID)
				b.WriteString(Mention(p.UserID) + "\n")
			}
		}
		if len(mentions) == 0 {
			return req.Reply(ctx, "No admins on record for this group.")
		}
		return req.ReplyMentions(ctx, b.String(), mentions)
	}
}
