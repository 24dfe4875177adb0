package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasvml/wishbot/internal/whatsapp"
)

func adminCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "prefix",
			Category:    CategoryAdmin,
			Description: "Change the command prefix",
			Handler:     newPrefixHandler(deps),
		},
		{
			Name:        "blockcmd",
			Category:    CategoryAdmin,
			Description: "Block a command everywhere",
			Handler:     newBlockCmdHandler(deps),
		},
		{
			Name:        "unblockcmd",
			Category:    CategoryAdmin,
			Description: "Unblock a globally blocked command",
			Handler:     newUnblockCmdHandler(deps),
		},
		{
			Name:        "autosticker",
			Category:    CategoryAdmin,
			Description: "Toggle global auto-sticker conversion",
			Handler:     newAutoStickerHandler(deps),
		},
		{
			Name:        "pvcommands",
			Category:    CategoryAdmin,
			Description: "Toggle command handling in private chats",
			Handler:     newPVCommandsHandler(deps),
		},
		{
			Name:        "adminmode",
			Category:    CategoryAdmin,
			Description: "Toggle admin-only command handling",
			Handler:     newAdminModeHandler(deps),
		},
		{
			Name:        "ratelimit",
			Category:    CategoryAdmin,
			Description: "Configure the command rate limit (ratelimit on [max] [block seconds] | off)",
			Handler:     newRateLimitHandler(deps),
		},
		{
			Name:        "promoteadmin",
			Category:    CategoryAdmin,
			Description: "Register a user as bot admin",
			Handler:     newPromoteAdminHandler(deps),
		},
		{
			Name:        "demoteadmin",
			Category:    CategoryAdmin,
			Description: "Remove a user's bot admin rights",
			Handler:     newDemoteAdminHandler(deps),
		},
		{
			Name:        "broadcast",
			Category:    CategoryAdmin,
			Description: "Send a message to every registered group",
			Handler:     newBroadcastHandler(deps),
		},
	}
}

func newPrefixHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) != 1 || len(req.Args[0]) != 1 {
			return Usagef("Usage: %sprefix <single character>", req.Prefix)
		}
		prefix := req.Args[0]
		if err := deps.BotConfig.SetPrefix(prefix); err != nil {
			return err
		}
		return req.Reply(ctx, fmt.Sprintf("Prefix changed to %s", prefix))
	}
}

func newBlockCmdHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return Usagef("Usage: %sblockcmd <command>", req.Prefix)
		}
		name := strings.TrimPrefix(req.Args[0], req.Prefix)

		added, err := deps.BotConfig.BlockCommand(name)
		if err != nil {
			return err
		}
		if !added {
			return Usagef("Command %q is already blocked.", name)
		}
		return req.Reply(ctx, fmt.Sprintf("Command %q blocked everywhere.", name))
	}
}

func newUnblockCmdHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return Usagef("Usage: %sunblockcmd <command>", req.Prefix)
		}
		name := strings.TrimPrefix(req.Args[0], req.Prefix)

		removed, err := deps.BotConfig.UnblockCommand(name)
		if err != nil {
			return err
		}
		if !removed {
			return Usagef("Command %q is not blocked.", name)
		}
		return req.Reply(ctx, fmt.Sprintf("Command %q unblocked.", name))
	}
}

func toggleReply(on bool, what string) string {
	if on {
		return what + " enabled."
	}
	return what + " disabled."
}

func newAutoStickerHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		enabled := !deps.BotConfig.Get().AutoSticker
		if err := deps.BotConfig.SetAutoSticker(enabled); err != nil {
			return err
		}
		return req.Reply(ctx, toggleReply(enabled, "Auto-sticker"))
	}
}

func newPVCommandsHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		enabled := !deps.BotConfig.Get().CommandsPV
		if err := deps.BotConfig.SetCommandsPV(enabled); err != nil {
			return err
		}
		return req.Reply(ctx, toggleReply(enabled, "Private chat commands"))
	}
}

func newAdminModeHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		enabled := !deps.BotConfig.Get().AdminMode
		if err := deps.BotConfig.SetAdminMode(enabled); err != nil {
			return err
		}
		return req.Reply(ctx, toggleReply(enabled, "Admin mode"))
	}
}

func newRateLimitHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return Usagef("Usage: %sratelimit on [max per minute] [block seconds] | off", req.Prefix)
		}

		rate := deps.BotConfig.Get().CommandRate
		switch strings.ToLower(req.Args[0]) {
		case "on":
			rate.Enabled = true
			if len(req.Args) > 1 {
				n, err := strconv.ParseInt(req.Args[1], 10, 64)
				if err != nil || n < 1 {
					return Usagef("Invalid command limit: %s", req.Args[1])
				}
				rate.MaxCommands = n
			}
			if len(req.Args) > 2 {
				n, err := strconv.ParseInt(req.Args[2], 10, 64)
				if err != nil || n < 1 {
					return Usagef("Invalid block seconds: %s", req.Args[2])
				}
				rate.BlockTimeSecs = n
			}
		case "off":
			rate.Enabled = false
		default:
			return Usagef("Usage: %sratelimit on [max per minute] [block seconds] | off", req.Prefix)
		}

		if err := deps.BotConfig.SetCommandRate(rate); err != nil {
			return err
		}
		if rate.Enabled {
			return req.Reply(ctx, fmt.Sprintf("Rate limit enabled: %d commands per %ds, block %ds.",
				rate.MaxCommands, rate.IntervalSecs, rate.BlockTimeSecs))
		}
		return req.Reply(ctx, "Rate limit disabled.")
	}
}

func newPromoteAdminHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		user, err := deps.Store.GetUser(ctx, target)
		if err != nil {
			return err
		}
		if user == nil {
			// Promotion may precede the target's first message.
			if err := deps.Store.RegisterUser(ctx, target, ""); err != nil {
				return err
			}
		}
		if err := deps.Store.SetUserAdmin(ctx, target, true); err != nil {
			return err
		}
		return req.ReplyMentions(ctx, fmt.Sprintf("%s is now a bot admin.", Mention(target)), []string{target})
	}
}

func newDemoteAdminHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		target, err := req.TargetUser()
		if err != nil {
			return err
		}

		user, err := deps.Store.GetUser(ctx, target)
		if err != nil {
			return err
		}
		if user == nil || !user.Admin {
			return Usagef("%s is not a bot admin.", Mention(target))
		}
		if user.Owner {
			return &UserError{Reply: "The owner cannot be demoted."}
		}
		if err := deps.Store.SetUserAdmin(ctx, target, false); err != nil {
			return err
		}
		return req.ReplyMentions(ctx, fmt.Sprintf("%s is no longer a bot admin.", Mention(target)), []string{target})
	}
}

func newBroadcastHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if req.ArgText == "" {
			return Usagef("Usage: %sbroadcast <message>", req.Prefix)
		}

		groups, err := deps.Store.GetAllGroups(ctx)
		if err != nil {
			return err
		}

		sent := 0
		for _, group := range groups {
			opts := &whatsapp.SendOpts{Expiration: group.Expiration}
			if err := req.Client.SendText(ctx, group.ID, req.ArgText, opts); err != nil {
				deps.Logger.WarnContext(ctx, "Broadcast send failed", "group_id", group.ID, "error", err)
				continue
			}
			sent++
		}
		return req.Reply(ctx, fmt.Sprintf("Broadcast sent to %d of %d groups.", sent, len(groups)))
	}
}
