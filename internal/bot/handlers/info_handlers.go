package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func infoCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "ping",
			Category:    CategoryInfo,
			Description: "Check if the bot is alive",
			Handler:     newPingHandler(deps),
		},
		{
			Name:        "info",
			Category:    CategoryInfo,
			Description: "Show bot status and statistics",
			Handler:     newInfoHandler(deps),
		},
		{
			Name:        "profile",
			Category:    CategoryInfo,
			Description: "Show your usage statistics",
			Handler:     newProfileHandler(deps),
		},
	}
}

func newPingHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "🏓 Pong!")
	}
}

func newInfoHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		cfg := deps.BotConfig.Get()
		uptime := time.Since(time.Unix(cfg.StartedAt, 0)).Round(time.Second)

		var b strings.Builder
		fmt.Fprintf(&b, "*%s*\n\n", cfg.Name)
		fmt.Fprintf(&b, "Prefix: %s\n", cfg.Prefix)
		fmt.Fprintf(&b, "Uptime: %s\n", uptime)
		fmt.Fprintf(&b, "Commands executed: %d\n", cfg.ExecutedCmds)
		if req.Group != nil {
			fmt.Fprintf(&b, "Commands in this group: %d\n", req.Group.CommandsExecuted)
		}
		return req.Reply(ctx, b.String())
	}
}

func newProfileHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		var b strings.Builder
		name := req.User.Name
		if name == "" {
			name = Mention(req.User.ID)
		}
		fmt.Fprintf(&b, "*%s*\n\n", name)
		fmt.Fprintf(&b, "Total commands: %d\n", req.User.Commands)

		if req.Participant != nil {
			p := req.Participant
			fmt.Fprintf(&b, "\n*In this group*\n")
			fmt.Fprintf(&b, "Messages: %d (text %d, media %d)\n",
				p.Msgs, p.Text, p.Msgs-p.Text)
			fmt.Fprintf(&b, "Commands: %d\n", p.Commands)
			fmt.Fprintf(&b, "Warnings: %d\n", p.Warnings)
			fmt.Fprintf(&b, "Member since: %s\n", p.RegisteredSince.Format("2006-01-02"))
		}
		return req.Reply(ctx, b.String())
	}
}
