package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

func miscCommands(deps HandlerDeps, table func() map[string]Command) []Command {
	return []Command{
		{
			Name:        "menu",
			Category:    CategoryMisc,
			Description: "List the available commands",
			Handler:     newMenuHandler(deps, table),
		},
	}
}

func newMenuHandler(deps HandlerDeps, table func() map[string]Command) HandlerFunc {
	order := []Category{
		CategoryInfo, CategoryUtility, CategorySticker,
		CategoryDownload, CategoryMisc, CategoryGroup, CategoryAdmin,
	}

	return func(ctx context.Context, req *Request) error {
		byCategory := make(map[Category][]Command)
		for _, cmd := range table() {
			byCategory[cmd.Category] = append(byCategory[cmd.Category], cmd)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "*Commands* (prefix %s)\n", req.Prefix)
		for _, cat := range order {
			cmds := byCategory[cat]
			if len(cmds) == 0 {
				continue
			}
			// Admin commands are hidden from regular users.
			if cat == CategoryAdmin && !req.IsBotAdmin {
				continue
			}
			sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

			fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(string(cat)))
			for _, cmd := range cmds {
				fmt.Fprintf(&b, "%s%s - %s\n", req.Prefix, cmd.Name, cmd.Description)
			}
		}
		return req.Reply(ctx, b.String())
	}
}
