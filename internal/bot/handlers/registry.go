package handlers

import "context"

// Category groups commands for dispatch policy: the group category requires
// a group chat, the admin category requires a registered bot admin.
type Category string

const (
	CategoryInfo     Category = "info"
	CategoryUtility  Category = "utility"
	CategorySticker  Category = "sticker"
	CategoryDownload Category = "download"
	CategoryMisc     Category = "misc"
	CategoryGroup    Category = "group"
	CategoryAdmin    Category = "admin"
)

// HandlerFunc processes one command invocation. Returning a *UserError makes
// the router reply with its text; any other error produces a generic
// failure reply.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command is one entry of the dispatch table.
type Command struct {
	Name        string
	Category    Category
	Description string
	Handler     HandlerFunc
}

// RegisterAllCommands builds the command dispatch table, keyed by
// lower-case command name.
func RegisterAllCommands(deps HandlerDeps) map[string]Command {
	commands := make(map[string]Command)
	register := func(cmds ...Command) {
		for _, cmd := range cmds {
			commands[cmd.Name] = cmd
		}
	}

	register(infoCommands(deps)...)
	register(utilityCommands(deps)...)
	register(stickerCommands(deps)...)
	register(downloadCommands(deps)...)
	register(miscCommands(deps, func() map[string]Command { return commands })...)
	register(groupCommands(deps)...)
	register(adminCommands(deps)...)

	deps.Logger.Info("Registered commands", "count", len(commands))
	return commands
}
