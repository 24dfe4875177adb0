// Package tasks implements the scheduled background tasks of the bot.
package tasks

import (
	"log/slog"

	"github.com/lucasvml/wishbot/internal/config"
	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// TaskDeps contains all dependencies required by scheduled tasks. Session is
// used instead of a cached client because reconnects replace the client
// instance.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Session *whatsapp.Session
	Config  *config.Config
}
