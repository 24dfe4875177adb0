// Package main contains the entrypoint for the WhatsApp bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasvml/wishbot/internal/bot"
	"github.com/lucasvml/wishbot/internal/bot/handlers"
	"github.com/lucasvml/wishbot/internal/bot/tasks"
	"github.com/lucasvml/wishbot/internal/config"
	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/gemini"
	"github.com/lucasvml/wishbot/internal/logger"
	"github.com/lucasvml/wishbot/internal/moderation"
	"github.com/lucasvml/wishbot/internal/whatsapp"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	botCfg, err := database.NewBotConfigStore(cfg.Database.BotConfigPath, log)
	if err != nil {
		log.Error("Failed to load bot config", "path", cfg.Database.BotConfigPath, "error", err)
		return 1
	}

	engine := moderation.NewEngine(store, log)

	var gemClient gemini.Client
	if cfg.Gemini.APIKey != "" {
		gemClient, err = gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
	} else {
		log.Info("No Gemini API key configured, ask command disabled")
	}

	session := whatsapp.NewSession(cfg.Session, log)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		BotConfig:    botCfg,
		Engine:       engine,
		GeminiClient: gemClient,
	}
	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Session: session,
		Config:  cfg,
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, store, botCfg, engine, session, handlers.RegisterAllCommands(hDeps), sched)

	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	// Allow logs to flush before exiting gracefully.
	time.Sleep(time.Second)
	return 0
}
