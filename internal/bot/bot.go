// Package bot implements the core bot functionality: the protocol event
// loop, message routing, group state upkeep and component orchestration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lucasvml/wishbot/internal/bot/handlers"
	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/jid"
	"github.com/lucasvml/wishbot/internal/moderation"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// Bot wires the session event stream to the state store, the moderation
// engine and the command handlers, and manages the component lifecycle.
type Bot struct {
	logger    *slog.Logger
	store     database.Store
	botCfg    *database.BotConfigStore
	engine    *moderation.Engine
	session   *whatsapp.Session
	commands  map[string]handlers.Command
	scheduler *Scheduler

	// All event processing happens on the single event-loop goroutine, so
	// queue and ready need no locking.
	queue *pendingQueue
	ready bool
}

// NewBot creates the bot orchestrator with all required dependencies.
func NewBot(
	logger *slog.Logger,
	store database.Store,
	botCfg *database.BotConfigStore,
	engine *moderation.Engine,
	session *whatsapp.Session,
	commands map[string]handlers.Command,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot"),
		store:     store,
		botCfg:    botCfg,
		engine:    engine,
		session:   session,
		commands:  commands,
		scheduler: scheduler,
		queue:     newPendingQueue(),
	}
}

// Run connects the session and drives the event loop and the scheduler until
// the context is cancelled or a component fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot...")

	if err := b.botCfg.MarkStarted(); err != nil {
		return fmt.Errorf("failed to persist start time: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if _, err := b.session.Connect(gCtx); err != nil {
			return fmt.Errorf("initial connect failed: %w", err)
		}
		return b.eventLoop(gCtx)
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	b.session.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot stopped due to error", "error", err)
		return err
	}
	b.logger.Info("Bot stopped gracefully.")
	return nil
}

func (b *Bot) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.session.Events():
			if err := b.handleEvent(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// handleEvent processes one protocol event. Fatal processing errors tear the
// connection down and reconnect; only unrecoverable session errors propagate.
func (b *Bot) handleEvent(ctx context.Context, ev whatsapp.Event) error {
	switch e := ev.(type) {
	case *whatsapp.ReadyEvent:
		return b.handleReady(ctx)

	case *whatsapp.DisconnectedEvent:
		b.ready = false
		if e.LoggedOut {
			return errors.New("session logged out, remove the session store and pair again")
		}
		b.logger.Warn("Session disconnected, reconnecting")
		_, err := b.session.Restart(ctx)
		return err

	case *whatsapp.MessageEvent:
		if !b.ready {
			// Offline history replay; commands from the past must not fire.
			return nil
		}
		return b.process(ctx, ev)

	case *whatsapp.MemberEvent, *whatsapp.JoinedGroupEvent:
		if !b.ready {
			b.queue.Push(ev)
			return nil
		}
		return b.process(ctx, ev)

	case *whatsapp.GroupMetaEvent:
		if !b.ready {
			// Reconciliation refetches metadata anyway.
			return nil
		}
		return b.process(ctx, ev)
	}
	return nil
}

// handleReady reconciles stored state against the live roster, flushes the
// queued pre-sync events and opens the gate for live processing.
func (b *Bot) handleReady(ctx context.Context) error {
	client, err := b.session.Current(ctx)
	if err != nil {
		return err
	}

	if err := b.registerOwner(ctx, client); err != nil {
		return b.restartAfter(ctx, err)
	}

	if err := b.reconcile(ctx, client); err != nil {
		b.logger.Error("Reconciliation failed, restarting session", "error", err)
		_, rerr := b.session.Restart(ctx)
		return rerr
	}

	queued := b.queue.Drain()
	for _, ev := range queued {
		if err := b.processWith(ctx, client, ev); err != nil {
			return b.restartAfter(ctx, err)
		}
	}
	if len(queued) > 0 {
		b.logger.Info("Flushed queued events", "count", len(queued))
	}

	b.ready = true
	b.logger.Info("Ready, live processing enabled")
	return nil
}

// registerOwner makes sure the paired host account exists and carries the
// owner flag. Commands typed on the host phone run with owner privileges.
func (b *Bot) registerOwner(ctx context.Context, client whatsapp.Client) error {
	botID := jid.User(client.BotID())
	if botID == "" {
		return nil
	}
	if err := b.store.RegisterUser(ctx, botID, b.botCfg.Get().Name); err != nil {
		return err
	}
	return b.store.SetUserOwner(ctx, botID)
}

// process dispatches one event to its processor. Processor errors mean state
// may have diverged, so the session is restarted for a fresh reconcile.
func (b *Bot) process(ctx context.Context, ev whatsapp.Event) error {
	client, err := b.session.Current(ctx)
	if err != nil {
		return err
	}
	if err := b.processWith(ctx, client, ev); err != nil {
		return b.restartAfter(ctx, err)
	}
	return nil
}

func (b *Bot) processWith(ctx context.Context, client whatsapp.Client, ev whatsapp.Event) error {
	switch e := ev.(type) {
	case *whatsapp.MessageEvent:
		return b.handleMessage(ctx, client, e)
	case *whatsapp.MemberEvent:
		return b.handleMemberEvent(ctx, client, e)
	case *whatsapp.JoinedGroupEvent:
		return b.handleJoinedGroup(ctx, client, e)
	case *whatsapp.GroupMetaEvent:
		return b.handleGroupMeta(ctx, e)
	}
	return nil
}

func (b *Bot) restartAfter(ctx context.Context, cause error) error {
	b.logger.Error("Event processing failed, restarting session", "error", cause)
	b.ready = false
	_, err := b.session.Restart(ctx)
	return err
}
