// Package whatsapp wraps the whatsmeow protocol client behind a
// protocol-neutral event stream and outbound Client interface. One Session
// owns the single live connection; reconnects replace the client instance,
// so holders must re-fetch it through Current rather than caching it.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lucasvml/wishbot/internal/config"
)

const eventBufferSize = 256

// Session manages the lifecycle of the WhatsApp connection: pairing,
// connecting, and fixed-backoff reconnects. Exactly one connect sequence
// runs at a time; concurrent callers await the in-flight attempt instead of
// dialing a second one.
type Session struct {
	cfg    config.SessionConfig
	logger *slog.Logger
	events chan Event

	mu         sync.Mutex
	current    *meowClient
	connecting chan struct{}
}

// NewSession creates a session manager. Nothing connects until the first
// Connect or Current call.
func NewSession(cfg config.SessionConfig, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the stream of translated protocol events. The channel is
// never closed; consumers stop via their own context.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect returns a connected client, establishing the connection if needed.
// Single-flight: when a connect is already in progress the caller waits for
// its outcome.
func (s *Session) Connect(ctx context.Context) (Client, error) {
	for {
		s.mu.Lock()
		if s.current != nil && s.current.IsConnected() {
			client := s.current
			s.mu.Unlock()
			return client, nil
		}
		if s.connecting != nil {
			wait := s.connecting
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		s.connecting = done
		s.mu.Unlock()

		client, err := s.dial(ctx)

		s.mu.Lock()
		if err == nil {
			s.current = client
		}
		s.connecting = nil
		close(done)
		s.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Current returns the live client, waiting for any in-flight connect and
// dialing if there is none.
func (s *Session) Current(ctx context.Context) (Client, error) {
	return s.Connect(ctx)
}

// Restart tears down the active connection and re-establishes it after the
// configured fixed delay. Used both for dropped sockets and for clean-slate
// recovery from processing faults.
func (s *Session) Restart(ctx context.Context) (Client, error) {
	s.mu.Lock()
	if s.current != nil {
		s.current.Disconnect()
		s.current = nil
	}
	s.mu.Unlock()

	s.logger.Info("Restarting session", "delay", s.cfg.ReconnectDelay)
	select {
	case <-time.After(s.cfg.ReconnectDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Connect(ctx)
}

// Close disconnects the active client, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Disconnect()
		s.current = nil
	}
}

func (s *Session) dial(ctx context.Context) (*meowClient, error) {
	client, err := newMeowClient(ctx, s.cfg.StorePath, s.cfg.SendRate, s.cfg.SendBurst, s.logger, s.events)
	if err != nil {
		return nil, err
	}
	if err := client.connect(ctx); err != nil {
		return nil, fmt.Errorf("session connect: %w", err)
	}
	s.logger.Info("Session connected", "bot_id", client.BotID())
	return client, nil
}
