package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// CommandRate holds the process-wide command rate limit policy applied to
// non-admin users.
type CommandRate struct {
	Enabled       bool  `json:"enabled"`
	MaxCommands   int64 `json:"max_commands"`
	IntervalSecs  int64 `json:"interval_seconds"`
	BlockTimeSecs int64 `json:"block_time_seconds"`
}

// BotConfig is the process-wide singleton configuration. It lives in a JSON
// file next to the database so edits survive restarts and can be inspected
// by hand.
type BotConfig struct {
	Name         string      `json:"name"`
	Prefix       string      `json:"prefix"`
	StartedAt    int64       `json:"started_at"`
	ExecutedCmds int64       `json:"executed_cmds"`
	AutoSticker  bool        `json:"autosticker"`
	CommandsPV   bool        `json:"commands_pv"`
	AdminMode    bool        `json:"admin_mode"`
	BlockedCmds  []string    `json:"blocked_cmds"`
	CommandRate  CommandRate `json:"command_rate"`
}

// DefaultBotConfig returns the configuration used when no file exists yet.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Name:        "WishBot",
		Prefix:      "!",
		StartedAt:   time.Now().Unix(),
		CommandsPV:  true,
		BlockedCmds: []string{},
		CommandRate: CommandRate{
			Enabled:       false,
			MaxCommands:   5,
			IntervalSecs:  60,
			BlockTimeSecs: 60,
		},
	}
}

// BotConfigStore persists the BotConfig singleton. All methods are safe for
// concurrent use; every mutation is written through to disk atomically
// before returning.
type BotConfigStore struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	cfg BotConfig
}

// NewBotConfigStore loads the singleton from path, creating it with defaults
// when missing. Stored documents missing newer fields are merged over the
// defaults and written back, so the file heals itself across upgrades.
func NewBotConfigStore(path string, logger *slog.Logger) (*BotConfigStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BotConfigStore{
		path:   path,
		logger: logger.With("component", "botconfig"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BotConfigStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read bot config %s: %w", s.path, err)
		}
		s.cfg = DefaultBotConfig()
		s.logger.Info("Bot config not found, creating with defaults", "path", s.path)
		return s.writeLocked()
	}

	cfg := DefaultBotConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("failed to parse bot config %s: %w", s.path, err)
	}
	if cfg.BlockedCmds == nil {
		cfg.BlockedCmds = []string{}
	}
	s.cfg = cfg

	healed, err := json.MarshalIndent(cfg, "", "  ")
	if err == nil && string(healed) != strings.TrimSpace(string(raw)) {
		if err := s.writeLocked(); err != nil {
			s.logger.Warn("Failed to persist healed bot config", "error", err)
		}
	}
	return nil
}

// writeLocked persists the cached config atomically: write to a temp file in
// the same directory, then rename over the target. Callers must hold mu.
func (s *BotConfigStore) writeLocked() error {
	raw, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bot config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace bot config %s: %w", s.path, err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (s *BotConfigStore) Get() BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.BlockedCmds = slices.Clone(s.cfg.BlockedCmds)
	return cfg
}

// Update applies mutate to the configuration and persists the result.
func (s *BotConfigStore) Update(mutate func(*BotConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutate(&s.cfg)
	if s.cfg.BlockedCmds == nil {
		s.cfg.BlockedCmds = []string{}
	}
	return s.writeLocked()
}

// SetPrefix changes the command prefix.
func (s *BotConfigStore) SetPrefix(prefix string) error {
	return s.Update(func(cfg *BotConfig) { cfg.Prefix = prefix })
}

// SetAutoSticker toggles global auto-sticker conversion.
func (s *BotConfigStore) SetAutoSticker(enabled bool) error {
	return s.Update(func(cfg *BotConfig) { cfg.AutoSticker = enabled })
}

// SetCommandsPV toggles whether commands are accepted in private chats.
func (s *BotConfigStore) SetCommandsPV(enabled bool) error {
	return s.Update(func(cfg *BotConfig) { cfg.CommandsPV = enabled })
}

// SetAdminMode toggles admin-only command handling.
func (s *BotConfigStore) SetAdminMode(enabled bool) error {
	return s.Update(func(cfg *BotConfig) { cfg.AdminMode = enabled })
}

// SetCommandRate replaces the global command rate policy.
func (s *BotConfigStore) SetCommandRate(rate CommandRate) error {
	return s.Update(func(cfg *BotConfig) { cfg.CommandRate = rate })
}

// BlockCommand adds a command name to the global block list. Returns true if
// it was not blocked before.
func (s *BotConfigStore) BlockCommand(name string) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false, nil
	}

	added := false
	err := s.Update(func(cfg *BotConfig) {
		if !slices.Contains(cfg.BlockedCmds, name) {
			cfg.BlockedCmds = append(cfg.BlockedCmds, name)
			added = true
		}
	})
	return added, err
}

// UnblockCommand removes a command name from the global block list. Returns
// true if it was present.
func (s *BotConfigStore) UnblockCommand(name string) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	removed := false
	err := s.Update(func(cfg *BotConfig) {
		if idx := slices.Index(cfg.BlockedCmds, name); idx >= 0 {
			cfg.BlockedCmds = slices.Delete(cfg.BlockedCmds, idx, idx+1)
			removed = true
		}
	})
	return removed, err
}

// IsCommandBlocked reports whether a command name is globally blocked.
func (s *BotConfigStore) IsCommandBlocked(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.cfg.BlockedCmds, name)
}

// IncrementExecuted bumps the global executed command counter.
func (s *BotConfigStore) IncrementExecuted() error {
	return s.Update(func(cfg *BotConfig) { cfg.ExecutedCmds++ })
}

// MarkStarted records a fresh session start time.
func (s *BotConfigStore) MarkStarted() error {
	return s.Update(func(cfg *BotConfig) { cfg.StartedAt = time.Now().Unix() })
}
