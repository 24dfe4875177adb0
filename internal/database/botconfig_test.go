package database

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBotConfigDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.json")
	store, err := NewBotConfigStore(path, nil)
	if err != nil {
		t.Fatalf("NewBotConfigStore failed: %v", err)
	}

	cfg := store.Get()
	if cfg.Prefix != "!" {
		t.Errorf("default prefix = %q, want %q", cfg.Prefix, "!")
	}
	if !cfg.CommandsPV {
		t.Error("commands in private chats disabled by default")
	}
	if cfg.CommandRate.MaxCommands != 5 || cfg.CommandRate.IntervalSecs != 60 {
		t.Errorf("default command rate = %+v", cfg.CommandRate)
	}

	// Defaults are written to disk on first load.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestBotConfigPersistence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.json")
	store, err := NewBotConfigStore(path, nil)
	if err != nil {
		t.Fatalf("NewBotConfigStore failed: %v", err)
	}

	if err := store.SetPrefix("#"); err != nil {
		t.Fatalf("SetPrefix failed: %v", err)
	}
	if err := store.SetAdminMode(true); err != nil {
		t.Fatalf("SetAdminMode failed: %v", err)
	}
	if _, err := store.BlockCommand("Sticker"); err != nil {
		t.Fatalf("BlockCommand failed: %v", err)
	}

	// A fresh store over the same file sees the mutations.
	reopened, err := NewBotConfigStore(path, nil)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	cfg := reopened.Get()
	if cfg.Prefix != "#" || !cfg.AdminMode {
		t.Errorf("mutations lost across reopen: prefix=%q admin_mode=%v", cfg.Prefix, cfg.AdminMode)
	}
	if !reopened.IsCommandBlocked("sticker") {
		t.Error("blocked command lost across reopen (name should be lowercased)")
	}
}

func TestBotConfigHealsPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.json")
	if err := os.WriteFile(path, []byte(`{"prefix":"/"}`), 0o644); err != nil {
		t.Fatalf("failed to seed partial config: %v", err)
	}

	store, err := NewBotConfigStore(path, nil)
	if err != nil {
		t.Fatalf("NewBotConfigStore failed: %v", err)
	}

	cfg := store.Get()
	if cfg.Prefix != "/" {
		t.Errorf("stored prefix lost: %q", cfg.Prefix)
	}
	if cfg.CommandRate.MaxCommands != 5 {
		t.Errorf("default command rate not merged in: %+v", cfg.CommandRate)
	}
	if cfg.BlockedCmds == nil {
		t.Error("blocked command list not initialized")
	}

	// The merged document was written back out.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read healed config: %v", err)
	}
	var onDisk BotConfig
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("healed config is not valid JSON: %v", err)
	}
	if onDisk.CommandRate.MaxCommands != 5 {
		t.Errorf("healed file missing defaults: %+v", onDisk.CommandRate)
	}
}

func TestBotConfigBlockUnblock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.json")
	store, err := NewBotConfigStore(path, nil)
	if err != nil {
		t.Fatalf("NewBotConfigStore failed: %v", err)
	}

	added, err := store.BlockCommand("ping")
	if err != nil || !added {
		t.Fatalf("BlockCommand = (%v, %v), want (true, nil)", added, err)
	}
	added, err = store.BlockCommand("ping")
	if err != nil || added {
		t.Fatalf("duplicate BlockCommand = (%v, %v), want (false, nil)", added, err)
	}

	removed, err := store.UnblockCommand("PING")
	if err != nil || !removed {
		t.Fatalf("UnblockCommand = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = store.UnblockCommand("ping")
	if err != nil || removed {
		t.Fatalf("second UnblockCommand = (%v, %v), want (false, nil)", removed, err)
	}

	if store.IsCommandBlocked("ping") {
		t.Error("command still blocked after unblock")
	}
}
