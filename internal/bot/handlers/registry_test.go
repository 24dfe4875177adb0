package handlers

import (
	"io"
	"log/slog"
	"testing"
)

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()

	deps := HandlerDeps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	commands := RegisterAllCommands(deps)

	wantCategory := map[string]Category{
		"ping":      CategoryInfo,
		"info":      CategoryInfo,
		"profile":   CategoryInfo,
		"price":     CategoryUtility,
		"ask":       CategoryUtility,
		"sticker":   CategorySticker,
		"image":     CategoryDownload,
		"menu":      CategoryMisc,
		"welcome":   CategoryGroup,
		"antifake":  CategoryGroup,
		"antilink":  CategoryGroup,
		"antiflood": CategoryGroup,
		"blacklist": CategoryGroup,
		"mute":      CategoryGroup,
		"warn":      CategoryGroup,
		"prefix":    CategoryAdmin,
		"ratelimit": CategoryAdmin,
		"broadcast": CategoryAdmin,
	}
	for name, category := range wantCategory {
		cmd, ok := commands[name]
		if !ok {
			t.Errorf("command %q not registered", name)
			continue
		}
		if cmd.Category != category {
			t.Errorf("command %q category = %q, want %q", name, cmd.Category, category)
		}
		if cmd.Handler == nil {
			t.Errorf("command %q has no handler", name)
		}
	}

	for name, cmd := range commands {
		if name != cmd.Name {
			t.Errorf("registry key %q does not match command name %q", name, cmd.Name)
		}
		if cmd.Description == "" {
			t.Errorf("command %q has no description", name)
		}
	}
}

func TestTargetUser(t *testing.T) {
	t.Parallel()

	req := &Request{Command: "warn", Prefix: "!"}

	if _, err := req.TargetUser(); err == nil {
		t.Fatal("expected usage error without arguments")
	}

	req.Args = []string{"@5511999990000"}
	target, err := req.TargetUser()
	if err != nil {
		t.Fatalf("TargetUser failed: %v", err)
	}
	if target != "5511999990000@s.whatsapp.net" {
		t.Fatalf("unexpected target %q", target)
	}

	req.Args = []string{"+55 11 99999-0000"}
	target, err = req.TargetUser()
	if err != nil {
		t.Fatalf("TargetUser failed: %v", err)
	}
	if target != "5511999990000@s.whatsapp.net" {
		t.Fatalf("unexpected target %q", target)
	}

	req.Args = []string{"@nonsense"}
	if _, err := req.TargetUser(); err == nil {
		t.Fatal("expected usage error for non-numeric target")
	}
}
