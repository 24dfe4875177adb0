package moderation

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasvml/wishbot/internal/database"
)

func newTestEngine(t *testing.T) (*Engine, database.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, slog.Default())
	return NewEngine(store, slog.Default()), store
}

func TestIsBlacklisted(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)

	group := &database.Group{
		ID:       "1@g.us",
		Settings: database.DefaultGroupSettings(),
	}
	group.Settings.Blacklist = []string{"5511999990000@s.whatsapp.net"}

	// All aliases of the blacklisted identity match.
	for _, alias := range []string{
		"5511999990000@s.whatsapp.net",
		"5511999990000:12@s.whatsapp.net",
		"5511999990000@c.us",
		"5511999990000",
	} {
		if !engine.IsBlacklisted(group, alias) {
			t.Errorf("IsBlacklisted(%q) = false, want true", alias)
		}
	}

	if engine.IsBlacklisted(group, "5511888880000") {
		t.Error("unrelated user reported as blacklisted")
	}
	if engine.IsBlacklisted(nil, "5511999990000") {
		t.Error("nil group reported as blacklisted")
	}
}

func TestAntiFakeAllowed(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	botID := "5511000000001@s.whatsapp.net"

	group := &database.Group{
		ID:       "1@g.us",
		Settings: database.DefaultGroupSettings(),
	}
	group.Settings.AntiFake.Enabled = true
	group.Settings.AntiFake.AllowedPrefixes = []string{"55"}
	group.Settings.AntiFake.AllowedIDs = []string{"15550001111@s.whatsapp.net"}

	tests := []struct {
		name    string
		userID  string
		isAdmin bool
		want    bool
	}{
		{name: "matching prefix", userID: "5521987654321@s.whatsapp.net", want: true},
		{name: "matching prefix via alias", userID: "5521987654321:9@s.whatsapp.net", want: true},
		{name: "foreign prefix", userID: "14155550123@s.whatsapp.net", want: false},
		{name: "foreign prefix but explicit exception", userID: "15550001111@s.whatsapp.net", want: true},
		{name: "foreign prefix but group admin", userID: "14155550999@s.whatsapp.net", isAdmin: true, want: true},
		{name: "the bot itself", userID: botID, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := engine.AntiFakeAllowed(group, tc.userID, botID, tc.isAdmin)
			if got != tc.want {
				t.Errorf("AntiFakeAllowed(%q) = %v, want %v", tc.userID, got, tc.want)
			}
		})
	}

	disabled := &database.Group{ID: "2@g.us", Settings: database.DefaultGroupSettings()}
	if !engine.AntiFakeAllowed(disabled, "14155550123", botID, false) {
		t.Error("anti-fake disabled but user not allowed")
	}
}

func TestContainsForbiddenLink(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)

	group := &database.Group{
		ID:       "1@g.us",
		Settings: database.DefaultGroupSettings(),
	}
	group.Settings.AntiLink.Enabled = true
	group.Settings.AntiLink.AllowedDomains = []string{"example.com"}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "plain text", text: "no links here", want: false},
		{name: "foreign link", text: "check https://spam.io/offer now", want: true},
		{name: "bare www link", text: "go to www.spam.io", want: true},
		{name: "allowed domain", text: "see https://example.com/docs", want: false},
		{name: "allowed subdomain", text: "see https://docs.example.com/a?b=c", want: false},
		{name: "lookalike domain", text: "see https://evilexample.com", want: true},
		{name: "mixed links", text: "https://example.com and http://spam.io", want: true},
		{name: "host with port", text: "http://spam.io:8080", want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := engine.ContainsForbiddenLink(group, tc.text); got != tc.want {
				t.Errorf("ContainsForbiddenLink(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}

	disabled := &database.Group{ID: "2@g.us", Settings: database.DefaultGroupSettings()}
	if engine.ContainsForbiddenLink(disabled, "https://spam.io") {
		t.Error("anti-link disabled but link reported")
	}
}

func TestEnsureAntiFakeEnforceable(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	group := &database.Group{ID: "10@g.us"}
	if _, err := store.RegisterGroup(ctx, group); err != nil {
		t.Fatalf("RegisterGroup failed: %v", err)
	}
	if err := store.UpdateGroupSettings(ctx, group.ID, func(s *database.GroupSettings) {
		s.AntiFake.Enabled = true
	}); err != nil {
		t.Fatalf("UpdateGroupSettings failed: %v", err)
	}
	group, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}

	// Bot holds admin rights: enforcement proceeds.
	ok, err := engine.EnsureAntiFakeEnforceable(ctx, group, true)
	if err != nil {
		t.Fatalf("EnsureAntiFakeEnforceable failed: %v", err)
	}
	if !ok {
		t.Error("enforcement blocked despite bot admin rights")
	}

	// Bot lacks admin rights: rule fails open and is persisted disabled.
	ok, err = engine.EnsureAntiFakeEnforceable(ctx, group, false)
	if err != nil {
		t.Fatalf("EnsureAntiFakeEnforceable failed: %v", err)
	}
	if ok {
		t.Error("enforcement allowed without bot admin rights")
	}
	if group.Settings.AntiFake.Enabled {
		t.Error("in-memory group still has anti-fake enabled")
	}

	stored, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if stored.Settings.AntiFake.Enabled {
		t.Error("anti-fake still enabled in store after fail-open")
	}
}

func TestRecordMessageFloodWindow(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	groupID := "20@g.us"
	userID := "5511777776666@s.whatsapp.net"
	if _, err := store.RegisterGroup(ctx, &database.Group{ID: groupID}); err != nil {
		t.Fatalf("RegisterGroup failed: %v", err)
	}
	if err := store.UpdateGroupSettings(ctx, groupID, func(s *database.GroupSettings) {
		s.AntiFlood.Enabled = true
		s.AntiFlood.MaxMessages = 3
		s.AntiFlood.WindowSeconds = 10
	}); err != nil {
		t.Fatalf("UpdateGroupSettings failed: %v", err)
	}
	if _, err := store.AddParticipant(ctx, groupID, userID, false); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	participant, err := store.GetParticipant(ctx, groupID, userID)
	if err != nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	clock := base
	engine.now = func() time.Time { return clock }

	// Three messages inside the window stay under the boundary.
	for i := 0; i < 3; i++ {
		flooded, err := engine.RecordMessage(ctx, group, participant)
		if err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
		if flooded {
			t.Fatalf("message %d flagged as flood below the limit", i+1)
		}
	}

	// The fourth crosses it.
	flooded, err := engine.RecordMessage(ctx, group, participant)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	if !flooded {
		t.Error("boundary crossing not reported")
	}

	// Past the window the counter resets.
	clock = base.Add(11 * time.Second)
	flooded, err = engine.RecordMessage(ctx, group, participant)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	if flooded {
		t.Error("fresh window still reported as flood")
	}
	if participant.FloodCount != 1 {
		t.Errorf("count after window reset = %d, want 1", participant.FloodCount)
	}

	// Disabled rule never reports.
	group.Settings.AntiFlood.Enabled = false
	for i := 0; i < 10; i++ {
		flooded, err := engine.RecordMessage(ctx, group, participant)
		if err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
		if flooded {
			t.Fatal("disabled anti-flood reported a flood")
		}
	}
}

func TestAllowCommandRateLimit(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	userID := "5511666665555@s.whatsapp.net"
	if err := store.RegisterUser(ctx, userID, "Bob"); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}

	rate := database.CommandRate{
		Enabled:       true,
		MaxCommands:   5,
		IntervalSecs:  60,
		BlockTimeSecs: 60,
	}

	base := time.Unix(1_700_000_000, 0)
	clock := base
	engine.now = func() time.Time { return clock }

	// Five commands inside ten seconds go through.
	for i := 0; i < 5; i++ {
		clock = base.Add(time.Duration(i*2) * time.Second)
		verdict, err := engine.AllowCommand(ctx, user, rate)
		if err != nil {
			t.Fatalf("AllowCommand failed: %v", err)
		}
		if !verdict.Allowed {
			t.Fatalf("command %d rejected below the limit", i+1)
		}
	}

	// The sixth trips the limit.
	verdict, err := engine.AllowCommand(ctx, user, rate)
	if err != nil {
		t.Fatalf("AllowCommand failed: %v", err)
	}
	if verdict.Allowed || !verdict.JustLimited {
		t.Fatalf("sixth command verdict = %+v, want just-limited rejection", verdict)
	}

	// Further attempts while blocked are rejected without the notice flag.
	verdict, err = engine.AllowCommand(ctx, user, rate)
	if err != nil {
		t.Fatalf("AllowCommand failed: %v", err)
	}
	if verdict.Allowed || verdict.JustLimited {
		t.Fatalf("blocked command verdict = %+v, want plain rejection", verdict)
	}

	// After the block elapses the window resets to count=1.
	clock = clock.Add(61 * time.Second)
	verdict, err = engine.AllowCommand(ctx, user, rate)
	if err != nil {
		t.Fatalf("AllowCommand failed: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("post-block command rejected: %+v", verdict)
	}
	if user.RateCount != 1 {
		t.Errorf("window count after block = %d, want 1", user.RateCount)
	}

	// Disabled policy allows everything.
	for i := 0; i < 20; i++ {
		verdict, err := engine.AllowCommand(ctx, user, database.CommandRate{})
		if err != nil {
			t.Fatalf("AllowCommand failed: %v", err)
		}
		if !verdict.Allowed {
			t.Fatal("disabled rate limit rejected a command")
		}
	}
}
