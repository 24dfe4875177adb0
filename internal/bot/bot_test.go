package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/moderation"
	"github.com/lucasvml/wishbot/internal/whatsapp"

	_ "modernc.org/sqlite"
)

const (
	testGroupID  = "120363000000000001@g.us"
	testGroupID2 = "120363000000000002@g.us"
	testBotID    = "5511000000000@s.whatsapp.net"
	testUserID   = "5511999990000@s.whatsapp.net"
	testUserID2  = "5511888880000@s.whatsapp.net"
	foreignID    = "1415550000000@s.whatsapp.net"
)

type sentText struct {
	ChatID   string
	Text     string
	Mentions []string
}

// fakeClient records outbound protocol calls for assertions.
type fakeClient struct {
	botID      string
	texts      []sentText
	removed    []string
	groups     []whatsapp.GroupSnapshot
	failRemove map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{botID: testBotID, failRemove: map[string]bool{}}
}

func (c *fakeClient) BotID() string     { return c.botID }
func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) SendText(_ context.Context, chatID, text string, _ *whatsapp.SendOpts) error {
	c.texts = append(c.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (c *fakeClient) SendTextWithMentions(_ context.Context, chatID, text string, mentions []string, _ *whatsapp.SendOpts) error {
	c.texts = append(c.texts, sentText{ChatID: chatID, Text: text, Mentions: mentions})
	return nil
}

func (c *fakeClient) SendImageFromURL(context.Context, string, string, string, *whatsapp.SendOpts) error {
	return nil
}

func (c *fakeClient) SendSticker(context.Context, string, []byte, *whatsapp.SendOpts) error {
	return nil
}

func (c *fakeClient) DownloadImage(context.Context, *whatsapp.MessageEvent) ([]byte, error) {
	return nil, errors.New("no media in fake client")
}

func (c *fakeClient) AddParticipant(context.Context, string, string) error { return nil }

func (c *fakeClient) RemoveParticipant(_ context.Context, groupID, userID string) error {
	if c.failRemove[userID] {
		return errors.New("not authorized")
	}
	c.removed = append(c.removed, groupID+"|"+userID)
	return nil
}

func (c *fakeClient) PromoteParticipant(context.Context, string, string) error { return nil }
func (c *fakeClient) DemoteParticipant(context.Context, string, string) error  { return nil }

func (c *fakeClient) FetchAllGroups(context.Context) ([]whatsapp.GroupSnapshot, error) {
	return c.groups, nil
}

func (c *fakeClient) GroupInviteLink(context.Context, string, bool) (string, error) {
	return "https://chat.whatsapp.com/test", nil
}

func (c *fakeClient) LeaveGroup(context.Context, string) error { return nil }
func (c *fakeClient) Disconnect()                              {}

// lastText returns the most recent outbound message, failing when none was
// sent.
func (c *fakeClient) lastText(t *testing.T) sentText {
	t.Helper()
	if len(c.texts) == 0 {
		t.Fatal("expected an outbound message, got none")
	}
	return c.texts[len(c.texts)-1]
}

func newTestBot(t *testing.T) (*Bot, database.Store) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)

	botCfg, err := database.NewBotConfigStore(filepath.Join(dir, "bot.json"), logger)
	if err != nil {
		t.Fatalf("failed to create bot config store: %v", err)
	}

	b := &Bot{
		logger: logger,
		store:  store,
		botCfg: botCfg,
		engine: moderation.NewEngine(store, logger),
		queue:  newPendingQueue(),
	}
	return b, store
}

// seedGroup registers a group with the bot as a member and applies the given
// settings mutation.
func seedGroup(t *testing.T, store database.Store, groupID string, botIsAdmin bool, mutate func(*database.GroupSettings)) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.RegisterGroup(ctx, &database.Group{ID: groupID, Name: "Test Group"}); err != nil {
		t.Fatalf("failed to register group: %v", err)
	}
	if _, err := store.AddParticipant(ctx, groupID, testBotID, botIsAdmin); err != nil {
		t.Fatalf("failed to add bot participant: %v", err)
	}
	if mutate != nil {
		if err := store.UpdateGroupSettings(ctx, groupID, mutate); err != nil {
			t.Fatalf("failed to update group settings: %v", err)
		}
	}
}

func mustGetParticipant(t *testing.T, store database.Store, groupID, userID string) *database.Participant {
	t.Helper()
	p, err := store.GetParticipant(context.Background(), groupID, userID)
	if err != nil {
		t.Fatalf("failed to get participant: %v", err)
	}
	return p
}

func groupMessage(senderID, text string) *whatsapp.MessageEvent {
	return &whatsapp.MessageEvent{
		ChatID:   testGroupID,
		SenderID: senderID,
		Kind:     whatsapp.KindText,
		Text:     text,
		IsGroup:  true,
	}
}
