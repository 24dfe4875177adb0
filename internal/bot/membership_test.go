package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

func TestMemberAddRegistersAndWelcomes(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, func(s *database.GroupSettings) {
		s.Welcome.Enabled = true
		s.Welcome.Message = "Hello {{user}}, read the rules!"
	})

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{"5511999990000:12@s.whatsapp.net"},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	if p := mustGetParticipant(t, store, testGroupID, testUserID); p == nil {
		t.Fatal("expected participant row for added member")
	}
	sent := client.lastText(t)
	if !strings.Contains(sent.Text, "@5511999990000") {
		t.Fatalf("welcome message missing mention: %q", sent.Text)
	}
	if len(sent.Mentions) != 1 || sent.Mentions[0] != testUserID {
		t.Fatalf("unexpected welcome mentions: %v", sent.Mentions)
	}

	// Duplicate add is a no-op; no second welcome.
	before := len(client.texts)
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("duplicate handleMemberEvent failed: %v", err)
	}
	if len(client.texts) != before {
		t.Fatalf("duplicate add sent %d extra messages", len(client.texts)-before)
	}
}

func TestMemberAddBlacklistedIsExpelled(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, true, func(s *database.GroupSettings) {
		s.Blacklist = append(s.Blacklist, testUserID)
	})

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	if len(client.removed) != 1 || client.removed[0] != testGroupID+"|"+testUserID {
		t.Fatalf("expected blacklist removal, got %v", client.removed)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); p != nil {
		t.Fatal("blacklisted member must not get a participant row")
	}
	if sent := client.lastText(t); !strings.Contains(sent.Text, "blacklisted") {
		t.Fatalf("unexpected notice: %q", sent.Text)
	}
}

func TestMemberAddBlacklistedWithoutAdminIsAdmitted(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, func(s *database.GroupSettings) {
		s.Blacklist = append(s.Blacklist, testUserID)
	})

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	if len(client.removed) != 0 {
		t.Fatalf("bot without admin rights must not remove anyone, got %v", client.removed)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); p == nil {
		t.Fatal("member should be tracked when the blacklist is unenforceable")
	}
}

func TestWelcomeMarksKnownUser(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, func(s *database.GroupSettings) {
		s.Welcome.Enabled = true
	})
	if err := store.RegisterUser(ctx, testUserID, "Alice"); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	user, err := store.GetUser(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !user.ReceivedWelcome {
		t.Fatal("expected the delivered welcome to be recorded on the user")
	}
}

func TestMemberAddAntiFake(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, true, func(s *database.GroupSettings) {
		s.AntiFake.Enabled = true
	})

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{foreignID, testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	if len(client.removed) != 1 || client.removed[0] != testGroupID+"|"+foreignID {
		t.Fatalf("expected foreign number removal, got %v", client.removed)
	}
	if p := mustGetParticipant(t, store, testGroupID, foreignID); p != nil {
		t.Fatal("foreign number must not get a participant row")
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); p == nil {
		t.Fatal("allowed-prefix member should have been added")
	}
}

func TestMemberAddAntiFakeFailsOpenWithoutAdmin(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, func(s *database.GroupSettings) {
		s.AntiFake.Enabled = true
	})

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{foreignID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	if len(client.removed) != 0 {
		t.Fatalf("bot without admin rights must not remove anyone, got %v", client.removed)
	}
	if p := mustGetParticipant(t, store, testGroupID, foreignID); p == nil {
		t.Fatal("member should be admitted when anti-fake is unenforceable")
	}

	group, err := store.GetGroup(ctx, testGroupID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if group.Settings.AntiFake.Enabled {
		t.Fatal("anti-fake should have been disabled and persisted")
	}
}

func TestMemberRemove(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, nil)
	if _, err := store.AddParticipant(ctx, testGroupID, testUserID, false); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberRemove,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); p != nil {
		t.Fatal("participant row should be gone after remove")
	}

	// Removing someone who was never tracked is a no-op.
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("repeat remove failed: %v", err)
	}
}

func TestBotRemovalDeletesGroup(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, nil)

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberRemove,
		UserIDs: []string{testBotID},
	}
	if err := b.handleMemberEvent(ctx, client, ev); err != nil {
		t.Fatalf("handleMemberEvent failed: %v", err)
	}

	group, err := store.GetGroup(ctx, testGroupID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if group != nil {
		t.Fatal("group state should be deleted when the bot is removed")
	}
}

func TestMemberPromoteDemote(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()
	client := newFakeClient()

	seedGroup(t, store, testGroupID, false, nil)
	if _, err := store.AddParticipant(ctx, testGroupID, testUserID, false); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	promote := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberPromote,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, promote); err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); !p.Admin {
		t.Fatal("expected admin flag after promote")
	}
	// Repeated promote is idempotent.
	if err := b.handleMemberEvent(ctx, client, promote); err != nil {
		t.Fatalf("repeat promote failed: %v", err)
	}

	demote := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberDemote,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(ctx, client, demote); err != nil {
		t.Fatalf("demote failed: %v", err)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID); p.Admin {
		t.Fatal("expected admin flag cleared after demote")
	}

	// Promote for a member without a row still creates it.
	promote.UserIDs = []string{testUserID2}
	if err := b.handleMemberEvent(ctx, client, promote); err != nil {
		t.Fatalf("promote of unknown member failed: %v", err)
	}
	if p := mustGetParticipant(t, store, testGroupID, testUserID2); p == nil || !p.Admin {
		t.Fatal("expected admin row created by promote")
	}
}

func TestMemberEventForUnknownGroupIsDiscarded(t *testing.T) {
	t.Parallel()

	b, _ := newTestBot(t)
	client := newFakeClient()

	ev := &whatsapp.MemberEvent{
		GroupID: testGroupID,
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{testUserID},
	}
	if err := b.handleMemberEvent(context.Background(), client, ev); err != nil {
		t.Fatalf("expected discard, got error: %v", err)
	}
	if len(client.texts) != 0 || len(client.removed) != 0 {
		t.Fatal("unknown group event must produce no protocol calls")
	}
}

func TestGroupMetaUpdate(t *testing.T) {
	t.Parallel()

	b, store := newTestBot(t)
	ctx := context.Background()

	seedGroup(t, store, testGroupID, false, nil)

	name := "Renamed"
	if err := b.handleGroupMeta(ctx, &whatsapp.GroupMetaEvent{GroupID: testGroupID, Name: &name}); err != nil {
		t.Fatalf("handleGroupMeta failed: %v", err)
	}
	group, err := store.GetGroup(ctx, testGroupID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if group.Name != "Renamed" {
		t.Fatalf("expected renamed group, got %q", group.Name)
	}

	// Unknown group: silently discarded.
	if err := b.handleGroupMeta(ctx, &whatsapp.GroupMetaEvent{GroupID: testGroupID2, Name: &name}); err != nil {
		t.Fatalf("expected discard, got error: %v", err)
	}
}
