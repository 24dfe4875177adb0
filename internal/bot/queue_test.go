package bot

import (
	"testing"

	"github.com/lucasvml/wishbot/internal/whatsapp"
)

func TestPendingQueueDedup(t *testing.T) {
	t.Parallel()

	q := newPendingQueue()

	first := &whatsapp.MemberEvent{
		GroupID: "123@g.us",
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{"5511999990000@s.whatsapp.net"},
	}
	if !q.Push(first) {
		t.Fatal("expected member event to be queued")
	}
	q.Push(&whatsapp.MemberEvent{
		GroupID: "123@g.us",
		Action:  whatsapp.MemberRemove,
		UserIDs: []string{"5511999990000@s.whatsapp.net"},
	})
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued events, got %d", q.Len())
	}

	// Same action, group and first user replaces the entry in place.
	replacement := &whatsapp.MemberEvent{
		GroupID: "123@g.us",
		Action:  whatsapp.MemberAdd,
		UserIDs: []string{"5511999990000@s.whatsapp.net", "5511888880000@s.whatsapp.net"},
	}
	q.Push(replacement)
	if q.Len() != 2 {
		t.Fatalf("expected replacement to keep length 2, got %d", q.Len())
	}

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(drained))
	}
	got, ok := drained[0].(*whatsapp.MemberEvent)
	if !ok || got != replacement {
		t.Fatalf("expected first drained event to be the replacement, got %#v", drained[0])
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain, got %d", q.Len())
	}
}

func TestPendingQueueJoinedGroup(t *testing.T) {
	t.Parallel()

	q := newPendingQueue()
	q.Push(&whatsapp.JoinedGroupEvent{Group: whatsapp.GroupSnapshot{ID: "123@g.us"}})
	q.Push(&whatsapp.JoinedGroupEvent{Group: whatsapp.GroupSnapshot{ID: "123@g.us", Name: "updated"}})
	q.Push(&whatsapp.JoinedGroupEvent{Group: whatsapp.GroupSnapshot{ID: "456@g.us"}})

	if q.Len() != 2 {
		t.Fatalf("expected 2 queued events, got %d", q.Len())
	}
	drained := q.Drain()
	first := drained[0].(*whatsapp.JoinedGroupEvent)
	if first.Group.Name != "updated" {
		t.Fatalf("expected latest payload for duplicate key, got %q", first.Group.Name)
	}
}

func TestPendingQueueRejectsMessages(t *testing.T) {
	t.Parallel()

	q := newPendingQueue()
	if q.Push(&whatsapp.MessageEvent{ChatID: "123@g.us"}) {
		t.Fatal("message events must not be queued")
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}
