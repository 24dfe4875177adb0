package bot

import (
	"github.com/lucasvml/wishbot/internal/whatsapp"
)

// pendingQueue buffers group events that arrive before the initial sync
// finishes. Duplicate occurrences of the same logical event keep their
// original queue position but carry the most recent payload, so replayed
// history collapses into one entry per membership change.
type pendingQueue struct {
	order   []string
	entries map[string]whatsapp.Event
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{entries: make(map[string]whatsapp.Event)}
}

func queueKey(ev whatsapp.Event) (string, bool) {
	switch e := ev.(type) {
	case *whatsapp.MemberEvent:
		first := ""
		if len(e.UserIDs) > 0 {
			first = e.UserIDs[0]
		}
		return string(e.Action) + "|" + e.GroupID + "|" + first, true
	case *whatsapp.JoinedGroupEvent:
		return "joined|" + e.Group.ID, true
	}
	return "", false
}

// Push stores the event if it is queueable and reports whether it was.
func (q *pendingQueue) Push(ev whatsapp.Event) bool {
	key, ok := queueKey(ev)
	if !ok {
		return false
	}
	if _, exists := q.entries[key]; !exists {
		q.order = append(q.order, key)
	}
	q.entries[key] = ev
	return true
}

func (q *pendingQueue) Len() int {
	return len(q.order)
}

// Drain returns the queued events in arrival order and empties the queue.
func (q *pendingQueue) Drain() []whatsapp.Event {
	out := make([]whatsapp.Event, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.entries[key])
	}
	q.order = nil
	q.entries = make(map[string]whatsapp.Event)
	return out
}
