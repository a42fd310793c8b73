package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/momnect/chatlink/internal/model"
)

// DefaultDedupeWindow bounds how far apart in send time a pending entry and
// a gateway echo may be and still be considered the same message. Pragmatic,
// not protocol-guaranteed; override it via NewTimeline when the gateway's
// latency profile differs.
const DefaultDedupeWindow = 5 * time.Second

// Timeline is the merged view of one conversation: confirmed messages from
// the gateway plus optimistic pending entries from local sends, always sorted
// by SentAt ascending.
type Timeline struct {
	selfID string
	window time.Duration

	mu   sync.Mutex
	msgs []model.Message
}

// NewTimeline creates a Timeline for the given local user. A non-positive
// window falls back to DefaultDedupeWindow.
func NewTimeline(selfID string, window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Timeline{
		selfID: selfID,
		window: window,
	}
}

// Load replaces the timeline contents with fetched history, sorted.
func (t *Timeline) Load(history []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.msgs = make([]model.Message, len(history))
	copy(t.msgs, history)
	t.sortLocked()
}

// AppendPending inserts an optimistic entry for a local send and returns it.
// The entry carries a locally-generated id and Pending=true; it stays until
// the gateway echo replaces it via Apply or a failed send removes it via
// RemovePending. Every pending entry resolves exactly one of those two ways.
func (t *Timeline) AppendPending(roomID, senderName, content string) model.Message {
	msg := model.Message{
		ID:         model.NewPendingID(),
		RoomID:     roomID,
		SenderID:   t.selfID,
		SenderName: senderName,
		Content:    content,
		Type:       model.TypeText,
		SentAt:     time.Now(),
		Pending:    true,
	}

	t.mu.Lock()
	t.msgs = append(t.msgs, msg)
	t.sortLocked()
	t.mu.Unlock()

	return msg
}

// Apply merges one inbound message into the timeline:
//
//  1. a message whose id is already present is a duplicate delivery, dropped;
//  2. a pending entry with the same content, same sender, and a send time
//     within the dedupe window is replaced by the confirmed message;
//  3. failing that, an echo of the local user's own send collapses all of
//     this user's pending entries (the window missed) and is appended;
//  4. anything else is a remote message, appended as-is.
//
// The list is re-sorted by SentAt after every insertion; network delivery
// order is not assumed chronological.
//
// Only the local sender's pending entries are ever collapsed: remote parties
// never create pending entries, so the asymmetry is inherent, not a policy
// choice to revisit.
func (t *Timeline) Apply(in model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.msgs {
		if existing.ID == in.ID {
			return
		}
	}

	for i, existing := range t.msgs {
		if !existing.Pending {
			continue
		}
		if existing.Content != in.Content || existing.SenderID != in.SenderID {
			continue
		}
		if absDuration(existing.SentAt.Sub(in.SentAt)) >= t.window {
			continue
		}

		t.msgs[i] = in
		t.sortLocked()
		return
	}

	if in.SenderID == t.selfID {
		kept := t.msgs[:0]
		for _, existing := range t.msgs {
			if !existing.Pending {
				kept = append(kept, existing)
			}
		}
		t.msgs = kept
	}

	t.msgs = append(t.msgs, in)
	t.sortLocked()
}

// RemovePending drops the pending entry with the given id after a failed
// send. Returns false when no such pending entry exists.
func (t *Timeline) RemovePending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, existing := range t.msgs {
		if existing.ID == id && existing.Pending {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a copy of the merged, sorted conversation.
func (t *Timeline) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// PendingCount returns how many entries are still awaiting confirmation.
func (t *Timeline) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, msg := range t.msgs {
		if msg.Pending {
			n++
		}
	}
	return n
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].SentAt.Before(t.msgs[j].SentAt)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
