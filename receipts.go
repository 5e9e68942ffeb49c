package openline

import (
	"context"
	"fmt"
	"sync"
)

// ============================================================================
// Read Receipt Tracker
// ============================================================================

// ReadReceiptTracker maintains per-message read receipts for one
// conversation. Each message holds at most one receipt per user: a later
// receipt from the same user updates ReadAt in place, keeping the user's
// original arrival position.
type ReadReceiptTracker struct {
	conn Conn
	me   Identity

	mu             sync.Mutex
	enabled        bool
	conversationID string
	// receipts per message, in first-arrival order per user
	byMessage map[string][]ReadReceipt
	// messageID → userID → index into byMessage[messageID]
	position map[string]map[string]int
	subs     []*Subscription
}

// NewReadReceiptTracker creates a tracker bound to the given connection
// and local identity.
func NewReadReceiptTracker(conn Conn, me Identity) *ReadReceiptTracker {
	return &ReadReceiptTracker{conn: conn, me: me}
}

// Activate starts tracking read receipts for a conversation, discarding
// any prior state.
func (t *ReadReceiptTracker) Activate(ctx context.Context, conversationID string) error {
	t.Deactivate()

	t.mu.Lock()
	t.enabled = true
	t.conversationID = conversationID
	t.byMessage = make(map[string][]ReadReceipt)
	t.position = make(map[string]map[string]int)
	t.mu.Unlock()

	// Subscribe outside the lock: registration takes the dispatcher
	// lock, and dispatch holds it while calling handlers that take t.mu.
	sub := t.conn.OnMessageRead(func(ev MessageReadEvent) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.enabled {
			return
		}
		t.upsert(ev.MessageID, ev.ReadReceipt)
	})
	t.track(sub)

	return nil
}

// track records a subscription for cancellation on Deactivate.
func (t *ReadReceiptTracker) track(sub *Subscription) {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		sub.Cancel()
		return
	}
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
}

// Deactivate stops tracking and discards all state.
func (t *ReadReceiptTracker) Deactivate() {
	t.mu.Lock()
	t.enabled = false
	t.conversationID = ""
	t.byMessage = nil
	t.position = nil
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// upsert records a receipt. Caller holds t.mu.
func (t *ReadReceiptTracker) upsert(messageID string, r ReadReceipt) {
	users, ok := t.position[messageID]
	if !ok {
		users = make(map[string]int)
		t.position[messageID] = users
	}
	if i, had := users[r.UserID]; had {
		t.byMessage[messageID][i].ReadAt = r.ReadAt
		t.byMessage[messageID][i].UserName = r.UserName
		return
	}
	users[r.UserID] = len(t.byMessage[messageID])
	t.byMessage[messageID] = append(t.byMessage[messageID], r)
}

// Receipts returns a copy of a message's read receipts in arrival order.
// Unknown message ids yield an empty slice.
func (t *ReadReceiptTracker) Receipts(messageID string) []ReadReceipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.byMessage[messageID]
	out := make([]ReadReceipt, len(list))
	copy(out, list)
	return out
}

// HasRead reports whether a user has read a message.
func (t *ReadReceiptTracker) HasRead(messageID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.position[messageID]
	if !ok {
		return false
	}
	_, read := users[userID]
	return read
}

// MarkAsRead reports the bound identity's read of a message. No-op while
// inactive or disconnected.
func (t *ReadReceiptTracker) MarkAsRead(ctx context.Context, messageID string) error {
	t.mu.Lock()
	enabled := t.enabled
	conversationID := t.conversationID
	t.mu.Unlock()

	if !enabled || !t.conn.IsConnected() {
		return nil
	}
	return t.conn.MarkMessageAsRead(ctx, messageID, conversationID, t.me.UserID, t.me.UserName)
}

// ReadStatusText renders a receipt list as a display string:
//
//	nobody        → ""
//	one reader    → "Read by Ada"
//	two readers   → "Read by Ada and Grace"
//	three or more → "Read by Ada and 2 others"
func ReadStatusText(receipts []ReadReceipt) string {
	switch len(receipts) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Read by %s", receipts[0].UserName)
	case 2:
		return fmt.Sprintf("Read by %s and %s", receipts[0].UserName, receipts[1].UserName)
	default:
		return fmt.Sprintf("Read by %s and %d others", receipts[0].UserName, len(receipts)-1)
	}
}
