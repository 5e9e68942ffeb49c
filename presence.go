package openline

import (
	"context"
	"fmt"
	"sync"
)

// ============================================================================
// Presence Tracker
// ============================================================================

// PresenceTracker maintains the last-reported online state of every other
// participant in a conversation. Entries appear in first-seen order and a
// later update for the same user overwrites in place. The bound identity
// is never tracked; the local user's own presence is not part of the view.
type PresenceTracker struct {
	conn Conn
	me   Identity

	mu      sync.Mutex
	enabled bool
	order   []string
	entries map[string]PresenceEntry
	subs    []*Subscription
}

// NewPresenceTracker creates a tracker bound to the given connection and
// local identity.
func NewPresenceTracker(conn Conn, me Identity) *PresenceTracker {
	return &PresenceTracker{conn: conn, me: me}
}

// Activate starts tracking presence, discarding any prior state.
func (t *PresenceTracker) Activate(ctx context.Context) error {
	t.Deactivate()

	t.mu.Lock()
	t.enabled = true
	t.order = nil
	t.entries = make(map[string]PresenceEntry)
	t.mu.Unlock()

	// Subscribe outside the lock: registration takes the dispatcher
	// lock, and dispatch holds it while calling handlers that take t.mu.
	sub := t.conn.OnPresenceUpdate(func(p PresenceEntry) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.enabled || p.UserID == t.me.UserID {
			return
		}
		if _, seen := t.entries[p.UserID]; !seen {
			t.order = append(t.order, p.UserID)
		}
		t.entries[p.UserID] = p
	})
	t.track(sub)

	return nil
}

// track records a subscription for cancellation on Deactivate.
func (t *PresenceTracker) track(sub *Subscription) {
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
func (t *PresenceTracker) Deactivate() {
	t.mu.Lock()
	t.enabled = false
	t.order = nil
	t.entries = nil
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Users returns every tracked user's latest presence in first-seen order.
func (t *PresenceTracker) Users() []PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PresenceEntry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id])
	}
	return out
}

// OnlineUsers returns the tracked users currently online, in first-seen
// order.
func (t *PresenceTracker) OnlineUsers() []PresenceEntry {
	return t.filter(true)
}

// OfflineUsers returns the tracked users currently offline, in first-seen
// order.
func (t *PresenceTracker) OfflineUsers() []PresenceEntry {
	return t.filter(false)
}

func (t *PresenceTracker) filter(online bool) []PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PresenceEntry
	for _, id := range t.order {
		if e := t.entries[id]; e.IsOnline == online {
			out = append(out, e)
		}
	}
	return out
}

// OnlineCount returns the number of tracked users currently online.
func (t *PresenceTracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.IsOnline {
			n++
		}
	}
	return n
}

// IsUserOnline reports whether a user is online. Unknown users are
// reported offline.
func (t *PresenceTracker) IsUserOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	return ok && e.IsOnline
}

// OnlineUsersText renders an online-user list as a display string:
//
//	nobody        → "No one else is online"
//	one user      → "Ada is online"
//	two users     → "Ada and Grace are online"
//	three or more → "Ada and 2 others are online"
func OnlineUsersText(online []PresenceEntry) string {
	switch len(online) {
	case 0:
		return "No one else is online"
	case 1:
		return fmt.Sprintf("%s is online", online[0].UserName)
	case 2:
		return fmt.Sprintf("%s and %s are online", online[0].UserName, online[1].UserName)
	default:
		return fmt.Sprintf("%s and %d others are online", online[0].UserName, len(online)-1)
	}
}
