package openline

import (
	"context"
	"sync"
)

// ============================================================================
// Reaction Tracker
// ============================================================================

// ReactionTracker maintains the active reactions for every message in one
// conversation. Two invariants hold at all times: reaction ids are unique,
// and each (message, user) pair carries at most one active reaction: a
// second reaction from the same user replaces the earlier one regardless
// of emoji.
type ReactionTracker struct {
	conn Conn
	me   Identity

	mu             sync.Mutex
	enabled        bool
	conversationID string
	// active reactions per message, in arrival order
	byMessage map[string][]Reaction
	// messageID → userID → active reaction id, for replace-on-re-react
	byUser map[string]map[string]string
	subs   []*Subscription
}

// NewReactionTracker creates a tracker bound to the given connection and
// local identity.
func NewReactionTracker(conn Conn, me Identity) *ReactionTracker {
	return &ReactionTracker{conn: conn, me: me}
}

// Activate starts tracking reactions for a conversation, discarding any
// prior state.
func (t *ReactionTracker) Activate(ctx context.Context, conversationID string) error {
	t.Deactivate()

	t.mu.Lock()
	t.enabled = true
	t.conversationID = conversationID
	t.byMessage = make(map[string][]Reaction)
	t.byUser = make(map[string]map[string]string)
	t.mu.Unlock()

	// Subscribe outside the lock: registration takes the dispatcher
	// lock, and dispatch holds it while calling handlers that take t.mu.
	addSub := t.conn.OnReactionAdded(func(ev ReactionAddedEvent) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.enabled {
			return
		}
		t.apply(ev.MessageID, ev.Reaction)
	})
	removeSub := t.conn.OnReactionRemoved(func(ev ReactionRemovedEvent) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.enabled {
			return
		}
		t.remove(ev.MessageID, ev.ReactionID)
	})
	t.track(addSub, removeSub)

	return nil
}

// track records subscriptions for cancellation on Deactivate.
func (t *ReactionTracker) track(subs ...*Subscription) {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		for _, sub := range subs {
			sub.Cancel()
		}
		return
	}
	t.subs = append(t.subs, subs...)
	t.mu.Unlock()
}

// Deactivate stops tracking and discards all state.
func (t *ReactionTracker) Deactivate() {
	t.mu.Lock()
	t.enabled = false
	t.conversationID = ""
	t.byMessage = nil
	t.byUser = nil
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// apply inserts a reaction, enforcing both invariants. Caller holds t.mu.
func (t *ReactionTracker) apply(messageID string, r Reaction) {
	// Duplicate delivery of the same reaction id is a no-op.
	for _, existing := range t.byMessage[messageID] {
		if existing.ID == r.ID {
			return
		}
	}

	users, ok := t.byUser[messageID]
	if !ok {
		users = make(map[string]string)
		t.byUser[messageID] = users
	}
	if prevID, had := users[r.UserID]; had {
		t.remove(messageID, prevID)
	}

	users[r.UserID] = r.ID
	t.byMessage[messageID] = append(t.byMessage[messageID], r)
}

// remove deletes a reaction by id; unknown ids and messages are no-ops.
// Caller holds t.mu.
func (t *ReactionTracker) remove(messageID, reactionID string) {
	list, ok := t.byMessage[messageID]
	if !ok {
		return
	}
	for i, r := range list {
		if r.ID == reactionID {
			t.byMessage[messageID] = append(list[:i:i], list[i+1:]...)
			if users := t.byUser[messageID]; users != nil && users[r.UserID] == reactionID {
				delete(users, r.UserID)
			}
			return
		}
	}
}

// Reactions returns a copy of the active reactions on a message, in
// arrival order. Unknown message ids yield an empty slice.
func (t *ReactionTracker) Reactions(messageID string) []Reaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.byMessage[messageID]
	out := make([]Reaction, len(list))
	copy(out, list)
	return out
}

// Grouped returns the message's active reactions grouped by emoji. Group
// order follows the first occurrence of each emoji among the active
// reactions, and within a group reactions keep arrival order.
func (t *ReactionTracker) Grouped(messageID string) []ReactionGroup {
	t.mu.Lock()
	defer t.mu.Unlock()

	var groups []ReactionGroup
	index := make(map[string]int)
	for _, r := range t.byMessage[messageID] {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Reactions = append(groups[i].Reactions, r)
	}
	return groups
}

// Summary returns per-emoji counts in the same order as Grouped.
func (t *ReactionTracker) Summary(messageID string) []ReactionCount {
	groups := t.Grouped(messageID)
	counts := make([]ReactionCount, len(groups))
	for i, g := range groups {
		counts[i] = ReactionCount{Emoji: g.Emoji, Count: len(g.Reactions)}
	}
	return counts
}

// Add emits a reaction from the bound identity. No-op while inactive or
// disconnected.
func (t *ReactionTracker) Add(ctx context.Context, messageID, emoji string) error {
	t.mu.Lock()
	enabled := t.enabled
	conversationID := t.conversationID
	t.mu.Unlock()

	if !enabled || !t.conn.IsConnected() {
		return nil
	}
	return t.conn.AddReaction(ctx, messageID, conversationID, t.me.UserID, t.me.UserName, emoji)
}

// Remove emits the withdrawal of a reaction. No-op while inactive or
// disconnected.
func (t *ReactionTracker) Remove(ctx context.Context, messageID, reactionID string) error {
	t.mu.Lock()
	enabled := t.enabled
	conversationID := t.conversationID
	t.mu.Unlock()

	if !enabled || !t.conn.IsConnected() {
		return nil
	}
	return t.conn.RemoveReaction(ctx, messageID, conversationID, reactionID, t.me.UserID)
}
