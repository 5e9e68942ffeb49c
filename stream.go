package openline

import (
	"context"
	"sync"
)

// ============================================================================
// Message Stream
// ============================================================================

// MessageStream maintains the reconciled, deduplicated list of messages
// for one conversation at a time. The list is exactly the set of message
// ids seen from the event stream, in arrival order. Send never inserts
// locally; the sent message appears when the server echoes it back.
type MessageStream struct {
	conn Conn
	me   Identity

	mu             sync.Mutex
	enabled        bool
	conversationID string
	messages       []Message
	seen           map[string]struct{}
	subs           []*Subscription
}

// NewMessageStream creates a stream bound to the given connection and
// local identity. Call Activate to start tracking a conversation.
func NewMessageStream(conn Conn, me Identity) *MessageStream {
	return &MessageStream{conn: conn, me: me}
}

// Activate starts tracking a conversation. Any previously tracked
// conversation's state and subscriptions are discarded first, so
// switching conversations never leaks messages across. If the connection
// is up, the conversation is joined immediately.
func (s *MessageStream) Activate(ctx context.Context, conversationID string) error {
	s.Deactivate()

	s.mu.Lock()
	s.enabled = true
	s.conversationID = conversationID
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	// Subscribe outside the lock: registration takes the dispatcher
	// lock, and dispatch holds it while calling handlers that take s.mu.
	sub := s.conn.OnNewMessage(func(m Message) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.enabled || m.ConversationID != s.conversationID {
			return
		}
		if _, dup := s.seen[m.ID]; dup {
			return
		}
		s.seen[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	})
	s.track(sub)

	if s.conn.IsConnected() {
		return s.conn.JoinConversation(ctx, conversationID)
	}
	return nil
}

// track records a subscription for cancellation on Deactivate. If the
// stream was deactivated between registering and tracking, the
// subscription is cancelled immediately.
func (s *MessageStream) track(sub *Subscription) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Deactivate stops tracking and discards all state. Safe to call when
// not active.
func (s *MessageStream) Deactivate() {
	s.mu.Lock()
	s.enabled = false
	s.conversationID = ""
	s.messages = nil
	s.seen = nil
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	// Cancel outside the lock: dispatch may hold the dispatcher lock
	// while calling a handler that wants s.mu.
	for _, sub := range subs {
		sub.Cancel()
	}
}

// Send emits a message into the tracked conversation. It is a no-op
// while the stream is inactive or the connection is down.
func (s *MessageStream) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	enabled := s.enabled
	conversationID := s.conversationID
	s.mu.Unlock()

	if !enabled || !s.conn.IsConnected() {
		return nil
	}
	return s.conn.SendMessage(ctx, conversationID, text, s.me.UserID, s.me.UserName)
}

// Messages returns a copy of the reconciled message list in arrival order.
func (s *MessageStream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ConversationID returns the currently tracked conversation, or "" when
// inactive.
func (s *MessageStream) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Active reports whether the stream is currently tracking a conversation.
func (s *MessageStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}
