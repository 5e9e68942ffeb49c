package openline

import (
	"context"
	"sync"
)

// fakeConn is a test double for Conn. It records every outbound emit,
// lets tests toggle connectivity, and delivers events synchronously to
// whatever handlers are currently subscribed, the same delivery
// discipline the real connection uses.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	disp      *dispatcher

	joins     []string
	sends     []map[string]string
	reads     []map[string]string
	addCalls  []map[string]string
	delCalls  []map[string]string
}

func newFakeConn() *fakeConn {
	return &fakeConn{connected: true, disp: newDispatcher()}
}

func (f *fakeConn) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) JoinConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conversationID)
	return nil
}

func (f *fakeConn) SendMessage(ctx context.Context, conversationID, text, senderID, senderName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, map[string]string{
		"conversationId": conversationID,
		"text":           text,
		"senderId":       senderID,
		"senderName":     senderName,
	})
	return nil
}

func (f *fakeConn) MarkMessageAsRead(ctx context.Context, messageID, conversationID, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, map[string]string{
		"messageId":      messageID,
		"conversationId": conversationID,
		"userId":         userID,
		"userName":       userName,
	})
	return nil
}

func (f *fakeConn) AddReaction(ctx context.Context, messageID, conversationID, userID, userName, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, map[string]string{
		"messageId":      messageID,
		"conversationId": conversationID,
		"userId":         userID,
		"userName":       userName,
		"emoji":          emoji,
	})
	return nil
}

func (f *fakeConn) RemoveReaction(ctx context.Context, messageID, conversationID, reactionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delCalls = append(f.delCalls, map[string]string{
		"messageId":      messageID,
		"conversationId": conversationID,
		"reactionId":     reactionID,
		"userId":         userID,
	})
	return nil
}

func (f *fakeConn) OnNewMessage(h func(Message)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onMessageNew[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onMessageNew, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnMessageRead(h func(MessageReadEvent)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onMessageRead[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onMessageRead, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnReactionAdded(h func(ReactionAddedEvent)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onReactionAdded[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onReactionAdded, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnReactionRemoved(h func(ReactionRemovedEvent)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onReactionRemoved[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onReactionRemoved, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnPresenceUpdate(h func(PresenceEntry)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onPresence[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onPresence, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnConnected(h func()) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onConnected[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onConnected, id)
		f.disp.mu.Unlock()
	})
}

func (f *fakeConn) OnDisconnected(h func(int, string)) *Subscription {
	f.disp.mu.Lock()
	id := f.disp.id()
	f.disp.onDisconnected[id] = h
	f.disp.mu.Unlock()
	return newSubscription(func() {
		f.disp.mu.Lock()
		delete(f.disp.onDisconnected, id)
		f.disp.mu.Unlock()
	})
}

// deliver* push events through the dispatcher, bypassing JSON.

func (f *fakeConn) deliverMessage(m Message) {
	f.disp.mu.RLock()
	handlers := make([]func(Message), 0, len(f.disp.onMessageNew))
	for _, h := range f.disp.onMessageNew {
		handlers = append(handlers, h)
	}
	f.disp.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (f *fakeConn) deliverMessageRead(ev MessageReadEvent) {
	f.disp.mu.RLock()
	handlers := make([]func(MessageReadEvent), 0, len(f.disp.onMessageRead))
	for _, h := range f.disp.onMessageRead {
		handlers = append(handlers, h)
	}
	f.disp.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeConn) deliverReactionAdded(ev ReactionAddedEvent) {
	f.disp.mu.RLock()
	handlers := make([]func(ReactionAddedEvent), 0, len(f.disp.onReactionAdded))
	for _, h := range f.disp.onReactionAdded {
		handlers = append(handlers, h)
	}
	f.disp.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeConn) deliverReactionRemoved(ev ReactionRemovedEvent) {
	f.disp.mu.RLock()
	handlers := make([]func(ReactionRemovedEvent), 0, len(f.disp.onReactionRemoved))
	for _, h := range f.disp.onReactionRemoved {
		handlers = append(handlers, h)
	}
	f.disp.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeConn) deliverPresence(p PresenceEntry) {
	f.disp.mu.RLock()
	handlers := make([]func(PresenceEntry), 0, len(f.disp.onPresence))
	for _, h := range f.disp.onPresence {
		handlers = append(handlers, h)
	}
	f.disp.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (f *fakeConn) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeConn) handlerCount() int {
	f.disp.mu.RLock()
	defer f.disp.mu.RUnlock()
	return len(f.disp.onMessageNew) + len(f.disp.onMessageRead) +
		len(f.disp.onReactionAdded) + len(f.disp.onReactionRemoved) +
		len(f.disp.onPresence) + len(f.disp.onConnected) + len(f.disp.onDisconnected)
}
