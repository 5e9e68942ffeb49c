package openline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire Format
// ============================================================================

// Event type names as they appear on the wire.
const (
	EventMessageNew      = "message.new"
	EventMessageRead     = "message.read"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventPresenceUpdated = "presence.updated"

	eventPong = "pong"
)

// Outbound command types.
const (
	cmdConversationJoin = "conversation.join"
	cmdMessageSend      = "message.send"
	cmdMessageRead      = "message.read"
	cmdReactionAdd      = "reaction.add"
	cmdReactionRemove   = "reaction.remove"
	cmdPing             = "ping"
)

// Envelope is the wire format for all server-pushed events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server command.
type Command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
}

// MessageReadEvent is pushed when a user reads a message.
type MessageReadEvent struct {
	MessageID   string      `json:"messageId"`
	ReadReceipt ReadReceipt `json:"readReceipt"`
}

// ReactionAddedEvent is pushed when a reaction lands on a message.
type ReactionAddedEvent struct {
	MessageID string   `json:"messageId"`
	Reaction  Reaction `json:"reaction"`
}

// ReactionRemovedEvent is pushed when a reaction is withdrawn.
type ReactionRemovedEvent struct {
	MessageID  string `json:"messageId"`
	ReactionID string `json:"reactionId"`
	UserID     string `json:"userId"`
}

type pongPayload struct {
	RequestID string `json:"requestId"`
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures a RealtimeClient.
type RealtimeConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	HTTPClient           *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ============================================================================
// Subscriptions
// ============================================================================

// Subscription is a handle to a registered event handler. Cancel removes
// the handler; cancelling twice is safe. Trackers collect the handles they
// create on activation and cancel them as a unit on deactivation, so no
// handler outlives a conversation switch.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel deregisters the handler.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// ============================================================================
// Conn
// ============================================================================

// Conn is the connection surface the per-conversation trackers depend on:
// a connectivity query, the outbound emit operations, and per-event-kind
// subscription. *RealtimeClient satisfies it; tests substitute fakes.
//
// Emit operations are silent no-ops while disconnected. That is a
// deliberate backpressure-avoidance policy: an emit attempted without a
// connection is an expected, frequent condition, never an error.
type Conn interface {
	IsConnected() bool

	JoinConversation(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, conversationID, text, senderID, senderName string) error
	MarkMessageAsRead(ctx context.Context, messageID, conversationID, userID, userName string) error
	AddReaction(ctx context.Context, messageID, conversationID, userID, userName, emoji string) error
	RemoveReaction(ctx context.Context, messageID, conversationID, reactionID, userID string) error

	OnNewMessage(h func(Message)) *Subscription
	OnMessageRead(h func(MessageReadEvent)) *Subscription
	OnReactionAdded(h func(ReactionAddedEvent)) *Subscription
	OnReactionRemoved(h func(ReactionRemovedEvent)) *Subscription
	OnPresenceUpdate(h func(PresenceEntry)) *Subscription
	OnConnected(h func()) *Subscription
	OnDisconnected(h func(code int, reason string)) *Subscription
}

// ============================================================================
// Event Dispatcher
// ============================================================================

// dispatcher fans server events out to registered handlers. Handlers for
// payload-bearing events run synchronously on the read loop so that events
// of the same kind are observed in arrival order.
type dispatcher struct {
	mu     sync.RWMutex
	nextID int

	onMessageNew      map[int]func(Message)
	onMessageRead     map[int]func(MessageReadEvent)
	onReactionAdded   map[int]func(ReactionAddedEvent)
	onReactionRemoved map[int]func(ReactionRemovedEvent)
	onPresence        map[int]func(PresenceEntry)
	onConnected       map[int]func()
	onDisconnected    map[int]func(int, string)
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		onMessageNew:      make(map[int]func(Message)),
		onMessageRead:     make(map[int]func(MessageReadEvent)),
		onReactionAdded:   make(map[int]func(ReactionAddedEvent)),
		onReactionRemoved: make(map[int]func(ReactionRemovedEvent)),
		onPresence:        make(map[int]func(PresenceEntry)),
		onConnected:       make(map[int]func()),
		onDisconnected:    make(map[int]func(int, string)),
	}
}

func (d *dispatcher) id() int {
	d.nextID++
	return d.nextID
}

func (d *dispatcher) dispatch(env Envelope) {
	switch env.Type {
	case EventMessageNew:
		var p Message
		if json.Unmarshal(env.Payload, &p) == nil {
			d.mu.RLock()
			handlers := make([]func(Message), 0, len(d.onMessageNew))
			for _, h := range d.onMessageNew {
				handlers = append(handlers, h)
			}
			d.mu.RUnlock()
			for _, h := range handlers {
				h(p)
			}
		}
	case EventMessageRead:
		var p MessageReadEvent
		if json.Unmarshal(env.Payload, &p) == nil {
			d.mu.RLock()
			handlers := make([]func(MessageReadEvent), 0, len(d.onMessageRead))
			for _, h := range d.onMessageRead {
				handlers = append(handlers, h)
			}
			d.mu.RUnlock()
			for _, h := range handlers {
				h(p)
			}
		}
	case EventReactionAdded:
		var p ReactionAddedEvent
		if json.Unmarshal(env.Payload, &p) == nil {
			d.mu.RLock()
			handlers := make([]func(ReactionAddedEvent), 0, len(d.onReactionAdded))
			for _, h := range d.onReactionAdded {
				handlers = append(handlers, h)
			}
			d.mu.RUnlock()
			for _, h := range handlers {
				h(p)
			}
		}
	case EventReactionRemoved:
		var p ReactionRemovedEvent
		if json.Unmarshal(env.Payload, &p) == nil {
			d.mu.RLock()
			handlers := make([]func(ReactionRemovedEvent), 0, len(d.onReactionRemoved))
			for _, h := range d.onReactionRemoved {
				handlers = append(handlers, h)
			}
			d.mu.RUnlock()
			for _, h := range handlers {
				h(p)
			}
		}
	case EventPresenceUpdated:
		var p PresenceEntry
		if json.Unmarshal(env.Payload, &p) == nil {
			d.mu.RLock()
			handlers := make([]func(PresenceEntry), 0, len(d.onPresence))
			for _, h := range d.onPresence {
				handlers = append(handlers, h)
			}
			d.mu.RUnlock()
			for _, h := range handlers {
				h(p)
			}
		}
	}
}

func (d *dispatcher) emitConnected() {
	d.mu.RLock()
	handlers := make([]func(), 0, len(d.onConnected))
	for _, h := range d.onConnected {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *dispatcher) emitDisconnected(code int, reason string) {
	d.mu.RLock()
	handlers := make([]func(int, string), 0, len(d.onDisconnected))
	for _, h := range d.onDisconnected {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()
	for _, h := range handlers {
		h(code, reason)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient owns the single logical websocket connection to the
// realtime channel. All trackers share one instance; only the
// RealtimeClient opens or closes the underlying socket. Reconnection with
// exponential backoff and heartbeats live here; consumers see only binary
// connected/disconnected transitions.
type RealtimeClient struct {
	baseURL string
	config  *RealtimeConfig
	disp    *dispatcher
	recon   *reconnector

	mu               sync.Mutex
	conn             *websocket.Conn
	state            State
	intentionalClose bool
	cancelFn         context.CancelFunc

	pendingMu    sync.Mutex
	pendingPings map[string]chan pongPayload
}

// NewRealtime creates a realtime client for the given server.
// Call Connect to establish the connection.
func NewRealtime(baseURL string, config *RealtimeConfig) *RealtimeClient {
	cfg := *config
	cfg.defaults()
	return &RealtimeClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		config:       &cfg,
		disp:         newDispatcher(),
		recon:        newReconnector(&cfg),
		state:        StateDisconnected,
		pendingPings: make(map[string]chan pongPayload),
	}
}

// State returns the current connection state.
func (rt *RealtimeClient) State() State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// IsConnected reports whether the connection is established.
func (rt *RealtimeClient) IsConnected() bool {
	return rt.State() == StateConnected
}

// Connect establishes the websocket connection and starts the read and
// heartbeat loops. Connecting while connected is a no-op.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws"
	if rt.config.Token != "" {
		wsURL += "?token=" + rt.config.Token
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: rt.config.HTTPClient,
	})
	if err != nil {
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.cancelFn = cancel
	rt.mu.Unlock()
	rt.recon.markConnected()

	rt.disp.emitConnected()

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx)

	return nil
}

// Disconnect gracefully closes the connection. Trackers keep their
// subscriptions; a later Connect resumes event delivery.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	wasConnected := rt.state == StateConnected
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.clearPendingPings()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if wasConnected {
		rt.disp.emitDisconnected(int(websocket.StatusNormalClosure), "client disconnect")
	}
	return err
}

// ── Subscriptions ────────────────────────────────────────────────────────

// OnNewMessage registers a handler for message.new events.
func (rt *RealtimeClient) OnNewMessage(h func(Message)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onMessageNew[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onMessageNew, id)
		rt.disp.mu.Unlock()
	})
}

// OnMessageRead registers a handler for message.read events.
func (rt *RealtimeClient) OnMessageRead(h func(MessageReadEvent)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onMessageRead[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onMessageRead, id)
		rt.disp.mu.Unlock()
	})
}

// OnReactionAdded registers a handler for reaction.added events.
func (rt *RealtimeClient) OnReactionAdded(h func(ReactionAddedEvent)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onReactionAdded[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onReactionAdded, id)
		rt.disp.mu.Unlock()
	})
}

// OnReactionRemoved registers a handler for reaction.removed events.
func (rt *RealtimeClient) OnReactionRemoved(h func(ReactionRemovedEvent)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onReactionRemoved[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onReactionRemoved, id)
		rt.disp.mu.Unlock()
	})
}

// OnPresenceUpdate registers a handler for presence.updated events.
func (rt *RealtimeClient) OnPresenceUpdate(h func(PresenceEntry)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onPresence[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onPresence, id)
		rt.disp.mu.Unlock()
	})
}

// OnConnected registers a handler for the connected meta-event.
func (rt *RealtimeClient) OnConnected(h func()) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onConnected[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onConnected, id)
		rt.disp.mu.Unlock()
	})
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *RealtimeClient) OnDisconnected(h func(code int, reason string)) *Subscription {
	rt.disp.mu.Lock()
	id := rt.disp.id()
	rt.disp.onDisconnected[id] = h
	rt.disp.mu.Unlock()
	return newSubscription(func() {
		rt.disp.mu.Lock()
		delete(rt.disp.onDisconnected, id)
		rt.disp.mu.Unlock()
	})
}

// ── Outbound commands ────────────────────────────────────────────────────

// JoinConversation subscribes this connection to a conversation's events.
func (rt *RealtimeClient) JoinConversation(ctx context.Context, conversationID string) error {
	return rt.send(ctx, &Command{
		Type:    cmdConversationJoin,
		Payload: map[string]string{"conversationId": conversationID},
	})
}

// SendMessage sends a message into a conversation.
func (rt *RealtimeClient) SendMessage(ctx context.Context, conversationID, text, senderID, senderName string) error {
	return rt.send(ctx, &Command{
		Type: cmdMessageSend,
		Payload: map[string]string{
			"conversationId": conversationID,
			"text":           text,
			"senderId":       senderID,
			"senderName":     senderName,
		},
		RequestID: uuid.NewString(),
	})
}

// MarkMessageAsRead reports that the user has read a message.
func (rt *RealtimeClient) MarkMessageAsRead(ctx context.Context, messageID, conversationID, userID, userName string) error {
	return rt.send(ctx, &Command{
		Type: cmdMessageRead,
		Payload: map[string]string{
			"messageId":      messageID,
			"conversationId": conversationID,
			"userId":         userID,
			"userName":       userName,
		},
	})
}

// AddReaction adds (or replaces) the user's reaction on a message.
func (rt *RealtimeClient) AddReaction(ctx context.Context, messageID, conversationID, userID, userName, emoji string) error {
	return rt.send(ctx, &Command{
		Type: cmdReactionAdd,
		Payload: map[string]string{
			"messageId":      messageID,
			"conversationId": conversationID,
			"userId":         userID,
			"userName":       userName,
			"emoji":          emoji,
		},
	})
}

// RemoveReaction withdraws a reaction by its id.
func (rt *RealtimeClient) RemoveReaction(ctx context.Context, messageID, conversationID, reactionID, userID string) error {
	return rt.send(ctx, &Command{
		Type: cmdReactionRemove,
		Payload: map[string]string{
			"messageId":      messageID,
			"conversationId": conversationID,
			"reactionId":     reactionID,
			"userId":         userID,
		},
	})
}

// send writes a command to the socket. While disconnected it drops the
// command and returns nil; see Conn for the rationale.
func (rt *RealtimeClient) send(ctx context.Context, cmd *Command) error {
	rt.mu.Lock()
	conn := rt.conn
	connected := rt.state == StateConnected
	rt.mu.Unlock()

	if conn == nil || !connected {
		return nil
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Ping sends a ping and waits for the matching pong.
func (rt *RealtimeClient) Ping(ctx context.Context) error {
	requestID := uuid.NewString()

	ch := make(chan pongPayload, 1)
	rt.pendingMu.Lock()
	rt.pendingPings[requestID] = ch
	rt.pendingMu.Unlock()

	dropPending := func() {
		rt.pendingMu.Lock()
		delete(rt.pendingPings, requestID)
		rt.pendingMu.Unlock()
	}

	if !rt.IsConnected() {
		dropPending()
		return fmt.Errorf("not connected")
	}
	if err := rt.send(ctx, &Command{
		Type:    cmdPing,
		Payload: map[string]string{"requestId": requestID},
	}); err != nil {
		dropPending()
		return err
	}

	select {
	case _, ok := <-ch:
		if !ok {
			return fmt.Errorf("connection closed")
		}
		return nil
	case <-time.After(10 * time.Second):
		dropPending()
		return fmt.Errorf("ping timeout")
	case <-ctx.Done():
		dropPending()
		return ctx.Err()
	}
}

// ── Loops ────────────────────────────────────────────────────────────────

func (rt *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()

			rt.clearPendingPings()
			rt.disp.emitDisconnected(int(websocket.CloseStatus(err)), err.Error())

			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				go rt.scheduleReconnect(ctx)
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		if env.Type == eventPong {
			var p pongPayload
			if json.Unmarshal(env.Payload, &p) == nil && p.RequestID != "" {
				rt.pendingMu.Lock()
				ch, ok := rt.pendingPings[p.RequestID]
				if ok {
					delete(rt.pendingPings, p.RequestID)
				}
				rt.pendingMu.Unlock()
				if ok {
					ch <- p
				}
			}
			continue
		}

		rt.disp.dispatch(env)
	}
}

func (rt *RealtimeClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !rt.IsConnected() {
				return
			}
			if err := rt.Ping(ctx); err != nil {
				// Heartbeat failed: force close and let the read loop
				// drive reconnection.
				rt.mu.Lock()
				conn := rt.conn
				rt.mu.Unlock()
				if conn != nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

func (rt *RealtimeClient) scheduleReconnect(ctx context.Context) {
	delay := rt.recon.nextDelay()
	rt.mu.Lock()
	rt.state = StateReconnecting
	rt.mu.Unlock()

	select {
	case <-ctx.Done():
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return
	case <-time.After(delay):
	}

	rt.mu.Lock()
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if err := rt.Connect(context.Background()); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect(ctx)
		}
	}
}

func (rt *RealtimeClient) clearPendingPings() {
	rt.pendingMu.Lock()
	for k, ch := range rt.pendingPings {
		close(ch)
		delete(rt.pendingPings, k)
	}
	rt.pendingMu.Unlock()
}
