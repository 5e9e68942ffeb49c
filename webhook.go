package openline

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ============================================================================
// Webhook Types
// ============================================================================

// WebhookEvent is one conversation event delivered over HTTP for
// deployments that cannot hold a websocket open. Event names match the
// realtime stream (message.new, message.read, reaction.added,
// reaction.removed, presence.updated) and the payload decodes into the
// same types via the typed accessors.
type WebhookEvent struct {
	Source         string          `json:"source"`
	Event          string          `json:"event"`
	ConversationID string          `json:"conversationId"`
	Timestamp      int64           `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// Message decodes the payload of a message.new event.
func (e *WebhookEvent) Message() (*Message, error) {
	if e.Event != EventMessageNew {
		return nil, fmt.Errorf("event %q carries no message", e.Event)
	}
	return decodeJSON[Message](e.Payload)
}

// MessageRead decodes the payload of a message.read event.
func (e *WebhookEvent) MessageRead() (*MessageReadEvent, error) {
	if e.Event != EventMessageRead {
		return nil, fmt.Errorf("event %q carries no read receipt", e.Event)
	}
	return decodeJSON[MessageReadEvent](e.Payload)
}

// ReactionAdded decodes the payload of a reaction.added event.
func (e *WebhookEvent) ReactionAdded() (*ReactionAddedEvent, error) {
	if e.Event != EventReactionAdded {
		return nil, fmt.Errorf("event %q carries no reaction", e.Event)
	}
	return decodeJSON[ReactionAddedEvent](e.Payload)
}

// ReactionRemoved decodes the payload of a reaction.removed event.
func (e *WebhookEvent) ReactionRemoved() (*ReactionRemovedEvent, error) {
	if e.Event != EventReactionRemoved {
		return nil, fmt.Errorf("event %q carries no reaction removal", e.Event)
	}
	return decodeJSON[ReactionRemovedEvent](e.Payload)
}

// Presence decodes the payload of a presence.updated event.
func (e *WebhookEvent) Presence() (*PresenceEntry, error) {
	if e.Event != EventPresenceUpdated {
		return nil, fmt.Errorf("event %q carries no presence", e.Event)
	}
	return decodeJSON[PresenceEntry](e.Payload)
}

// WebhookHandlerFunc is the callback signature for handling webhook events.
type WebhookHandlerFunc func(event *WebhookEvent) error

// ============================================================================
// Standalone Functions
// ============================================================================

// VerifyWebhookSignature verifies an Openline webhook signature using
// HMAC-SHA256. Uses constant-time comparison to prevent timing attacks.
func VerifyWebhookSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	sig := signature
	if strings.HasPrefix(sig, "sha256=") {
		sig = sig[7:]
	}
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// ParseWebhookEvent parses a raw webhook body into a typed WebhookEvent.
func ParseWebhookEvent(body string) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, fmt.Errorf("invalid JSON in webhook body: %w", err)
	}

	if event.Source != "openline" {
		return nil, fmt.Errorf("unknown webhook source: %s", event.Source)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("missing event field in webhook body")
	}
	if event.ConversationID == "" {
		return nil, fmt.Errorf("missing conversationId field in webhook body")
	}

	return &event, nil
}

// ============================================================================
// Webhook
// ============================================================================

// Webhook handles Openline webhook verification, parsing, and dispatch.
type Webhook struct {
	secret  string
	onEvent WebhookHandlerFunc
}

// NewWebhook creates a new webhook receiver.
func NewWebhook(secret string, onEvent WebhookHandlerFunc) (*Webhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Webhook{
		secret:  secret,
		onEvent: onEvent,
	}, nil
}

// Verify verifies an HMAC-SHA256 signature.
func (w *Webhook) Verify(body, signature string) bool {
	return VerifyWebhookSignature(body, signature, w.secret)
}

// Parse parses a raw body into a typed WebhookEvent.
func (w *Webhook) Parse(body string) (*WebhookEvent, error) {
	return ParseWebhookEvent(body)
}

// Handle processes a webhook request (verify + parse + call handler).
// Returns the status code and response body for the caller to write.
func (w *Webhook) Handle(body, signature string) (int, any) {
	if !w.Verify(body, signature) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}

	event, err := w.Parse(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	if err := w.onEvent(event); err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler returns an http.Handler that processes webhook requests.
//
// Example:
//
//	wh, _ := openline.NewWebhook("secret", handler)
//	http.Handle("/webhook", wh.HTTPHandler())
func (w *Webhook) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Method not allowed"})
			return
		}

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Failed to read body"})
			return
		}
		defer r.Body.Close()

		body := string(bodyBytes)
		signature := r.Header.Get("X-Openline-Signature")

		statusCode, data := w.Handle(body, signature)

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(statusCode)
		json.NewEncoder(rw).Encode(data)
	})
}

// HTTPHandlerFunc returns an http.HandlerFunc for convenience.
func (w *Webhook) HTTPHandlerFunc() http.HandlerFunc {
	return w.HTTPHandler().ServeHTTP
}
