// Package openline provides the official Go SDK for the Openline chat API.
//
// The SDK has two halves: a REST Client for request/response endpoints
// (paginated message history, conversation listing) and a RealtimeClient
// that carries the server's event stream (messages, reactions, read
// receipts, presence). Per-conversation trackers sit on top of the
// realtime connection and keep a consistent local view even when events
// arrive duplicated or out of order.
//
// Example:
//
//	client := openline.NewClient("https://chat.example.com", "token")
//	rt := client.Realtime(nil)
//	if err := rt.Connect(ctx); err != nil { ... }
//	defer rt.Disconnect()
//
//	me := openline.Identity{UserID: "u-1", UserName: "Ada"}
//	stream := openline.NewMessageStream(rt, me)
//	stream.Activate(ctx, "conv-1")
//	defer stream.Deactivate()
//
//	pager := openline.NewHistoryPager(client)
//	pager.LoadInitial(ctx, "conv-1")
package openline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the HTTP client timeout applied when none is configured.
const DefaultTimeout = 30 * time.Second

// ============================================================================
// Client
// ============================================================================

// Client is the REST half of the SDK. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a new Openline client for the given server.
// token is optional; pass "" for endpoints that allow anonymous access.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets or updates the auth token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Realtime constructs a RealtimeClient against this client's server.
// The client's token is used unless the config carries its own.
func (c *Client) Realtime(config *RealtimeConfig) *RealtimeClient {
	if config == nil {
		config = &RealtimeConfig{}
	}
	if config.Token == "" {
		config.Token = c.token
	}
	return NewRealtime(c.baseURL, config)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Conversation endpoints
// ============================================================================

// History fetches one page of a conversation's message history.
// Pages start at 1. Failures reported by the server arrive as
// Success=false with a human-readable Error string, not as a Go error.
func (c *Client) History(ctx context.Context, conversationID string, page, limit int) (*HistoryResponse, error) {
	query := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[HistoryResponse](data)
}

// Conversations lists the conversations visible to the authenticated user.
func (c *Client) Conversations(ctx context.Context) (*ConversationsResponse, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ConversationsResponse](data)
}
