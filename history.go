package openline

import (
	"context"
	"sync"
)

// DefaultPageSize is the history page size used when none is configured.
const DefaultPageSize = 50

// ============================================================================
// History Pager
// ============================================================================

// HistoryPager fetches a conversation's message history page by page over
// REST. It is a small state machine: idle until bound to a conversation,
// loading while a fetch is in flight, then loaded or errored. Binding to
// a new conversation invalidates any fetch still in flight: a stale
// response is discarded rather than merged into the wrong list.
type HistoryPager struct {
	client   *Client
	pageSize int

	mu             sync.Mutex
	conversationID string
	messages       []Message
	loading        bool
	lastErr        string
	hasMore        bool
	page           int
	generation     int
}

// PagerOption configures a HistoryPager.
type PagerOption func(*HistoryPager)

// WithPageSize overrides the page size.
func WithPageSize(n int) PagerOption {
	return func(p *HistoryPager) { p.pageSize = n }
}

// NewHistoryPager creates a pager using the given REST client.
func NewHistoryPager(client *Client, opts ...PagerOption) *HistoryPager {
	p := &HistoryPager{
		client:   client,
		pageSize: DefaultPageSize,
		hasMore:  true,
		page:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadInitial binds the pager to a conversation and fetches its first
// page, replacing whatever was loaded before. It always runs: calling it
// again, same conversation or not, resets state and refetches, and any
// response from an earlier fetch still in flight is discarded.
func (p *HistoryPager) LoadInitial(ctx context.Context, conversationID string) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.conversationID = conversationID
	p.messages = nil
	p.lastErr = ""
	p.hasMore = true
	p.page = 1
	p.loading = true
	p.mu.Unlock()

	return p.fetch(ctx, gen, conversationID, 1, true)
}

// LoadMore fetches the next page and appends it. It is a no-op while a
// fetch is in flight, when the server has reported no further pages, or
// before LoadInitial has bound a conversation.
func (p *HistoryPager) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if p.loading || !p.hasMore || p.conversationID == "" {
		p.mu.Unlock()
		return nil
	}
	gen := p.generation
	conversationID := p.conversationID
	next := p.page + 1
	p.loading = true
	p.mu.Unlock()

	return p.fetch(ctx, gen, conversationID, next, false)
}

// Refresh refetches the first page of the bound conversation and replaces
// the list. It is a no-op before LoadInitial has bound a conversation.
func (p *HistoryPager) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.conversationID == "" {
		p.mu.Unlock()
		return nil
	}
	p.generation++
	gen := p.generation
	conversationID := p.conversationID
	p.lastErr = ""
	p.page = 1
	p.loading = true
	p.mu.Unlock()

	return p.fetch(ctx, gen, conversationID, 1, true)
}

// fetch performs one page request and folds the result into state,
// unless the pager has moved on to a newer generation in the meantime.
func (p *HistoryPager) fetch(ctx context.Context, gen int, conversationID string, page int, replace bool) error {
	resp, err := p.client.History(ctx, conversationID, page, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return nil
	}
	p.loading = false

	if err != nil {
		p.lastErr = err.Error()
		if replace {
			p.messages = nil
		}
		return err
	}
	if !resp.Success {
		p.lastErr = resp.Error
		if p.lastErr == "" {
			p.lastErr = "request failed"
		}
		if replace {
			p.messages = nil
		}
		return nil
	}

	// A success envelope with no data payload is an empty page, not an
	// error.
	var msgs []Message
	hasMore := false
	if resp.Data != nil {
		msgs = resp.Data.Data
		if resp.Data.Pagination != nil {
			hasMore = resp.Data.Pagination.HasMore
		}
	}

	if replace {
		p.messages = msgs
		p.page = 1
	} else {
		p.messages = append(p.messages, msgs...)
		p.page = page
	}
	p.hasMore = hasMore
	p.lastErr = ""
	return nil
}

// Messages returns a copy of the loaded messages.
func (p *HistoryPager) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Loading reports whether a fetch is in flight.
func (p *HistoryPager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// HasMore reports whether the server has more pages to offer.
func (p *HistoryPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Page returns the last successfully loaded page number.
func (p *HistoryPager) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// LastError returns the text of the most recent failure, or "" after a
// successful fetch.
func (p *HistoryPager) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// ConversationID returns the bound conversation, or "" when unbound.
func (p *HistoryPager) ConversationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conversationID
}
