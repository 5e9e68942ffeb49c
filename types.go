package openline

// ============================================================================
// Shared Types
// ============================================================================

// Identity binds a tracker to the local user. Trackers stamp outbound
// operations (send, mark-as-read, react) with it and use the UserID to
// exclude the local user from presence views.
type Identity struct {
	UserID   string
	UserName string
}

// Message is a single chat message within a conversation. Within a
// conversation's reconciled list, IDs are unique and insertion order is
// first-seen order, not timestamp order.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Text           string        `json:"text"`
	Timestamp      string        `json:"timestamp"`
	Type           string        `json:"type,omitempty"`
	ReplyToID      string        `json:"replyToId,omitempty"`
	ThreadID       string        `json:"threadId,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
}

// Reaction is a single emoji reaction on a message. A given
// (message, user) pair has at most one active reaction at a time.
type Reaction struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId,omitempty"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Emoji     string `json:"emoji"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ReadReceipt records that a user has read a message. A later receipt for
// the same (message, user) pair overwrites ReadAt.
type ReadReceipt struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	ReadAt   string `json:"readAt"`
}

// PresenceEntry is the last reported online/offline state of a user.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsOnline bool   `json:"isOnline"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// ReactionGroup is the set of active reactions sharing one emoji,
// in arrival order.
type ReactionGroup struct {
	Emoji     string     `json:"emoji"`
	Reactions []Reaction `json:"reactions"`
}

// ReactionCount is the summarized form of a ReactionGroup.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Conversation is a named channel to which messages, reactions, and
// presence are scoped.
type Conversation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// ============================================================================
// REST Envelopes
// ============================================================================

// Pagination is the paging metadata attached to a history page.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// HistoryData is the payload of a successful history response.
type HistoryData struct {
	Data       []Message   `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// HistoryResponse is the envelope returned by the message history endpoint.
type HistoryResponse struct {
	Success bool         `json:"success"`
	Data    *HistoryData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ConversationsResponse is the envelope returned by the conversations
// listing endpoint.
type ConversationsResponse struct {
	Success bool           `json:"success"`
	Data    []Conversation `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
