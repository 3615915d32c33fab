package chat

type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ConversationView struct {
	ConversationID string  `json:"conversationId"`
	MatchID        string  `json:"matchId"`
	OtherUserID    string  `json:"otherUserId"`
	Status         string  `json:"status"`
	ExpiresAt      uint64  `json:"expiresAt"`
	LastMessageAt  *uint64 `json:"lastMessageAt,omitempty"`
	MessageCount   int     `json:"messageCount"`
	OtherOnline    bool    `json:"otherOnline"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Content        string `json:"content"`
}

type MessageView struct {
	MessageID     string  `json:"messageId"`
	SenderID      string  `json:"senderId"`
	Content       string  `json:"content"`
	UnixTimestamp uint64  `json:"unixTimestamp"`
	ReadAt        *uint64 `json:"readAt,omitempty"`
}

type ListMessagesRequest struct {
	ConversationID  string  `json:"conversationId"`
	UserID          string  `json:"userId"`
	PaginationToken *string `json:"paginationToken,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages            []MessageView `json:"messages"`
	NextPaginationToken *string       `json:"nextPaginationToken,omitempty"`
}

// MarkReadRequest marks one message when MessageID is set, otherwise the
// whole conversation.
type MarkReadRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MessageID      string `json:"messageId,omitempty"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type MessageRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MessageID      string `json:"messageId"`
}

type ExtendRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Hours          int    `json:"hours"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

type PresenceResponse struct {
	UserID   string  `json:"userId"`
	Online   bool    `json:"online"`
	LastSeen *uint64 `json:"lastSeen,omitempty"`
}

type Empty struct{}
