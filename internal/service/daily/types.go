package daily

// UserRequest addresses a single user.
type UserRequest struct {
	UserID string `json:"userId"`
}

type Candidate struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Gender   string `json:"gender"`
	Chosen   bool   `json:"chosen"`
}

type SelectionResponse struct {
	SelectionDate     string      `json:"selectionDate"`
	Candidates        []Candidate `json:"candidates"`
	ChoicesUsed       int         `json:"choicesUsed"`
	MaxChoicesAllowed int         `json:"maxChoicesAllowed"`
	Remaining         int         `json:"remaining"`
}

type ChooseProfileRequest struct {
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
	Choice       string `json:"choice"`
}

type ChooseProfileResponse struct {
	IsMatch        bool   `json:"isMatch"`
	NewMatch       bool   `json:"newMatch"`
	MatchID        string `json:"matchId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Remaining      int    `json:"remaining"`
}

type ListChoicesRequest struct {
	UserID          string  `json:"userId"`
	PaginationToken *string `json:"paginationToken,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

type ChoiceView struct {
	TargetUserID  string `json:"targetUserId"`
	Choice        string `json:"choice"`
	UnixTimestamp uint64 `json:"unixTimestamp"`
}

type ListChoicesResponse struct {
	Choices             []ChoiceView `json:"choices"`
	NextPaginationToken *string      `json:"nextPaginationToken,omitempty"`
}

type AcceptChatRequest struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Accept  bool   `json:"accept"`
}

type AcceptChatResponse struct {
	MatchID        string  `json:"matchId"`
	Status         string  `json:"status"`
	ConversationID string  `json:"conversationId,omitempty"`
	ExpiresAt      *uint64 `json:"expiresAt,omitempty"`
}

type CountMatchesResponse struct {
	Count uint64 `json:"count"`
}

type DeleteMatchRequest struct {
	UserID  string `json:"userId"`
	MatchID string `json:"matchId"`
}

type Empty struct{}
