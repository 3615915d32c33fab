package db

import (
	"time"

	"gorm.io/datatypes"
)

// Tier is the subscription tier that sizes the daily quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Answers holds structured personality answers keyed by question id,
// each on a 1..5 scale.
type Answers map[string]int

// User table. Only the fields the matching core reads or writes live here;
// everything else about a profile belongs to the profile service.
type User struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	Username         string `gorm:"uniqueIndex;size:64;not null"`
	Email            string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash     string `gorm:"size:255;not null"`
	Active           bool   `gorm:"default:true"`
	Gender           string `gorm:"size:16;not null"`
	ProfileCompleted bool   `gorm:"not null;default:false;index"`
	Tier             Tier   `gorm:"size:16;not null;default:free"`
	Answers          datatypes.JSONType[Answers]
	LastActiveAt     *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

// Selection is the fixed daily candidate set for one user.
//
// Unique: (user_id, selection_date); one row per user per UTC day.
//
// Fields:
//   - CandidateIDs: rank order, immutable once created.
//   - ChosenIDs: candidates already acted on, always a subset of CandidateIDs.
//   - ChoicesUsed: equals len(ChosenIDs), never exceeds MaxChoicesAllowed.
//   - MaxChoicesAllowed: frozen from the tier at creation time.
type Selection struct {
	ID                uint64                     `gorm:"primaryKey;autoIncrement"`
	UserID            uint64                     `gorm:"not null;uniqueIndex:idx_selection_user_day,priority:1"`
	SelectionDate     string                     `gorm:"size:10;not null;uniqueIndex:idx_selection_user_day,priority:2;index"`
	CandidateIDs      datatypes.JSONSlice[uint64] `gorm:"not null"`
	ChosenIDs         datatypes.JSONSlice[uint64] `gorm:"not null"`
	ChoicesUsed       int                        `gorm:"not null;default:0"`
	MaxChoicesAllowed int                        `gorm:"not null"`
	CreatedAt         time.Time                  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"autoUpdateTime"`
}

// ChoiceType is like or pass.
type ChoiceType string

const (
	ChoiceLike ChoiceType = "like"
	ChoicePass ChoiceType = "pass"
)

// Choice is the append-only audit log of like/pass decisions.
//
// Unique: (user_id, target_user_id, selection_id); one row per target per day.
// Index idx_choice_user_created(user_id, created_at DESC, id DESC) backs history pagination.
type Choice struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	UserID       uint64     `gorm:"not null;uniqueIndex:idx_choice_user_target_sel,priority:1;index:idx_choice_user_created,priority:1"`
	TargetUserID uint64     `gorm:"not null;uniqueIndex:idx_choice_user_target_sel,priority:2;index:idx_choice_target_type,priority:1"`
	SelectionID  uint64     `gorm:"not null;uniqueIndex:idx_choice_user_target_sel,priority:3"`
	ChoiceType   ChoiceType `gorm:"size:8;not null;index:idx_choice_target_type,priority:2"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index:idx_choice_user_created,priority:2,sort:desc"`
}

// MatchStatus values.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchMatched  MatchStatus = "matched"
	MatchRejected MatchStatus = "rejected"
	MatchExpired  MatchStatus = "expired"
)

// Match records confirmed interest between two users.
//
// User1ID is the initiator (first like), User2ID the invited side.
// PairLow/PairHigh hold the unordered pair; their unique index is what
// absorbs two racing inserts for the same pair.
type Match struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement"`
	User1ID   uint64      `gorm:"not null;index"`
	User2ID   uint64      `gorm:"not null;index"`
	PairLow   uint64      `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	PairHigh  uint64      `gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	Status    MatchStatus `gorm:"size:16;not null;index"`
	MatchedAt *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID uint64) uint64 {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// HasParticipant reports whether userID is one of the two users.
func (m *Match) HasParticipant(userID uint64) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// ConversationStatus values.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationExpired  ConversationStatus = "expired"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation is the time-boxed thread bound 1:1 to a Match.
// Participants are copied from the match so gating needs no join.
type Conversation struct {
	ID             uint64             `gorm:"primaryKey;autoIncrement"`
	MatchID        uint64             `gorm:"not null;uniqueIndex"`
	User1ID        uint64             `gorm:"not null;index"`
	User2ID        uint64             `gorm:"not null;index"`
	Status         ConversationStatus `gorm:"size:16;not null;index:idx_conversation_status_expires,priority:1"`
	ExpiresAt      time.Time          `gorm:"not null;index:idx_conversation_status_expires,priority:2"`
	ExpiryWarnedAt *time.Time
	LastMessageAt  *time.Time
	MessageCount   int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime;index"`
}

// HasParticipant reports whether userID is one of the two users.
func (c *Conversation) HasParticipant(userID uint64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uint64) uint64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message belongs to a Conversation. No FK cascade: cleanup deletes
// messages before their conversation.
type Message struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	ConversationID uint64 `gorm:"not null;index:idx_message_conversation,priority:1"`
	SenderID       uint64 `gorm:"not null"`
	Content        string `gorm:"type:text;not null"`
	ReadAt         *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_message_conversation,priority:2"`
}

// OutboxKind says where an outbox entry is delivered.
type OutboxKind string

const (
	OutboxNotification OutboxKind = "notification"
	OutboxEvent        OutboxKind = "event"
)

// OutboxStatus values.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is a side effect recorded in the same transaction as the
// state change that caused it, delivered after commit by the relay.
type OutboxEntry struct {
	ID            uint64       `gorm:"primaryKey;autoIncrement"`
	EventID       string       `gorm:"size:36;not null;uniqueIndex"`
	Kind          OutboxKind   `gorm:"size:16;not null"`
	Type          string       `gorm:"size:64;not null"`
	UserID        uint64       `gorm:"not null;default:0"`
	Room          string       `gorm:"size:64"`
	Payload       datatypes.JSON
	Status        OutboxStatus `gorm:"size:16;not null;index:idx_outbox_status_next,priority:1"`
	Attempts      int          `gorm:"not null;default:0"`
	LastError     string       `gorm:"size:512"`
	NextAttemptAt time.Time    `gorm:"not null;index:idx_outbox_status_next,priority:2"`
	SentAt        *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Selection{},
		&Choice{},
		&Match{},
		&Conversation{},
		&Message{},
		&OutboxEntry{},
	}
}
