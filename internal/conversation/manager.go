// Package conversation runs the lifecycle of the time-boxed conversation
// bound to each match: opening, gating, extension, messages and the
// expiry, warning and cleanup sweeps.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/repository"
)

// Settings times the lifecycle.
type Settings struct {
	TTL            time.Duration
	WarnFrom       time.Duration
	WarnTo         time.Duration
	MaxExtendHours int
	RetentionDays  int
	PurgeBatch     int
}

func DefaultSettings() Settings {
	return Settings{
		TTL:            24 * time.Hour,
		WarnFrom:       2 * time.Hour,
		WarnTo:         3 * time.Hour,
		MaxExtendHours: 168,
		RetentionDays:  90,
		PurgeBatch:     500,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.TTL = cfg.Conversation.TTL
	s.WarnFrom = cfg.Conversation.WarnFrom
	s.WarnTo = cfg.Conversation.WarnTo
	s.MaxExtendHours = cfg.Conversation.MaxExtendHours
	s.RetentionDays = cfg.Conversation.RetentionDays
	return s
}

// SweepStore is the storage the sweeps run against.
type SweepStore interface {
	ListActiveExpiredBefore(ctx context.Context, now time.Time) ([]db.Conversation, error)
	MarkExpired(ctx context.Context, id uint64) (bool, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]db.Conversation, error)
	MarkWarned(ctx context.Context, id uint64, at time.Time) error
	ListPurgeable(ctx context.Context, updatedBefore time.Time, limit int) ([]uint64, error)
	DeleteMessages(ctx context.Context, conversationIDs []uint64) (int64, error)
	DeleteConversations(ctx context.Context, ids []uint64) (int64, error)
}

// Kicker wakes the outbox relay after a commit.
type Kicker interface {
	Kick()
}

// Deps are the collaborators of a Manager. Store defaults to the
// conversation repository; Kicker and Now are optional.
type Deps struct {
	DB        *gorm.DB
	Store     SweepStore
	Publisher realtime.Publisher
	Notifier  notify.Notifier
	Kicker    Kicker
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns conversation state transitions.
type Manager struct {
	db            *gorm.DB
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	matches       *repository.MatchRepository
	store         SweepStore
	publisher     realtime.Publisher
	notifier      notify.Notifier
	kicker        Kicker
	settings      Settings
	logger        *slog.Logger
	now           func() time.Time
}

func NewManager(d Deps, s Settings) *Manager {
	m := &Manager{
		db:            d.DB,
		conversations: repository.NewConversationRepository(d.DB),
		messages:      repository.NewMessageRepository(d.DB),
		matches:       repository.NewMatchRepository(d.DB),
		store:         d.Store,
		publisher:     d.Publisher,
		notifier:      d.Notifier,
		kicker:        d.Kicker,
		settings:      s,
		logger:        d.Logger,
		now:           d.Now,
	}
	if m.store == nil {
		m.store = m.conversations
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.settings.PurgeBatch <= 0 {
		m.settings.PurgeBatch = DefaultSettings().PurgeBatch
	}
	return m
}

// OpenForMatch creates the conversation of a matched match through tx.
//
// Behavior:
//   - ExpiresAt = MatchedAt + TTL.
//   - Idempotent: a second call returns the existing row with created=false.
//   - A match that is not matched cannot get a conversation (ErrInactive).
//   - If the window already closed before anyone opened it, the match is
//     marked expired and no conversation is returned.
//   - On creation the initiator is told the chat was accepted, via the outbox.
func (m *Manager) OpenForMatch(ctx context.Context, tx *gorm.DB, match *db.Match) (*db.Conversation, bool, error) {
	convs := m.conversations.WithTx(tx)

	existing, err := convs.GetByMatch(ctx, match.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load conversation: %w", err)
	}

	if match.Status != db.MatchMatched {
		return nil, false, fmt.Errorf("%w: match %d is %s", svcErr.ErrInactive, match.ID, match.Status)
	}

	now := m.now()
	matchedAt := now
	if match.MatchedAt != nil {
		matchedAt = *match.MatchedAt
	}
	expiresAt := matchedAt.Add(m.settings.TTL)
	if now.After(expiresAt) {
		if err := m.matches.WithTx(tx).UpdateStatus(ctx, match.ID, db.MatchExpired); err != nil {
			return nil, false, fmt.Errorf("expire match: %w", err)
		}
		match.Status = db.MatchExpired
		m.logger.Info("match window closed before chat opened", "match_id", match.ID)
		return nil, false, nil
	}

	conv := &db.Conversation{
		MatchID:   match.ID,
		User1ID:   match.User1ID,
		User2ID:   match.User2ID,
		Status:    db.ConversationActive,
		ExpiresAt: expiresAt,
	}
	created, err := convs.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	if !created {
		existing, err := convs.GetByMatch(ctx, match.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reload conversation: %w", err)
		}
		return existing, false, nil
	}

	payload := map[string]any{
		"matchId":        match.ID,
		"conversationId": conv.ID,
		"expiresAt":      conv.ExpiresAt,
	}
	err = outbox.Enqueue(ctx, tx, now,
		outbox.Notification(match.User1ID, notify.TypeChatAccepted, withUser(payload, match.User2ID)),
		outbox.Event(realtime.EventChatAccepted, realtime.UserRoom(match.User1ID), withUser(payload, match.User2ID)),
		outbox.Event(realtime.EventChatAccepted, realtime.UserRoom(match.User2ID), withUser(payload, match.User1ID)),
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue chat accepted: %w", err)
	}

	m.logger.Info("conversation opened", "conversation_id", conv.ID, "match_id", match.ID, "expires_at", conv.ExpiresAt)
	return conv, true, nil
}

// AcceptResult is the outcome of AcceptChatRequest.
type AcceptResult struct {
	Match        *db.Match
	Conversation *db.Conversation
}

// AcceptChatRequest lets the invited side of a match open or decline the chat.
//
// Behavior:
//   - Only the non-initiating participant may answer; anyone else gets ErrForbidden.
//   - accept=false rejects the match and deletes any conversation with its messages.
//     Repeating it is a no-op.
//   - accept=true opens the conversation, or returns the existing one.
//   - Accepting a rejected match fails with ErrInactive, an expired one with ErrExpired.
func (m *Manager) AcceptChatRequest(ctx context.Context, matchID, userID uint64, accept bool) (*AcceptResult, error) {
	res := &AcceptResult{}
	var outcome error
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := m.matches.WithTx(tx).Lock(ctx, matchID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound(fmt.Sprintf("match %d", matchID))
		}
		if err != nil {
			return fmt.Errorf("lock match: %w", err)
		}
		res.Match = match

		if !match.HasParticipant(userID) || match.User1ID == userID {
			return fmt.Errorf("%w: only the invited user can answer match %d", svcErr.ErrForbidden, matchID)
		}

		if !accept {
			return m.decline(ctx, tx, match)
		}

		switch match.Status {
		case db.MatchRejected:
			return fmt.Errorf("%w: match %d was declined", svcErr.ErrInactive, matchID)
		case db.MatchExpired:
			return fmt.Errorf("%w: match %d", svcErr.ErrExpired, matchID)
		}

		conv, _, err := m.OpenForMatch(ctx, tx, match)
		if err != nil {
			return err
		}
		if conv == nil {
			// keep the match expiry, report it after commit
			outcome = fmt.Errorf("%w: match %d", svcErr.ErrExpired, matchID)
			return nil
		}
		res.Conversation = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}
	m.kick()
	return res, nil
}

func (m *Manager) decline(ctx context.Context, tx *gorm.DB, match *db.Match) error {
	if match.Status != db.MatchRejected {
		if err := m.matches.WithTx(tx).UpdateStatus(ctx, match.ID, db.MatchRejected); err != nil {
			return fmt.Errorf("reject match: %w", err)
		}
		match.Status = db.MatchRejected
	}

	conv, err := m.conversations.WithTx(tx).GetByMatch(ctx, match.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	// a conversation only lives under a matched match
	ids := []uint64{conv.ID}
	if _, err := m.conversations.WithTx(tx).DeleteMessages(ctx, ids); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := m.conversations.WithTx(tx).DeleteConversations(ctx, ids); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	m.logger.Info("chat request declined", "match_id", match.ID, "conversation_id", conv.ID)
	return nil
}

// Extend moves the expiry to now+hours and reactivates the conversation.
//
// Behavior:
//   - hours must be within 1..MaxExtendHours.
//   - Fails with ErrExpired once the sweep flipped the row, ErrInactive when archived.
//   - An active row already past its expiry can still be extended before the sweep runs.
//   - Clears the expiry-warning stamp so the new window gets its own warning.
func (m *Manager) Extend(ctx context.Context, conversationID, userID uint64, hours int) (*db.Conversation, error) {
	if hours < 1 || hours > m.settings.MaxExtendHours {
		return nil, svcErr.Invalid("hours must be between 1 and %d", m.settings.MaxExtendHours)
	}

	var conv *db.Conversation
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = m.lock(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return forbidden(userID, conversationID)
		}
		switch conv.Status {
		case db.ConversationExpired:
			return fmt.Errorf("%w: conversation %d", svcErr.ErrExpired, conversationID)
		case db.ConversationArchived:
			return fmt.Errorf("%w: conversation %d", svcErr.ErrInactive, conversationID)
		}

		now := m.now()
		conv.ExpiresAt = now.Add(time.Duration(hours) * time.Hour)
		conv.Status = db.ConversationActive
		conv.ExpiryWarnedAt = nil
		if err := m.conversations.WithTx(tx).Save(ctx, conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		return outbox.Enqueue(ctx, tx, now, outbox.Event(
			realtime.EventChatExtended,
			realtime.ConversationRoom(conv.ID),
			map[string]any{"conversationId": conv.ID, "expiresAt": conv.ExpiresAt, "by": userID},
		))
	})
	if err != nil {
		return nil, err
	}
	m.kick()
	m.logger.Info("conversation extended", "conversation_id", conversationID, "by", userID, "hours", hours)
	return conv, nil
}

// Gate checks, in order, that userID takes part (ErrForbidden), that the
// window is still open (ErrExpired) and that the conversation is active
// (ErrInactive).
func Gate(conv *db.Conversation, userID uint64, now time.Time) error {
	if !conv.HasParticipant(userID) {
		return forbidden(userID, conv.ID)
	}
	if now.After(conv.ExpiresAt) {
		return fmt.Errorf("%w: conversation %d expired at %s", svcErr.ErrExpired, conv.ID, conv.ExpiresAt.Format(time.RFC3339))
	}
	if conv.Status != db.ConversationActive {
		return fmt.Errorf("%w: conversation %d is %s", svcErr.ErrInactive, conv.ID, conv.Status)
	}
	return nil
}

// Authorize loads a conversation and runs Gate for userID.
func (m *Manager) Authorize(ctx context.Context, conversationID, userID uint64) (*db.Conversation, error) {
	conv, err := m.get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := Gate(conv, userID, m.now()); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation returns a conversation to one of its participants,
// whatever its state.
func (m *Manager) GetConversation(ctx context.Context, conversationID, userID uint64) (*db.Conversation, error) {
	conv, err := m.get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, forbidden(userID, conversationID)
	}
	return conv, nil
}

func (m *Manager) get(ctx context.Context, id uint64) (*db.Conversation, error) {
	conv, err := m.conversations.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound(fmt.Sprintf("conversation %d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

func (m *Manager) lock(ctx context.Context, tx *gorm.DB, id uint64) (*db.Conversation, error) {
	conv, err := m.conversations.WithTx(tx).Lock(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound(fmt.Sprintf("conversation %d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	return conv, nil
}

func (m *Manager) kick() {
	if m.kicker != nil {
		m.kicker.Kick()
	}
}

func forbidden(userID, conversationID uint64) error {
	return fmt.Errorf("%w: user %d is not part of conversation %d", svcErr.ErrForbidden, userID, conversationID)
}

func withUser(payload map[string]any, userID uint64) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["userId"] = userID
	return out
}
