package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
)

// SweepResult aggregates a sweep. Only a failure to enumerate rows is
// returned as an error; per-row failures land here.
type SweepResult struct {
	Processed    int
	SuccessCount int
	ErrorCount   int
	Skipped      int
	Deleted      int64
	Errors       []error
}

func (r *SweepResult) fail(err error) {
	r.ErrorCount++
	r.Errors = append(r.Errors, err)
}

// SweepExpired flips every active conversation past its expiry to expired.
// Rows are independent: one failing does not stop the rest, and a row
// another instance already flipped counts as skipped.
func (m *Manager) SweepExpired(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.now()

	rows, err := m.store.ListActiveExpiredBefore(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list expired conversations: %w", err)
	}

	for _, conv := range rows {
		res.Processed++
		changed, err := m.store.MarkExpired(ctx, conv.ID)
		if err != nil {
			res.fail(fmt.Errorf("conversation %d: %w", conv.ID, err))
			continue
		}
		if !changed {
			res.Skipped++
			continue
		}
		res.SuccessCount++

		payload := map[string]any{"conversationId": conv.ID, "matchId": conv.MatchID, "expiredAt": conv.ExpiresAt}
		err = outbox.Enqueue(ctx, m.db, now,
			outbox.Event(realtime.EventChatExpired, realtime.ConversationRoom(conv.ID), payload),
			outbox.Event(realtime.EventChatExpired, realtime.UserRoom(conv.User1ID), payload),
			outbox.Event(realtime.EventChatExpired, realtime.UserRoom(conv.User2ID), payload),
		)
		if err != nil {
			m.logger.Warn("enqueue chat expired failed", "conversation_id", conv.ID, "err", err)
		}
	}

	if res.SuccessCount > 0 {
		m.kick()
	}
	return res, nil
}

// SweepWarnings warns both participants of conversations expiring between
// WarnFrom and WarnTo from now. Notifications go straight to the notifier:
// a failure is logged and left for the next run, and the row is stamped
// only once everyone was told.
func (m *Manager) SweepWarnings(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.now()

	rows, err := m.store.ListExpiringBetween(ctx, now.Add(m.settings.WarnFrom), now.Add(m.settings.WarnTo))
	if err != nil {
		return res, fmt.Errorf("list expiring conversations: %w", err)
	}

	for _, conv := range rows {
		res.Processed++
		remaining := conv.ExpiresAt.Sub(now).Round(time.Minute)
		payload := map[string]any{
			"conversationId":   conv.ID,
			"expiresAt":        conv.ExpiresAt,
			"remainingMinutes": int(remaining / time.Minute),
		}

		delivered := true
		for _, uid := range Participants(&conv) {
			n := notify.Notification{
				ID:        fmt.Sprintf("chat_expiring:%d:%d:%d", conv.ID, uid, conv.ExpiresAt.Unix()),
				UserID:    uid,
				Type:      notify.TypeChatExpiring,
				Payload:   withUser(payload, conv.Other(uid)),
				CreatedAt: now,
			}
			if err := m.notifier.Notify(ctx, n); err != nil {
				delivered = false
				m.logger.Warn("expiry warning failed", "conversation_id", conv.ID, "user_id", uid, "err", err)
			}
		}
		m.publish(ctx, realtime.NewEvent(realtime.EventChatExpiring, realtime.ConversationRoom(conv.ID), payload))

		if !delivered {
			res.fail(fmt.Errorf("conversation %d: warning not delivered to every participant", conv.ID))
			continue
		}
		if err := m.store.MarkWarned(ctx, conv.ID, now); err != nil {
			res.fail(fmt.Errorf("conversation %d: mark warned: %w", conv.ID, err))
			continue
		}
		res.SuccessCount++
	}
	return res, nil
}

// SweepCleanup hard-deletes expired and archived conversations not
// updated for RetentionDays: messages first, then the conversations.
func (m *Manager) SweepCleanup(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := m.now().Add(-time.Duration(m.settings.RetentionDays) * 24 * time.Hour)

	for {
		ids, err := m.store.ListPurgeable(ctx, cutoff, m.settings.PurgeBatch)
		if err != nil {
			return res, fmt.Errorf("list purgeable conversations: %w", err)
		}
		if len(ids) == 0 {
			return res, nil
		}
		res.Processed += len(ids)

		msgs, err := m.store.DeleteMessages(ctx, ids)
		if err != nil {
			res.fail(fmt.Errorf("delete messages of %d conversations: %w", len(ids), err))
			return res, nil
		}
		n, err := m.store.DeleteConversations(ctx, ids)
		if err != nil {
			res.fail(fmt.Errorf("delete %d conversations: %w", len(ids), err))
			return res, nil
		}
		res.SuccessCount += int(n)
		res.Deleted += msgs

		m.logger.Info("purged conversations", "conversations", n, "messages", msgs)
		if len(ids) < m.settings.PurgeBatch {
			return res, nil
		}
	}
}

// Participants lists the two users of a conversation.
func Participants(conv *db.Conversation) []uint64 {
	return []uint64{conv.User1ID, conv.User2ID}
}
