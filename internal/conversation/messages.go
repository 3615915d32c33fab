package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/utils/pagination"
)

const (
	MaxMessageRunes     = 2000
	defaultMessageLimit = 50
	maxMessageLimit     = 100
	previewRunes        = 80
)

// SendMessage appends a message to an open conversation.
//
// Behavior:
//   - Gated: participant, then expiry, then status.
//   - Content is trimmed, must be non-empty and at most MaxMessageRunes.
//   - LastMessageAt and MessageCount move under the conversation row lock.
//   - new_message goes to the conversation room and, as a notification,
//     to the other participant.
func (m *Manager) SendMessage(ctx context.Context, conversationID, senderID uint64, content string) (*db.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, svcErr.Invalid("message content is empty")
	}
	if n := utf8.RuneCountInString(content); n > MaxMessageRunes {
		return nil, svcErr.Invalid("message is %d characters, limit is %d", n, MaxMessageRunes)
	}

	var msg *db.Message
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := m.lock(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		now := m.now()
		if err := Gate(conv, senderID, now); err != nil {
			return err
		}

		msg = &db.Message{ConversationID: conv.ID, SenderID: senderID, Content: content, CreatedAt: now}
		if err := m.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		err = tx.WithContext(ctx).Model(&db.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{
				"last_message_at": now,
				"message_count":   gorm.Expr("message_count + 1"),
			}).Error
		if err != nil {
			return fmt.Errorf("bump conversation: %w", err)
		}

		recipient := conv.Other(senderID)
		return outbox.Enqueue(ctx, tx, now,
			outbox.Event(realtime.EventNewMessage, realtime.ConversationRoom(conv.ID), messagePayload(msg)),
			outbox.Notification(recipient, notify.TypeNewMessage, map[string]any{
				"conversationId": conv.ID,
				"messageId":      msg.ID,
				"senderId":       senderID,
				"preview":        preview(content),
			}),
		)
	})
	if err != nil {
		return nil, err
	}
	m.kick()
	return msg, nil
}

// ListMessages pages through a conversation newest first. Participants
// can read an expired or archived thread.
func (m *Manager) ListMessages(ctx context.Context, conversationID, userID uint64, token *string, limit int) ([]db.Message, *string, error) {
	if _, err := m.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, nil, err
	}
	limit = pagination.ClampLimit(limit, defaultMessageLimit, maxMessageLimit)
	msgs, next, err := m.messages.List(ctx, conversationID, token, limit)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, nil, svcErr.Invalid("bad pagination token")
	}
	return msgs, next, err
}

// MarkRead marks one received message as read. It reports whether the
// message was unread.
func (m *Manager) MarkRead(ctx context.Context, conversationID, messageID, readerID uint64) (bool, error) {
	conv, err := m.Authorize(ctx, conversationID, readerID)
	if err != nil {
		return false, err
	}
	if _, err := m.messages.Get(ctx, conv.ID, messageID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, svcErr.NotFound(fmt.Sprintf("message %d", messageID))
		}
		return false, fmt.Errorf("load message: %w", err)
	}

	now := m.now()
	changed, err := m.messages.MarkRead(ctx, conv.ID, messageID, readerID, now)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if changed {
		m.publish(ctx, realtime.NewEvent(realtime.EventMessageRead, realtime.ConversationRoom(conv.ID), map[string]any{
			"conversationId": conv.ID,
			"messageId":      messageID,
			"readerId":       readerID,
			"readAt":         now,
		}))
	}
	return changed, nil
}

// MarkConversationRead marks everything the reader received as read and
// returns how many messages changed.
func (m *Manager) MarkConversationRead(ctx context.Context, conversationID, readerID uint64) (int64, error) {
	conv, err := m.Authorize(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	now := m.now()
	n, err := m.messages.MarkAllRead(ctx, conv.ID, readerID, now)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	if n > 0 {
		m.publish(ctx, realtime.NewEvent(realtime.EventConversationRead, realtime.ConversationRoom(conv.ID), map[string]any{
			"conversationId": conv.ID,
			"readerId":       readerID,
			"count":          n,
			"readAt":         now,
		}))
	}
	return n, nil
}

// DeleteMessage removes one of the caller's own messages.
func (m *Manager) DeleteMessage(ctx context.Context, conversationID, messageID, userID uint64) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := m.lock(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		now := m.now()
		if err := Gate(conv, userID, now); err != nil {
			return err
		}

		msg, err := m.messages.WithTx(tx).Get(ctx, conv.ID, messageID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound(fmt.Sprintf("message %d", messageID))
		}
		if err != nil {
			return fmt.Errorf("load message: %w", err)
		}
		if msg.SenderID != userID {
			return fmt.Errorf("%w: only the sender can delete message %d", svcErr.ErrForbidden, messageID)
		}

		if err := m.messages.WithTx(tx).Delete(ctx, msg.ID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		err = tx.WithContext(ctx).Model(&db.Conversation{}).
			Where("id = ? AND message_count > 0", conv.ID).
			Update("message_count", gorm.Expr("message_count - 1")).Error
		if err != nil {
			return fmt.Errorf("decrement message count: %w", err)
		}

		return outbox.Enqueue(ctx, tx, now, outbox.Event(
			realtime.EventMessageDeleted,
			realtime.ConversationRoom(conv.ID),
			map[string]any{"conversationId": conv.ID, "messageId": msg.ID, "by": userID},
		))
	})
	if err != nil {
		return err
	}
	m.kick()
	return nil
}

// publish sends an ephemeral event. Failures are logged only.
func (m *Manager) publish(ctx context.Context, ev realtime.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("publish event failed", "type", ev.Type, "room", ev.Room, "err", err)
	}
}

func messagePayload(msg *db.Message) map[string]any {
	return map[string]any{
		"conversationId": msg.ConversationID,
		"messageId":      msg.ID,
		"senderId":       msg.SenderID,
		"content":        msg.Content,
		"createdAt":      msg.CreatedAt,
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes]) + "…"
}
