package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/utils/pagination"
)

// MessageRepository provides data access for conversation messages.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new repository bound to the given DB connection.
func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get loads a message scoped to its conversation.
func (r *MessageRepository) Get(ctx context.Context, conversationID, id uint64) (*db.Message, error) {
	var m db.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", id, conversationID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&db.Message{}, id).Error
}

// List returns a conversation's messages, newest first, with cursor pagination.
//
// Example:
//
//	repo.List(ctx, 9, nil, 50) // latest 50 messages of conversation 9
func (r *MessageRepository) List(
	ctx context.Context,
	conversationID uint64,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	var msgs []db.Message

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&msgs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(msgs) > limit {
		last := msgs[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		msgs = msgs[:limit]
	}

	return msgs, nextToken, nil
}

// MarkRead stamps read_at on one message if the reader did not send it and it is unread.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, messageID, readerID uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id = ? AND conversation_id = ? AND sender_id <> ? AND read_at IS NULL", messageID, conversationID, readerID).
		Update("read_at", at)
	return res.RowsAffected > 0, res.Error
}

// MarkAllRead stamps read_at on every unread message the reader received.
func (r *MessageRepository) MarkAllRead(ctx context.Context, conversationID, readerID uint64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}
