package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-daily/internal/db"
)

// ConversationRepository provides data access for conversations, including
// the batch queries the lifecycle sweeps run.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new repository bound to the given DB connection.
func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Get loads a conversation by id. Returns gorm.ErrRecordNotFound when absent.
func (r *ConversationRepository) Get(ctx context.Context, id uint64) (*db.Conversation, error) {
	var c db.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Lock loads a conversation with a row lock. Must run inside a transaction.
func (r *ConversationRepository) Lock(ctx context.Context, id uint64) (*db.Conversation, error) {
	var c db.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByMatch loads the conversation bound to a match.
func (r *ConversationRepository) GetByMatch(ctx context.Context, matchID uint64) (*db.Conversation, error) {
	var c db.Conversation
	err := r.db.WithContext(ctx).Where("match_id = ?", matchID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateIfAbsent inserts c unless its match already has a conversation.
// Returns created=false when the match_id unique index rejected the insert.
func (r *ConversationRepository) CreateIfAbsent(ctx context.Context, c *db.Conversation) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Save writes every column of c.
func (r *ConversationRepository) Save(ctx context.Context, c *db.Conversation) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// ListActiveExpiredBefore returns active conversations whose window closed before now.
func (r *ConversationRepository) ListActiveExpiredBefore(ctx context.Context, now time.Time) ([]db.Conversation, error) {
	var out []db.Conversation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", db.ConversationActive, now).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// MarkExpired flips one conversation from active to expired.
//
// Behavior:
//   - Conditional on status = active, so a concurrent sweep or an already
//     expired row is a no-op (changed=false), not an error.
func (r *ConversationRepository) MarkExpired(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ? AND status = ?", id, db.ConversationActive).
		Update("status", db.ConversationExpired)
	return res.RowsAffected > 0, res.Error
}

// ListExpiringBetween returns active, not yet warned conversations with
// expires_at in [from, to].
func (r *ConversationRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]db.Conversation, error) {
	var out []db.Conversation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at >= ? AND expires_at <= ? AND expiry_warned_at IS NULL",
			db.ConversationActive, from, to).
		Order("expires_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkWarned stamps the expiry warning time.
func (r *ConversationRepository) MarkWarned(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("expiry_warned_at", at).Error
}

// ListPurgeable returns ids of expired or archived conversations last
// updated before cutoff.
func (r *ConversationRepository) ListPurgeable(ctx context.Context, updatedBefore time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("status IN ? AND updated_at < ?",
			[]db.ConversationStatus{db.ConversationExpired, db.ConversationArchived}, updatedBefore).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteMessages removes every message of the given conversations.
func (r *ConversationRepository) DeleteMessages(ctx context.Context, conversationIDs []uint64) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Delete(&db.Message{})
	return res.RowsAffected, res.Error
}

// DeleteConversations hard-deletes the given conversations.
func (r *ConversationRepository) DeleteConversations(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&db.Conversation{})
	return res.RowsAffected, res.Error
}
