package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
)

// OutboxRepository stores side effects pending delivery.
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new repository bound to the given DB connection.
func NewOutboxRepository(database *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *OutboxRepository) WithTx(tx *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

// Add inserts entries; call it with the transaction of the state change.
func (r *OutboxRepository) Add(ctx context.Context, entries []db.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListDue returns pending entries whose next attempt is due, oldest first.
func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]db.OutboxEntry, error) {
	var out []db.OutboxEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", db.OutboxPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Claim takes a due entry for delivery by pushing its next attempt to
// leaseUntil. It reports false when another relay claimed or finished the
// entry first. An entry whose relay dies stays pending and is due again
// once the lease runs out.
func (r *OutboxRepository) Claim(ctx context.Context, id uint64, now, leaseUntil time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.OutboxEntry{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, db.OutboxPending, now).
		Update("next_attempt_at", leaseUntil)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSent records a successful delivery.
func (r *OutboxRepository) MarkSent(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.OutboxEntry{}).
		Where("id = ? AND status = ?", id, db.OutboxPending).
		Updates(map[string]any{"status": db.OutboxSent, "sent_at": at}).Error
}

// MarkAttempt records a failed delivery and when to retry.
// Passing failed=true parks the entry for good.
func (r *OutboxRepository) MarkAttempt(ctx context.Context, id uint64, attempts int, lastErr string, next time.Time, failed bool) error {
	status := db.OutboxPending
	if failed {
		status = db.OutboxFailed
	}
	if len(lastErr) > 512 {
		lastErr = lastErr[:512]
	}
	return r.db.WithContext(ctx).
		Model(&db.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": next,
		}).Error
}

// DeleteSentBefore prunes delivered entries older than cutoff.
func (r *OutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", db.OutboxSent, cutoff).
		Delete(&db.OutboxEntry{})
	return res.RowsAffected, res.Error
}
