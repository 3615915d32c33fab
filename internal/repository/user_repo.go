package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
)

// UserRepository is the read side of the profile store the matching core
// depends on, plus the durable last-active timestamp.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// Get loads a user by id. Returns gorm.ErrRecordNotFound when absent.
func (r *UserRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMany loads the given users, in no particular order.
func (r *UserRepository) GetMany(ctx context.Context, ids []uint64) ([]db.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []db.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// ListCandidatePool returns the users userID may be offered today.
//
// Behavior:
//   - Only active users with a completed profile.
//   - Excludes userID itself.
//   - Excludes anyone sharing a Match row with userID, whatever its status.
//   - Most recently active first, then id ascending; capped at limit.
//
// Example:
//
//	repo.ListCandidatePool(ctx, 42, 50) // up to 50 candidates for user 42
func (r *UserRepository) ListCandidatePool(ctx context.Context, userID uint64, limit int) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Table("users u").
		Where("u.id <> ? AND u.active = ? AND u.profile_completed = ?", userID, true, true).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE (m.user1_id = ? AND m.user2_id = u.id)
				   OR (m.user2_id = ? AND m.user1_id = u.id)
			)`, userID, userID).
		Order("u.last_active_at IS NULL, u.last_active_at DESC, u.id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// ListEligibleIDs pages through ids of users that should get a daily
// selection (active, completed profile), in id order after afterID.
func (r *UserRepository) ListEligibleIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id > ? AND active = ? AND profile_completed = ?", afterID, true, true).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// TouchLastActive stamps the durable last-active field.
func (r *UserRepository) TouchLastActive(ctx context.Context, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_active_at", at).Error
}

// LastActiveAt reads the durable last-active field. A zero time means never seen.
func (r *UserRepository) LastActiveAt(ctx context.Context, userID uint64) (time.Time, error) {
	var u db.User
	err := r.db.WithContext(ctx).Select("id", "last_active_at").First(&u, userID).Error
	if err != nil {
		return time.Time{}, err
	}
	if u.LastActiveAt == nil {
		return time.Time{}, nil
	}
	return *u.LastActiveAt, nil
}
