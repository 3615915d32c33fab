package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-daily/internal/db"
)

// MatchRepository provides data access for Match rows.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// OrderPair returns (low, high) for an unordered pair.
func OrderPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Get loads a match by id. Returns gorm.ErrRecordNotFound when absent.
func (r *MatchRepository) Get(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Lock loads a match by id with a row lock. Must run inside a transaction.
func (r *MatchRepository) Lock(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByPair returns the match between a and b in either direction.
// It is a plain read and takes no locks, so two opposite likes racing for a
// missing pair never hold gap locks that their inserts would wait on.
// Returns gorm.ErrRecordNotFound when the pair has no match.
func (r *MatchRepository) FindByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	return r.findByPair(ctx, a, b, nil)
}

// LockByPair is FindByPair with a row lock. Inside a transaction that lost
// the insert race it reads the winner's committed row rather than the
// transaction's snapshot.
func (r *MatchRepository) LockByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	return r.findByPair(ctx, a, b, &clause.Locking{Strength: "UPDATE"})
}

func (r *MatchRepository) findByPair(ctx context.Context, a, b uint64, lock *clause.Locking) (*db.Match, error) {
	low, high := OrderPair(a, b)
	q := r.db.WithContext(ctx)
	if lock != nil {
		q = q.Clauses(*lock)
	}
	var m db.Match
	if err := q.Where("pair_low = ? AND pair_high = ?", low, high).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateIfAbsent inserts m unless the unordered pair already has a row.
// Returns created=false when the pair unique index rejected the insert.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, m *db.Match) (bool, error) {
	m.PairLow, m.PairHigh = OrderPair(m.User1ID, m.User2ID)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_low"}, {Name: "pair_high"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatus sets the status of a match.
func (r *MatchRepository) UpdateStatus(ctx context.Context, id uint64, status db.MatchStatus) error {
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete hard-deletes a match row.
func (r *MatchRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&db.Match{}, id).Error
}

// CountMatched returns how many matched matches userID takes part in.
func (r *MatchRepository) CountMatched(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, db.MatchMatched).
		Count(&count).Error
	return count, err
}
