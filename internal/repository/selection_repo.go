package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-daily/internal/db"
)

// SelectionRepository stores the one-per-day candidate sets.
type SelectionRepository struct {
	db *gorm.DB
}

// NewSelectionRepository creates a new repository bound to the given DB connection.
func NewSelectionRepository(database *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *SelectionRepository) WithTx(tx *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: tx}
}

// FindByUserDay returns the selection for (userID, day) or gorm.ErrRecordNotFound.
func (r *SelectionRepository) FindByUserDay(ctx context.Context, userID uint64, day string) (*db.Selection, error) {
	var s db.Selection
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND selection_date = ?", userID, day).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LockByUserDay loads the selection with a row lock (SELECT ... FOR UPDATE).
// Must run inside a transaction.
func (r *SelectionRepository) LockByUserDay(ctx context.Context, userID uint64, day string) (*db.Selection, error) {
	var s db.Selection
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND selection_date = ?", userID, day).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateIfAbsent inserts sel unless a row for the same (user, day) exists.
//
// Behavior:
//   - The (user_id, selection_date) unique index decides the winner of a race.
//   - Returns created=false when another writer got there first; sel is left untouched.
func (r *SelectionRepository) CreateIfAbsent(ctx context.Context, sel *db.Selection) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "selection_date"}},
			DoNothing: true,
		}).
		Create(sel)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveQuota persists the chosen ids and counter of sel.
func (r *SelectionRepository) SaveQuota(ctx context.Context, sel *db.Selection) error {
	return r.db.WithContext(ctx).
		Model(sel).
		Updates(map[string]any{
			"chosen_ids":   sel.ChosenIDs,
			"choices_used": sel.ChoicesUsed,
		}).Error
}

// DeleteBefore purges selections older than day (exclusive). Day strings
// compare correctly because they are zero-padded ISO dates.
func (r *SelectionRepository) DeleteBefore(ctx context.Context, day string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("selection_date < ?", day).
		Delete(&db.Selection{})
	return res.RowsAffected, res.Error
}
