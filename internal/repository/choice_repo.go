package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/utils/pagination"
)

// ChoiceRepository provides data access methods for the Choice log.
// The log is append-only: there is no update or delete here on purpose.
type ChoiceRepository struct {
	db *gorm.DB
}

// NewChoiceRepository creates a new repository bound to the given DB connection.
func NewChoiceRepository(database *gorm.DB) *ChoiceRepository {
	return &ChoiceRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ChoiceRepository) WithTx(tx *gorm.DB) *ChoiceRepository {
	return &ChoiceRepository{db: tx}
}

// Append inserts a choice row.
//
// Behavior:
//   - (user_id, target_user_id, selection_id) is unique, so a second choice
//     on the same target within a day fails with a duplicate-key error.
//
// Example:
//
//	repo.Append(ctx, &db.Choice{UserID: 1, TargetUserID: 2, SelectionID: 9, ChoiceType: db.ChoiceLike})
func (r *ChoiceRepository) Append(ctx context.Context, c *db.Choice) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// HasLiked checks whether an actor has ever liked a target.
//
// Behavior:
//   - Returns true if any choice row exists with user_id = X,
//     target_user_id = Y and choice_type = like, on any day.
//   - Used to detect a reciprocal like when a match is first created.
//
// Example:
//
//	repo.HasLiked(ctx, 1, 2) // -> true if user 1 liked user 2
func (r *ChoiceRepository) HasLiked(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Choice{}).
		Where("user_id = ? AND target_user_id = ? AND choice_type = ?", actorID, targetID, db.ChoiceLike).
		Count(&count).Error
	return count > 0, err
}

// ListHistory returns a user's choices, newest first.
//
// Behavior:
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListHistory(ctx, 42, nil, 20) // first 20 choices user 42 made
func (r *ChoiceRepository) ListHistory(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Choice, *string, error) {
	var choices []db.Choice

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&choices).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(choices) > limit {
		last := choices[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		choices = choices[:limit]
	}

	return choices, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
