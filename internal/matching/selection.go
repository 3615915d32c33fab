package matching

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/scoring"
)

const eligiblePageSize = 200

// DailySelection is a selection with its candidates loaded in rank order.
type DailySelection struct {
	Selection  *db.Selection
	Candidates []db.User
	Remaining  int
}

// GenerateSelection returns the user's selection for day, creating it on
// first access.
//
// Behavior:
//   - Idempotent: an existing row is returned unchanged, never regenerated.
//   - Fails with ErrProfileIncomplete for users without a completed profile.
//   - Candidates exclude the user and anyone sharing a match with them in
//     any status; the pool is capped before ranking.
//   - MaxChoicesAllowed is frozen from the tier at creation.
//   - Two racing first accesses both end up with the row that won the
//     (user, day) unique index.
//
// Example:
//
//	sel, err := engine.GenerateSelection(ctx, 42, engine.Today())
func (e *Engine) GenerateSelection(ctx context.Context, userID uint64, day string) (*db.Selection, error) {
	existing, err := e.selections.FindByUserDay(ctx, userID, day)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load selection: %w", err)
	}

	user, err := e.users.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound(fmt.Sprintf("user %d", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.ProfileCompleted {
		return nil, fmt.Errorf("%w: user %d", svcErr.ErrProfileIncomplete, userID)
	}

	ranked, err := e.rankCandidates(ctx, *user)
	if err != nil {
		return nil, err
	}

	sel := &db.Selection{
		UserID:            userID,
		SelectionDate:     day,
		CandidateIDs:      datatypes.NewJSONSlice(ranked),
		ChosenIDs:         datatypes.NewJSONSlice([]uint64{}),
		MaxChoicesAllowed: e.settings.QuotaForTier(user.Tier),
	}
	created, err := e.selections.CreateIfAbsent(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("create selection: %w", err)
	}
	if !created {
		return e.selections.FindByUserDay(ctx, userID, day)
	}

	e.logger.Debug("selection generated", "user_id", userID, "day", day, "candidates", len(ranked))
	return sel, nil
}

func (e *Engine) rankCandidates(ctx context.Context, user db.User) ([]uint64, error) {
	pool, err := e.users.ListCandidatePool(ctx, user.ID, e.settings.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}
	if len(pool) == 0 {
		return []uint64{}, nil
	}

	profiles := make([]scoring.Profile, 0, len(pool))
	inPool := make(map[uint64]struct{}, len(pool))
	for _, c := range pool {
		profiles = append(profiles, scoring.ProfileOf(c))
		inPool[c.ID] = struct{}{}
	}

	results, err := e.scorer.Score(ctx, scoring.ProfileOf(user), profiles)
	if err != nil {
		// the configured scorer is a Fallback over Local, so this is a wiring bug
		e.logger.Error("scoring failed, using local scores", "user_id", user.ID, "err", err)
		results, _ = scoring.NewLocal().Score(ctx, scoring.ProfileOf(user), profiles)
	}

	filtered := results[:0:0]
	for _, r := range results {
		if _, ok := inPool[r.UserID]; ok {
			filtered = append(filtered, r)
			delete(inPool, r.UserID)
		}
	}

	top := scoring.Rank(filtered, e.settings.SelectionSize)
	ids := make([]uint64, 0, len(top))
	for _, r := range top {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// GetDailySelection generates (if needed) today's selection and loads
// the candidate profiles in rank order.
func (e *Engine) GetDailySelection(ctx context.Context, userID uint64) (*DailySelection, error) {
	sel, err := e.GenerateSelection(ctx, userID, e.Today())
	if err != nil {
		return nil, err
	}
	users, err := e.users.GetMany(ctx, sel.CandidateIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	byID := make(map[uint64]db.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	ordered := make([]db.User, 0, len(sel.CandidateIDs))
	for _, id := range sel.CandidateIDs {
		if u, ok := byID[id]; ok {
			ordered = append(ordered, u)
		}
	}
	return &DailySelection{
		Selection:  sel,
		Candidates: ordered,
		Remaining:  max(sel.MaxChoicesAllowed-sel.ChoicesUsed, 0),
	}, nil
}

// ChooseProfile spends one choice on targetID from today's selection
// without running match detection. RecordChoice is the full flow.
func (e *Engine) ChooseProfile(ctx context.Context, userID, targetID uint64, choice db.ChoiceType) (*db.Selection, error) {
	if err := validateChoice(userID, targetID, choice); err != nil {
		return nil, err
	}
	day := e.Today()
	if _, err := e.GenerateSelection(ctx, userID, day); err != nil {
		return nil, err
	}

	var sel *db.Selection
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sel, _, err = e.chooseInTx(ctx, tx, userID, targetID, choice, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// chooseInTx checks the quota in order (selection membership, remaining
// quota, duplicates), then persists the selection and the choice log row
// through tx.
func (e *Engine) chooseInTx(
	ctx context.Context,
	tx *gorm.DB,
	userID, targetID uint64,
	choice db.ChoiceType,
	day string,
) (*db.Selection, *db.Choice, error) {
	sel, err := e.selections.WithTx(tx).LockByUserDay(ctx, userID, day)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, svcErr.NotFound("selection")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock selection: %w", err)
	}

	if !slices.Contains(sel.CandidateIDs, targetID) {
		return nil, nil, fmt.Errorf("%w: user %d", svcErr.ErrNotInSelection, targetID)
	}
	if sel.ChoicesUsed >= sel.MaxChoicesAllowed {
		return nil, nil, fmt.Errorf("%w: %d of %d used", svcErr.ErrQuotaExceeded, sel.ChoicesUsed, sel.MaxChoicesAllowed)
	}
	if slices.Contains(sel.ChosenIDs, targetID) {
		return nil, nil, fmt.Errorf("%w: user %d", svcErr.ErrAlreadyChosen, targetID)
	}

	sel.ChosenIDs = append(sel.ChosenIDs, targetID)
	sel.ChoicesUsed++
	if err := e.selections.WithTx(tx).SaveQuota(ctx, sel); err != nil {
		return nil, nil, fmt.Errorf("save selection: %w", err)
	}

	c := &db.Choice{
		UserID:       userID,
		TargetUserID: targetID,
		SelectionID:  sel.ID,
		ChoiceType:   choice,
		CreatedAt:    e.now(),
	}
	if err := e.choices.WithTx(tx).Append(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, fmt.Errorf("%w: user %d", svcErr.ErrAlreadyChosen, targetID)
		}
		return nil, nil, fmt.Errorf("append choice: %w", err)
	}
	return sel, c, nil
}

func validateChoice(userID, targetID uint64, choice db.ChoiceType) error {
	if userID == 0 || targetID == 0 {
		return svcErr.Invalid("user ids are required")
	}
	if userID == targetID {
		return svcErr.Invalid("cannot choose yourself")
	}
	if choice != db.ChoiceLike && choice != db.ChoicePass {
		return svcErr.Invalid("choice must be like or pass, got %q", choice)
	}
	return nil
}

// BatchResult summarises a batch over many rows. Per-row failures are
// collected, not returned.
type BatchResult struct {
	Processed    int
	SuccessCount int
	ErrorCount   int
	Errors       []error
}

// GenerateDailySelections creates today's selection for every eligible
// user. Only a failure to enumerate users aborts the run.
func (e *Engine) GenerateDailySelections(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	day := e.Today()
	var after uint64
	for {
		ids, err := e.users.ListEligibleIDs(ctx, after, eligiblePageSize)
		if err != nil {
			return res, fmt.Errorf("list eligible users: %w", err)
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Processed++
			if _, err := e.GenerateSelection(ctx, id, day); err != nil {
				res.ErrorCount++
				res.Errors = append(res.Errors, fmt.Errorf("user %d: %w", id, err))
				continue
			}
			res.SuccessCount++
		}
		if len(ids) < eligiblePageSize {
			return res, nil
		}
		after = ids[len(ids)-1]
	}
}

// PurgeSelections deletes selections past the retention window.
func (e *Engine) PurgeSelections(ctx context.Context) (int64, error) {
	days := e.settings.RetentionDays
	if days <= 0 {
		return 0, nil
	}
	cutoff := e.now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(DayLayout)
	return e.selections.DeleteBefore(ctx, cutoff)
}
