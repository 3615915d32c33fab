package matching

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/utils/pagination"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ChoiceResult is the outcome of RecordChoice.
type ChoiceResult struct {
	Selection    *db.Selection
	Choice       *db.Choice
	IsMatch      bool
	NewMatch     bool
	Match        *db.Match
	Conversation *db.Conversation
}

// RecordChoice is the full choice flow: lazy selection generation, quota
// enforcement and, for likes, match detection, all in one transaction.
//
// Behavior:
//   - A pass only spends quota.
//   - A like confirms a match immediately. The conversation opens right
//     away when the target had already liked the caller, otherwise when
//     the invited side accepts or likes back.
//   - Repeating a like on a matched pair returns the existing match and
//     fans out nothing new.
//   - Notifications and realtime events go through the outbox, so their
//     failure never rolls back the choice.
//
// Example:
//
//	res, err := engine.RecordChoice(ctx, 1, 2, db.ChoiceLike)
//	if res.IsMatch { ... }
func (e *Engine) RecordChoice(ctx context.Context, userID, targetID uint64, choice db.ChoiceType) (*ChoiceResult, error) {
	if err := validateChoice(userID, targetID, choice); err != nil {
		return nil, err
	}
	day := e.Today()
	if _, err := e.GenerateSelection(ctx, userID, day); err != nil {
		return nil, err
	}

	var res *ChoiceResult
	err := withRetry(ctx, func() error {
		res = &ChoiceResult{}
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sel, c, err := e.chooseInTx(ctx, tx, userID, targetID, choice, day)
			if err != nil {
				return err
			}
			res.Selection, res.Choice = sel, c

			if choice != db.ChoiceLike {
				return nil
			}
			return e.detect(ctx, tx, userID, targetID, res)
		})
	})
	if err != nil {
		return nil, err
	}

	if res.NewMatch {
		e.invalidateCounts(ctx, res.Match.User1ID, res.Match.User2ID)
	}
	if res.IsMatch {
		e.kick()
	}
	return res, nil
}

// detect runs inside the choice transaction. The first lookup is a plain
// read; the unordered-pair unique index decides concurrent creations. The
// loser's insert does nothing, and it then reads the winner's row under a
// lock and carries on as if the row had been there all along.
func (e *Engine) detect(ctx context.Context, tx *gorm.DB, actorID, targetID uint64, res *ChoiceResult) error {
	matches := e.matches.WithTx(tx)

	_, err := matches.FindByPair(ctx, actorID, targetID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := e.now()
		m := &db.Match{User1ID: actorID, User2ID: targetID, Status: db.MatchMatched, MatchedAt: &now}
		created, err := matches.CreateIfAbsent(ctx, m)
		if err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		if created {
			return e.confirmNew(ctx, tx, m, res)
		}
		e.logger.Debug("match insert lost race", "initiator", actorID, "target", targetID)
	case err != nil:
		return fmt.Errorf("find match: %w", err)
	}

	m, err := matches.LockByPair(ctx, actorID, targetID)
	if err != nil {
		return fmt.Errorf("lock match: %w", err)
	}
	return e.existing(ctx, tx, m, actorID, res)
}

func (e *Engine) confirmNew(ctx context.Context, tx *gorm.DB, m *db.Match, res *ChoiceResult) error {
	res.IsMatch, res.NewMatch, res.Match = true, true, m

	reciprocal, err := e.choices.WithTx(tx).HasLiked(ctx, m.User2ID, m.User1ID)
	if err != nil {
		return fmt.Errorf("check reciprocal like: %w", err)
	}
	if reciprocal {
		conv, _, err := e.opener.OpenForMatch(ctx, tx, m)
		if err != nil {
			return err
		}
		res.Conversation = conv
	}

	entries := make([]db.OutboxEntry, 0, 4)
	for _, uid := range []uint64{m.User1ID, m.User2ID} {
		payload := map[string]any{"matchId": m.ID, "userId": m.Other(uid)}
		if res.Conversation != nil {
			payload["conversationId"] = res.Conversation.ID
		}
		entries = append(entries,
			outbox.Notification(uid, notify.TypeNewMatch, payload),
			outbox.Event(realtime.EventNewMatch, realtime.UserRoom(uid), payload),
		)
	}
	if err := outbox.Enqueue(ctx, tx, e.now(), entries...); err != nil {
		return fmt.Errorf("enqueue match side effects: %w", err)
	}

	e.logger.Info("match confirmed", "match_id", m.ID, "initiator", m.User1ID, "invited", m.User2ID,
		"conversation", res.Conversation != nil)
	return nil
}

func (e *Engine) existing(ctx context.Context, tx *gorm.DB, m *db.Match, actorID uint64, res *ChoiceResult) error {
	res.Match = m
	switch m.Status {
	case db.MatchRejected, db.MatchExpired:
		return nil
	case db.MatchPending:
		now := e.now()
		if err := e.matches.WithTx(tx).UpdateStatus(ctx, m.ID, db.MatchMatched); err != nil {
			return fmt.Errorf("confirm pending match: %w", err)
		}
		if err := tx.WithContext(ctx).Model(m).Update("matched_at", now).Error; err != nil {
			return fmt.Errorf("stamp match: %w", err)
		}
		m.Status, m.MatchedAt = db.MatchMatched, &now
		return e.confirmNew(ctx, tx, m, res)
	}

	res.IsMatch = true
	if actorID != m.User2ID {
		// the initiator liking again changes nothing
		return nil
	}
	conv, _, err := e.opener.OpenForMatch(ctx, tx, m)
	if err != nil {
		return err
	}
	res.Conversation = conv
	return nil
}

// DeleteMatch hard-deletes a match with its conversation and messages.
// Either participant may do it.
func (e *Engine) DeleteMatch(ctx context.Context, userID, matchID uint64) error {
	var m *db.Match
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = e.matches.WithTx(tx).Lock(ctx, matchID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound(fmt.Sprintf("match %d", matchID))
		}
		if err != nil {
			return fmt.Errorf("lock match: %w", err)
		}
		if !m.HasParticipant(userID) {
			return fmt.Errorf("%w: user %d is not part of match %d", svcErr.ErrForbidden, userID, matchID)
		}

		var convIDs []uint64
		if err := tx.WithContext(ctx).Model(&db.Conversation{}).
			Where("match_id = ?", matchID).Pluck("id", &convIDs).Error; err != nil {
			return fmt.Errorf("find conversation: %w", err)
		}
		if len(convIDs) > 0 {
			if err := tx.WithContext(ctx).Where("conversation_id IN ?", convIDs).Delete(&db.Message{}).Error; err != nil {
				return fmt.Errorf("delete messages: %w", err)
			}
			if err := tx.WithContext(ctx).Where("id IN ?", convIDs).Delete(&db.Conversation{}).Error; err != nil {
				return fmt.Errorf("delete conversation: %w", err)
			}
		}
		return e.matches.WithTx(tx).Delete(ctx, matchID)
	})
	if err != nil {
		return err
	}

	e.invalidateCounts(ctx, m.User1ID, m.User2ID)
	e.logger.Info("match deleted", "match_id", matchID, "by", userID)
	return nil
}

// CountMatches returns how many confirmed matches a user has.
// Cache-first strategy:
//  1. Read matches:count:<id> from Redis, refreshing its TTL.
//  2. On a miss or a Redis error, count in the DB.
//  3. Write the DB count back with a 1h TTL.
func (e *Engine) CountMatches(ctx context.Context, userID uint64) (int64, error) {
	if e.cache != nil {
		n, ok, err := e.cache.GetMatchCount(ctx, userID)
		if err != nil {
			e.logger.Warn("match count cache read failed", "user_id", userID, "err", err)
		}
		if ok {
			return n, nil
		}
	}

	n, err := e.matches.CountMatched(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	if e.cache != nil {
		if err := e.cache.SetMatchCount(ctx, userID, n); err != nil {
			e.logger.Warn("match count cache write failed", "user_id", userID, "err", err)
		}
	}
	return n, nil
}

// ListChoices pages through a user's choice history, newest first.
func (e *Engine) ListChoices(ctx context.Context, userID uint64, token *string, limit int) ([]db.Choice, *string, error) {
	limit = pagination.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit)
	choices, next, err := e.choices.ListHistory(ctx, userID, token, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, nil, svcErr.Invalid("bad pagination token")
		}
		return nil, nil, err
	}
	return choices, next, nil
}

func (e *Engine) invalidateCounts(ctx context.Context, ids ...uint64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateMatchCounts(ctx, ids...); err != nil {
		e.logger.Warn("match count invalidation failed", "users", ids, "err", err)
	}
}
