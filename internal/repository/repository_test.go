package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/repository"
)

func TestListCandidatePool_ExcludesSelfMatchedAndIncomplete(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewUserRepository(dbase)

	seedUser(t, dbase, 1, true)
	seedUser(t, dbase, 2, true)
	seedUser(t, dbase, 3, true)
	seedUser(t, dbase, 4, false) // incomplete profile
	seedUser(t, dbase, 5, true)

	// a rejected match still excludes the pair
	matches := repository.NewMatchRepository(dbase)
	_, err := matches.CreateIfAbsent(ctx, &db.Match{User1ID: 3, User2ID: 1, Status: db.MatchRejected})
	require.NoError(t, err)

	pool, err := repo.ListCandidatePool(ctx, 1, 50)
	require.NoError(t, err)

	var ids []uint64
	for _, u := range pool {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uint64{2, 5}, ids)
}

func TestListCandidatePool_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewUserRepository(dbase)
	for id := uint64(1); id <= 6; id++ {
		seedUser(t, dbase, id, true)
	}

	pool, err := repo.ListCandidatePool(ctx, 1, 3)
	require.NoError(t, err)
	assert.Len(t, pool, 3)
}

func TestLastActive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewUserRepository(dbase)
	seedUser(t, dbase, 1, true)

	got, err := repo.LastActiveAt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.TouchLastActive(ctx, 1, at))
	got, err = repo.LastActiveAt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, at.Equal(got))
}

func TestSelection_CreateIfAbsentIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewSelectionRepository(dbase)

	first := &db.Selection{
		UserID: 1, SelectionDate: "2026-10-15",
		CandidateIDs:      datatypes.NewJSONSlice([]uint64{4, 2, 9}),
		ChosenIDs:         datatypes.NewJSONSlice([]uint64{}),
		MaxChoicesAllowed: 1,
	}
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &db.Selection{
		UserID: 1, SelectionDate: "2026-10-15",
		CandidateIDs:      datatypes.NewJSONSlice([]uint64{7}),
		ChosenIDs:         datatypes.NewJSONSlice([]uint64{}),
		MaxChoicesAllowed: 3,
	}
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.FindByUserDay(ctx, 1, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 2, 9}, []uint64(got.CandidateIDs))
	assert.Equal(t, 1, got.MaxChoicesAllowed)
}

func TestSelection_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewSelectionRepository(dbase)

	for _, day := range []string{"2026-09-01", "2026-09-15", "2026-10-15"} {
		_, err := repo.CreateIfAbsent(ctx, &db.Selection{
			UserID: 1, SelectionDate: day,
			CandidateIDs: datatypes.NewJSONSlice([]uint64{2}), ChosenIDs: datatypes.NewJSONSlice([]uint64{}),
			MaxChoicesAllowed: 1,
		})
		require.NoError(t, err)
	}

	n, err := repo.DeleteBefore(ctx, "2026-09-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChoice_DuplicatePerDayRejected(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewChoiceRepository(dbase)

	require.NoError(t, repo.Append(ctx, &db.Choice{UserID: 1, TargetUserID: 2, SelectionID: 10, ChoiceType: db.ChoiceLike}))
	assert.Error(t, repo.Append(ctx, &db.Choice{UserID: 1, TargetUserID: 2, SelectionID: 10, ChoiceType: db.ChoicePass}))

	// same target on another day is a new row
	require.NoError(t, repo.Append(ctx, &db.Choice{UserID: 1, TargetUserID: 2, SelectionID: 11, ChoiceType: db.ChoicePass}))

	liked, err := repo.HasLiked(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = repo.HasLiked(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestChoice_ListHistoryPagination(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewChoiceRepository(dbase)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, repo.Append(ctx, &db.Choice{
			UserID: 1, TargetUserID: 100 + i, SelectionID: i, ChoiceType: db.ChoiceLike,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page1, next, err := repo.ListHistory(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, next)
	assert.Equal(t, uint64(105), page1[0].TargetUserID)
	assert.Equal(t, uint64(104), page1[1].TargetUserID)

	page2, next, err := repo.ListHistory(ctx, 1, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, uint64(103), page2[0].TargetUserID)

	page3, next, err := repo.ListHistory(ctx, 1, next, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Nil(t, next)
}

func TestMatch_CreateIfAbsentGuardsUnorderedPair(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewMatchRepository(dbase)
	now := time.Now().UTC()

	created, err := repo.CreateIfAbsent(ctx, &db.Match{User1ID: 1, User2ID: 2, Status: db.MatchMatched, MatchedAt: &now})
	require.NoError(t, err)
	assert.True(t, created)

	// reverse direction hits the same pair
	created, err = repo.CreateIfAbsent(ctx, &db.Match{User1ID: 2, User2ID: 1, Status: db.MatchMatched, MatchedAt: &now})
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, dbase.Model(&db.Match{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	m, err := repo.FindByPair(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.User1ID)

	n, err := repo.CountMatched(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindByPair(ctx, 1, 3)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, dbase.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.WithTx(tx).LockByPair(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, m.ID, locked.ID)
		return nil
	}))
}

func TestConversation_SweepQueries(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewConversationRepository(dbase)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	mk := func(matchID uint64, status db.ConversationStatus, expires time.Time) *db.Conversation {
		c := &db.Conversation{MatchID: matchID, User1ID: 1, User2ID: 2, Status: status, ExpiresAt: expires}
		created, err := repo.CreateIfAbsent(ctx, c)
		require.NoError(t, err)
		require.True(t, created)
		return c
	}

	past := mk(1, db.ConversationActive, now.Add(-time.Minute))
	mk(2, db.ConversationExpired, now.Add(-time.Hour))
	soon := mk(3, db.ConversationActive, now.Add(150*time.Minute))
	mk(4, db.ConversationActive, now.Add(5*time.Hour))

	expired, err := repo.ListActiveExpiredBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, past.ID, expired[0].ID)

	changed, err := repo.MarkExpired(ctx, past.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkExpired(ctx, past.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already expired is a no-op")

	expiring, err := repo.ListExpiringBetween(ctx, now.Add(2*time.Hour), now.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)

	require.NoError(t, repo.MarkWarned(ctx, soon.ID, now))
	expiring, err = repo.ListExpiringBetween(ctx, now.Add(2*time.Hour), now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expiring)

	// duplicate conversation for the same match is refused
	created, err := repo.CreateIfAbsent(ctx, &db.Conversation{MatchID: 1, User1ID: 1, User2ID: 2, Status: db.ConversationActive, ExpiresAt: now})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestMessage_ListAndRead(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewMessageRepository(dbase)
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &db.Message{
			ConversationID: 9, SenderID: 1, Content: "hi", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(ctx, &db.Message{ConversationID: 9, SenderID: 2, Content: "yo", CreatedAt: base.Add(time.Hour)}))

	msgs, next, err := repo.List(ctx, 9, nil, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
	assert.Nil(t, next)
	assert.Equal(t, "yo", msgs[0].Content)

	n, err := repo.MarkAllRead(ctx, 9, 2, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "only messages the reader received")

	ok, err := repo.MarkRead(ctx, 9, msgs[0].ID, 2, base)
	require.NoError(t, err)
	assert.False(t, ok, "cannot read your own message")
}

func TestOutbox_DueAndAttempts(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewOutboxRepository(dbase)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Add(ctx, []db.OutboxEntry{
		{EventID: "a", Kind: db.OutboxEvent, Type: "new_match", Status: db.OutboxPending, NextAttemptAt: now},
		{EventID: "b", Kind: db.OutboxNotification, Type: "new_match", UserID: 1, Status: db.OutboxPending, NextAttemptAt: now.Add(time.Hour)},
	}))

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].EventID)

	require.NoError(t, repo.MarkAttempt(ctx, due[0].ID, 1, "boom", now.Add(time.Minute), false))
	due, err = repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.ListDue(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.NoError(t, repo.MarkSent(ctx, due[0].ID, now))

	var sent db.OutboxEntry
	require.NoError(t, dbase.First(&sent, due[0].ID).Error)
	assert.Equal(t, db.OutboxSent, sent.Status)
}
