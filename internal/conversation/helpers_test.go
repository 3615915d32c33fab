package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/conversation"
	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/repository"
	"github.com/oggyb/muzz-daily/internal/testutil"
)

type env struct {
	db     *gorm.DB
	clock  *testutil.Clock
	mgr    *conversation.Manager
	relay  *outbox.Relay
	notes  *notify.Recorder
	events *realtime.Recorder
}

func newEnv(t *testing.T, store func(*repository.ConversationRepository) conversation.SweepStore) *env {
	t.Helper()
	gdb := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	notes := &notify.Recorder{}
	events := &realtime.Recorder{}

	var s conversation.SweepStore
	if store != nil {
		s = store(repository.NewConversationRepository(gdb))
	}
	mgr := conversation.NewManager(conversation.Deps{
		DB:        gdb,
		Store:     s,
		Publisher: events,
		Notifier:  notes,
		Logger:    logger.Discard(),
		Now:       clock.Now,
	}, conversation.DefaultSettings())

	relay := outbox.NewRelay(gdb, events, notes, logger.Discard())
	relay.SetClock(clock.Now)

	for _, id := range []uint64{1, 2, 3} {
		testutil.SeedUser(t, gdb, id)
	}
	return &env{db: gdb, clock: clock, mgr: mgr, relay: relay, notes: notes, events: events}
}

// match inserts a matched match initiated by a towards b at matchedAt.
func (e *env) match(t *testing.T, a, b uint64, matchedAt time.Time) *db.Match {
	t.Helper()
	low, high := repository.OrderPair(a, b)
	m := &db.Match{User1ID: a, User2ID: b, PairLow: low, PairHigh: high, Status: db.MatchMatched, MatchedAt: &matchedAt}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

// open creates the conversation for a fresh 1→2 match.
func (e *env) open(t *testing.T) *db.Conversation {
	t.Helper()
	m := e.match(t, 1, 2, e.clock.Now())
	res, err := e.mgr.AcceptChatRequest(context.Background(), m.ID, 2, true)
	require.NoError(t, err)
	return res.Conversation
}

// conv inserts a conversation row directly.
func (e *env) conv(t *testing.T, status db.ConversationStatus, expiresAt time.Time) *db.Conversation {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&db.Conversation{}).Count(&n).Error)
	c := &db.Conversation{
		MatchID:   uint64(1000 + n),
		User1ID:   1,
		User2ID:   2,
		Status:    status,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *env) reload(t *testing.T, id uint64) *db.Conversation {
	t.Helper()
	var c db.Conversation
	require.NoError(t, e.db.First(&c, id).Error)
	return &c
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	_, err := e.relay.ProcessPending(context.Background())
	require.NoError(t, err)
}
