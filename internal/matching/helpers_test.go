package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/conversation"
	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/matching"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/scoring"
	"github.com/oggyb/muzz-daily/internal/testutil"
)

type env struct {
	db     *gorm.DB
	cache  *cache.RedisCache
	clock  *testutil.Clock
	engine *matching.Engine
	convs  *conversation.Manager
	relay  *outbox.Relay
	notes  *notify.Recorder
	events *realtime.Recorder
}

func newEnv(t *testing.T, scorer scoring.Scorer) *env {
	t.Helper()
	gdb := testutil.NewDB(t)
	rc, _ := testutil.NewCache(t)
	clock := testutil.NewClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	notes := &notify.Recorder{}
	events := &realtime.Recorder{}
	log := logger.Discard()

	relay := outbox.NewRelay(gdb, events, notes, log)
	relay.SetClock(clock.Now)

	convs := conversation.NewManager(conversation.Deps{
		DB:        gdb,
		Publisher: events,
		Notifier:  notes,
		Logger:    log,
		Now:       clock.Now,
	}, conversation.DefaultSettings())

	engine := matching.NewEngine(matching.Deps{
		DB:     gdb,
		Cache:  rc,
		Scorer: scorer,
		Opener: convs,
		Logger: log,
		Now:    clock.Now,
	}, matching.DefaultSettings())

	return &env{db: gdb, cache: rc, clock: clock, engine: engine, convs: convs, relay: relay, notes: notes, events: events}
}

func (e *env) users(t *testing.T, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		testutil.SeedUser(t, e.db, id)
	}
}

func (e *env) selection(t *testing.T, userID uint64) *db.Selection {
	t.Helper()
	sel, err := e.engine.GenerateSelection(context.Background(), userID, e.engine.Today())
	require.NoError(t, err)
	return sel
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	_, err := e.relay.ProcessPending(context.Background())
	require.NoError(t, err)
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
