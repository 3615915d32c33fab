package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/realtime"
)

// App is a fully wired AppContext over sqlite and miniredis, with
// in-memory delivery and a controllable clock.
type App struct {
	*app.AppContext
	Clock  *Clock
	Notes  *notify.Recorder
	Events *realtime.Recorder
}

// NewApp wires an AppContext for env ("development", "production", ...).
func NewApp(t *testing.T, env string) *App {
	t.Helper()
	cfg := config.New()
	cfg.App.ENV = env

	clock := NewClock(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
	rdb, _ := NewCache(t)
	notes := &notify.Recorder{}
	events := &realtime.Recorder{}

	a, err := app.New(cfg, NewDB(t), rdb, logger.Discard(), app.Options{
		Publisher: events,
		Notifier:  notes,
		Now:       clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &App{AppContext: a, Clock: clock, Notes: notes, Events: events}
}
