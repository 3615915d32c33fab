package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/conversation"
	"github.com/oggyb/muzz-daily/internal/matching"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/outbox"
	"github.com/oggyb/muzz-daily/internal/presence"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/repository"
	"github.com/oggyb/muzz-daily/internal/scheduler"
	"github.com/oggyb/muzz-daily/internal/scoring"
)

// Job names, as accepted by manual triggers.
const (
	JobExpireConversations = "expire-conversations"
	JobWarnConversations   = "warn-conversations"
	JobCleanup             = "cleanup"
	JobDailySelections     = "daily-selections"
	JobPresenceCleanup     = "presence-cleanup"
	JobOutboxRelay         = "outbox-relay"
)

// sentOutboxRetention is how long delivered outbox rows are kept for auditing.
const sentOutboxRetention = 7 * 24 * time.Hour

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// components built on top of them.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Publisher     realtime.Publisher
	Notifier      notify.Notifier
	Relay         *outbox.Relay
	Presence      *presence.Hub
	Matching      *matching.Engine
	Conversations *conversation.Manager
	Scheduler     *scheduler.Scheduler
}

// Options overrides collaborators, mostly for tests. Zero values build
// the Redis-backed defaults.
type Options struct {
	Publisher realtime.Publisher
	Notifier  notify.Notifier
	Scorer    scoring.Scorer
	Now       func() time.Time
}

// New wires every component and registers the scheduled jobs. Nothing is
// started; see Scheduler.Start and Relay.Run.
func New(cfg *config.Config, database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts Options) (*AppContext, error) {
	a := &AppContext{
		Config:     cfg,
		DB:         database,
		RedisCache: rdb,
		Logger:     logger,
		Publisher:  opts.Publisher,
		Notifier:   opts.Notifier,
	}
	if a.Publisher == nil {
		a.Publisher = realtime.NewRedisPublisher(rdb)
	}
	if a.Notifier == nil {
		a.Notifier = notify.NewQueueNotifier(rdb)
	}

	a.Relay = outbox.NewRelay(database, a.Publisher, a.Notifier, logger.With("component", "outbox"))
	if opts.Now != nil {
		a.Relay.SetClock(opts.Now)
	}

	tracker := presence.NewTracker(presence.Options{
		OnlineWindow:  cfg.Presence.OnlineWindow,
		TypingTimeout: cfg.Presence.TypingTimeout,
		Store:         repository.NewUserRepository(database),
		Now:           opts.Now,
		Logger:        logger,
	})
	a.Presence = presence.NewHub(tracker, a.Publisher, logger)

	a.Conversations = conversation.NewManager(conversation.Deps{
		DB:        database,
		Publisher: a.Publisher,
		Notifier:  a.Notifier,
		Kicker:    a.Relay,
		Logger:    logger.With("component", "conversation"),
		Now:       opts.Now,
	}, conversation.SettingsFromConfig(cfg))

	scorer := opts.Scorer
	if scorer == nil {
		scorer = buildScorer(cfg, logger)
	}
	a.Matching = matching.NewEngine(matching.Deps{
		DB:     database,
		Cache:  rdb,
		Scorer: scorer,
		Opener: a.Conversations,
		Kicker: a.Relay,
		Logger: logger.With("component", "matching"),
		Now:    opts.Now,
	}, matching.SettingsFromConfig(cfg))

	a.Scheduler = scheduler.New(cfg.IsProduction(), logger.With("component", "scheduler"))
	if err := a.registerJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

// Close stops background work owned by the context.
func (a *AppContext) Close() {
	a.Scheduler.Stop()
	a.Presence.Tracker().Close()
}

func buildScorer(cfg *config.Config, logger *slog.Logger) scoring.Scorer {
	local := scoring.NewLocal()
	if cfg.Scoring.URL == "" {
		return local
	}
	remote := scoring.NewRemote(cfg.Scoring.URL, &http.Client{})
	return scoring.NewFallback(remote, local, cfg.Scoring.Timeout, logger)
}

func (a *AppContext) registerJobs() error {
	s := a.Config.Scheduler
	jobs := []scheduler.Job{
		{
			Name:     JobExpireConversations,
			Interval: s.ExpiryInterval,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				res, err := a.Conversations.SweepExpired(ctx)
				return fromSweep(res), err
			},
		},
		{
			Name:     JobWarnConversations,
			Interval: s.WarningInterval,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				res, err := a.Conversations.SweepWarnings(ctx)
				return fromSweep(res), err
			},
		},
		{
			Name:     JobCleanup,
			Interval: s.CleanupInterval,
			Run:      a.cleanup,
		},
		{
			Name:       JobDailySelections,
			Interval:   s.SelectionInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				res, err := a.Matching.GenerateDailySelections(ctx)
				return fromBatch(res), err
			},
		},
		{
			Name:     JobPresenceCleanup,
			Interval: s.PresenceInterval,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				stale := a.Presence.Sweep(ctx)
				return scheduler.Report{Processed: len(stale), Succeeded: len(stale)}, nil
			},
		},
		{
			Name:       JobOutboxRelay,
			Interval:   s.OutboxInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				rep, err := a.Relay.ProcessPending(ctx)
				return scheduler.Report{
					Processed: rep.Processed,
					Succeeded: rep.Sent,
					Failed:    rep.Retried + rep.Failed,
				}, err
			},
		},
	}
	for _, j := range jobs {
		if err := a.Scheduler.Register(j); err != nil {
			return fmt.Errorf("register job %s: %w", j.Name, err)
		}
	}
	return nil
}

// cleanup purges old conversations, then old selections and delivered
// outbox rows. Each part runs even if an earlier one failed.
func (a *AppContext) cleanup(ctx context.Context) (scheduler.Report, error) {
	res, err := a.Conversations.SweepCleanup(ctx)
	rep := fromSweep(res)
	if err != nil {
		rep.Failed++
		rep.Errors = append(rep.Errors, err.Error())
	}

	if n, err := a.Matching.PurgeSelections(ctx); err != nil {
		rep.Failed++
		rep.Errors = append(rep.Errors, fmt.Sprintf("purge selections: %v", err))
	} else {
		rep.Processed += int(n)
		rep.Succeeded += int(n)
	}

	if n, err := a.Relay.PurgeSent(ctx, sentOutboxRetention); err != nil {
		rep.Failed++
		rep.Errors = append(rep.Errors, fmt.Sprintf("purge outbox: %v", err))
	} else {
		rep.Processed += int(n)
		rep.Succeeded += int(n)
	}
	return rep, nil
}

func fromSweep(res conversation.SweepResult) scheduler.Report {
	return scheduler.Report{
		Processed: res.Processed,
		Succeeded: res.SuccessCount,
		Failed:    res.ErrorCount,
		Errors:    errStrings(res.Errors),
	}
}

func fromBatch(res matching.BatchResult) scheduler.Report {
	return scheduler.Report{
		Processed: res.Processed,
		Succeeded: res.SuccessCount,
		Failed:    res.ErrorCount,
		Errors:    errStrings(res.Errors),
	}
}

func errStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
