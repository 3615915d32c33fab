package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/logger"
	"github.com/oggyb/muzz-daily/internal/server"
	"github.com/oggyb/muzz-daily/internal/service/chat"
	"github.com/oggyb/muzz-daily/internal/service/daily"
	"github.com/oggyb/muzz-daily/internal/service/ops"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	if cfg.App.ENV == config.EnvDevelopment {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx, err := app.New(cfg, database, redisCache, log, app.Options{})
	if err != nil {
		log.Error("failed to build app", "err", err)
		os.Exit(1)
	}
	defer appCtx.Close()

	srv := server.New(log,
		daily.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		ops.NewRegistrar(appCtx),
	)

	g, gctx := errgroup.WithContext(ctx)
	appCtx.Scheduler.Start(gctx)
	g.Go(func() error { return appCtx.Relay.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
