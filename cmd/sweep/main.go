// Command sweep runs one scheduled job by hand, for local debugging.
// It goes through the same manual trigger as the Ops API and therefore
// refuses to run when APP_ENV=production.
//
//	go run ./cmd/sweep -job expire-conversations
//	go run ./cmd/sweep -list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/oggyb/muzz-daily/internal/app"
	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/config"
	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/logger"
)

func main() {
	job := flag.String("job", "", "job to run, see -list")
	list := flag.Bool("list", false, "list jobs and exit")
	flag.Parse()

	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()

	appCtx, err := app.New(cfg, database, redisCache, log, app.Options{})
	if err != nil {
		log.Error("failed to build app", "err", err)
		os.Exit(1)
	}
	defer appCtx.Close()

	if *list {
		for _, j := range appCtx.Scheduler.Jobs() {
			fmt.Printf("%-22s every %s\n", j.Name, j.Interval)
		}
		return
	}
	if *job == "" {
		flag.Usage()
		os.Exit(2)
	}

	rep, err := appCtx.Scheduler.Trigger(context.Background(), *job)
	if err != nil {
		log.Error("job failed", "job", *job, "err", err)
		os.Exit(1)
	}
	// deliver whatever the job queued before exiting
	if _, err := appCtx.Relay.ProcessPending(context.Background()); err != nil {
		log.Warn("outbox flush failed", "err", err)
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))
}
