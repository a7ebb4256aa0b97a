package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jessevdk/go-flags"
	"github.com/voyagen/epgvault/internal/cache"
	"github.com/voyagen/epgvault/internal/config"
	"github.com/voyagen/epgvault/internal/fetcher"
	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/scheduler"
	"github.com/voyagen/epgvault/internal/server"
	"github.com/voyagen/epgvault/internal/service"
	"github.com/voyagen/epgvault/internal/store"
)

// cycleLockTTL bounds how long a crashed instance can hold the cycle lock.
const cycleLockTTL = 2 * time.Hour

type options struct {
	Config string `short:"c" long:"config" env:"EPGVAULT_CONFIG" description:"Optional config file path (YAML); else use env DATABASE_URL"`
	RunNow bool   `long:"run-now" description:"Trigger an import cycle at startup"`
	Once   bool   `long:"once" description:"Run one import cycle and exit"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the application and returns the process exit code. Deferred
// closes run before main exits.
func run(args []string) int {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 2
	}

	var cfg *config.Config
	var err error
	if opts.Config != "" {
		cfg, err = config.LoadFromFile(opts.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	hour, minute, err := cfg.ImportClock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version, err := store.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	log.Printf("database schema at version %d", version)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db: %v\n", err)
		return 1
	}
	defer db.Close()

	// Connect to Redis if REDIS_URL is configured.
	var appStore store.Store = db
	schedOpts := scheduler.Options{Hour: hour, Minute: minute, Location: cfg.Location}
	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			return 1
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "redis ping: %v\n", err)
			return 1
		}
		appStore = store.NewCachedStore(db, rds)
		schedOpts.Locker = cache.NewLock(rds, cache.CycleLockKey, cycleLockTTL)
		fmt.Fprintln(os.Stderr, "redis connected (caching and cycle lock enabled)")
	} else {
		fmt.Fprintln(os.Stderr, "redis disabled (REDIS_URL not set)")
	}

	fetch := fetcher.NewClient(fetcher.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Retries:   cfg.FetchRetries,
		Backoff:   cfg.FetchBackoff,
	})
	importer := service.NewImporter(appStore, fetch, cfg.BatchSize)
	cleaner := service.NewCleaner(appStore, cfg.RetentionDays, cfg.LogRetentionDays)
	sched := scheduler.New(appStore, importer, cleaner, schedOpts)

	if opts.Once {
		report, err := sched.RunCycle(ctx, models.TriggerManual)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cycle: %v\n", err)
			return 1
		}
		if report.Status == models.ImportStatusFailed {
			return 1
		}
		return 0
	}

	if opts.RunNow {
		if _, err := sched.Trigger(ctx, models.TriggerStartup); err != nil {
			log.Printf("startup cycle: %v", err)
		}
	}
	go sched.Start(ctx)

	srv := server.New(appStore, sched, fetch, cfg.ServerPort)
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		stop()
		sched.Wait()
		return 1
	}

	log.Printf("waiting for running import cycle to finish")
	sched.Wait()
	return 0
}
