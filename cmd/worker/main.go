// Command worker runs the outbox drain loop as a standalone process
// (spec.md §5/§11 C8), deliberately separate from appserver: each process
// owns its own *sql.DB pool, so a worker restart or crash never disturbs API
// request handling and vice versa ("fresh engine per task").
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dispatchcore/platform/internal/adapters/botapi"
	"github.com/dispatchcore/platform/internal/adapters/webchat"
	"github.com/dispatchcore/platform/internal/config"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/database"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/migrations"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	outboxsvc "github.com/dispatchcore/platform/internal/services/outbox"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/dispatchcore/platform/internal/storage/memory"
	"github.com/dispatchcore/platform/internal/storage/postgres"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", false, "run embedded database migrations on startup (the appserver process normally owns this)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = cfg.DatabaseURL
	}

	logger := logging.New("outbox-worker", cfg.LogLevel, cfg.LogFormat)
	rootCtx := context.Background()

	var (
		db          *sql.DB
		users       storage.UserStore
		stations    storage.StationStore
		outboxStore storage.OutboxStore
	)

	if dsnVal != "" {
		db, err = database.Open(rootCtx, dsnVal, database.Options{
			MaxOpenConns:    cfg.DBMaxConnections,
			MaxIdleConns:    cfg.DBMaxConnections / 4,
			ConnMaxIdleTime: cfg.DBIdleTimeout,
		})
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		store := postgres.New(db)
		users, stations, outboxStore = store, store, store
	} else {
		logger.Warn(rootCtx, "DATABASE_URL unset: draining the in-memory storage double, not for production use", nil)
		store := memory.New()
		users, stations, outboxStore = store, store, store
	}
	if db != nil {
		defer db.Close()
	}

	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	senders := map[user.Platform]outboxsvc.Sender{
		user.PlatformBotAPI: botapi.New(cfg.BotAPIToken, ""),
	}
	if cfg.WebChatBaseURL != "" {
		senders[user.PlatformWebChat] = webchat.New(cfg.WebChatBaseURL)
	}

	worker := outboxsvc.New(outboxStore, users, stations, breakers, senders, logger, outboxsvc.Config{
		BaseBackoff: time.Duration(0),
		MaxBackoff:  time.Duration(cfg.OutboxMaxBackoffSeconds) * time.Second,
	})

	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	go func() {
		logger.Info(ctx, "outbox worker draining", map[string]any{"prefetch": cfg.WorkerPrefetch})
		worker.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}
