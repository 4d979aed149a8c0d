// Command appserver runs the dispatch core's HTTP surface: webhook intake,
// OTP/JWT auth, health/readiness, and the admin debug endpoints (spec.md
// §6/§11 C11). Grounded on the teacher's cmd/appserver/main.go: flag
// overrides layered over config.Load, explicit store construction, graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dispatchcore/platform/internal/adapters/botapi"
	"github.com/dispatchcore/platform/internal/adapters/webchat"
	"github.com/dispatchcore/platform/internal/config"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/httpapi"
	"github.com/dispatchcore/platform/internal/platform/database"
	"github.com/dispatchcore/platform/internal/platform/kv"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/migrations"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	authsvc "github.com/dispatchcore/platform/internal/services/auth"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/conversation/callbacktoken"
	"github.com/dispatchcore/platform/internal/services/conversation/roles"
	outboxsvc "github.com/dispatchcore/platform/internal/services/outbox"
	"github.com/dispatchcore/platform/internal/services/shipment"
	walletsvc "github.com/dispatchcore/platform/internal/services/wallet"
	"github.com/dispatchcore/platform/internal/services/webhook"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/dispatchcore/platform/internal/storage/memory"
	"github.com/dispatchcore/platform/internal/storage/postgres"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = cfg.HTTPAddr
	}

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = cfg.DatabaseURL
	}

	logger := logging.New("appserver", cfg.LogLevel, cfg.LogFormat)
	rootCtx := context.Background()

	var (
		db    *sql.DB
		users storage.UserStore
		stations storage.StationStore
		deliveries storage.DeliveryStore
		wallets storage.WalletStore
		conversations storage.ConversationStore
		outboxStore storage.OutboxStore
		webhooks storage.WebhookStore
		authStore storage.AuthStore
		audit storage.AuditStore
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
		users, stations, deliveries, wallets = store, store, store, store
		conversations, outboxStore, webhooks, authStore, audit = store, store, store, store, store
	} else {
		logger.Warn(rootCtx, "DATABASE_URL unset: running against the in-memory storage double, not for production use", nil)
		store := memory.New()
		users, stations, deliveries, wallets = store, store, store, store
		conversations, outboxStore, webhooks, authStore, audit = store, store, store, store, store
	}
	if db != nil {
		defer db.Close()
	}

	var kvStore kv.Store
	if cfg.KeyValueURL != "" {
		redisStore, err := kv.NewRedisStore(cfg.KeyValueURL)
		if err != nil {
			log.Fatalf("connect to redis: %v", err)
		}
		kvStore = redisStore
	} else {
		kvStore = kv.NewMemory()
	}

	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	walletSvc := walletsvc.New(wallets, logger)
	shipments := shipment.New(deliveries, stations, outboxStore, walletSvc, logger)

	roleDeps := &roles.Deps{
		Users:       users,
		Stations:    stations,
		Outbox:      outboxStore,
		Audit:       audit,
		WalletStore: wallets,
		Shipments:   shipments,
		Wallets:     walletSvc,
		Callbacks:   callbacktoken.New(kvStore),
		Log:         logger,
	}

	graph := conversation.BuildDefaultGraph()
	engine := conversation.New(conversations, graph, logger)

	authService := authsvc.New(users, stations, authStore, kvStore, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.OTPTTL)
	webhookService := webhook.New(webhooks, users, stations, engine, roleDeps, logger)

	senders := map[user.Platform]outboxsvc.Sender{
		user.PlatformBotAPI: botapi.New(cfg.BotAPIToken, ""),
	}
	if cfg.WebChatBaseURL != "" {
		senders[user.PlatformWebChat] = webchat.New(cfg.WebChatBaseURL)
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Config:   cfg,
		DB:       db,
		KV:       kvStore,
		Outbox:   outboxStore,
		Users:    users,
		Stations: stations,
		Breakers: breakers,
		Engine:   engine,
		Webhooks: webhookService,
		Auth:     authService,
		Senders:  senders,
		Log:      logger,
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(rootCtx, "appserver listening", map[string]any{"addr": listenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
