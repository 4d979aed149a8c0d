// Package httpapi wires the HTTP transport surface (spec.md §6): webhook
// intake, auth (OTP/JWT), health/readiness, and the admin debug surface.
// Grounded on the teacher's internal/app/httpapi/handler.go routing style:
// a plain net/http.ServeMux, no third-party router, explicit writeJSON/
// writeError helpers, and a constant-time admin-token check.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/dispatchcore/platform/internal/config"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/kv"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/metrics"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	authsvc "github.com/dispatchcore/platform/internal/services/auth"
	"github.com/dispatchcore/platform/internal/services/conversation"
	outboxsvc "github.com/dispatchcore/platform/internal/services/outbox"
	"github.com/dispatchcore/platform/internal/services/webhook"
	"github.com/dispatchcore/platform/internal/storage"
)

// Deps bundles everything a handler method needs. Built once in cmd/appserver.
type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	KV       kv.Store
	Outbox   storage.OutboxStore
	Users    storage.UserStore
	Stations storage.StationStore
	Breakers *resilience.Registry
	Engine   *conversation.Engine
	Webhooks *webhook.Service
	Auth     *authsvc.Service
	// Senders lets the webhook handlers deliver a synchronous reply back to
	// the platform that just posted the inbound webhook.
	Senders map[user.Platform]outboxsvc.Sender
	Log     *logging.Logger
}

type handler struct {
	deps Deps
}

// NewHandler returns the assembled HTTP mux, wrapped in metrics
// instrumentation — the teacher's explicit middleware-chain-at-the-edge
// style (internal/app/httpapi/service.go: auth -> audit -> CORS -> metrics),
// simplified here since this surface has no per-tenant audit concern.
func NewHandler(deps Deps) http.Handler {
	h := &handler{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/health/ready", h.ready)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/webhooks/bot-api", h.webhookBotAPI)
	mux.HandleFunc("/webhooks/web-chat", h.webhookWebChat)

	mux.HandleFunc("/auth/otp/request", h.otpRequest)
	mux.HandleFunc("/auth/otp/verify", h.otpVerify)
	mux.HandleFunc("/auth/refresh", h.refresh)

	mux.HandleFunc("/debug/circuit-breakers", h.adminOnly(h.debugCircuitBreakers))
	mux.HandleFunc("/debug/outbox/summary", h.adminOnly(h.debugOutboxSummary))
	mux.HandleFunc("/debug/outbox/messages", h.adminOnly(h.debugOutboxMessages))
	mux.HandleFunc("/debug/outbox/messages/", h.adminOnly(h.debugOutboxRetry))
	mux.HandleFunc("/debug/users/", h.adminOnly(h.debugUserState))

	return withCORS(deps.Config.CORSAllowedOrigins, metrics.InstrumentHandler(mux))
}

func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key, X-Signature")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// context key for a correlation id; nothing references correlationCtxKey,
// since withCorrelationID stores the id through logging.WithCorrelationID.
type ctxKey string

const correlationCtxKey ctxKey = "x-correlation-id"

func withCorrelationID(r *http.Request) context.Context {
	id := r.Header.Get("X-Correlation-ID")
	if id == "" {
		id = logging.NewCorrelationID()
	}
	return logging.WithCorrelationID(r.Context(), id)
}
