package httpapi

import (
	"context"
	"net/http"
	"time"
)

// health is the liveness probe: process is up, nothing else checked.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready is the readiness probe: the database and key-value store must both
// answer within a short deadline, matching spec.md §5's dependency checks.
func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ok := true

	if err := h.deps.DB.PingContext(ctx); err != nil {
		checks["database"] = "down"
		ok = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.deps.KV.Ping(ctx); err != nil {
		checks["key_value"] = "down"
		ok = false
	} else {
		checks["key_value"] = "ok"
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ok, "checks": checks})
}
