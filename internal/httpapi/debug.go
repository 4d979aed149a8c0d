package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
)

// debugCircuitBreakers serves GET /debug/circuit-breakers (spec.md §6).
func (h *handler) debugCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Breakers.StatusSnapshot())
}

// debugOutboxSummary serves GET /debug/outbox/summary: counts by status.
func (h *handler) debugOutboxSummary(w http.ResponseWriter, r *http.Request) {
	ctx := withCorrelationID(r)
	counts, err := h.deps.Outbox.Summary(ctx)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת סיכום התור", err))
		return
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// debugOutboxMessages serves GET /debug/outbox/messages?status=&limit=.
func (h *handler) debugOutboxMessages(w http.ResponseWriter, r *http.Request) {
	ctx := withCorrelationID(r)

	status := outbox.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = outbox.StatusPending
	}
	limit := parseLimitParam(r, 50, 200)

	messages, err := h.deps.Outbox.ListByStatus(ctx, status, limit)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת הודעות התור", err))
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// debugOutboxRetry serves POST /debug/outbox/messages/{id}/retry: flips a
// failed message back to pending (spec.md §4.7's dead-letter retry).
func (h *handler) debugOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := withCorrelationID(r)

	id, ok := pathSegmentInt(r.URL.Path, "/debug/outbox/messages/", "/retry")
	if !ok {
		writeError(w, apperr.New(apperr.CodeValidation, "מזהה הודעה לא תקין"))
		return
	}

	if err := h.deps.Outbox.MarkPendingForRetry(ctx, id); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, "שגיאה בהעברת ההודעה לניסיון חוזר", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

// debugUserStateResponse is the body of GET /debug/users/{id}/state.
type debugUserStateResponse struct {
	State   string         `json:"state"`
	Context map[string]any `json:"context"`
}

// debugUserState handles both GET /debug/users/{id}/state?platform= and
// POST /debug/users/{id}/force-state (spec.md §6).
func (h *handler) debugUserState(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/force-state") {
		h.debugForceState(w, r)
		return
	}

	ctx := withCorrelationID(r)
	id, ok := pathSegmentInt(r.URL.Path, "/debug/users/", "/state")
	if !ok {
		writeError(w, apperr.New(apperr.CodeValidation, "מזהה משתמש לא תקין"))
		return
	}

	platform := user.Platform(r.URL.Query().Get("platform"))
	if platform == "" {
		platform = user.PlatformBotAPI
	}

	sess, err := h.deps.Engine.GetOrCreateSession(ctx, id, platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debugUserStateResponse{
		State:   string(sess.CurrentState),
		Context: map[string]any(sess.Context),
	})
}

// forceStateBody is the request to POST /debug/users/{id}/force-state.
type forceStateBody struct {
	Platform     string `json:"platform"`
	NewState     string `json:"new_state"`
	ClearContext bool   `json:"clear_context"`
}

// debugForceState overrides a user's conversation state without edge
// validation (spec.md §4.4 ForceState, S7's scenario).
func (h *handler) debugForceState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := withCorrelationID(r)

	id, ok := pathSegmentInt(r.URL.Path, "/debug/users/", "/force-state")
	if !ok {
		writeError(w, apperr.New(apperr.CodeValidation, "מזהה משתמש לא תקין"))
		return
	}

	var body forceStateBody
	if err := decodeJSON(r, &body); err != nil || body.NewState == "" {
		writeError(w, apperr.New(apperr.CodeValidation, "new_state נדרש"))
		return
	}
	platform := user.Platform(body.Platform)
	if platform == "" {
		platform = user.PlatformBotAPI
	}

	sess, err := h.deps.Engine.GetOrCreateSession(ctx, id, platform)
	if err != nil {
		writeError(w, err)
		return
	}

	h.deps.Log.LogAudit(ctx, "force_state", "conversation_session", strconv.FormatInt(id, 10), "admin_override")
	updated, err := h.deps.Engine.ForceState(ctx, sess, conversation.State(body.NewState), body.ClearContext)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debugUserStateResponse{
		State:   string(updated.CurrentState),
		Context: map[string]any(updated.Context),
	})
}

// pathSegmentInt extracts the int64 id between prefix and suffix in path,
// e.g. pathSegmentInt("/debug/users/7/state", "/debug/users/", "/state") == 7.
func pathSegmentInt(path, prefix, suffix string) (int64, bool) {
	if !strings.HasPrefix(path, prefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, suffix)
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
