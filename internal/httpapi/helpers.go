package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dispatchcore/platform/internal/apperr"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err into the HTTP status spec.md §6 maps each
// apperr range onto, and writes a {"error": {...}} body.
func writeError(w http.ResponseWriter, err error) {
	code, ok := apperr.CodeOf(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "שגיאה פנימית"},
		})
		return
	}

	status := statusForCode(code)
	body := map[string]any{"code": int(code), "message": errorMessage(err)}
	writeJSON(w, status, map[string]any{"error": body})
}

func errorMessage(err error) string {
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	}
	if appErr != nil {
		return appErr.Message
	}
	return err.Error()
}

// statusForCode maps an apperr.Code range to an HTTP status, per spec.md §6:
// 1xxx/1000s -> 400, 2xxx -> 404, 3xxx -> 409, 4xxx -> 401, 5xxx -> 502,
// 6xxx -> 500.
func statusForCode(code apperr.Code) int {
	switch {
	case code >= apperr.CodeValidation && code < apperr.CodeUserNotFound:
		return http.StatusBadRequest
	case code >= apperr.CodeUserNotFound && code < apperr.CodeDuplicateCharge:
		return http.StatusNotFound
	case code >= apperr.CodeDuplicateCharge && code < apperr.CodeMissingAdminKey:
		return http.StatusConflict
	case code >= apperr.CodeMissingAdminKey && code < apperr.CodeUpstreamUnavailable:
		return http.StatusUnauthorized
	case code >= apperr.CodeUpstreamUnavailable && code < apperr.CodeInternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseLimitParam reads a "limit" query parameter, defaulting to def and
// capping at max.
func parseLimitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// adminOnly gates next behind a constant-time comparison of the X-Admin-Key
// header against the configured admin API key, grounded on the teacher's
// requireOracleRunner token check.
func (h *handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.deps.Config.EnableDebugEndpoints {
			http.NotFound(w, r)
			return
		}
		want := []byte(h.deps.Config.AdminAPIKey)
		got := []byte(r.Header.Get("X-Admin-Key"))
		if len(want) == 0 || subtle.ConstantTimeCompare(want, got) != 1 {
			writeError(w, apperr.New(apperr.CodeMissingAdminKey, "מפתח ניהול חסר או שגוי"))
			return
		}
		next(w, r)
	}
}
