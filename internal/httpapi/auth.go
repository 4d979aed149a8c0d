package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
)

// otpRequestBody is the request to POST /auth/otp/request.
type otpRequestBody struct {
	UserID int64 `json:"user_id"`
}

// otpRequest issues a fresh OTP for the named user and delivers it through
// that user's own chat platform sender — spec.md §4.9 says the OTP is
// "generated via outbound channel", never returned in the HTTP response.
func (h *handler) otpRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := withCorrelationID(r)

	var body otpRequestBody
	if err := decodeJSON(r, &body); err != nil || body.UserID <= 0 {
		writeError(w, apperr.New(apperr.CodeValidation, "user_id נדרש"))
		return
	}

	code, err := h.deps.Auth.RequestOTP(ctx, body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.deps.Users.GetUserByID(ctx, body.UserID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת המשתמש", err))
		return
	}
	if sender, ok := h.deps.Senders[u.Platform]; ok {
		content := outbox.Content{Text: "קוד האימות שלך: " + code}
		if sendErr := sender.Send(ctx, strconv.FormatInt(u.ChatID, 10), content); sendErr != nil {
			h.deps.Log.Error(ctx, "otp delivery failed", sendErr, map[string]any{"user_id": body.UserID})
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// otpVerifyBody is the request to POST /auth/otp/verify.
type otpVerifyBody struct {
	UserID int64  `json:"user_id"`
	Code   string `json:"code"`
}

// otpVerify checks the submitted code and, on success, mints the initial
// access/refresh token pair.
func (h *handler) otpVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := withCorrelationID(r)

	var body otpVerifyBody
	if err := decodeJSON(r, &body); err != nil || body.UserID <= 0 || body.Code == "" {
		writeError(w, apperr.New(apperr.CodeValidation, "user_id וקוד נדרשים"))
		return
	}

	access, refresh, err := h.deps.Auth.VerifyOTP(ctx, body.UserID, body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access, "refresh_token": refresh})
}

// refreshBody is the request to POST /auth/refresh.
type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh rotates the submitted refresh token per spec.md §4.9/§8 property 6.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := withCorrelationID(r)

	var body refreshBody
	if err := decodeJSON(r, &body); err != nil || body.RefreshToken == "" {
		writeError(w, apperr.New(apperr.CodeValidation, "refresh_token נדרש"))
		return
	}

	access, next, err := h.deps.Auth.Refresh(ctx, body.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access, "refresh_token": next})
}
