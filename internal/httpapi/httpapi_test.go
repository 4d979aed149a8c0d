package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/platform/internal/config"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/kv"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	authsvc "github.com/dispatchcore/platform/internal/services/auth"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/conversation/callbacktoken"
	"github.com/dispatchcore/platform/internal/services/conversation/roles"
	outboxsvc "github.com/dispatchcore/platform/internal/services/outbox"
	"github.com/dispatchcore/platform/internal/services/webhook"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

const testWebhookSecret = "test-shared-secret"

// fakeSender records every Send call instead of making a network request.
type fakeSender struct {
	sent []outbox.Content
}

func (f *fakeSender) Send(_ context.Context, _ string, content outbox.Content) error {
	f.sent = append(f.sent, content)
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *memory.Memory, *fakeSender) {
	t.Helper()
	store := memory.New()
	log := logging.New("test", "error", "json")
	kvStore := kv.NewMemory()

	roleDeps := &roles.Deps{
		Users:       store,
		Stations:    store,
		Outbox:      store,
		Audit:       store,
		WalletStore: store,
		Callbacks:   callbacktoken.New(kvStore),
		Log:         log,
	}
	graph := conversation.BuildDefaultGraph()
	engine := conversation.New(store, graph, log)
	webhookSvc := webhook.New(store, store, store, engine, roleDeps, log)
	authSvc := authsvc.New(store, store, store, kvStore, "jwt-test-secret", time.Hour, 5*time.Minute)
	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	sender := &fakeSender{}
	cfg := &config.Config{
		WebhookSharedSecret: testWebhookSecret,
		EnableDebugEndpoints: true,
		AdminAPIKey:          "admin-key",
	}

	handler := NewHandler(Deps{
		Config:   cfg,
		Outbox:   store,
		Users:    store,
		Stations: store,
		Breakers: breakers,
		Engine:   engine,
		Webhooks: webhookSvc,
		Auth:     authSvc,
		Senders:  map[user.Platform]outboxsvc.Sender{user.PlatformBotAPI: sender},
		Log:      log,
	})
	return handler, store, sender
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookBotAPI_RejectsUnsignedRequest(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	body := []byte(`{"message":{"message_id":1,"from":{"id":42},"chat":{"id":42},"text":"hi"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bot-api", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookBotAPI_AcceptsSignedMessage(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	body := []byte(`{"message":{"message_id":1,"from":{"id":42},"chat":{"id":42},"text":"hi"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bot-api", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
}

func TestWebhookBotAPI_DuplicateMessageIsIdempotent(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	body := []byte(`{"message":{"message_id":7,"from":{"id":99},"chat":{"id":99},"text":"hello"}}`)
	sig := sign(body)

	for i, want := range []string{"ok", "duplicate"} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bot-api", bytes.NewReader(body))
		req.Header.Set("X-Signature", sig)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)

		var got map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, want, got["status"], "attempt %d", i)
	}
}

func TestDebugCircuitBreakers_RequiresAdminKey(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/circuit-breakers", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOTPRequestAndVerify(t *testing.T) {
	handler, store, sender := newTestHandler(t)
	u, err := store.CreateUser(context.Background(), user.User{
		Phone:    "+972500000001",
		ChatID:   7,
		Role:     user.RoleSender,
		Platform: user.PlatformBotAPI,
		IsActive: true,
	})
	require.NoError(t, err)

	reqBody, _ := json.Marshal(otpRequestBody{UserID: u.ID})
	req := httptest.NewRequest(http.MethodPost, "/auth/otp/request", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.sent, 1)

	code := sender.sent[0].Text[len(sender.sent[0].Text)-6:]

	verifyBody, _ := json.Marshal(otpVerifyBody{UserID: u.ID, Code: code})
	req = httptest.NewRequest(http.MethodPost, "/auth/otp/verify", bytes.NewReader(verifyBody))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens["access_token"])
	assert.NotEmpty(t, tokens["refresh_token"])
}
