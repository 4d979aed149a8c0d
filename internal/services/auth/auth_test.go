package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/kv"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, int64) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), user.User{
		Phone:    "+972500000000",
		ChatID:   1,
		Role:     user.RoleSender,
		Platform: user.PlatformBotAPI,
		IsActive: true,
	})
	require.NoError(t, err)

	svc := New(store, store, store, kv.NewMemory(), "test-secret", time.Hour, 5*time.Minute)
	return svc, u.ID
}

func TestRequestAndVerifyOTP_Success(t *testing.T) {
	svc, userID := newTestService(t)
	ctx := context.Background()

	code, err := svc.RequestOTP(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	access, refresh, err := svc.VerifyOTP(ctx, userID, code)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	claims, err := svc.Validate(access)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, string(user.RoleSender), claims.Role)
}

func TestVerifyOTP_WrongCodeFails(t *testing.T) {
	svc, userID := newTestService(t)
	ctx := context.Background()

	_, err := svc.RequestOTP(ctx, userID)
	require.NoError(t, err)

	_, _, err = svc.VerifyOTP(ctx, userID, "000000")
	assert.Error(t, err)
}

func TestVerifyOTP_SecondAttemptFails(t *testing.T) {
	svc, userID := newTestService(t)
	ctx := context.Background()

	code, err := svc.RequestOTP(ctx, userID)
	require.NoError(t, err)

	_, _, err = svc.VerifyOTP(ctx, userID, code)
	require.NoError(t, err)

	_, _, err = svc.VerifyOTP(ctx, userID, code)
	assert.Error(t, err)
}

func TestRequestOTP_RateLimited(t *testing.T) {
	svc, userID := newTestService(t)
	ctx := context.Background()

	_, err := svc.RequestOTP(ctx, userID)
	require.NoError(t, err)

	_, err = svc.RequestOTP(ctx, userID)
	assert.Error(t, err)
}

func TestRefresh_RotatesAndOldTokenFails(t *testing.T) {
	svc, userID := newTestService(t)
	ctx := context.Background()

	code, err := svc.RequestOTP(ctx, userID)
	require.NoError(t, err)
	_, refresh, err := svc.VerifyOTP(ctx, userID, code)
	require.NoError(t, err)

	access2, refresh2, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access2)
	assert.NotEqual(t, refresh, refresh2)

	// Reusing the rotated-away token must fail (reuse detection).
	_, _, err = svc.Refresh(ctx, refresh)
	assert.Error(t, err)

	// The freshly issued token is revoked too, since reuse revokes the whole family.
	_, _, err = svc.Refresh(ctx, refresh2)
	assert.Error(t, err)
}
