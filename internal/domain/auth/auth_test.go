package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsUsable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	unexpired := &RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, unexpired.IsUsable(now))

	expired := &RefreshToken{ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, expired.IsUsable(now))

	revokedAt := now.Add(-time.Minute)
	revoked := &RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	assert.False(t, revoked.IsUsable(now))
}
