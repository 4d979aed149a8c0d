// Package auth defines the refresh-token persistence entity backing
// internal/services/auth's rotating-refresh-token issuance (spec.md §4.9).
package auth

import "time"

// RefreshToken is one row in the rotation ledger. TokenHash is the SHA-256
// hex digest of the bearer value actually handed to the client; the
// plaintext token is never persisted.
type RefreshToken struct {
	ID         int64
	UserID     int64
	TokenHash  string
	FamilyID   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
}

// IsUsable reports whether this token may still be exchanged: unexpired and
// not yet revoked (by a prior rotation, or by an explicit revoke-family
// call after reuse is detected).
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
