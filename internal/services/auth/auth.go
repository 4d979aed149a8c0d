// Package auth implements OTP issuance and JWT access/refresh token minting
// (spec.md §4.9): 6-digit CSPRNG OTPs held in the key-value store with a
// one-time-use guarantee, and rotating refresh tokens persisted through
// internal/storage.AuthStore so a reused (already-rotated) refresh token is
// detectable and revokes its whole lineage.
//
// Grounded on the teacher's pkg/auth/supabase_auth.go ValidateToken (HMAC
// parsing, jwt.MapClaims extraction, explicit signing-method assertion) for
// the validation half; issuance is new code since the teacher delegates that
// to Supabase GoTrue.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dispatchcore/platform/internal/apperr"
	authdomain "github.com/dispatchcore/platform/internal/domain/auth"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/kv"
	"github.com/dispatchcore/platform/internal/storage"
)

// RefreshTokenTTL matches spec.md §6's persisted-state layout
// (refresh_token:<jti>, ~14-day TTL).
const RefreshTokenTTL = 14 * 24 * time.Hour

const otpRateLimitWindow = 60 * time.Second

// Claims is the JWT payload spec.md §4.9 specifies:
// {user_id, station_id, role, exp}.
type Claims struct {
	UserID    int64   `json:"user_id"`
	StationID *int64  `json:"station_id,omitempty"`
	Role      string  `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates OTPs and JWTs.
type Service struct {
	users     storage.UserStore
	stations  storage.StationStore
	authStore storage.AuthStore
	kv        kv.Store
	secret    []byte
	accessTTL time.Duration
	otpTTL    time.Duration
}

// New builds a Service. secret must be non-empty in production; config.Load
// already enforces that via Config.Validate.
func New(users storage.UserStore, stations storage.StationStore, authStore storage.AuthStore, kvStore kv.Store, secret string, accessTTL, otpTTL time.Duration) *Service {
	return &Service{
		users:     users,
		stations:  stations,
		authStore: authStore,
		kv:        kvStore,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		otpTTL:    otpTTL,
	}
}

// RequestOTP generates and stores a one-time code for userID, returning the
// plaintext code for the caller to deliver through the outbox (the service
// itself never sends messages). Enforces a 60s minimum spacing between
// requests for the same user.
func (s *Service) RequestOTP(ctx context.Context, userID int64) (string, error) {
	rateKey := fmt.Sprintf("rate:otp:%d", userID)
	ok, err := s.kv.SetNX(ctx, rateKey, "1", otpRateLimitWindow)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת קצב הבקשות", err)
	}
	if !ok {
		return "", apperr.New(apperr.CodeRateLimited, "יש להמתין לפני בקשת קוד נוסף")
	}

	code, err := generateOTP()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת הקוד", err)
	}

	key := otpKey(userID)
	if err := s.kv.Set(ctx, key, hashOTP(code), s.otpTTL); err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת הקוד", err)
	}
	return code, nil
}

// VerifyOTP checks code against the stored hash for userID, deletes it on a
// match (one-time use: a second verify with the same code always fails
// afterward), and on success issues a fresh access/refresh token pair.
func (s *Service) VerifyOTP(ctx context.Context, userID int64, code string) (access, refresh string, err error) {
	key := otpKey(userID)
	stored, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת הקוד", err)
	}
	if !ok {
		return "", "", apperr.New(apperr.CodeWrongOTP, "הקוד פג תוקף או שגוי")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashOTP(code))) != 1 {
		return "", "", apperr.New(apperr.CodeWrongOTP, "הקוד שגוי")
	}
	if err := s.kv.Del(ctx, key); err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה במחיקת הקוד", err)
	}

	return s.issueTokens(ctx, userID, uuid.New().String())
}

// Refresh exchanges refreshToken for a new access/refresh pair, rotating the
// refresh token. A refresh token presented a second time (already rotated
// away) is treated as reuse: the whole token family is revoked and the
// exchange fails, per spec.md §8 property 6.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (access, newRefresh string, err error) {
	hash := hashToken(refreshToken)
	existing, err := s.authStore.GetRefreshTokenByHash(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", apperr.New(apperr.CodeInvalidToken, "refresh token לא תקין")
	}
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת refresh token", err)
	}
	if !existing.IsUsable(time.Now()) {
		if existing.RevokedAt != nil {
			_ = s.authStore.RevokeFamily(ctx, existing.FamilyID)
		}
		return "", "", apperr.New(apperr.CodeInvalidToken, "refresh token אינו תקף")
	}

	rawToken, newHash, err := newRefreshTokenValue()
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת refresh token", err)
	}
	rotated, err := s.authStore.RotateRefreshToken(ctx, hash, authdomain.RefreshToken{
		UserID:    existing.UserID,
		TokenHash: newHash,
		FamilyID:  existing.FamilyID,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	})
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה בסבב refresh token", err)
	}

	accessToken, err := s.signAccessToken(ctx, rotated.UserID)
	if err != nil {
		return "", "", err
	}
	return accessToken, rawToken, nil
}

// issueTokens mints a fresh access token plus the first refresh token of a
// new family for userID.
func (s *Service) issueTokens(ctx context.Context, userID int64, familyID string) (access, refresh string, err error) {
	accessToken, err := s.signAccessToken(ctx, userID)
	if err != nil {
		return "", "", err
	}

	rawToken, hash, err := newRefreshTokenValue()
	if err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת refresh token", err)
	}
	if _, err := s.authStore.CreateRefreshToken(ctx, authdomain.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		FamilyID:  familyID,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}); err != nil {
		return "", "", apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת refresh token", err)
	}
	return accessToken, rawToken, nil
}

func (s *Service) signAccessToken(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.ErrUserNotFound
		}
		return "", apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת המשתמש", err)
	}

	var stationID *int64
	if u.Role == user.RoleStationOwner {
		if id, ok, err := s.stations.StationForUser(ctx, userID); err == nil && ok {
			stationID = &id
		}
	}

	now := time.Now()
	claims := Claims{
		UserID:    u.ID,
		StationID: stationID,
		Role:      string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "שגיאה בחתימת הטוקן", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token, returning its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.CodeInvalidToken, "טוקן לא תקין")
	}
	return claims, nil
}

func otpKey(userID int64) string {
	return fmt.Sprintf("panel_otp:%d", userID)
}

// hashOTP and hashToken both use SHA-256: spec.md §4.9 recommends storing a
// hash rather than the plaintext code/token.
func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateOTP returns a 6-digit numeric code drawn from a CSPRNG.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// newRefreshTokenValue returns a fresh random bearer token and its stored
// hash.
func newRefreshTokenValue() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = strings.TrimRight(base64.URLEncoding.EncodeToString(buf), "=")
	return raw, hashToken(raw), nil
}
