package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dispatchcore/platform/internal/domain/auth"
	"github.com/dispatchcore/platform/internal/storage"
)

func scanRefreshToken(row rowScanner) (auth.RefreshToken, error) {
	var t auth.RefreshToken
	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID,
		&t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy,
	)
	if err != nil {
		return auth.RefreshToken{}, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	t.ReplacedBy = replacedBy.String
	return t, nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, t auth.RefreshToken) (auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, family_id, issued_at, expires_at)
		VALUES ($1, $2, $3, now(), $4)
		RETURNING id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
	`, t.UserID, t.TokenHash, t.FamilyID, t.ExpiresAt)
	return scanRefreshToken(row)
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens WHERE token_hash = $1
	`, tokenHash)
	t, err := scanRefreshToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, storage.ErrNotFound
	}
	return t, err
}

// RotateRefreshToken revokes oldTokenHash and inserts next in one
// transaction, so a crash between the two writes can never leave both the
// old and new token usable simultaneously.
func (s *Store) RotateRefreshToken(ctx context.Context, oldTokenHash string, next auth.RefreshToken) (auth.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.RefreshToken{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = now(), replaced_by = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, oldTokenHash, next.TokenHash)
	if err != nil {
		return auth.RefreshToken{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return auth.RefreshToken{}, err
	}
	if n == 0 {
		return auth.RefreshToken{}, storage.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, family_id, issued_at, expires_at)
		VALUES ($1, $2, $3, now(), $4)
		RETURNING id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
	`, next.UserID, next.TokenHash, next.FamilyID, next.ExpiresAt)
	created, err := scanRefreshToken(row)
	if err != nil {
		return auth.RefreshToken{}, err
	}
	return created, tx.Commit()
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = now() WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID)
	return err
}
