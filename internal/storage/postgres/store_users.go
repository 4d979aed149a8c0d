package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/storage"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (
			phone, chat_id, platform, name, role, is_active,
			approval_status, full_name, id_document_ref, selfie_ref,
			vehicle_ref, vehicle_category, service_area, terms_accepted_at,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`, toNullString(u.Phone), u.ChatID, u.Platform, u.Name, u.Role, u.IsActive,
		u.ApprovalStatus, u.FullName, u.IDDocumentRef, u.SelfieRef,
		u.VehicleRef, u.VehicleCategory, u.ServiceArea, toNullTime(u.TermsAcceptedAt),
		u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) error {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			phone = $2, chat_id = $3, platform = $4, name = $5, role = $6, is_active = $7,
			approval_status = $8, full_name = $9, id_document_ref = $10, selfie_ref = $11,
			vehicle_ref = $12, vehicle_category = $13, service_area = $14, terms_accepted_at = $15,
			updated_at = $16
		WHERE id = $1
	`, u.ID, toNullString(u.Phone), u.ChatID, u.Platform, u.Name, u.Role, u.IsActive,
		u.ApprovalStatus, u.FullName, u.IDDocumentRef, u.SelfieRef,
		u.VehicleRef, u.VehicleCategory, u.ServiceArea, toNullTime(u.TermsAcceptedAt),
		u.UpdatedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (user.User, error) {
	row := s.db.QueryRowContext(ctx, userSelectColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, userSelectColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

func (s *Store) GetUserByChatID(ctx context.Context, platform user.Platform, chatID int64) (user.User, error) {
	row := s.db.QueryRowContext(ctx, userSelectColumns+` FROM users WHERE platform = $1 AND chat_id = $2`, platform, chatID)
	return scanUser(row)
}

func (s *Store) ListCouriersByStation(ctx context.Context, stationID int64) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, userSelectColumns+`
		FROM users u
		JOIN station_dispatchers sd ON sd.user_id = u.id
		WHERE sd.station_id = $1 AND u.role = 'COURIER'
		ORDER BY u.id
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListActiveApprovedCouriers returns every courier eligible to receive a
// broadcast new-shipment notice (internal/services/outbox's resolveRecipients).
func (s *Store) ListActiveApprovedCouriers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, userSelectColumns+`
		FROM users
		WHERE role = 'COURIER' AND is_active = true AND approval_status = 'approved'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const userSelectColumns = `
	SELECT id, phone, chat_id, platform, name, role, is_active,
	       approval_status, full_name, id_document_ref, selfie_ref,
	       vehicle_ref, vehicle_category, service_area, terms_accepted_at,
	       created_at, updated_at`

func scanUser(scanner rowScanner) (user.User, error) {
	var (
		u          user.User
		phone      sql.NullString
		termsAt    sql.NullTime
	)
	err := scanner.Scan(&u.ID, &phone, &u.ChatID, &u.Platform, &u.Name, &u.Role, &u.IsActive,
		&u.ApprovalStatus, &u.FullName, &u.IDDocumentRef, &u.SelfieRef,
		&u.VehicleRef, &u.VehicleCategory, &u.ServiceArea, &termsAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, err
	}
	u.Phone = phone.String
	if termsAt.Valid {
		t := termsAt.Time.UTC()
		u.TermsAcceptedAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
