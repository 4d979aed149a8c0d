package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dispatchcore/platform/internal/domain/audit"
)

func (s *Store) Record(ctx context.Context, l audit.Log) (audit.Log, error) {
	detailsJSON, err := json.Marshal(l.Details)
	if err != nil {
		return audit.Log{}, err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (station_id, actor_user_id, action, target_user_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
		RETURNING id, created_at
	`, l.StationID, l.ActorUserID, l.Action, toNullInt64(l.TargetUserID), detailsJSON).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return audit.Log{}, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (s *Store) ListAuditByStation(ctx context.Context, stationID int64, limit int) ([]audit.Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, actor_user_id, action, target_user_id, details, created_at
		FROM audit_logs
		WHERE station_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Log
	for rows.Next() {
		var (
			l            audit.Log
			targetUserID sql.NullInt64
			detailsJSON  []byte
		)
		if err := rows.Scan(&l.ID, &l.StationID, &l.ActorUserID, &l.Action, &targetUserID, &detailsJSON, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.TargetUserID = fromNullInt64(targetUserID)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &l.Details); err != nil {
				return nil, err
			}
		}
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
