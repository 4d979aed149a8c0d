package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/storage"
)

func (s *Store) CreateStation(ctx context.Context, st station.Station) (station.Station, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stations (name, group_chat_id, created_at)
		VALUES ($1, $2, now())
		RETURNING id, created_at
	`, st.Name, st.GroupChatID).Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		return station.Station{}, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

func (s *Store) GetStationByID(ctx context.Context, id int64) (station.Station, error) {
	var st station.Station
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, group_chat_id, created_at FROM stations WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &st.GroupChatID, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return station.Station{}, storage.ErrNotFound
		}
		return station.Station{}, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

func (s *Store) UpdateGroupChatID(ctx context.Context, stationID, groupChatID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stations SET group_chat_id = $2 WHERE id = $1
	`, stationID, groupChatID)
	return err
}

func (s *Store) StationForUser(ctx context.Context, userID int64) (int64, bool, error) {
	var stationID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT station_id FROM station_owners WHERE user_id = $1
		UNION
		SELECT station_id FROM station_dispatchers WHERE user_id = $1
		LIMIT 1
	`, userID).Scan(&stationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return stationID, true, nil
}

func (s *Store) AddOwner(ctx context.Context, o station.Owner) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO station_owners (station_id, user_id, added_at)
		VALUES ($1, $2, now())
		ON CONFLICT (station_id, user_id) DO NOTHING
	`, o.StationID, o.UserID)
	return err
}

func (s *Store) AddDispatcher(ctx context.Context, d station.Dispatcher) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO station_dispatchers (station_id, user_id, added_at)
		VALUES ($1, $2, now())
		ON CONFLICT (station_id, user_id) DO NOTHING
	`, d.StationID, d.UserID)
	return err
}

func (s *Store) IsOwner(ctx context.Context, stationID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM station_owners WHERE station_id = $1 AND user_id = $2)
	`, stationID, userID).Scan(&exists)
	return exists, err
}

func (s *Store) IsDispatcher(ctx context.Context, stationID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM station_dispatchers WHERE station_id = $1 AND user_id = $2)
	`, stationID, userID).Scan(&exists)
	return exists, err
}

func (s *Store) Blacklist(ctx context.Context, b station.Blacklist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courier_blacklist (station_id, courier_id, reason, added_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (station_id, courier_id) DO UPDATE SET reason = EXCLUDED.reason, added_at = now()
	`, b.StationID, b.CourierID, b.Reason)
	return err
}

func (s *Store) IsBlacklisted(ctx context.Context, stationID, courierID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM courier_blacklist WHERE station_id = $1 AND courier_id = $2)
	`, stationID, courierID).Scan(&exists)
	return exists, err
}

func (s *Store) RecordManualCharge(ctx context.Context, c station.ManualCharge) (station.ManualCharge, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO manual_charges (station_id, courier_id, created_by, amount_minor, description, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
		RETURNING id, created_at
	`, c.StationID, c.CourierID, c.CreatedBy, c.Amount.Minor(), c.Description).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return station.ManualCharge{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
