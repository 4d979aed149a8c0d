package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/lib/pq"
)

func (s *Store) CreateDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	return createDelivery(ctx, s.db, d)
}

// CreateDeliveryInTx is the transactional counterpart of CreateDelivery,
// used by internal/services/shipment.Service.Create so the delivery INSERT
// and its broadcast outbox enqueue commit or roll back together (spec.md
// §4.7's "same transaction as the business mutation" invariant).
func (s *Store) CreateDeliveryInTx(ctx context.Context, tx *sql.Tx, d delivery.Delivery) (delivery.Delivery, error) {
	return createDelivery(ctx, tx, d)
}

func createDelivery(ctx context.Context, q querier, d delivery.Delivery) (delivery.Delivery, error) {
	d.CreatedAt = time.Now().UTC()
	err := q.QueryRowContext(ctx, `
		INSERT INTO deliveries (
			token, sender_id, courier_id, station_id, requesting_courier_id,
			pickup_text, pickup_lat, pickup_lng, pickup_contact_name, pickup_contact_phone,
			dropoff_text, dropoff_lat, dropoff_lng, dropoff_contact_name, dropoff_contact_phone,
			status, fee_minor, notes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id
	`, d.Token, d.SenderID, toNullInt64(d.CourierID), toNullInt64(d.StationID), toNullInt64(d.RequestingCourierID),
		d.Pickup.Text, d.Pickup.Lat, d.Pickup.Lng, d.Pickup.ContactName, d.Pickup.ContactPhone,
		d.Dropoff.Text, d.Dropoff.Lat, d.Dropoff.Lng, d.Dropoff.ContactName, d.Dropoff.ContactPhone,
		d.Status, d.Fee.Minor(), d.Notes, d.CreatedAt).Scan(&d.ID)
	if err != nil {
		return delivery.Delivery{}, err
	}
	return d, nil
}

const deliverySelectColumns = `
	SELECT id, token, sender_id, courier_id, station_id, requesting_courier_id,
	       pickup_text, pickup_lat, pickup_lng, pickup_contact_name, pickup_contact_phone,
	       dropoff_text, dropoff_lat, dropoff_lng, dropoff_contact_name, dropoff_contact_phone,
	       status, fee_minor, notes, created_at, captured_at, delivered_at, cancelled_at`

func (s *Store) GetDeliveryByID(ctx context.Context, id int64) (delivery.Delivery, error) {
	row := s.db.QueryRowContext(ctx, deliverySelectColumns+` FROM deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (s *Store) GetDeliveryByToken(ctx context.Context, token string) (delivery.Delivery, error) {
	row := s.db.QueryRowContext(ctx, deliverySelectColumns+` FROM deliveries WHERE token = $1`, token)
	return scanDelivery(row)
}

// LockDeliveryForUpdate loads a delivery row with FOR UPDATE inside tx, so the
// caller can compose the status transition and wallet ledger write as one
// atomic unit. Grounded on the teacher's SKIP LOCKED lease pattern, minus
// the SKIP LOCKED clause since this path targets one known row, not a queue.
func (s *Store) LockDeliveryForUpdate(ctx context.Context, tx *sql.Tx, id int64) (delivery.Delivery, error) {
	row := tx.QueryRowContext(ctx, deliverySelectColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id)
	return scanDelivery(row)
}

func (s *Store) UpdateDeliveryInTx(ctx context.Context, tx *sql.Tx, d delivery.Delivery) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE deliveries SET
			courier_id = $2, station_id = $3, requesting_courier_id = $4,
			status = $5, notes = $6,
			captured_at = $7, delivered_at = $8, cancelled_at = $9
		WHERE id = $1
	`, d.ID, toNullInt64(d.CourierID), toNullInt64(d.StationID), toNullInt64(d.RequestingCourierID),
		d.Status, d.Notes, toNullTime(d.CapturedAt), toNullTime(d.DeliveredAt), toNullTime(d.CancelledAt))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListOpenDeliveries(ctx context.Context, stationID *int64) ([]delivery.Delivery, error) {
	query := deliverySelectColumns + ` FROM deliveries WHERE status IN ('OPEN','PENDING_APPROVAL')`
	args := []any{}
	if stationID != nil {
		query += ` AND station_id = $1`
		args = append(args, *stationID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryRows(rows)
}

func (s *Store) ListDeliveriesByCourier(ctx context.Context, courierID int64, statuses []delivery.Status) ([]delivery.Delivery, error) {
	query := deliverySelectColumns + ` FROM deliveries WHERE courier_id = $1`
	args := []any{courierID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		args = append(args, pq.Array(strs))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryRows(rows)
}

func scanDeliveryRows(rows *sql.Rows) ([]delivery.Delivery, error) {
	var out []delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDelivery(scanner rowScanner) (delivery.Delivery, error) {
	var (
		d                                   delivery.Delivery
		courierID, stationID, requestingID  sql.NullInt64
		feeMinor                            int64
		capturedAt, deliveredAt, cancelledAt sql.NullTime
	)
	err := scanner.Scan(
		&d.ID, &d.Token, &d.SenderID, &courierID, &stationID, &requestingID,
		&d.Pickup.Text, &d.Pickup.Lat, &d.Pickup.Lng, &d.Pickup.ContactName, &d.Pickup.ContactPhone,
		&d.Dropoff.Text, &d.Dropoff.Lat, &d.Dropoff.Lng, &d.Dropoff.ContactName, &d.Dropoff.ContactPhone,
		&d.Status, &feeMinor, &d.Notes, &d.CreatedAt, &capturedAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return delivery.Delivery{}, storage.ErrNotFound
		}
		return delivery.Delivery{}, err
	}
	d.CourierID = fromNullInt64(courierID)
	d.StationID = fromNullInt64(stationID)
	d.RequestingCourierID = fromNullInt64(requestingID)
	d.Fee = money.FromMinor(feeMinor)
	d.CreatedAt = d.CreatedAt.UTC()
	if capturedAt.Valid {
		t := capturedAt.Time.UTC()
		d.CapturedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		d.DeliveredAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		d.CancelledAt = &t
	}
	return d, nil
}
