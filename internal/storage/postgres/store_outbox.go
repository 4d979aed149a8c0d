package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/lib/pq"
)

func (s *Store) EnqueueInTx(ctx context.Context, tx *sql.Tx, m outbox.Message) (outbox.Message, error) {
	contentJSON, err := json.Marshal(m.Content)
	if err != nil {
		return outbox.Message{}, err
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = outbox.DefaultMaxRetries
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO outbox_messages (
			platform, recipient_id, station_id, message_type, content, status,
			retry_count, max_retries, correlation_id, created_at, next_retry_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
		RETURNING id, created_at
	`, m.Platform, m.RecipientID, toNullInt64(m.StationID), m.MessageType, contentJSON, outbox.StatusPending,
		0, m.MaxRetries, m.CorrelationID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return outbox.Message{}, err
	}
	m.Status = outbox.StatusPending
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// LeaseNext locks up to n due pending messages with FOR UPDATE SKIP LOCKED
// so multiple worker processes can drain the queue concurrently without
// double-sending, grounded on the same lease idiom used for job queues.
// Rows already marked 'failed' (permanent failure or max-retries-exceeded,
// spec.md §4.7 step 7/8) are deliberately excluded — they only return to
// 'pending' via the operator debug-retry endpoint (MarkPendingForRetry).
func (s *Store) LeaseNext(ctx context.Context, n int) ([]outbox.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, platform, recipient_id, station_id, message_type, content, status,
		       retry_count, max_retries, correlation_id, last_error,
		       created_at, processed_at, next_retry_at
		FROM outbox_messages
		WHERE status = 'pending' AND next_retry_at <= now()
		ORDER BY next_retry_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, n)
	if err != nil {
		return nil, err
	}
	var leased []outbox.Message
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		leased = append(leased, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	ids := make([]int64, len(leased))
	for i, m := range leased {
		ids[i] = m.ID
	}
	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox_messages SET status = $2 WHERE id = ANY($1)
		`, pq.Array(ids), outbox.StatusProcessing); err != nil {
			return nil, err
		}
		for i := range leased {
			leased[i].Status = outbox.StatusProcessing
		}
	}

	return leased, tx.Commit()
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_messages SET status = $2, processed_at = now() WHERE id = $1
	`, id, outbox.StatusSent)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkRetry reschedules a transiently-failed message (HTTP 429/502/503/504,
// timeout, circuit open) back to pending with the given backoff deadline —
// spec.md §4.7 step 6.
func (s *Store) MarkRetry(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, retry_count = retry_count + 1, last_error = $3, next_retry_at = $4
		WHERE id = $1
	`, id, outbox.StatusPending, errMsg, nextRetryAt.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkFailed terminally fails a message — a permanent 4xx (not 429) or
// retry_count reaching max_retries — leaving it for operator inspection via
// the debug surface (spec.md §4.7 step 7/8).
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, retry_count = retry_count + 1, last_error = $3
		WHERE id = $1
	`, id, outbox.StatusFailed, errMsg)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkPendingForRetry flips a failed dead-letter back to pending for
// immediate re-attempt, the only mutation the admin debug surface performs
// (spec.md §6 "POST /debug/outbox/messages/{id}/retry").
func (s *Store) MarkPendingForRetry(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, next_retry_at = now()
		WHERE id = $1 AND status = $3
	`, id, outbox.StatusPending, outbox.StatusFailed)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Summary counts outbox rows by status for the admin debug surface.
func (s *Store) Summary(ctx context.Context) (map[outbox.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM outbox_messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[outbox.Status]int{}
	for rows.Next() {
		var status outbox.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// ListByStatus returns the most recent messages in status, for the admin
// debug surface ("GET /debug/outbox/messages?status=&limit=").
func (s *Store) ListByStatus(ctx context.Context, status outbox.Status, limit int) ([]outbox.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, recipient_id, station_id, message_type, content, status,
		       retry_count, max_retries, correlation_id, last_error,
		       created_at, processed_at, next_retry_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []outbox.Message
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOutboxMessage(scanner rowScanner) (outbox.Message, error) {
	var (
		m           outbox.Message
		stationID   sql.NullInt64
		contentJSON []byte
		lastError   sql.NullString
		processedAt sql.NullTime
		nextRetryAt sql.NullTime
	)
	err := scanner.Scan(&m.ID, &m.Platform, &m.RecipientID, &stationID, &m.MessageType, &contentJSON, &m.Status,
		&m.RetryCount, &m.MaxRetries, &m.CorrelationID, &lastError,
		&m.CreatedAt, &processedAt, &nextRetryAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return outbox.Message{}, storage.ErrNotFound
		}
		return outbox.Message{}, err
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &m.Content); err != nil {
			return outbox.Message{}, err
		}
	}
	m.StationID = fromNullInt64(stationID)
	m.LastError = lastError.String
	m.CreatedAt = m.CreatedAt.UTC()
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		m.ProcessedAt = &t
	}
	if nextRetryAt.Valid {
		t := nextRetryAt.Time.UTC()
		m.NextRetryAt = &t
	}
	return m, nil
}
