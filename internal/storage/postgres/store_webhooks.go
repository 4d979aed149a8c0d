package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dispatchcore/platform/internal/domain/webhook"
)

// TryBeginProcessing inserts a "processing" row for platformMessageID, or
// reclaims a row stuck in "processing" past webhook.StaleAfter. Returns
// ok=false for an already-processed event or one another worker currently
// owns, giving callers the idempotent at-most-once dispatch spec.md §4.5
// requires.
func (s *Store) TryBeginProcessing(ctx context.Context, platformMessageID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var ev webhook.Event
	err = tx.QueryRowContext(ctx, `
		SELECT id, platform_message_id, status, created_at, updated_at
		FROM webhook_events WHERE platform_message_id = $1 FOR UPDATE
	`, platformMessageID).Scan(&ev.ID, &ev.PlatformMessageID, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO webhook_events (platform_message_id, status, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, platformMessageID, webhook.StatusProcessing); err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	ev.UpdatedAt = ev.UpdatedAt.UTC()
	if ev.Status == webhook.StatusProcessed {
		return false, tx.Commit()
	}
	if ev.Status == webhook.StatusProcessing && !ev.IsStale(time.Now().UTC()) {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_events SET status = $2, updated_at = now() WHERE platform_message_id = $1
	`, platformMessageID, webhook.StatusProcessing); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, platformMessageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $2, updated_at = now() WHERE platform_message_id = $1
	`, platformMessageID, webhook.StatusProcessed)
	return err
}

func (s *Store) MarkWebhookFailed(ctx context.Context, platformMessageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $2, updated_at = now() WHERE platform_message_id = $1
	`, platformMessageID, webhook.StatusFailed)
	return err
}
