package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/storage"
)

func (s *Store) GetConversationSession(ctx context.Context, userID int64, platform user.Platform) (conversation.Session, error) {
	var (
		sess        conversation.Session
		contextJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, platform, current_state, context, updated_at, last_activity_at
		FROM conversation_sessions WHERE user_id = $1 AND platform = $2
	`, userID, platform).Scan(&sess.UserID, &sess.Platform, &sess.CurrentState, &contextJSON, &sess.UpdatedAt, &sess.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Session{}, storage.ErrNotFound
		}
		return conversation.Session{}, err
	}
	sess.Context = conversation.Context{}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &sess.Context); err != nil {
			return conversation.Session{}, err
		}
	}
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	sess.LastActivityAt = sess.LastActivityAt.UTC()
	return sess, nil
}

func (s *Store) UpsertConversationSession(ctx context.Context, sess conversation.Session) error {
	contextJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (user_id, platform, current_state, context, updated_at, last_activity_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (user_id, platform) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			context = EXCLUDED.context,
			updated_at = now(),
			last_activity_at = now()
	`, sess.UserID, sess.Platform, sess.CurrentState, contextJSON)
	return err
}
