// Package callbacktoken implements the "dynamic button->callback mapping"
// pattern of spec.md §9: the bot-API platform caps callback payloads at 64
// bytes, so a short random token stands in for the full text in the key
// value store with a 36-hour TTL (within the spec's 24-48h band), and is
// resolved back to the full payload when the user presses the button.
package callbacktoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dispatchcore/platform/internal/platform/kv"
)

// TTL is how long a minted token stays resolvable.
const TTL = 36 * time.Hour

// MaxCallbackBytes is the bot-API platform's callback_data size limit; any
// payload at or under this length is sent as-is, with no token indirection.
const MaxCallbackBytes = 64

// ErrExpired is returned by Resolve when the token is unknown or has
// expired; callers must show a "button expired" reply rather than silently
// dispatching the raw token into the state machine (spec.md §9).
var ErrExpired = errors.New("callback token expired or unknown")

// Store mints and resolves callback tokens.
type Store struct {
	kv kv.Store
}

// New builds a Store over kv.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Encode returns a ready-to-send callback value for payload: the payload
// itself when short enough, otherwise "t:<token>" after storing payload
// under that token.
func (s *Store) Encode(ctx context.Context, payload string) (string, error) {
	if len(payload) <= MaxCallbackBytes {
		return payload, nil
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.kv.Set(ctx, key(token), payload, TTL); err != nil {
		return "", err
	}
	return "t:" + token, nil
}

// Resolve reverses Encode: a plain value is returned unchanged; a "t:"
// prefixed value is looked up, returning ErrExpired if missing.
func (s *Store) Resolve(ctx context.Context, value string) (string, error) {
	if len(value) < 2 || value[:2] != "t:" {
		return value, nil
	}
	token := value[2:]
	payload, ok, err := s.kv.Get(ctx, key(token))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrExpired
	}
	return payload, nil
}

func key(token string) string { return "cbtoken:" + token }

func newToken() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
