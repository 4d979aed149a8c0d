// Package conversation defines the per-(user, platform) session entity and
// the dotted state identifier convention. The state graph and role handlers
// live in internal/services/conversation.
package conversation

import (
	"strings"
	"time"

	"github.com/dispatchcore/platform/internal/domain/user"
)

// State is a dotted identifier with a role prefix, e.g. "SENDER.MENU".
type State string

// Initial is the state every brand-new session starts in.
const Initial State = "INITIAL"

// Prefix returns the role portion of a dotted state ("SENDER", "COURIER",
// "DISPATCHER", "STATION", or "" for Initial/malformed states).
func (s State) Prefix() string {
	idx := strings.IndexByte(string(s), '.')
	if idx < 0 {
		return ""
	}
	return string(s)[:idx]
}

// Context is the semi-structured per-session key/value store. Values are
// stored raw (not HTML-escaped); rendering templates escape on output.
type Context map[string]any

// Clone performs a shallow copy, used by the copy-on-write update path.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge returns a new Context with patch applied over the receiver. A nil
// value in patch deletes the key.
func (c Context) Merge(patch Context) Context {
	out := c.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Session is a (user, platform) conversation state machine instance.
type Session struct {
	UserID         int64
	Platform       user.Platform
	CurrentState   State
	Context        Context
	UpdatedAt      time.Time
	LastActivityAt time.Time
}
