package conversation

import "github.com/dispatchcore/platform/internal/domain/outbox"

// Input is one inbound turn handed to a role handler: sanitized text,
// a resolved button callback (after callbacktoken.Resolve), and an optional
// media reference uploaded with the message.
type Input struct {
	Text     string
	Callback string
	Media    *outbox.Media
}

// Reply is a role handler's rendered response: text plus an optional
// keyboard. Handlers return raw (pre-platform-conversion) HTML-subset text;
// internal/adapters/markup converts it at the outbound boundary.
type Reply struct {
	Text     string
	Keyboard *outbox.Keyboard
}

// Handler is a per-state handler signature (spec.md §4.4) returning the
// reply, the next state, and a context patch to merge copy-on-write. Nothing
// in this module uses it: the role handlers implement roles.Step, which also
// receives ctx, the roles.Deps bundle and the loaded user.
type Handler func(input Input, sess Session) (Reply, State, Context, error)
