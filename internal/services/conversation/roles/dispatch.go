package roles

import (
	"context"
	"errors"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/services/conversation"
)

// allSteps merges every role's state-handler map. Built once at package init
// since each sub-map's keys are disjoint (enforced by construction: one
// state belongs to exactly one role's dotted prefix).
var allSteps = mergeSteps(SenderSteps, CourierSteps, DispatcherSteps, StationSteps)

func mergeSteps(maps ...map[conversation.State]Step) map[conversation.State]Step {
	out := make(map[conversation.State]Step)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Dispatch looks up and invokes the handler registered for sess's current
// state. A state with no registered handler (ADMIN.MENU, any state this
// core does not implement a wizard for) falls back to RouteToRoleMenu's
// fixed menu text rather than erroring, so an unimplemented branch degrades
// to "show the menu" instead of a dead end.
func Dispatch(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	step, ok := allSteps[sess.CurrentState]
	if !ok {
		entry := conversation.RouteToRoleMenu(ctx, d.Log, u.Role)
		return conversation.Reply{Text: entry.Text}, entry.State, nil, nil
	}
	reply, next, patch, err := step(ctx, d, sess, u, in)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return conversation.Reply{Text: appErr.Message}, sess.CurrentState, nil, nil
		}
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	return reply, next, patch, nil
}
