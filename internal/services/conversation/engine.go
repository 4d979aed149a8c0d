package conversation

import (
	"context"
	"strings"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/storage"
)

// Session is re-exported for convenience.
type Session = conversation.Session

// Context is re-exported for convenience.
type Context = conversation.Context

// Initial is re-exported for callers that only import this package.
const Initial = conversation.Initial

// Engine is the per-(user, platform) state machine store plus transition
// validation described in spec.md §4.4.
type Engine struct {
	store storage.ConversationStore
	graph *Graph
	log   *logging.Logger
}

// New builds an Engine backed by store, validating transitions against
// graph (use BuildDefaultGraph for the production graph).
func New(store storage.ConversationStore, graph *Graph, log *logging.Logger) *Engine {
	return &Engine{store: store, graph: graph, log: log}
}

// GetOrCreateSession loads the (user, platform) session, creating a fresh
// INITIAL one if none exists.
func (e *Engine) GetOrCreateSession(ctx context.Context, userID int64, platform user.Platform) (Session, error) {
	sess, err := e.store.GetConversationSession(ctx, userID, platform)
	if err == nil {
		return sess, nil
	}
	if err != storage.ErrNotFound {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת מצב השיחה", err)
	}
	sess = Session{UserID: userID, Platform: platform, CurrentState: conversation.Initial, Context: Context{}}
	if err := e.store.UpsertConversationSession(ctx, sess); err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת מצב השיחה", err)
	}
	return sess, nil
}

// TransitionTo validates (current, newState) against the role's graph and,
// if allowed, copy-on-write merges ctxPatch into the session's context and
// persists the result. Invalid edges are rejected with
// apperr.CodeInvalidStateTransition unless the caller uses ForceState.
func (e *Engine) TransitionTo(ctx context.Context, sess Session, role user.Role, newState State, ctxPatch Context) (Session, error) {
	if !e.graph.CanTransition(role, sess.CurrentState, newState) {
		e.log.LogSecurityEvent(ctx, "invalid_state_transition", map[string]any{
			"user_id": sess.UserID, "from": string(sess.CurrentState), "to": string(newState),
		})
		return Session{}, apperr.ErrInvalidStateTransition
	}
	sess.CurrentState = newState
	sess.Context = sess.Context.Merge(ctxPatch)
	if err := e.store.UpsertConversationSession(ctx, sess); err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת מצב השיחה", err)
	}
	return sess, nil
}

// ForceState overrides the state machine without edge validation, reserved
// for administrative reset (spec.md §4.4, S7). clearContext fully wipes the
// stored context, including any partially-uploaded courier-onboarding media
// references — matching spec.md §9's literal instruction for the `/start`
// mid-flow case as well as explicit admin resets.
func (e *Engine) ForceState(ctx context.Context, sess Session, newState State, clearContext bool) (Session, error) {
	sess.CurrentState = newState
	if clearContext {
		sess.Context = Context{}
	}
	if err := e.store.UpsertConversationSession(ctx, sess); err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "שגיאה באיפוס מצב השיחה", err)
	}
	return sess, nil
}

// PatchContext merges ctxPatch into sess without validating a state
// transition, for session-scoped facts (e.g. a resolved station_id) that
// sit alongside the state graph rather than inside it.
func (e *Engine) PatchContext(ctx context.Context, sess Session, ctxPatch Context) (Session, error) {
	sess.Context = sess.Context.Merge(ctxPatch)
	if err := e.store.UpsertConversationSession(ctx, sess); err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת מצב השיחה", err)
	}
	return sess, nil
}

// HandleStart clears context and returns the caller to their role's initial
// menu state — spec.md §9's Open Question decision: /start mid-flow fully
// wipes context (including partial courier-onboarding media), even though
// that loses in-progress uploads; no teacher precedent exists to do
// otherwise and the spec's literal text is unambiguous.
func (e *Engine) HandleStart(ctx context.Context, sess Session, role user.Role, menuState State) (Session, error) {
	return e.ForceState(ctx, sess, menuState, true)
}

// multiStepFlowPrefixes are the exact state-prefix/segment combinations
// that must suppress global keyword navigation ("menu", "back", marketing
// keywords) so free-text content (e.g. a street address) is never
// misinterpreted as a navigation command — spec.md §4.4.
var multiStepFlowPrefixes = []string{
	"SENDER.REGISTER.",
	"SENDER.CREATE.",
	"COURIER.REGISTER.",
	"DISPATCHER.",
	"STATION.",
}

// IsInMultiStepFlow reports whether state belongs to one of the explicit
// multi-step flows that must not be interrupted by keyword matching.
func IsInMultiStepFlow(state State) bool {
	s := string(state)
	for _, prefix := range multiStepFlowPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
