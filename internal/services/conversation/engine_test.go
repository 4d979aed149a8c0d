package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainconv "github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := memory.New()
	return New(store, BuildDefaultGraph(), logging.New("test", "error", "json"))
}

func TestGetOrCreateSession_CreatesInitialOnFirstCall(t *testing.T) {
	e := newTestEngine(t)
	sess, err := e.GetOrCreateSession(context.Background(), 1, user.PlatformBotAPI)
	require.NoError(t, err)
	assert.Equal(t, domainconv.Initial, sess.CurrentState)
}

func TestGetOrCreateSession_ReloadsExisting(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)

	sess, err = e.TransitionTo(ctx, sess, user.RoleSender, SenderMenu, Context{"foo": "bar"})
	require.NoError(t, err)

	reloaded, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)
	assert.Equal(t, SenderMenu, reloaded.CurrentState)
	assert.Equal(t, "bar", reloaded.Context["foo"])
}

func TestTransitionTo_RejectsInvalidEdge(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)

	// INITIAL -> SENDER.CREATE.CONFIRM is not a declared entry state for
	// SENDER, so this must be rejected.
	_, err = e.TransitionTo(ctx, sess, user.RoleSender, SenderConfirm, nil)
	assert.Error(t, err)
}

func TestTransitionTo_AllowsDeclaredEntryFromInitial(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)

	sess, err = e.TransitionTo(ctx, sess, user.RoleSender, SenderRegisterName, nil)
	require.NoError(t, err)
	assert.Equal(t, SenderRegisterName, sess.CurrentState)
}

func TestForceState_ClearsContextWhenRequested(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)
	sess, err = e.TransitionTo(ctx, sess, user.RoleSender, SenderRegisterName, Context{"partial": "upload"})
	require.NoError(t, err)

	reset, err := e.ForceState(ctx, sess, DispatcherMenu, true)
	require.NoError(t, err)
	assert.Equal(t, DispatcherMenu, reset.CurrentState)
	assert.Empty(t, reset.Context)
}

func TestHandleStart_WipesContextAndReturnsToMenu(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess, err := e.GetOrCreateSession(ctx, 1, user.PlatformBotAPI)
	require.NoError(t, err)
	sess, err = e.TransitionTo(ctx, sess, user.RoleCourier, CourierRegisterName, nil)
	require.NoError(t, err)
	sess, err = e.TransitionTo(ctx, sess, user.RoleCourier, CourierRegisterID, Context{"id_file": "abc"})
	require.NoError(t, err)

	restarted, err := e.HandleStart(ctx, sess, user.RoleCourier, CourierMenu)
	require.NoError(t, err)
	assert.Equal(t, CourierMenu, restarted.CurrentState)
	assert.Empty(t, restarted.Context)
}

func TestIsInMultiStepFlow(t *testing.T) {
	assert.True(t, IsInMultiStepFlow(SenderRegisterName))
	assert.True(t, IsInMultiStepFlow(SenderPickupCity))
	assert.True(t, IsInMultiStepFlow(DispatcherAddFee))
	assert.True(t, IsInMultiStepFlow(StationWallet))
	assert.False(t, IsInMultiStepFlow(SenderMenu))
	assert.False(t, IsInMultiStepFlow(CourierMenu))
}
