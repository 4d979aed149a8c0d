package outbox

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

// fakeSender records every Send call and returns the same scripted error on
// every call, letting tests drive transient-retry vs permanent-fail paths
// without a real HTTP adapter.
type fakeSender struct {
	mu  sync.Mutex
	err error
	got []string
}

func (f *fakeSender) Send(_ context.Context, recipientID string, _ outbox.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, recipientID)
	return f.err
}

func newTestWorker(t *testing.T, sender Sender) (*Worker, *memory.Memory) {
	t.Helper()
	store := memory.New()
	cfg := Config{Workers: 1, BatchSize: 20}
	w := New(store, store, store, resilience.NewRegistry(resilience.DefaultConfig()),
		map[user.Platform]Sender{user.PlatformBotAPI: sender, user.PlatformWebChat: sender},
		logging.New("test", "error", "json"), cfg)
	return w, store
}

func enqueue(t *testing.T, store *memory.Memory, m outbox.Message) outbox.Message {
	t.Helper()
	msg, err := store.EnqueueInTx(context.Background(), nil, m)
	require.NoError(t, err)
	return msg
}

func TestDrainOnce_SuccessMarksSent(t *testing.T) {
	sender := &fakeSender{}
	w, store := newTestWorker(t, sender)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Platform: user.PlatformBotAPI, ChatID: 555, IsActive: true})
	require.NoError(t, err)
	enqueue(t, store, outbox.Message{RecipientID: itoa64(u.ID), MessageType: outbox.MessageText, Content: outbox.Content{Text: "hi"}, MaxRetries: 5})

	w.drainOnce(ctx)

	msgs, err := store.ListByStatus(ctx, outbox.StatusSent, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, []string{"555"}, sender.got)
}

func TestDrainOnce_TransientFailureReschedulesAsPending(t *testing.T) {
	sender := &fakeSender{err: apperr.New(apperr.CodeUpstream5xx, "upstream 503")}
	w, store := newTestWorker(t, sender)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Platform: user.PlatformBotAPI, ChatID: 1, IsActive: true})
	require.NoError(t, err)
	msg := enqueue(t, store, outbox.Message{RecipientID: itoa64(u.ID), MessageType: outbox.MessageText, Content: outbox.Content{Text: "hi"}, MaxRetries: 5})

	w.drainOnce(ctx)

	pending, err := store.ListByStatus(ctx, outbox.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, msg.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].NextRetryAt)
}

func TestDrainOnce_PermanentFailureMarksFailed(t *testing.T) {
	sender := &fakeSender{err: apperr.New(apperr.CodeValidation, "bad recipient")}
	w, store := newTestWorker(t, sender)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Platform: user.PlatformBotAPI, ChatID: 1, IsActive: true})
	require.NoError(t, err)
	enqueue(t, store, outbox.Message{RecipientID: itoa64(u.ID), MessageType: outbox.MessageText, Content: outbox.Content{Text: "hi"}, MaxRetries: 5})

	w.drainOnce(ctx)

	failed, err := store.ListByStatus(ctx, outbox.StatusFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestDrainOnce_TransientFailureExhaustingRetriesMarksFailed(t *testing.T) {
	sender := &fakeSender{err: apperr.New(apperr.CodeUpstream5xx, "upstream 503")}
	w, store := newTestWorker(t, sender)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, user.User{Platform: user.PlatformBotAPI, ChatID: 1, IsActive: true})
	require.NoError(t, err)
	enqueue(t, store, outbox.Message{RecipientID: itoa64(u.ID), MessageType: outbox.MessageText, Content: outbox.Content{Text: "hi"}, MaxRetries: 1, RetryCount: 0})

	w.drainOnce(ctx)

	failed, err := store.ListByStatus(ctx, outbox.StatusFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestDrainOnce_BroadcastExcludesBlacklistedAndInactiveCouriers(t *testing.T) {
	sender := &fakeSender{}
	w, store := newTestWorker(t, sender)
	ctx := context.Background()

	st, err := store.CreateStation(ctx, station.Station{Name: "תחנה"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, user.User{Role: user.RoleCourier, Platform: user.PlatformBotAPI, ChatID: 1, IsActive: true, ApprovalStatus: user.ApprovalApproved})
	require.NoError(t, err)
	blacklisted, err := store.CreateUser(ctx, user.User{Role: user.RoleCourier, Platform: user.PlatformBotAPI, ChatID: 2, IsActive: true, ApprovalStatus: user.ApprovalApproved})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, user.User{Role: user.RoleCourier, Platform: user.PlatformBotAPI, ChatID: 3, IsActive: false, ApprovalStatus: user.ApprovalApproved})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, user.User{Role: user.RoleCourier, Platform: user.PlatformBotAPI, ChatID: 4, IsActive: true, ApprovalStatus: user.ApprovalPending})
	require.NoError(t, err)

	require.NoError(t, store.Blacklist(ctx, station.Blacklist{StationID: st.ID, CourierID: blacklisted.ID}))

	enqueue(t, store, outbox.Message{RecipientID: outbox.BroadcastCouriers, StationID: &st.ID, MessageType: outbox.MessageText, Content: outbox.Content{Text: "new delivery"}, MaxRetries: 5})

	w.drainOnce(ctx)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.ElementsMatch(t, []string{"1"}, sender.got) // eligible courier's ChatID; blacklisted/inactive/pending excluded
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
