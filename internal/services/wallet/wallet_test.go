package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/money"
	walletdomain "github.com/dispatchcore/platform/internal/domain/wallet"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Memory) {
	t.Helper()
	store := memory.New()
	return New(store, logging.New("test", "error", "json")), store
}

func TestGetOrCreate_DefaultsCreditLimit(t *testing.T) {
	svc, _ := newTestService(t)
	w, err := svc.GetOrCreate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DefaultCreditLimit, w.CreditLimit)
	assert.Equal(t, money.Zero, w.Balance)
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w1, err := svc.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	w2, err := svc.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, w1, w2)
}

func TestDebitForCapture_SucceedsWithinCreditLimit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, 99)
	require.NoError(t, err)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	w, entry, err := svc.DebitForCapture(ctx, tx, 99, 7, money.FromMinor(2500))
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(-2500), w.Balance)
	assert.Equal(t, money.FromMinor(-2500), entry.BalanceAfter)
	assert.Equal(t, walletdomain.EntryDeliveryFeeDebit, entry.EntryType)
}

func TestDebitForCapture_InsufficientCredit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Pre-load a wallet sitting at -480.00 with the default -500.00 limit.
	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	w, err := store.GetOrCreateCourierWallet(ctx, tx, 1)
	require.NoError(t, err)
	w.Balance = money.FromMinor(-48000)
	require.NoError(t, store.UpdateCourierWalletInTx(ctx, tx, w))

	_, _, err = svc.DebitForCapture(ctx, tx, 1, 7, money.FromMinor(5000))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientCredit)

	// Balance must be unchanged after a rejected debit.
	reloaded, err := store.LockCourierWallet(ctx, tx, 1)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(-48000), reloaded.Balance)
}

func TestDebitForCapture_DuplicateChargeRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, _, err = svc.DebitForCapture(ctx, tx, 1, 7, money.FromMinor(2500))
	require.NoError(t, err)

	// Same (courier, delivery, entry_type) retried: must be rejected without
	// moving the balance further, per spec.md §4.3 invariant 2 and S4.
	_, _, err = svc.DebitForCapture(ctx, tx, 1, 7, money.FromMinor(2500))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDuplicateCharge)

	w, err := store.LockCourierWallet(ctx, tx, 1)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(-2500), w.Balance)
}

func TestCreditForDelivery_IncreasesBalance(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	deliveryID := int64(5)
	w, _, err := svc.CreditForDelivery(ctx, tx, 1, &deliveryID, money.FromMinor(1000), walletdomain.EntryBonus, "בונוס")
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(1000), w.Balance)
}

func TestCreditStationCommission_AppliesRate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	w, entry, err := svc.CreditStationCommission(ctx, tx, 3, 7, money.FromMinor(2500), 0.10)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(250), w.Balance)
	assert.Equal(t, money.FromMinor(250), entry.Amount)
}

func TestHistory_ReturnsMostRecentDescending(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		_, _, err := svc.DebitForCapture(ctx, tx, 1, i, money.FromMinor(100))
		require.NoError(t, err)
	}

	entries, err := svc.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), *entries[0].DeliveryID)
	assert.Equal(t, int64(2), *entries[1].DeliveryID)
}
