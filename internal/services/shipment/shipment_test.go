package shipment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/platform/logging"
	walletsvc "github.com/dispatchcore/platform/internal/services/wallet"
	"github.com/dispatchcore/platform/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Memory) {
	t.Helper()
	store := memory.New()
	log := logging.New("test", "error", "json")
	wallets := walletsvc.New(store, log)
	return New(store, store, store, wallets, log), store
}

func createOpenDelivery(t *testing.T, svc *Service, senderID int64, fee money.Money) delivery.Delivery {
	t.Helper()
	d, err := svc.Create(context.Background(), CreateInput{
		SenderID: senderID,
		Pickup:   delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:  delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:      fee,
	})
	require.NoError(t, err)
	return d
}

func TestCreate_OpensDeliveryAndEnqueuesBroadcast(t *testing.T) {
	svc, store := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))
	assert.Equal(t, delivery.StatusOpen, d.Status)
	assert.NotEmpty(t, d.Token)

	msgs, err := store.ListByStatus(context.Background(), outbox.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCreate_StationRoutedOpensPendingApprovalWithoutBroadcast(t *testing.T) {
	svc, store := newTestService(t)
	stationID := int64(9)
	d, err := svc.Create(context.Background(), CreateInput{
		SenderID:            1,
		Pickup:              delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:             delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:                 money.FromMinor(1000),
		StationID:           &stationID,
		RouteThroughStation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPendingApproval, d.Status)

	msgs, err := store.ListByStatus(context.Background(), outbox.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 0)
}

func TestCapture_Success_DebitsWalletAndMarksCaptured(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(2500))

	captured, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 99})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCaptured, captured.Status)
	require.NotNil(t, captured.CourierID)
	assert.Equal(t, int64(99), *captured.CourierID)

	w, err := svc.wallets.GetOrCreate(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(-2500), w.Balance)
}

func TestCapture_ByToken(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))

	captured, err := svc.Capture(context.Background(), CaptureInput{Token: &d.Token, CourierID: 5})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCaptured, captured.Status)
}

func TestCapture_InsufficientCredit_LeavesDeliveryOpen(t *testing.T) {
	svc, store := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(60000))

	_, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientCredit)

	reloaded, err := store.GetDeliveryByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusOpen, reloaded.Status)
}

func TestCapture_SecondAttemptOnAlreadyCapturedFails(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))

	_, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 1})
	require.NoError(t, err)

	_, err = svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDeliveryNotAvailable)
}

func TestCapture_BlacklistedCourierRejected(t *testing.T) {
	svc, store := newTestService(t)
	st, err := store.CreateStation(context.Background(), station.Station{Name: "תחנה"})
	require.NoError(t, err)
	stationID := st.ID
	require.NoError(t, store.Blacklist(context.Background(), station.Blacklist{StationID: stationID, CourierID: 7}))

	d, err := svc.Create(context.Background(), CreateInput{
		SenderID:  1,
		Pickup:    delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:   delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:       money.FromMinor(1000),
		StationID: &stationID,
	})
	require.NoError(t, err)

	_, err = svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCourierBlacklisted)
}

func TestCapture_CreditsStationCommission(t *testing.T) {
	svc, store := newTestService(t)
	st, err := store.CreateStation(context.Background(), station.Station{Name: "תחנה"})
	require.NoError(t, err)
	stationID := st.ID

	d, err := svc.Create(context.Background(), CreateInput{
		SenderID:  1,
		Pickup:    delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:   delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:       money.FromMinor(10000),
		StationID: &stationID,
	})
	require.NoError(t, err)

	_, err = svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 1})
	require.NoError(t, err)

	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	sw, err := store.LockStationWallet(context.Background(), tx, stationID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(1000), sw.Balance) // 10% of 100.00
}

func TestMarkPickedUpAndDelivered_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))

	captured, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 42})
	require.NoError(t, err)

	pickedUp, err := svc.MarkPickedUp(context.Background(), captured.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusInProgress, pickedUp.Status)

	delivered, err := svc.MarkDelivered(context.Background(), captured.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
}

func TestMarkPickedUp_WrongCourierRejected(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))
	captured, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &d.ID, CourierID: 42})
	require.NoError(t, err)

	_, err = svc.MarkPickedUp(context.Background(), captured.ID, 43)
	assert.Error(t, err)
}

func TestCancel_OpenDeliveryBySender(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))

	cancelled, err := svc.Cancel(context.Background(), d.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, cancelled.Status)
}

func TestCancel_NonSenderRejected(t *testing.T) {
	svc, _ := newTestService(t)
	d := createOpenDelivery(t, svc, 1, money.FromMinor(1000))

	_, err := svc.Cancel(context.Background(), d.ID, 2, false)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestApprove_PendingApprovalToCaptured(t *testing.T) {
	svc, store := newTestService(t)
	st, err := store.CreateStation(context.Background(), station.Station{Name: "תחנה"})
	require.NoError(t, err)
	stationID := st.ID

	d, err := svc.Create(context.Background(), CreateInput{
		SenderID:            1,
		Pickup:              delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:             delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:                 money.FromMinor(1000),
		StationID:           &stationID,
		RouteThroughStation: true,
	})
	require.NoError(t, err)

	courierID := int64(77)
	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	locked, err := store.LockDeliveryForUpdate(context.Background(), tx, d.ID)
	require.NoError(t, err)
	locked.RequestingCourierID = &courierID
	require.NoError(t, store.UpdateDeliveryInTx(context.Background(), tx, locked))

	approved, err := svc.Approve(context.Background(), d.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCaptured, approved.Status)
	require.NotNil(t, approved.CourierID)
	assert.Equal(t, courierID, *approved.CourierID)
}

func TestReject_PendingApprovalToCancelled(t *testing.T) {
	svc, store := newTestService(t)
	st, err := store.CreateStation(context.Background(), station.Station{Name: "תחנה"})
	require.NoError(t, err)
	stationID := st.ID

	d, err := svc.Create(context.Background(), CreateInput{
		SenderID:            1,
		Pickup:              delivery.Address{Text: "רחוב הרצל 1"},
		Dropoff:             delivery.Address{Text: "רחוב ויצמן 2"},
		Fee:                 money.FromMinor(1000),
		StationID:           &stationID,
		RouteThroughStation: true,
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), d.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, rejected.Status)
}

func TestCapture_UnknownDeliveryNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	missing := int64(99999)
	_, err := svc.Capture(context.Background(), CaptureInput{DeliveryID: &missing, CourierID: 1})
	assert.ErrorIs(t, err, apperr.ErrDeliveryNotFound)
}
