// Package shipment implements the Shipment Workflow (spec.md §4.2): create,
// approve/reject, capture, mark-picked-up, deliver, and cancel, all enforcing
// the state machine in internal/domain/delivery and the atomic capture
// transaction (row-locked delivery + wallet + ledger + outbox, one commit).
//
// Grounded on the teacher's applications/jam/store_pg.go lease/lock idiom
// (open a tx, SELECT ... FOR UPDATE, mutate, commit); the state machine
// itself has no teacher analog and is authored fresh from spec.md §4.2 (see
// DESIGN.md's Non-grounded section).
package shipment

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/platform/logging"
	walletsvc "github.com/dispatchcore/platform/internal/services/wallet"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/dispatchcore/platform/internal/validation"
)

// DefaultCommissionRate is applied when a station's wallet is created
// implicitly on a delivery's first commission credit.
const DefaultCommissionRate = 0.10

// Service implements the capture/approve/deliver/cancel operations of
// spec.md §4.2.
type Service struct {
	deliveries storage.DeliveryStore
	stations   storage.StationStore
	outbox     storage.OutboxStore
	wallets    *walletsvc.Service
	log        *logging.Logger
}

// New builds a shipment Service.
func New(deliveries storage.DeliveryStore, stations storage.StationStore, outboxStore storage.OutboxStore, wallets *walletsvc.Service, log *logging.Logger) *Service {
	return &Service{deliveries: deliveries, stations: stations, outbox: outboxStore, wallets: wallets, log: log}
}

// NewToken generates the cryptographically random, URL-safe smart-link
// token required by spec.md §3 (16 random bytes).
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateInput captures the fields a sender/dispatcher supplies when opening
// a shipment.
type CreateInput struct {
	SenderID  int64
	StationID *int64
	Pickup    delivery.Address
	Dropoff   delivery.Address
	Fee       money.Money
	Notes     string
	// RouteThroughStation, when true, opens the delivery as
	// PENDING_APPROVAL instead of OPEN, per spec.md §4.2's
	// "station-routed" edge.
	RouteThroughStation bool
}

// Create inserts a new OPEN (or PENDING_APPROVAL) delivery and enqueues the
// broadcast-to-couriers notification in the same transaction (S1).
func (s *Service) Create(ctx context.Context, in CreateInput) (delivery.Delivery, error) {
	if in.Fee < 0 || in.Fee > delivery.MaxFee {
		return delivery.Delivery{}, apperr.New(apperr.CodeInvalidAmount, "סכום המשלוח אינו חוקי")
	}
	token, err := NewToken()
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת קישור", err)
	}

	status := delivery.StatusOpen
	if in.RouteThroughStation {
		status = delivery.StatusPendingApproval
	}
	d := delivery.Delivery{
		Token:     token,
		SenderID:  in.SenderID,
		StationID: in.StationID,
		Pickup:    in.Pickup,
		Dropoff:   in.Dropoff,
		Status:    status,
		Fee:       in.Fee,
		Notes:     in.Notes,
	}

	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err = s.deliveries.CreateDeliveryInTx(ctx, tx, d)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת המשלוח", err)
	}

	if status == delivery.StatusOpen {
		if _, err := s.outbox.EnqueueInTx(ctx, tx, broadcastMessage(d)); err != nil {
			return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשליחים", err)
		}
	}
	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת המשלוח", err)
	}
	return d, nil
}

// CaptureInput selects the delivery (by id or token) and the capturing
// courier, with an optional fee override.
type CaptureInput struct {
	DeliveryID  *int64
	Token       *string
	CourierID   int64
	FeeOverride *money.Money
}

// Capture implements the atomic capture operation of spec.md §4.2: lock the
// delivery, lock the courier wallet, check the blacklist, debit the fee,
// credit the station commission, and enqueue the sender notification, all
// in one transaction (S2–S4).
func (s *Service) Capture(ctx context.Context, in CaptureInput) (delivery.Delivery, error) {
	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err := s.lockDelivery(ctx, tx, in.DeliveryID, in.Token)
	if err != nil {
		return delivery.Delivery{}, err
	}

	allowedFrom := d.Status == delivery.StatusOpen || d.Status == delivery.StatusPendingApproval
	if !allowedFrom || !delivery.CanTransition(d.Status, delivery.StatusCaptured) {
		return delivery.Delivery{}, apperr.ErrDeliveryNotAvailable
	}

	if d.StationID != nil {
		blacklisted, err := s.stations.IsBlacklisted(ctx, *d.StationID, in.CourierID)
		if err != nil {
			return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת רשימה שחורה", err)
		}
		if blacklisted {
			return delivery.Delivery{}, apperr.ErrCourierBlacklisted
		}
	}

	fee := d.Fee
	if in.FeeOverride != nil {
		fee = *in.FeeOverride
	}

	if _, _, err := s.wallets.DebitForCapture(ctx, tx, in.CourierID, d.ID, fee); err != nil {
		return delivery.Delivery{}, err
	}

	if d.StationID != nil {
		if _, _, err := s.wallets.CreditStationCommission(ctx, tx, *d.StationID, d.ID, fee, DefaultCommissionRate); err != nil {
			return delivery.Delivery{}, err
		}
	}

	now := time.Now().UTC()
	d.Status = delivery.StatusCaptured
	d.CourierID = &in.CourierID
	d.CapturedAt = &now
	d.Fee = fee
	if err := s.deliveries.UpdateDeliveryInTx(ctx, tx, d); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}

	if _, err := s.outbox.EnqueueInTx(ctx, tx, senderNotice(d, "המשלוח נלכד על ידי שליח ויגיע בקרוב")); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשולח", err)
	}

	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת הלכידה", err)
	}
	return d, nil
}

// Approve transitions a station-routed PENDING_APPROVAL delivery, requested
// by RequestingCourierID, into CAPTURED — the two-step dispatcher-approval
// path of spec.md §4.2.
func (s *Service) Approve(ctx context.Context, deliveryID int64, dispatcherID int64) (delivery.Delivery, error) {
	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, deliveryID)
	if err != nil {
		return delivery.Delivery{}, translateNotFound(err)
	}
	if d.Status != delivery.StatusPendingApproval || d.RequestingCourierID == nil {
		return delivery.Delivery{}, apperr.ErrDeliveryNotAvailable
	}
	courierID := *d.RequestingCourierID

	if d.StationID != nil {
		blacklisted, err := s.stations.IsBlacklisted(ctx, *d.StationID, courierID)
		if err != nil {
			return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת רשימה שחורה", err)
		}
		if blacklisted {
			return delivery.Delivery{}, apperr.ErrCourierBlacklisted
		}
	}

	if _, _, err := s.wallets.DebitForCapture(ctx, tx, courierID, d.ID, d.Fee); err != nil {
		return delivery.Delivery{}, err
	}
	if d.StationID != nil {
		if _, _, err := s.wallets.CreditStationCommission(ctx, tx, *d.StationID, d.ID, d.Fee, DefaultCommissionRate); err != nil {
			return delivery.Delivery{}, err
		}
	}

	now := time.Now().UTC()
	d.Status = delivery.StatusCaptured
	d.CourierID = &courierID
	d.CapturedAt = &now
	if err := s.deliveries.UpdateDeliveryInTx(ctx, tx, d); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}
	if _, err := s.outbox.EnqueueInTx(ctx, tx, senderNotice(d, "המשלוח אושר ונלכד")); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשולח", err)
	}
	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה באישור המשלוח", err)
	}
	return d, nil
}

// Reject cancels a PENDING_APPROVAL delivery, the dispatcher-rejection edge
// of spec.md §4.2.
func (s *Service) Reject(ctx context.Context, deliveryID int64, dispatcherID int64) (delivery.Delivery, error) {
	return s.transitionToCancelled(ctx, deliveryID, delivery.StatusPendingApproval, "בקשת השליח נדחתה על ידי התחנה")
}

// Cancel cancels an OPEN delivery by its sender, or a PENDING_APPROVAL
// delivery by a dispatcher (spec.md §4.2's cancel edges).
func (s *Service) Cancel(ctx context.Context, deliveryID, callerID int64, callerIsDispatcher bool) (delivery.Delivery, error) {
	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, deliveryID)
	if err != nil {
		return delivery.Delivery{}, translateNotFound(err)
	}

	switch {
	case d.Status == delivery.StatusOpen && d.SenderID == callerID:
	case d.Status == delivery.StatusPendingApproval && callerIsDispatcher:
	default:
		return delivery.Delivery{}, apperr.ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	d.Status = delivery.StatusCancelled
	d.CancelledAt = &now
	if err := s.deliveries.UpdateDeliveryInTx(ctx, tx, d); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בביטול המשלוח", err)
	}
	if _, err := s.outbox.EnqueueInTx(ctx, tx, senderNotice(d, "המשלוח בוטל")); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשולח", err)
	}
	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בביטול המשלוח", err)
	}
	return d, nil
}

func (s *Service) transitionToCancelled(ctx context.Context, deliveryID int64, requireFrom delivery.Status, notice string) (delivery.Delivery, error) {
	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, deliveryID)
	if err != nil {
		return delivery.Delivery{}, translateNotFound(err)
	}
	if d.Status != requireFrom {
		return delivery.Delivery{}, apperr.ErrDeliveryNotAvailable
	}
	now := time.Now().UTC()
	d.Status = delivery.StatusCancelled
	d.CancelledAt = &now
	if err := s.deliveries.UpdateDeliveryInTx(ctx, tx, d); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}
	if _, err := s.outbox.EnqueueInTx(ctx, tx, senderNotice(d, notice)); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשולח", err)
	}
	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}
	return d, nil
}

// MarkPickedUp transitions CAPTURED -> IN_PROGRESS; the caller must be the
// delivery's assigned courier (spec.md §4.2's authorization rule).
func (s *Service) MarkPickedUp(ctx context.Context, deliveryID, courierID int64) (delivery.Delivery, error) {
	return s.courierTransition(ctx, deliveryID, courierID, delivery.StatusCaptured, delivery.StatusInProgress, "השליח אסף את המשלוח", func(d *delivery.Delivery, now time.Time) {})
}

// MarkDelivered transitions IN_PROGRESS -> DELIVERED; same authorization
// rule as MarkPickedUp.
func (s *Service) MarkDelivered(ctx context.Context, deliveryID, courierID int64) (delivery.Delivery, error) {
	return s.courierTransition(ctx, deliveryID, courierID, delivery.StatusInProgress, delivery.StatusDelivered, "המשלוח נמסר בהצלחה", func(d *delivery.Delivery, now time.Time) {
		d.DeliveredAt = &now
	})
}

func (s *Service) courierTransition(ctx context.Context, deliveryID, courierID int64, from, to delivery.Status, notice string, apply func(d *delivery.Delivery, now time.Time)) (delivery.Delivery, error) {
	tx, err := s.deliveries.BeginTx(ctx)
	if err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, deliveryID)
	if err != nil {
		return delivery.Delivery{}, translateNotFound(err)
	}
	if d.CourierID == nil || *d.CourierID != courierID {
		return delivery.Delivery{}, apperr.New(apperr.CodeInvalidStateTransition, "אינך מורשה לבצע פעולה זו")
	}
	if d.Status != from || !delivery.CanTransition(from, to) {
		return delivery.Delivery{}, apperr.ErrInvalidStateTransition
	}
	now := time.Now().UTC()
	d.Status = to
	apply(&d, now)
	if err := s.deliveries.UpdateDeliveryInTx(ctx, tx, d); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}
	if _, err := s.outbox.EnqueueInTx(ctx, tx, senderNotice(d, notice)); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת עדכון לשולח", err)
	}
	if err := commit(tx); err != nil {
		return delivery.Delivery{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון המשלוח", err)
	}
	return d, nil
}

func (s *Service) lockDelivery(ctx context.Context, tx *sql.Tx, id *int64, token *string) (delivery.Delivery, error) {
	switch {
	case id != nil:
		d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, *id)
		return d, translateNotFound(err)
	case token != nil:
		// Token lookup is not itself constant-time here; the network-facing
		// boundary (§6) is responsible for avoiding token enumeration via
		// rate limiting before it ever reaches this call.
		unlocked, err := s.deliveries.GetDeliveryByToken(ctx, *token)
		if err != nil {
			return delivery.Delivery{}, translateNotFound(err)
		}
		d, err := s.deliveries.LockDeliveryForUpdate(ctx, tx, unlocked.ID)
		return d, translateNotFound(err)
	default:
		return delivery.Delivery{}, apperr.New(apperr.CodeValidation, "יש לציין מזהה משלוח או קישור")
	}
}

func translateNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrDeliveryNotFound
	}
	return apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת המשלוח", err)
}

// broadcastMessage enqueues a BroadcastCouriers fan-out. Platform is left at
// its zero value: a broadcast has no single recipient platform, so the
// outbox worker resolves each eligible courier's own registered platform
// rather than honoring this field (spec.md §4.7 step 3). StationID scopes
// the fan-out so the worker can exclude this delivery's station blacklist.
func broadcastMessage(d delivery.Delivery) outbox.Message {
	return outbox.Message{
		RecipientID: outbox.BroadcastCouriers,
		StationID:   d.StationID,
		MessageType: outbox.MessageText,
		Content: outbox.Content{
			Text: "משלוח חדש ממתין: " + validation.SanitizeForHTML(d.Pickup.Text) + " -> " + validation.SanitizeForHTML(d.Dropoff.Text),
		},
		MaxRetries: outbox.DefaultMaxRetries,
	}
}

// senderNotice enqueues a direct notice to the delivery's sender. Platform is
// left unset: RecipientID is the sender's user id, not a chat id, so the
// outbox worker looks up the sender's current platform and chat id at
// dispatch time rather than trusting a value captured when the shipment
// event occurred.
func senderNotice(d delivery.Delivery, text string) outbox.Message {
	return outbox.Message{
		RecipientID: formatID(d.SenderID),
		MessageType: outbox.MessageText,
		Content:     outbox.Content{Text: text},
		MaxRetries:  outbox.DefaultMaxRetries,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func rollback(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

func commit(tx *sql.Tx) error {
	if tx == nil {
		return nil
	}
	return tx.Commit()
}
