// Package wallet implements the Wallet Engine (spec.md §4.3): courier and
// station balances, their append-only ledgers, and the credit-limit
// invariant. Every read-modify-write sequence runs inside the caller's
// *sql.Tx so internal/services/shipment can compose a capture's delivery
// update and wallet debit as one atomic unit, per spec.md §4.2/§4.3.
//
// Grounded on the teacher's internal/gasbank.Manager (reserve/debit/credit
// naming, ledger-row-per-mutation shape) but rewritten against the
// row-locked SQL store instead of the teacher's mutex + REST
// read-modify-write, which cannot provide this spec's cross-row atomicity
// guarantee — see DESIGN.md's Redesign note.
package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/wallet"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/storage"
)

// Service implements the wallet operations of spec.md §4.3.
type Service struct {
	store storage.WalletStore
	log   *logging.Logger
}

// New builds a wallet Service over store.
func New(store storage.WalletStore, log *logging.Logger) *Service {
	return &Service{store: store, log: log}
}

// GetOrCreate returns the courier's wallet, creating it with the default
// credit limit if it does not yet exist. Idempotent and race-safe: a
// unique-violation on concurrent first-insert is handled by re-reading
// rather than failing, the same way the teacher's gasbank manager treats a
// duplicate-key error on first use.
func (s *Service) GetOrCreate(ctx context.Context, courierID int64) (wallet.CourierWallet, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return wallet.CourierWallet{}, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	w, err := s.getOrCreateInTx(ctx, tx, courierID)
	if err != nil {
		return wallet.CourierWallet{}, err
	}
	if err := commit(tx); err != nil {
		return wallet.CourierWallet{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת הארנק", err)
	}
	return w, nil
}

func (s *Service) getOrCreateInTx(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error) {
	w, err := s.store.GetOrCreateCourierWallet(ctx, tx, courierID)
	if isUniqueViolation(err) {
		return s.store.LockCourierWallet(ctx, tx, courierID)
	}
	if err != nil {
		return wallet.CourierWallet{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת הארנק", err)
	}
	return w, nil
}

// CanCapture approximates the capture credit check without locking, for
// UI-side "can I afford this" prompts. The authoritative check happens
// inside DebitForCapture under a row lock; this is read-only and can race
// with a concurrent debit, which is acceptable per spec.md §4.3 ("approximates").
func (s *Service) CanCapture(ctx context.Context, courierID int64, fee money.Money) (bool, string, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return false, "", apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer rollback(tx)

	w, err := s.getOrCreateInTx(ctx, tx, courierID)
	if err != nil {
		return false, "", err
	}
	newBalance := w.Balance.Sub(fee)
	if newBalance.LessThan(w.CreditLimit) {
		return false, "אין מספיק אשראי זמין", nil
	}
	return true, "", nil
}

// DebitForCapture performs the locked read-modify-write at the heart of
// spec.md §4.2 step 3–8: lock the wallet, check the credit limit, update
// the balance, and append the ledger row whose (courier_id, delivery_id,
// entry_type) uniqueness is the last line of defense against double-debit.
// Callers own tx and the surrounding delivery-row lock.
func (s *Service) DebitForCapture(ctx context.Context, tx *sql.Tx, courierID, deliveryID int64, fee money.Money) (wallet.CourierWallet, wallet.WalletLedger, error) {
	w, err := s.getOrCreateInTx(ctx, tx, courierID)
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, err
	}
	w, err = s.store.LockCourierWallet(ctx, tx, courierID)
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeWalletNotFound, "הארנק לא נמצא", err)
	}

	// Belt-and-suspenders check ahead of the DB unique constraint: the
	// storage/memory double has no real constraint to violate, so this is
	// its only double-debit defense; against Postgres it is redundant with
	// isUniqueViolation below but closes the race window a hair earlier.
	exists, err := s.store.HasCourierLedgerEntry(ctx, tx, courierID, deliveryID, wallet.EntryDeliveryFeeDebit)
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת התנועה", err)
	}
	if exists {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.ErrDuplicateCharge
	}

	newBalance := w.Balance.Sub(fee)
	if newBalance.LessThan(w.CreditLimit) {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.New(apperr.CodeInsufficientCredit, "אין מספיק אשראי זמין").
			WithDetails(map[string]any{"balance": w.Balance.String(), "credit_limit": w.CreditLimit.String(), "fee": fee.String()})
	}

	w.Balance = newBalance
	if err := s.store.UpdateCourierWalletInTx(ctx, tx, w); err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון הארנק", err)
	}

	entry := wallet.WalletLedger{
		CourierID:    courierID,
		DeliveryID:   &deliveryID,
		EntryType:    wallet.EntryDeliveryFeeDebit,
		Amount:       fee.Neg(),
		BalanceAfter: newBalance,
		Description:  "חיוב עבור לכידת משלוח",
	}
	entry, err = s.store.AppendCourierLedger(ctx, tx, entry)
	if isUniqueViolation(err) {
		// The (courier_id, delivery_id, entry_type) unique constraint fired:
		// someone already charged this delivery to this courier. The whole
		// transaction rolls back; the caller must not commit.
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeDuplicateCharge, "חיוב כפול נמנע", err)
	}
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ברישום התנועה", err)
	}
	return w, entry, nil
}

// CreditForDelivery adds amount to a courier wallet and appends the matching
// ledger entry, locked within tx. amount is positive for a refund, bonus or
// adjustment and negative for a dispatcher manual charge.
func (s *Service) CreditForDelivery(ctx context.Context, tx *sql.Tx, courierID int64, deliveryID *int64, amount money.Money, entryType wallet.EntryType, description string) (wallet.CourierWallet, wallet.WalletLedger, error) {
	w, err := s.getOrCreateInTx(ctx, tx, courierID)
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, err
	}
	w, err = s.store.LockCourierWallet(ctx, tx, courierID)
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeWalletNotFound, "הארנק לא נמצא", err)
	}
	w.Balance = w.Balance.Add(amount)
	if err := s.store.UpdateCourierWalletInTx(ctx, tx, w); err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון הארנק", err)
	}
	entry := wallet.WalletLedger{
		CourierID:    courierID,
		DeliveryID:   deliveryID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: w.Balance,
		Description:  description,
	}
	entry, err = s.store.AppendCourierLedger(ctx, tx, entry)
	if isUniqueViolation(err) {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeDuplicateCharge, "חיוב כפול נמנע", err)
	}
	if err != nil {
		return wallet.CourierWallet{}, wallet.WalletLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ברישום התנועה", err)
	}
	return w, entry, nil
}

// CreditStationCommission credits a station's wallet with fee*commission_rate
// and appends the matching StationLedger row, mirroring the courier-side
// uniqueness discipline (spec.md §4.2 step 9).
func (s *Service) CreditStationCommission(ctx context.Context, tx *sql.Tx, stationID, deliveryID int64, fee money.Money, defaultCommissionRate float64) (wallet.StationWallet, wallet.StationLedger, error) {
	w, err := s.store.GetOrCreateStationWallet(ctx, tx, stationID, defaultCommissionRate)
	if err != nil && !isUniqueViolation(err) {
		return wallet.StationWallet{}, wallet.StationLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת ארנק התחנה", err)
	}
	w, err = s.store.LockStationWallet(ctx, tx, stationID)
	if err != nil {
		return wallet.StationWallet{}, wallet.StationLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת ארנק התחנה", err)
	}

	commission := fee.MulRate(w.CommissionRate)
	w.Balance = w.Balance.Add(commission)
	if err := s.store.UpdateStationWalletInTx(ctx, tx, w); err != nil {
		return wallet.StationWallet{}, wallet.StationLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון ארנק התחנה", err)
	}

	entry := wallet.StationLedger{
		StationID:    stationID,
		DeliveryID:   &deliveryID,
		EntryType:    wallet.EntryCommissionCredit,
		Amount:       commission,
		BalanceAfter: w.Balance,
		Description:  "עמלה עבור משלוח",
	}
	entry, err = s.store.AppendStationLedger(ctx, tx, entry)
	if isUniqueViolation(err) {
		return wallet.StationWallet{}, wallet.StationLedger{}, apperr.Wrap(apperr.CodeDuplicateCharge, "זיכוי כפול נמנע", err)
	}
	if err != nil {
		return wallet.StationWallet{}, wallet.StationLedger{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ברישום זיכוי התחנה", err)
	}
	return w, entry, nil
}

// History returns the courier's most recent ledger entries, descending.
func (s *Service) History(ctx context.Context, courierID int64, limit int) ([]wallet.WalletLedger, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	entries, err := s.store.ListCourierLedger(ctx, courierID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת ההיסטוריה", err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
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
