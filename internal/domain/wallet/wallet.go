// Package wallet defines the courier and station wallet/ledger entities.
// Mutations live in internal/services/wallet, which is the only code
// permitted to write these rows (always inside a row-locked transaction).
package wallet

import (
	"time"

	"github.com/dispatchcore/platform/internal/domain/money"
)

// DefaultCreditLimit is applied when a courier wallet is created implicitly.
const DefaultCreditLimit = money.Money(-500_00)

// EntryType enumerates WalletLedger/StationLedger entry kinds.
type EntryType string

const (
	EntryDeliveryFeeDebit EntryType = "delivery_fee_debit"
	EntryPayment          EntryType = "payment"
	EntryBonus            EntryType = "bonus"
	EntryRefund           EntryType = "refund"
	EntryAdjustment       EntryType = "adjustment"
	EntryCommissionCredit EntryType = "commission_credit"
	EntryManualCharge     EntryType = "manual_charge"
)

// CourierWallet is one balance per courier. A negative balance is debt.
type CourierWallet struct {
	CourierID   int64
	Balance     money.Money
	CreditLimit money.Money // always <= 0
	UpdatedAt   time.Time
}

// CanDebit reports whether debiting amt would keep balance >= CreditLimit.
func (w *CourierWallet) CanDebit(amt money.Money) bool {
	return w.Balance.Sub(amt).LessThan(w.CreditLimit) == false
}

// WalletLedger is an append-only ledger row for a courier wallet.
// Unique on (CourierID, DeliveryID, EntryType) — the last-line defense
// against double-debit.
type WalletLedger struct {
	ID           int64
	CourierID    int64
	DeliveryID   *int64
	EntryType    EntryType
	Amount       money.Money // signed
	BalanceAfter money.Money
	Description  string
	CreatedAt    time.Time
}

// MinCommissionRate and MaxCommissionRate bound a station's commission_rate.
const (
	MinCommissionRate = 0.06
	MaxCommissionRate = 0.12
)

// StationWallet is one balance per station, accruing commission income.
type StationWallet struct {
	StationID      int64
	Balance        money.Money
	CommissionRate float64
	UpdatedAt      time.Time
}

// StationLedger is an append-only ledger row for a station wallet. Unique on
// (StationID, DeliveryID, EntryType).
type StationLedger struct {
	ID          int64
	StationID   int64
	DeliveryID  *int64
	EntryType   EntryType
	Amount      money.Money
	BalanceAfter money.Money
	Description string
	CreatedAt   time.Time
}
