package validation

import "github.com/dispatchcore/platform/internal/domain/money"

// MaxAmount is the upper bound for a generic validated amount (spec.md §4.1;
// Delivery.Fee has its own, tighter MaxFee in internal/domain/delivery).
const MaxAmount = money.Money(100_000_00)

// AmountValidate reports whether amt is within [0, 100000] with at most 2
// decimal places. Money is always stored to exactly 2 decimal places, so the
// decimal-place constraint is automatically satisfied by the type; this
// function only checks the range.
func AmountValidate(amt money.Money) bool {
	return amt >= 0 && amt <= MaxAmount
}
