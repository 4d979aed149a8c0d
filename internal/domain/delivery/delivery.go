// Package delivery defines the Delivery (shipment) entity and its state
// machine. See internal/services/shipment for the transactional operations
// that mutate it.
package delivery

import (
	"time"

	"github.com/dispatchcore/platform/internal/domain/money"
)

// Status is a Delivery's lifecycle state.
type Status string

const (
	StatusOpen             Status = "OPEN"
	StatusPendingApproval  Status = "PENDING_APPROVAL"
	StatusCaptured         Status = "CAPTURED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// allowedTransitions enumerates every (old, new) pair permitted by
// spec.md §4.2. Any pair not present here is rejected.
var allowedTransitions = map[Status]map[Status]bool{
	StatusOpen: {
		StatusPendingApproval: true,
		StatusCaptured:        true,
		StatusCancelled:       true,
	},
	StatusPendingApproval: {
		StatusCaptured:  true,
		StatusCancelled: true,
	},
	StatusCaptured: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusDelivered: true,
	},
}

// CanTransition reports whether (from, to) is an allowed edge.
func CanTransition(from, to Status) bool {
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Address captures one side (pickup or dropoff) of a shipment.
type Address struct {
	Text         string
	Lat          float64
	Lng          float64
	ContactName  string
	ContactPhone string
}

// Delivery is a shipment row.
type Delivery struct {
	ID                  int64
	Token               string // URL-safe, 16 cryptographically random bytes
	SenderID            int64
	CourierID           *int64
	StationID           *int64
	RequestingCourierID *int64

	Pickup  Address
	Dropoff Address

	Status Status
	Fee    money.Money
	Notes  string

	CreatedAt   time.Time
	CapturedAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// MaxFee is the upper bound on Delivery.Fee, checked by
// internal/services/shipment when a delivery is created (spec.md §3); the
// generic validation.AmountValidate bound is the larger validation.MaxAmount.
const MaxFee = money.Money(10_000_00)
