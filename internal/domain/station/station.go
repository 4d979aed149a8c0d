// Package station defines station governance entities: the station itself,
// its dispatchers, owners, blacklist, and manual charges.
package station

import (
	"time"

	"github.com/dispatchcore/platform/internal/domain/money"
)

// Station is a dispatch hub operated by one or more station owners.
type Station struct {
	ID        int64
	Name      string
	GroupChatID int64
	CreatedAt time.Time
}

// Dispatcher links an approved courier to a station with managerial rights.
type Dispatcher struct {
	StationID int64
	UserID    int64
	AddedAt   time.Time
}

// Owner links a user to a station as its operator.
type Owner struct {
	StationID int64
	UserID    int64
	AddedAt   time.Time
}

// Blacklist entry bars a courier from capturing a station's shipments.
type Blacklist struct {
	StationID int64
	CourierID int64
	Reason    string
	AddedAt   time.Time
}

// ManualCharge is a dispatcher-entered charge against a courier, outside the
// normal capture flow (e.g. a cash-collection adjustment).
type ManualCharge struct {
	ID          int64
	StationID   int64
	CourierID   int64
	CreatedBy   int64
	Amount      money.Money // signed
	Description string
	CreatedAt   time.Time
}
