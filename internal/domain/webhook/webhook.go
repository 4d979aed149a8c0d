// Package webhook defines the WebhookEvent idempotency ledger entity.
package webhook

import "time"

// Status is the lifecycle of one inbound message's processing record.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// StaleAfter is how long a "processing" record may be held before a retrying
// client is allowed to reclaim it (spec.md §4.5).
const StaleAfter = 120 * time.Second

// Event is one row in the idempotency ledger, keyed by platform message id.
type Event struct {
	ID               int64
	PlatformMessageID string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsStale reports whether a "processing" event has been held past StaleAfter.
func (e *Event) IsStale(now time.Time) bool {
	return e.Status == StatusProcessing && now.Sub(e.UpdatedAt) > StaleAfter
}
