// Package outbox defines the durable outbound-message queue row. Producers
// write these rows in the same transaction as the business mutation that
// caused them; internal/services/outbox drains them asynchronously.
package outbox

import (
	"time"

	"github.com/dispatchcore/platform/internal/domain/user"
)

// Status is the lifecycle of one queued message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// BroadcastCouriers is the sentinel recipient selector meaning "fan out to
// every active, approved courier, excluding blacklisted/placeholder ids."
const BroadcastCouriers = "BROADCAST_COURIERS"

// MessageType distinguishes payload shapes for the adapters.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageKeyboard  MessageType = "keyboard"
	MessageMedia     MessageType = "media"
)

// Keyboard is a 2D grid of button labels mapped to callback payloads.
type Keyboard struct {
	Rows [][]Button
}

// Button is one keyboard button.
type Button struct {
	Label    string
	Callback string
}

// Media describes an optional photo/document attachment.
type Media struct {
	URL      string
	Kind     string // "photo" | "document"
	MimeType string
	Caption  string
}

// Content is the structured outbound payload.
type Content struct {
	Text     string
	Keyboard *Keyboard
	Media    *Media
}

// Message is one durable outbox row.
type Message struct {
	ID          int64
	Platform    user.Platform
	RecipientID string // numeric user/chat id, or BroadcastCouriers
	// StationID scopes a BroadcastCouriers message to the shipment's
	// station, so the worker can exclude that station's blacklisted
	// couriers from the fan-out (spec.md §4.7 step 3, §8 property 8). Nil
	// for station-less deliveries and for non-broadcast messages.
	StationID     *int64
	MessageType   MessageType
	Content       Content
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	NextRetryAt   *time.Time
	LastError     string
	CorrelationID string
}

// DefaultMaxRetries matches spec.md §3's default range.
const DefaultMaxRetries = 5
