// Package storage declares the repository interfaces the services layer
// depends on. internal/storage/postgres implements them against PostgreSQL
// with row-level locking; internal/storage/memory implements them in-process
// for tests.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/dispatchcore/platform/internal/domain/audit"
	"github.com/dispatchcore/platform/internal/domain/auth"
	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/domain/wallet"
)

// ErrNotFound is returned by a single-row lookup that matched nothing.
// Postgres implementations translate sql.ErrNoRows to this; memory
// implementations return it directly.
var ErrNotFound = sql.ErrNoRows

// UserStore persists platform users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) error
	GetUserByID(ctx context.Context, id int64) (user.User, error)
	GetUserByPhone(ctx context.Context, phone string) (user.User, error)
	GetUserByChatID(ctx context.Context, platform user.Platform, chatID int64) (user.User, error)
	ListCouriersByStation(ctx context.Context, stationID int64) ([]user.User, error)
	// ListActiveApprovedCouriers returns every courier eligible to receive a
	// broadcast new-shipment notice: active and approved.
	ListActiveApprovedCouriers(ctx context.Context) ([]user.User, error)
}

// DeliveryStore persists shipments and performs the row-locked mutations
// the shipment workflow needs (capture/approve/deliver/cancel).
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error)
	// CreateDeliveryInTx is CreateDelivery composed into a caller-owned
	// transaction, so the INSERT and a same-transaction outbox enqueue
	// commit or roll back together (spec.md §4.7).
	CreateDeliveryInTx(ctx context.Context, tx *sql.Tx, d delivery.Delivery) (delivery.Delivery, error)
	GetDeliveryByID(ctx context.Context, id int64) (delivery.Delivery, error)
	GetDeliveryByToken(ctx context.Context, token string) (delivery.Delivery, error)
	// LockDeliveryForUpdate loads a delivery row with FOR UPDATE inside tx,
	// for callers composing a larger transaction (wallet debit + status
	// change).
	LockDeliveryForUpdate(ctx context.Context, tx *sql.Tx, id int64) (delivery.Delivery, error)
	UpdateDeliveryInTx(ctx context.Context, tx *sql.Tx, d delivery.Delivery) error
	ListOpenDeliveries(ctx context.Context, stationID *int64) ([]delivery.Delivery, error)
	ListDeliveriesByCourier(ctx context.Context, courierID int64, statuses []delivery.Status) ([]delivery.Delivery, error)

	// BeginTx and the *sql.Tx methods above let internal/services/shipment
	// compose the delivery mutation and the wallet ledger write in one
	// transaction, matching spec.md §4.2's atomicity requirement.
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// WalletStore persists courier/station wallets and their append-only
// ledgers, with row locking for atomic balance mutation.
type WalletStore interface {
	GetOrCreateCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error)
	LockCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error)
	UpdateCourierWalletInTx(ctx context.Context, tx *sql.Tx, w wallet.CourierWallet) error
	AppendCourierLedger(ctx context.Context, tx *sql.Tx, entry wallet.WalletLedger) (wallet.WalletLedger, error)
	ListCourierLedger(ctx context.Context, courierID int64, limit int) ([]wallet.WalletLedger, error)
	HasCourierLedgerEntry(ctx context.Context, tx *sql.Tx, courierID int64, deliveryID int64, entryType wallet.EntryType) (bool, error)

	GetOrCreateStationWallet(ctx context.Context, tx *sql.Tx, stationID int64, commissionRate float64) (wallet.StationWallet, error)
	LockStationWallet(ctx context.Context, tx *sql.Tx, stationID int64) (wallet.StationWallet, error)
	UpdateStationWalletInTx(ctx context.Context, tx *sql.Tx, w wallet.StationWallet) error
	AppendStationLedger(ctx context.Context, tx *sql.Tx, entry wallet.StationLedger) (wallet.StationLedger, error)

	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// StationStore persists stations, their governance relationships, and
// manual charges.
type StationStore interface {
	CreateStation(ctx context.Context, s station.Station) (station.Station, error)
	GetStationByID(ctx context.Context, id int64) (station.Station, error)
	UpdateGroupChatID(ctx context.Context, stationID, groupChatID int64) error
	AddOwner(ctx context.Context, o station.Owner) error
	AddDispatcher(ctx context.Context, d station.Dispatcher) error
	// StationForUser resolves the station a station-owner/dispatcher user
	// belongs to, for the conversation engine to populate the session's
	// "station_id" context on role-menu entry. ok is false if the user owns
	// or dispatches for no station.
	StationForUser(ctx context.Context, userID int64) (stationID int64, ok bool, err error)
	IsOwner(ctx context.Context, stationID, userID int64) (bool, error)
	IsDispatcher(ctx context.Context, stationID, userID int64) (bool, error)
	Blacklist(ctx context.Context, b station.Blacklist) error
	IsBlacklisted(ctx context.Context, stationID, courierID int64) (bool, error)
	RecordManualCharge(ctx context.Context, c station.ManualCharge) (station.ManualCharge, error)
}

// ConversationStore persists per-(user,platform) session state.
type ConversationStore interface {
	GetConversationSession(ctx context.Context, userID int64, platform user.Platform) (conversation.Session, error)
	UpsertConversationSession(ctx context.Context, s conversation.Session) error
}

// OutboxStore persists the transactional outbox queue.
type OutboxStore interface {
	EnqueueInTx(ctx context.Context, tx *sql.Tx, m outbox.Message) (outbox.Message, error)
	// LeaseNext locks and returns up to n due pending messages with
	// FOR UPDATE SKIP LOCKED, marking them StatusProcessing.
	LeaseNext(ctx context.Context, n int) ([]outbox.Message, error)
	MarkSent(ctx context.Context, id int64) error
	// MarkRetry reschedules a transient failure back to pending with the
	// given backoff deadline.
	MarkRetry(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
	// MarkFailed terminally fails a message (permanent error, or
	// retry_count reaching max_retries).
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// MarkPendingForRetry is the admin debug surface's dead-letter retry:
	// failed -> pending, only when currently failed.
	MarkPendingForRetry(ctx context.Context, id int64) error
	// Summary counts messages by status, for the admin debug surface.
	Summary(ctx context.Context) (map[outbox.Status]int, error)
	// ListByStatus returns the most recent messages in status.
	ListByStatus(ctx context.Context, status outbox.Status, limit int) ([]outbox.Message, error)
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// WebhookStore persists the inbound idempotency ledger.
type WebhookStore interface {
	// TryBeginProcessing inserts a "processing" row for platformMessageID, or
	// reclaims a stale "processing" row. Returns ok=false if the event is
	// already processed or is being processed by someone else.
	TryBeginProcessing(ctx context.Context, platformMessageID string) (ok bool, err error)
	MarkWebhookProcessed(ctx context.Context, platformMessageID string) error
	MarkWebhookFailed(ctx context.Context, platformMessageID string) error
}

// AuthStore persists the refresh-token rotation ledger.
type AuthStore interface {
	// CreateRefreshToken inserts a new token row, issued as the head of
	// familyID (a fresh random string on first login, carried forward on
	// every rotation within the same session lineage).
	CreateRefreshToken(ctx context.Context, t auth.RefreshToken) (auth.RefreshToken, error)
	// GetRefreshTokenByHash looks up a token by its hash for verification
	// at refresh time.
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (auth.RefreshToken, error)
	// RotateRefreshToken atomically revokes oldTokenHash (recording
	// newTokenHash as its replacement) and inserts the new token row, in one
	// transaction so a crash mid-rotation cannot leave two live tokens.
	RotateRefreshToken(ctx context.Context, oldTokenHash string, next auth.RefreshToken) (auth.RefreshToken, error)
	// RevokeFamily revokes every unrevoked token sharing familyID,
	// the reuse-detection response: if a rotated-away token is presented
	// again, the whole lineage is treated as compromised.
	RevokeFamily(ctx context.Context, familyID string) error
}

// AuditStore persists the station audit trail.
type AuditStore interface {
	Record(ctx context.Context, l audit.Log) (audit.Log, error)
	ListAuditByStation(ctx context.Context, stationID int64, limit int) ([]audit.Log, error)
}
