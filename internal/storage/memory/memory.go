// Package memory implements internal/storage's repository interfaces
// in-process for tests, following the teacher's internal/app/storage
// Memory pattern: one struct, one mutex, one map per aggregate, and clone
// helpers so callers can never mutate state through a returned value.
//
// The real storage interfaces thread a *sql.Tx through locked mutations so
// internal/services can compose a delivery/wallet write atomically against
// PostgreSQL. Memory has no database to hand back a transaction for, so
// BeginTx returns a nil *sql.Tx and every method ignores the tx parameter;
// mu only guarantees each individual call is atomic, not a whole composite
// capture sequence. This is sufficient for this module's single-goroutine
// test suites (sequential capture retries observe DELIVERY_NOT_AVAILABLE
// correctly) but Memory is not a substitute for PostgreSQL's row locks when
// exercising true concurrent-capture races — that guarantee lives in
// storage/postgres's FOR UPDATE locking. Callers must not dereference the
// tx value themselves; they only ever pass it back into this package.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchcore/platform/internal/domain/audit"
	"github.com/dispatchcore/platform/internal/domain/auth"
	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/domain/wallet"
	"github.com/dispatchcore/platform/internal/domain/webhook"
	"github.com/dispatchcore/platform/internal/storage"
)

// Memory is a thread-safe in-memory implementation of every
// internal/storage interface.
type Memory struct {
	mu sync.Mutex

	nextUserID      int64
	nextDeliveryID  int64
	nextLedgerID    int64
	nextStationLogID int64
	nextChargeID    int64
	nextOutboxID    int64
	nextAuditID     int64
	nextRefreshTokenID int64

	users         map[int64]user.User
	deliveries    map[int64]delivery.Delivery
	courierWallets map[int64]wallet.CourierWallet
	courierLedger  []wallet.WalletLedger
	stationWallets map[int64]wallet.StationWallet
	stationLedger  []wallet.StationLedger
	stations      map[int64]station.Station
	owners        map[int64]map[int64]bool
	dispatchers   map[int64]map[int64]bool
	blacklist     map[int64]map[int64]station.Blacklist
	manualCharges []station.ManualCharge
	sessions      map[string]conversation.Session
	outboxMsgs    map[int64]outbox.Message
	webhookEvents map[string]webhook.Event
	auditLogs     []audit.Log
	refreshTokens map[string]auth.RefreshToken // keyed by token hash
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		nextUserID:     1,
		nextDeliveryID: 1,
		nextLedgerID:   1,
		nextChargeID:   1,
		nextOutboxID:   1,
		nextAuditID:    1,
		nextRefreshTokenID: 1,
		users:          make(map[int64]user.User),
		deliveries:     make(map[int64]delivery.Delivery),
		courierWallets: make(map[int64]wallet.CourierWallet),
		stationWallets: make(map[int64]wallet.StationWallet),
		stations:       make(map[int64]station.Station),
		owners:         make(map[int64]map[int64]bool),
		dispatchers:    make(map[int64]map[int64]bool),
		blacklist:      make(map[int64]map[int64]station.Blacklist),
		sessions:       make(map[string]conversation.Session),
		outboxMsgs:     make(map[int64]outbox.Message),
		webhookEvents:  make(map[string]webhook.Event),
		refreshTokens:  make(map[string]auth.RefreshToken),
	}
}

// BeginTx returns a nil transaction handle; Memory serializes through mu
// instead of PostgreSQL row locks.
func (m *Memory) BeginTx(_ context.Context) (*sql.Tx, error) {
	return nil, nil
}

// Users -----------------------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.ID = m.nextUserID
	m.nextUserID++
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UpdateUser(_ context.Context, u user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return storage.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUserByID(_ context.Context, id int64) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByPhone(_ context.Context, phone string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (m *Memory) GetUserByChatID(_ context.Context, platform user.Platform, chatID int64) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Platform == platform && u.ChatID == chatID {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (m *Memory) ListCouriersByStation(_ context.Context, stationID int64) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatcherIDs := m.dispatchers[stationID]
	var out []user.User
	for uid := range dispatcherIDs {
		u, ok := m.users[uid]
		if ok && u.Role == user.RoleCourier {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListActiveApprovedCouriers(_ context.Context) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []user.User
	for _, u := range m.users {
		if u.IsCourierUsable() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Deliveries --------------------------------------------------------------

func (m *Memory) CreateDelivery(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createDeliveryLocked(d)
}

// CreateDeliveryInTx is the transactional counterpart of CreateDelivery;
// Memory has no real transaction object (see BeginTx), so it locks the same
// way CreateDelivery does.
func (m *Memory) CreateDeliveryInTx(_ context.Context, _ *sql.Tx, d delivery.Delivery) (delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createDeliveryLocked(d)
}

func (m *Memory) createDeliveryLocked(d delivery.Delivery) (delivery.Delivery, error) {
	d.ID = m.nextDeliveryID
	m.nextDeliveryID++
	d.CreatedAt = time.Now().UTC()
	m.deliveries[d.ID] = d
	return d, nil
}

func (m *Memory) GetDeliveryByID(_ context.Context, id int64) (delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return delivery.Delivery{}, storage.ErrNotFound
	}
	return d, nil
}

func (m *Memory) GetDeliveryByToken(_ context.Context, token string) (delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.deliveries {
		if d.Token == token {
			return d, nil
		}
	}
	return delivery.Delivery{}, storage.ErrNotFound
}

func (m *Memory) LockDeliveryForUpdate(_ context.Context, _ *sql.Tx, id int64) (delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return delivery.Delivery{}, storage.ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpdateDeliveryInTx(_ context.Context, _ *sql.Tx, d delivery.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deliveries[d.ID]; !ok {
		return storage.ErrNotFound
	}
	m.deliveries[d.ID] = d
	return nil
}

func (m *Memory) ListOpenDeliveries(_ context.Context, stationID *int64) ([]delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []delivery.Delivery
	for _, d := range m.deliveries {
		if d.Status != delivery.StatusOpen && d.Status != delivery.StatusPendingApproval {
			continue
		}
		if stationID != nil && (d.StationID == nil || *d.StationID != *stationID) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListDeliveriesByCourier(_ context.Context, courierID int64, statuses []delivery.Status) ([]delivery.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := make(map[delivery.Status]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []delivery.Delivery
	for _, d := range m.deliveries {
		if d.CourierID == nil || *d.CourierID != courierID {
			continue
		}
		if len(allowed) > 0 && !allowed[d.Status] {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Wallets -----------------------------------------------------------------

func (m *Memory) GetOrCreateCourierWallet(_ context.Context, _ *sql.Tx, courierID int64) (wallet.CourierWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.courierWallets[courierID]; ok {
		return w, nil
	}
	w := wallet.CourierWallet{
		CourierID:   courierID,
		Balance:     money.Zero,
		CreditLimit: wallet.DefaultCreditLimit,
		UpdatedAt:   time.Now().UTC(),
	}
	m.courierWallets[courierID] = w
	return w, nil
}

func (m *Memory) LockCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.courierWallets[courierID]
	if !ok {
		return wallet.CourierWallet{}, storage.ErrNotFound
	}
	return w, nil
}

func (m *Memory) UpdateCourierWalletInTx(_ context.Context, _ *sql.Tx, w wallet.CourierWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.UpdatedAt = time.Now().UTC()
	m.courierWallets[w.CourierID] = w
	return nil
}

func (m *Memory) AppendCourierLedger(_ context.Context, _ *sql.Tx, entry wallet.WalletLedger) (wallet.WalletLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextLedgerID
	m.nextLedgerID++
	entry.CreatedAt = time.Now().UTC()
	m.courierLedger = append(m.courierLedger, entry)
	return entry, nil
}

func (m *Memory) ListCourierLedger(_ context.Context, courierID int64, limit int) ([]wallet.WalletLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []wallet.WalletLedger
	for i := len(m.courierLedger) - 1; i >= 0; i-- {
		e := m.courierLedger[i]
		if e.CourierID != courierID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) HasCourierLedgerEntry(_ context.Context, _ *sql.Tx, courierID int64, deliveryID int64, entryType wallet.EntryType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.courierLedger {
		if e.CourierID == courierID && e.DeliveryID != nil && *e.DeliveryID == deliveryID && e.EntryType == entryType {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) GetOrCreateStationWallet(_ context.Context, _ *sql.Tx, stationID int64, commissionRate float64) (wallet.StationWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.stationWallets[stationID]; ok {
		return w, nil
	}
	w := wallet.StationWallet{
		StationID:      stationID,
		Balance:        money.Zero,
		CommissionRate: commissionRate,
		UpdatedAt:      time.Now().UTC(),
	}
	m.stationWallets[stationID] = w
	return w, nil
}

func (m *Memory) LockStationWallet(_ context.Context, _ *sql.Tx, stationID int64) (wallet.StationWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.stationWallets[stationID]
	if !ok {
		return wallet.StationWallet{}, storage.ErrNotFound
	}
	return w, nil
}

func (m *Memory) UpdateStationWalletInTx(_ context.Context, _ *sql.Tx, w wallet.StationWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.UpdatedAt = time.Now().UTC()
	m.stationWallets[w.StationID] = w
	return nil
}

func (m *Memory) AppendStationLedger(_ context.Context, _ *sql.Tx, entry wallet.StationLedger) (wallet.StationLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextLedgerID
	m.nextLedgerID++
	entry.CreatedAt = time.Now().UTC()
	m.stationLedger = append(m.stationLedger, entry)
	return entry, nil
}

// Stations ------------------------------------------------------------------

func (m *Memory) CreateStation(_ context.Context, st station.Station) (station.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st.ID = int64(len(m.stations)) + 1
	st.CreatedAt = time.Now().UTC()
	m.stations[st.ID] = st
	return st, nil
}

func (m *Memory) GetStationByID(_ context.Context, id int64) (station.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stations[id]
	if !ok {
		return station.Station{}, storage.ErrNotFound
	}
	return st, nil
}

func (m *Memory) UpdateGroupChatID(_ context.Context, stationID, groupChatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stations[stationID]
	if !ok {
		return storage.ErrNotFound
	}
	st.GroupChatID = groupChatID
	m.stations[stationID] = st
	return nil
}

func (m *Memory) StationForUser(_ context.Context, userID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for stationID, users := range m.owners {
		if users[userID] {
			return stationID, true, nil
		}
	}
	for stationID, users := range m.dispatchers {
		if users[userID] {
			return stationID, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) AddOwner(_ context.Context, o station.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[o.StationID] == nil {
		m.owners[o.StationID] = make(map[int64]bool)
	}
	m.owners[o.StationID][o.UserID] = true
	return nil
}

func (m *Memory) AddDispatcher(_ context.Context, d station.Dispatcher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchers[d.StationID] == nil {
		m.dispatchers[d.StationID] = make(map[int64]bool)
	}
	m.dispatchers[d.StationID][d.UserID] = true
	return nil
}

func (m *Memory) IsOwner(_ context.Context, stationID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.owners[stationID][userID], nil
}

func (m *Memory) IsDispatcher(_ context.Context, stationID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dispatchers[stationID][userID], nil
}

func (m *Memory) Blacklist(_ context.Context, b station.Blacklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blacklist[b.StationID] == nil {
		m.blacklist[b.StationID] = make(map[int64]station.Blacklist)
	}
	b.AddedAt = time.Now().UTC()
	m.blacklist[b.StationID][b.CourierID] = b
	return nil
}

func (m *Memory) IsBlacklisted(_ context.Context, stationID, courierID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blacklist[stationID][courierID]
	return ok, nil
}

func (m *Memory) RecordManualCharge(_ context.Context, c station.ManualCharge) (station.ManualCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = m.nextChargeID
	m.nextChargeID++
	c.CreatedAt = time.Now().UTC()
	m.manualCharges = append(m.manualCharges, c)
	return c, nil
}

// Conversations ---------------------------------------------------------

func sessionKey(userID int64, platform user.Platform) string {
	return fmt.Sprintf("%d|%s", userID, platform)
}

func (m *Memory) GetConversationSession(_ context.Context, userID int64, platform user.Platform) (conversation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionKey(userID, platform)]
	if !ok {
		return conversation.Session{}, storage.ErrNotFound
	}
	return sess, nil
}

func (m *Memory) UpsertConversationSession(_ context.Context, sess conversation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	sess.UpdatedAt = now
	sess.LastActivityAt = now
	m.sessions[sessionKey(sess.UserID, sess.Platform)] = sess
	return nil
}

// Outbox ------------------------------------------------------------------

func (m *Memory) EnqueueInTx(_ context.Context, _ *sql.Tx, msg outbox.Message) (outbox.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg.ID = m.nextOutboxID
	m.nextOutboxID++
	msg.Status = outbox.StatusPending
	if msg.MaxRetries == 0 {
		msg.MaxRetries = outbox.DefaultMaxRetries
	}
	msg.CreatedAt = time.Now().UTC()
	m.outboxMsgs[msg.ID] = msg
	return msg, nil
}

func (m *Memory) LeaseNext(_ context.Context, n int) ([]outbox.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var ids []int64
	for id, msg := range m.outboxMsgs {
		if msg.Status != outbox.StatusPending {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > n {
		ids = ids[:n]
	}

	var out []outbox.Message
	for _, id := range ids {
		msg := m.outboxMsgs[id]
		msg.Status = outbox.StatusProcessing
		m.outboxMsgs[id] = msg
		out = append(out, msg)
	}
	return out, nil
}

func (m *Memory) MarkSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outboxMsgs[id]
	if !ok {
		return storage.ErrNotFound
	}
	msg.Status = outbox.StatusSent
	now := time.Now().UTC()
	msg.ProcessedAt = &now
	m.outboxMsgs[id] = msg
	return nil
}

func (m *Memory) MarkRetry(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outboxMsgs[id]
	if !ok {
		return storage.ErrNotFound
	}
	msg.Status = outbox.StatusPending
	msg.RetryCount++
	msg.LastError = errMsg
	nextRetryAt = nextRetryAt.UTC()
	msg.NextRetryAt = &nextRetryAt
	m.outboxMsgs[id] = msg
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outboxMsgs[id]
	if !ok {
		return storage.ErrNotFound
	}
	msg.Status = outbox.StatusFailed
	msg.RetryCount++
	msg.LastError = errMsg
	m.outboxMsgs[id] = msg
	return nil
}

func (m *Memory) MarkPendingForRetry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.outboxMsgs[id]
	if !ok || msg.Status != outbox.StatusFailed {
		return storage.ErrNotFound
	}
	msg.Status = outbox.StatusPending
	now := time.Now().UTC()
	msg.NextRetryAt = &now
	m.outboxMsgs[id] = msg
	return nil
}

func (m *Memory) Summary(_ context.Context) (map[outbox.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[outbox.Status]int{}
	for _, msg := range m.outboxMsgs {
		out[msg.Status]++
	}
	return out, nil
}

func (m *Memory) ListByStatus(_ context.Context, status outbox.Status, limit int) ([]outbox.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, msg := range m.outboxMsgs {
		if msg.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return m.outboxMsgs[ids[i]].CreatedAt.After(m.outboxMsgs[ids[j]].CreatedAt) })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]outbox.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.outboxMsgs[id])
	}
	return out, nil
}

// Webhooks ------------------------------------------------------------------

func (m *Memory) TryBeginProcessing(_ context.Context, platformMessageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ev, ok := m.webhookEvents[platformMessageID]
	if !ok {
		m.webhookEvents[platformMessageID] = webhook.Event{
			PlatformMessageID: platformMessageID,
			Status:            webhook.StatusProcessing,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return true, nil
	}

	if ev.Status == webhook.StatusProcessed {
		return false, nil
	}
	if ev.Status == webhook.StatusProcessing && !ev.IsStale(now) {
		return false, nil
	}

	ev.Status = webhook.StatusProcessing
	ev.UpdatedAt = now
	m.webhookEvents[platformMessageID] = ev
	return true, nil
}

func (m *Memory) MarkWebhookProcessed(_ context.Context, platformMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.webhookEvents[platformMessageID]
	if !ok {
		return storage.ErrNotFound
	}
	ev.Status = webhook.StatusProcessed
	ev.UpdatedAt = time.Now().UTC()
	m.webhookEvents[platformMessageID] = ev
	return nil
}

func (m *Memory) MarkWebhookFailed(_ context.Context, platformMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.webhookEvents[platformMessageID]
	if !ok {
		return storage.ErrNotFound
	}
	ev.Status = webhook.StatusFailed
	ev.UpdatedAt = time.Now().UTC()
	m.webhookEvents[platformMessageID] = ev
	return nil
}

// Audit -----------------------------------------------------------------

func (m *Memory) Record(_ context.Context, l audit.Log) (audit.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.ID = m.nextAuditID
	m.nextAuditID++
	l.CreatedAt = time.Now().UTC()
	m.auditLogs = append(m.auditLogs, l)
	return l, nil
}

func (m *Memory) ListAuditByStation(_ context.Context, stationID int64, limit int) ([]audit.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []audit.Log
	for i := len(m.auditLogs) - 1; i >= 0; i-- {
		l := m.auditLogs[i]
		if l.StationID != stationID {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Auth --------------------------------------------------------------------

func (m *Memory) CreateRefreshToken(_ context.Context, t auth.RefreshToken) (auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.ID = m.nextRefreshTokenID
	m.nextRefreshTokenID++
	t.IssuedAt = time.Now().UTC()
	m.refreshTokens[t.TokenHash] = t
	return t, nil
}

func (m *Memory) GetRefreshTokenByHash(_ context.Context, tokenHash string) (auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.refreshTokens[tokenHash]
	if !ok {
		return auth.RefreshToken{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *Memory) RotateRefreshToken(_ context.Context, oldTokenHash string, next auth.RefreshToken) (auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.refreshTokens[oldTokenHash]
	if !ok || old.RevokedAt != nil {
		return auth.RefreshToken{}, storage.ErrNotFound
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	old.ReplacedBy = next.TokenHash
	m.refreshTokens[oldTokenHash] = old

	next.ID = m.nextRefreshTokenID
	m.nextRefreshTokenID++
	next.IssuedAt = now
	m.refreshTokens[next.TokenHash] = next
	return next, nil
}

func (m *Memory) RevokeFamily(_ context.Context, familyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for hash, t := range m.refreshTokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
			m.refreshTokens[hash] = t
		}
	}
	return nil
}

var (
	_ storage.UserStore         = (*Memory)(nil)
	_ storage.DeliveryStore     = (*Memory)(nil)
	_ storage.WalletStore       = (*Memory)(nil)
	_ storage.StationStore      = (*Memory)(nil)
	_ storage.ConversationStore = (*Memory)(nil)
	_ storage.OutboxStore       = (*Memory)(nil)
	_ storage.WebhookStore      = (*Memory)(nil)
	_ storage.AuditStore        = (*Memory)(nil)
	_ storage.AuthStore         = (*Memory)(nil)
)
