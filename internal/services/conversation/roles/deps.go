// Package roles implements the per-role conversation handlers of spec.md
// §4.4: sender registration and shipment creation, courier onboarding and
// menu, dispatcher wizards, and station-owner governance. Each handler is
// pure with respect to the conversation store — it only reads/writes
// through the Deps services — and returns (reply, next state, context
// patch, error) per the Handler contract in the parent conversation
// package.
package roles

import (
	"context"
	"database/sql"

	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/services/conversation/callbacktoken"
	"github.com/dispatchcore/platform/internal/services/shipment"
	walletsvc "github.com/dispatchcore/platform/internal/services/wallet"
	"github.com/dispatchcore/platform/internal/storage"
)

// Deps bundles the storage repositories and domain services every role
// handler may need.
type Deps struct {
	Users       storage.UserStore
	Stations    storage.StationStore
	Outbox      storage.OutboxStore
	Audit       storage.AuditStore
	WalletStore storage.WalletStore
	Shipments   *shipment.Service
	Wallets     *walletsvc.Service
	Callbacks   *callbacktoken.Store
	Log         *logging.Logger
}

// WalletTx opens a transaction against the wallet store, for handlers that
// compose a manual station-side mutation (a ManualCharge row) with a wallet
// ledger credit in the same commit.
func (d *Deps) WalletTx(ctx context.Context) (*sql.Tx, error) {
	return d.WalletStore.BeginTx(ctx)
}
