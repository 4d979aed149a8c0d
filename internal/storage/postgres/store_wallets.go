package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/wallet"
	"github.com/dispatchcore/platform/internal/storage"
)

func (s *Store) GetOrCreateCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error) {
	w, err := s.lockCourierWallet(ctx, tx, courierID, false)
	if errors.Is(err, storage.ErrNotFound) {
		_, insertErr := tx.ExecContext(ctx, `
			INSERT INTO courier_wallets (courier_id, balance_minor, credit_limit_minor, updated_at)
			VALUES ($1, 0, $2, now())
			ON CONFLICT (courier_id) DO NOTHING
		`, courierID, wallet.DefaultCreditLimit.Minor())
		if insertErr != nil {
			return wallet.CourierWallet{}, insertErr
		}
		return s.lockCourierWallet(ctx, tx, courierID, false)
	}
	return w, err
}

func (s *Store) LockCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64) (wallet.CourierWallet, error) {
	return s.lockCourierWallet(ctx, tx, courierID, true)
}

func (s *Store) lockCourierWallet(ctx context.Context, tx *sql.Tx, courierID int64, forUpdate bool) (wallet.CourierWallet, error) {
	query := `SELECT courier_id, balance_minor, credit_limit_minor, updated_at FROM courier_wallets WHERE courier_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		w                       wallet.CourierWallet
		balanceMinor, limitMinor int64
	)
	err := tx.QueryRowContext(ctx, query, courierID).Scan(&w.CourierID, &balanceMinor, &limitMinor, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.CourierWallet{}, storage.ErrNotFound
		}
		return wallet.CourierWallet{}, err
	}
	w.Balance = money.FromMinor(balanceMinor)
	w.CreditLimit = money.FromMinor(limitMinor)
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (s *Store) UpdateCourierWalletInTx(ctx context.Context, tx *sql.Tx, w wallet.CourierWallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE courier_wallets SET balance_minor = $2, credit_limit_minor = $3, updated_at = now()
		WHERE courier_id = $1
	`, w.CourierID, w.Balance.Minor(), w.CreditLimit.Minor())
	return err
}

func (s *Store) AppendCourierLedger(ctx context.Context, tx *sql.Tx, entry wallet.WalletLedger) (wallet.WalletLedger, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO courier_wallet_entries (courier_id, delivery_id, entry_type, amount_minor, balance_after_minor, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		RETURNING id, created_at
	`, entry.CourierID, toNullInt64(entry.DeliveryID), entry.EntryType, entry.Amount.Minor(), entry.BalanceAfter.Minor(), entry.Description).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return wallet.WalletLedger{}, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func (s *Store) ListCourierLedger(ctx context.Context, courierID int64, limit int) ([]wallet.WalletLedger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, courier_id, delivery_id, entry_type, amount_minor, balance_after_minor, description, created_at
		FROM courier_wallet_entries
		WHERE courier_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, courierID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wallet.WalletLedger
	for rows.Next() {
		var (
			e                        wallet.WalletLedger
			deliveryID               sql.NullInt64
			amountMinor, balanceMinor int64
		)
		if err := rows.Scan(&e.ID, &e.CourierID, &deliveryID, &e.EntryType, &amountMinor, &balanceMinor, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DeliveryID = fromNullInt64(deliveryID)
		e.Amount = money.FromMinor(amountMinor)
		e.BalanceAfter = money.FromMinor(balanceMinor)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) HasCourierLedgerEntry(ctx context.Context, tx *sql.Tx, courierID int64, deliveryID int64, entryType wallet.EntryType) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM courier_wallet_entries
			WHERE courier_id = $1 AND delivery_id = $2 AND entry_type = $3
		)
	`, courierID, deliveryID, entryType).Scan(&exists)
	return exists, err
}

func (s *Store) GetOrCreateStationWallet(ctx context.Context, tx *sql.Tx, stationID int64, commissionRate float64) (wallet.StationWallet, error) {
	w, err := s.lockStationWallet(ctx, tx, stationID, false)
	if errors.Is(err, storage.ErrNotFound) {
		_, insertErr := tx.ExecContext(ctx, `
			INSERT INTO station_wallets (station_id, balance_minor, commission_rate, updated_at)
			VALUES ($1, 0, $2, now())
			ON CONFLICT (station_id) DO NOTHING
		`, stationID, commissionRate)
		if insertErr != nil {
			return wallet.StationWallet{}, insertErr
		}
		return s.lockStationWallet(ctx, tx, stationID, false)
	}
	return w, err
}

func (s *Store) LockStationWallet(ctx context.Context, tx *sql.Tx, stationID int64) (wallet.StationWallet, error) {
	return s.lockStationWallet(ctx, tx, stationID, true)
}

func (s *Store) lockStationWallet(ctx context.Context, tx *sql.Tx, stationID int64, forUpdate bool) (wallet.StationWallet, error) {
	query := `SELECT station_id, balance_minor, commission_rate, updated_at FROM station_wallets WHERE station_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		w            wallet.StationWallet
		balanceMinor int64
	)
	err := tx.QueryRowContext(ctx, query, stationID).Scan(&w.StationID, &balanceMinor, &w.CommissionRate, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.StationWallet{}, storage.ErrNotFound
		}
		return wallet.StationWallet{}, err
	}
	w.Balance = money.FromMinor(balanceMinor)
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (s *Store) UpdateStationWalletInTx(ctx context.Context, tx *sql.Tx, w wallet.StationWallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE station_wallets SET balance_minor = $2, commission_rate = $3, updated_at = now()
		WHERE station_id = $1
	`, w.StationID, w.Balance.Minor(), w.CommissionRate)
	return err
}

func (s *Store) AppendStationLedger(ctx context.Context, tx *sql.Tx, entry wallet.StationLedger) (wallet.StationLedger, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO station_wallet_entries (station_id, delivery_id, entry_type, amount_minor, balance_after_minor, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		RETURNING id, created_at
	`, entry.StationID, toNullInt64(entry.DeliveryID), entry.EntryType, entry.Amount.Minor(), entry.BalanceAfter.Minor(), entry.Description).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return wallet.StationLedger{}, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}
