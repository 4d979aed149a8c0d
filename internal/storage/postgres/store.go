// Package postgres implements internal/storage's repository interfaces on
// PostgreSQL with raw database/sql + lib/pq, following the teacher's
// store.go pattern: one Store struct wrapping *sql.DB, one method per
// aggregate operation named for the aggregate it touches (CreateUser,
// CreateDelivery, ...) since Go does not allow two methods named Create on
// the same receiver, and scan helpers taking a rowScanner so *sql.Row and
// *sql.Rows share one decode path.
package postgres

import (
	"context"
	"database/sql"
)

// Store implements every internal/storage interface against one *sql.DB.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// BeginTx starts a transaction at the default isolation level. Used by
// callers composing a delivery/wallet/outbox mutation atomically.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting a single
// statement body serve a direct call and its in-transaction counterpart.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toNullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}
