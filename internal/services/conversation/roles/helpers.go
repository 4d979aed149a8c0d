package roles

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/wallet"
)

// walletEntryManualCharge is the ledger entry type manual dispatcher/station
// charges append, distinct from the capture-flow debit entry type.
const walletEntryManualCharge = wallet.EntryManualCharge

// parseCourierAmount splits a "<courier_id> <amount>" manual-charge input.
func parseCourierAmount(text string) (courierID int64, amount money.Money, ok bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	amt, err := money.Parse(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return id, amt, true
}

func strconvFormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func txRollback(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

func txCommit(tx *sql.Tx) error {
	if tx == nil {
		return nil
	}
	return tx.Commit()
}
