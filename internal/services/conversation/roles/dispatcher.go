// dispatcher.go implements the DISPATCHER.* flow: add-shipment and
// manual-charge wizards plus the active/history views, reached from the
// courier menu by an approved courier holding a per-station dispatcher
// grant (spec.md §4.4's dispatcher summary, glossary's Dispatcher entry).
package roles

import (
	"context"
	"strconv"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/shipment"
	"github.com/dispatchcore/platform/internal/validation"
)

// DispatcherSteps maps each DISPATCHER.* state to its handler.
var DispatcherSteps = map[conversation.State]Step{
	conversation.DispatcherMenu:          DispatcherMenuStep,
	conversation.DispatcherAddFee:        DispatcherAddFeeStep,
	conversation.DispatcherAddConfirm:    DispatcherAddConfirmStep,
	conversation.DispatcherChargeAmount:  DispatcherChargeAmountStep,
	conversation.DispatcherChargeConfirm: DispatcherChargeConfirmStep,
}

const dispatcherMenuText = "בחר פעולה: הוספת משלוח, חיוב ידני, משלוחים פעילים, היסטוריה."

// DispatcherMenuStep starts one of the two wizards on the matching
// callback; any other input re-shows the menu.
func DispatcherMenuStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	switch in.Callback {
	case "add_shipment":
		return conversation.Reply{Text: "מחיר המשלוח?"}, conversation.DispatcherAddFee, nil, nil
	case "manual_charge":
		return conversation.Reply{Text: "מזהה השליח לחיוב?"}, conversation.DispatcherChargeAmount, nil, nil
	default:
		return conversation.Reply{Text: dispatcherMenuText}, sess.CurrentState, nil, nil
	}
}

// DispatcherAddFeeStep validates the proposed fee and asks for
// confirmation before the delivery is actually created.
func DispatcherAddFeeStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	amt, err := money.Parse(validation.Sanitize(in.Text))
	if err != nil || !validation.AmountValidate(amt) {
		return conversation.Reply{Text: "סכום לא תקין, נסה שוב."}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "לאשר יצירת משלוח תחנתי בסכום " + amt.String() + "? (כן/לא)"}, conversation.DispatcherAddConfirm, conversation.Context{"add_fee_minor": amt.Minor()}, nil
}

// DispatcherAddConfirmStep opens a station-routed PENDING_APPROVAL delivery
// requested on behalf of the dispatcher's own station queue.
func DispatcherAddConfirmStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback != "confirm_yes" {
		return conversation.Reply{Text: "הפעולה בוטלה."}, conversation.DispatcherMenu, conversation.Context{"add_fee_minor": nil}, nil
	}
	stationID, ok := sess.Context["station_id"].(int64)
	if !ok {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.New(apperr.CodeValidation, "לא נמצאה תחנה")
	}
	feeMinor, _ := sess.Context["add_fee_minor"].(int64)
	_, err := d.Shipments.Create(ctx, shipment.CreateInput{
		SenderID:            u.ID,
		StationID:           &stationID,
		Pickup:              delivery.Address{Text: "ייקבע על ידי התחנה"},
		Dropoff:             delivery.Address{Text: "ייקבע על ידי התחנה"},
		Fee:                 money.FromMinor(feeMinor),
		RouteThroughStation: true,
	})
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	return conversation.Reply{Text: "המשלוח נוצר וממתין לאישור."}, conversation.DispatcherMenu, conversation.Context{"add_fee_minor": nil}, nil
}

// DispatcherChargeAmountStep parses "<courier_id> <amount>" for a manual,
// out-of-band charge (e.g. a cash-collection adjustment).
func DispatcherChargeAmountStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	text := validation.Sanitize(in.Text)
	courierID, amt, ok := parseCourierAmount(text)
	if !ok || !validation.AmountValidate(amt) {
		return conversation.Reply{Text: "פורמט לא תקין, נסה: <מזהה שליח> <סכום>"}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "לאשר חיוב של " + amt.String() + " לשליח " + strconv.FormatInt(courierID, 10) + "? (כן/לא)"},
		conversation.DispatcherChargeConfirm,
		conversation.Context{"charge_courier_id": courierID, "charge_amount_minor": amt.Minor()}, nil
}

// DispatcherChargeConfirmStep records the manual charge and applies it to
// the courier's wallet ledger as an adjustment entry.
func DispatcherChargeConfirmStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	clearPatch := conversation.Context{"charge_courier_id": nil, "charge_amount_minor": nil}
	if in.Callback != "confirm_yes" {
		return conversation.Reply{Text: "הפעולה בוטלה."}, conversation.DispatcherMenu, clearPatch, nil
	}
	stationID, ok := sess.Context["station_id"].(int64)
	if !ok {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.New(apperr.CodeValidation, "לא נמצאה תחנה")
	}
	courierID, _ := sess.Context["charge_courier_id"].(int64)
	amountMinor, _ := sess.Context["charge_amount_minor"].(int64)
	amount := money.FromMinor(amountMinor)

	charge, err := d.Stations.RecordManualCharge(ctx, station.ManualCharge{
		StationID:   stationID,
		CourierID:   courierID,
		CreatedBy:   u.ID,
		Amount:      amount.Neg(),
		Description: "חיוב ידני",
	})
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה ברישום החיוב", err)
	}

	tx, err := d.WalletTx(ctx)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer txRollback(tx)
	if _, _, err := d.Wallets.CreditForDelivery(ctx, tx, courierID, nil, amount.Neg(), walletEntryManualCharge, "חיוב ידני #"+strconvFormatID(charge.ID)); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	if err := txCommit(tx); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת החיוב", err)
	}
	return conversation.Reply{Text: "החיוב נרשם."}, conversation.DispatcherMenu, clearPatch, nil
}
