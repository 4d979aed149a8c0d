// station.go implements the STATION.* flow: dispatcher/owner management,
// wallet viewing and commission-rate changes (bounded to
// [wallet.MinCommissionRate, wallet.MaxCommissionRate]), the collection
// report, blacklist management, and group-chat settings (spec.md §4.4's
// station-owner summary).
package roles

import (
	"context"
	"strconv"
	"strings"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/station"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/domain/wallet"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/validation"
)

// StationSteps maps each STATION.* state to its handler.
var StationSteps = map[conversation.State]Step{
	conversation.StationMenu:          StationMenuStep,
	conversation.StationDispatchers:   StationDispatchersStep,
	conversation.StationOwners:        StationOwnersStep,
	conversation.StationOwnersConfirm: StationOwnersConfirmStep,
	conversation.StationWallet:        StationWalletStep,
	conversation.StationCommission:    StationCommissionStep,
	conversation.StationReport:        StationReportStep,
	conversation.StationBlacklist:     StationBlacklistStep,
	conversation.StationGroupSettings: StationGroupSettingsStep,
}

const stationMenuText = "בחר פעולה: ניהול תחנה, ארנק, דוח גבייה, רשימה שחורה."

func requireStationID(sess conversation.Session) (int64, error) {
	stationID, ok := sess.Context["station_id"].(int64)
	if !ok {
		return 0, apperr.New(apperr.CodeValidation, "לא נמצאה תחנה")
	}
	return stationID, nil
}

// StationMenuStep routes the station-owner menu to its sub-flows.
func StationMenuStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	switch in.Callback {
	case "manage_dispatchers":
		return conversation.Reply{Text: "מזהה שליח להוספה כמפעיל?"}, conversation.StationDispatchers, nil, nil
	case "manage_owners":
		return conversation.Reply{Text: "מזהה משתמש להוספה כבעלים?"}, conversation.StationOwners, nil, nil
	case "wallet":
		return StationWalletStep(ctx, d, sess, u, in)
	case "collection_report":
		return StationReportStep(ctx, d, sess, u, in)
	case "blacklist":
		return conversation.Reply{Text: "מזהה שליח לחסימה?"}, conversation.StationBlacklist, nil, nil
	case "group_settings":
		return conversation.Reply{Text: "מזהה קבוצת הצ'אט?"}, conversation.StationGroupSettings, nil, nil
	default:
		return conversation.Reply{Text: stationMenuText}, sess.CurrentState, nil, nil
	}
}

// StationDispatchersStep grants a courier dispatcher permissions on this
// station (glossary: "an approved courier with per-station managerial
// permissions").
func StationDispatchersStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	userID, perr := strconv.ParseInt(validation.Sanitize(in.Text), 10, 64)
	if perr != nil {
		return conversation.Reply{Text: "מזהה לא תקין."}, sess.CurrentState, nil, nil
	}
	isDispatcher, err := d.Stations.IsDispatcher(ctx, stationID, userID)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת הרשאות", err)
	}
	if isDispatcher {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.New(apperr.CodeAlreadyOwnerOrDispatch, "המשתמש כבר מפעיל בתחנה זו")
	}
	if err := d.Stations.AddDispatcher(ctx, station.Dispatcher{StationID: stationID, UserID: userID}); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בהוספת מפעיל", err)
	}
	return conversation.Reply{Text: "המפעיל נוסף."}, conversation.StationMenu, nil, nil
}

// StationOwnersStep parses a candidate owner ID and asks for confirmation.
func StationOwnersStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	userID, err := strconv.ParseInt(validation.Sanitize(in.Text), 10, 64)
	if err != nil {
		return conversation.Reply{Text: "מזהה לא תקין."}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "לאשר הוספת בעלים חדש? (כן/לא)"}, conversation.StationOwnersConfirm, conversation.Context{"new_owner_id": userID}, nil
}

// StationOwnersConfirmStep adds the pending candidate as a station owner.
func StationOwnersConfirmStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	clearPatch := conversation.Context{"new_owner_id": nil}
	if in.Callback != "confirm_yes" {
		return conversation.Reply{Text: "הפעולה בוטלה."}, conversation.StationMenu, clearPatch, nil
	}
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	userID, _ := sess.Context["new_owner_id"].(int64)
	isOwner, err := d.Stations.IsOwner(ctx, stationID, userID)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת בעלות", err)
	}
	if isOwner {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.New(apperr.CodeAlreadyOwnerOrDispatch, "המשתמש כבר בעלים של תחנה זו")
	}
	if err := d.Stations.AddOwner(ctx, station.Owner{StationID: stationID, UserID: userID}); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בהוספת בעלים", err)
	}
	return conversation.Reply{Text: "הבעלים נוסף."}, conversation.StationMenu, clearPatch, nil
}

// StationWalletStep moves to the commission-rate prompt on set_commission;
// for any other input it replies with a pointer to the collection report
// and returns to the menu. It does not display the current rate or balance.
func StationWalletStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback == "set_commission" {
		return conversation.Reply{Text: "שיעור עמלה חדש (בין 6% ל-12%)?"}, conversation.StationCommission, nil, nil
	}
	return conversation.Reply{Text: "לצפייה בארנק התחנה עבור אל דוח הגבייה."}, conversation.StationMenu, nil, nil
}

// StationCommissionStep validates and applies a new commission rate,
// bounded to spec.md §4.3's [0.06, 0.12] band.
func StationCommissionStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	text := strings.TrimSuffix(validation.Sanitize(in.Text), "%")
	rate, perr := strconv.ParseFloat(text, 64)
	if perr != nil {
		return conversation.Reply{Text: "ערך לא תקין."}, sess.CurrentState, nil, nil
	}
	if rate > 1 {
		rate = rate / 100
	}
	if rate < wallet.MinCommissionRate || rate > wallet.MaxCommissionRate {
		return conversation.Reply{Text: "שיעור העמלה חייב להיות בין 6% ל-12%."}, sess.CurrentState, nil, nil
	}
	tx, err := d.WalletTx(ctx)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "לא ניתן לפתוח עסקה", err)
	}
	defer txRollback(tx)
	w, err := d.WalletStore.GetOrCreateStationWallet(ctx, tx, stationID, rate)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת ארנק התחנה", err)
	}
	w.CommissionRate = rate
	if err := d.WalletStore.UpdateStationWalletInTx(ctx, tx, w); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון שיעור העמלה", err)
	}
	if err := txCommit(tx); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת שיעור העמלה", err)
	}
	return conversation.Reply{Text: "שיעור העמלה עודכן."}, conversation.StationMenu, nil, nil
}

// StationReportStep renders the station's 20 most recent audit-log entries.
// Manual charges and commission credits write no audit entries, so they do
// not appear in it.
func StationReportStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	logs, err := d.Audit.ListAuditByStation(ctx, stationID, 20)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת הדוח", err)
	}
	text := "דוח גבייה אחרון:\n"
	for _, l := range logs {
		text += l.CreatedAt.Format("02/01 15:04") + " " + l.Action + "\n"
	}
	return conversation.Reply{Text: text}, conversation.StationMenu, nil, nil
}

// StationBlacklistStep bars a courier from capturing this station's
// shipments.
func StationBlacklistStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	courierID, perr := strconv.ParseInt(validation.Sanitize(in.Text), 10, 64)
	if perr != nil {
		return conversation.Reply{Text: "מזהה לא תקין."}, sess.CurrentState, nil, nil
	}
	if err := d.Stations.Blacklist(ctx, station.Blacklist{StationID: stationID, CourierID: courierID, Reason: "נחסם ידנית על ידי בעל התחנה"}); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בחסימת השליח", err)
	}
	return conversation.Reply{Text: "השליח נחסם."}, conversation.StationMenu, nil, nil
}

// StationGroupSettingsStep links the station to its notification group
// chat.
func StationGroupSettingsStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	stationID, err := requireStationID(sess)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	groupChatID, perr := strconv.ParseInt(validation.Sanitize(in.Text), 10, 64)
	if perr != nil {
		return conversation.Reply{Text: "מזהה קבוצה לא תקין."}, sess.CurrentState, nil, nil
	}
	if err := d.Stations.UpdateGroupChatID(ctx, stationID, groupChatID); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון קבוצת הצ'אט", err)
	}
	return conversation.Reply{Text: "קבוצת הצ'אט עודכנה."}, conversation.StationMenu, nil, nil
}
