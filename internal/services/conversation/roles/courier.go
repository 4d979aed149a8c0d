// courier.go implements the COURIER.* flow: onboarding (name, ID document,
// selfie, vehicle category/photo, terms) into PENDING_APPROVAL, and the
// post-approval menu's available/active/wallet/history/support branches
// (spec.md §4.4's courier summary).
package roles

import (
	"context"
	"strconv"
	"strings"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/shipment"
	"github.com/dispatchcore/platform/internal/validation"
)

// CourierSteps maps each COURIER.* state to its handler.
var CourierSteps = map[conversation.State]Step{
	conversation.CourierRegisterName:     CourierCollectName,
	conversation.CourierRegisterID:       courierMedia("id_document_ref", conversation.CourierRegisterSelfie, "שלח תמונת סלפי"),
	conversation.CourierRegisterSelfie:   courierMedia("selfie_ref", conversation.CourierRegisterVeh, "מהו סוג הרכב? (אופנוע/רכב/אופניים)"),
	conversation.CourierRegisterVeh:      CourierVehicleCategoryStep,
	conversation.CourierRegisterVehPhoto: courierMedia("vehicle_ref", conversation.CourierRegisterTerms, "אשר תנאי שימוש (כן/לא)"),
	conversation.CourierRegisterTerms:    CourierTermsStep,
	conversation.CourierMenu:             CourierMenuStep,
	conversation.CourierAvailable:        CourierAvailableStep,
	conversation.CourierActive:           CourierActiveStep,
	conversation.CourierWallet:           CourierWalletStep,
	conversation.CourierArea:             courierTextField("service_area", "אזור השירות עודכן.", conversation.CourierMenu),
	conversation.CourierHistory:          CourierWalletStep,
}

// CourierCollectName stores the onboarding display name.
func CourierCollectName(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	name := validation.Sanitize(in.Text)
	if !validation.NameValidate(name) {
		return conversation.Reply{Text: "שם לא תקין, נסה שוב."}, sess.CurrentState, nil, nil
	}
	u.FullName = name
	if err := d.Users.UpdateUser(ctx, u); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת השם", err)
	}
	return conversation.Reply{Text: "שלח צילום תעודה מזהה"}, conversation.CourierRegisterID, nil, nil
}

// courierMedia builds a Step that stores an uploaded media reference and
// advances to next, used across the ID/selfie/vehicle-photo onboarding
// steps which all have the same shape.
func courierMedia(field string, next conversation.State, prompt string) Step {
	return func(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
		if in.Media == nil {
			return conversation.Reply{Text: "יש לשלוח תמונה/מסמך."}, sess.CurrentState, nil, nil
		}
		return conversation.Reply{Text: prompt}, next, conversation.Context{field: in.Media.URL}, nil
	}
}

// courierTextField stores the sanitized free-text answer as the user's
// ServiceArea; key is not consulted, so every Step it builds writes that
// field.
func courierTextField(key, reply string, next conversation.State) Step {
	return func(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
		u.ServiceArea = validation.Sanitize(in.Text)
		if err := d.Users.UpdateUser(ctx, u); err != nil {
			return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בעדכון אזור השירות", err)
		}
		return conversation.Reply{Text: reply}, next, nil, nil
	}
}

var vehicleCategories = map[string]bool{"אופנוע": true, "רכב": true, "אופניים": true}

// CourierVehicleCategoryStep validates the vehicle category against the
// fixed set the onboarding form offers.
func CourierVehicleCategoryStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	cat := validation.Sanitize(in.Text)
	if !vehicleCategories[cat] {
		return conversation.Reply{Text: "בחר סוג רכב מהרשימה."}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "שלח תמונת הרכב"}, conversation.CourierRegisterVehPhoto, conversation.Context{"vehicle_category": cat}, nil
}

// CourierTermsStep either submits the onboarding for admin approval or
// rejects on a non-affirmative answer.
func CourierTermsStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback != "terms_accept" {
		return conversation.Reply{Text: "יש לאשר את התנאים כדי להמשיך."}, sess.CurrentState, nil, nil
	}
	u.IDDocumentRef = str(sess.Context["id_document_ref"])
	u.SelfieRef = str(sess.Context["selfie_ref"])
	u.VehicleRef = str(sess.Context["vehicle_ref"])
	u.VehicleCategory = str(sess.Context["vehicle_category"])
	u.ApprovalStatus = user.ApprovalPending
	if err := d.Users.UpdateUser(ctx, u); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בשליחת הבקשה", err)
	}
	return conversation.Reply{Text: "בקשתך נשלחה לאישור מנהל."}, conversation.CourierPending, clearWizard(), nil
}

const courierMenuText = "בחר פעולה: משלוחים זמינים, המשלוחים שלי, ארנק, היסטוריה, תמיכה."

// CourierMenuStep re-shows the courier menu text for every input and stays
// in COURIER.MENU. It does not move to any branch state, and no other
// handler in this package moves from COURIER.MENU to a branch either.
func CourierMenuStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	return conversation.Reply{Text: courierMenuText}, sess.CurrentState, nil, nil
}

// CourierAvailableStep captures a delivery by smart-link token or numeric ID
// when the courier presses a capture button (spec.md §4.2/§9's capture
// entry points).
func CourierAvailableStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if !u.IsCourierUsable() {
		return conversation.Reply{Text: "חשבונך אינו מאושר ללכידת משלוחים."}, conversation.CourierMenu, nil, nil
	}
	cb := in.Callback
	if !strings.HasPrefix(cb, "capture:") {
		return conversation.Reply{Text: "בחר משלוח ללכידה."}, sess.CurrentState, nil, nil
	}
	selector := strings.TrimPrefix(cb, "capture:")
	capIn := shipment.CaptureInput{CourierID: u.ID}
	if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
		capIn.DeliveryID = &id
	} else {
		capIn.Token = &selector
	}
	del, err := d.Shipments.Capture(ctx, capIn)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	return conversation.Reply{Text: "לכדת בהצלחה: " + del.Token}, conversation.CourierMenu, nil, nil
}

// CourierActiveStep handles mark-picked-up / mark-delivered transitions on
// the courier's active deliveries, addressed by numeric delivery ID in the
// callback payload.
func CourierActiveStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	parts := strings.SplitN(in.Callback, ":", 2)
	if len(parts) != 2 {
		return conversation.Reply{Text: "בחר פעולה על המשלוח הפעיל."}, sess.CurrentState, nil, nil
	}
	deliveryID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return conversation.Reply{Text: "מזהה משלוח לא תקין."}, sess.CurrentState, nil, nil
	}
	switch parts[0] {
	case "picked_up":
		if _, err := d.Shipments.MarkPickedUp(ctx, deliveryID, u.ID); err != nil {
			return conversation.Reply{}, sess.CurrentState, nil, err
		}
		return conversation.Reply{Text: "המשלוח סומן כנאסף."}, conversation.CourierMenu, nil, nil
	case "delivered":
		if _, err := d.Shipments.MarkDelivered(ctx, deliveryID, u.ID); err != nil {
			return conversation.Reply{}, sess.CurrentState, nil, err
		}
		return conversation.Reply{Text: "המשלוח סומן כנמסר."}, conversation.CourierMenu, nil, nil
	default:
		return conversation.Reply{Text: "פעולה לא מוכרת."}, sess.CurrentState, nil, nil
	}
}

// CourierWalletStep renders the courier's recent ledger history.
func CourierWalletStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	entries, err := d.Wallets.History(ctx, u.ID, 10)
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	text := "תנועות אחרונות:\n"
	for _, e := range entries {
		text += e.CreatedAt.Format("02/01 15:04") + " " + string(e.EntryType) + " " + e.Amount.String() + "\n"
	}
	return conversation.Reply{Text: text}, conversation.CourierMenu, nil, nil
}

// broadcastAvailableKeyboard builds a capture-button keyboard, using
// callbacktoken when the payload would exceed the platform's callback size
// limit. Nothing in this module calls it; new-shipment broadcasts
// (shipment.broadcastMessage) are enqueued without a keyboard.
func broadcastAvailableKeyboard(ctx context.Context, d *Deps, token string) (*outbox.Keyboard, error) {
	cb, err := d.Callbacks.Encode(ctx, "capture:"+token)
	if err != nil {
		return nil, err
	}
	return &outbox.Keyboard{Rows: [][]outbox.Button{{{Label: "לכידת משלוח", Callback: cb}}}}, nil
}
