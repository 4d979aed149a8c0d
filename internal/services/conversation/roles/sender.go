// Package roles' sender.go implements the SENDER.* flow: name registration
// and the multi-step create-shipment wizard (spec.md §4.4's sender summary).
package roles

import (
	"context"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/delivery"
	"github.com/dispatchcore/platform/internal/domain/money"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/shipment"
	"github.com/dispatchcore/platform/internal/validation"
)

// Step is the signature every per-state handler in this package implements:
// it receives the caller's storage/service bundle, the already-loaded
// session and user, and the sanitized input, and returns the reply plus the
// next state and context patch for the conversation engine to apply.
type Step func(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error)

// SenderSteps maps each SENDER.* state to its handler.
var SenderSteps = map[conversation.State]Step{
	conversation.SenderRegisterName:  SenderCollectName,
	conversation.SenderMenu:          SenderMenuStep,
	conversation.SenderPickupCity:    senderAddressField("pickup_city", conversation.SenderPickupStreet, "רחוב לאיסוף?"),
	conversation.SenderPickupStreet:  senderAddressField("pickup_street", conversation.SenderPickupNumber, "מספר בית לאיסוף?"),
	conversation.SenderPickupNumber:  senderAddressField("pickup_number", conversation.SenderPickupApt, "קומה/דירה לאיסוף (או דלג)?"),
	conversation.SenderPickupApt:     senderAddressField("pickup_apt", conversation.SenderDropoffCity, "עיר למסירה?"),
	conversation.SenderDropoffCity:   senderAddressField("dropoff_city", conversation.SenderDropoffStreet, "רחוב למסירה?"),
	conversation.SenderDropoffStreet: senderAddressField("dropoff_street", conversation.SenderDropoffNumber, "מספר בית למסירה?"),
	conversation.SenderDropoffNumber: senderAddressField("dropoff_number", conversation.SenderDropoffApt, "קומה/דירה למסירה (או דלג)?"),
	conversation.SenderDropoffApt:    senderAddressField("dropoff_apt", conversation.SenderUrgency, "דחוף (עכשיו) או בתיאום שעה?"),
	conversation.SenderUrgency:       SenderUrgencyStep,
	conversation.SenderTime:          senderTextField("scheduled_time", conversation.SenderPrice, "מחיר מוצע למשלוח?"),
	conversation.SenderPrice:         SenderPriceStep,
	conversation.SenderDescription:   senderTextField("description", conversation.SenderConfirm, "אשר את פרטי המשלוח (כן/לא)"),
	conversation.SenderConfirm:       SenderConfirmStep,
}

// SenderCollectName stores the sender's display name and lands them on the
// menu (spec.md §4.4's SENDER.REGISTER flow has a single field).
func SenderCollectName(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	name := validation.Sanitize(in.Text)
	if !validation.NameValidate(name) {
		return conversation.Reply{Text: "שם לא תקין, נסה שוב."}, sess.CurrentState, nil, nil
	}
	u.Name = name
	if err := d.Users.UpdateUser(ctx, u); err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בשמירת השם", err)
	}
	return conversation.Reply{Text: "נרשמת בהצלחה. " + menuText}, conversation.SenderMenu, nil, nil
}

const menuText = "בחר פעולה: יצירת משלוח חדש, מעקב אחר משלוחים קיימים."

// SenderMenuStep starts the create-shipment wizard when the sender picks
// "new shipment"; any other input re-shows the menu.
func SenderMenuStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback != "create_shipment" {
		return conversation.Reply{Text: menuText}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "עיר לאיסוף?"}, conversation.SenderPickupCity, conversation.Context{"wizard": "create_shipment"}, nil
}

// senderAddressField builds a Step that stores the sanitized free-text
// answer under key and advances to next, matching the wizard shape repeated
// across both the pickup and dropoff address collection (spec.md §4.4).
func senderAddressField(key string, next conversation.State, prompt string) Step {
	return func(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
		text := validation.Sanitize(in.Text)
		if key != "pickup_apt" && key != "dropoff_apt" && !validation.AddressValidate(text) {
			return conversation.Reply{Text: "כתובת לא תקינה, נסה שוב."}, sess.CurrentState, nil, nil
		}
		return conversation.Reply{Text: prompt}, next, conversation.Context{key: validation.AddressNormalize(text)}, nil
	}
}

// senderTextField stores a free-text answer verbatim (sanitized) and
// advances to next, used for fields with no dedicated validator.
func senderTextField(key string, next conversation.State, prompt string) Step {
	return func(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
		return conversation.Reply{Text: prompt}, next, conversation.Context{key: validation.Sanitize(in.Text)}, nil
	}
}

// SenderUrgencyStep branches the wizard: "now" skips straight to the price
// prompt (no scheduled time), anything else asks for a time.
func SenderUrgencyStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback == "urgent_now" {
		return conversation.Reply{Text: "מחיר מוצע למשלוח?"}, conversation.SenderPrice, conversation.Context{"urgency": "now"}, nil
	}
	return conversation.Reply{Text: "באיזו שעה?"}, conversation.SenderTime, conversation.Context{"urgency": "scheduled"}, nil
}

// SenderPriceStep validates the proposed fee and stores it as minor units.
func SenderPriceStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	amt, err := money.Parse(validation.Sanitize(in.Text))
	if err != nil || !validation.AmountValidate(amt) {
		return conversation.Reply{Text: "סכום לא תקין, נסה שוב."}, sess.CurrentState, nil, nil
	}
	return conversation.Reply{Text: "תיאור המשלוח (חבילה, מסמכים וכו')?"}, conversation.SenderDescription, conversation.Context{"fee_minor": amt.Minor()}, nil
}

// wizardKeys lists every context key the create-shipment wizard
// accumulates, so it can be wiped from context once the wizard ends
// (confirmed or cancelled) without forcing a full ForceState reset.
var wizardKeys = []string{
	"wizard", "pickup_city", "pickup_street", "pickup_number", "pickup_apt",
	"dropoff_city", "dropoff_street", "dropoff_number", "dropoff_apt",
	"urgency", "scheduled_time", "fee_minor", "description",
}

func clearWizard() conversation.Context {
	patch := make(conversation.Context, len(wizardKeys))
	for _, k := range wizardKeys {
		patch[k] = nil
	}
	return patch
}

// SenderConfirmStep creates the delivery from the accumulated wizard
// context on a "yes" confirmation.
func SenderConfirmStep(ctx context.Context, d *Deps, sess conversation.Session, u user.User, in conversation.Input) (conversation.Reply, conversation.State, conversation.Context, error) {
	if in.Callback != "confirm_yes" {
		return conversation.Reply{Text: "המשלוח בוטל."}, conversation.SenderMenu, clearWizard(), nil
	}
	feeMinor, _ := sess.Context["fee_minor"].(int64)
	del, err := d.Shipments.Create(ctx, shipment.CreateInput{
		SenderID: u.ID,
		Pickup: delivery.Address{
			Text: str(sess.Context["pickup_city"]) + " " + str(sess.Context["pickup_street"]) + " " + str(sess.Context["pickup_number"]),
		},
		Dropoff: delivery.Address{
			Text: str(sess.Context["dropoff_city"]) + " " + str(sess.Context["dropoff_street"]) + " " + str(sess.Context["dropoff_number"]),
		},
		Fee:   money.FromMinor(feeMinor),
		Notes: str(sess.Context["description"]),
	})
	if err != nil {
		return conversation.Reply{}, sess.CurrentState, nil, err
	}
	return conversation.Reply{Text: "המשלוח נוצר ומחפש שליח: " + del.Token}, conversation.SenderMenu, clearWizard(), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
