package conversation

import (
	"context"

	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
)

// MenuEntry is one role's landing state plus its rendered menu text,
// returned by RouteToRoleMenu.
type MenuEntry struct {
	State State
	Text  string
}

// roleMenus enumerates the exactly-four recognized roles. Every role switch
// site in this codebase follows this shape: an explicit case per role and a
// default that logs a security event and returns a fixed "role not
// recognized" menu — spec.md §4.4 forbids a generic/silent fallback, and
// spec.md §9's Open Question on unknown roles resolves in favor of this
// exhaustive form everywhere, not just here.
var roleMenus = map[user.Role]MenuEntry{
	user.RoleSender:        {"SENDER.MENU", "בחר פעולה: יצירת משלוח חדש, מעקב אחר משלוחים קיימים."},
	user.RoleCourier:       {"COURIER.MENU", "בחר פעולה: משלוחים זמינים, המשלוחים שלי, ארנק, היסטוריה, תמיכה."},
	user.RoleStationOwner:  {"STATION.MENU", "בחר פעולה: ניהול תחנה, ארנק, דוח גבייה, רשימה שחורה."},
	user.RoleAdmin:         {"ADMIN.MENU", "תפריט ניהול."},
}

// RouteToRoleMenu returns the landing menu for role. Every Role constant in
// internal/domain/user is handled explicitly; an unrecognized value (which
// should be structurally impossible given the Role type, but is handled
// defensively since this is the one place a corrupted/legacy row would
// surface) is logged as a security event and answered with a safe, generic
// "contact support" menu rather than silently doing nothing.
func RouteToRoleMenu(ctx context.Context, log *logging.Logger, role user.Role) MenuEntry {
	switch role {
	case user.RoleSender:
		return roleMenus[user.RoleSender]
	case user.RoleCourier:
		return roleMenus[user.RoleCourier]
	case user.RoleStationOwner:
		return roleMenus[user.RoleStationOwner]
	case user.RoleAdmin:
		return roleMenus[user.RoleAdmin]
	default:
		log.LogSecurityEvent(ctx, "unrecognized_role", map[string]any{"role": string(role)})
		return MenuEntry{State: conversation.Initial, Text: "תפקיד לא מזוהה, אנא פנה לתמיכה."}
	}
}
