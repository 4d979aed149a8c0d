// Package user defines the User entity shared by every chat platform and role.
package user

import "time"

// Role is the set of roles a user may hold.
type Role string

const (
	RoleSender        Role = "SENDER"
	RoleCourier       Role = "COURIER"
	RoleAdmin         Role = "ADMIN"
	RoleStationOwner  Role = "STATION_OWNER"
)

// Platform identifies which chat platform a user is reachable on.
type Platform string

const (
	PlatformBotAPI  Platform = "bot-api"
	PlatformWebChat Platform = "web-chat"
)

// ApprovalStatus is the courier onboarding approval lifecycle.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalBlocked  ApprovalStatus = "blocked"
)

// User is one account per (platform identity). IDs must hold Telegram-scale
// 64-bit identifiers.
type User struct {
	ID       int64
	Phone    string // canonical +972... form, or "tg:<hash>" placeholder
	ChatID   int64
	Name     string
	Role     Role
	Platform Platform
	IsActive bool

	// Courier-specific fields.
	ApprovalStatus   ApprovalStatus
	FullName         string
	IDDocumentRef    string
	SelfieRef        string
	VehicleRef       string
	VehicleCategory  string
	ServiceArea      string
	TermsAcceptedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCourierUsable reports whether the courier may capture deliveries:
// approved and active.
func (u *User) IsCourierUsable() bool {
	return u.Role == RoleCourier && u.IsActive && u.ApprovalStatus == ApprovalApproved
}
