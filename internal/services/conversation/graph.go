// Package conversation implements the Conversation Engine (spec.md §4.4): a
// per-(user, platform) state machine with validated transitions, per-flow
// typed context, and role-based routing. There is no teacher equivalent (the
// teacher has no chatbot); the role-router exhaustiveness pattern is
// grounded on internal/app/httpapi's explicit enum-switch style, and the
// context-patch copy-on-write update is grounded on the teacher's JSON
// column read-merge-write idiom (internal/app/storage/postgres's metadata
// JSON round trip) — see DESIGN.md.
package conversation

import (
	"github.com/dispatchcore/platform/internal/domain/conversation"
	"github.com/dispatchcore/platform/internal/domain/user"
)

// State is re-exported for callers that only need the conversation package.
type State = conversation.State

// Edge is one allowed (from, to) transition.
type Edge struct {
	From State
	To   State
}

// Graph is the directed multigraph of allowed transitions for every role,
// plus the set of entry states each role may land on directly from
// conversation.Initial.
type Graph struct {
	edges   map[State]map[State]bool
	entries map[user.Role][]State
}

// NewGraph builds a Graph from a flat edge list plus per-role entry states.
func NewGraph(edgeList []Edge, entries map[user.Role][]State) *Graph {
	g := &Graph{edges: make(map[State]map[State]bool), entries: entries}
	for _, e := range edgeList {
		if g.edges[e.From] == nil {
			g.edges[e.From] = make(map[State]bool)
		}
		g.edges[e.From][e.To] = true
	}
	return g
}

// CanTransition reports whether (from, to) is an allowed edge for role.
// From conversation.Initial, a role may only land on one of its declared
// entry states; any other transition must appear in the flat edge list,
// which is shared by every role (role is not consulted for it).
func (g *Graph) CanTransition(role user.Role, from, to State) bool {
	if from == conversation.Initial {
		for _, entry := range g.entries[role] {
			if entry == to {
				return true
			}
		}
		return false
	}
	edges, ok := g.edges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// BuildDefaultGraph assembles the state graph for every role from spec.md
// §4.4's flow summary. Diagrams are externalized per spec.md; the edges
// below are the subset needed to drive the flows this core implements.
func BuildDefaultGraph() *Graph {
	const (
		senderMenu              = SenderMenu
		senderRegisterName      = SenderRegisterName
		senderPickupCity        = SenderPickupCity
		senderPickupStreet      = SenderPickupStreet
		senderPickupNumber      = SenderPickupNumber
		senderPickupApt         = SenderPickupApt
		senderDropoffCity       = SenderDropoffCity
		senderDropoffStreet     = SenderDropoffStreet
		senderDropoffNumber     = SenderDropoffNumber
		senderDropoffApt        = SenderDropoffApt
		senderUrgency           = SenderUrgency
		senderTime              = SenderTime
		senderPrice             = SenderPrice
		senderDescription       = SenderDescription
		senderConfirm           = SenderConfirm

		courierMenu             = CourierMenu
		courierRegisterName     = CourierRegisterName
		courierRegisterID       = CourierRegisterID
		courierRegisterSelfie   = CourierRegisterSelfie
		courierRegisterVeh      = CourierRegisterVeh
		courierRegisterVehPhoto = CourierRegisterVehPhoto
		courierRegisterTerms    = CourierRegisterTerms
		courierPending          = CourierPending
		courierAvailable        = CourierAvailable
		courierActive           = CourierActive
		courierWallet           = CourierWallet
		courierArea             = CourierArea
		courierHistory          = CourierHistory
		courierSupport          = CourierSupport
		courierDeposit          = CourierDeposit

		dispatcherMenu          = DispatcherMenu
		dispatcherAddFee        = DispatcherAddFee
		dispatcherAddConfirm    = DispatcherAddConfirm
		dispatcherChargeAmt     = DispatcherChargeAmount
		dispatcherChargeConfirm = DispatcherChargeConfirm
		dispatcherActive        = DispatcherActive
		dispatcherHistory       = DispatcherHistory

		stationMenu          = StationMenu
		stationDispatchers   = StationDispatchers
		stationOwners        = StationOwners
		stationOwnersConfirm = StationOwnersConfirm
		stationWallet        = StationWallet
		stationCommission    = StationCommission
		stationReport        = StationReport
		stationBlacklist     = StationBlacklist
		stationGroupSettings = StationGroupSettings

		adminMenu = AdminMenu
	)

	edges := []Edge{
		// Sender registration -> menu -> create-shipment wizard -> menu.
		{senderRegisterName, senderMenu},
		{senderMenu, senderPickupCity},
		{senderPickupCity, senderPickupStreet},
		{senderPickupStreet, senderPickupNumber},
		{senderPickupNumber, senderPickupApt},
		{senderPickupApt, senderDropoffCity},
		{senderDropoffCity, senderDropoffStreet},
		{senderDropoffStreet, senderDropoffNumber},
		{senderDropoffNumber, senderDropoffApt},
		{senderDropoffApt, senderUrgency},
		{senderUrgency, senderTime},
		{senderUrgency, senderPrice},
		{senderUrgency, senderDescription},
		{senderTime, senderPrice},
		{senderPrice, senderDescription},
		{senderDescription, senderConfirm},
		{senderConfirm, senderMenu},

		// Courier onboarding -> pending approval -> menu, plus menu branches.
		{courierRegisterName, courierRegisterID},
		{courierRegisterID, courierRegisterSelfie},
		{courierRegisterSelfie, courierRegisterVeh},
		{courierRegisterVeh, courierRegisterVehPhoto},
		{courierRegisterVehPhoto, courierRegisterTerms},
		{courierRegisterTerms, courierPending},
		{courierPending, courierMenu},
		{courierMenu, courierAvailable},
		{courierMenu, courierActive},
		{courierMenu, courierWallet},
		{courierMenu, courierArea},
		{courierMenu, courierHistory},
		{courierMenu, courierSupport},
		{courierMenu, courierDeposit},
		// Dispatcher permissions are a per-station grant on top of the
		// COURIER role (see glossary); the dispatcher menu is reached from,
		// and returns to, the courier menu rather than being a separate
		// role-level entry point.
		{courierMenu, dispatcherMenu},
		{dispatcherMenu, courierMenu},
		{courierAvailable, courierMenu},
		{courierActive, courierMenu},
		{courierWallet, courierMenu},
		{courierArea, courierMenu},
		{courierHistory, courierMenu},
		{courierSupport, courierMenu},
		{courierDeposit, courierMenu},

		// Dispatcher menu -> add-shipment or manual-charge wizard -> menu.
		{dispatcherMenu, dispatcherAddFee},
		{dispatcherAddFee, dispatcherAddConfirm},
		{dispatcherAddConfirm, dispatcherMenu},
		{dispatcherMenu, dispatcherChargeAmt},
		{dispatcherChargeAmt, dispatcherChargeConfirm},
		{dispatcherChargeConfirm, dispatcherMenu},
		{dispatcherMenu, dispatcherActive},
		{dispatcherActive, dispatcherMenu},
		{dispatcherMenu, dispatcherHistory},
		{dispatcherHistory, dispatcherMenu},

		// Station owner menu branches.
		{stationMenu, stationDispatchers},
		{stationDispatchers, stationMenu},
		{stationMenu, stationOwners},
		{stationOwners, stationOwnersConfirm},
		{stationOwnersConfirm, stationMenu},
		{stationMenu, stationWallet},
		{stationWallet, stationCommission},
		{stationCommission, stationMenu},
		{stationWallet, stationMenu},
		{stationMenu, stationReport},
		{stationReport, stationMenu},
		{stationMenu, stationBlacklist},
		{stationBlacklist, stationMenu},
		{stationMenu, stationGroupSettings},
		{stationGroupSettings, stationMenu},
	}

	entries := map[user.Role][]State{
		user.RoleSender:       {senderRegisterName, senderMenu},
		user.RoleCourier:      {courierRegisterName, courierMenu},
		user.RoleAdmin:        {adminMenu},
		user.RoleStationOwner: {stationMenu},
	}

	return NewGraph(edges, entries)
}
