package conversation

// State constants for every flow this core drives. Exported so role
// handlers (internal/services/conversation/roles) and the webhook intake
// service can target them directly instead of re-deriving dotted strings.
const (
	SenderMenu          State = "SENDER.MENU"
	SenderRegisterName  State = "SENDER.REGISTER.COLLECT_NAME"
	SenderPickupCity    State = "SENDER.CREATE.PICKUP_CITY"
	SenderPickupStreet  State = "SENDER.CREATE.PICKUP_STREET"
	SenderPickupNumber  State = "SENDER.CREATE.PICKUP_NUMBER"
	SenderPickupApt     State = "SENDER.CREATE.PICKUP_APARTMENT"
	SenderDropoffCity   State = "SENDER.CREATE.DROPOFF_CITY"
	SenderDropoffStreet State = "SENDER.CREATE.DROPOFF_STREET"
	SenderDropoffNumber State = "SENDER.CREATE.DROPOFF_NUMBER"
	SenderDropoffApt    State = "SENDER.CREATE.DROPOFF_APARTMENT"
	SenderUrgency       State = "SENDER.CREATE.URGENCY"
	SenderTime          State = "SENDER.CREATE.TIME"
	SenderPrice         State = "SENDER.CREATE.PRICE"
	SenderDescription   State = "SENDER.CREATE.DESCRIPTION"
	SenderConfirm       State = "SENDER.CREATE.CONFIRM"

	CourierMenu           State = "COURIER.MENU"
	CourierRegisterName   State = "COURIER.REGISTER.COLLECT_NAME"
	CourierRegisterID     State = "COURIER.REGISTER.ID_DOCUMENT"
	CourierRegisterSelfie State = "COURIER.REGISTER.SELFIE"
	CourierRegisterVeh    State = "COURIER.REGISTER.VEHICLE_CATEGORY"
	CourierRegisterVehPhoto State = "COURIER.REGISTER.VEHICLE_PHOTO"
	CourierRegisterTerms  State = "COURIER.REGISTER.TERMS"
	CourierPending        State = "COURIER.REGISTER.PENDING_APPROVAL"
	CourierAvailable      State = "COURIER.VIEW_AVAILABLE"
	CourierActive         State = "COURIER.VIEW_ACTIVE"
	CourierWallet         State = "COURIER.WALLET"
	CourierArea           State = "COURIER.CHANGE_AREA"
	CourierHistory        State = "COURIER.HISTORY"
	CourierSupport        State = "COURIER.SUPPORT"
	CourierDeposit        State = "COURIER.DEPOSIT"

	DispatcherMenu          State = "DISPATCHER.MENU"
	DispatcherAddFee        State = "DISPATCHER.ADD_SHIPMENT.FEE"
	DispatcherAddConfirm    State = "DISPATCHER.ADD_SHIPMENT.CONFIRM"
	DispatcherChargeAmount  State = "DISPATCHER.MANUAL_CHARGE.AMOUNT"
	DispatcherChargeConfirm State = "DISPATCHER.MANUAL_CHARGE.CONFIRM"
	DispatcherActive        State = "DISPATCHER.VIEW_ACTIVE"
	DispatcherHistory       State = "DISPATCHER.VIEW_HISTORY"

	StationMenu          State = "STATION.MENU"
	StationDispatchers   State = "STATION.MANAGE_DISPATCHERS"
	StationOwners        State = "STATION.MANAGE_OWNERS"
	StationOwnersConfirm State = "STATION.MANAGE_OWNERS.CONFIRM"
	StationWallet        State = "STATION.WALLET"
	StationCommission    State = "STATION.WALLET.SET_COMMISSION"
	StationReport        State = "STATION.COLLECTION_REPORT"
	StationBlacklist     State = "STATION.BLACKLIST"
	StationGroupSettings State = "STATION.GROUP_SETTINGS"

	AdminMenu State = "ADMIN.MENU"
)
