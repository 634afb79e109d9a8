// Package flows defines the concrete checkout flows (catering, event
// registration, subscription) as data over one shared topology. The flows
// differ only in which wizard steps exist and in policy knobs; the
// orchestration pattern is the same machine.
package flows

import (
	"github.com/orderflow/orderflow/internal/engine"
)

// Domain events accepted by every flow. The UI fires these; they are the
// machine's only input surface.
const (
	EvSelectCategory  engine.EventType = "SELECT_CATEGORY"
	EvSelectItem      engine.EventType = "SELECT_ITEM"
	EvCustomizeItem   engine.EventType = "CUSTOMIZE_ITEM"
	EvSetItemQuantity engine.EventType = "SET_ITEM_QUANTITY"
	EvBack            engine.EventType = "BACK"

	EvAddToCart      engine.EventType = "ADD_TO_CART"
	EvRemoveFromCart engine.EventType = "REMOVE_FROM_CART"
	EvSetQuantity    engine.EventType = "SET_QUANTITY"
	EvViewCart       engine.EventType = "VIEW_CART"
	EvCheckout       engine.EventType = "CHECKOUT"

	EvOpenCartDrawer  engine.EventType = "OPEN_CART_DRAWER"
	EvCloseCartDrawer engine.EventType = "CLOSE_CART_DRAWER"

	EvSelectFulfillmentType engine.EventType = "SELECT_FULFILLMENT_TYPE"
	EvSelectLocation        engine.EventType = "SELECT_LOCATION"
	EvSetAddress            engine.EventType = "SET_ADDRESS"
	EvSelectDate            engine.EventType = "SELECT_DATE"
	EvSelectTime            engine.EventType = "SELECT_TIME"
	EvSubmitSchedule        engine.EventType = "SUBMIT_SCHEDULE"

	EvUpdateContactField  engine.EventType = "UPDATE_CONTACT_FIELD"
	EvSubmitContact       engine.EventType = "SUBMIT_CONTACT"
	EvLogin               engine.EventType = "LOGIN"
	EvContinueAsGuest     engine.EventType = "CONTINUE_AS_GUEST"
	EvSelectAccount       engine.EventType = "SELECT_ACCOUNT"
	EvConfirmPartialMatch engine.EventType = "CONFIRM_PARTIAL_MATCH"

	EvChooseChannel engine.EventType = "CHOOSE_CHANNEL"
	EvSubmitCode    engine.EventType = "SUBMIT_CODE"
	EvResendCode    engine.EventType = "RESEND_CODE"
	EvChangeChannel engine.EventType = "CHANGE_CHANNEL"

	EvSubmitOrganization engine.EventType = "SUBMIT_ORGANIZATION"
	EvViewAccount        engine.EventType = "VIEW_ACCOUNT"
	EvReset              engine.EventType = "RESET"
	EvLogout             engine.EventType = "LOGOUT"
)

// State ids shared by the flows. Flows without a step simply omit its states.
const (
	StBooting        engine.StateID = "booting"
	StLoadingCatalog engine.StateID = "loadingCatalog"
	StRestoring      engine.StateID = "restoring"

	StBrowsing         engine.StateID = "browsing"
	StBrowseCategories engine.StateID = "browsing.categories"
	StBrowseItems      engine.StateID = "browsing.items"
	StBrowseDetail     engine.StateID = "browsing.detail"
	StBrowseEditing    engine.StateID = "browsing.editing"
	StBrowseQuantity   engine.StateID = "browsing.quantity"

	StCartView engine.StateID = "cartView"
	StSchedule engine.StateID = "schedule"

	StGuest          engine.StateID = "guest"
	StGuestContact   engine.StateID = "guest.contact"
	StGuestResolving engine.StateID = "guest.resolving"
	StGuestRoute     engine.StateID = "guest.route"
	StGuestSelecting engine.StateID = "guest.selectingAccount"
	StGuestCreating  engine.StateID = "guest.creatingAccount"

	StLogin          engine.StateID = "login"
	StLoginContact   engine.StateID = "login.contact"
	StLoginResolving engine.StateID = "login.resolving"
	StLoginRoute     engine.StateID = "login.route"
	StLoginSelecting engine.StateID = "login.selectingAccount"

	StOrgDetails   engine.StateID = "orgDetails"
	StCreatingOrg  engine.StateID = "creatingOrg"
	StUpdatingType engine.StateID = "updatingType"
	StDecide       engine.StateID = "decide"
	StSavingCart   engine.StateID = "savingCart"

	StConfirmation engine.StateID = "confirmation"
	StAccountView  engine.StateID = "accountView"
	StFailure      engine.StateID = "failure"
)

// Remote actor names used for pending-call correlation.
const (
	actorFetchCatalog  = "fetchCatalog"
	actorCheckStatus   = "checkAccountStatus"
	actorSendOTP       = "sendOtp"
	actorVerifyOTP     = "verifyOtp"
	actorCreateAccount = "createAccount"
	actorCreateOrg     = "createOrganization"
	actorUpdateType    = "updateAccountType"
	actorSaveCart      = "saveCart"
)

// Options parameterizes the shared topology.
type Options struct {
	// Name identifies the flow.
	Name string
	// Scheduling adds the fulfillment date/time wizard step.
	Scheduling bool
	// OrgStep adds the organization/account-type step before confirmation.
	OrgStep bool
}

// Catering is the full wizard: scheduling plus organization details.
func Catering() (*engine.Definition, error) {
	return Build(Options{Name: "catering", Scheduling: true, OrgStep: true})
}

// EventRegistration schedules but has no organization step.
func EventRegistration() (*engine.Definition, error) {
	return Build(Options{Name: "events", Scheduling: true, OrgStep: false})
}

// Subscription has neither scheduling nor an organization step; plans carry
// their own cadence.
func Subscription() (*engine.Definition, error) {
	return Build(Options{Name: "subscription", Scheduling: false, OrgStep: false})
}

// ByName returns the named flow definition.
func ByName(name string) (*engine.Definition, error) {
	switch name {
	case "catering":
		return Catering()
	case "events":
		return EventRegistration()
	case "subscription":
		return Subscription()
	default:
		return nil, errUnknownFlow(name)
	}
}

type errUnknownFlow string

func (e errUnknownFlow) Error() string { return "unknown flow: " + string(e) }
