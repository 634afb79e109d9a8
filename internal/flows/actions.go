package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/fulfillment"
	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/engine"
	"github.com/orderflow/orderflow/internal/gateway"
)

// User-facing error messages surfaced through the session's error slot.
const (
	msgTransportRetry    = "Something went wrong. Please try again."
	msgAccountIntegrity  = "We couldn't finish setting up your account. Please contact support."
	msgCodeMismatch      = "That code didn't match. Please try again."
	msgTooManyCodes      = "Too many incorrect codes. Request a new one to continue."
	msgVerificationReset = "We couldn't reach the verification service. Please request a new code."
	msgSaveRetry         = "We couldn't save your order. Please try again."
)

// --- boot and restore ---

func startCatalogLoad(m *engine.Machine, _ engine.Event) error {
	gw := m.Gateway()
	m.Invoke(actorFetchCatalog, func(ctx context.Context) (interface{}, error) {
		return gw.FetchCatalog(ctx)
	})
	return nil
}

func storeCatalog(m *engine.Machine, ev engine.Event) error {
	cat, ok := ev.Result.(*gateway.Catalog)
	if !ok || cat == nil {
		return errors.New("catalog load returned no payload")
	}
	m.SetCatalog(cat)
	return nil
}

func clearResume(m *engine.Machine, _ engine.Event) error {
	m.Session().ResumeState = ""
	return nil
}

// --- browsing and cart ---

func beginCustomize(m *engine.Machine, ev engine.Event) error {
	if ev.Item == nil {
		return errors.New("no item to customize")
	}
	item := *ev.Item
	item.Signature = cart.NormalizeSignature(item.Modifiers)
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if err := item.Validate(); err != nil {
		return err
	}
	m.Session().EditingItem = &item
	return nil
}

func setEditingQuantity(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if c.EditingItem == nil {
		return errors.New("no item is being customized")
	}
	if ev.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	c.EditingItem.Quantity = ev.Quantity
	return nil
}

func discardEditing(m *engine.Machine, _ engine.Event) error {
	m.Session().EditingItem = nil
	return nil
}

// addToCart merges either the event's item or the in-progress customization
// into the cart.
func addToCart(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	var item cart.LineItem
	switch {
	case ev.Item != nil:
		item = *ev.Item
	case c.EditingItem != nil:
		item = *c.EditingItem
	default:
		return errors.New("no item to add")
	}
	if err := c.Cart.Add(item); err != nil {
		return err
	}
	c.EditingItem = nil
	return nil
}

func removeFromCart(m *engine.Machine, ev engine.Event) error {
	if ev.ItemKey == "" {
		return errors.New("missing item key")
	}
	m.Session().Cart.Remove(ev.ItemKey)
	return nil
}

func setCartQuantity(m *engine.Machine, ev engine.Event) error {
	if ev.ItemKey == "" {
		return errors.New("missing item key")
	}
	m.Session().Cart.SetQuantity(ev.ItemKey, ev.Quantity)
	return nil
}

func openCartDrawer(m *engine.Machine, _ engine.Event) error {
	m.Session().Overlay.CartDrawerOpen = true
	return nil
}

func closeCartDrawer(m *engine.Machine, _ engine.Event) error {
	m.Session().Overlay.CartDrawerOpen = false
	return nil
}

// --- fulfillment ---

// setFulfillmentType switches pickup/delivery. An actual switch bumps the
// packaging-reset counter so downstream surfaces recompute packaging.
func setFulfillmentType(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	t := fulfillment.Type(ev.FulfillmentType)
	switched := c.Fulfillment.Type != t
	if err := c.Fulfillment.SetType(t); err != nil {
		return err
	}
	if switched {
		c.Overlay.PackagingResets++
	}
	return nil
}

func selectLocation(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if c.Fulfillment.Type != fulfillment.TypePickup {
		return errors.New("locations apply to pickup only")
	}
	if ev.LocationID == "" {
		return errors.New("missing location")
	}
	if cat := m.LiveCatalog(); cat != nil {
		found := false
		for _, loc := range cat.Locations {
			if loc.ID == ev.LocationID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown location %q", ev.LocationID)
		}
	}
	c.Fulfillment.LocationID = ev.LocationID
	return nil
}

func setAddress(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if c.Fulfillment.Type != fulfillment.TypeDelivery {
		return errors.New("addresses apply to delivery only")
	}
	if ev.Address == nil || ev.Address.IsEmpty() {
		return errors.New("missing address")
	}
	c.Fulfillment.Address = *ev.Address
	return nil
}

func selectDate(m *engine.Machine, ev engine.Event) error {
	if ev.Date == "" {
		return errors.New("missing date")
	}
	c := m.Session()
	// A new date invalidates any previously chosen time slot.
	if c.Fulfillment.SelectedDate != ev.Date {
		c.Fulfillment.SelectedTime = ""
	}
	c.Fulfillment.SelectedDate = ev.Date
	return nil
}

func selectTime(m *engine.Machine, ev engine.Event) error {
	if ev.TimeSlot == "" {
		return errors.New("missing time slot")
	}
	c := m.Session()
	if c.Fulfillment.SelectedDate == "" {
		return errors.New("choose a date first")
	}
	c.Fulfillment.SelectedTime = ev.TimeSlot
	return nil
}

// validateSchedule gates leaving the scheduling step.
func validateSchedule(m *engine.Machine, _ engine.Event) error {
	f := m.Session().Fulfillment
	switch f.Type {
	case fulfillment.TypePickup:
		if f.LocationID == "" {
			return errors.New("choose a pickup location")
		}
	case fulfillment.TypeDelivery:
		if f.Address.IsEmpty() {
			return errors.New("enter a delivery address")
		}
	}
	if f.SelectedDate == "" || f.SelectedTime == "" {
		return errors.New("choose a date and time")
	}
	return nil
}

// --- contact and resolution ---

func updateContactField(m *engine.Machine, ev engine.Event) error {
	return m.Session().Contact.SetField(ev.Field, ev.Value)
}

func startResolution(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	if err := c.Contact.ValidateForSubmit(); err != nil {
		return err
	}
	info := c.Contact
	gw := m.Gateway()
	m.Invoke(actorCheckStatus, func(ctx context.Context) (interface{}, error) {
		return gw.CheckAccountStatus(ctx, info)
	})
	return nil
}

// startLoginResolution needs only one identifier, not a full profile.
func startLoginResolution(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	if err := c.Contact.ValidateForLogin(); err != nil {
		return err
	}
	info := c.Contact
	gw := m.Gateway()
	m.Invoke(actorCheckStatus, func(ctx context.Context) (interface{}, error) {
		return gw.CheckAccountStatus(ctx, info)
	})
	return nil
}

// recordResolution classifies the backend records and stages the outcome for
// the routing pseudo-state.
func recordResolution(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	records, _ := ev.Result.([]account.Account)
	res := account.Classify(c.Contact, records)
	c.LastResolution = res.Classification
	c.ResolvedMatch = res.Match
	c.PotentialAccounts = res.Candidates
	c.SelectedAccountID = ""
	c.SelectedNewPerson = false
	return nil
}

func failResolution(m *engine.Machine, ev engine.Event) error {
	m.Session().SetError(failureMessage(ev.Err))
	return nil
}

// adoptResolvedMatch adopts the single exact-match record; the routing guard
// guarantees it is present.
func adoptResolvedMatch(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	if c.ResolvedMatch == nil {
		return errors.New("no resolved account to adopt")
	}
	c.AdoptAccount(*c.ResolvedMatch)
	return nil
}

// selectCandidate records the user's pick from the partial-match list. An id
// must name a listed candidate; alternatively the user declares themselves a
// new person.
func selectCandidate(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if ev.NewPerson {
		c.SelectedAccountID = ""
		c.SelectedNewPerson = true
		return nil
	}
	if ev.AccountID == "" {
		return errors.New("select an account or choose new")
	}
	if _, ok := account.FindCandidate(c.PotentialAccounts, ev.AccountID); !ok {
		return fmt.Errorf("account %q is not a listed candidate", ev.AccountID)
	}
	c.SelectedAccountID = ev.AccountID
	c.SelectedNewPerson = false
	return nil
}

// confirmPartialMatch adopts the candidate the user selected. Adoption clears
// the candidate list and authenticates; possession is still proven in the
// verification sub-flow before the account counts as verified.
func confirmPartialMatch(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	acc, ok := account.FindCandidate(c.PotentialAccounts, c.SelectedAccountID)
	if !ok {
		return errors.New("no candidate selected")
	}
	c.AdoptAccount(acc)
	return nil
}

// adoptVerifiedSelection adopts the candidate the user picked after their
// channel was already proven, so verification is granted immediately.
func adoptVerifiedSelection(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	acc, ok := account.FindCandidate(c.PotentialAccounts, ev.AccountID)
	if !ok {
		return fmt.Errorf("account %q is not a listed candidate", ev.AccountID)
	}
	c.AdoptAccount(acc)
	c.IsVerified = true
	return nil
}

// --- account creation ---

func startCreateAccount(m *engine.Machine, _ engine.Event) error {
	info := m.Session().Contact
	gw := m.Gateway()
	m.Invoke(actorCreateAccount, func(ctx context.Context) (interface{}, error) {
		return gw.CreateAccount(ctx, info)
	})
	return nil
}

// adoptCreatedAccount adopts the fresh account. Verification is granted only
// when policy trusts newly created accounts.
func adoptCreatedAccount(m *engine.Machine, ev engine.Event) error {
	acc, ok := ev.Result.(*account.Account)
	if !ok || acc == nil || acc.ID == "" {
		return errors.New("account creation returned no account")
	}
	c := m.Session()
	c.AdoptAccount(*acc)
	if m.Policy().TrustNewAccounts {
		c.IsVerified = true
	}
	c.ClearVerification()
	return nil
}

func failCreateAccount(m *engine.Machine, ev engine.Event) error {
	m.Session().SetError(failureMessage(ev.Err))
	return nil
}

// --- organization and account type ---

func submitOrganization(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if ev.Value != "" {
		c.Contact.OrganizationName = ev.Value
	}
	t := c.Contact.AccountType
	if err := account.ValidateType(account.Type(t)); err != nil {
		return err
	}
	if t == string(account.TypeOrganization) && c.Contact.OrganizationName == "" {
		return errors.New("organization name is required")
	}
	return nil
}

func startCreateOrganization(m *engine.Machine, _ engine.Event) error {
	info := m.Session().Contact
	gw := m.Gateway()
	m.Invoke(actorCreateOrg, func(ctx context.Context) (interface{}, error) {
		return gw.CreateOrganization(ctx, info)
	})
	return nil
}

// recordOrganization stores the created org and chains straight into typing
// the account against it.
func recordOrganization(m *engine.Machine, ev engine.Event) error {
	org, ok := ev.Result.(*gateway.OrgAccount)
	if !ok || org == nil || org.ID == "" {
		return errors.New("organization creation returned no organization")
	}
	c := m.Session()
	c.OrganizationID = org.ID
	return startUpdateAccountType(m, engine.Event{})
}

func startUpdateAccountType(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	accountID := c.AccountID
	orgID := c.OrganizationID
	accType := account.Type(c.Contact.AccountType)
	gw := m.Gateway()
	m.Invoke(actorUpdateType, func(ctx context.Context) (interface{}, error) {
		return nil, gw.UpdateAccountType(ctx, accountID, orgID, accType)
	})
	return nil
}

func failOrganization(m *engine.Machine, ev engine.Event) error {
	m.Session().SetError(failureMessage(ev.Err))
	return nil
}

// --- cart save and completion ---

func startSaveCart(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	payload := gateway.CartPayload{
		SessionID:   c.SessionID.String(),
		AccountID:   c.AccountID,
		Cart:        c.Cart.Clone(),
		Fulfillment: c.Fulfillment,
	}
	gw := m.Gateway()
	m.Invoke(actorSaveCart, func(ctx context.Context) (interface{}, error) {
		return nil, gw.SaveCartSnapshot(ctx, payload)
	})
	return nil
}

func failSaveCart(m *engine.Machine, _ engine.Event) error {
	m.Session().SetError(msgSaveRetry)
	return nil
}

// --- global housekeeping ---

func resetSession(m *engine.Machine, _ engine.Event) error {
	m.Session().Reset()
	return nil
}

func logout(m *engine.Machine, _ engine.Event) error {
	m.Session().ClearAuth()
	return nil
}

func requireSignIn(m *engine.Machine, _ engine.Event) error {
	return errors.New("sign in to view your account")
}

func alreadySignedIn(m *engine.Machine, _ engine.Event) error {
	return errors.New("you are already signed in")
}

// failCatalog marks the fatal boot failure; the session is unusable without
// a catalog.
func failCatalog(m *engine.Machine, _ engine.Event) error {
	m.Session().SetError("We couldn't load the menu. Please try again later.")
	return nil
}

func rejectEmptyCart(m *engine.Machine, _ engine.Event) error {
	return errors.New("your cart is empty")
}

// failureMessage maps a gateway failure onto the message shown to the user.
// Data-integrity failures are not retryable and say so.
func failureMessage(err error) string {
	if gateway.IsDataIntegrity(err) {
		return msgAccountIntegrity
	}
	return msgTransportRetry
}

// chooseChannel validates the requested OTP channel against the identifiers
// actually on file and kicks off the send.
func chooseChannel(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	ch := session.OTPChannel(ev.Channel)
	if err := session.ValidateChannel(ch); err != nil {
		return err
	}
	identifier, err := channelIdentifier(c, ch)
	if err != nil {
		return err
	}
	c.OTPChannel = ch
	startSendOTP(m, ch, identifier)
	return nil
}

// resendCode reissues on the already-chosen channel.
func resendCode(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	if c.OTPChannel == "" {
		return errors.New("choose a channel first")
	}
	identifier, err := channelIdentifier(c, c.OTPChannel)
	if err != nil {
		return err
	}
	startSendOTP(m, c.OTPChannel, identifier)
	return nil
}

func startSendOTP(m *engine.Machine, ch session.OTPChannel, identifier string) {
	gw := m.Gateway()
	m.Invoke(actorSendOTP, func(ctx context.Context) (interface{}, error) {
		return gw.SendOTP(ctx, ch, identifier)
	})
}

func channelIdentifier(c *session.Context, ch session.OTPChannel) (string, error) {
	switch ch {
	case session.ChannelEmail:
		if contact.NormalizeEmail(c.Contact.Email) == "" {
			return "", errors.New("no email on file")
		}
		return contact.NormalizeEmail(c.Contact.Email), nil
	default:
		if contact.NormalizePhone(c.Contact.Phone) == "" {
			return "", errors.New("no phone on file")
		}
		return contact.NormalizePhone(c.Contact.Phone), nil
	}
}

// recordVerificationSession stores the sid and resets the attempt counter; a
// fresh send always starts a fresh attempt budget.
func recordVerificationSession(m *engine.Machine, ev engine.Event) error {
	sid, ok := ev.Result.(session.VerificationSID)
	if !ok || sid.IsZero() {
		return errors.New("verification send returned no session")
	}
	c := m.Session()
	c.SID = sid
	c.OTPAttempts = 0
	return nil
}

func failSendOTP(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.ClearVerification()
	c.SetError(msgVerificationReset)
	return nil
}

func startVerifyOTP(m *engine.Machine, ev engine.Event) error {
	c := m.Session()
	if c.SID.IsZero() {
		return errors.New("no verification in progress")
	}
	if ev.Code == "" {
		return errors.New("enter the code")
	}
	sid := c.SID
	code := ev.Code
	gw := m.Gateway()
	m.Invoke(actorVerifyOTP, func(ctx context.Context) (interface{}, error) {
		return gw.VerifyOTP(ctx, sid, code)
	})
	return nil
}

// changeChannel abandons the in-flight verification so the user can pick a
// different channel. The attempt budget resets with the next send.
func changeChannel(m *engine.Machine, _ engine.Event) error {
	m.Session().ClearVerification()
	return nil
}

// countCodeMismatch burns one attempt but keeps the verification session
// alive so the user can retry against the same sid.
func countCodeMismatch(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.OTPAttempts++
	c.SetError(msgCodeMismatch)
	return nil
}

// exhaustAttempts tears the verification session down after the final
// mismatch; only a fresh send can continue.
func exhaustAttempts(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.ClearVerification()
	c.SetError(msgTooManyCodes)
	return nil
}

func failVerifyTransport(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.ClearVerification()
	c.SetError(msgVerificationReset)
	return nil
}

// markVerified grants the verified flag on an already-adopted account and
// drops the spent verification session.
func markVerified(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.IsVerified = true
	c.ClearVerification()
	return nil
}

// adoptSoleCandidate adopts the single overlapping record proven by OTP.
func adoptSoleCandidate(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	if len(c.PotentialAccounts) != 1 {
		return errors.New("expected exactly one candidate")
	}
	c.AdoptAccount(c.PotentialAccounts[0])
	c.IsVerified = true
	c.ClearVerification()
	return nil
}

// holdForSelection keeps the candidate list but drops the spent sid; the
// selection step follows.
func holdForSelection(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.SID = ""
	c.OTPAttempts = 0
	return nil
}

// noSuchAccount surfaces the miss and lets the transition regress; aborting
// here would strand the session on a spent verification sid.
func noSuchAccount(m *engine.Machine, _ engine.Event) error {
	c := m.Session()
	c.ClearVerification()
	c.SetError("No account matches that contact info.")
	return nil
}

// submitOrgCreate validates the organization step and chains into creating
// the organization upstream.
func submitOrgCreate(m *engine.Machine, ev engine.Event) error {
	if err := submitOrganization(m, ev); err != nil {
		return err
	}
	return startCreateOrganization(m, ev)
}

// submitOrgType validates the organization step and types the account
// directly; no new organization is needed.
func submitOrgType(m *engine.Machine, ev engine.Event) error {
	if err := submitOrganization(m, ev); err != nil {
		return err
	}
	return startUpdateAccountType(m, ev)
}
