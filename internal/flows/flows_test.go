package flows

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/engine"
	"github.com/orderflow/orderflow/internal/gateway"
	"github.com/orderflow/orderflow/internal/gateway/mocks"
)

var testCatalog = &gateway.Catalog{
	Menu: []gateway.MenuCategory{{
		ID:   "cat-1",
		Name: "Boxed Lunches",
		Items: []gateway.MenuItem{
			{ID: "item-1", Name: "Turkey Club Box", PriceCents: 1450},
		},
	}},
	Locations: []gateway.Location{
		{ID: "loc-1", Name: "Downtown", Address: "1 Main St"},
	},
}

func newFlowMachine(t *testing.T, def *engine.Definition, gw gateway.Gateway, policy engine.Policy) *engine.Machine {
	t.Helper()
	m := engine.New(def, gw, session.New(def.Name), policy, zerolog.Nop())
	t.Cleanup(m.Stop)
	return m
}

func waitIdle(t *testing.T, m *engine.Machine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitIdle(ctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
}

func send(t *testing.T, m *engine.Machine, ev engine.Event) {
	t.Helper()
	if err := m.Send(ev); err != nil {
		t.Fatalf("send %s in %s: %v", ev.Type, m.State(), err)
	}
	waitIdle(t, m)
}

func wantState(t *testing.T, m *engine.Machine, want engine.StateID) {
	t.Helper()
	if got := m.State(); got != want {
		t.Fatalf("state = %q, want %q", got, want)
	}
}

// boot starts the machine and drives it through catalog load into browsing.
func boot(t *testing.T, m *engine.Machine, gw *mocks.MockGateway) {
	t.Helper()
	gw.On("FetchCatalog", mock.Anything).Return(testCatalog, nil).Once()
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitIdle(t, m)
	wantState(t, m, StBrowseCategories)
}

func addLineItem(t *testing.T, m *engine.Machine) {
	t.Helper()
	send(t, m, engine.Event{Type: EvAddToCart, Item: &cart.LineItem{
		ItemID: "item-1", Name: "Turkey Club Box", UnitPriceCents: 1450, Quantity: 2,
	}})
}

func fillContact(t *testing.T, m *engine.Machine) {
	t.Helper()
	for field, value := range map[string]string{
		"firstName": "Dana",
		"lastName":  "Reyes",
		"email":     "dana@example.com",
		"phone":     "5035551234",
	} {
		send(t, m, engine.Event{Type: EvUpdateContactField, Field: field, Value: value})
	}
}

// driveToGuestContact walks cart review and scheduling up to the guest
// contact form.
func driveToGuestContact(t *testing.T, m *engine.Machine) {
	t.Helper()
	addLineItem(t, m)
	send(t, m, engine.Event{Type: EvViewCart})
	send(t, m, engine.Event{Type: EvCheckout})
	wantState(t, m, StSchedule)
	send(t, m, engine.Event{Type: EvSelectLocation, LocationID: "loc-1"})
	send(t, m, engine.Event{Type: EvSelectDate, Date: "2026-09-12"})
	send(t, m, engine.Event{Type: EvSelectTime, TimeSlot: "11:30"})
	send(t, m, engine.Event{Type: EvSubmitSchedule})
	wantState(t, m, StGuestContact)
}

func TestFlowDefinitionsBuild(t *testing.T) {
	for _, build := range []func() (*engine.Definition, error){Catering, EventRegistration, Subscription} {
		def, err := build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if def.Initial != StBooting {
			t.Fatalf("initial = %q", def.Initial)
		}
	}
	if _, err := ByName("catering"); err != nil {
		t.Fatalf("by name: %v", err)
	}
	if _, err := ByName("bogus"); err == nil {
		t.Fatal("expected unknown flow error")
	}
}

func TestCatalogFailureIsFatal(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("FetchCatalog", mock.Anything).
		Return(nil, &gateway.Failure{Kind: gateway.KindTransport, Op: "fetch catalog", Message: "down"}).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitIdle(t, m)
	wantState(t, m, StFailure)
	if m.Context().LastError == "" {
		t.Fatal("expected a surfaced error")
	}
	if err := m.Send(engine.Event{Type: EvViewCart}); err == nil {
		t.Fatal("terminal state accepted an event")
	}
}

func TestGuestNewAccountCheckout(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-9", FirstName: "Dana", LastName: "Reyes", AccountType: "individual",
	}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StConfirmation)

	c := m.Context()
	if c.AccountID != "acct-9" {
		t.Fatalf("accountId = %q", c.AccountID)
	}
	if !c.IsAuthenticated || !c.IsVerified {
		t.Fatalf("auth flags = %v/%v, want true/true under trusted creation", c.IsAuthenticated, c.IsVerified)
	}
	gw.AssertExpectations(t)
}

func TestGuestNewAccountUntrustedRequiresOTP(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-9", AccountType: "individual",
	}, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelEmail, "dana@example.com").
		Return(session.VerificationSID("VE-1"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-1"), "123456").
		Return(&gateway.Claim{AccountID: "acct-9"}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	policy := engine.DefaultPolicy()
	policy.TrustNewAccounts = false
	m := newFlowMachine(t, def, gw, policy)
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, "guest.otp.choosingChannel")

	if m.Context().IsVerified {
		t.Fatal("verified before OTP under untrusted creation")
	}
	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "email"})
	wantState(t, m, "guest.otp.enteringCode")
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "123456"})
	wantState(t, m, StConfirmation)
	if !m.Context().IsVerified {
		t.Fatal("not verified after OTP")
	}
	gw.AssertExpectations(t)
}

func TestGuestExactMatchAdoptsThenVerifies(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	existing := account.Account{
		ID: "acct-1", FirstName: "Dana", LastName: "Reyes",
		Email: "dana@example.com", Phone: "5035551234", AccountType: "individual",
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{existing}, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelSMS, "5035551234").
		Return(session.VerificationSID("VE-2"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-2"), "654321").
		Return(&gateway.Claim{AccountID: "acct-1"}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, "guest.otp.choosingChannel")

	c := m.Context()
	if c.AccountID != "acct-1" || !c.IsAuthenticated || c.IsVerified {
		t.Fatalf("after exact match: id=%q auth=%v verified=%v", c.AccountID, c.IsAuthenticated, c.IsVerified)
	}

	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "sms"})
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "654321"})
	wantState(t, m, StConfirmation)
	if !m.Context().IsVerified {
		t.Fatal("not verified after OTP")
	}
	gw.AssertExpectations(t)
}

func TestGuestPartialMatchSelectionThenOTP(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	candidates := []account.Account{
		{ID: "acct-1", Email: "dana@example.com", Phone: "9715550000"},
		{ID: "acct-2", Email: "dana@example.com", Phone: "9715551111"},
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return(candidates, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelEmail, "dana@example.com").
		Return(session.VerificationSID("VE-3"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-3"), "000111").
		Return(&gateway.Claim{AccountID: "acct-2"}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StGuestSelecting)

	if got := len(m.Context().PotentialAccounts); got != 2 {
		t.Fatalf("candidates = %d, want 2", got)
	}

	// Picking an id that was never offered is rejected in place.
	if err := m.Send(engine.Event{Type: EvSelectAccount, AccountID: "acct-99"}); err == nil {
		t.Fatal("accepted an unlisted candidate")
	}
	wantState(t, m, StGuestSelecting)

	send(t, m, engine.Event{Type: EvSelectAccount, AccountID: "acct-2"})
	send(t, m, engine.Event{Type: EvConfirmPartialMatch})
	wantState(t, m, "guest.otp.choosingChannel")

	// Confirming adopts the pick immediately; only verification waits on the
	// code.
	c := m.Context()
	if c.AccountID != "acct-2" || !c.IsAuthenticated || c.IsVerified {
		t.Fatalf("after confirm: id=%q auth=%v verified=%v", c.AccountID, c.IsAuthenticated, c.IsVerified)
	}
	if len(c.PotentialAccounts) != 0 {
		t.Fatal("candidate list not cleared on confirm")
	}

	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "email"})
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "000111"})
	wantState(t, m, StConfirmation)

	c = m.Context()
	if c.AccountID != "acct-2" || !c.IsVerified {
		t.Fatalf("id=%q verified=%v", c.AccountID, c.IsVerified)
	}
	gw.AssertExpectations(t)
}

func TestGuestPartialMatchNewPersonCreates(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).
		Return([]account.Account{{ID: "acct-1", Email: "dana@example.com"}}, nil).Once()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-7", AccountType: "individual",
	}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StGuestSelecting)

	send(t, m, engine.Event{Type: EvSelectAccount, NewPerson: true})
	send(t, m, engine.Event{Type: EvConfirmPartialMatch})
	wantState(t, m, StConfirmation)
	if got := m.Context().AccountID; got != "acct-7" {
		t.Fatalf("accountId = %q", got)
	}
	gw.AssertExpectations(t)
}

func TestLoginOTPAttemptBudget(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	existing := account.Account{ID: "acct-1", Email: "dana@example.com", Phone: "5035551234"}
	invalid := &gateway.Failure{Kind: gateway.KindInvalidCode, Op: "verify otp", Message: "wrong code"}

	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{existing}, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelEmail, "dana@example.com").
		Return(session.VerificationSID("VE-4"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-4"), "000000").
		Return(nil, invalid).Twice()
	gw.On("SendOTP", mock.Anything, session.ChannelSMS, "5035551234").
		Return(session.VerificationSID("VE-5"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-5"), "424242").
		Return(&gateway.Claim{AccountID: "acct-1"}, nil).Once()

	policy := engine.DefaultPolicy()
	policy.OTPMaxAttempts = 2
	m := newFlowMachine(t, def, gw, policy)
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvLogin})
	wantState(t, m, StLoginContact)
	send(t, m, engine.Event{Type: EvUpdateContactField, Field: "email", Value: "dana@example.com"})
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, "login.otp.choosingChannel")

	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "email"})
	wantState(t, m, "login.otp.enteringCode")

	// First mismatch burns an attempt but keeps the verification session.
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "000000"})
	wantState(t, m, "login.otp.enteringCode")
	c := m.Context()
	if c.OTPAttempts != 1 || c.SID != "VE-4" {
		t.Fatalf("attempts=%d sid=%q after first mismatch", c.OTPAttempts, c.SID)
	}
	if c.LastError == "" {
		t.Fatal("expected mismatch error")
	}

	// Final mismatch tears the session down.
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "000000"})
	wantState(t, m, "login.otp.choosingChannel")
	c = m.Context()
	if !c.SID.IsZero() {
		t.Fatalf("sid = %q, want cleared after exhaustion", c.SID)
	}

	// A fresh send gets a fresh budget; a correct code signs the user in.
	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "sms"})
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "424242"})
	wantState(t, m, StAccountView)
	c = m.Context()
	if c.AccountID != "acct-1" || !c.IsVerified {
		t.Fatalf("id=%q verified=%v", c.AccountID, c.IsVerified)
	}
	gw.AssertExpectations(t)
}

func TestLoginPartialMatchSelectsAfterOTP(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	candidates := []account.Account{
		{ID: "acct-1", Email: "dana@example.com", Phone: "9715550000"},
		{ID: "acct-2", Email: "dana@example.com", Phone: "9715551111"},
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return(candidates, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelEmail, "dana@example.com").
		Return(session.VerificationSID("VE-6"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-6"), "111222").
		Return(&gateway.Claim{}, nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvLogin})
	send(t, m, engine.Event{Type: EvUpdateContactField, Field: "email", Value: "dana@example.com"})
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, "login.otp.choosingChannel")

	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "email"})
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "111222"})
	wantState(t, m, StLoginSelecting)

	send(t, m, engine.Event{Type: EvSelectAccount, AccountID: "acct-1"})
	wantState(t, m, StAccountView)
	c := m.Context()
	if c.AccountID != "acct-1" || !c.IsVerified {
		t.Fatalf("id=%q verified=%v", c.AccountID, c.IsVerified)
	}
	gw.AssertExpectations(t)
}

func TestLoginNoMatchRegresses(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvLogin})
	send(t, m, engine.Event{Type: EvUpdateContactField, Field: "email", Value: "nobody@example.com"})
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StLoginContact)
	if m.Context().LastError == "" {
		t.Fatal("expected a no-match error")
	}
	gw.AssertExpectations(t)
}

func TestOrganizationStepCreatesAndTypes(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()
	// The created account is typed organization but carries no organization
	// yet, so the organization step must run.
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-5", AccountType: "organization",
	}, nil).Once()
	gw.On("CreateOrganization", mock.Anything, mock.Anything).Return(&gateway.OrgAccount{
		ID: "org-1", Name: "Acme Corp",
	}, nil).Once()
	gw.On("UpdateAccountType", mock.Anything, "acct-5", "org-1", account.TypeOrganization).Return(nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StOrgDetails)

	send(t, m, engine.Event{Type: EvUpdateContactField, Field: "organizationName", Value: "Acme Corp"})
	send(t, m, engine.Event{Type: EvSubmitOrganization})
	wantState(t, m, StConfirmation)
	if got := m.Context().OrganizationID; got != "org-1" {
		t.Fatalf("organizationId = %q", got)
	}
	gw.AssertExpectations(t)
}

func TestSaveCartFailureRegressesToSchedule(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-9", AccountType: "individual",
	}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).
		Return(&gateway.Failure{Kind: gateway.KindTransport, Op: "save cart", Message: "timeout"}).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	driveToGuestContact(t, m)
	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StSchedule)
	if m.Context().LastError == "" {
		t.Fatal("expected a retryable save error")
	}

	// Resubmitting retries the save; the user is already verified.
	send(t, m, engine.Event{Type: EvSubmitSchedule})
	wantState(t, m, StConfirmation)
	gw.AssertExpectations(t)
}

func TestSubscriptionSkipsScheduling(t *testing.T) {
	def, err := Subscription()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{}, nil).Once()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&account.Account{
		ID: "acct-3", AccountType: "individual",
	}, nil).Once()
	gw.On("SaveCartSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)
	addLineItem(t, m)
	send(t, m, engine.Event{Type: EvViewCart})
	send(t, m, engine.Event{Type: EvCheckout})
	wantState(t, m, StGuestContact)

	fillContact(t, m)
	send(t, m, engine.Event{Type: EvSubmitContact})
	wantState(t, m, StConfirmation)
	gw.AssertExpectations(t)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvViewCart})
	if err := m.Send(engine.Event{Type: EvCheckout}); err == nil {
		t.Fatal("checkout accepted an empty cart")
	}
	wantState(t, m, StCartView)
	if m.Context().LastError == "" {
		t.Fatal("expected an empty-cart error")
	}
}

func TestResetClearsSessionAndReturnsToBrowsing(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	addLineItem(t, m)
	send(t, m, engine.Event{Type: EvViewCart})
	send(t, m, engine.Event{Type: EvReset})
	wantState(t, m, StBrowseCategories)
	if got := m.Context().Cart.Count(); got != 0 {
		t.Fatalf("cart count = %d after reset", got)
	}
}

func TestCartDrawerAndFulfillmentGlobals(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvOpenCartDrawer})
	wantState(t, m, StBrowseCategories)
	if !m.Context().Overlay.CartDrawerOpen {
		t.Fatal("drawer not open")
	}
	send(t, m, engine.Event{Type: EvCloseCartDrawer})
	if m.Context().Overlay.CartDrawerOpen {
		t.Fatal("drawer still open")
	}

	// Switching fulfillment type works anywhere and bumps the packaging
	// reset counter; re-selecting the same type does not.
	send(t, m, engine.Event{Type: EvSelectFulfillmentType, FulfillmentType: "delivery"})
	send(t, m, engine.Event{Type: EvSelectFulfillmentType, FulfillmentType: "delivery"})
	c := m.Context()
	if c.Overlay.PackagingResets != 1 {
		t.Fatalf("packaging resets = %d, want 1", c.Overlay.PackagingResets)
	}
	if c.Fulfillment.LocationID != "" {
		t.Fatal("location survived a switch to delivery")
	}
}

func TestBrowseCustomizationAddsSignedItem(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	gw := new(mocks.MockGateway)
	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvSelectCategory, Category: "cat-1"})
	wantState(t, m, StBrowseItems)
	send(t, m, engine.Event{Type: EvSelectItem, ItemKey: "item-1"})
	wantState(t, m, StBrowseDetail)
	send(t, m, engine.Event{Type: EvCustomizeItem, Item: &cart.LineItem{
		ItemID: "item-1", Name: "Turkey Club Box", UnitPriceCents: 1450,
		Modifiers: []cart.Modifier{
			{GroupID: "bread", OptionID: "sourdough", Quantity: 1},
		},
	}})
	wantState(t, m, StBrowseEditing)
	send(t, m, engine.Event{Type: EvSetItemQuantity, Quantity: 3})
	wantState(t, m, StBrowseQuantity)
	send(t, m, engine.Event{Type: EvAddToCart})
	wantState(t, m, StBrowseCategories)

	c := m.Context()
	if c.EditingItem != nil {
		t.Fatal("editing item not cleared after add")
	}
	if got := c.Cart.Count(); got != 1 {
		t.Fatalf("cart lines = %d, want 1", got)
	}
	if got := c.Cart.Items[0].Quantity; got != 3 {
		t.Fatalf("quantity = %d, want 3", got)
	}
	if c.Cart.Items[0].Signature == "" {
		t.Fatal("customized item has no signature")
	}
}

func TestLoginWhileVerifiedIsRejected(t *testing.T) {
	def, err := Catering()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	existing := account.Account{ID: "acct-1", Email: "dana@example.com", Phone: "5035551234"}
	gw := new(mocks.MockGateway)
	gw.On("CheckAccountStatus", mock.Anything, mock.Anything).Return([]account.Account{existing}, nil).Once()
	gw.On("SendOTP", mock.Anything, session.ChannelEmail, "dana@example.com").
		Return(session.VerificationSID("VE-7"), nil).Once()
	gw.On("VerifyOTP", mock.Anything, session.VerificationSID("VE-7"), "777888").
		Return(&gateway.Claim{AccountID: "acct-1"}, nil).Once()

	m := newFlowMachine(t, def, gw, engine.DefaultPolicy())
	boot(t, m, gw)

	send(t, m, engine.Event{Type: EvLogin})
	send(t, m, engine.Event{Type: EvUpdateContactField, Field: "email", Value: "dana@example.com"})
	send(t, m, engine.Event{Type: EvSubmitContact})
	send(t, m, engine.Event{Type: EvChooseChannel, Channel: "email"})
	send(t, m, engine.Event{Type: EvSubmitCode, Code: "777888"})
	wantState(t, m, StAccountView)

	if err := m.Send(engine.Event{Type: EvLogin}); err == nil {
		t.Fatal("second sign-in was accepted")
	}

	// Logging out drops the identity and returns to browsing.
	send(t, m, engine.Event{Type: EvLogout})
	wantState(t, m, StBrowseCategories)
	c := m.Context()
	if c.AccountID != "" || c.IsAuthenticated || c.IsVerified {
		t.Fatal("identity survived logout")
	}
}
