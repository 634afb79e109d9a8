package session

import (
	"errors"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/fulfillment"
)

// VerificationSID is the opaque correlation token returned by the OTP send
// step. It is typed so a token from one verification attempt cannot be
// confused with an unrelated string.
type VerificationSID string

// IsZero reports whether no verification session is in flight.
func (s VerificationSID) IsZero() bool { return s == "" }

// OTPChannel is the channel an OTP is delivered over.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelSMS   OTPChannel = "sms"
)

// ValidateChannel rejects unknown OTP channels.
func ValidateChannel(c OTPChannel) error {
	switch c {
	case ChannelEmail, ChannelSMS:
		return nil
	default:
		return errors.New("invalid otp channel")
	}
}

// Overlay is the ambient region of session state: flat flags that ride
// alongside the hierarchical flow and are mutated by global handlers only.
type Overlay struct {
	CartDrawerOpen  bool `json:"cartDrawerOpen"`
	PackagingResets int  `json:"packagingResets"`
}

// Context is the per-session state bag. It is owned by the state machine and
// mutated only by transition actions.
type Context struct {
	SessionID uuid.UUID `json:"sessionId"`
	Flow      string    `json:"flow"`

	Cart        cart.Cart           `json:"cart"`
	Contact     contact.Info        `json:"contact"`
	Fulfillment fulfillment.Details `json:"fulfillment"`

	// AccountID empty means not yet resolved to a backend account.
	AccountID       string `json:"accountId"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsVerified      bool   `json:"isVerified"`

	// PotentialAccounts holds partial-match candidates awaiting an explicit
	// user decision; cleared once resolved.
	PotentialAccounts []account.Account `json:"potentialAccounts,omitempty"`
	SelectedAccountID string            `json:"-"`
	SelectedNewPerson bool              `json:"-"`

	// LastResolution and ResolvedMatch are the transient outcome of the most
	// recent resolution pass, consumed by the routing pseudo-state.
	LastResolution account.Classification `json:"-"`
	ResolvedMatch  *account.Account       `json:"-"`

	// OrganizationID is set once an organization has been created upstream.
	OrganizationID string `json:"organizationId,omitempty"`

	// EditingItem is the line item being customized in the browse flow.
	EditingItem *cart.LineItem `json:"editingItem,omitempty"`

	// ResumeState is the leaf recorded in the rehydrated snapshot, consulted
	// once by the restore pseudo-state. Never persisted itself.
	ResumeState string `json:"-"`

	// Transient OTP session state. Never persisted.
	OTPChannel  OTPChannel      `json:"-"`
	SID         VerificationSID `json:"-"`
	OTPAttempts int             `json:"-"`

	// LastError is the single user-visible error scoped to the active state.
	LastError string `json:"lastError,omitempty"`

	Overlay Overlay `json:"overlay"`
}

// New returns a Context with hard defaults for the given flow.
func New(flow string) *Context {
	return &Context{
		SessionID: uuid.New(),
		Flow:      flow,
		Fulfillment: fulfillment.Details{
			Type: fulfillment.TypePickup,
		},
	}
}

// Reset restores defaults, keeping the session id and flow. Fired on
// logout/reset events.
func (c *Context) Reset() {
	id, flow := c.SessionID, c.Flow
	*c = *New(flow)
	c.SessionID = id
}

// AdoptAccount records a resolved backend identity: sets the account id,
// merges the server profile over local contact fields, and clears the
// candidate list. This is the only way an id enters the context besides
// creation.
func (c *Context) AdoptAccount(acc account.Account) {
	c.AccountID = acc.ID
	c.IsAuthenticated = true
	c.Contact.MergeServer(acc.Profile())
	c.PotentialAccounts = nil
	c.SelectedAccountID = ""
	c.SelectedNewPerson = false
	c.ResolvedMatch = nil
}

// ClearVerification drops the in-flight OTP session. Fired on reset, channel
// change, and terminal transitions.
func (c *Context) ClearVerification() {
	c.SID = ""
	c.OTPChannel = ""
	c.OTPAttempts = 0
}

// ClearAuth drops resolved identity along with auth flags.
func (c *Context) ClearAuth() {
	c.AccountID = ""
	c.IsAuthenticated = false
	c.IsVerified = false
	c.PotentialAccounts = nil
	c.SelectedAccountID = ""
	c.SelectedNewPerson = false
	c.LastResolution = ""
	c.ResolvedMatch = nil
	c.OrganizationID = ""
	c.ClearVerification()
}

// SetError records the single visible error for the active state.
func (c *Context) SetError(msg string) { c.LastError = msg }

// ClearError removes it; called on every successful transition.
func (c *Context) ClearError() { c.LastError = "" }

// Clone returns a deep copy safe to hand to readers.
func (c *Context) Clone() *Context {
	out := *c
	out.Cart = c.Cart.Clone()
	if len(c.PotentialAccounts) > 0 {
		out.PotentialAccounts = make([]account.Account, len(c.PotentialAccounts))
		copy(out.PotentialAccounts, c.PotentialAccounts)
	}
	if c.ResolvedMatch != nil {
		m := *c.ResolvedMatch
		out.ResolvedMatch = &m
	}
	if c.EditingItem != nil {
		item := *c.EditingItem
		out.EditingItem = &item
	}
	return &out
}
