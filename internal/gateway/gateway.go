// Package gateway wraps the storefront backend's remote endpoints as typed
// actors. Each call is a plain request/response: it never retries internally
// and never blocks beyond its context deadline; retry policy belongs to the
// state machine.
package gateway

import (
	"context"

	"github.com/orderflow/orderflow/internal/domain/account"
	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/fulfillment"
	"github.com/orderflow/orderflow/internal/domain/session"
)

// ModifierOption is one selectable customization.
type ModifierOption struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// ModifierGroup groups customization options on a menu item.
type ModifierGroup struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Options []ModifierOption `json:"options"`
}

// MenuItem is a purchasable catalog item.
type MenuItem struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PriceCents     int64           `json:"price_cents"`
	ModifierGroups []ModifierGroup `json:"modifier_groups,omitempty"`
}

// MenuCategory is a named group of menu items.
type MenuCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// Location is a pickup location.
type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Catalog is the menu plus pickup locations loaded at boot.
type Catalog struct {
	Menu      []MenuCategory `json:"menu"`
	Locations []Location     `json:"locations"`
}

// Claim is the result of OTP verification: proof of channel possession for
// the account the verification session was opened against.
type Claim struct {
	AccountID string `json:"accountId"`
}

// OrgAccount is a backend organization record.
type OrgAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CartPayload is the server-side cart snapshot written at checkout.
type CartPayload struct {
	SessionID   string              `json:"sessionId"`
	AccountID   string              `json:"accountId"`
	Cart        cart.Cart           `json:"cart"`
	Fulfillment fulfillment.Details `json:"fulfillment"`
}

// Gateway is the set of remote actors the state machine may invoke.
type Gateway interface {
	// FetchCatalog loads the menu and locations. Failure is fatal for the
	// whole session.
	FetchCatalog(ctx context.Context) (*Catalog, error)
	// CheckAccountStatus returns every backend record overlapping the
	// submitted identifiers; classification happens in the caller.
	CheckAccountStatus(ctx context.Context, info contact.Info) ([]account.Account, error)
	// SendOTP opens a verification session on the given channel and returns
	// its correlation token.
	SendOTP(ctx context.Context, channel session.OTPChannel, identifier string) (session.VerificationSID, error)
	// VerifyOTP proves possession; fails with an invalid-code failure
	// distinct from transport failure.
	VerifyOTP(ctx context.Context, sid session.VerificationSID, code string) (*Claim, error)
	// CreateAccount registers a fresh account. An empty id in the response
	// is surfaced as a data-integrity failure, never silently accepted.
	CreateAccount(ctx context.Context, info contact.Info) (*account.Account, error)
	CreateOrganization(ctx context.Context, info contact.Info) (*OrgAccount, error)
	UpdateAccountType(ctx context.Context, accountID, orgID string, accountType account.Type) error
	SaveCartSnapshot(ctx context.Context, payload CartPayload) error
}
