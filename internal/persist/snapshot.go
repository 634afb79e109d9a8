package persist

import (
	"encoding/json"
	"errors"

	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/contact"
	"github.com/orderflow/orderflow/internal/domain/fulfillment"
	"github.com/orderflow/orderflow/internal/domain/session"
)

// Snapshot is the persisted subset of session state. Transient fields (the
// verification sid, OTP attempts, in-flight errors) are deliberately absent.
type Snapshot struct {
	Flow            string              `json:"flow"`
	State           string              `json:"state"`
	Cart            cart.Cart           `json:"cart"`
	Contact         contact.Info        `json:"contact"`
	Fulfillment     fulfillment.Details `json:"fulfillment"`
	EditingItem     *cart.LineItem      `json:"editingItem,omitempty"`
	AccountID       string              `json:"accountId"`
	IsAuthenticated bool                `json:"isAuthenticated"`
	IsVerified      bool                `json:"isVerified"`
}

// Encode serializes the persisted subset of a context.
func Encode(c *session.Context, state string) ([]byte, error) {
	snap := Snapshot{
		Flow:            c.Flow,
		State:           state,
		Cart:            c.Cart,
		Contact:         c.Contact,
		Fulfillment:     c.Fulfillment,
		EditingItem:     c.EditingItem,
		AccountID:       c.AccountID,
		IsAuthenticated: c.IsAuthenticated,
		IsVerified:      c.IsVerified,
	}
	return json.Marshal(snap)
}

// Decode parses and validates a stored snapshot. Every malformed or
// type-mismatched field is replaced by its default rather than propagated;
// the only hard error is a record that is not a JSON object at all.
func Decode(raw []byte) (*Snapshot, error) {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.New("snapshot is not a JSON object")
	}
	snap := &Snapshot{}
	snap.Flow = decodeString(wire["flow"], "")
	snap.State = decodeString(wire["state"], "")
	snap.Cart = decodeCart(wire["cart"])
	snap.Contact = decodeContact(wire["contact"])
	snap.Fulfillment = decodeFulfillment(wire["fulfillment"])
	snap.EditingItem = decodeEditingItem(wire["editingItem"])
	snap.AccountID = decodeString(wire["accountId"], "")
	snap.IsAuthenticated = decodeBool(wire["isAuthenticated"], false)
	snap.IsVerified = decodeBool(wire["isVerified"], false)

	// Auth flags are derived from the account id; a snapshot claiming
	// authentication without an id violates the resolution invariant.
	if snap.AccountID == "" {
		snap.IsAuthenticated = false
		snap.IsVerified = false
	}
	return snap, nil
}

// Rehydrate merges a validated snapshot over a defaults context:
// finalState = defaults merged with validated(persisted), key by key.
func Rehydrate(defaults *session.Context, snap *Snapshot) {
	if snap == nil {
		return
	}
	defaults.Cart = snap.Cart
	if snap.Contact != (contact.Info{}) {
		defaults.Contact = snap.Contact
	}
	if snap.Fulfillment.Type != "" {
		f := snap.Fulfillment
		f.Address = fulfillment.MergeAddress(defaults.Fulfillment.Address, snap.Fulfillment.Address)
		defaults.Fulfillment = f
	}
	if snap.EditingItem != nil {
		defaults.EditingItem = snap.EditingItem
	}
	if snap.AccountID != "" {
		defaults.AccountID = snap.AccountID
		defaults.IsAuthenticated = snap.IsAuthenticated
		defaults.IsVerified = snap.IsVerified
	}
}

// decodeEditingItem discards a stored editing item that is not a well-formed
// line item rather than trusting it.
func decodeEditingItem(raw json.RawMessage) *cart.LineItem {
	if len(raw) == 0 {
		return nil
	}
	var item cart.LineItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil
	}
	item.Signature = cart.NormalizeSignature(item.Modifiers)
	if err := item.Validate(); err != nil {
		return nil
	}
	return &item
}

func decodeString(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	return s
}

func decodeBool(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return def
	}
	return b
}

// decodeCart rebuilds the cart through Add so every restored line is
// re-validated, its signature recomputed, and duplicate identities re-merged.
func decodeCart(raw json.RawMessage) cart.Cart {
	var out cart.Cart
	if len(raw) == 0 {
		return out
	}
	var stored cart.Cart
	if err := json.Unmarshal(raw, &stored); err != nil {
		return cart.Cart{}
	}
	for _, item := range stored.Items {
		_ = out.Add(item)
	}
	return out
}

func decodeContact(raw json.RawMessage) contact.Info {
	var info contact.Info
	if len(raw) == 0 {
		return info
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return contact.Info{}
	}
	info.FirstName = decodeString(wire["firstName"], "")
	info.LastName = decodeString(wire["lastName"], "")
	info.Email = decodeString(wire["email"], "")
	info.Phone = decodeString(wire["phone"], "")
	info.OrganizationName = decodeString(wire["organizationName"], "")
	info.AccountType = decodeString(wire["accountType"], "")
	return info
}

func decodeFulfillment(raw json.RawMessage) fulfillment.Details {
	var d fulfillment.Details
	if len(raw) == 0 {
		return d
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fulfillment.Details{}
	}
	t := fulfillment.Type(decodeString(wire["type"], ""))
	if fulfillment.ValidateType(t) == nil {
		d.Type = t
	}
	d.LocationID = decodeString(wire["locationId"], "")
	d.SelectedDate = decodeString(wire["selectedDate"], "")
	d.SelectedTime = decodeString(wire["selectedTime"], "")
	d.Address = decodeAddress(wire["address"])

	// Re-apply the type exclusivity rule in case the stored record mixed
	// pickup and delivery fields.
	switch d.Type {
	case fulfillment.TypePickup:
		d.Address = fulfillment.Address{}
	case fulfillment.TypeDelivery:
		d.LocationID = ""
	}
	return d
}

func decodeAddress(raw json.RawMessage) fulfillment.Address {
	var a fulfillment.Address
	if len(raw) == 0 {
		return a
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fulfillment.Address{}
	}
	a.Line1 = decodeString(wire["line1"], "")
	a.Line2 = decodeString(wire["line2"], "")
	a.City = decodeString(wire["city"], "")
	a.State = decodeString(wire["state"], "")
	a.Zip = decodeString(wire["zip"], "")
	return a
}
