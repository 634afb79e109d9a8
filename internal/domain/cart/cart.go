package cart

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Modifier is a selected customization on a line item.
type Modifier struct {
	GroupID  string `json:"groupId"`
	OptionID string `json:"optionId"`
	Quantity int    `json:"quantity"`
}

// LineItem is one cart entry. Identity is (ItemID, Signature); two entries in
// the same cart never share an identity.
type LineItem struct {
	ItemID         string     `json:"itemId"`
	Name           string     `json:"name"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	Modifiers      []Modifier `json:"modifiers,omitempty"`
	Signature      string     `json:"signature"`
}

// NormalizeSignature encodes a modifier set into a stable, order-independent
// string so that the same customizations always produce the same identity.
func NormalizeSignature(mods []Modifier) string {
	if len(mods) == 0 {
		return ""
	}
	parts := make([]string, 0, len(mods))
	for _, m := range mods {
		qty := m.Quantity
		if qty <= 0 {
			qty = 1
		}
		parts = append(parts, fmt.Sprintf("%s:%s:%d",
			strings.ToLower(strings.TrimSpace(m.GroupID)),
			strings.ToLower(strings.TrimSpace(m.OptionID)),
			qty))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Validate checks a line item before it may enter a cart.
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.ItemID) == "" {
		return errors.New("item id is required")
	}
	if li.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if li.UnitPriceCents < 0 {
		return errors.New("unit price must not be negative")
	}
	return nil
}

// Key returns the line identity.
func (li *LineItem) Key() string {
	return li.ItemID + "\x00" + li.Signature
}

// Cart is an ordered collection of line items.
type Cart struct {
	Items []LineItem `json:"items"`
}

// Add merges an item into the cart. An item whose identity is already present
// has its quantity incremented instead of producing a second entry.
func (c *Cart) Add(item LineItem) error {
	item.Signature = NormalizeSignature(item.Modifiers)
	if err := item.Validate(); err != nil {
		return err
	}
	key := item.Key()
	for i := range c.Items {
		if c.Items[i].Key() == key {
			c.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

// Remove deletes the entry with the given identity. Unknown keys are a no-op.
func (c *Cart) Remove(key string) {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// SetQuantity replaces the quantity of an entry; zero or negative removes it.
func (c *Cart) SetQuantity(key string, quantity int) {
	if quantity <= 0 {
		c.Remove(key)
		return
	}
	for i := range c.Items {
		if c.Items[i].Key() == key {
			c.Items[i].Quantity = quantity
			return
		}
	}
}

// SubtotalCents sums unit price times quantity across entries.
func (c *Cart) SubtotalCents() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].UnitPriceCents * int64(c.Items[i].Quantity)
	}
	return total
}

// Count returns the number of distinct entries.
func (c *Cart) Count() int {
	return len(c.Items)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
}

// Clone returns a deep copy.
func (c *Cart) Clone() Cart {
	out := Cart{}
	if len(c.Items) == 0 {
		return out
	}
	out.Items = make([]LineItem, len(c.Items))
	copy(out.Items, c.Items)
	for i := range out.Items {
		if len(c.Items[i].Modifiers) > 0 {
			out.Items[i].Modifiers = make([]Modifier, len(c.Items[i].Modifiers))
			copy(out.Items[i].Modifiers, c.Items[i].Modifiers)
		}
	}
	return out
}

// ValidateInvariants reports a violation of cart identity uniqueness. Used
// when accepting a rehydrated cart.
func (c *Cart) ValidateInvariants() error {
	seen := make(map[string]bool, len(c.Items))
	for i := range c.Items {
		key := c.Items[i].Key()
		if seen[key] {
			return fmt.Errorf("duplicate cart identity %q", c.Items[i].ItemID)
		}
		seen[key] = true
	}
	return nil
}
