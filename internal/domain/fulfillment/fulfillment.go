package fulfillment

import "errors"

// Type represents how an order is fulfilled.
type Type string

const (
	TypePickup   Type = "pickup"
	TypeDelivery Type = "delivery"
)

// ValidateType rejects unknown fulfillment types.
func ValidateType(t Type) error {
	switch t {
	case TypePickup, TypeDelivery:
		return nil
	default:
		return errors.New("invalid fulfillment type")
	}
}

// Address is a delivery address. Fields are empty strings when unset.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

// IsEmpty reports whether no address field is filled.
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Details is the pickup/delivery configuration attached to an order.
type Details struct {
	Type         Type    `json:"type"`
	LocationID   string  `json:"locationId"`
	Address      Address `json:"address"`
	SelectedDate string  `json:"selectedDate"`
	SelectedTime string  `json:"selectedTime"`
}

// SetType switches the fulfillment type and resets fields that do not apply
// to the chosen type.
func (d *Details) SetType(t Type) error {
	if err := ValidateType(t); err != nil {
		return err
	}
	if d.Type == t {
		return nil
	}
	d.Type = t
	switch t {
	case TypePickup:
		d.Address = Address{}
	case TypeDelivery:
		d.LocationID = ""
	}
	return nil
}

// MergeAddress overlays persisted address fields onto a default address one
// key at a time, so a partially persisted address never wipes defaults
// wholesale.
func MergeAddress(def, persisted Address) Address {
	out := def
	if persisted.Line1 != "" {
		out.Line1 = persisted.Line1
	}
	if persisted.Line2 != "" {
		out.Line2 = persisted.Line2
	}
	if persisted.City != "" {
		out.City = persisted.City
	}
	if persisted.State != "" {
		out.State = persisted.State
	}
	if persisted.Zip != "" {
		out.Zip = persisted.Zip
	}
	return out
}
