package engine

import (
	"github.com/orderflow/orderflow/internal/domain/cart"
	"github.com/orderflow/orderflow/internal/domain/fulfillment"
)

// Event is a machine input: either a domain event fired by the UI or an
// internal actor settlement. Payload fields are optional and event-specific.
type Event struct {
	Type EventType `json:"type"`

	Item     *cart.LineItem `json:"item,omitempty"`
	ItemKey  string         `json:"itemKey,omitempty"`
	Quantity int            `json:"quantity,omitempty"`

	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`

	Channel string `json:"channel,omitempty"`
	Code    string `json:"code,omitempty"`

	AccountID string `json:"accountId,omitempty"`
	NewPerson bool   `json:"newPerson,omitempty"`

	Category        string               `json:"category,omitempty"`
	FulfillmentType string               `json:"fulfillmentType,omitempty"`
	LocationID      string               `json:"locationId,omitempty"`
	Address         *fulfillment.Address `json:"address,omitempty"`
	Date            string               `json:"date,omitempty"`
	TimeSlot        string               `json:"timeSlot,omitempty"`

	// Actor settlement payload; never serialized.
	Actor  string      `json:"-"`
	Result interface{} `json:"-"`
	Err    error       `json:"-"`
}
