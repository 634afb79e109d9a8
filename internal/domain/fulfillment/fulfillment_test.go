package fulfillment

import "testing"

func TestSetTypeSwitchToPickupClearsAddress(t *testing.T) {
	d := Details{
		Type:    TypeDelivery,
		Address: Address{Line1: "1 Main St", City: "Brooklyn", State: "NY", Zip: "11201"},
	}
	if err := d.SetType(TypePickup); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if !d.Address.IsEmpty() {
		t.Fatalf("expected address cleared, got %+v", d.Address)
	}
	d.LocationID = "loc-7"
	if d.LocationID != "loc-7" {
		t.Fatal("location must be settable after switch to pickup")
	}
}

func TestSetTypeSwitchToDeliveryClearsLocation(t *testing.T) {
	d := Details{Type: TypePickup, LocationID: "loc-7"}
	if err := d.SetType(TypeDelivery); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if d.LocationID != "" {
		t.Fatalf("expected location cleared, got %q", d.LocationID)
	}
}

func TestSetTypeSameTypeKeepsFields(t *testing.T) {
	d := Details{Type: TypePickup, LocationID: "loc-7", SelectedDate: "2026-09-01"}
	if err := d.SetType(TypePickup); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if d.LocationID != "loc-7" || d.SelectedDate != "2026-09-01" {
		t.Fatalf("fields reset on no-op switch: %+v", d)
	}
}

func TestSetTypeRejectsUnknown(t *testing.T) {
	var d Details
	if err := d.SetType(Type("drone")); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestMergeAddressKeyByKey(t *testing.T) {
	def := Address{State: "NY"}
	merged := MergeAddress(def, Address{Line1: "1 Main St", City: "Brooklyn"})
	if merged.Line1 != "1 Main St" || merged.City != "Brooklyn" {
		t.Fatalf("persisted fields missing: %+v", merged)
	}
	if merged.State != "NY" {
		t.Fatalf("default field clobbered: %+v", merged)
	}
}
