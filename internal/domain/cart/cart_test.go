package cart

import "testing"

func item(id string, qty int, mods ...Modifier) LineItem {
	return LineItem{ItemID: id, Name: id, UnitPriceCents: 500, Quantity: qty, Modifiers: mods}
}

func TestAddMergesSameIdentity(t *testing.T) {
	c := &Cart{}
	if err := c.Add(item("latte", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(item("latte", 2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("expected one entry, got %d", c.Count())
	}
	if c.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", c.Items[0].Quantity)
	}
}

func TestAddDistinguishesModifierSignatures(t *testing.T) {
	c := &Cart{}
	_ = c.Add(item("latte", 1, Modifier{GroupID: "milk", OptionID: "oat", Quantity: 1}))
	_ = c.Add(item("latte", 1, Modifier{GroupID: "milk", OptionID: "whole", Quantity: 1}))
	if c.Count() != 2 {
		t.Fatalf("expected two entries, got %d", c.Count())
	}
}

func TestSignatureOrderIndependent(t *testing.T) {
	a := NormalizeSignature([]Modifier{
		{GroupID: "milk", OptionID: "oat", Quantity: 1},
		{GroupID: "shots", OptionID: "extra", Quantity: 2},
	})
	b := NormalizeSignature([]Modifier{
		{GroupID: "SHOTS", OptionID: "Extra", Quantity: 2},
		{GroupID: "Milk", OptionID: "oat", Quantity: 1},
	})
	if a != b {
		t.Fatalf("signatures differ: %q vs %q", a, b)
	}
}

func TestSetQuantityRemovesAtZero(t *testing.T) {
	c := &Cart{}
	_ = c.Add(item("latte", 2))
	key := c.Items[0].Key()
	c.SetQuantity(key, 5)
	if c.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", c.Items[0].Quantity)
	}
	c.SetQuantity(key, 0)
	if c.Count() != 0 {
		t.Fatalf("expected empty cart, got %d entries", c.Count())
	}
}

func TestSubtotal(t *testing.T) {
	c := &Cart{}
	_ = c.Add(item("latte", 2))
	_ = c.Add(item("scone", 1))
	if got := c.SubtotalCents(); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	c := &Cart{}
	if err := c.Add(LineItem{ItemID: "", Quantity: 1}); err == nil {
		t.Fatal("expected error for missing item id")
	}
	if err := c.Add(LineItem{ItemID: "x", Quantity: 0}); err == nil {
		t.Fatal("expected error for zero quantity")
	}
}

func TestValidateInvariants(t *testing.T) {
	c := &Cart{Items: []LineItem{
		{ItemID: "a", Quantity: 1},
		{ItemID: "a", Quantity: 2},
	}}
	if err := c.ValidateInvariants(); err == nil {
		t.Fatal("expected duplicate identity error")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := &Cart{}
	_ = c.Add(item("latte", 1, Modifier{GroupID: "milk", OptionID: "oat", Quantity: 1}))
	clone := c.Clone()
	clone.Items[0].Quantity = 99
	clone.Items[0].Modifiers[0].OptionID = "whole"
	if c.Items[0].Quantity != 1 {
		t.Fatal("clone mutated source quantity")
	}
	if c.Items[0].Modifiers[0].OptionID != "oat" {
		t.Fatal("clone mutated source modifiers")
	}
}
