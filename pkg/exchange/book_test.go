package exchange

import (
	"errors"
	"testing"
)

func resting(id string, remaining uint64) *Order {
	return &Order{ID: id, Token: tkn, Owner: usrA, Side: Buy, Price: 10, Remaining: remaining}
}

// TestBookInsertGet tests lookup of resting orders
func TestBookInsertGet(t *testing.T) {
	b := NewBook()
	b.Insert(resting("o1", 5))

	o, err := b.Get("o1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if o.Remaining != 5 {
		t.Errorf("remaining = %d, want 5", o.Remaining)
	}

	_, err = b.Get("missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// TestBookEnumerationOrder tests oldest-first enumeration
func TestBookEnumerationOrder(t *testing.T) {
	b := NewBook()
	b.Insert(resting("o1", 1))
	b.Insert(resting("o2", 1))
	b.Insert(resting("o3", 1))

	ids := b.IDs()
	want := []string{"o1", "o2", "o3"}
	if len(ids) != len(want) {
		t.Fatalf("len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	// Removal from the middle keeps the rest in order
	b.Remove("o2")
	ids = b.IDs()
	if len(ids) != 2 || ids[0] != "o1" || ids[1] != "o3" {
		t.Errorf("ids after remove = %v, want [o1 o3]", ids)
	}
}

// TestBookRemove tests removal semantics
func TestBookRemove(t *testing.T) {
	b := NewBook()
	b.Insert(resting("o1", 1))

	b.Remove("o1")
	if b.Has("o1") {
		t.Error("order still resting after remove")
	}
	if b.Len() != 0 {
		t.Errorf("len = %d, want 0", b.Len())
	}

	// Removing an unknown id is a no-op
	b.Remove("o1")
	b.Remove("never-existed")
}

// TestBookIDsIsACopy tests that enumeration survives later mutation
func TestBookIDsIsACopy(t *testing.T) {
	b := NewBook()
	b.Insert(resting("o1", 1))
	b.Insert(resting("o2", 1))

	ids := b.IDs()
	b.Remove("o1")
	if len(ids) != 2 || ids[0] != "o1" {
		t.Error("IDs snapshot changed after book mutation")
	}
}
