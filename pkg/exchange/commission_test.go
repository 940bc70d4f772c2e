package exchange

import "testing"

const one = 1_000_000_000_000_000_000 // 10^18 base units

// TestSplitCommissionBasic tests the canonical 1%/1% split
func TestSplitCommissionBasic(t *testing.T) {
	net, sys, tok, err := SplitCommission(one, 10, 10)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if net != one/100*98 {
		t.Errorf("net = %d, want %d", net, uint64(one)/100*98)
	}
	if sys != one/100 {
		t.Errorf("system cut = %d, want %d", sys, uint64(one)/100)
	}
	if tok != one/100 {
		t.Errorf("token cut = %d, want %d", tok, uint64(one)/100)
	}
	if net+sys+tok != one {
		t.Errorf("split does not sum to gross: %d + %d + %d != %d", net, sys, tok, uint64(one))
	}
}

// TestSplitCommissionZeroRates tests that zero rates pass everything through
func TestSplitCommissionZeroRates(t *testing.T) {
	net, sys, tok, err := SplitCommission(12345, 0, 0)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if net != 12345 || sys != 0 || tok != 0 {
		t.Errorf("got net=%d sys=%d tok=%d, want 12345/0/0", net, sys, tok)
	}
}

// TestSplitCommissionFlooring tests that cuts floor and the remainder stays in net
func TestSplitCommissionFlooring(t *testing.T) {
	// 999 * 10 / 1000 = 9.99 -> 9 each
	net, sys, tok, err := SplitCommission(999, 10, 10)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if sys != 9 {
		t.Errorf("system cut = %d, want 9", sys)
	}
	if tok != 9 {
		t.Errorf("token cut = %d, want 9", tok)
	}
	if net != 981 {
		t.Errorf("net = %d, want 981", net)
	}
	if net+sys+tok != 999 {
		t.Errorf("split does not sum to gross")
	}
}

// TestSplitCommissionSmallGross tests amounts too small for any cut
func TestSplitCommissionSmallGross(t *testing.T) {
	net, sys, tok, err := SplitCommission(50, 10, 10)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	// 50 * 10 / 1000 = 0.5 -> 0
	if sys != 0 || tok != 0 {
		t.Errorf("got sys=%d tok=%d, want 0/0", sys, tok)
	}
	if net != 50 {
		t.Errorf("net = %d, want 50", net)
	}
}

// TestSplitCommissionLargeGross tests that 10^18-scale amounts do not overflow
func TestSplitCommissionLargeGross(t *testing.T) {
	gross := uint64(10 * one) // 10^19, close to the uint64 ceiling
	net, sys, tok, err := SplitCommission(gross, 25, 5)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if sys != gross/1000*25 {
		t.Errorf("system cut = %d, want %d", sys, gross/1000*25)
	}
	if tok != gross/1000*5 {
		t.Errorf("token cut = %d, want %d", tok, gross/1000*5)
	}
	if net+sys+tok != gross {
		t.Errorf("split does not sum to gross")
	}
}

// TestSplitCommissionFullRates tests the 1000/0 and 500/500 corner cases
func TestSplitCommissionFullRates(t *testing.T) {
	net, sys, _, err := SplitCommission(1000, 1000, 0)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if net != 0 || sys != 1000 {
		t.Errorf("got net=%d sys=%d, want 0/1000", net, sys)
	}

	net, sys, tok, err := SplitCommission(1000, 500, 500)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if net != 0 || sys != 500 || tok != 500 {
		t.Errorf("got net=%d sys=%d tok=%d, want 0/500/500", net, sys, tok)
	}
}

// TestSplitCommissionInvalidRates tests rate validation
func TestSplitCommissionInvalidRates(t *testing.T) {
	if _, _, _, err := SplitCommission(1000, 1001, 0); err == nil {
		t.Error("expected error for system rate over 1000")
	}
	if _, _, _, err := SplitCommission(1000, 0, 1001); err == nil {
		t.Error("expected error for token rate over 1000")
	}
	// Combined rates over 1000 would make net underflow
	if _, _, _, err := SplitCommission(1000, 600, 600); err == nil {
		t.Error("expected error for combined rates over 1000")
	}
}
