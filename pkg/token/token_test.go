package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice    = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob      = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

// TestInMemoryTransfer tests balance movement
func TestInMemoryTransfer(t *testing.T) {
	tok := NewInMemory()
	tok.Mint(alice, 100)

	if err := tok.Transfer(alice, bob, 60); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if tok.BalanceOf(alice) != 40 || tok.BalanceOf(bob) != 60 {
		t.Errorf("balances = %d/%d, want 40/60", tok.BalanceOf(alice), tok.BalanceOf(bob))
	}

	err := tok.Transfer(alice, bob, 41)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

// TestInMemoryTransferFrom tests allowance consumption
func TestInMemoryTransferFrom(t *testing.T) {
	tok := NewInMemory()
	tok.Mint(alice, 100)

	// Spender without approval
	err := tok.TransferFrom(exchange, alice, exchange, 10)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}

	tok.Approve(alice, exchange, 50)
	if err := tok.TransferFrom(exchange, alice, exchange, 30); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	if tok.BalanceOf(exchange) != 30 {
		t.Errorf("exchange balance = %d, want 30", tok.BalanceOf(exchange))
	}
	if tok.Allowance(alice, exchange) != 20 {
		t.Errorf("allowance = %d, want 20", tok.Allowance(alice, exchange))
	}

	// Remaining allowance is too small
	err = tok.TransferFrom(exchange, alice, exchange, 21)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
}

// TestInMemoryTransferFromSelf tests that moving own funds needs no allowance
func TestInMemoryTransferFromSelf(t *testing.T) {
	tok := NewInMemory()
	tok.Mint(alice, 100)

	if err := tok.TransferFrom(alice, alice, bob, 100); err != nil {
		t.Fatalf("self transferFrom failed: %v", err)
	}
	if tok.BalanceOf(bob) != 100 {
		t.Errorf("balance = %d, want 100", tok.BalanceOf(bob))
	}
}

// TestRegistryResolve tests address-to-contract resolution
func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000AA")

	if _, err := r.Token(addr); err == nil {
		t.Error("expected error resolving unknown address")
	}

	tok := NewInMemory()
	r.Add(addr, tok)
	got, err := r.Token(addr)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Token(tok) {
		t.Error("resolved a different contract")
	}
}
