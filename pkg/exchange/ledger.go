package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// balanceKey identifies one custody cell in the ledger.
type balanceKey struct {
	Token common.Address
	Owner common.Address
}

// Balance is the custody state for one (owner, token) pair. Free funds
// can be withdrawn or committed to new orders; locked funds back
// resting orders and move only on cancel or fulfillment.
type Balance struct {
	Free   uint64 `json:"free"`
	Locked uint64 `json:"locked"`
}

// Total returns everything the ledger holds for the cell.
func (b Balance) Total() uint64 {
	return b.Free + b.Locked
}

// Ledger tracks free and locked custody balances per (owner, token)
// pair, the quote token included. Cells are created on first use and
// never removed; a missing cell reads as zero.
//
// Ledger is not safe for concurrent use on its own: the Engine
// serializes access, and the lock/unlock/settle primitives are only
// ever called together with the matching order-book mutation.
type Ledger struct {
	cells map[balanceKey]*Balance
}

func NewLedger() *Ledger {
	return &Ledger{cells: make(map[balanceKey]*Balance)}
}

func (l *Ledger) cell(token, owner common.Address) *Balance {
	k := balanceKey{Token: token, Owner: owner}
	b, ok := l.cells[k]
	if !ok {
		b = &Balance{}
		l.cells[k] = b
	}
	return b
}

// FreeOf returns the withdrawable balance, zero for unknown cells.
func (l *Ledger) FreeOf(token, owner common.Address) uint64 {
	if b, ok := l.cells[balanceKey{Token: token, Owner: owner}]; ok {
		return b.Free
	}
	return 0
}

// LockedOf returns the balance committed to resting orders.
func (l *Ledger) LockedOf(token, owner common.Address) uint64 {
	if b, ok := l.cells[balanceKey{Token: token, Owner: owner}]; ok {
		return b.Locked
	}
	return 0
}

// Of returns a copy of the cell for reads and persistence.
func (l *Ledger) Of(token, owner common.Address) Balance {
	if b, ok := l.cells[balanceKey{Token: token, Owner: owner}]; ok {
		return *b
	}
	return Balance{}
}

// TotalOf sums free plus locked across all owners of a token. Equals
// external deposits minus withdrawals for that token at all times.
func (l *Ledger) TotalOf(token common.Address) uint64 {
	var total uint64
	for k, b := range l.cells {
		if k.Token == token {
			total += b.Free + b.Locked
		}
	}
	return total
}

// Credit adds deposited funds to the owner's free balance.
func (l *Ledger) Credit(token, owner common.Address, amount uint64) {
	l.cell(token, owner).Free += amount
}

// Debit removes withdrawn funds from the owner's free balance.
func (l *Ledger) Debit(token, owner common.Address, amount uint64) error {
	b := l.cell(token, owner)
	if b.Free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, b.Free, amount)
	}
	b.Free -= amount
	return nil
}

// Lock moves funds from free to locked when an order is placed.
func (l *Ledger) Lock(token, owner common.Address, amount uint64) error {
	b := l.cell(token, owner)
	if b.Free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, b.Free, amount)
	}
	b.Free -= amount
	b.Locked += amount
	return nil
}

// Unlock releases an order's commitment back to free on cancellation.
// The caller guarantees amount never exceeds what was locked for the
// order being released; a shortfall here means the book and ledger
// disagree, which is unrecoverable.
func (l *Ledger) Unlock(token, owner common.Address, amount uint64) {
	b := l.cell(token, owner)
	if b.Locked < amount {
		panic(fmt.Sprintf("ledger: unlock %d exceeds locked %d for %s/%s",
			amount, b.Locked, token.Hex(), owner.Hex()))
	}
	b.Locked -= amount
	b.Free += amount
}

// Settle moves funds out of from's locked balance into to's free
// balance in one step, so no intermediate state exists where the funds
// are both unlocked and still owned by the order's owner.
func (l *Ledger) Settle(token, from, to common.Address, amount uint64) {
	b := l.cell(token, from)
	if b.Locked < amount {
		panic(fmt.Sprintf("ledger: settle %d exceeds locked %d for %s/%s",
			amount, b.Locked, token.Hex(), from.Hex()))
	}
	b.Locked -= amount
	l.cell(token, to).Free += amount
}

// Transfer moves free funds between owners within custody. Used during
// fulfillment for the taker's side of the trade.
func (l *Ledger) Transfer(token, from, to common.Address, amount uint64) error {
	b := l.cell(token, from)
	if b.Free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, b.Free, amount)
	}
	b.Free -= amount
	l.cell(token, to).Free += amount
	return nil
}
