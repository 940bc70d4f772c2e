package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/xid"
)

// Side distinguishes the two order books kept per token.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide maps the wire form ("buy"/"sell") back to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// Order is a resting limit order held in an order book until it is
// cancelled or fully fulfilled. Remaining starts at the requested
// quantity and only decreases; an order with Remaining == 0 is removed
// from the book, never retained.
type Order struct {
	ID        string         `json:"id"`
	Owner     common.Address `json:"owner"`
	Token     common.Address `json:"token"`
	Side      Side           `json:"side"`
	Price     uint64         `json:"price"`     // quote units per token unit
	Remaining uint64         `json:"remaining"` // token units left to fill
}

// Commitment returns the ledger lock backing the order's remaining
// quantity: quote funds for a buy, token funds for a sell.
func (o *Order) Commitment() uint64 {
	if o.Side == Buy {
		return o.Remaining * o.Price
	}
	return o.Remaining
}

// newOrderID returns a fresh globally unique order id. xid values are
// sortable by creation time and not guessable from prior ids.
func newOrderID() string {
	return xid.New().String()
}
