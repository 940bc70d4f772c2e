package exchange

import "github.com/ethereum/go-ethereum/common"

// Events are fire-and-forget notifications for observers such as the
// API layer. They are emitted after an operation has committed and are
// not part of the core's correctness contract.

type TokenAddedToSystem struct {
	Token common.Address `json:"token"`
	Name  string         `json:"name"`
}

type BuyOrderCreated struct {
	Token    common.Address `json:"token"`
	OrderID  string         `json:"order_id"`
	Owner    common.Address `json:"owner"`
	Quantity uint64         `json:"quantity"`
	Price    uint64         `json:"price"`
}

type SellOrderCreated struct {
	Token    common.Address `json:"token"`
	OrderID  string         `json:"order_id"`
	Owner    common.Address `json:"owner"`
	Quantity uint64         `json:"quantity"`
	Price    uint64         `json:"price"`
}

type BuyOrderCanceled struct {
	Token   common.Address `json:"token"`
	OrderID string         `json:"order_id"`
}

type SellOrderCanceled struct {
	Token   common.Address `json:"token"`
	OrderID string         `json:"order_id"`
}

type BuyOrderFulfilled struct {
	Token     common.Address `json:"token"`
	OrderID   string         `json:"order_id"`
	Taker     common.Address `json:"taker"`
	Quantity  uint64         `json:"quantity"`
	QuoteDue  uint64         `json:"quote_due"`  // gross quote value of the fill
	Remaining uint64         `json:"remaining"`  // left on the order, 0 when removed
}

type SellOrderFulfilled struct {
	Token     common.Address `json:"token"`
	OrderID   string         `json:"order_id"`
	Taker     common.Address `json:"taker"`
	Quantity  uint64         `json:"quantity"`
	QuoteDue  uint64         `json:"quote_due"`
	Remaining uint64         `json:"remaining"`
}

// Emitter receives engine events. Implementations must not call back
// into the engine and should return quickly; slow consumers are
// expected to buffer on their side.
type Emitter interface {
	Emit(event any)
}

type nopEmitter struct{}

func (nopEmitter) Emit(any) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event any)

func (f EmitterFunc) Emit(event any) { f(event) }
