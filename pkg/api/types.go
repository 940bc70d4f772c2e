package api

// API request/response types for REST endpoints and WebSocket messages

// TokenInfo represents a registered token's metadata
type TokenInfo struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	CommissionRate uint64 `json:"commissionRate"` // parts per thousand
	Beneficiary    string `json:"beneficiary"`
}

// BalanceInfo represents one custody cell
type BalanceInfo struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Free   uint64 `json:"free"`
	Locked uint64 `json:"locked"`
	Total  uint64 `json:"total"`
}

// OrderInfo represents a resting order
type OrderInfo struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     uint64 `json:"price"`
	Remaining uint64 `json:"remaining"`
}

// OrderListResponse carries a book's order ids, oldest first
type OrderListResponse struct {
	Token  string   `json:"token"`
	Side   string   `json:"side"`
	Orders []string `json:"orders"`
}

// RegisterTokenRequest is the payload for POST /api/v1/tokens
type RegisterTokenRequest struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	CommissionRate uint64 `json:"commissionRate"`
	Beneficiary    string `json:"beneficiary"`
}

// SetCommissionRequest is the payload for POST /api/v1/commission
type SetCommissionRequest struct {
	Caller      string `json:"caller"`
	Rate        uint64 `json:"rate"`
	Beneficiary string `json:"beneficiary"`
}

// FundsRequest is the payload for POST /api/v1/deposits and /api/v1/withdrawals
type FundsRequest struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

// PlaceOrderRequest is the payload for POST /api/v1/orders
type PlaceOrderRequest struct {
	Owner    string `json:"owner"`
	Token    string `json:"token"`
	Side     string `json:"side"`
	Quantity uint64 `json:"quantity"`
	Price    uint64 `json:"price"`
}

// PlaceOrderResponse is the response from order placement
type PlaceOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	Caller  string `json:"caller"`
	Token   string `json:"token"`
	Side    string `json:"side"`
	OrderID string `json:"orderId"`
}

// FulfillOrderRequest is the payload for POST /api/v1/orders/fulfill
type FulfillOrderRequest struct {
	Taker    string `json:"taker"`
	Token    string `json:"token"`
	Side     string `json:"side"` // side of the resting order
	OrderID  string `json:"orderId"`
	Quantity uint64 `json:"quantity"`
}

// WSSubscribeRequest is sent by a client to manage its channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders", "fills", "tokens"]
}

// WSEvent wraps a single engine event for the WebSocket stream
type WSEvent struct {
	Type string `json:"type"` // event name, e.g., "BuyOrderCreated"
	Data any    `json:"data"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
