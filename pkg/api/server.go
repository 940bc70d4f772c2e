// Package api exposes the exchange engine over REST and streams its
// events over WebSocket. It is a pure observer-and-relay layer: every
// state change goes through the engine's operations and the engine's
// error taxonomy decides the HTTP status.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/PublicaIO/exchange-core/pkg/exchange"
)

// Server handles REST API and WebSocket connections
type Server struct {
	engine *exchange.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates a new API server around an engine. Wire the
// returned server's Emitter() into the engine config so events reach
// WebSocket subscribers.
func NewServer(engine *exchange.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger.Sugar(),
	}
	s.setupRoutes()
	return s
}

// Emitter returns an exchange.Emitter that broadcasts every engine
// event to subscribed WebSocket clients.
func (s *Server) Emitter() exchange.Emitter {
	return exchange.EmitterFunc(s.hub.BroadcastEvent)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Token registry
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleRegisterToken).Methods("POST")
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/commission", s.handleSetCommission).Methods("POST")

	// Order books
	api.HandleFunc("/tokens/{address}/orders/{side}", s.handleListOrders).Methods("GET")
	api.HandleFunc("/tokens/{address}/orders/{side}/{id}", s.handleGetOrder).Methods("GET")

	// Custody
	api.HandleFunc("/accounts/{address}/balances/{token}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")

	// Trading
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/fulfill", s.handleFulfillOrder).Methods("POST")

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP dispatches to the router. Exposed so the server can be
// mounted or driven by httptest directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	addrs := s.engine.RegisteredTokens()
	response := make([]TokenInfo, 0, len(addrs))
	for _, addr := range addrs {
		rec, err := s.engine.RegisteredToken(addr)
		if err != nil {
			continue
		}
		response = append(response, TokenInfo{
			Address:        addr.Hex(),
			Name:           rec.Name,
			CommissionRate: rec.CommissionRate,
			Beneficiary:    rec.Beneficiary.Hex(),
		})
	}
	respondJSON(w, response)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	rec, err := s.engine.RegisteredToken(addr)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, TokenInfo{
		Address:        addr.Hex(),
		Name:           rec.Name,
		CommissionRate: rec.CommissionRate,
		Beneficiary:    rec.Beneficiary.Hex(),
	})
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) || !common.IsHexAddress(req.Beneficiary) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	err := s.engine.RegisterToken(
		common.HexToAddress(req.Address),
		req.Name,
		req.CommissionRate,
		common.HexToAddress(req.Beneficiary),
	)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "registered", "address": req.Address})
}

func (s *Server) handleSetCommission(w http.ResponseWriter, r *http.Request) {
	var req SetCommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) || !common.IsHexAddress(req.Beneficiary) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	err := s.engine.SetSystemCommission(
		common.HexToAddress(req.Caller),
		req.Rate,
		common.HexToAddress(req.Beneficiary),
	)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	side, ok := sideVar(w, r)
	if !ok {
		return
	}

	var (
		ids []string
		err error
	)
	if side == exchange.Buy {
		ids, err = s.engine.BuyOrderIDs(addr)
	} else {
		ids, err = s.engine.SellOrderIDs(addr)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, OrderListResponse{Token: addr.Hex(), Side: side.String(), Orders: ids})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	side, ok := sideVar(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	var (
		o   exchange.Order
		err error
	)
	if side == exchange.Buy {
		o, err = s.engine.BuyOrder(addr, id)
	} else {
		o, err = s.engine.SellOrder(addr, id)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, OrderInfo{
		ID:        o.ID,
		Token:     o.Token.Hex(),
		Owner:     o.Owner.Hex(),
		Side:      o.Side.String(),
		Price:     o.Price,
		Remaining: o.Remaining,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	tok, ok := addressVar(w, r, "token")
	if !ok {
		return
	}
	free := s.engine.FreeBalanceOf(tok, owner)
	locked := s.engine.LockedBalanceOf(tok, owner)
	respondJSON(w, BalanceInfo{
		Token:  tok.Hex(),
		Owner:  owner.Hex(),
		Free:   free,
		Locked: locked,
		Total:  free + locked,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeFundsRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Deposit(req.owner, req.token, req.amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "deposited"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeFundsRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Withdraw(req.owner, req.token, req.amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "withdrawn"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Owner) || !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	side, ok := exchange.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	owner := common.HexToAddress(req.Owner)
	tok := common.HexToAddress(req.Token)

	var (
		id  string
		err error
	)
	if side == exchange.Buy {
		id, err = s.engine.PlaceBuyOrder(owner, tok, req.Quantity, req.Price)
	} else {
		id, err = s.engine.PlaceSellOrder(owner, tok, req.Quantity, req.Price)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, PlaceOrderResponse{Status: "placed", OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) || !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	side, ok := exchange.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	caller := common.HexToAddress(req.Caller)
	tok := common.HexToAddress(req.Token)

	var err error
	if side == exchange.Buy {
		err = s.engine.CancelBuyOrder(caller, tok, req.OrderID)
	} else {
		err = s.engine.CancelSellOrder(caller, tok, req.OrderID)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "canceled", "orderId": req.OrderID})
}

func (s *Server) handleFulfillOrder(w http.ResponseWriter, r *http.Request) {
	var req FulfillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Taker) || !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	side, ok := exchange.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	taker := common.HexToAddress(req.Taker)
	tok := common.HexToAddress(req.Token)

	var err error
	if side == exchange.Buy {
		err = s.engine.FulfillBuyOrder(taker, tok, req.OrderID, req.Quantity)
	} else {
		err = s.engine.FulfillSellOrder(taker, tok, req.OrderID, req.Quantity)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "fulfilled", "orderId": req.OrderID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

type fundsRequest struct {
	owner  common.Address
	token  common.Address
	amount uint64
}

func decodeFundsRequest(w http.ResponseWriter, r *http.Request) (fundsRequest, bool) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return fundsRequest{}, false
	}
	if !common.IsHexAddress(req.Owner) || !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return fundsRequest{}, false
	}
	return fundsRequest{
		owner:  common.HexToAddress(req.Owner),
		token:  common.HexToAddress(req.Token),
		amount: req.Amount,
	}, true
}

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid address", v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func sideVar(w http.ResponseWriter, r *http.Request) (exchange.Side, bool) {
	v := mux.Vars(r)["side"]
	side, ok := exchange.ParseSide(v)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", v)
		return 0, false
	}
	return side, true
}

// respondEngineError translates the engine's error taxonomy into an
// HTTP status so clients can distinguish failure kinds.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrUnknownAsset),
		errors.Is(err, exchange.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrAlreadyRegistered):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrInsufficientFreeBalance),
		errors.Is(err, exchange.ErrTransferFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, exchange.ErrInvalidParameter),
		errors.Is(err, exchange.ErrExceedsOrderRemaining),
		errors.Is(err, exchange.ErrInvalidCommissionConfiguration):
		status = http.StatusBadRequest
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
