package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/PublicaIO/exchange-core/pkg/exchange"
	"github.com/PublicaIO/exchange-core/pkg/token"
)

var (
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	quoteTok = common.HexToAddress("0x0000000000000000000000000000000000000b41")
	dataTok  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	tokBen   = common.HexToAddress("0x1B00000000000000000000000000000000000000")
	alice    = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob      = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

// newTestServer builds a server over a memory-only engine with one
// registered token and funded accounts
func newTestServer(t *testing.T) *Server {
	t.Helper()

	tokens := token.NewRegistry()
	quote := token.NewInMemory()
	data := token.NewInMemory()
	tokens.Add(quoteTok, quote)
	tokens.Add(dataTok, data)

	engine, err := exchange.NewEngine(exchange.Config{
		Owner:   admin,
		Custody: custody,
		Quote:   quoteTok,
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.RegisterToken(dataTok, "DataToken", 10, tokBen); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for owner, setup := range map[common.Address]struct {
		contract *token.InMemory
		addr     common.Address
		amount   uint64
	}{
		alice: {data, dataTok, 100},
		bob:   {quote, quoteTok, 1000},
	} {
		setup.contract.Mint(owner, setup.amount)
		setup.contract.Approve(owner, custody, setup.amount)
		if err := engine.Deposit(owner, setup.addr, setup.amount); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
	}
	return NewServer(engine, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

// TestHealthEndpoint tests the liveness probe
func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// TestListTokens tests the registry listing
func TestListTokens(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s, "GET", "/api/v1/tokens", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var list []TokenInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "DataToken" || list[0].CommissionRate != 10 {
		t.Errorf("tokens = %+v, want one DataToken at rate 10", list)
	}
}

// TestOrderLifecycle walks place, read, list and cancel over HTTP
func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s, "POST", "/api/v1/orders", PlaceOrderRequest{
		Owner:    bob.Hex(),
		Token:    dataTok.Hex(),
		Side:     "buy",
		Quantity: 2,
		Price:    5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("place status = %d, body %s", rr.Code, rr.Body.String())
	}
	var placed PlaceOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if placed.OrderID == "" {
		t.Fatal("empty order id")
	}

	rr = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/tokens/%s/orders/buy/%s", dataTok.Hex(), placed.OrderID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var info OrderInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if info.Owner != bob.Hex() || info.Remaining != 2 || info.Price != 5 {
		t.Errorf("order = %+v, want owner=%s remaining=2 price=5", info, bob.Hex())
	}

	rr = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/tokens/%s/orders/buy", dataTok.Hex()), nil)
	var list OrderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(list.Orders) != 1 || list.Orders[0] != placed.OrderID {
		t.Errorf("orders = %v, want [%s]", list.Orders, placed.OrderID)
	}

	rr = doJSON(t, s, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		Caller:  bob.Hex(),
		Token:   dataTok.Hex(),
		Side:    "buy",
		OrderID: placed.OrderID,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/tokens/%s/orders/buy/%s", dataTok.Hex(), placed.OrderID), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status after cancel = %d, want 404", rr.Code)
	}
}

// TestFulfillOverHTTP tests the settlement path end to end
func TestFulfillOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s, "POST", "/api/v1/orders", PlaceOrderRequest{
		Owner:    alice.Hex(),
		Token:    dataTok.Hex(),
		Side:     "sell",
		Quantity: 10,
		Price:    5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("place status = %d, body %s", rr.Code, rr.Body.String())
	}
	var placed PlaceOrderResponse
	json.Unmarshal(rr.Body.Bytes(), &placed)

	rr = doJSON(t, s, "POST", "/api/v1/orders/fulfill", FulfillOrderRequest{
		Taker:    bob.Hex(),
		Token:    dataTok.Hex(),
		Side:     "sell",
		OrderID:  placed.OrderID,
		Quantity: 10,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("fulfill status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/accounts/%s/balances/%s", bob.Hex(), dataTok.Hex()), nil)
	var bal BalanceInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &bal); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if bal.Free != 10 {
		t.Errorf("taker token balance = %d, want 10", bal.Free)
	}
}

// TestErrorMapping tests engine error to HTTP status translation
func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000CC")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown asset", "GET", fmt.Sprintf("/api/v1/tokens/%s", unknown.Hex()), nil, http.StatusNotFound},
		{"bad address", "GET", "/api/v1/tokens/not-an-address", nil, http.StatusBadRequest},
		{"bad side", "GET", fmt.Sprintf("/api/v1/tokens/%s/orders/hold", dataTok.Hex()), nil, http.StatusBadRequest},
		{"double registration", "POST", "/api/v1/tokens", RegisterTokenRequest{
			Address: dataTok.Hex(), Name: "X", CommissionRate: 1, Beneficiary: tokBen.Hex(),
		}, http.StatusConflict},
		{"unauthorized commission", "POST", "/api/v1/commission", SetCommissionRequest{
			Caller: alice.Hex(), Rate: 10, Beneficiary: tokBen.Hex(),
		}, http.StatusForbidden},
		{"insufficient funds", "POST", "/api/v1/withdrawals", FundsRequest{
			Owner: alice.Hex(), Token: quoteTok.Hex(), Amount: 1,
		}, http.StatusPaymentRequired},
		{"zero deposit", "POST", "/api/v1/deposits", FundsRequest{
			Owner: alice.Hex(), Token: dataTok.Hex(), Amount: 0,
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := doJSON(t, s, tc.method, tc.path, tc.body)
		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d (body %s)", tc.name, rr.Code, tc.want, rr.Body.String())
		}
	}
}
