// Package exchange implements the escrow exchange core: custodial
// balances with explicit locks, per-token resting order books, and
// taker-initiated settlement with proportional commission splitting.
// Any registered token trades against one designated quote token;
// funds must be deposited into custody before an order can be placed
// and leave custody only on withdrawal, cancellation, or settlement.
package exchange

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/PublicaIO/exchange-core/pkg/token"
)

// Config carries the fixed identities and collaborators of an Engine.
type Config struct {
	// Owner may update token registrations and the system commission.
	Owner common.Address

	// Custody is the account the exchange holds external token funds
	// under; deposits are pulled into it and withdrawals paid from it.
	Custody common.Address

	// Quote is the settlement token every order is priced in.
	Quote common.Address

	// Tokens resolves asset addresses to their transfer collaborators.
	Tokens token.Resolver

	// Store, when non-nil, persists every committed operation and is
	// replayed on startup. Nil runs the engine memory-only.
	Store *Store

	// Emitter receives post-commit events. Nil disables emission.
	Emitter Emitter

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

type bookPair struct {
	buy  *Book
	sell *Book
}

// Engine executes all exchange operations as serialized atomic
// transitions over the registry, the ledger, and the order books.
// Every operation validates completely before its first mutation, so
// a failure never leaves partial state behind.
type Engine struct {
	mu sync.Mutex

	owner   common.Address
	custody common.Address

	registry *Registry
	ledger   *Ledger
	books    map[common.Address]*bookPair
	system   SystemCommission

	tokens  token.Resolver
	store   *Store
	emitter Emitter
	log     *zap.SugaredLogger
}

// NewEngine builds an Engine from cfg, replaying persisted state when
// a store is configured.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("engine config: token resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}

	e := &Engine{
		owner:    cfg.Owner,
		custody:  cfg.Custody,
		registry: NewRegistry(cfg.Quote),
		ledger:   NewLedger(),
		books:    make(map[common.Address]*bookPair),
		tokens:   cfg.Tokens,
		store:    cfg.Store,
		emitter:  emitter,
		log:      logger.Sugar(),
	}

	if e.store != nil {
		if err := e.restore(); err != nil {
			return nil, fmt.Errorf("failed to restore engine state: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) restore() error {
	st, err := e.store.Load()
	if err != nil {
		return err
	}
	for addr, rec := range st.Tokens {
		r := rec
		e.registry.tokens[addr] = &r
	}
	if st.HasCommission {
		e.system = st.Commission
	}
	for tok, owners := range st.Balances {
		for owner, bal := range owners {
			b := bal
			e.ledger.cells[balanceKey{Token: tok, Owner: owner}] = &b
		}
	}
	// Orders arrive in creation order, so re-inserting preserves each
	// book's oldest-first enumeration.
	for _, o := range st.Orders {
		e.book(o.Token, o.Side).Insert(o)
	}
	e.log.Infow("engine_state_restored",
		"tokens", len(st.Tokens),
		"orders", len(st.Orders),
	)
	return nil
}

// Quote returns the settlement token address.
func (e *Engine) Quote() common.Address {
	return e.registry.Quote()
}

// Owner returns the administrative owner account.
func (e *Engine) Owner() common.Address {
	return e.owner
}

func (e *Engine) book(tok common.Address, side Side) *Book {
	pair, ok := e.books[tok]
	if !ok {
		pair = &bookPair{buy: NewBook(), sell: NewBook()}
		e.books[tok] = pair
	}
	if side == Buy {
		return pair.buy
	}
	return pair.sell
}

// persist runs fn against a fresh batch and commits it. A nil store
// turns this into a no-op so the engine can run memory-only.
func (e *Engine) persist(fn func(b *Batch) error) error {
	if e.store == nil {
		return nil
	}
	b := e.store.NewBatch()
	if err := fn(b); err != nil {
		b.Close()
		return err
	}
	return b.Commit()
}

// ----------------------------------------------------------------------
// Registry operations

// RegisterToken adds a tradable token. Fails with ErrAlreadyRegistered
// for known tokens (the quote token included) and ErrInvalidParameter
// for a commission rate over 1000.
func (e *Engine) RegisterToken(tok common.Address, name string, commissionRate uint64, beneficiary common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.registry.Register(tok, name, commissionRate, beneficiary); err != nil {
		return err
	}
	rec, _ := e.registry.Record(tok)
	if err := e.persist(func(b *Batch) error {
		return b.PutToken(tok, rec)
	}); err != nil {
		return err
	}

	e.log.Infow("token_registered", "token", tok.Hex(), "name", name, "commission_rate", commissionRate)
	e.emitter.Emit(TokenAddedToSystem{Token: tok, Name: name})
	return nil
}

// UpdateRegisteredToken replaces a token's mutable registration
// fields. Restricted to the registry owner.
func (e *Engine) UpdateRegisteredToken(caller, tok common.Address, name string, commissionRate uint64, beneficiary common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if err := e.registry.Update(tok, name, commissionRate, beneficiary); err != nil {
		return err
	}
	rec, _ := e.registry.Record(tok)
	return e.persist(func(b *Batch) error {
		return b.PutToken(tok, rec)
	})
}

// SetSystemCommission sets the process-wide commission taken on every
// fulfillment. Restricted to the registry owner.
func (e *Engine) SetSystemCommission(caller common.Address, rate uint64, beneficiary common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if rate > commissionDenominator {
		return fmt.Errorf("%w: commission rate %d over %d", ErrInvalidParameter, rate, commissionDenominator)
	}
	prev := e.system
	e.system = SystemCommission{Rate: rate, Beneficiary: beneficiary}
	if err := e.persist(func(b *Batch) error {
		return b.PutCommission(e.system)
	}); err != nil {
		e.system = prev
		return err
	}
	e.log.Infow("system_commission_set", "rate", rate, "beneficiary", beneficiary.Hex())
	return nil
}

// IsRegistered reports whether tok is a registered tradable token.
func (e *Engine) IsRegistered(tok common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.IsRegistered(tok)
}

// RegisteredToken returns the registration record of tok.
func (e *Engine) RegisteredToken(tok common.Address) (TokenRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Record(tok)
}

// RegisteredTokens lists all tradable token addresses.
func (e *Engine) RegisteredTokens() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Tokens()
}

// SystemCommissionInfo returns the current system commission.
func (e *Engine) SystemCommissionInfo() SystemCommission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.system
}

// ----------------------------------------------------------------------
// Custody operations

// Deposit pulls amount of tok from owner's external holdings into
// custody and credits the owner's free balance. The owner must have
// approved the custody account as a spender beforehand; collaborator
// failures surface as ErrTransferFailed.
func (e *Engine) Deposit(owner, tok common.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return fmt.Errorf("%w: deposit of zero", ErrInvalidAmount)
	}
	if tok != e.registry.Quote() && !e.registry.IsRegistered(tok) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	contract, err := e.tokens.Token(tok)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := contract.TransferFrom(e.custody, owner, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.Credit(tok, owner, amount)
	if err := e.persist(func(b *Batch) error {
		return b.PutBalance(tok, owner, e.ledger.Of(tok, owner))
	}); err != nil {
		return err
	}

	e.log.Infow("deposit", "token", tok.Hex(), "owner", owner.Hex(), "amount", amount)
	return nil
}

// Withdraw releases amount of the owner's free balance back to their
// external holdings. Locked funds cannot be withdrawn.
func (e *Engine) Withdraw(owner, tok common.Address, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == 0 {
		return fmt.Errorf("%w: withdrawal of zero", ErrInvalidAmount)
	}
	if free := e.ledger.FreeOf(tok, owner); free < amount {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, free, amount)
	}
	contract, err := e.tokens.Token(tok)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := contract.Transfer(e.custody, owner, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := e.ledger.Debit(tok, owner, amount); err != nil {
		return err
	}
	if err := e.persist(func(b *Batch) error {
		return b.PutBalance(tok, owner, e.ledger.Of(tok, owner))
	}); err != nil {
		return err
	}

	e.log.Infow("withdrawal", "token", tok.Hex(), "owner", owner.Hex(), "amount", amount)
	return nil
}

// FreeBalanceOf returns the owner's withdrawable balance of tok.
func (e *Engine) FreeBalanceOf(tok, owner common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.FreeOf(tok, owner)
}

// LockedBalanceOf returns the owner's balance committed to orders.
func (e *Engine) LockedBalanceOf(tok, owner common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.LockedOf(tok, owner)
}

// BalanceOf returns the owner's total custody balance, free plus
// locked.
func (e *Engine) BalanceOf(tok, owner common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Of(tok, owner).Total()
}

// TotalOf returns everything the ledger holds of tok across all
// owners.
func (e *Engine) TotalOf(tok common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalOf(tok)
}

// ----------------------------------------------------------------------
// Order placement and cancellation

// PlaceBuyOrder rests an order to buy quantity units of tok at price
// quote units each, locking quantity*price of the owner's free quote
// balance. Returns the new order id.
func (e *Engine) PlaceBuyOrder(owner, tok common.Address, quantity, price uint64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	required, err := e.validatePlacement(tok, quantity, price)
	if err != nil {
		return "", err
	}
	if err := e.ledger.Lock(e.registry.Quote(), owner, required); err != nil {
		return "", err
	}

	o := &Order{
		ID:        newOrderID(),
		Owner:     owner,
		Token:     tok,
		Side:      Buy,
		Price:     price,
		Remaining: quantity,
	}
	e.book(tok, Buy).Insert(o)

	if err := e.persist(func(b *Batch) error {
		if err := b.PutOrder(o); err != nil {
			return err
		}
		return b.PutBalance(e.registry.Quote(), owner, e.ledger.Of(e.registry.Quote(), owner))
	}); err != nil {
		return "", err
	}

	e.log.Infow("buy_order_placed", "token", tok.Hex(), "order", o.ID, "owner", owner.Hex(), "qty", quantity, "price", price)
	e.emitter.Emit(BuyOrderCreated{Token: tok, OrderID: o.ID, Owner: owner, Quantity: quantity, Price: price})
	return o.ID, nil
}

// PlaceSellOrder rests an order to sell quantity units of tok at
// price quote units each, locking quantity of the owner's free token
// balance. Returns the new order id.
func (e *Engine) PlaceSellOrder(owner, tok common.Address, quantity, price uint64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.validatePlacement(tok, quantity, price); err != nil {
		return "", err
	}
	if err := e.ledger.Lock(tok, owner, quantity); err != nil {
		return "", err
	}

	o := &Order{
		ID:        newOrderID(),
		Owner:     owner,
		Token:     tok,
		Side:      Sell,
		Price:     price,
		Remaining: quantity,
	}
	e.book(tok, Sell).Insert(o)

	if err := e.persist(func(b *Batch) error {
		if err := b.PutOrder(o); err != nil {
			return err
		}
		return b.PutBalance(tok, owner, e.ledger.Of(tok, owner))
	}); err != nil {
		return "", err
	}

	e.log.Infow("sell_order_placed", "token", tok.Hex(), "order", o.ID, "owner", owner.Hex(), "qty", quantity, "price", price)
	e.emitter.Emit(SellOrderCreated{Token: tok, OrderID: o.ID, Owner: owner, Quantity: quantity, Price: price})
	return o.ID, nil
}

// validatePlacement checks the common placement preconditions and
// returns the quote commitment quantity*price.
func (e *Engine) validatePlacement(tok common.Address, quantity, price uint64) (uint64, error) {
	if !e.registry.IsRegistered(tok) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	if quantity == 0 || price == 0 {
		return 0, fmt.Errorf("%w: quantity %d, price %d", ErrInvalidAmount, quantity, price)
	}
	required, ok := mul64(quantity, price)
	if !ok {
		return 0, fmt.Errorf("%w: quantity %d at price %d overflows", ErrInvalidAmount, quantity, price)
	}
	return required, nil
}

// CancelBuyOrder removes the caller's resting buy order and unlocks
// its full remaining quote commitment.
func (e *Engine) CancelBuyOrder(caller, tok common.Address, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.validateCancel(caller, tok, Buy, orderID)
	if err != nil {
		return err
	}

	quote := e.registry.Quote()
	e.ledger.Unlock(quote, o.Owner, o.Commitment())
	e.book(tok, Buy).Remove(orderID)

	if err := e.persist(func(b *Batch) error {
		if err := b.DeleteOrder(tok, Buy, orderID); err != nil {
			return err
		}
		return b.PutBalance(quote, o.Owner, e.ledger.Of(quote, o.Owner))
	}); err != nil {
		return err
	}

	e.log.Infow("buy_order_canceled", "token", tok.Hex(), "order", orderID)
	e.emitter.Emit(BuyOrderCanceled{Token: tok, OrderID: orderID})
	return nil
}

// CancelSellOrder removes the caller's resting sell order and unlocks
// its remaining token commitment.
func (e *Engine) CancelSellOrder(caller, tok common.Address, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.validateCancel(caller, tok, Sell, orderID)
	if err != nil {
		return err
	}

	e.ledger.Unlock(tok, o.Owner, o.Commitment())
	e.book(tok, Sell).Remove(orderID)

	if err := e.persist(func(b *Batch) error {
		if err := b.DeleteOrder(tok, Sell, orderID); err != nil {
			return err
		}
		return b.PutBalance(tok, o.Owner, e.ledger.Of(tok, o.Owner))
	}); err != nil {
		return err
	}

	e.log.Infow("sell_order_canceled", "token", tok.Hex(), "order", orderID)
	e.emitter.Emit(SellOrderCanceled{Token: tok, OrderID: orderID})
	return nil
}

func (e *Engine) validateCancel(caller, tok common.Address, side Side, orderID string) (*Order, error) {
	if !e.registry.IsRegistered(tok) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	o, err := e.book(tok, side).Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.Owner != caller {
		return nil, fmt.Errorf("%w: %s is not the order owner", ErrUnauthorized, caller.Hex())
	}
	return o, nil
}

// ----------------------------------------------------------------------
// Order reads

// BuyOrder returns a copy of the resting buy order with the given id.
func (e *Engine) BuyOrder(tok common.Address, orderID string) (Order, error) {
	return e.order(tok, Buy, orderID)
}

// SellOrder returns a copy of the resting sell order with the given id.
func (e *Engine) SellOrder(tok common.Address, orderID string) (Order, error) {
	return e.order(tok, Sell, orderID)
}

func (e *Engine) order(tok common.Address, side Side, orderID string) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsRegistered(tok) {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	o, err := e.book(tok, side).Get(orderID)
	if err != nil {
		return Order{}, err
	}
	return *o, nil
}

// BuyOrderIDs lists the resting buy order ids of tok, oldest first.
// An empty book yields an empty slice, never an error.
func (e *Engine) BuyOrderIDs(tok common.Address) ([]string, error) {
	return e.orderIDs(tok, Buy)
}

// SellOrderIDs lists the resting sell order ids of tok, oldest first.
func (e *Engine) SellOrderIDs(tok common.Address) ([]string, error) {
	return e.orderIDs(tok, Sell)
}

func (e *Engine) orderIDs(tok common.Address, side Side) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsRegistered(tok) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	return e.book(tok, side).IDs(), nil
}

// HasBuyOrder reports whether a buy order with the given id rests in
// tok's book.
func (e *Engine) HasBuyOrder(tok common.Address, orderID string) (bool, error) {
	return e.hasOrder(tok, Buy, orderID)
}

// HasSellOrder reports whether a sell order with the given id rests
// in tok's book.
func (e *Engine) HasSellOrder(tok common.Address, orderID string) (bool, error) {
	return e.hasOrder(tok, Sell, orderID)
}

func (e *Engine) hasOrder(tok common.Address, side Side, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsRegistered(tok) {
		return false, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	return e.book(tok, side).Has(orderID), nil
}

// ----------------------------------------------------------------------
// Fulfillment

// FulfillBuyOrder sells quantity units of tok to a resting buy
// order's owner. The taker's free token balance pays the order; the
// consumed part of the owner's locked quote commitment is released
// and split between the taker and the commission beneficiaries.
// Partial fills leave the residual lock intact.
func (e *Engine) FulfillBuyOrder(taker, tok common.Address, orderID string, quantity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, gross, split, err := e.validateFulfill(tok, Buy, orderID, quantity)
	if err != nil {
		return err
	}
	if free := e.ledger.FreeOf(tok, taker); free < quantity {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, free, quantity)
	}

	// Apply. Nothing below can fail: every movement was validated
	// above and the split sums exactly to the released lock.
	quote := e.registry.Quote()
	if err := e.ledger.Transfer(tok, taker, o.Owner, quantity); err != nil {
		return err
	}
	e.ledger.Settle(quote, o.Owner, taker, split.net)
	if split.systemCut > 0 {
		e.ledger.Settle(quote, o.Owner, e.system.Beneficiary, split.systemCut)
	}
	if split.tokenCut > 0 {
		e.ledger.Settle(quote, o.Owner, split.tokenBeneficiary, split.tokenCut)
	}

	o.Remaining -= quantity
	removed := o.Remaining == 0
	if removed {
		e.book(tok, Buy).Remove(orderID)
	}

	if err := e.persist(func(b *Batch) error {
		if removed {
			if err := b.DeleteOrder(tok, Buy, orderID); err != nil {
				return err
			}
		} else {
			if err := b.PutOrder(o); err != nil {
				return err
			}
		}
		return e.putFulfillBalances(b, tok, o.Owner, taker, split)
	}); err != nil {
		return err
	}

	e.log.Infow("buy_order_fulfilled",
		"token", tok.Hex(), "order", orderID, "taker", taker.Hex(),
		"qty", quantity, "gross", gross, "remaining", o.Remaining,
	)
	e.emitter.Emit(BuyOrderFulfilled{
		Token: tok, OrderID: orderID, Taker: taker,
		Quantity: quantity, QuoteDue: gross, Remaining: o.Remaining,
	})
	return nil
}

// FulfillSellOrder buys quantity units of tok from a resting sell
// order's owner. The taker's free quote balance pays the gross value,
// split between the owner and the commission beneficiaries; the
// consumed part of the owner's locked token commitment moves to the
// taker.
func (e *Engine) FulfillSellOrder(taker, tok common.Address, orderID string, quantity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, gross, split, err := e.validateFulfill(tok, Sell, orderID, quantity)
	if err != nil {
		return err
	}
	quote := e.registry.Quote()
	if free := e.ledger.FreeOf(quote, taker); free < gross {
		return fmt.Errorf("%w: free %d, need %d", ErrInsufficientFreeBalance, free, gross)
	}

	// Apply. The three quote transfers together move exactly gross,
	// which the taker was just verified to hold free.
	if err := e.ledger.Transfer(quote, taker, o.Owner, split.net); err != nil {
		return err
	}
	if split.systemCut > 0 {
		if err := e.ledger.Transfer(quote, taker, e.system.Beneficiary, split.systemCut); err != nil {
			return err
		}
	}
	if split.tokenCut > 0 {
		if err := e.ledger.Transfer(quote, taker, split.tokenBeneficiary, split.tokenCut); err != nil {
			return err
		}
	}
	e.ledger.Settle(tok, o.Owner, taker, quantity)

	o.Remaining -= quantity
	removed := o.Remaining == 0
	if removed {
		e.book(tok, Sell).Remove(orderID)
	}

	if err := e.persist(func(b *Batch) error {
		if removed {
			if err := b.DeleteOrder(tok, Sell, orderID); err != nil {
				return err
			}
		} else {
			if err := b.PutOrder(o); err != nil {
				return err
			}
		}
		return e.putFulfillBalances(b, tok, o.Owner, taker, split)
	}); err != nil {
		return err
	}

	e.log.Infow("sell_order_fulfilled",
		"token", tok.Hex(), "order", orderID, "taker", taker.Hex(),
		"qty", quantity, "gross", gross, "remaining", o.Remaining,
	)
	e.emitter.Emit(SellOrderFulfilled{
		Token: tok, OrderID: orderID, Taker: taker,
		Quantity: quantity, QuoteDue: gross, Remaining: o.Remaining,
	})
	return nil
}

// commissionSplit is the fully resolved three-way division of one
// fill's gross quote value.
type commissionSplit struct {
	net              uint64
	systemCut        uint64
	tokenCut         uint64
	tokenBeneficiary common.Address
}

// validateFulfill runs every fulfillment check that does not depend
// on the taker's balance and resolves the commission split.
func (e *Engine) validateFulfill(tok common.Address, side Side, orderID string, quantity uint64) (*Order, uint64, commissionSplit, error) {
	var none commissionSplit

	if !e.registry.IsRegistered(tok) {
		return nil, 0, none, fmt.Errorf("%w: %s", ErrUnknownAsset, tok.Hex())
	}
	o, err := e.book(tok, side).Get(orderID)
	if err != nil {
		return nil, 0, none, err
	}
	if quantity == 0 {
		return nil, 0, none, fmt.Errorf("%w: zero quantity", ErrInvalidAmount)
	}
	if quantity > o.Remaining {
		return nil, 0, none, fmt.Errorf("%w: %d over remaining %d", ErrExceedsOrderRemaining, quantity, o.Remaining)
	}
	// quantity <= Remaining and Remaining*Price was overflow-checked
	// at placement, so this product always fits.
	gross := quantity * o.Price

	rec, err := e.registry.Record(tok)
	if err != nil {
		return nil, 0, none, err
	}
	net, systemCut, tokenCut, err := SplitCommission(gross, e.system.Rate, rec.CommissionRate)
	if err != nil {
		return nil, 0, none, err
	}
	return o, gross, commissionSplit{
		net:              net,
		systemCut:        systemCut,
		tokenCut:         tokenCut,
		tokenBeneficiary: rec.Beneficiary,
	}, nil
}

// putFulfillBalances stages every custody cell a fulfillment touched.
func (e *Engine) putFulfillBalances(b *Batch, tok, owner, taker common.Address, split commissionSplit) error {
	quote := e.registry.Quote()
	cells := []balanceKey{
		{Token: tok, Owner: owner},
		{Token: tok, Owner: taker},
		{Token: quote, Owner: owner},
		{Token: quote, Owner: taker},
	}
	if split.systemCut > 0 {
		cells = append(cells, balanceKey{Token: quote, Owner: e.system.Beneficiary})
	}
	if split.tokenCut > 0 {
		cells = append(cells, balanceKey{Token: quote, Owner: split.tokenBeneficiary})
	}
	for _, c := range cells {
		if err := b.PutBalance(c.Token, c.Owner, e.ledger.Of(c.Token, c.Owner)); err != nil {
			return err
		}
	}
	return nil
}

// mul64 multiplies and reports whether the product fits in 64 bits.
func mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
