// Package token defines the external asset-transfer collaborator the
// exchange custody layer settles against, plus an in-memory
// implementation with standard fungible-token semantics used by the
// devnet binary and the test suites.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
)

// Token is one fungible asset contract. The exchange pulls deposits
// with TransferFrom (itself as spender, so holders must Approve it
// first) and pays withdrawals out of its own custody with Transfer.
type Token interface {
	BalanceOf(owner common.Address) uint64
	Transfer(from, to common.Address, amount uint64) error
	TransferFrom(spender, from, to common.Address, amount uint64) error
	Approve(owner, spender common.Address, amount uint64) error
}

// Resolver finds the Token collaborator for a given asset address.
type Resolver interface {
	Token(addr common.Address) (Token, error)
}

// InMemory is a process-local Token. All mutations are guarded by one
// mutex; balances never go negative and allowances are consumed by
// TransferFrom just like an ERC20 would.
type InMemory struct {
	mu         sync.Mutex
	balances   map[common.Address]uint64
	allowances map[common.Address]map[common.Address]uint64 // owner -> spender -> amount
}

func NewInMemory() *InMemory {
	return &InMemory{
		balances:   make(map[common.Address]uint64),
		allowances: make(map[common.Address]map[common.Address]uint64),
	}
}

// Mint credits freshly created units to owner. Devnet and test helper.
func (t *InMemory) Mint(owner common.Address, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] += amount
}

func (t *InMemory) BalanceOf(owner common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[owner]
}

func (t *InMemory) Approve(owner, spender common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]uint64)
		t.allowances[owner] = m
	}
	m[spender] = amount
	return nil
}

// Allowance returns what spender may still pull from owner.
func (t *InMemory) Allowance(owner, spender common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowances[owner][spender]
}

func (t *InMemory) Transfer(from, to common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *InMemory) TransferFrom(spender, from, to common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spender != from {
		allowed := t.allowances[from][spender]
		if allowed < amount {
			return fmt.Errorf("%w: approved %d, need %d", ErrInsufficientAllowance, allowed, amount)
		}
		t.allowances[from][spender] = allowed - amount
	}
	return t.move(from, to, amount)
}

func (t *InMemory) move(from, to common.Address, amount uint64) error {
	if t.balances[from] < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, t.balances[from], amount)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// Registry is a Resolver over a fixed set of in-process tokens.
type Registry struct {
	mu     sync.Mutex
	tokens map[common.Address]Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]Token)}
}

// Add binds a Token to its asset address, replacing any previous
// binding.
func (r *Registry) Add(addr common.Address, t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[addr] = t
}

func (r *Registry) Token(addr common.Address) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("no token contract at %s", addr.Hex())
	}
	return t, nil
}
