package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Commission rates are expressed in parts per thousand.
const commissionDenominator = 1000

// TokenRecord is the registration metadata for one tradable token.
// Name is display-only; CommissionRate (parts per thousand) and
// Beneficiary drive the per-token commission split on fulfillment.
type TokenRecord struct {
	Name           string         `json:"name"`
	CommissionRate uint64         `json:"commission_rate"`
	Beneficiary    common.Address `json:"beneficiary"`
}

// SystemCommission is the process-wide commission applied on top of
// every token's own rate. Zero-valued until set by the registry owner.
type SystemCommission struct {
	Rate        uint64         `json:"rate"`
	Beneficiary common.Address `json:"beneficiary"`
}

// Registry maps token addresses to their registration records. The
// quote token is implicitly registered at genesis and can never be
// re-registered. Records are created once and kept forever; only the
// commission rate and beneficiary can change afterwards.
type Registry struct {
	quote  common.Address
	tokens map[common.Address]*TokenRecord
}

func NewRegistry(quote common.Address) *Registry {
	return &Registry{
		quote:  quote,
		tokens: make(map[common.Address]*TokenRecord),
	}
}

// Quote returns the settlement token address.
func (r *Registry) Quote() common.Address {
	return r.quote
}

// IsRegistered reports whether token can be traded against the quote
// token. The quote token itself is not in the tradable set: it is the
// settlement side of every order.
func (r *Registry) IsRegistered(token common.Address) bool {
	_, ok := r.tokens[token]
	return ok
}

// Register creates the record for a new token.
func (r *Registry) Register(token common.Address, name string, rate uint64, beneficiary common.Address) error {
	if rate > commissionDenominator {
		return fmt.Errorf("%w: commission rate %d over %d", ErrInvalidParameter, rate, commissionDenominator)
	}
	if token == r.quote || r.IsRegistered(token) {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, token.Hex())
	}
	r.tokens[token] = &TokenRecord{
		Name:           name,
		CommissionRate: rate,
		Beneficiary:    beneficiary,
	}
	return nil
}

// Update replaces the mutable fields of an existing record.
func (r *Registry) Update(token common.Address, name string, rate uint64, beneficiary common.Address) error {
	if rate > commissionDenominator {
		return fmt.Errorf("%w: commission rate %d over %d", ErrInvalidParameter, rate, commissionDenominator)
	}
	rec, ok := r.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, token.Hex())
	}
	rec.Name = name
	rec.CommissionRate = rate
	rec.Beneficiary = beneficiary
	return nil
}

// Record returns the registration record for token.
func (r *Registry) Record(token common.Address) (TokenRecord, error) {
	rec, ok := r.tokens[token]
	if !ok {
		return TokenRecord{}, fmt.Errorf("%w: %s", ErrUnknownAsset, token.Hex())
	}
	return *rec, nil
}

// Tokens returns the addresses of all registered tokens, the quote
// token excluded. Order is unspecified.
func (r *Registry) Tokens() []common.Address {
	out := make([]common.Address, 0, len(r.tokens))
	for addr := range r.tokens {
		out = append(out, addr)
	}
	return out
}
