package exchange

import (
	"fmt"
	"math/bits"
)

// SplitCommission divides a gross quote amount between the trade
// counterparty, the system beneficiary, and the token beneficiary.
// Rates are parts per thousand and additive; each cut floors, so the
// integer remainder always stays with the counterparty. Rates are
// validated at registration time, but a configuration whose combined
// cuts would exceed the gross amount is still rejected here so the
// net can never underflow.
func SplitCommission(gross, systemRate, tokenRate uint64) (net, systemCut, tokenCut uint64, err error) {
	if systemRate > commissionDenominator || tokenRate > commissionDenominator {
		return 0, 0, 0, fmt.Errorf("%w: rates %d/%d over %d",
			ErrInvalidCommissionConfiguration, systemRate, tokenRate, commissionDenominator)
	}
	systemCut = mulDiv1000(gross, systemRate)
	tokenCut = mulDiv1000(gross, tokenRate)
	if systemCut > gross-tokenCut {
		return 0, 0, 0, fmt.Errorf("%w: cuts %d+%d on gross %d",
			ErrInvalidCommissionConfiguration, systemCut, tokenCut, gross)
	}
	return gross - systemCut - tokenCut, systemCut, tokenCut, nil
}

// mulDiv1000 computes floor(amount * rate / 1000) through a 128-bit
// intermediate; amounts are 10^18-scale so the product does not fit
// in 64 bits. rate <= 1000 keeps the quotient within uint64.
func mulDiv1000(amount, rate uint64) uint64 {
	hi, lo := bits.Mul64(amount, rate)
	q, _ := bits.Div64(hi, lo, commissionDenominator)
	return q
}
