// Package amm implements the logarithmic market scoring rule used to price
// outcome shares.
//
// For liquidity parameter b and quantities sold q:
//
//	C(q)   = b · ln Σ exp(q_i / b)
//	p_i(q) = exp(q_i / b) / Σ exp(q_j / b)
//
// All quantities are raw 18-decimal amounts. Curve math runs on apd decimals
// at fixed.Precision digits; results are rounded toward the pool: costs up,
// prices down.
package amm

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// MaxOutcomes bounds the number of outcomes a curve prices.
const MaxOutcomes = 32

// Terms whose exponent is below this contribute less than one part in 10^80
// of the sum and are dropped instead of underflowing the decimal context.
//
//nolint:gochecknoglobals // immutable constant
var expCutoff = apd.New(-185, 0)

// LMSR is a curve with a fixed liquidity parameter.
type LMSR struct {
	b        *uint256.Int
	bDec     *apd.Decimal
	outcomes int
}

// New returns a curve with liquidity parameter b over n outcomes.
func New(b *uint256.Int, n int) (*LMSR, error) {
	if n < 2 || n > MaxOutcomes {
		return nil, fmt.Errorf("lmsr with %d outcomes: %w", n, types.ErrInvalidOutcome)
	}
	if b == nil || b.IsZero() {
		return nil, types.ErrDepthNotInitialized
	}
	return &LMSR{
		b:        new(uint256.Int).Set(b),
		bDec:     fixed.ToDecimal(b),
		outcomes: n,
	}, nil
}

// DepthForSubsidy returns the largest b whose worst-case loss b·ln n does not
// exceed subsidy.
func DepthForSubsidy(subsidy *uint256.Int, n int) (*uint256.Int, error) {
	if n < 2 || n > MaxOutcomes {
		return nil, fmt.Errorf("lmsr with %d outcomes: %w", n, types.ErrInvalidOutcome)
	}
	if subsidy == nil || subsidy.IsZero() {
		return nil, types.ErrLiquidityRequired
	}

	lnN, err := lnInt(n)
	if err != nil {
		return nil, err
	}
	b := new(apd.Decimal)
	if _, err := fixed.Context.Quo(b, fixed.ToDecimal(subsidy), lnN); err != nil {
		return nil, fmt.Errorf("depth quotient: %w", err)
	}
	depth, err := fixed.FloorFromDecimal(b)
	if err != nil {
		return nil, err
	}
	if depth.IsZero() {
		return nil, types.ErrLiquidityRequired
	}
	return depth, nil
}

// NewFromSubsidy returns a curve whose maximum market-maker loss is covered by subsidy.
func NewFromSubsidy(subsidy *uint256.Int, n int) (*LMSR, error) {
	b, err := DepthForSubsidy(subsidy, n)
	if err != nil {
		return nil, err
	}
	return New(b, n)
}

// B returns the liquidity parameter.
func (l *LMSR) B() *uint256.Int {
	return new(uint256.Int).Set(l.b)
}

// Outcomes returns the number of priced outcomes.
func (l *LMSR) Outcomes() int {
	return l.outcomes
}

// MaxLoss returns ⌈b · ln n⌉, the most the curve can pay out beyond what it collected.
func (l *LMSR) MaxLoss() (*uint256.Int, error) {
	lnN, err := lnInt(l.outcomes)
	if err != nil {
		return nil, err
	}
	loss := new(apd.Decimal)
	if _, err := fixed.Context.Mul(loss, l.bDec, lnN); err != nil {
		return nil, fmt.Errorf("max loss: %w", err)
	}
	return fixed.CeilFromDecimal(loss)
}

// Cost returns ⌈C(q)⌉.
func (l *LMSR) Cost(q []*uint256.Int) (*uint256.Int, error) {
	c, err := l.cost(q)
	if err != nil {
		return nil, err
	}
	return fixed.CeilFromDecimal(c)
}

// BuyCost returns ⌈C(q + shares·e_outcome) − C(q)⌉, the collateral a buyer
// pays for shares of outcome before fees.
func (l *LMSR) BuyCost(q []*uint256.Int, outcome int, shares *uint256.Int) (*uint256.Int, error) {
	if err := l.check(q, outcome); err != nil {
		return nil, err
	}
	if shares == nil || shares.IsZero() {
		return nil, types.ErrZeroAmount
	}

	after := make([]*uint256.Int, len(q))
	copy(after, q)
	sum, err := fixed.Add(q[outcome], shares)
	if err != nil {
		return nil, err
	}
	after[outcome] = sum

	before, err := l.cost(q)
	if err != nil {
		return nil, err
	}
	next, err := l.cost(after)
	if err != nil {
		return nil, err
	}

	diff := new(apd.Decimal)
	if _, err := fixed.Context.Sub(diff, next, before); err != nil {
		return nil, fmt.Errorf("cost difference: %w", err)
	}
	cost, err := fixed.CeilFromDecimal(diff)
	if err != nil {
		return nil, err
	}
	// Shares are never free, even where the difference is below working precision.
	if cost.IsZero() {
		cost = uint256.NewInt(1)
	}
	return cost, nil
}

// Price returns ⌊p_outcome(q)⌋ as an 18-decimal fraction of one unit.
func (l *LMSR) Price(q []*uint256.Int, outcome int) (*uint256.Int, error) {
	if err := l.check(q, outcome); err != nil {
		return nil, err
	}
	prices, err := l.Prices(q)
	if err != nil {
		return nil, err
	}
	return prices[outcome], nil
}

// Prices returns every outcome price, each floored, so they sum to at most one unit.
func (l *LMSR) Prices(q []*uint256.Int) ([]*uint256.Int, error) {
	if err := l.check(q, 0); err != nil {
		return nil, err
	}

	terms, total, _, err := l.softmax(q)
	if err != nil {
		return nil, err
	}

	scale := fixed.ToDecimal(fixed.One())
	prices := make([]*uint256.Int, len(q))
	for i, term := range terms {
		p := new(apd.Decimal)
		if _, err := fixed.Context.Quo(p, term, total); err != nil {
			return nil, fmt.Errorf("price quotient: %w", err)
		}
		if _, err := fixed.Context.Mul(p, p, scale); err != nil {
			return nil, fmt.Errorf("price scale: %w", err)
		}
		if prices[i], err = fixed.FloorFromDecimal(p); err != nil {
			return nil, err
		}
	}
	return prices, nil
}

func (l *LMSR) check(q []*uint256.Int, outcome int) error {
	if len(q) != l.outcomes {
		return fmt.Errorf("%d quantities for %d outcomes: %w", len(q), l.outcomes, types.ErrInvalidOutcome)
	}
	if outcome < 0 || outcome >= l.outcomes {
		return fmt.Errorf("outcome %d: %w", outcome, types.ErrInvalidOutcome)
	}
	return nil
}

// cost evaluates b·(m + ln Σ exp(x_i − m)) with x_i = q_i/b and m = max x_i.
func (l *LMSR) cost(q []*uint256.Int) (*apd.Decimal, error) {
	if err := l.check(q, 0); err != nil {
		return nil, err
	}

	_, total, m, err := l.softmax(q)
	if err != nil {
		return nil, err
	}

	c := new(apd.Decimal)
	if _, err := fixed.Context.Ln(c, total); err != nil {
		return nil, fmt.Errorf("ln: %w", err)
	}
	if _, err := fixed.Context.Add(c, c, m); err != nil {
		return nil, fmt.Errorf("cost add: %w", err)
	}
	if _, err := fixed.Context.Mul(c, c, l.bDec); err != nil {
		return nil, fmt.Errorf("cost scale: %w", err)
	}
	return c, nil
}

// softmax returns exp(x_i − m) per outcome, their sum, and m.
func (l *LMSR) softmax(q []*uint256.Int) ([]*apd.Decimal, *apd.Decimal, *apd.Decimal, error) {
	xs := make([]*apd.Decimal, len(q))
	m := new(apd.Decimal)
	for i, qi := range q {
		x := new(apd.Decimal)
		if _, err := fixed.Context.Quo(x, fixed.ToDecimal(qi), l.bDec); err != nil {
			return nil, nil, nil, fmt.Errorf("scale quantity: %w", err)
		}
		xs[i] = x
		if i == 0 || x.Cmp(m) > 0 {
			m.Set(x)
		}
	}

	terms := make([]*apd.Decimal, len(q))
	total := new(apd.Decimal)
	for i, x := range xs {
		shifted := new(apd.Decimal)
		if _, err := fixed.Context.Sub(shifted, x, m); err != nil {
			return nil, nil, nil, fmt.Errorf("shift exponent: %w", err)
		}

		term := new(apd.Decimal)
		if shifted.Cmp(expCutoff) >= 0 {
			if _, err := fixed.Context.Exp(term, shifted); err != nil {
				return nil, nil, nil, fmt.Errorf("exp: %w", err)
			}
		}
		terms[i] = term
		if _, err := fixed.Context.Add(total, total, term); err != nil {
			return nil, nil, nil, fmt.Errorf("sum exponents: %w", err)
		}
	}
	return terms, total, m, nil
}

func lnInt(n int) (*apd.Decimal, error) {
	r := new(apd.Decimal)
	if _, err := fixed.Context.Ln(r, apd.New(int64(n), 0)); err != nil {
		return nil, fmt.Errorf("ln %d: %w", n, err)
	}
	return r, nil
}
