package market

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// payoutRule maps a finalized oracle value to the collateral paid per whole
// share of each outcome.
type payoutRule interface {
	payouts(value *uint256.Int, outcomes int) ([]*uint256.Int, error)
	// accepts reports whether payouts can settle on value.
	accepts(value *uint256.Int, outcomes int) error
	// burnsAll reports whether redemption burns every outcome balance, not
	// only the ones that pay.
	burnsAll() bool
}

func ruleFor(p Params) (payoutRule, error) {
	switch p.Kind {
	case KindBinary, KindMulti:
		return categorical{}, nil
	case KindScalar:
		if len(p.Outcomes) != 2 {
			return nil, fmt.Errorf("scalar market with %d outcomes: %w", len(p.Outcomes), types.ErrInvalidOutcome)
		}
		if p.Lower == nil || p.Upper == nil || !p.Lower.Lt(p.Upper) {
			return nil, fmt.Errorf("scalar bounds: %w", types.ErrInvalidParams)
		}
		return scalar{lower: p.Lower.Clone(), upper: p.Upper.Clone()}, nil
	default:
		return nil, fmt.Errorf("market kind %q: %w", p.Kind, types.ErrInvalidParams)
	}
}

// categorical pays one unit per share of the outcome whose index the oracle reports.
type categorical struct{}

func (categorical) payouts(value *uint256.Int, outcomes int) ([]*uint256.Int, error) {
	if !value.IsUint64() || value.Uint64() >= uint64(outcomes) {
		return nil, fmt.Errorf("oracle value %s for %d outcomes: %w", value.Dec(), outcomes, types.ErrOutcomeMismatch)
	}
	out := make([]*uint256.Int, outcomes)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	out[value.Uint64()] = fixed.One()
	return out, nil
}

func (categorical) accepts(value *uint256.Int, outcomes int) error {
	if value == nil || !value.IsUint64() || value.Uint64() >= uint64(outcomes) {
		return fmt.Errorf("outcome index %s of %d: %w", fixed.OrZero(value).Dec(), outcomes, types.ErrInvalidOutcome)
	}
	return nil
}

func (categorical) burnsAll() bool { return false }

// scalar splits one unit between long (index 0) and short (index 1) by where
// the clamped value falls between the bounds. Both sides are floored.
type scalar struct {
	lower *uint256.Int
	upper *uint256.Int
}

func (s scalar) payouts(value *uint256.Int, _ int) ([]*uint256.Int, error) {
	v := fixed.Min(fixed.Max(value, s.lower), s.upper)
	span := new(uint256.Int).Sub(s.upper, s.lower)

	long, err := fixed.MulDivDown(new(uint256.Int).Sub(v, s.lower), fixed.One(), span)
	if err != nil {
		return nil, err
	}
	short, err := fixed.MulDivDown(new(uint256.Int).Sub(s.upper, v), fixed.One(), span)
	if err != nil {
		return nil, err
	}
	return []*uint256.Int{long, short}, nil
}

// Any value settles a scalar market; it is clamped to the bounds.
func (scalar) accepts(value *uint256.Int, _ int) error {
	if value == nil {
		return fmt.Errorf("scalar value: %w", types.ErrInvalidParams)
	}
	return nil
}

func (scalar) burnsAll() bool { return true }
