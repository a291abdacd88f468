package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Contract is the surface every market variant exposes.
type Contract interface {
	Address() common.Address
	Kind() Kind
	State() State
	TotalOutcomes() int
	Price(outcome int) (*uint256.Int, error)
	Prices() ([]*uint256.Int, error)
	QuoteBuy(outcome int, shares *uint256.Int) (Quote, error)
	Buy(tx *ledger.Tx, outcome int, shares *uint256.Int) (Quote, error)
	AddLiquidity(tx *ledger.Tx, amount *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(tx *ledger.Tx, lpTokens *uint256.Int) (*uint256.Int, error)
	Close(tx *ledger.Tx) error
	Finalize(tx *ledger.Tx, outcomeValue *uint256.Int) error
	ValidateValue(value *uint256.Int) error
	Redeem(tx *ledger.Tx) (*uint256.Int, error)
	Info() Info
	LPToken() *token.Claim
	GetMarketStats() (Stats, error)
	GetLPStats() (LPStats, error)
	CheckSolvency() error
}

// Outcome indexes of binary markets.
const (
	Yes = 0
	No  = 1
)

// Outcome indexes of scalar markets.
const (
	Long  = 0
	Short = 1
)

// Binary is a YES/NO market. The oracle reports 0 for YES and 1 for NO.
type Binary struct {
	*Market
}

// NewBinary creates a binary market at address.
func NewBinary(tx *ledger.Tx, address common.Address, p Params) (*Binary, error) {
	p.Kind = KindBinary
	if len(p.Outcomes) == 0 {
		p.Outcomes = []string{"Yes", "No"}
	}
	if len(p.Outcomes) != 2 {
		return nil, fmt.Errorf("binary market with %d outcomes: %w", len(p.Outcomes), types.ErrInvalidOutcome)
	}
	m, err := New(tx, address, p)
	if err != nil {
		return nil, err
	}
	return &Binary{Market: m}, nil
}

func (b *Binary) YesToken() *token.Claim { return b.outcomes[Yes] }
func (b *Binary) NoToken() *token.Claim  { return b.outcomes[No] }

// BuyYes buys shares of YES.
func (b *Binary) BuyYes(tx *ledger.Tx, shares *uint256.Int) (Quote, error) {
	return b.Buy(tx, Yes, shares)
}

// BuyNo buys shares of NO.
func (b *Binary) BuyNo(tx *ledger.Tx, shares *uint256.Int) (Quote, error) {
	return b.Buy(tx, No, shares)
}

// Multi is a categorical market over 2..32 named outcomes. The oracle reports
// the winning index.
type Multi struct {
	*Market
}

// NewMulti creates a multi-outcome market at address.
func NewMulti(tx *ledger.Tx, address common.Address, p Params) (*Multi, error) {
	p.Kind = KindMulti
	m, err := New(tx, address, p)
	if err != nil {
		return nil, err
	}
	return &Multi{Market: m}, nil
}

// OutcomeTokens returns every outcome token in index order.
func (m *Multi) OutcomeTokens() []*token.Claim {
	return append([]*token.Claim(nil), m.outcomes...)
}

// Scalar pays long and short holders by where the oracle value lands between
// Lower and Upper.
type Scalar struct {
	*Market
	lower *uint256.Int
	upper *uint256.Int
}

// NewScalar creates a scalar market at address.
func NewScalar(tx *ledger.Tx, address common.Address, p Params) (*Scalar, error) {
	p.Kind = KindScalar
	if len(p.Outcomes) == 0 {
		p.Outcomes = []string{"Long", "Short"}
	}
	m, err := New(tx, address, p)
	if err != nil {
		return nil, err
	}
	return &Scalar{Market: m, lower: p.Lower.Clone(), upper: p.Upper.Clone()}, nil
}

func (s *Scalar) LongToken() *token.Claim  { return s.outcomes[Long] }
func (s *Scalar) ShortToken() *token.Claim { return s.outcomes[Short] }

// Bounds returns the lower and upper value of the range.
func (s *Scalar) Bounds() (lower, upper *uint256.Int) {
	return s.lower.Clone(), s.upper.Clone()
}

var (
	_ Contract = (*Binary)(nil)
	_ Contract = (*Multi)(nil)
	_ Contract = (*Scalar)(nil)
)
