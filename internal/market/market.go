// Package market implements prediction markets: an LMSR-priced trading venue
// over a set of outcome tokens, a liquidity pool that funds the curve, and a
// state machine that pays winners once the bound oracle finalizes.
//
// Every variant (Binary, Multi, Scalar) wraps the same Market core; they
// differ only in outcome labels and in how an oracle value maps to per-share
// payouts.
package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/amm"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// State of a market. It only moves forward.
type State uint8

const (
	StateOpen State = iota
	StateClosed
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind is the market variant.
type Kind string

const (
	KindBinary Kind = "binary"
	KindMulti  Kind = "multi"
	KindScalar Kind = "scalar"
)

// Collateral is the token markets settle in.
type Collateral interface {
	Address() common.Address
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(tx *ledger.Tx, to common.Address, amount *uint256.Int) error
	TransferFrom(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error
}

// Oracle reports the binding result for a market id.
type Oracle interface {
	Address() common.Address
	GetResult(marketID common.Hash) oracle.Result
}

// FeeRouter receives the protocol and creator fee shares of every trade.
type FeeRouter interface {
	Address() common.Address
	Split() feerouter.Split
	Accrue(tx *ledger.Tx, market common.Address, protocolFee, creatorFee, lpFee *uint256.Int) error
}

// Gate approves markets for trading. A nil gate approves everything.
type Gate interface {
	IsApproved(market common.Address) bool
}

// Params configures a new market.
type Params struct {
	Kind               Kind
	Question           string
	MetadataURI        string
	Creator            common.Address
	MarketKey          string
	FeeBps             uint64
	StartTime          uint64
	EndTime            uint64
	ResolutionDeadline uint64
	Outcomes           []string

	// Scalar bounds, same scale as the oracle value.
	Lower *uint256.Int
	Upper *uint256.Int

	Collateral Collateral
	Oracle     Oracle
	FeeRouter  FeeRouter
	Tokens     *token.Set
	Gate       Gate
	Logger     *zap.Logger
}

// Market is the shared core of every variant.
type Market struct {
	address     common.Address
	kind        Kind
	question    string
	metadataURI string
	creator     common.Address
	marketKey   string
	marketID    common.Hash
	labels      []string
	feeBps      uint64
	startTime   uint64
	endTime     uint64
	deadline    uint64

	collateral Collateral
	oracle     Oracle
	router     FeeRouter
	gate       Gate
	outcomes   []*token.Claim
	lp         *token.Claim
	rule       payoutRule
	logger     *zap.Logger
	guard      ledger.Guard

	state        State
	curve        *amm.LMSR
	quantities   []*uint256.Int
	pool         *uint256.Int
	contributed  *uint256.Int
	withdrawn    *uint256.Int
	lpFees       *uint256.Int
	volume       *uint256.Int
	feesPaid     *uint256.Int
	tradeCount   uint64
	participants map[common.Address]bool
	traderVolume map[common.Address]*uint256.Int
	finalOutcome *uint256.Int
	payouts      []*uint256.Int
	redeemed     *uint256.Int
}

// New creates the market core at address. Tokens must already be deployed
// with address as their owner.
func New(tx *ledger.Tx, address common.Address, p Params) (*Market, error) {
	if err := validate(tx, address, p); err != nil {
		return nil, err
	}

	rule, err := ruleFor(p)
	if err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	quantities := make([]*uint256.Int, len(p.Outcomes))
	for i := range quantities {
		quantities[i] = new(uint256.Int)
	}

	return &Market{
		address:      address,
		kind:         p.Kind,
		question:     p.Question,
		metadataURI:  p.MetadataURI,
		creator:      p.Creator,
		marketKey:    p.MarketKey,
		marketID:     oracle.MarketID(p.MarketKey),
		labels:       append([]string(nil), p.Outcomes...),
		feeBps:       p.FeeBps,
		startTime:    p.StartTime,
		endTime:      p.EndTime,
		deadline:     p.ResolutionDeadline,
		collateral:   p.Collateral,
		oracle:       p.Oracle,
		router:       p.FeeRouter,
		gate:         p.Gate,
		outcomes:     p.Tokens.Outcomes,
		lp:           p.Tokens.LP,
		rule:         rule,
		logger:       logger.With(zap.String("market", address.Hex()), zap.String("kind", string(p.Kind))),
		state:        StateOpen,
		quantities:   quantities,
		pool:         new(uint256.Int),
		contributed:  new(uint256.Int),
		withdrawn:    new(uint256.Int),
		lpFees:       new(uint256.Int),
		volume:       new(uint256.Int),
		feesPaid:     new(uint256.Int),
		participants: make(map[common.Address]bool),
		traderVolume: make(map[common.Address]*uint256.Int),
		redeemed:     new(uint256.Int),
	}, nil
}

func validate(tx *ledger.Tx, address common.Address, p Params) error {
	if address == (common.Address{}) || p.Creator == (common.Address{}) {
		return types.ErrZeroAddress
	}
	if p.Collateral == nil || p.Oracle == nil || p.FeeRouter == nil || p.Tokens == nil {
		return fmt.Errorf("market dependencies: %w", types.ErrZeroAddress)
	}
	if p.StartTime >= p.EndTime || p.EndTime >= p.ResolutionDeadline {
		return fmt.Errorf("window [%d, %d] deadline %d: %w",
			p.StartTime, p.EndTime, p.ResolutionDeadline, types.ErrInvalidTimeRange)
	}
	if p.EndTime <= tx.Now() {
		return fmt.Errorf("end time %d not after now %d: %w", p.EndTime, tx.Now(), types.ErrInvalidTimeRange)
	}
	if p.FeeBps > fixed.BpsDenominator {
		return fmt.Errorf("fee %d bps: %w", p.FeeBps, types.ErrInvalidParams)
	}
	if p.MarketKey == "" {
		return fmt.Errorf("empty market key: %w", types.ErrInvalidParams)
	}
	if len(p.Outcomes) < 2 || len(p.Outcomes) > amm.MaxOutcomes {
		return fmt.Errorf("%d outcomes: %w", len(p.Outcomes), types.ErrInvalidOutcome)
	}
	if len(p.Tokens.Outcomes) != len(p.Outcomes) || p.Tokens.LP == nil {
		return fmt.Errorf("token set does not match outcomes: %w", types.ErrInvalidParams)
	}
	for _, t := range append(append([]*token.Claim(nil), p.Tokens.Outcomes...), p.Tokens.LP) {
		if t.Owner() != address {
			return fmt.Errorf("token %s not owned by market: %w", t.Address().Hex(), types.ErrNotOwner)
		}
	}
	return nil
}

func (m *Market) Address() common.Address { return m.address }
func (m *Market) Kind() Kind              { return m.kind }
func (m *Market) Question() string        { return m.question }
func (m *Market) MetadataURI() string     { return m.metadataURI }
func (m *Market) Creator() common.Address { return m.creator }
func (m *Market) MarketKey() string       { return m.marketKey }
func (m *Market) MarketID() common.Hash   { return m.marketID }
func (m *Market) FeeBps() uint64          { return m.feeBps }
func (m *Market) StartTime() uint64       { return m.startTime }
func (m *Market) EndTime() uint64         { return m.endTime }
func (m *Market) State() State            { return m.state }

// ResolutionDeadline is the earliest time the market may be finalized.
func (m *Market) ResolutionDeadline() uint64 { return m.deadline }

// TotalOutcomes returns the number of outcome tokens.
func (m *Market) TotalOutcomes() int { return len(m.outcomes) }

// OutcomeLabels returns the outcome names in index order.
func (m *Market) OutcomeLabels() []string { return append([]string(nil), m.labels...) }

// OutcomeToken returns the token of outcome i.
func (m *Market) OutcomeToken(i int) (*token.Claim, error) {
	if i < 0 || i >= len(m.outcomes) {
		return nil, fmt.Errorf("outcome %d: %w", i, types.ErrInvalidOutcome)
	}
	return m.outcomes[i], nil
}

// LPToken returns the liquidity share token.
func (m *Market) LPToken() *token.Claim { return m.lp }

// OracleAddress returns the adapter the market resolves against.
func (m *Market) OracleAddress() common.Address { return m.oracle.Address() }

// FinalOutcome returns the oracle value the market resolved on.
func (m *Market) FinalOutcome() (*uint256.Int, bool) {
	if m.finalOutcome == nil {
		return nil, false
	}
	return m.finalOutcome.Clone(), true
}

// Payouts returns the collateral paid per whole outcome share once resolved.
func (m *Market) Payouts() []*uint256.Int {
	out := make([]*uint256.Int, len(m.payouts))
	for i, p := range m.payouts {
		out[i] = p.Clone()
	}
	return out
}

// Quantities returns the shares sold per outcome.
func (m *Market) Quantities() []*uint256.Int {
	out := make([]*uint256.Int, len(m.quantities))
	for i, q := range m.quantities {
		out[i] = q.Clone()
	}
	return out
}

// call derives the frame in which the market acts as caller.
func (m *Market) call(tx *ledger.Tx) *ledger.Tx {
	return tx.Call(m.address)
}

func (m *Market) setState(tx *ledger.Tx, next State) error {
	if next <= m.state {
		return fmt.Errorf("transition %s -> %s: %w", m.state, next, types.ErrBadState)
	}
	ledger.Set(tx, &m.state, next)
	return nil
}
