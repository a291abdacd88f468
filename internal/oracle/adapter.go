// Package oracle implements the optimistic oracle adapters markets resolve against.
//
// A whitelisted reporter proposes a result and posts a bond. If nobody
// disputes within the liveness window anyone may finalize it; a dispute
// freezes the proposal until the council arbitrates or invalidates it.
package oracle

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultLiveness is the dispute window when none is configured.
const DefaultLiveness = 2 * time.Hour

// Status of a proposal. Transitions only move forward.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusProposed
	StatusDisputed
	StatusFinalized
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusDisputed:
		return "disputed"
	case StatusFinalized:
		return "finalized"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InvalidValue passed to Arbitrate resolves the proposal as Invalid.
func InvalidValue() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// MarketID derives the oracle id of a market from its key.
func MarketID(marketKey string) common.Hash {
	return crypto.Keccak256Hash([]byte(marketKey))
}

// Collateral is the token bonds are posted in.
type Collateral interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(tx *ledger.Tx, to common.Address, amount *uint256.Int) error
	TransferFrom(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error
}

// Proposal is the resolution record of one market.
type Proposal struct {
	MarketID        common.Hash    `json:"market_id"`
	Market          common.Address `json:"market"`
	Status          Status         `json:"status"`
	Reporter        common.Address `json:"reporter"`
	Disputer        common.Address `json:"disputer,omitempty"`
	ReporterBond    *uint256.Int   `json:"reporter_bond"`
	DisputerBond    *uint256.Int   `json:"disputer_bond"`
	Payload         []byte         `json:"payload"`
	ProposedValue   *uint256.Int   `json:"proposed_value"`
	FinalValue      *uint256.Int   `json:"final_value,omitempty"`
	Evidence        string         `json:"evidence"`
	DisputeEvidence string         `json:"dispute_evidence,omitempty"`
	ProposedAt      uint64         `json:"proposed_at"`
	DisputedAt      uint64         `json:"disputed_at,omitempty"`
	ResolvedAt      uint64         `json:"resolved_at,omitempty"`
}

func (p *Proposal) clone() Proposal {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	return c
}

// Result is what a market reads when it finalizes.
type Result struct {
	Status Status       `json:"status"`
	Value  *uint256.Int `json:"value,omitempty"`
}

// Config holds adapter configuration.
type Config struct {
	Decoder        Decoder
	Collateral     Collateral
	Council        common.Address // zero means the deployer
	Liveness       time.Duration
	ReporterBond   *uint256.Int
	DisputerBond   *uint256.Int
	WinnerShareBps uint64 // share of the losing bond paid to the winner
	Logger         *zap.Logger
}

// Resolvable is a bound market that knows which values it can settle on.
type Resolvable interface {
	Address() common.Address
	ValidateValue(value *uint256.Int) error
}

// Adapter is one optimistic oracle instance.
type Adapter struct {
	address        common.Address
	council        common.Address
	decoder        Decoder
	collateral     Collateral
	liveness       uint64
	reporterBond   *uint256.Int
	disputerBond   *uint256.Int
	winnerShareBps uint64
	logger         *zap.Logger
	guard          ledger.Guard

	reporters map[common.Address]bool
	factories map[common.Address]bool
	markets   map[common.Hash]common.Address
	bound     map[common.Hash]Resolvable
	proposals map[common.Hash]*Proposal
}

// New deploys an adapter.
func New(tx *ledger.Tx, cfg Config) (*Adapter, error) {
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("oracle decoder: %w", types.ErrInvalidParams)
	}
	if cfg.Collateral == nil {
		return nil, fmt.Errorf("oracle collateral: %w", types.ErrZeroAddress)
	}
	if cfg.WinnerShareBps > fixed.BpsDenominator {
		return nil, fmt.Errorf("winner share %d bps: %w", cfg.WinnerShareBps, types.ErrInvalidParams)
	}
	liveness := cfg.Liveness
	if liveness <= 0 {
		liveness = DefaultLiveness
	}
	council := cfg.Council
	if council == (common.Address{}) {
		council = tx.Sender()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		address:        tx.Deploy(tx.Sender()),
		council:        council,
		decoder:        cfg.Decoder,
		collateral:     cfg.Collateral,
		liveness:       uint64(liveness / time.Second),
		reporterBond:   fixed.OrZero(cfg.ReporterBond).Clone(),
		disputerBond:   fixed.OrZero(cfg.DisputerBond).Clone(),
		winnerShareBps: cfg.WinnerShareBps,
		logger:         logger.With(zap.String("oracle", string(cfg.Decoder.Kind()))),
		reporters:      make(map[common.Address]bool),
		factories:      make(map[common.Address]bool),
		markets:        make(map[common.Hash]common.Address),
		bound:          make(map[common.Hash]Resolvable),
		proposals:      make(map[common.Hash]*Proposal),
	}, nil
}

func (a *Adapter) Address() common.Address { return a.address }
func (a *Adapter) Council() common.Address { return a.council }
func (a *Adapter) Kind() Kind              { return a.decoder.Kind() }

// Liveness returns the dispute window.
func (a *Adapter) Liveness() time.Duration {
	return time.Duration(a.liveness) * time.Second
}

// SetReporter whitelists or removes a reporter. Council only.
func (a *Adapter) SetReporter(tx *ledger.Tx, reporter common.Address, allowed bool) error {
	if tx.Sender() != a.council {
		return types.ErrNotCouncil
	}
	if reporter == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, a.reporters, reporter, allowed)
	tx.Emit(a.address, ReporterSet{Reporter: reporter, Allowed: allowed})
	return nil
}

// SetFactory authorises a market factory to bind markets. Council only.
func (a *Adapter) SetFactory(tx *ledger.Tx, factory common.Address, allowed bool) error {
	if tx.Sender() != a.council {
		return types.ErrNotCouncil
	}
	if factory == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, a.factories, factory, allowed)
	tx.Emit(a.address, FactorySet{Factory: factory, Allowed: allowed})
	return nil
}

// SetMarketAddress binds marketID to the market contract that will read its
// result. Authorised factories only; a binding is permanent.
func (a *Adapter) SetMarketAddress(tx *ledger.Tx, marketID common.Hash, market common.Address) error {
	if !a.factories[tx.Sender()] {
		return types.ErrNotAuthorized
	}
	if market == (common.Address{}) {
		return types.ErrZeroAddress
	}
	if _, ok := a.markets[marketID]; ok {
		return fmt.Errorf("market id %s: %w", marketID.Hex(), types.ErrMarketExists)
	}
	ledger.SetKey(tx, a.markets, marketID, market)
	tx.Emit(a.address, MarketBound{MarketID: marketID, Market: market})
	return nil
}

// BindMarket binds marketID to m like SetMarketAddress and additionally
// rejects proposals and rulings m could not settle on.
func (a *Adapter) BindMarket(tx *ledger.Tx, marketID common.Hash, m Resolvable) error {
	if m == nil {
		return types.ErrZeroAddress
	}
	if err := a.SetMarketAddress(tx, marketID, m.Address()); err != nil {
		return err
	}
	ledger.SetKey(tx, a.bound, marketID, m)
	return nil
}

func (a *Adapter) checkValue(marketID common.Hash, value *uint256.Int) error {
	m, ok := a.bound[marketID]
	if !ok {
		return nil
	}
	if err := m.ValidateValue(value); err != nil {
		return fmt.Errorf("value %s for %s: %w", value.Dec(), m.Address().Hex(), err)
	}
	return nil
}

// ProposeResult records a reporter's answer for marketID and locks the reporter bond.
func (a *Adapter) ProposeResult(tx *ledger.Tx, marketID common.Hash, payload []byte, evidence string) error {
	reporter := tx.Sender()
	if !a.reporters[reporter] {
		return types.ErrNotWhitelisted
	}
	market, ok := a.markets[marketID]
	if !ok {
		return fmt.Errorf("market id %s: %w", marketID.Hex(), types.ErrUnknownMarket)
	}
	if _, exists := a.proposals[marketID]; exists {
		return fmt.Errorf("propose %s: %w", marketID.Hex(), types.ErrBadState)
	}

	value, err := a.decoder.Decode(payload)
	if err != nil {
		return err
	}
	if err := a.checkValue(marketID, value); err != nil {
		return err
	}

	p := &Proposal{
		MarketID:      marketID,
		Market:        market,
		Status:        StatusProposed,
		Reporter:      reporter,
		ReporterBond:  a.reporterBond.Clone(),
		DisputerBond:  new(uint256.Int),
		Payload:       append([]byte(nil), payload...),
		ProposedValue: value,
		Evidence:      evidence,
		ProposedAt:    tx.Now(),
	}
	ledger.SetKey(tx, a.proposals, marketID, p)

	if err := a.pull(tx, reporter, p.ReporterBond); err != nil {
		return err
	}

	tx.Emit(a.address, Proposed{
		MarketID: marketID,
		Reporter: reporter,
		Value:    value.Clone(),
		Evidence: evidence,
		Bond:     p.ReporterBond.Clone(),
	})
	a.observe(tx, "proposed", marketID, zap.String("value", value.Dec()))
	return nil
}

// Dispute challenges a proposal inside its liveness window and locks the disputer bond.
func (a *Adapter) Dispute(tx *ledger.Tx, marketID common.Hash, evidence string) error {
	p, err := a.expect(marketID, StatusProposed)
	if err != nil {
		return err
	}
	if tx.Now() >= p.ProposedAt+a.liveness {
		return fmt.Errorf("dispute %s: %w", marketID.Hex(), types.ErrLivenessElapsed)
	}

	disputer := tx.Sender()
	a.update(tx, marketID, func(next *Proposal) {
		next.Status = StatusDisputed
		next.Disputer = disputer
		next.DisputerBond = a.disputerBond.Clone()
		next.DisputeEvidence = evidence
		next.DisputedAt = tx.Now()
	})

	if err := a.pull(tx, disputer, a.disputerBond); err != nil {
		return err
	}

	tx.Emit(a.address, Disputed{
		MarketID: marketID,
		Disputer: disputer,
		Evidence: evidence,
		Bond:     a.disputerBond.Clone(),
	})
	a.observe(tx, "disputed", marketID, zap.String("disputer", disputer.Hex()))
	return nil
}

// Finalize accepts an undisputed proposal once its liveness window has
// elapsed and refunds the reporter bond. Anyone may call it.
func (a *Adapter) Finalize(tx *ledger.Tx, marketID common.Hash) error {
	p, err := a.expect(marketID, StatusProposed)
	if err != nil {
		return err
	}
	if tx.Now() < p.ProposedAt+a.liveness {
		return fmt.Errorf("finalize %s before %d: %w", marketID.Hex(), p.ProposedAt+a.liveness, types.ErrTooEarly)
	}

	value := p.ProposedValue.Clone()
	a.update(tx, marketID, func(next *Proposal) {
		next.Status = StatusFinalized
		next.FinalValue = value
		next.ResolvedAt = tx.Now()
	})

	if err := a.settle(tx, marketID, p.Reporter, p.ReporterBond, "refund"); err != nil {
		return err
	}

	tx.Emit(a.address, Finalized{MarketID: marketID, Status: StatusFinalized, Value: value.Clone()})
	a.observe(tx, "finalized", marketID, zap.String("value", value.Dec()))
	return nil
}

// Arbitrate resolves a disputed proposal. Council only. value becomes the
// final value; InvalidValue marks the proposal Invalid. The winning side gets
// its bond back plus the configured share of the losing bond; the rest goes
// to the council.
func (a *Adapter) Arbitrate(tx *ledger.Tx, marketID common.Hash, value *uint256.Int, reporterWins bool) error {
	if tx.Sender() != a.council {
		return types.ErrNotCouncil
	}
	p, err := a.expect(marketID, StatusDisputed)
	if err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("arbitrate %s: %w", marketID.Hex(), types.ErrInvalidParams)
	}

	status := StatusFinalized
	var final *uint256.Int
	if value.Eq(InvalidValue()) {
		status = StatusInvalid
	} else {
		if err := a.checkValue(marketID, value); err != nil {
			return err
		}
		final = value.Clone()
	}
	a.update(tx, marketID, func(next *Proposal) {
		next.Status = status
		next.FinalValue = final
		next.ResolvedAt = tx.Now()
	})

	winner, winnerBond, loserBond := p.Disputer, p.DisputerBond, p.ReporterBond
	if reporterWins {
		winner, winnerBond, loserBond = p.Reporter, p.ReporterBond, p.DisputerBond
	}
	share, err := fixed.BpsDown(loserBond, a.winnerShareBps)
	if err != nil {
		return err
	}
	reward, err := fixed.Add(winnerBond, share)
	if err != nil {
		return err
	}
	treasury, err := fixed.Sub(loserBond, share)
	if err != nil {
		return err
	}
	if err := a.settle(tx, marketID, winner, reward, "award"); err != nil {
		return err
	}
	if err := a.settle(tx, marketID, a.council, treasury, "forfeit"); err != nil {
		return err
	}

	tx.Emit(a.address, Finalized{MarketID: marketID, Status: status, Value: fixed.OrZero(final).Clone()})
	a.observe(tx, status.String(), marketID,
		zap.Bool("reporter-wins", reporterWins),
		zap.String("value", value.Dec()))
	return nil
}

// Invalidate marks a proposed or disputed result Invalid and refunds every
// posted bond. Council only.
func (a *Adapter) Invalidate(tx *ledger.Tx, marketID common.Hash) error {
	if tx.Sender() != a.council {
		return types.ErrNotCouncil
	}
	p, ok := a.proposals[marketID]
	if !ok || (p.Status != StatusProposed && p.Status != StatusDisputed) {
		return fmt.Errorf("invalidate %s: %w", marketID.Hex(), types.ErrBadState)
	}

	reporter, reporterBond := p.Reporter, p.ReporterBond
	disputer, disputerBond := p.Disputer, p.DisputerBond
	a.update(tx, marketID, func(next *Proposal) {
		next.Status = StatusInvalid
		next.FinalValue = nil
		next.ResolvedAt = tx.Now()
	})

	if err := a.settle(tx, marketID, reporter, reporterBond, "refund"); err != nil {
		return err
	}
	if disputer != (common.Address{}) {
		if err := a.settle(tx, marketID, disputer, disputerBond, "refund"); err != nil {
			return err
		}
	}

	tx.Emit(a.address, Invalidated{MarketID: marketID})
	a.observe(tx, "invalid", marketID)
	return nil
}

// GetResult returns the status of marketID and, once finalized, its value.
func (a *Adapter) GetResult(marketID common.Hash) Result {
	p, ok := a.proposals[marketID]
	if !ok {
		return Result{Status: StatusUnknown}
	}
	r := Result{Status: p.Status}
	if p.Status == StatusFinalized {
		r.Value = p.FinalValue.Clone()
	}
	return r
}

// GetProposal returns a copy of the proposal for marketID.
func (a *Adapter) GetProposal(marketID common.Hash) (Proposal, bool) {
	p, ok := a.proposals[marketID]
	if !ok {
		return Proposal{}, false
	}
	return p.clone(), true
}

// MarketOf returns the market bound to marketID.
func (a *Adapter) MarketOf(marketID common.Hash) (common.Address, bool) {
	m, ok := a.markets[marketID]
	return m, ok
}

func (a *Adapter) expect(marketID common.Hash, want Status) (*Proposal, error) {
	p, ok := a.proposals[marketID]
	if !ok || p.Status != want {
		got := StatusUnknown
		if ok {
			got = p.Status
		}
		return nil, fmt.Errorf("market id %s is %s, want %s: %w", marketID.Hex(), got, want, types.ErrBadState)
	}
	return p, nil
}

// update replaces the stored proposal with a modified copy so the journal can
// restore the previous record on revert.
func (a *Adapter) update(tx *ledger.Tx, marketID common.Hash, fn func(next *Proposal)) {
	next := a.proposals[marketID].clone()
	fn(&next)
	ledger.SetKey(tx, a.proposals, marketID, &next)
}

func (a *Adapter) pull(tx *ledger.Tx, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	return a.collateral.TransferFrom(tx.Call(a.address), from, a.address, amount)
}

func (a *Adapter) settle(tx *ledger.Tx, marketID common.Hash, to common.Address, amount *uint256.Int, reason string) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	release, err := a.guard.Enter(tx)
	if err != nil {
		return err
	}
	defer release()

	if err := a.collateral.Transfer(tx.Call(a.address), to, amount); err != nil {
		return fmt.Errorf("settle bond: %w", err)
	}
	tx.Emit(a.address, BondSettled{MarketID: marketID, To: to, Amount: amount.Clone(), Reason: reason})
	return nil
}

func (a *Adapter) observe(tx *ledger.Tx, event string, marketID common.Hash, fields ...zap.Field) {
	kind := string(a.decoder.Kind())
	tx.AfterCommit(func() {
		ProposalEventsTotal.WithLabelValues(kind, event).Inc()
		a.logger.Info("oracle-"+event,
			append([]zap.Field{zap.String("market_id", marketID.Hex())}, fields...)...)
	})
}
