// Package feerouter implements the fee ledger every market reports trade fees to.
//
// Markets transfer the protocol and creator shares of a fee to the router and
// then call Accrue; the LP share stays in the market pool and is recorded here
// for statistics only. Creators and the protocol owner pull their balances
// with ClaimCreator and ClaimProtocol.
package feerouter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Collateral is the token fees are paid in.
type Collateral interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(tx *ledger.Tx, to common.Address, amount *uint256.Int) error
}

// Split holds the fee split in basis points. The parts must sum to 10000.
type Split struct {
	ProtocolBps uint64
	CreatorBps  uint64
	LPBps       uint64
}

// DefaultSplit is 30% protocol, 30% creator, 40% LP.
func DefaultSplit() Split {
	return Split{ProtocolBps: 3000, CreatorBps: 3000, LPBps: 4000}
}

// Validate checks that the split covers exactly the whole fee.
func (s Split) Validate() error {
	if s.ProtocolBps+s.CreatorBps+s.LPBps != fixed.BpsDenominator {
		return fmt.Errorf("split %d/%d/%d: %w", s.ProtocolBps, s.CreatorBps, s.LPBps, types.ErrInvalidFeeSplit)
	}
	return nil
}

// Apply divides fee into its three buckets. Protocol and creator shares are
// floored; the LP share takes the remainder so the parts always sum to fee.
func (s Split) Apply(fee *uint256.Int) (protocol, creator, lp *uint256.Int, err error) {
	if protocol, err = fixed.BpsDown(fee, s.ProtocolBps); err != nil {
		return nil, nil, nil, err
	}
	if creator, err = fixed.BpsDown(fee, s.CreatorBps); err != nil {
		return nil, nil, nil, err
	}
	lp = new(uint256.Int).Sub(fixed.OrZero(fee), protocol)
	lp.Sub(lp, creator)
	return protocol, creator, lp, nil
}

// Config holds fee router configuration.
type Config struct {
	Collateral Collateral
	Split      Split
	Logger     *zap.Logger
}

// Router is the fee ledger.
type Router struct {
	address    common.Address
	owner      common.Address
	collateral Collateral
	split      Split
	logger     *zap.Logger
	guard      ledger.Guard

	factories map[common.Address]bool
	creators  map[common.Address]common.Address // market -> creator

	creatorAccrued  map[common.Address]*uint256.Int
	creatorLifetime map[common.Address]*uint256.Int
	marketCreator   map[common.Address]*uint256.Int // creator fees earned per market
	lpFees          map[common.Address]*uint256.Int

	protocolAccrued  *uint256.Int
	protocolLifetime *uint256.Int

	// owed is every claimable balance still held by the router.
	owed          *uint256.Int
	totalAccrued  *uint256.Int
	totalClaimed  *uint256.Int
	tradesAccrued uint64
}

// New deploys a router owned by the transaction sender.
func New(tx *ledger.Tx, cfg Config) (*Router, error) {
	if cfg.Collateral == nil {
		return nil, fmt.Errorf("fee router collateral: %w", types.ErrZeroAddress)
	}
	if err := cfg.Split.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		address:          tx.Deploy(tx.Sender()),
		owner:            tx.Sender(),
		collateral:       cfg.Collateral,
		split:            cfg.Split,
		logger:           logger,
		factories:        make(map[common.Address]bool),
		creators:         make(map[common.Address]common.Address),
		creatorAccrued:   make(map[common.Address]*uint256.Int),
		creatorLifetime:  make(map[common.Address]*uint256.Int),
		marketCreator:    make(map[common.Address]*uint256.Int),
		lpFees:           make(map[common.Address]*uint256.Int),
		protocolAccrued:  new(uint256.Int),
		protocolLifetime: new(uint256.Int),
		owed:             new(uint256.Int),
		totalAccrued:     new(uint256.Int),
		totalClaimed:     new(uint256.Int),
	}, nil
}

// Address returns the router contract address.
func (r *Router) Address() common.Address { return r.address }

// Owner returns the protocol owner.
func (r *Router) Owner() common.Address { return r.owner }

// Split returns the configured fee split.
func (r *Router) Split() Split { return r.split }

// SetFactory authorises or revokes a market factory. Owner only.
func (r *Router) SetFactory(tx *ledger.Tx, factory common.Address, allowed bool) error {
	if tx.Sender() != r.owner {
		return types.ErrNotOwner
	}
	if factory == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, r.factories, factory, allowed)
	tx.Emit(r.address, FactorySet{Factory: factory, Allowed: allowed})
	return nil
}

// SetCreator records the creator of market and registers market as allowed
// to accrue. Owner or authorised factory; first write wins.
func (r *Router) SetCreator(tx *ledger.Tx, market, creator common.Address) error {
	if tx.Sender() != r.owner && !r.factories[tx.Sender()] {
		return types.ErrNotAuthorized
	}
	if market == (common.Address{}) || creator == (common.Address{}) {
		return types.ErrZeroAddress
	}
	if _, ok := r.creators[market]; ok {
		return fmt.Errorf("market %s: %w", market.Hex(), types.ErrCreatorAlreadySet)
	}
	ledger.SetKey(tx, r.creators, market, creator)
	tx.Emit(r.address, CreatorSet{Market: market, Creator: creator})
	return nil
}

// Accrue records the three fee shares of one trade. Only a registered market
// may call it, for itself, after transferring protocolFee+creatorFee to the router.
func (r *Router) Accrue(tx *ledger.Tx, market common.Address, protocolFee, creatorFee, lpFee *uint256.Int) error {
	creator, ok := r.creators[market]
	if !ok || tx.Sender() != market {
		return types.ErrNotAuthorized
	}

	incoming, err := fixed.Add(protocolFee, creatorFee)
	if err != nil {
		return err
	}
	owed, err := fixed.Add(r.owed, incoming)
	if err != nil {
		return err
	}
	if r.collateral.BalanceOf(r.address).Lt(owed) {
		return fmt.Errorf("accrue %s unfunded: %w", fixed.Format(incoming), types.ErrInsufficientBalance)
	}
	total, err := fixed.Add(incoming, lpFee)
	if err != nil {
		return err
	}

	if err := r.credit(tx, r.creatorAccrued, creator, creatorFee); err != nil {
		return err
	}
	if err := r.credit(tx, r.creatorLifetime, creator, creatorFee); err != nil {
		return err
	}
	if err := r.credit(tx, r.marketCreator, market, creatorFee); err != nil {
		return err
	}
	if err := r.credit(tx, r.lpFees, market, lpFee); err != nil {
		return err
	}
	if err := r.add(tx, &r.protocolAccrued, protocolFee); err != nil {
		return err
	}
	if err := r.add(tx, &r.protocolLifetime, protocolFee); err != nil {
		return err
	}
	if err := r.add(tx, &r.totalAccrued, total); err != nil {
		return err
	}
	ledger.Set(tx, &r.owed, owed)
	ledger.Set(tx, &r.tradesAccrued, r.tradesAccrued+1)

	tx.Emit(r.address, Accrued{
		Market:      market,
		Creator:     creator,
		ProtocolFee: fixed.OrZero(protocolFee).Clone(),
		CreatorFee:  fixed.OrZero(creatorFee).Clone(),
		LPFee:       fixed.OrZero(lpFee).Clone(),
	})

	tx.AfterCommit(func() {
		AccruedTotal.WithLabelValues("protocol").Add(fixed.Float(protocolFee))
		AccruedTotal.WithLabelValues("creator").Add(fixed.Float(creatorFee))
		AccruedTotal.WithLabelValues("lp").Add(fixed.Float(lpFee))
	})
	return nil
}

// ClaimCreator pays the sender's whole creator balance to to. The sender
// must be the recorded creator of market. Returns the amount paid.
func (r *Router) ClaimCreator(tx *ledger.Tx, market, to common.Address) (*uint256.Int, error) {
	creator, ok := r.creators[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market.Hex(), types.ErrUnknownMarket)
	}
	if tx.Sender() != creator {
		return nil, types.ErrNotAuthorized
	}

	amount := fixed.OrZero(r.creatorAccrued[creator]).Clone()
	if err := r.payout(tx, to, amount, func() {
		ledger.SetKey(tx, r.creatorAccrued, creator, new(uint256.Int))
	}); err != nil {
		return nil, err
	}

	tx.Emit(r.address, ClaimedCreator{Creator: creator, To: to, Amount: amount.Clone()})
	tx.AfterCommit(func() {
		ClaimedTotal.WithLabelValues("creator").Add(fixed.Float(amount))
		r.logger.Info("creator-fees-claimed",
			zap.String("creator", creator.Hex()),
			zap.String("to", to.Hex()),
			zap.String("amount", fixed.Format(amount)))
	})
	return amount, nil
}

// ClaimProtocol pays the protocol balance to to. Owner only.
func (r *Router) ClaimProtocol(tx *ledger.Tx, to common.Address) (*uint256.Int, error) {
	if tx.Sender() != r.owner {
		return nil, types.ErrNotOwner
	}

	amount := r.protocolAccrued.Clone()
	if err := r.payout(tx, to, amount, func() {
		ledger.Set(tx, &r.protocolAccrued, new(uint256.Int))
	}); err != nil {
		return nil, err
	}

	tx.Emit(r.address, ClaimedProtocol{To: to, Amount: amount.Clone()})
	tx.AfterCommit(func() {
		ClaimedTotal.WithLabelValues("protocol").Add(fixed.Float(amount))
		r.logger.Info("protocol-fees-claimed",
			zap.String("to", to.Hex()),
			zap.String("amount", fixed.Format(amount)))
	})
	return amount, nil
}

// payout zeroes a balance through clear and then transfers amount.
func (r *Router) payout(tx *ledger.Tx, to common.Address, amount *uint256.Int, clear func()) error {
	if to == (common.Address{}) {
		return types.ErrZeroAddress
	}
	release, err := r.guard.Enter(tx)
	if err != nil {
		return err
	}
	defer release()

	if amount.IsZero() {
		return nil
	}

	owed, err := fixed.Sub(r.owed, amount)
	if err != nil {
		return err
	}
	claimed, err := fixed.Add(r.totalClaimed, amount)
	if err != nil {
		return err
	}
	clear()
	ledger.Set(tx, &r.owed, owed)
	ledger.Set(tx, &r.totalClaimed, claimed)

	return r.collateral.Transfer(tx.Call(r.address), to, amount)
}

func (r *Router) credit(tx *ledger.Tx, m map[common.Address]*uint256.Int, key common.Address, amount *uint256.Int) error {
	v, err := fixed.Add(m[key], amount)
	if err != nil {
		return err
	}
	ledger.SetKey(tx, m, key, v)
	return nil
}

func (r *Router) add(tx *ledger.Tx, field **uint256.Int, amount *uint256.Int) error {
	v, err := fixed.Add(*field, amount)
	if err != nil {
		return err
	}
	ledger.Set(tx, field, v)
	return nil
}
