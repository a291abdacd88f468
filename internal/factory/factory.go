// Package factory creates fully wired markets. A Create call deploys the token
// set and the market, registers it with the fee router, the oracle adapter and
// (optionally) the curation registry, then seeds the pool with the native
// value attached to the call.
package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/curation"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Deps are the contracts a factory wires every market into.
type Deps struct {
	Collateral *token.Collateral
	Tokens     *token.Factory
	Router     *feerouter.Router
	Oracle     *oracle.Adapter
	Registry   *Registry

	// Curation gates new markets when set.
	Curation *curation.Registry

	// MinLiquidity is the smallest accepted initial deposit. Zero means any
	// non-zero amount.
	MinLiquidity *uint256.Int
	Logger       *zap.Logger
}

// base holds what the three factory variants share.
type base struct {
	address  common.Address
	owner    common.Address
	kind     market.Kind
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
}

func newBase(tx *ledger.Tx, kind market.Kind, deps Deps) (*base, error) {
	if deps.Collateral == nil || deps.Tokens == nil || deps.Router == nil || deps.Oracle == nil || deps.Registry == nil {
		return nil, fmt.Errorf("%s factory dependencies: %w", kind, types.ErrZeroAddress)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deps.MinLiquidity = fixed.OrZero(deps.MinLiquidity).Clone()

	return &base{
		address:  tx.Deploy(tx.Sender()),
		owner:    tx.Sender(),
		kind:     kind,
		deps:     deps,
		validate: validator.New(),
		logger:   logger.With(zap.String("factory", string(kind))),
	}, nil
}

// Address returns the factory contract address.
func (f *base) Address() common.Address { return f.address }

// Kind returns the variant the factory creates.
func (f *base) Kind() market.Kind { return f.kind }

// OracleAddress returns the adapter markets of this factory resolve against.
func (f *base) OracleAddress() common.Address { return f.deps.Oracle.Address() }

// constructor builds the variant market at address.
type constructor func(tx *ledger.Tx, address common.Address, p market.Params) (market.Contract, error)

// create runs the shared creation pipeline and returns the registry entry.
func (f *base) create(tx *ledger.Tx, p CreateParams, labels []string, build constructor) (*Entry, error) {
	if err := p.validate(f.validate, tx.Now()); err != nil {
		return nil, err
	}

	creator := tx.Sender()
	liquidity := tx.Value().Clone()
	if liquidity.IsZero() || liquidity.Lt(f.deps.MinLiquidity) {
		return nil, fmt.Errorf("initial liquidity %s below %s: %w",
			fixed.Format(liquidity), fixed.Format(f.deps.MinLiquidity), types.ErrLiquidityRequired)
	}

	self := tx.Call(f.address)
	address := tx.Deploy(f.address)

	set, err := f.deps.Tokens.Deploy(self, address, p.MarketKey, labels)
	if err != nil {
		return nil, fmt.Errorf("deploy tokens: %w", err)
	}

	params := market.Params{
		Kind:               f.kind,
		Question:           p.Question,
		MetadataURI:        p.MetadataURI,
		Creator:            creator,
		MarketKey:          p.MarketKey,
		FeeBps:             p.FeeBps,
		StartTime:          p.StartTime,
		EndTime:            p.EndTime,
		ResolutionDeadline: p.ResolutionDeadline,
		Outcomes:           labels,
		Lower:              p.Lower,
		Upper:              p.Upper,
		Collateral:         f.deps.Collateral,
		Oracle:             f.deps.Oracle,
		FeeRouter:          f.deps.Router,
		Tokens:             set,
		Logger:             f.logger,
	}
	if f.deps.Curation != nil {
		params.Gate = f.deps.Curation
	}

	m, err := build(tx, address, params)
	if err != nil {
		return nil, err
	}
	info := m.Info()

	if err := f.deps.Router.SetCreator(self, address, creator); err != nil {
		return nil, fmt.Errorf("register creator: %w", err)
	}
	if err := f.deps.Oracle.BindMarket(self, info.MarketID, m); err != nil {
		return nil, fmt.Errorf("bind oracle: %w", err)
	}
	if f.deps.Curation != nil {
		if err := f.deps.Curation.Register(self, address); err != nil {
			return nil, fmt.Errorf("register curation: %w", err)
		}
	}
	if err := f.seed(tx, m, creator, liquidity); err != nil {
		return nil, err
	}

	entry := f.deps.Registry.add(tx, Entry{
		Address:   address,
		MarketID:  info.MarketID,
		Kind:      f.kind,
		Creator:   creator,
		Key:       p.MarketKey,
		Oracle:    f.deps.Oracle.Address(),
		Factory:   f.address,
		CreatedAt: tx.Now(),
		Contract:  m,
	})
	tx.Emit(f.address, MarketCreated{
		Market:           address,
		MarketID:         info.MarketID,
		ID:               entry.ID,
		Kind:             f.kind,
		Creator:          creator,
		Key:              p.MarketKey,
		InitialLiquidity: liquidity.Clone(),
	})

	kind := string(f.kind)
	tx.AfterCommit(func() {
		MarketsCreatedTotal.WithLabelValues(kind).Inc()
		InitialLiquidityTotal.WithLabelValues(kind).Add(fixed.Float(liquidity))
		f.logger.Info("market-created",
			zap.Uint64("id", entry.ID),
			zap.String("market", address.Hex()),
			zap.String("market-id", info.MarketID.Hex()),
			zap.String("key", p.MarketKey),
			zap.String("creator", creator.Hex()),
			zap.String("initial-liquidity", fixed.Format(liquidity)))
	})
	return entry, nil
}

// seed wraps the attached native value and deposits it as the first
// liquidity. The LP tokens go to the creator.
func (f *base) seed(tx *ledger.Tx, m market.Contract, creator common.Address, amount *uint256.Int) error {
	collateral := f.deps.Collateral

	frame, err := tx.CallWithValue(f.address, collateral.Address(), amount)
	if err != nil {
		return fmt.Errorf("forward liquidity: %w", err)
	}
	if err := collateral.Deposit(frame); err != nil {
		return fmt.Errorf("wrap liquidity: %w", err)
	}

	self := tx.Call(f.address)
	if err := collateral.Approve(self, m.Address(), amount); err != nil {
		return err
	}
	minted, err := m.AddLiquidity(self, amount)
	if err != nil {
		return fmt.Errorf("seed liquidity: %w", err)
	}
	return m.LPToken().Transfer(self, creator, minted)
}
