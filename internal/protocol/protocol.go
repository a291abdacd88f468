// Package protocol deploys the complete contract set onto a ledger chain and
// wires the authorisations between contracts.
package protocol

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/curation"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Config holds deployment parameters.
type Config struct {
	// Admin owns the router, collateral and token factory and is the oracle
	// and curation council.
	Admin common.Address

	Split          feerouter.Split
	Liveness       time.Duration
	ReporterBond   *uint256.Int
	DisputerBond   *uint256.Int
	WinnerShareBps uint64
	MinLiquidity   *uint256.Int

	// CurationRequired gates every new market behind curator approval.
	CurationRequired bool

	Reporters []common.Address
	Curators  []common.Address
	Logger    *zap.Logger
}

// Protocol is the deployed contract set.
type Protocol struct {
	Chain      *ledger.Chain
	Admin      common.Address
	Collateral *token.Collateral
	Router     *feerouter.Router
	Tokens     *token.Factory
	Curation   *curation.Registry
	Registry   *factory.Registry

	// Oracles resolve markets by kind: sports results for binary markets,
	// trend rankings for multi-outcome markets, crypto prices for scalar ones.
	Oracles map[market.Kind]*oracle.Adapter

	Binary *factory.BinaryFactory
	Multi  *factory.MultiFactory
	Scalar *factory.ScalarFactory
}

// Deploy deploys and wires every contract in a single transaction sent by cfg.Admin.
func Deploy(chain *ledger.Chain, cfg Config) (*Protocol, error) {
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("protocol admin: %w", types.ErrZeroAddress)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	split := cfg.Split
	if split == (feerouter.Split{}) {
		split = feerouter.DefaultSplit()
	}

	p := &Protocol{
		Chain:    chain,
		Admin:    cfg.Admin,
		Registry: factory.NewRegistry(),
		Oracles:  make(map[market.Kind]*oracle.Adapter, 3),
	}

	err := chain.Execute(cfg.Admin, "protocol.deploy", func(tx *ledger.Tx) error {
		p.Collateral = token.NewCollateral(tx, "Wrapped Ether", "WETH")

		var err error
		if p.Router, err = feerouter.New(tx, feerouter.Config{
			Collateral: p.Collateral,
			Split:      split,
			Logger:     logger.Named("feerouter"),
		}); err != nil {
			return err
		}

		for _, kind := range []market.Kind{market.KindBinary, market.KindMulti, market.KindScalar} {
			a, err := oracle.New(tx, oracle.Config{
				Decoder:        decoderFor(kind),
				Collateral:     p.Collateral,
				Liveness:       cfg.Liveness,
				ReporterBond:   cfg.ReporterBond,
				DisputerBond:   cfg.DisputerBond,
				WinnerShareBps: cfg.WinnerShareBps,
				Logger:         logger.Named("oracle"),
			})
			if err != nil {
				return err
			}
			for _, r := range cfg.Reporters {
				if err := a.SetReporter(tx, r, true); err != nil {
					return err
				}
			}
			p.Oracles[kind] = a
		}

		p.Tokens = token.NewFactory(tx, logger.Named("tokens"))
		p.Curation = curation.New(tx, curation.Config{Logger: logger.Named("curation")})
		for _, c := range cfg.Curators {
			if err := p.Curation.SetCurator(tx, c, true); err != nil {
				return err
			}
		}

		deps := func(kind market.Kind) factory.Deps {
			d := factory.Deps{
				Collateral:   p.Collateral,
				Tokens:       p.Tokens,
				Router:       p.Router,
				Oracle:       p.Oracles[kind],
				Registry:     p.Registry,
				MinLiquidity: cfg.MinLiquidity,
				Logger:       logger.Named("factory"),
			}
			if cfg.CurationRequired {
				d.Curation = p.Curation
			}
			return d
		}
		if p.Binary, err = factory.NewBinaryFactory(tx, deps(market.KindBinary)); err != nil {
			return err
		}
		if p.Multi, err = factory.NewMultiFactory(tx, deps(market.KindMulti)); err != nil {
			return err
		}
		if p.Scalar, err = factory.NewScalarFactory(tx, deps(market.KindScalar)); err != nil {
			return err
		}

		for _, f := range []interface {
			Address() common.Address
			Kind() market.Kind
		}{p.Binary, p.Multi, p.Scalar} {
			if err := p.Tokens.SetDeployer(tx, f.Address(), true); err != nil {
				return err
			}
			if err := p.Router.SetFactory(tx, f.Address(), true); err != nil {
				return err
			}
			if err := p.Curation.SetFactory(tx, f.Address(), true); err != nil {
				return err
			}
			if err := p.Oracles[f.Kind()].SetFactory(tx, f.Address(), true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy protocol: %w", err)
	}

	logger.Info("protocol-deployed",
		zap.String("admin", cfg.Admin.Hex()),
		zap.String("collateral", p.Collateral.Address().Hex()),
		zap.String("fee-router", p.Router.Address().Hex()),
		zap.Bool("curation-required", cfg.CurationRequired))
	return p, nil
}

func decoderFor(kind market.Kind) oracle.Decoder {
	switch kind {
	case market.KindMulti:
		return oracle.Trends{}
	case market.KindScalar:
		return oracle.Crypto{}
	default:
		return oracle.Sports{}
	}
}

// Oracle returns the adapter resolving markets of kind.
func (p *Protocol) Oracle(kind market.Kind) *oracle.Adapter {
	return p.Oracles[kind]
}

// Market returns the market contract at addr.
func (p *Protocol) Market(addr common.Address) (market.Contract, bool) {
	e, ok := p.Registry.ByAddress(addr)
	if !ok {
		return nil, false
	}
	return e.Contract, true
}
