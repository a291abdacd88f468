package market

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const genesis = uint64(1_700_000_000)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000ad000")
	deployer = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	reporter = common.HexToAddress("0x000000000000000000000000000000000e90e700")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000c4ea7")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca401")
)

type env struct {
	t          *testing.T
	chain      *ledger.Chain
	collateral *token.Collateral
	router     *feerouter.Router
	sports     *oracle.Adapter
	crypto     *oracle.Adapter
	tokens     *token.Factory
	keys       int
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := zaptest.NewLogger(t)
	chain := ledger.New(ledger.Config{StartTime: genesis, Logger: logger})
	for _, who := range []common.Address{creator, alice, bob, carol, reporter} {
		chain.Fund(who, fixed.Units(1_000_000))
	}

	e := &env{t: t, chain: chain}
	require.NoError(t, chain.Execute(admin, "env.deploy", func(tx *ledger.Tx) error {
		e.collateral = token.NewCollateral(tx, "Wrapped Ether", "WETH")

		var err error
		if e.router, err = feerouter.New(tx, feerouter.Config{
			Collateral: e.collateral,
			Split:      feerouter.DefaultSplit(),
			Logger:     logger,
		}); err != nil {
			return err
		}
		if err := e.router.SetFactory(tx, deployer, true); err != nil {
			return err
		}

		for _, dst := range []struct {
			adapter **oracle.Adapter
			decoder oracle.Decoder
		}{{&e.sports, oracle.Sports{}}, {&e.crypto, oracle.Crypto{}}} {
			a, err := oracle.New(tx, oracle.Config{
				Decoder:    dst.decoder,
				Collateral: e.collateral,
				Liveness:   oracle.DefaultLiveness,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			if err := a.SetFactory(tx, deployer, true); err != nil {
				return err
			}
			if err := a.SetReporter(tx, reporter, true); err != nil {
				return err
			}
			*dst.adapter = a
		}

		e.tokens = token.NewFactory(tx, logger)
		return e.tokens.SetDeployer(tx, deployer, true)
	}))

	for _, who := range []common.Address{creator, alice, bob, carol} {
		require.NoError(t, chain.ExecuteWithValue(who, e.collateral.Address(), fixed.Units(100_000),
			"collateral.deposit", e.collateral.Deposit))
	}
	return e
}

type marketOpts struct {
	kind      Kind
	liquidity uint64
	feeBps    uint64
	outcomes  []string
	lower     *uint256.Int
	upper     *uint256.Int
	gate      Gate
}

// create deploys a market the way a factory does and seeds it with liquidity from creator.
// The trading window is [now+300, now+1800] with resolution at now+3600.
func (e *env) create(opts marketOpts) *Market {
	e.t.Helper()

	e.keys++
	key := "market-" + string(rune('a'+e.keys))
	now := e.chain.Now()

	adapter := e.sports
	if opts.kind == KindScalar {
		adapter = e.crypto
	}
	labels := opts.outcomes
	if len(labels) == 0 {
		labels = []string{"Yes", "No"}
	}

	var m *Market
	require.NoError(e.t, e.chain.Execute(deployer, "env.create", func(tx *ledger.Tx) error {
		addr := tx.Deploy(deployer)
		set, err := e.tokens.Deploy(tx, addr, key, labels)
		if err != nil {
			return err
		}
		m, err = New(tx, addr, Params{
			Kind:               opts.kind,
			Question:           "Will it happen?",
			MetadataURI:        "ipfs://meta",
			Creator:            creator,
			MarketKey:          key,
			FeeBps:             opts.feeBps,
			StartTime:          now + 300,
			EndTime:            now + 1800,
			ResolutionDeadline: now + 3600,
			Outcomes:           labels,
			Lower:              opts.lower,
			Upper:              opts.upper,
			Collateral:         e.collateral,
			Oracle:             adapter,
			FeeRouter:          e.router,
			Tokens:             set,
			Gate:               opts.gate,
			Logger:             zaptest.NewLogger(e.t),
		})
		if err != nil {
			return err
		}
		if err := e.router.SetCreator(tx, addr, creator); err != nil {
			return err
		}
		return adapter.BindMarket(tx, m.MarketID(), m)
	}))

	for _, who := range []common.Address{creator, alice, bob, carol} {
		require.NoError(e.t, e.chain.Execute(who, "collateral.approve", func(tx *ledger.Tx) error {
			return e.collateral.Approve(tx, m.Address(), token.MaxAllowance())
		}))
	}
	if opts.liquidity > 0 {
		e.addLiquidity(m, creator, fixed.Units(opts.liquidity))
	}
	return m
}

func (e *env) addLiquidity(m *Market, who common.Address, amount *uint256.Int) *uint256.Int {
	e.t.Helper()
	var minted *uint256.Int
	require.NoError(e.t, e.chain.Execute(who, "market.add-liquidity", func(tx *ledger.Tx) error {
		var err error
		minted, err = m.AddLiquidity(tx, amount)
		return err
	}))
	return minted
}

func (e *env) removeLiquidity(m *Market, who common.Address, lp *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	err := e.chain.Execute(who, "market.remove-liquidity", func(tx *ledger.Tx) error {
		var err error
		paid, err = m.RemoveLiquidity(tx, lp)
		return err
	})
	return paid, err
}

func (e *env) buy(m *Market, who common.Address, outcome int, shares *uint256.Int) (Quote, error) {
	var q Quote
	err := e.chain.Execute(who, "market.buy", func(tx *ledger.Tx) error {
		var err error
		q, err = m.Buy(tx, outcome, shares)
		return err
	})
	return q, err
}

func (e *env) mustBuy(m *Market, who common.Address, outcome int, units uint64) Quote {
	e.t.Helper()
	q, err := e.buy(m, who, outcome, fixed.Units(units))
	require.NoError(e.t, err)
	return q
}

func (e *env) redeem(m *Market, who common.Address) *uint256.Int {
	e.t.Helper()
	var paid *uint256.Int
	require.NoError(e.t, e.chain.Execute(who, "market.redeem", func(tx *ledger.Tx) error {
		var err error
		paid, err = m.Redeem(tx)
		return err
	}))
	return paid
}

func (e *env) openTrading(m *Market) {
	e.t.Helper()
	require.NoError(e.t, e.chain.SetTime(m.StartTime()))
}

// resolve walks the market through close, oracle proposal, liveness and finalize.
func (e *env) resolve(m *Market, payload []byte, value *uint256.Int) {
	e.t.Helper()

	adapter := e.sports
	if m.Kind() == KindScalar {
		adapter = e.crypto
	}

	require.NoError(e.t, e.chain.SetTime(m.ResolutionDeadline()))
	require.NoError(e.t, e.chain.Execute(reporter, "oracle.propose", func(tx *ledger.Tx) error {
		return adapter.ProposeResult(tx, m.MarketID(), payload, "ipfs://evidence")
	}))
	e.chain.Advance(oracle.DefaultLiveness)
	require.NoError(e.t, e.chain.Execute(alice, "oracle.finalize", func(tx *ledger.Tx) error {
		return adapter.Finalize(tx, m.MarketID())
	}))
	require.NoError(e.t, e.chain.Execute(bob, "market.close", m.Close))
	require.NoError(e.t, e.chain.Execute(carol, "market.finalize", func(tx *ledger.Tx) error {
		return m.Finalize(tx, value)
	}))
}

func sportsPayload(t *testing.T, winner uint8) []byte {
	t.Helper()
	payload, err := oracle.EncodeSports(1, 0, winner)
	require.NoError(t, err)
	return payload
}
