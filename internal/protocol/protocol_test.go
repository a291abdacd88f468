package protocol

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/curation"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000ad000")
	disputer = common.HexToAddress("0x00000000000000000000000000000000000d15e7")
	curator  = common.HexToAddress("0x00000000000000000000000000000000000c0a7e")
)

func deploy(t *testing.T, mutate func(*Config)) *Protocol {
	t.Helper()

	logger := zaptest.NewLogger(t)
	chain := ledger.New(ledger.Config{StartTime: 1_700_000_000, Logger: logger})
	cfg := Config{
		Admin:     admin,
		Reporters: []common.Address{DefaultScenario().Reporter},
		Curators:  []common.Address{curator},
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := Deploy(chain, cfg)
	require.NoError(t, err)
	return p
}

func TestDeploy_WiresFactories(t *testing.T) {
	t.Parallel()

	p := deploy(t, nil)

	assert.Equal(t, oracle.KindSports, p.Oracle(market.KindBinary).Kind())
	assert.Equal(t, oracle.KindTrends, p.Oracle(market.KindMulti).Kind())
	assert.Equal(t, oracle.KindCrypto, p.Oracle(market.KindScalar).Kind())
	assert.Equal(t, admin, p.Router.Owner())
	assert.NotEqual(t, p.Binary.Address(), p.Multi.Address())
	assert.Equal(t, p.Oracle(market.KindScalar).Address(), p.Scalar.OracleAddress())

	_, err := Deploy(p.Chain, Config{})
	assert.ErrorIs(t, err, types.ErrZeroAddress)
}

func TestBinaryLifecycle_EndToEnd(t *testing.T) {
	t.Parallel()

	p := deploy(t, nil)
	s := DefaultScenario()

	sum, err := RunBinary(p, s, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, fixed.Units(50), sum.YesRedeemed)
	assert.True(t, sum.NoRedeemed.IsZero())
	assert.True(t, sum.CreatorFees.Sign() > 0)
	assert.True(t, sum.ProtocolFees.Sign() > 0)
	assert.True(t, sum.LPFees.Sign() > 0)
	assert.True(t, sum.FinalPool.IsZero())

	// The creator recovers the subsidy plus the losing side's cost.
	assert.True(t, sum.CreatorPayout.Gt(s.Liquidity))

	// Fees are split 30/30/40 with the LP bucket taking the remainder.
	fees := new(uint256.Int).Add(sum.YesQuote.Fee, sum.NoQuote.Fee)
	total := new(uint256.Int).Add(sum.CreatorFees, sum.ProtocolFees)
	total.Add(total, sum.LPFees)
	assert.Equal(t, fees, total)
	assert.Equal(t, sum.CreatorFees, sum.ProtocolFees)

	entry, ok := p.Registry.ByAddress(sum.Market)
	require.True(t, ok)
	assert.Equal(t, s.Creator, entry.Creator)
	assert.Equal(t, sum.MarketID, entry.MarketID)
	require.NoError(t, p.Router.CheckInvariant())
}

func TestDisputedResolution(t *testing.T) {
	t.Parallel()

	p := deploy(t, func(c *Config) {
		c.ReporterBond = fixed.Units(100)
		c.DisputerBond = fixed.Units(100)
		c.WinnerShareBps = 5_000
	})
	s := DefaultScenario()
	chain := p.Chain
	adapter := p.Oracle(market.KindBinary)
	chain.Fund(s.Creator, fixed.Units(10_000))

	now := chain.Now()
	var m *market.Binary
	require.NoError(t, chain.ExecuteWithValue(s.Creator, p.Binary.Address(), fixed.Units(500), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			m, err = p.Binary.Create(tx, factory.CreateParams{
				Question:           "Disputed?",
				MarketKey:          "disputed",
				FeeBps:             100,
				StartTime:          now + 10,
				EndTime:            now + 100,
				ResolutionDeadline: now + 200,
			})
			return err
		}))

	for _, who := range []common.Address{s.YesBuyer, s.Reporter, disputer} {
		chain.Fund(who, fixed.Units(10_000))
		require.NoError(t, fundCollateral(chain, p.Collateral, who, fixed.Units(1_000), m.Address(), adapter.Address()))
	}

	require.NoError(t, chain.SetTime(m.StartTime()))
	_, err := buy(chain, m, s.YesBuyer, market.Yes, fixed.Units(20))
	require.NoError(t, err)

	require.NoError(t, chain.SetTime(m.ResolutionDeadline()))
	require.NoError(t, chain.Execute(s.Creator, "market.close", m.Close))

	// The reporter claims NO; the disputer challenges inside liveness.
	payload, err := oracle.EncodeSports(0, 3, market.No)
	require.NoError(t, err)
	require.NoError(t, chain.Execute(s.Reporter, "oracle.propose", func(tx *ledger.Tx) error {
		return adapter.ProposeResult(tx, m.MarketID(), payload, "box score")
	}))
	require.NoError(t, chain.Execute(disputer, "oracle.dispute", func(tx *ledger.Tx) error {
		return adapter.Dispute(tx, m.MarketID(), "wrong team")
	}))

	chain.Advance(adapter.Liveness())
	err = chain.Execute(s.YesBuyer, "oracle.finalize", func(tx *ledger.Tx) error {
		return adapter.Finalize(tx, m.MarketID())
	})
	assert.ErrorIs(t, err, types.ErrBadState)

	finalize := func(v uint64) error {
		return chain.Execute(s.YesBuyer, "market.finalize", func(tx *ledger.Tx) error {
			return m.Finalize(tx, uint256.NewInt(v))
		})
	}
	assert.ErrorIs(t, finalize(market.Yes), types.ErrOracleNotFinalized)

	require.NoError(t, chain.Execute(admin, "oracle.arbitrate", func(tx *ledger.Tx) error {
		return adapter.Arbitrate(tx, m.MarketID(), uint256.NewInt(market.Yes), false)
	}))
	assert.ErrorIs(t, finalize(market.No), types.ErrOutcomeMismatch)
	require.NoError(t, finalize(market.Yes))

	paid, err := redeem(chain, m, s.YesBuyer)
	require.NoError(t, err)
	assert.Equal(t, fixed.Units(20), paid)

	// Disputer: bond back plus half the reporter's bond. Reporter: lost the bond.
	assert.Equal(t, fixed.Units(1_050), p.Collateral.BalanceOf(disputer))
	assert.Equal(t, fixed.Units(900), p.Collateral.BalanceOf(s.Reporter))
	assert.Equal(t, fixed.Units(50), p.Collateral.BalanceOf(admin))
	require.NoError(t, m.CheckSolvency())
}

func TestBinary_RejectsUnpayableResult(t *testing.T) {
	t.Parallel()

	p := deploy(t, nil)
	s := DefaultScenario()
	chain := p.Chain
	adapter := p.Oracle(market.KindBinary)
	chain.Fund(s.Creator, fixed.Units(10_000))

	now := chain.Now()
	var m *market.Binary
	require.NoError(t, chain.ExecuteWithValue(s.Creator, p.Binary.Address(), fixed.Units(500), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			m, err = p.Binary.Create(tx, factory.CreateParams{
				Question:           "Draw?",
				MarketKey:          "draw",
				StartTime:          now + 10,
				EndTime:            now + 100,
				ResolutionDeadline: now + 200,
			})
			return err
		}))
	chain.Fund(s.Reporter, fixed.Units(10_000))
	require.NoError(t, fundCollateral(chain, p.Collateral, s.Reporter, fixed.Units(1_000), adapter.Address()))

	require.NoError(t, chain.SetTime(m.ResolutionDeadline()))
	require.NoError(t, chain.Execute(s.Creator, "market.close", m.Close))

	propose := func(winner uint8) error {
		payload, err := oracle.EncodeSports(1, 0, winner)
		require.NoError(t, err)
		return chain.Execute(s.Reporter, "oracle.propose", func(tx *ledger.Tx) error {
			return adapter.ProposeResult(tx, m.MarketID(), payload, "")
		})
	}
	assert.ErrorIs(t, propose(2), types.ErrInvalidOutcome)

	require.NoError(t, propose(market.Yes))
	chain.Advance(adapter.Liveness())
	require.NoError(t, chain.Execute(s.Creator, "oracle.finalize", func(tx *ledger.Tx) error {
		return adapter.Finalize(tx, m.MarketID())
	}))
	require.NoError(t, chain.Execute(s.Creator, "market.finalize", func(tx *ledger.Tx) error {
		return m.Finalize(tx, uint256.NewInt(market.Yes))
	}))

	// The creator's liquidity is not stuck.
	lp := m.LPToken().BalanceOf(s.Creator)
	require.NoError(t, chain.Execute(s.Creator, "market.remove-liquidity", func(tx *ledger.Tx) error {
		_, err := m.RemoveLiquidity(tx, lp)
		return err
	}))
	require.NoError(t, m.CheckSolvency())
}

func TestCurationRequired_GatesTrading(t *testing.T) {
	t.Parallel()

	p := deploy(t, func(c *Config) { c.CurationRequired = true })
	s := DefaultScenario()
	chain := p.Chain
	chain.Fund(s.Creator, fixed.Units(10_000))
	chain.Fund(s.YesBuyer, fixed.Units(10_000))

	now := chain.Now()
	var m *market.Binary
	require.NoError(t, chain.ExecuteWithValue(s.Creator, p.Binary.Address(), fixed.Units(100), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			m, err = p.Binary.Create(tx, factory.CreateParams{
				Question:           "Curated?",
				MarketKey:          "curated",
				StartTime:          now + 10,
				EndTime:            now + 100,
				ResolutionDeadline: now + 200,
			})
			return err
		}))
	assert.Equal(t, curation.StatusPending, p.Curation.StatusOf(m.Address()))

	require.NoError(t, fundCollateral(chain, p.Collateral, s.YesBuyer, fixed.Units(100), m.Address()))
	require.NoError(t, chain.SetTime(m.StartTime()))

	_, err := buy(chain, m, s.YesBuyer, market.Yes, fixed.One())
	assert.ErrorIs(t, err, types.ErrNotApproved)

	require.NoError(t, chain.Execute(curator, "curation.set-status", func(tx *ledger.Tx) error {
		return p.Curation.SetStatus(tx, m.Address(), curation.StatusApproved)
	}))
	_, err = buy(chain, m, s.YesBuyer, market.Yes, fixed.One())
	require.NoError(t, err)

	require.NoError(t, chain.Execute(curator, "curation.set-status", func(tx *ledger.Tx) error {
		return p.Curation.SetStatus(tx, m.Address(), curation.StatusFlagged)
	}))
	_, err = buy(chain, m, s.YesBuyer, market.Yes, fixed.One())
	assert.ErrorIs(t, err, types.ErrNotApproved)
}
