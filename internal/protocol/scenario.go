package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"go.uber.org/zap"
)

// Scenario is a scripted binary market lifecycle: create, two opposing buys,
// oracle resolution, redemption and fee claims.
type Scenario struct {
	Creator  common.Address
	YesBuyer common.Address
	NoBuyer  common.Address
	Reporter common.Address

	Liquidity *uint256.Int
	FeeBps    uint64
	YesShares *uint256.Int
	NoShares  *uint256.Int
	Winner    uint8 // market.Yes or market.No

	// Window offsets from the current chain time, in seconds.
	StartIn    uint64
	Duration   uint64
	ResolveLag uint64
}

// DefaultScenario is 1000 units of liquidity, a 1% fee, 50 YES against 100 NO
// shares and a YES outcome.
func DefaultScenario() Scenario {
	return Scenario{
		Creator:    common.HexToAddress("0x00000000000000000000000000000000000c4ea7"),
		YesBuyer:   common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
		NoBuyer:    common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		Reporter:   common.HexToAddress("0x00000000000000000000000000000000000e90e7"),
		Liquidity:  fixed.Units(1_000),
		FeeBps:     100,
		YesShares:  fixed.Units(50),
		NoShares:   fixed.Units(100),
		Winner:     market.Yes,
		StartIn:    60,
		Duration:   3_600,
		ResolveLag: 3_600,
	}
}

// Summary is the outcome of a scenario run.
type Summary struct {
	Market        common.Address `json:"market"`
	MarketID      common.Hash    `json:"market_id"`
	YesQuote      market.Quote   `json:"yes_quote"`
	NoQuote       market.Quote   `json:"no_quote"`
	YesRedeemed   *uint256.Int   `json:"yes_redeemed"`
	NoRedeemed    *uint256.Int   `json:"no_redeemed"`
	CreatorFees   *uint256.Int   `json:"creator_fees"`
	ProtocolFees  *uint256.Int   `json:"protocol_fees"`
	LPFees        *uint256.Int   `json:"lp_fees"`
	FinalPool     *uint256.Int   `json:"final_pool"`
	CreatorPayout *uint256.Int   `json:"creator_payout"`
}

// RunBinary plays s against p, funding every actor from the chain as needed.
// The chain reporter must be whitelisted on the binary oracle.
func RunBinary(p *Protocol, s Scenario, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := p.Chain
	adapter := p.Oracle(market.KindBinary)

	for _, who := range []common.Address{s.Creator, s.YesBuyer, s.NoBuyer, s.Reporter} {
		chain.Fund(who, fixed.Units(100_000))
	}

	now := chain.Now()
	params := factory.CreateParams{
		Question:           "Will the home team win?",
		MarketKey:          fmt.Sprintf("scenario-%d", now),
		FeeBps:             s.FeeBps,
		StartTime:          now + s.StartIn,
		EndTime:            now + s.StartIn + s.Duration,
		ResolutionDeadline: now + s.StartIn + s.Duration + s.ResolveLag,
	}

	var m *market.Binary
	if err := chain.ExecuteWithValue(s.Creator, p.Binary.Address(), s.Liquidity, "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			m, err = p.Binary.Create(tx, params)
			return err
		}); err != nil {
		return Summary{}, err
	}
	logger.Info("scenario-market-created", zap.String("market", m.Address().Hex()))

	for _, who := range []common.Address{s.YesBuyer, s.NoBuyer, s.Reporter} {
		if err := fundCollateral(chain, p.Collateral, who, fixed.Units(10_000),
			m.Address(), adapter.Address()); err != nil {
			return Summary{}, err
		}
	}

	if err := chain.SetTime(m.StartTime()); err != nil {
		return Summary{}, err
	}
	sum := Summary{Market: m.Address(), MarketID: m.MarketID()}
	var err error
	if sum.YesQuote, err = buy(chain, m, s.YesBuyer, market.Yes, s.YesShares); err != nil {
		return Summary{}, err
	}
	if sum.NoQuote, err = buy(chain, m, s.NoBuyer, market.No, s.NoShares); err != nil {
		return Summary{}, err
	}

	if err := chain.SetTime(m.ResolutionDeadline()); err != nil {
		return Summary{}, err
	}
	if err := chain.Execute(s.Creator, "market.close", m.Close); err != nil {
		return Summary{}, err
	}
	payload, err := oracle.EncodeSports(1, 0, s.Winner)
	if err != nil {
		return Summary{}, err
	}
	if err := chain.Execute(s.Reporter, "oracle.propose", func(tx *ledger.Tx) error {
		return adapter.ProposeResult(tx, m.MarketID(), payload, "scenario")
	}); err != nil {
		return Summary{}, err
	}
	chain.Advance(adapter.Liveness())
	if err := chain.Execute(s.Reporter, "oracle.finalize", func(tx *ledger.Tx) error {
		return adapter.Finalize(tx, m.MarketID())
	}); err != nil {
		return Summary{}, err
	}
	if err := chain.Execute(s.Creator, "market.finalize", func(tx *ledger.Tx) error {
		return m.Finalize(tx, uint256.NewInt(uint64(s.Winner)))
	}); err != nil {
		return Summary{}, err
	}

	if sum.YesRedeemed, err = redeem(chain, m, s.YesBuyer); err != nil {
		return Summary{}, err
	}
	if sum.NoRedeemed, err = redeem(chain, m, s.NoBuyer); err != nil {
		return Summary{}, err
	}

	sum.LPFees = p.Router.GetLPFeesForMarket(m.Address())
	if err := chain.Execute(s.Creator, "feerouter.claim-creator", func(tx *ledger.Tx) error {
		sum.CreatorFees, err = p.Router.ClaimCreator(tx, m.Address(), s.Creator)
		return err
	}); err != nil {
		return Summary{}, err
	}
	if err := chain.Execute(p.Admin, "feerouter.claim-protocol", func(tx *ledger.Tx) error {
		sum.ProtocolFees, err = p.Router.ClaimProtocol(tx, p.Admin)
		return err
	}); err != nil {
		return Summary{}, err
	}

	if err := chain.Execute(s.Creator, "market.remove-liquidity", func(tx *ledger.Tx) error {
		sum.CreatorPayout, err = m.RemoveLiquidity(tx, m.LPToken().BalanceOf(s.Creator))
		return err
	}); err != nil {
		return Summary{}, err
	}
	stats, err := m.GetMarketStats()
	if err != nil {
		return Summary{}, err
	}
	sum.FinalPool = stats.Pool

	logger.Info("scenario-complete",
		zap.String("yes-redeemed", fixed.Format(sum.YesRedeemed)),
		zap.String("no-redeemed", fixed.Format(sum.NoRedeemed)),
		zap.String("creator-fees", fixed.Format(sum.CreatorFees)),
		zap.String("protocol-fees", fixed.Format(sum.ProtocolFees)),
		zap.String("creator-payout", fixed.Format(sum.CreatorPayout)))
	return sum, m.CheckSolvency()
}

// fundCollateral wraps amount native units for who and approves every spender for the maximum.
func fundCollateral(chain *ledger.Chain, c *token.Collateral, who common.Address, amount *uint256.Int, spenders ...common.Address) error {
	if err := chain.ExecuteWithValue(who, c.Address(), amount, "collateral.deposit", c.Deposit); err != nil {
		return err
	}
	return chain.Execute(who, "collateral.approve", func(tx *ledger.Tx) error {
		for _, s := range spenders {
			if err := c.Approve(tx, s, token.MaxAllowance()); err != nil {
				return err
			}
		}
		return nil
	})
}

func buy(chain *ledger.Chain, m market.Contract, who common.Address, outcome int, shares *uint256.Int) (market.Quote, error) {
	var q market.Quote
	err := chain.Execute(who, "market.buy", func(tx *ledger.Tx) error {
		var err error
		q, err = m.Buy(tx, outcome, shares)
		return err
	})
	return q, err
}

func redeem(chain *ledger.Chain, m market.Contract, who common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := chain.Execute(who, "market.redeem", func(tx *ledger.Tx) error {
		var err error
		paid, err = m.Redeem(tx)
		return err
	})
	return paid, err
}
