package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Info is the static description of a market.
type Info struct {
	Address            common.Address   `json:"address"`
	Kind               Kind             `json:"kind"`
	Question           string           `json:"question"`
	MetadataURI        string           `json:"metadata_uri"`
	Creator            common.Address   `json:"creator"`
	MarketKey          string           `json:"market_key"`
	MarketID           common.Hash      `json:"market_id"`
	Outcomes           []string         `json:"outcomes"`
	OutcomeTokens      []common.Address `json:"outcome_tokens"`
	LPToken            common.Address   `json:"lp_token"`
	Oracle             common.Address   `json:"oracle"`
	FeeBps             uint64           `json:"fee_bps"`
	StartTime          uint64           `json:"start_time"`
	EndTime            uint64           `json:"end_time"`
	ResolutionDeadline uint64           `json:"resolution_deadline"`
}

// Stats is the trading state of a market.
type Stats struct {
	State            State          `json:"state"`
	Quantities       []*uint256.Int `json:"quantities"`
	Prices           []*uint256.Int `json:"prices,omitempty"`
	Volume           *uint256.Int   `json:"volume"`
	FeesPaid         *uint256.Int   `json:"fees_paid"`
	TradeCount       uint64         `json:"trade_count"`
	ParticipantCount int            `json:"participant_count"`
	Pool             *uint256.Int   `json:"pool"`
	Reserve          *uint256.Int   `json:"reserve"`
	Depth            *uint256.Int   `json:"depth,omitempty"`
	FinalOutcome     *uint256.Int   `json:"final_outcome,omitempty"`
	Payouts          []*uint256.Int `json:"payouts,omitempty"`
	Redeemed         *uint256.Int   `json:"redeemed"`
}

// LPStats is the liquidity pool position of a market.
type LPStats struct {
	TotalLiquidity  *uint256.Int `json:"total_liquidity"`
	Contributed     *uint256.Int `json:"contributed"`
	Withdrawn       *uint256.Int `json:"withdrawn"`
	TotalFeesEarned *uint256.Int `json:"total_fees_earned"`
	LPSupply        *uint256.Int `json:"lp_supply"`
	ValuePerToken   *uint256.Int `json:"value_per_token"`
}

// Info returns the static description of the market.
func (m *Market) Info() Info {
	tokens := make([]common.Address, len(m.outcomes))
	for i, t := range m.outcomes {
		tokens[i] = t.Address()
	}
	return Info{
		Address:            m.address,
		Kind:               m.kind,
		Question:           m.question,
		MetadataURI:        m.metadataURI,
		Creator:            m.creator,
		MarketKey:          m.marketKey,
		MarketID:           m.marketID,
		Outcomes:           m.OutcomeLabels(),
		OutcomeTokens:      tokens,
		LPToken:            m.lp.Address(),
		Oracle:             m.oracle.Address(),
		FeeBps:             m.feeBps,
		StartTime:          m.startTime,
		EndTime:            m.endTime,
		ResolutionDeadline: m.deadline,
	}
}

// GetMarketStats returns the trading state of the market.
func (m *Market) GetMarketStats() (Stats, error) {
	reserve, err := m.Reserve()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		State:            m.state,
		Quantities:       m.Quantities(),
		Volume:           m.volume.Clone(),
		FeesPaid:         m.feesPaid.Clone(),
		TradeCount:       m.tradeCount,
		ParticipantCount: len(m.participants),
		Pool:             m.pool.Clone(),
		Reserve:          reserve,
		Redeemed:         m.redeemed.Clone(),
	}
	if m.curve != nil {
		if s.Prices, err = m.curve.Prices(m.quantities); err != nil {
			return Stats{}, err
		}
		s.Depth = m.curve.B()
	}
	if m.finalOutcome != nil {
		s.FinalOutcome = m.finalOutcome.Clone()
		s.Payouts = m.Payouts()
	}
	return s, nil
}

// GetLPStats returns the pool position. ValuePerToken is the collateral one
// whole LP token currently redeems for.
func (m *Market) GetLPStats() (LPStats, error) {
	value, err := m.lpValue(fixed.One())
	if err != nil {
		return LPStats{}, err
	}
	return LPStats{
		TotalLiquidity:  m.pool.Clone(),
		Contributed:     m.contributed.Clone(),
		Withdrawn:       m.withdrawn.Clone(),
		TotalFeesEarned: m.lpFees.Clone(),
		LPSupply:        m.lp.TotalSupply(),
		ValuePerToken:   value,
	}, nil
}

// CheckSolvency verifies that the market holds at least its pool and that the
// pool covers the reserve. Collateral sent to the market outside of a trade
// is surplus and never counted.
func (m *Market) CheckSolvency() error {
	held := m.collateral.BalanceOf(m.address)
	if held.Lt(m.pool) {
		return fmt.Errorf("holds %s, accounted %s: %w", fixed.Format(held), fixed.Format(m.pool), types.ErrBadState)
	}
	reserve, err := m.Reserve()
	if err != nil {
		return err
	}
	if m.pool.Lt(reserve) {
		return fmt.Errorf("pool %s below reserve %s: %w", fixed.Format(m.pool), fixed.Format(reserve), types.ErrInsufficientLiquidity)
	}
	return nil
}
