package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Quote is the price of a prospective buy.
type Quote struct {
	Outcome     int          `json:"outcome"`
	Shares      *uint256.Int `json:"shares"`
	Cost        *uint256.Int `json:"cost"`
	Fee         *uint256.Int `json:"fee"`
	ProtocolFee *uint256.Int `json:"protocol_fee"`
	CreatorFee  *uint256.Int `json:"creator_fee"`
	LPFee       *uint256.Int `json:"lp_fee"`
	Total       *uint256.Int `json:"total"`
	PriceBefore *uint256.Int `json:"price_before"`
	PriceAfter  *uint256.Int `json:"price_after"`
}

// Price returns the marginal price of outcome as an 18-decimal fraction.
func (m *Market) Price(outcome int) (*uint256.Int, error) {
	if m.curve == nil {
		return nil, types.ErrDepthNotInitialized
	}
	return m.curve.Price(m.quantities, outcome)
}

// Prices returns the marginal price of every outcome.
func (m *Market) Prices() ([]*uint256.Int, error) {
	if m.curve == nil {
		return nil, types.ErrDepthNotInitialized
	}
	return m.curve.Prices(m.quantities)
}

// QuoteBuy prices buying shares of outcome without trading.
func (m *Market) QuoteBuy(outcome int, shares *uint256.Int) (Quote, error) {
	if m.curve == nil {
		return Quote{}, types.ErrDepthNotInitialized
	}
	if shares == nil || shares.IsZero() {
		return Quote{}, types.ErrZeroAmount
	}

	cost, err := m.curve.BuyCost(m.quantities, outcome, shares)
	if err != nil {
		return Quote{}, err
	}
	fee, err := fixed.BpsUp(cost, m.feeBps)
	if err != nil {
		return Quote{}, err
	}
	protocol, creator, lp, err := m.router.Split().Apply(fee)
	if err != nil {
		return Quote{}, err
	}
	total, err := fixed.Add(cost, fee)
	if err != nil {
		return Quote{}, err
	}

	before, err := m.curve.Price(m.quantities, outcome)
	if err != nil {
		return Quote{}, err
	}
	after := m.Quantities()
	after[outcome] = new(uint256.Int).Add(after[outcome], shares)
	priceAfter, err := m.curve.Price(after, outcome)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Outcome:     outcome,
		Shares:      shares.Clone(),
		Cost:        cost,
		Fee:         fee,
		ProtocolFee: protocol,
		CreatorFee:  creator,
		LPFee:       lp,
		Total:       total,
		PriceBefore: before,
		PriceAfter:  priceAfter,
	}, nil
}

// Buy sells shares of outcome to the sender for the curve cost plus fee.
// The sender must have approved the market for the total.
func (m *Market) Buy(tx *ledger.Tx, outcome int, shares *uint256.Int) (Quote, error) {
	release, err := m.guard.Enter(tx)
	if err != nil {
		return Quote{}, err
	}
	defer release()

	if err := m.checkTrading(tx); err != nil {
		return Quote{}, err
	}
	if shares == nil || shares.IsZero() {
		return Quote{}, types.ErrZeroAmount
	}
	if outcome < 0 || outcome >= len(m.outcomes) {
		return Quote{}, fmt.Errorf("outcome %d: %w", outcome, types.ErrInvalidOutcome)
	}

	q, err := m.QuoteBuy(outcome, shares)
	if err != nil {
		return Quote{}, err
	}
	buyer := tx.Sender()

	// Effects.
	qty, err := fixed.Add(m.quantities[outcome], shares)
	if err != nil {
		return Quote{}, err
	}
	retained, err := fixed.Add(q.Cost, q.LPFee)
	if err != nil {
		return Quote{}, err
	}
	pool, err := fixed.Add(m.pool, retained)
	if err != nil {
		return Quote{}, err
	}
	quantities := m.Quantities()
	quantities[outcome] = qty
	ledger.Set(tx, &m.quantities, quantities)
	ledger.Set(tx, &m.pool, pool)
	ledger.Set(tx, &m.lpFees, new(uint256.Int).Add(m.lpFees, q.LPFee))
	ledger.Set(tx, &m.volume, new(uint256.Int).Add(m.volume, q.Cost))
	ledger.Set(tx, &m.feesPaid, new(uint256.Int).Add(m.feesPaid, q.Fee))
	ledger.Set(tx, &m.tradeCount, m.tradeCount+1)
	if !m.participants[buyer] {
		ledger.SetKey(tx, m.participants, buyer, true)
	}
	ledger.SetKey(tx, m.traderVolume, buyer, new(uint256.Int).Add(fixed.OrZero(m.traderVolume[buyer]), q.Cost))

	// Interactions.
	self := m.call(tx)
	if err := m.collateral.TransferFrom(self, buyer, m.address, q.Total); err != nil {
		return Quote{}, fmt.Errorf("pull collateral: %w", err)
	}
	if err := m.outcomes[outcome].Mint(self, buyer, shares); err != nil {
		return Quote{}, err
	}
	forward := new(uint256.Int).Add(q.ProtocolFee, q.CreatorFee)
	if !forward.IsZero() {
		if err := m.collateral.Transfer(self, m.router.Address(), forward); err != nil {
			return Quote{}, fmt.Errorf("forward fees: %w", err)
		}
	}
	if err := m.router.Accrue(self, m.address, q.ProtocolFee, q.CreatorFee, q.LPFee); err != nil {
		return Quote{}, fmt.Errorf("accrue fees: %w", err)
	}

	tx.Emit(m.address, Bought{
		User:    buyer,
		Token:   m.outcomes[outcome].Address(),
		Outcome: outcome,
		Shares:  shares.Clone(),
		Cost:    q.Cost.Clone(),
		Fee:     q.Fee.Clone(),
	})

	kind := string(m.kind)
	tx.AfterCommit(func() {
		TradesTotal.WithLabelValues(kind).Inc()
		VolumeTotal.WithLabelValues(kind).Add(fixed.Float(q.Cost))
		FeesTotal.WithLabelValues(kind).Add(fixed.Float(q.Fee))
		m.logger.Debug("shares-bought",
			zap.String("buyer", buyer.Hex()),
			zap.Int("outcome", outcome),
			zap.String("shares", fixed.Format(shares)),
			zap.String("cost", fixed.Format(q.Cost)),
			zap.String("fee", fixed.Format(q.Fee)))
	})
	return q, nil
}

func (m *Market) checkTrading(tx *ledger.Tx) error {
	if m.gate != nil && !m.gate.IsApproved(m.address) {
		return types.ErrNotApproved
	}
	if m.state != StateOpen {
		return fmt.Errorf("market is %s: %w", m.state, types.ErrTradingEnded)
	}
	if tx.Now() < m.startTime {
		return fmt.Errorf("trading starts at %d: %w", m.startTime, types.ErrNotStarted)
	}
	if tx.Now() > m.endTime {
		return fmt.Errorf("trading ended at %d: %w", m.endTime, types.ErrTradingEnded)
	}
	return nil
}

// HasTraded reports whether trader has bought from the market.
func (m *Market) HasTraded(trader common.Address) bool {
	return m.participants[trader]
}

// GetTraderVolume returns the cumulative cost trader has paid, fees excluded.
func (m *Market) GetTraderVolume(trader common.Address) *uint256.Int {
	return fixed.OrZero(m.traderVolume[trader]).Clone()
}

// GetParticipantCount returns the number of distinct traders.
func (m *Market) GetParticipantCount() int {
	return len(m.participants)
}
