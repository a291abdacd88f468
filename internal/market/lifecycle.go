package market

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Close stops trading. Anyone may call it once the trading window has ended.
func (m *Market) Close(tx *ledger.Tx) error {
	if m.state != StateOpen {
		return fmt.Errorf("close while %s: %w", m.state, types.ErrBadState)
	}
	if tx.Now() < m.endTime {
		return fmt.Errorf("close before %d: %w", m.endTime, types.ErrTooEarly)
	}
	if err := m.setState(tx, StateClosed); err != nil {
		return err
	}

	tx.Emit(m.address, MarketClosed{ClosedBy: tx.Sender(), At: tx.Now()})
	tx.AfterCommit(func() {
		m.logger.Info("market-closed", zap.Uint64("at", tx.Now()))
	})
	return nil
}

// ValidateValue reports whether an oracle result of value could resolve the
// market. Oracles call it before accepting a proposal.
func (m *Market) ValidateValue(value *uint256.Int) error {
	return m.rule.accepts(value, len(m.outcomes))
}

// Finalize resolves a closed market on the oracle's finalized value, which
// must equal outcomeValue. Anyone may call it once the resolution deadline
// has passed.
func (m *Market) Finalize(tx *ledger.Tx, outcomeValue *uint256.Int) error {
	if m.state != StateClosed {
		return fmt.Errorf("finalize while %s: %w", m.state, types.ErrBadState)
	}
	if tx.Now() < m.deadline {
		return fmt.Errorf("finalize before %d: %w", m.deadline, types.ErrResolutionTooEarly)
	}

	result := m.oracle.GetResult(m.marketID)
	switch result.Status {
	case oracle.StatusFinalized:
	case oracle.StatusInvalid:
		return fmt.Errorf("market id %s: %w", m.marketID.Hex(), types.ErrOracleInvalid)
	default:
		return fmt.Errorf("oracle status %s: %w", result.Status, types.ErrOracleNotFinalized)
	}
	if outcomeValue == nil || !outcomeValue.Eq(result.Value) {
		return fmt.Errorf("expected %s, oracle reports %s: %w",
			fixed.OrZero(outcomeValue).Dec(), result.Value.Dec(), types.ErrOutcomeMismatch)
	}

	payouts, err := m.rule.payouts(result.Value, len(m.outcomes))
	if err != nil {
		return err
	}
	ledger.Set(tx, &m.finalOutcome, result.Value.Clone())
	ledger.Set(tx, &m.payouts, payouts)
	if err := m.setState(tx, StateResolved); err != nil {
		return err
	}

	tx.Emit(m.address, MarketResolved{FinalOutcome: result.Value.Clone(), Payouts: m.Payouts()})
	kind := string(m.kind)
	tx.AfterCommit(func() {
		MarketsResolvedTotal.WithLabelValues(kind).Inc()
		m.logger.Info("market-resolved",
			zap.String("final-outcome", result.Value.Dec()),
			zap.String("pool", fixed.Format(m.pool)))
	})
	return nil
}

// Redeem burns the sender's paying outcome balances and pays them out.
// Losing balances of categorical markets are left untouched. Calling it with
// nothing to redeem pays zero and succeeds. Redeemed is emitted whenever a
// balance was burned, including worthless scalar sides.
func (m *Market) Redeem(tx *ledger.Tx) (*uint256.Int, error) {
	release, err := m.guard.Enter(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	if m.state != StateResolved {
		return nil, fmt.Errorf("redeem while %s: %w", m.state, types.ErrBadState)
	}

	holder := tx.Sender()
	self := m.call(tx)
	total := new(uint256.Int)
	burned := make([]*uint256.Int, len(m.outcomes))
	anyBurned := false

	for i, t := range m.outcomes {
		burned[i] = new(uint256.Int)
		p := m.payouts[i]
		if p.IsZero() && !m.rule.burnsAll() {
			continue
		}
		bal := t.BalanceOf(holder)
		if bal.IsZero() {
			continue
		}
		amount, err := fixed.MulDivDown(bal, p, fixed.One())
		if err != nil {
			return nil, err
		}
		if total, err = fixed.Add(total, amount); err != nil {
			return nil, err
		}
		if err := t.Burn(self, holder, bal); err != nil {
			return nil, err
		}
		burned[i] = bal
		anyBurned = true
	}

	if !anyBurned {
		return total, nil
	}

	if !total.IsZero() {
		pool, err := fixed.Sub(m.pool, total)
		if err != nil {
			return nil, fmt.Errorf("redeem %s from pool %s: %w", fixed.Format(total), fixed.Format(m.pool), types.ErrInsufficientLiquidity)
		}
		ledger.Set(tx, &m.pool, pool)
		ledger.Set(tx, &m.redeemed, new(uint256.Int).Add(m.redeemed, total))

		if err := m.collateral.Transfer(self, holder, total); err != nil {
			return nil, fmt.Errorf("pay redemption: %w", err)
		}
	}

	tx.Emit(m.address, Redeemed{User: holder, Amount: total.Clone(), Burned: burned})
	kind := string(m.kind)
	tx.AfterCommit(func() {
		RedemptionsTotal.WithLabelValues(kind).Add(fixed.Float(total))
		m.logger.Debug("shares-redeemed",
			zap.String("holder", holder.Hex()),
			zap.String("amount", fixed.Format(total)))
	})
	return total, nil
}
