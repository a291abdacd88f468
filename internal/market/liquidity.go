package market

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/amm"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// AddLiquidity deposits amount collateral from the sender and mints LP tokens.
// The first deposit mints 1:1 and fixes the curve depth; later deposits mint
// in proportion to the pool. Only while the market is open.
func (m *Market) AddLiquidity(tx *ledger.Tx, amount *uint256.Int) (*uint256.Int, error) {
	release, err := m.guard.Enter(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	if amount == nil || amount.IsZero() {
		return nil, types.ErrZeroAmount
	}
	if m.state != StateOpen {
		return nil, fmt.Errorf("add liquidity while %s: %w", m.state, types.ErrTradingEnded)
	}
	if tx.Now() > m.endTime {
		return nil, fmt.Errorf("add liquidity after %d: %w", m.endTime, types.ErrTradingEnded)
	}

	provider := tx.Sender()
	supply := m.lp.TotalSupply()

	minted := amount.Clone()
	if m.curve == nil {
		curve, err := amm.NewFromSubsidy(amount, len(m.outcomes))
		if err != nil {
			return nil, err
		}
		ledger.Set(tx, &m.curve, curve)
	} else if !supply.IsZero() && !m.pool.IsZero() {
		if minted, err = fixed.MulDivDown(amount, supply, m.pool); err != nil {
			return nil, err
		}
		if minted.IsZero() {
			return nil, fmt.Errorf("deposit too small to mint: %w", types.ErrZeroAmount)
		}
	}

	pool, err := fixed.Add(m.pool, amount)
	if err != nil {
		return nil, err
	}
	ledger.Set(tx, &m.pool, pool)
	ledger.Set(tx, &m.contributed, new(uint256.Int).Add(m.contributed, amount))

	self := m.call(tx)
	if err := m.collateral.TransferFrom(self, provider, m.address, amount); err != nil {
		return nil, fmt.Errorf("pull liquidity: %w", err)
	}
	if err := m.lp.Mint(self, provider, minted); err != nil {
		return nil, err
	}

	tx.Emit(m.address, LiquidityAdded{Provider: provider, Amount: amount.Clone(), LPTokens: minted.Clone()})
	tx.AfterCommit(func() {
		LiquidityEventsTotal.WithLabelValues("add").Inc()
		m.logger.Debug("liquidity-added",
			zap.String("provider", provider.Hex()),
			zap.String("amount", fixed.Format(amount)),
			zap.String("lp-tokens", fixed.Format(minted)))
	})
	return minted, nil
}

// RemoveLiquidity burns lpTokens of the sender and pays their share of the
// pool. Before resolution a share is pool/supply; afterwards it is the equity
// left once every outstanding winning share is covered. The pool never drops
// below Reserve.
func (m *Market) RemoveLiquidity(tx *ledger.Tx, lpTokens *uint256.Int) (*uint256.Int, error) {
	release, err := m.guard.Enter(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	if lpTokens == nil || lpTokens.IsZero() {
		return nil, types.ErrZeroAmount
	}
	provider := tx.Sender()
	if m.lp.BalanceOf(provider).Lt(lpTokens) {
		return nil, fmt.Errorf("burn %s lp tokens: %w", fixed.Format(lpTokens), types.ErrExceedsClaim)
	}

	amount, err := m.lpValue(lpTokens)
	if err != nil {
		return nil, err
	}
	reserve, err := m.Reserve()
	if err != nil {
		return nil, err
	}
	left, err := fixed.Sub(m.pool, amount)
	if err != nil || left.Lt(reserve) {
		return nil, fmt.Errorf("withdraw %s leaves pool below reserve %s: %w",
			fixed.Format(amount), fixed.Format(reserve), types.ErrInsufficientLiquidity)
	}

	ledger.Set(tx, &m.pool, left)
	ledger.Set(tx, &m.withdrawn, new(uint256.Int).Add(m.withdrawn, amount))

	self := m.call(tx)
	if err := m.lp.Burn(self, provider, lpTokens); err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		if err := m.collateral.Transfer(self, provider, amount); err != nil {
			return nil, fmt.Errorf("pay liquidity: %w", err)
		}
	}

	tx.Emit(m.address, LiquidityRemoved{Provider: provider, Amount: amount.Clone(), LPTokens: lpTokens.Clone()})
	tx.AfterCommit(func() {
		LiquidityEventsTotal.WithLabelValues("remove").Inc()
		m.logger.Debug("liquidity-removed",
			zap.String("provider", provider.Hex()),
			zap.String("amount", fixed.Format(amount)),
			zap.String("lp-tokens", fixed.Format(lpTokens)))
	})
	return amount, nil
}

// lpValue is the collateral lpTokens redeem for right now, floored.
func (m *Market) lpValue(lpTokens *uint256.Int) (*uint256.Int, error) {
	supply := m.lp.TotalSupply()
	if supply.IsZero() {
		return new(uint256.Int), nil
	}

	backing := m.pool
	if m.state == StateResolved {
		reserve, err := m.Reserve()
		if err != nil {
			return nil, err
		}
		if backing, err = fixed.Sub(m.pool, reserve); err != nil {
			return nil, fmt.Errorf("pool below winning claims: %w", types.ErrInsufficientLiquidity)
		}
	}
	return fixed.MulDivDown(lpTokens, backing, supply)
}

// Reserve is the collateral liquidity providers can never withdraw: the curve
// cost ⌈C(q)⌉ before resolution, the outstanding winning payout after.
func (m *Market) Reserve() (*uint256.Int, error) {
	if m.state == StateResolved {
		return m.outstandingPayout()
	}
	if m.curve == nil {
		return new(uint256.Int), nil
	}
	return m.curve.Cost(m.quantities)
}

func (m *Market) outstandingPayout() (*uint256.Int, error) {
	total := new(uint256.Int)
	for i, p := range m.payouts {
		if p.IsZero() {
			continue
		}
		owed, err := fixed.MulDivUp(m.outcomes[i].TotalSupply(), p, fixed.One())
		if err != nil {
			return nil, err
		}
		if total, err = fixed.Add(total, owed); err != nil {
			return nil, err
		}
	}
	return total, nil
}
