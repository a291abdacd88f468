package feerouter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// CreatorStats is the fee position of one creator.
type CreatorStats struct {
	Accrued  *uint256.Int `json:"accrued"`
	Lifetime *uint256.Int `json:"lifetime"`
}

// ProtocolStats is the fee position of the protocol.
type ProtocolStats struct {
	Accrued       *uint256.Int `json:"accrued"`
	Lifetime      *uint256.Int `json:"lifetime"`
	TotalAccrued  *uint256.Int `json:"total_accrued"`
	TotalClaimed  *uint256.Int `json:"total_claimed"`
	TradesAccrued uint64       `json:"trades_accrued"`
}

// MarketFeeStats is the fee history of one market.
type MarketFeeStats struct {
	Creator    common.Address `json:"creator"`
	CreatorFee *uint256.Int   `json:"creator_fees"`
	LPFees     *uint256.Int   `json:"lp_fees"`
}

// CreatorOf returns the recorded creator of market.
func (r *Router) CreatorOf(market common.Address) (common.Address, bool) {
	c, ok := r.creators[market]
	return c, ok
}

// CreatorAccrued returns the claimable balance of creator.
func (r *Router) CreatorAccrued(creator common.Address) *uint256.Int {
	return fixed.OrZero(r.creatorAccrued[creator]).Clone()
}

// ProtocolAccrued returns the claimable protocol balance.
func (r *Router) ProtocolAccrued() *uint256.Int {
	return r.protocolAccrued.Clone()
}

// GetLPFeesForMarket returns the LP fees market has earned.
func (r *Router) GetLPFeesForMarket(market common.Address) *uint256.Int {
	return fixed.OrZero(r.lpFees[market]).Clone()
}

func (r *Router) GetCreatorStats(creator common.Address) CreatorStats {
	return CreatorStats{
		Accrued:  fixed.OrZero(r.creatorAccrued[creator]).Clone(),
		Lifetime: fixed.OrZero(r.creatorLifetime[creator]).Clone(),
	}
}

// GetLPStats returns the fee history of market.
func (r *Router) GetLPStats(market common.Address) MarketFeeStats {
	return MarketFeeStats{
		Creator:    r.creators[market],
		CreatorFee: fixed.OrZero(r.marketCreator[market]).Clone(),
		LPFees:     fixed.OrZero(r.lpFees[market]).Clone(),
	}
}

func (r *Router) GetProtocolStats() ProtocolStats {
	return ProtocolStats{
		Accrued:       r.protocolAccrued.Clone(),
		Lifetime:      r.protocolLifetime.Clone(),
		TotalAccrued:  r.totalAccrued.Clone(),
		TotalClaimed:  r.totalClaimed.Clone(),
		TradesAccrued: r.tradesAccrued,
	}
}

// CheckInvariant verifies that claims never exceeded accruals and that the
// router still holds every claimable balance.
func (r *Router) CheckInvariant() error {
	if r.totalClaimed.Gt(r.totalAccrued) {
		return fmt.Errorf("claimed %s > accrued %s: %w",
			fixed.Format(r.totalClaimed), fixed.Format(r.totalAccrued), types.ErrInsufficientBalance)
	}

	owed := r.protocolAccrued.Clone()
	for _, v := range r.creatorAccrued {
		owed.Add(owed, v)
	}
	if !owed.Eq(r.owed) {
		return fmt.Errorf("claimable %s != tracked %s: %w", fixed.Format(owed), fixed.Format(r.owed), types.ErrBadState)
	}
	if bal := r.collateral.BalanceOf(r.address); bal.Lt(owed) {
		return fmt.Errorf("router holds %s < owed %s: %w", fixed.Format(bal), fixed.Format(owed), types.ErrInsufficientBalance)
	}
	return nil
}
