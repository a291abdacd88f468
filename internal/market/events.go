package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bought is emitted for every trade.
type Bought struct {
	User    common.Address `json:"user"`
	Token   common.Address `json:"token"`
	Outcome int            `json:"outcome"`
	Shares  *uint256.Int   `json:"shares"`
	Cost    *uint256.Int   `json:"cost"`
	Fee     *uint256.Int   `json:"fee"`
}

func (Bought) EventName() string { return "Bought" }

type LiquidityAdded struct {
	Provider common.Address `json:"provider"`
	Amount   *uint256.Int   `json:"amount"`
	LPTokens *uint256.Int   `json:"lp_tokens"`
}

func (LiquidityAdded) EventName() string { return "LiquidityAdded" }

type LiquidityRemoved struct {
	Provider common.Address `json:"provider"`
	Amount   *uint256.Int   `json:"amount"`
	LPTokens *uint256.Int   `json:"lp_tokens"`
}

func (LiquidityRemoved) EventName() string { return "LiquidityRemoved" }

type MarketClosed struct {
	ClosedBy common.Address `json:"closed_by"`
	At       uint64         `json:"at"`
}

func (MarketClosed) EventName() string { return "MarketClosed" }

// MarketResolved carries the oracle value and the per-share payout of each outcome.
type MarketResolved struct {
	FinalOutcome *uint256.Int   `json:"final_outcome"`
	Payouts      []*uint256.Int `json:"payouts"`
}

func (MarketResolved) EventName() string { return "MarketResolved" }

type Redeemed struct {
	User   common.Address `json:"user"`
	Amount *uint256.Int   `json:"amount"`
	Burned []*uint256.Int `json:"burned"`
}

func (Redeemed) EventName() string { return "Redeemed" }
