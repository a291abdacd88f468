package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/market"
)

// MarketCreated is emitted once a market is fully wired and funded.
type MarketCreated struct {
	Market           common.Address `json:"market"`
	MarketID         common.Hash    `json:"market_id"`
	ID               uint64         `json:"id"`
	Kind             market.Kind    `json:"kind"`
	Creator          common.Address `json:"creator"`
	Key              string         `json:"key"`
	InitialLiquidity *uint256.Int   `json:"initial_liquidity"`
}

func (MarketCreated) EventName() string { return "MarketCreated" }
