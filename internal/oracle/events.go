package oracle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Proposed is emitted when a reporter posts a result.
type Proposed struct {
	MarketID common.Hash    `json:"market_id"`
	Reporter common.Address `json:"reporter"`
	Value    *uint256.Int   `json:"value"`
	Evidence string         `json:"evidence"`
	Bond     *uint256.Int   `json:"bond"`
}

func (Proposed) EventName() string { return "Proposed" }

// Disputed is emitted when a proposal is challenged.
type Disputed struct {
	MarketID common.Hash    `json:"market_id"`
	Disputer common.Address `json:"disputer"`
	Evidence string         `json:"evidence"`
	Bond     *uint256.Int   `json:"bond"`
}

func (Disputed) EventName() string { return "Disputed" }

// Finalized is emitted when a result becomes binding, by liveness or arbitration.
type Finalized struct {
	MarketID common.Hash  `json:"market_id"`
	Status   Status       `json:"status"`
	Value    *uint256.Int `json:"value"`
}

func (Finalized) EventName() string { return "Finalized" }

type Invalidated struct {
	MarketID common.Hash `json:"market_id"`
}

func (Invalidated) EventName() string { return "Invalidated" }

// BondSettled is emitted for every bond payment leaving the adapter.
type BondSettled struct {
	MarketID common.Hash    `json:"market_id"`
	To       common.Address `json:"to"`
	Amount   *uint256.Int   `json:"amount"`
	Reason   string         `json:"reason"` // refund, award or forfeit
}

func (BondSettled) EventName() string { return "BondSettled" }

type ReporterSet struct {
	Reporter common.Address `json:"reporter"`
	Allowed  bool           `json:"allowed"`
}

func (ReporterSet) EventName() string { return "ReporterSet" }

type FactorySet struct {
	Factory common.Address `json:"factory"`
	Allowed bool           `json:"allowed"`
}

func (FactorySet) EventName() string { return "OracleFactorySet" }

type MarketBound struct {
	MarketID common.Hash    `json:"market_id"`
	Market   common.Address `json:"market"`
}

func (MarketBound) EventName() string { return "MarketBound" }
