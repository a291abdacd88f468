package feerouter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Accrued is emitted for every trade fee reported by a market.
type Accrued struct {
	Market      common.Address `json:"market"`
	Creator     common.Address `json:"creator"`
	ProtocolFee *uint256.Int   `json:"protocol_fee"`
	CreatorFee  *uint256.Int   `json:"creator_fee"`
	LPFee       *uint256.Int   `json:"lp_fee"`
}

func (Accrued) EventName() string { return "Accrued" }

// ClaimedCreator is emitted when a creator pulls their fees.
type ClaimedCreator struct {
	Creator common.Address `json:"creator"`
	To      common.Address `json:"to"`
	Amount  *uint256.Int   `json:"amount"`
}

func (ClaimedCreator) EventName() string { return "ClaimedCreator" }

// ClaimedProtocol is emitted when the owner pulls protocol fees.
type ClaimedProtocol struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (ClaimedProtocol) EventName() string { return "ClaimedProtocol" }

type CreatorSet struct {
	Market  common.Address `json:"market"`
	Creator common.Address `json:"creator"`
}

func (CreatorSet) EventName() string { return "CreatorSet" }

type FactorySet struct {
	Factory common.Address `json:"factory"`
	Allowed bool           `json:"allowed"`
}

func (FactorySet) EventName() string { return "FactorySet" }
