package curation

import "github.com/ethereum/go-ethereum/common"

// StatusChanged is emitted on registration and on every status change.
type StatusChanged struct {
	Market common.Address `json:"market"`
	From   Status         `json:"from"`
	To     Status         `json:"to"`
	By     common.Address `json:"by"`
}

func (StatusChanged) EventName() string { return "StatusChanged" }

type CuratorSet struct {
	Curator common.Address `json:"curator"`
	Allowed bool           `json:"allowed"`
}

func (CuratorSet) EventName() string { return "CuratorSet" }

type CurationFactorySet struct {
	Factory common.Address `json:"factory"`
	Allowed bool           `json:"allowed"`
}

func (CurationFactorySet) EventName() string { return "CurationFactorySet" }
