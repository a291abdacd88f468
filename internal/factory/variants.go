package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// BinaryFactory creates YES/NO markets.
type BinaryFactory struct {
	*base
}

// NewBinaryFactory deploys a binary market factory.
func NewBinaryFactory(tx *ledger.Tx, deps Deps) (*BinaryFactory, error) {
	b, err := newBase(tx, market.KindBinary, deps)
	if err != nil {
		return nil, err
	}
	return &BinaryFactory{base: b}, nil
}

// Create deploys a binary market funded with the attached value.
func (f *BinaryFactory) Create(tx *ledger.Tx, p CreateParams) (*market.Binary, error) {
	labels := p.Outcomes
	if len(labels) == 0 {
		labels = []string{"Yes", "No"}
	}
	if len(labels) != 2 {
		return nil, fmt.Errorf("binary market with %d outcomes: %w", len(labels), types.ErrInvalidOutcome)
	}

	var created *market.Binary
	_, err := f.create(tx, p, labels, func(tx *ledger.Tx, addr common.Address, mp market.Params) (market.Contract, error) {
		m, err := market.NewBinary(tx, addr, mp)
		created = m
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MultiFactory creates categorical markets with 2..32 outcomes.
type MultiFactory struct {
	*base
}

// NewMultiFactory deploys a multi-outcome market factory.
func NewMultiFactory(tx *ledger.Tx, deps Deps) (*MultiFactory, error) {
	b, err := newBase(tx, market.KindMulti, deps)
	if err != nil {
		return nil, err
	}
	return &MultiFactory{base: b}, nil
}

// Create deploys a multi-outcome market funded with the attached value.
func (f *MultiFactory) Create(tx *ledger.Tx, p CreateParams) (*market.Multi, error) {
	if len(p.Outcomes) < 2 {
		return nil, fmt.Errorf("multi market with %d outcomes: %w", len(p.Outcomes), types.ErrInvalidOutcome)
	}

	var created *market.Multi
	_, err := f.create(tx, p, p.Outcomes, func(tx *ledger.Tx, addr common.Address, mp market.Params) (market.Contract, error) {
		m, err := market.NewMulti(tx, addr, mp)
		created = m
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ScalarFactory creates long/short markets over a value range.
type ScalarFactory struct {
	*base
}

// NewScalarFactory deploys a scalar market factory.
func NewScalarFactory(tx *ledger.Tx, deps Deps) (*ScalarFactory, error) {
	b, err := newBase(tx, market.KindScalar, deps)
	if err != nil {
		return nil, err
	}
	return &ScalarFactory{base: b}, nil
}

// Create deploys a scalar market funded with the attached value. Lower and
// Upper are required.
func (f *ScalarFactory) Create(tx *ledger.Tx, p CreateParams) (*market.Scalar, error) {
	if p.Lower == nil || p.Upper == nil || !p.Lower.Lt(p.Upper) {
		return nil, fmt.Errorf("scalar bounds: %w", types.ErrInvalidParams)
	}
	labels := p.Outcomes
	if len(labels) == 0 {
		labels = []string{"Long", "Short"}
	}

	var created *market.Scalar
	_, err := f.create(tx, p, labels, func(tx *ledger.Tx, addr common.Address, mp market.Params) (market.Contract, error) {
		m, err := market.NewScalar(tx, addr, mp)
		created = m
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
