package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Kind distinguishes what a claim token represents.
type Kind string

const (
	KindOutcome Kind = "outcome"
	KindLP      Kind = "lp"
)

// Claim is a token whose supply is controlled by a single owning market:
// one per outcome (worth 1 collateral if that outcome wins) and one LP token
// per market (a share of the pool).
type Claim struct {
	*ERC20
	kind  Kind
	owner common.Address
	index int
}

// Kind returns what the token represents.
func (c *Claim) Kind() Kind { return c.kind }

// Owner returns the market allowed to mint and burn.
func (c *Claim) Owner() common.Address { return c.owner }

// OutcomeIndex returns the outcome position for outcome tokens, -1 for LP tokens.
func (c *Claim) OutcomeIndex() int { return c.index }

// Mint creates amount tokens for to. Owner only.
func (c *Claim) Mint(tx *ledger.Tx, to common.Address, amount *uint256.Int) error {
	if tx.Sender() != c.owner {
		return types.ErrNotOwner
	}
	return c.mint(tx, to, amount)
}

// Burn destroys amount tokens held by from. Owner only.
func (c *Claim) Burn(tx *ledger.Tx, from common.Address, amount *uint256.Int) error {
	if tx.Sender() != c.owner {
		return types.ErrNotOwner
	}
	return c.burn(tx, from, amount)
}
