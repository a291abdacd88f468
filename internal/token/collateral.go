package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Deposit is emitted when native currency is wrapped.
type Deposit struct {
	Account common.Address `json:"account"`
	Value   *uint256.Int   `json:"value"`
}

func (Deposit) EventName() string { return "Deposit" }

// Withdrawal is emitted when collateral is unwrapped back to native currency.
type Withdrawal struct {
	Account common.Address `json:"account"`
	Value   *uint256.Int   `json:"value"`
}

func (Withdrawal) EventName() string { return "Withdrawal" }

// MinterSet is emitted when the owner grants or revokes minting rights.
type MinterSet struct {
	Minter  common.Address `json:"minter"`
	Allowed bool           `json:"allowed"`
}

func (MinterSet) EventName() string { return "MinterSet" }

// Collateral is the wrapped native currency every market settles in.
// Deposits and withdrawals are 1:1 against native funds held by the contract.
type Collateral struct {
	*ERC20
	owner   common.Address
	minters map[common.Address]bool
}

// NewCollateral deploys the collateral token owned by the transaction sender.
func NewCollateral(tx *ledger.Tx, name string, symbol string) *Collateral {
	return &Collateral{
		ERC20:   newERC20(tx.Deploy(tx.Sender()), name, symbol),
		owner:   tx.Sender(),
		minters: make(map[common.Address]bool),
	}
}

// Owner returns the administrative owner.
func (c *Collateral) Owner() common.Address { return c.owner }

// IsMinter reports whether who may call Mint.
func (c *Collateral) IsMinter(who common.Address) bool { return c.minters[who] }

// Deposit wraps the native value attached to the call. The caller must have
// sent the value to the collateral address (Tx.CallWithValue).
func (c *Collateral) Deposit(tx *ledger.Tx) error {
	value := tx.Value()
	if value.IsZero() {
		return types.ErrZeroAmount
	}
	if err := c.mint(tx, tx.Sender(), value); err != nil {
		return err
	}
	tx.Emit(c.address, Deposit{Account: tx.Sender(), Value: new(uint256.Int).Set(value)})
	return nil
}

// Withdraw burns amount of the sender's collateral and returns native funds.
func (c *Collateral) Withdraw(tx *ledger.Tx, amount *uint256.Int) error {
	if amount.IsZero() {
		return types.ErrZeroAmount
	}
	if err := c.burn(tx, tx.Sender(), amount); err != nil {
		return err
	}
	if err := tx.TransferNative(c.address, tx.Sender(), amount); err != nil {
		return err
	}
	tx.Emit(c.address, Withdrawal{Account: tx.Sender(), Value: new(uint256.Int).Set(amount)})
	return nil
}

// SetMinter grants or revokes minting rights. Owner only.
func (c *Collateral) SetMinter(tx *ledger.Tx, minter common.Address, allowed bool) error {
	if tx.Sender() != c.owner {
		return types.ErrNotOwner
	}
	if minter == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, c.minters, minter, allowed)
	tx.Emit(c.address, MinterSet{Minter: minter, Allowed: allowed})
	return nil
}

// Mint creates unbacked collateral for redemption bookkeeping. Minters only.
func (c *Collateral) Mint(tx *ledger.Tx, to common.Address, amount *uint256.Int) error {
	if !c.minters[tx.Sender()] {
		return types.ErrNotAuthorized
	}
	if amount.IsZero() {
		return types.ErrZeroAmount
	}
	return c.mint(tx, to, amount)
}
