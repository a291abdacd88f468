// Package token implements the fungible tokens of the settlement engine:
// the wrapped-native collateral, per-outcome claim tokens, per-market LP
// tokens, and the factory that deploys the latter two.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Transfer is emitted on every balance movement, mints and burns included
// (zero address on the missing side).
type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

func (Transfer) EventName() string { return "Transfer" }

// Approval is emitted when an allowance is set.
type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

func (Approval) EventName() string { return "Approval" }

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// ERC20 is the shared balance/allowance ledger embedded by every token.
type ERC20 struct {
	address     common.Address
	name        string
	symbol      string
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int
}

func newERC20(address common.Address, name string, symbol string) *ERC20 {
	return &ERC20{
		address:     address,
		name:        name,
		symbol:      symbol,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
	}
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address { return t.address }

// Name returns the token name.
func (t *ERC20) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *ERC20) Symbol() string { return t.symbol }

// Decimals returns the fixed-point scale of balances.
func (t *ERC20) Decimals() uint8 { return fixed.Decimals }

// TotalSupply returns the outstanding supply.
func (t *ERC20) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns the balance of owner.
func (t *ERC20) BalanceOf(owner common.Address) *uint256.Int {
	return new(uint256.Int).Set(fixed.OrZero(t.balances[owner]))
}

// Allowance returns how much spender may move on behalf of owner.
func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	return new(uint256.Int).Set(fixed.OrZero(t.allowances[allowanceKey{owner, spender}]))
}

// Transfer moves amount from the sender to to.
func (t *ERC20) Transfer(tx *ledger.Tx, to common.Address, amount *uint256.Int) error {
	return t.move(tx, tx.Sender(), to, amount)
}

// Approve sets spender's allowance over the sender's balance.
func (t *ERC20) Approve(tx *ledger.Tx, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, t.allowances, allowanceKey{tx.Sender(), spender}, new(uint256.Int).Set(amount))
	tx.Emit(t.address, Approval{Owner: tx.Sender(), Spender: spender, Value: new(uint256.Int).Set(amount)})
	return nil
}

// TransferFrom moves amount from from to to using the sender's allowance.
// An allowance of max uint256 is never decremented.
func (t *ERC20) TransferFrom(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	key := allowanceKey{from, tx.Sender()}
	allowed := fixed.OrZero(t.allowances[key])
	if !isInfinite(allowed) {
		left, err := fixed.Sub(allowed, amount)
		if err != nil {
			return types.ErrInsufficientAllowance
		}
		ledger.SetKey(tx, t.allowances, key, left)
	}
	return t.move(tx, from, to, amount)
}

func (t *ERC20) move(tx *ledger.Tx, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return types.ErrZeroAddress
	}
	fromBal, err := fixed.Sub(t.balances[from], amount)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	ledger.SetKey(tx, t.balances, from, fromBal)

	toBal, err := fixed.Add(t.balances[to], amount)
	if err != nil {
		return err
	}
	ledger.SetKey(tx, t.balances, to, toBal)

	tx.Emit(t.address, Transfer{From: from, To: to, Value: new(uint256.Int).Set(amount)})
	return nil
}

func (t *ERC20) mint(tx *ledger.Tx, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return types.ErrZeroAddress
	}
	supply, err := fixed.Add(t.totalSupply, amount)
	if err != nil {
		return err
	}
	bal, err := fixed.Add(t.balances[to], amount)
	if err != nil {
		return err
	}
	ledger.Set(tx, &t.totalSupply, supply)
	ledger.SetKey(tx, t.balances, to, bal)
	tx.Emit(t.address, Transfer{To: to, Value: new(uint256.Int).Set(amount)})
	return nil
}

func (t *ERC20) burn(tx *ledger.Tx, from common.Address, amount *uint256.Int) error {
	bal, err := fixed.Sub(t.balances[from], amount)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	supply, err := fixed.Sub(t.totalSupply, amount)
	if err != nil {
		return err
	}
	ledger.SetKey(tx, t.balances, from, bal)
	ledger.Set(tx, &t.totalSupply, supply)
	tx.Emit(t.address, Transfer{From: from, Value: new(uint256.Int).Set(amount)})
	return nil
}

func isInfinite(x *uint256.Int) bool {
	return x.Eq(new(uint256.Int).SetAllOne())
}

// MaxAllowance is the allowance value that TransferFrom never decrements.
func MaxAllowance() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}
