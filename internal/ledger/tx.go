package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Tx is one call frame of an executing transaction. Nested frames created by
// Call share the journal and pending logs of the root frame.
type Tx struct {
	chain   *Chain
	journal *journal
	sender  common.Address
	value   *uint256.Int
	pending *[]Log
	hooks   *[]func()
}

// Sender returns the caller of the current frame.
func (tx *Tx) Sender() common.Address {
	return tx.sender
}

// Now returns the block timestamp.
func (tx *Tx) Now() uint64 {
	return tx.chain.now
}

// Value returns the native amount attached to the current frame.
func (tx *Tx) Value() *uint256.Int {
	return tx.value
}

// Call derives a nested frame whose sender is from (a contract calling out).
func (tx *Tx) Call(from common.Address) *Tx {
	return &Tx{
		chain:   tx.chain,
		journal: tx.journal,
		sender:  from,
		value:   new(uint256.Int),
		pending: tx.pending,
		hooks:   tx.hooks,
	}
}

// CallWithValue moves value native units from from to to and returns the frame
// the callee runs in.
func (tx *Tx) CallWithValue(from, to common.Address, value *uint256.Int) (*Tx, error) {
	if err := tx.TransferNative(from, to, value); err != nil {
		return nil, err
	}
	frame := tx.Call(from)
	frame.value = new(uint256.Int).Set(value)
	return frame, nil
}

// Emit records an event for contract; it is published only if the transaction commits.
func (tx *Tx) Emit(contract common.Address, ev Event) {
	*tx.pending = append(*tx.pending, Log{
		Time:     tx.chain.now,
		Contract: contract,
		Name:     ev.EventName(),
		Event:    ev,
	})
}

// Deploy reserves the next contract address for deployer.
func (tx *Tx) Deploy(deployer common.Address) common.Address {
	nonce := tx.chain.nonces[deployer]
	SetKey(tx, tx.chain.nonces, deployer, nonce+1)
	return crypto.CreateAddress(deployer, nonce)
}

// NativeBalance returns the native balance of addr as seen by this transaction.
func (tx *Tx) NativeBalance(addr common.Address) *uint256.Int {
	return fixed.OrZero(tx.chain.native[addr])
}

// TransferNative moves native currency between accounts.
func (tx *Tx) TransferNative(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return types.ErrZeroAddress
	}
	fromBal, err := fixed.Sub(tx.NativeBalance(from), amount)
	if err != nil {
		return types.ErrInsufficientBalance
	}
	toBal, err := fixed.Add(tx.NativeBalance(to), amount)
	if err != nil {
		return err
	}
	SetKey(tx, tx.chain.native, from, fromBal)
	SetKey(tx, tx.chain.native, to, toBal)
	return nil
}

// AfterCommit registers fn to run once the transaction has committed.
// Hooks run in registration order with the chain lock held.
func (tx *Tx) AfterCommit(fn func()) {
	*tx.hooks = append(*tx.hooks, fn)
}

// OnRevert registers an undo action for state the journal helpers do not cover.
func (tx *Tx) OnRevert(undo func()) {
	tx.journal.append(undo)
}
