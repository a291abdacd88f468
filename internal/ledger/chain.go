// Package ledger provides the transaction substrate every contract runs on:
// a totally ordered, single-writer chain where each transaction either
// commits completely or is rolled back through its journal.
//
// Contract methods take a *Tx as their first argument and must only be called
// from inside Chain.Execute (or from another contract method that received a
// *Tx). Reads of contract state outside a transaction go through Chain.Read so
// they never observe a half-applied transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Event is a structured contract event.
type Event interface {
	EventName() string
}

// Log is a committed event together with its position in the chain.
type Log struct {
	Index    uint64         `json:"index"`
	TxIndex  uint64         `json:"tx_index"`
	Time     uint64         `json:"time"`
	Contract common.Address `json:"contract"`
	Name     string         `json:"name"`
	Event    Event          `json:"event"`
}

// Sink receives every batch of committed logs, in commit order.
// Publish is called with the chain lock held and must not block or call back
// into the chain.
type Sink interface {
	Publish(logs []Log)
}

// Chain serialises transactions and owns native balances, deployment nonces,
// the block clock and the committed event log.
type Chain struct {
	mu     sync.Mutex
	now    uint64
	height uint64
	native map[common.Address]*uint256.Int
	nonces map[common.Address]uint64
	logs   []Log
	sinks  []Sink
	logger *zap.Logger
}

// Config holds chain configuration.
type Config struct {
	StartTime uint64 // Unix seconds; zero means wall-clock now
	Logger    *zap.Logger
}

// New creates an empty chain.
func New(cfg Config) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := cfg.StartTime
	if start == 0 {
		start = uint64(time.Now().Unix())
	}

	return &Chain{
		now:    start,
		native: make(map[common.Address]*uint256.Int),
		nonces: make(map[common.Address]uint64),
		logger: logger,
	}
}

// AddSink registers a log consumer.
func (c *Chain) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Execute runs fn as one atomic transaction sent by from.
func (c *Chain) Execute(from common.Address, op string, fn func(tx *Tx) error) error {
	return c.ExecuteWithValue(from, common.Address{}, nil, op, fn)
}

// ExecuteWithValue runs fn as one atomic transaction that first moves value
// native units from from to to.
func (c *Chain) ExecuteWithValue(
	from common.Address,
	to common.Address,
	value *uint256.Int,
	op string,
	fn func(tx *Tx) error,
) (err error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{
		chain:   c,
		journal: &journal{},
		sender:  from,
		value:   fixed.OrZero(value),
		pending: &[]Log{},
		hooks:   &[]func(){},
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		status := "committed"
		if err != nil {
			tx.journal.revert()
			status = "reverted"
			var revert *types.RevertError
			if !errors.As(err, &revert) {
				err = &types.RevertError{Op: op, Sender: from, Err: err}
			}
			c.logger.Debug("tx-reverted",
				zap.String("op", op),
				zap.String("sender", from.Hex()),
				zap.Error(err))
		} else {
			c.commit(tx)
		}
		TransactionsTotal.WithLabelValues(op, status).Inc()
		TransactionDuration.Observe(time.Since(start).Seconds())
	}()

	if value != nil && !value.IsZero() {
		if err = tx.TransferNative(from, to, value); err != nil {
			return err
		}
	}

	return fn(tx)
}

func (c *Chain) commit(tx *Tx) {
	c.height++
	batch := *tx.pending
	for i := range batch {
		batch[i].Index = uint64(len(c.logs)) + uint64(i)
		batch[i].TxIndex = c.height
	}
	c.logs = append(c.logs, batch...)
	LogsEmittedTotal.Add(float64(len(batch)))

	for _, hook := range *tx.hooks {
		hook()
	}

	if len(batch) == 0 {
		return
	}
	for _, s := range c.sinks {
		s.Publish(batch)
	}
}

// Read runs fn with the chain lock held so it observes committed state only.
func (c *Chain) Read(fn func(now uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.now)
}

// ReadAt is Read with the committed height as well.
func (c *Chain) ReadAt(fn func(now, height uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.now, c.height)
}

// Now returns the current block timestamp.
func (c *Chain) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Height returns the number of committed transactions.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the block clock forward by d.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += uint64(d / time.Second)
	}
}

// SetTime moves the block clock to t. Time never goes backwards.
func (c *Chain) SetTime(t uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.now {
		return fmt.Errorf("set time %d: clock is already at %d", t, c.now)
	}
	c.now = t
	return nil
}

// RunWallClock keeps the block clock in step with wall time until ctx is done.
func (c *Chain) RunWallClock(ctx context.Context, interval time.Duration) {
	c.logger.Info("wall-clock-started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("wall-clock-stopped")
			return
		case now := <-ticker.C:
			// SetTime refuses to move backwards, which is the only error case.
			_ = c.SetTime(uint64(now.Unix()))
		}
	}
}

// Fund credits native currency to addr outside of any transaction (genesis allocation).
func (c *Chain) Fund(addr common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[addr] = new(uint256.Int).Add(fixed.OrZero(c.native[addr]), amount)
}

// NativeBalance returns the native currency balance of addr.
func (c *Chain) NativeBalance(addr common.Address) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(fixed.OrZero(c.native[addr]))
}

// Logs returns up to limit committed logs starting at index from.
func (c *Chain) Logs(from uint64, limit int) []Log {
	c.mu.Lock()
	defer c.mu.Unlock()

	if from >= uint64(len(c.logs)) || limit <= 0 {
		return nil
	}
	end := from + uint64(limit)
	if end > uint64(len(c.logs)) {
		end = uint64(len(c.logs))
	}
	out := make([]Log, end-from)
	copy(out, c.logs[from:end])
	return out
}
