// Package storage persists committed ledger events outside the process.
package storage

import (
	"context"

	"github.com/mselser95/settlement-engine/internal/ledger"
)

// Storage is the interface for persisting committed ledger logs.
type Storage interface {
	// StoreLogs persists a batch of logs in commit order.
	StoreLogs(ctx context.Context, logs []ledger.Log) error

	// Close closes the storage connection.
	Close() error
}
