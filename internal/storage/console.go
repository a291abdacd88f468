package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by printing one line per event.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	return NewConsoleStorageTo(os.Stdout, logger)
}

// NewConsoleStorageTo creates a console storage writing to out.
func NewConsoleStorageTo(out io.Writer, logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    out,
		logger: logger,
	}
}

// StoreLogs prints each log as "#index tx=N contract name payload".
func (c *ConsoleStorage) StoreLogs(_ context.Context, logs []ledger.Log) error {
	for _, l := range logs {
		payload, err := json.Marshal(l.Event)
		if err != nil {
			return fmt.Errorf("encode %s: %w", l.Name, err)
		}
		_, err = fmt.Fprintf(c.out, "#%-6d tx=%-6d %s %-28s %s\n",
			l.Index, l.TxIndex, l.Contract.Hex(), l.Name, payload)
		if err != nil {
			return fmt.Errorf("write log: %w", err)
		}
	}
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
