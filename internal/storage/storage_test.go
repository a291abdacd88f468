package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/circuitbreaker"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sharesBought struct {
	Buyer  string `json:"buyer"`
	Shares string `json:"shares"`
}

func (sharesBought) EventName() string { return "SharesBought" }

var market = common.HexToAddress("0x00000000000000000000000000000000000beef1")

func sampleLogs(n int) []ledger.Log {
	logs := make([]ledger.Log, n)
	for i := range logs {
		logs[i] = ledger.Log{
			Index:    uint64(i),
			TxIndex:  7,
			Time:     1_700_000_000,
			Contract: market,
			Name:     "SharesBought",
			Event:    sharesBought{Buyer: "alice", Shares: "12.5"},
		}
	}
	return logs
}

func TestConsoleStorage_StoreLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	store := NewConsoleStorageTo(&buf, zaptest.NewLogger(t))

	require.NoError(t, store.StoreLogs(context.Background(), sampleLogs(2)))

	out := buf.String()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, out, market.Hex())
	assert.Contains(t, out, "SharesBought")
	assert.Contains(t, out, `"shares":"12.5"`)
	assert.NoError(t, store.Close())
}

func TestPostgresStorage_StoreLogs(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectBegin()
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO ledger_events").
			WithArgs(
				sqlmock.AnyArg(), // id
				int64(i),
				int64(7),
				time.Unix(1_700_000_000, 0).UTC(),
				market.Hex(),
				"SharesBought",
				[]byte(`{"buyer":"alice","shares":"12.5"}`),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.StoreLogs(context.Background(), sampleLogs(2)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_StoreLogs_RollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_events").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err = store.StoreLogs(context.Background(), sampleLogs(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, sqlmock.ErrCancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	require.NoError(t, store.StoreLogs(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_EnsureSchemaAndClose(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_events").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.EnsureSchema(context.Background()))

	mock.ExpectClose()
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type memStore struct {
	mu   sync.Mutex
	logs []ledger.Log
	fail bool
}

func (m *memStore) StoreLogs(_ context.Context, logs []ledger.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func TestWriter_PersistsAndDrains(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, WriterConfig{QueueSize: 8, Logger: zaptest.NewLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.Publish(sampleLogs(2))
	w.Publish(sampleLogs(3))
	assert.Eventually(t, func() bool { return store.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	<-w.Done()
}

func TestWriter_DrainsOnShutdown(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, WriterConfig{QueueSize: 4, Logger: zaptest.NewLogger(t)})

	// Publish before Run so the batches are only written by the final drain.
	w.Publish(sampleLogs(1))
	w.Publish(sampleLogs(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 3, store.count())
}

func TestWriter_DropsWhenFull(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, WriterConfig{QueueSize: 1, Logger: zaptest.NewLogger(t)})

	w.Publish(sampleLogs(1))
	w.Publish(sampleLogs(4)) // dropped

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 1, store.count())
}

func TestWriter_StoreErrorDoesNotStopRun(t *testing.T) {
	t.Parallel()

	store := &memStore{fail: true}
	w := NewWriter(store, WriterConfig{Logger: zaptest.NewLogger(t)})
	w.Publish(sampleLogs(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 0, store.count())
}

func TestWriter_FeedsBreaker(t *testing.T) {
	t.Parallel()

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:              "storage-test",
		FailureThreshold:  2,
		RecoveryThreshold: 1,
		Logger:            zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	store := &memStore{fail: true}
	w := NewWriter(store, WriterConfig{Breaker: breaker, Logger: zaptest.NewLogger(t)})
	w.Publish(sampleLogs(1))
	w.Publish(sampleLogs(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.False(t, breaker.IsClosed())
	assert.ErrorContains(t, breaker.Check(), "disk full")

	store.fail = false
	w2 := NewWriter(store, WriterConfig{Breaker: breaker, Logger: zaptest.NewLogger(t)})
	w2.Publish(sampleLogs(1))
	w2.Run(ctx)

	assert.True(t, breaker.IsClosed())
	assert.Equal(t, 1, store.count())
}

func TestWriter_AsChainSink(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, WriterConfig{Logger: zaptest.NewLogger(t)})
	chain := ledger.New(ledger.Config{StartTime: 1_700_000_000, Logger: zaptest.NewLogger(t)})
	chain.AddSink(w)

	require.NoError(t, chain.Execute(market, "emit", func(tx *ledger.Tx) error {
		tx.Emit(market, sharesBought{Buyer: "bob", Shares: "1"})
		return nil
	}))
	require.Error(t, chain.Execute(market, "emit-revert", func(tx *ledger.Tx) error {
		tx.Emit(market, sharesBought{Buyer: "carol", Shares: "2"})
		return errors.New("boom")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	require.Equal(t, 1, store.count())
	assert.Equal(t, "SharesBought", store.logs[0].Name)
}
