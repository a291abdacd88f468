package storage

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/settlement-engine/internal/ledger"
	"go.uber.org/zap"
)

// Writer is a ledger.Sink that queues committed log batches and persists them
// from a background goroutine. Publish never blocks: when the queue is full
// the batch is dropped and counted.
type Writer struct {
	store   Storage
	queue   chan []ledger.Log
	timeout time.Duration
	breaker Recorder
	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// Recorder receives the outcome of every store write.
type Recorder interface {
	Record(err error)
}

// WriterConfig holds writer configuration.
type WriterConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	Breaker      Recorder // optional
	Logger       *zap.Logger
}

// NewWriter creates a writer in front of store.
func NewWriter(store Storage, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Writer{
		store:   store,
		queue:   make(chan []ledger.Log, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
}

// Publish implements ledger.Sink.
func (w *Writer) Publish(logs []ledger.Log) {
	batch := make([]ledger.Log, len(logs))
	copy(batch, logs)

	select {
	case w.queue <- batch:
		QueueDepth.Inc()
	default:
		LogsDroppedTotal.Add(float64(len(batch)))
		w.logger.Warn("storage-queue-full", zap.Int("dropped", len(batch)))
	}
}

// Run persists queued batches until ctx is done, then drains what is left.
func (w *Writer) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })
	w.logger.Info("storage-writer-started")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.logger.Info("storage-writer-stopped")
			return
		case batch := <-w.queue:
			w.write(batch)
		}
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) drain() {
	for {
		select {
		case batch := <-w.queue:
			w.write(batch)
		default:
			return
		}
	}
}

func (w *Writer) write(batch []ledger.Log) {
	QueueDepth.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.store.StoreLogs(ctx, batch)
	if w.breaker != nil {
		w.breaker.Record(err)
	}
	if err != nil {
		StoreErrorsTotal.Inc()
		w.logger.Error("store-logs-failed",
			zap.Uint64("first-index", batch[0].Index),
			zap.Int("count", len(batch)),
			zap.Error(err))
		return
	}
	LogsStoredTotal.Add(float64(len(batch)))
}
