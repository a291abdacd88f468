// Package circuitbreaker tracks the health of a downstream dependency from the
// outcome of calls made against it.
package circuitbreaker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FailureBreaker opens after a run of consecutive failures and closes again
// only after a run of consecutive successes. The gap between the two
// thresholds is the hysteresis that keeps a flapping dependency from toggling
// the state on every call.
type FailureBreaker struct {
	closed atomic.Bool // Atomic for lock-free reads

	name              string
	failureThreshold  int
	recoveryThreshold int
	logger            *zap.Logger

	// Protected by mutex
	mu            sync.Mutex
	failures      int // consecutive
	successes     int // consecutive, counted only while open
	lastErr       error
	lastChange    time.Time
	totalFailures uint64
}

// Config holds circuit breaker configuration.
type Config struct {
	Name              string
	FailureThreshold  int
	RecoveryThreshold int
	Logger            *zap.Logger
}

// Status holds current circuit breaker status for debugging.
type Status struct {
	Name                string
	Closed              bool
	ConsecutiveFailures int
	LastError           string
	LastChange          time.Time
	TotalFailures       uint64
}

// New creates a new circuit breaker with the given configuration.
func New(cfg *Config) (breaker *FailureBreaker, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.RecoveryThreshold <= 0 {
		return nil, fmt.Errorf("recovery threshold must be positive")
	}

	breaker = &FailureBreaker{
		name:              cfg.Name,
		failureThreshold:  cfg.FailureThreshold,
		recoveryThreshold: cfg.RecoveryThreshold,
		logger:            cfg.Logger,
		lastChange:        time.Now(),
	}

	// Start closed
	breaker.closed.Store(true)
	BreakerClosed.WithLabelValues(cfg.Name).Set(1)

	return breaker, nil
}

// IsClosed reports whether the dependency is considered healthy.
// This is lock-free and safe to call from hot paths.
func (b *FailureBreaker) IsClosed() bool {
	return b.closed.Load()
}

// Record feeds the outcome of one call into the breaker.
func (b *FailureBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		b.totalFailures++
		b.lastErr = err
		BreakerFailuresTotal.WithLabelValues(b.name).Inc()

		if b.closed.Load() && b.failures >= b.failureThreshold {
			b.transition(false)
			b.logger.Warn("circuit-breaker-opened",
				zap.String("breaker", b.name),
				zap.Int("consecutive-failures", b.failures),
				zap.Error(err))
		}
		return
	}

	b.failures = 0
	if b.closed.Load() {
		return
	}
	b.successes++
	if b.successes >= b.recoveryThreshold {
		b.transition(true)
		b.logger.Info("circuit-breaker-closed",
			zap.String("breaker", b.name),
			zap.Int("consecutive-successes", b.successes))
		b.successes = 0
	}
}

func (b *FailureBreaker) transition(closed bool) {
	b.closed.Store(closed)
	b.lastChange = time.Now()
	BreakerStateChanges.WithLabelValues(b.name).Inc()
	if closed {
		BreakerClosed.WithLabelValues(b.name).Set(1)
	} else {
		BreakerClosed.WithLabelValues(b.name).Set(0)
	}
}

// Check returns nil while closed and the last failure while open, so the
// breaker can back a readiness check.
func (b *FailureBreaker) Check() error {
	if b.closed.Load() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Errorf("%s circuit open: %w", b.name, b.lastErr)
}

// GetStatus returns current circuit breaker status for debugging and HTTP endpoints.
func (b *FailureBreaker) GetStatus() (status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status = Status{
		Name:                b.name,
		Closed:              b.closed.Load(),
		ConsecutiveFailures: b.failures,
		LastChange:          b.lastChange,
		TotalFailures:       b.totalFailures,
	}
	if b.lastErr != nil {
		status.LastError = b.lastErr.Error()
	}

	return status
}
