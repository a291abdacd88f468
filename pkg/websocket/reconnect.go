package websocket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned by Redial once MaxAttempts dials have failed.
var ErrRetriesExhausted = errors.New("redial attempts exhausted")

// RetryPolicy shapes the wait between dials of a dropped event stream.
// The wait before attempt n is Base*Factor^n capped at Cap, stretched by up
// to Jitter of itself.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	Jitter      float64 // 0.2 = up to 20% extra
	MaxAttempts int     // 0 retries until the context ends
}

// DefaultRetryPolicy starts at 500ms and doubles up to 30s with 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:   500 * time.Millisecond,
		Cap:    30 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Wait returns the un-jittered delay before attempt n, counted from zero.
func (p RetryPolicy) Wait(n int) time.Duration {
	factor := math.Max(p.Factor, 1)
	d := float64(p.Base) * math.Pow(factor, float64(n))
	switch {
	case p.Cap > 0 && d > float64(p.Cap):
		return p.Cap
	case d >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p RetryPolicy) jittered(n int, roll float64) time.Duration {
	return time.Duration(float64(p.Wait(n)) * (1 + roll*p.Jitter))
}

// Redialer re-establishes a subscriber connection at a resume index.
type Redialer struct {
	policy RetryPolicy
	logger *zap.Logger
	roll   func() float64
}

// NewRedialer creates a redialer following policy.
func NewRedialer(policy RetryPolicy, logger *zap.Logger) *Redialer {
	return &Redialer{
		policy: policy,
		logger: logger,
		roll:   rand.Float64, //nolint:gosec // jitter does not need a CSPRNG
	}
}

// Redial waits and calls dial with the index the stream should resume at
// until dial succeeds, the attempts run out, or ctx ends. It returns the
// number of dials made.
func (r *Redialer) Redial(ctx context.Context, from uint64, dial func(context.Context) error) (int, error) {
	var last error
	for n := 0; r.policy.MaxAttempts == 0 || n < r.policy.MaxAttempts; n++ {
		wait := r.policy.jittered(n, r.roll())
		r.logger.Info("redial-scheduled",
			zap.Int("attempt", n+1),
			zap.Duration("wait", wait),
			zap.Uint64("resume-from", from))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}

		ReconnectAttemptsTotal.Inc()
		if last = dial(ctx); last == nil {
			r.logger.Info("redial-succeeded", zap.Int("attempts", n+1), zap.Uint64("resume-from", from))
			return n + 1, nil
		}
		ReconnectFailuresTotal.Inc()
		r.logger.Warn("redial-failed", zap.Int("attempt", n+1), zap.Error(last))
	}
	return r.policy.MaxAttempts, fmt.Errorf("%w after %d dials: %w", ErrRetriesExhausted, r.policy.MaxAttempts, last)
}
