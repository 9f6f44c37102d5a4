// Package retry implements the exponential-backoff-with-jitter
// executor used by every outbound call made through the provider,
// code-sync, remote-command, and checkpoint components. The waiting
// loop is a context-aware countdown built on time.Timer.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/arclabs561/runctl/internal/errs"
)

// Config parameterizes a retry executor. Execute replaces a Config
// whose MaxAttempts is zero or negative with DefaultConfig as a whole;
// other zero fields are used as given.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultConfig is used for non-cloud retryable operations (3 attempts).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
	}
}

// DefaultCloudConfig is used for cloud-provider calls (5 attempts).
func DefaultCloudConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 5
	return cfg
}

// Logger receives a warn-level line for every retried attempt. Callers
// typically pass a logger.ConsoleLogger or logger.FileLogger here; nil
// is accepted and simply suppresses the warning.
type Logger interface {
	Warnf(format string, args ...any)
}

// Op is a fallible operation the executor retries. It must be
// idempotent by contract — the executor does not deduplicate side
// effects across attempts.
type Op[T any] func(ctx context.Context) (T, error)

// Execute runs op up to cfg.MaxAttempts times. A non-retryable error
// (per errs.IsRetryable) aborts immediately with the original error
// unchanged. Exhausting all attempts on a retryable error wraps the
// last error in errs.Retryable, preserving the causal chain. Execute
// never retries past a cancelled or expired ctx.
func Execute[T any](ctx context.Context, cfg Config, log Logger, reason string, op Op[T]) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}

	var lastErr error
	var zero T
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errs.IsRetryable(err) {
			return zero, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if log != nil {
			log.Warnf("retrying %s (attempt %d/%d) after %v: %v", reason, attempt, cfg.MaxAttempts, delay, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, errs.Retryable(cfg.MaxAttempts, cfg.MaxAttempts, reason, lastErr)
}

// backoffDelay computes min(max_delay, initial_delay * 2^n) plus a
// uniform random jitter in [0, delay*jitter_factor].
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay * (1 << uint(attempt))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * cfg.JitterFactor * float64(delay))
	return delay + jitter
}
