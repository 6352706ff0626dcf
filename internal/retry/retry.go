// Package retry implements the vault backend's retry/backoff policy,
// structured after stellar-arrow-source/go/resilience/retry.go's
// RetryManager but pinned to the fixed constants and retryable-error
// vocabulary this system specifies rather than that package's defaults.
package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/withobsrvr/vault-backend/internal/logging"
)

// Policy mirrors the fixed backoff parameters: three attempts, a 100ms
// initial delay doubling each attempt, capped at 5s.
type Policy struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy returns the backoff policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

var retryableSubstrings = []string{
	"timeout",
	"connection",
	"temporarily",
	"unavailable",
	"rate limit",
}

// IsRetryable reports whether err's message (case-insensitively) contains
// one of the known transient substrings.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Manager executes operations under a Policy, logging each retry.
type Manager struct {
	policy Policy
	logger *logging.ComponentLogger
}

// NewManager creates a Manager. A nil logger is replaced with a component
// logger named "retry".
func NewManager(policy Policy, logger *logging.ComponentLogger) *Manager {
	if logger == nil {
		logger = logging.New("retry")
	}
	return &Manager{policy: policy, logger: logger}
}

// Execute runs fn, retrying on retryable errors with exponential backoff
// for at most policy.MaxAttempts attempts in total (the first call
// included). Non-retryable errors return immediately.
func (m *Manager) Execute(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				m.logger.Info().Str("operation", operation).Int("attempts", attempt).Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt >= m.policy.MaxAttempts {
			return fmt.Errorf("operation %q failed after %d attempts: %w", operation, attempt, err)
		}

		delay := m.delayFor(attempt)
		m.logger.Warn().Str("operation", operation).Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("retrying after transient error")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (m *Manager) delayFor(attempt int) time.Duration {
	delay := float64(m.policy.InitialDelay) * math.Pow(m.policy.BackoffMultiplier, float64(attempt-1))
	if delay > float64(m.policy.MaxDelay) {
		delay = float64(m.policy.MaxDelay)
	}
	return time.Duration(delay)
}
