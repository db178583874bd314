package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of attempts; 0 means unlimited
	Backoff     time.Duration // Backoff duration before the second attempt
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to (re)establish a connection
type ReconnectFunc func(ctx context.Context) error

// IsPermanentFunc reports errors that retrying cannot fix
type IsPermanentFunc func(error) bool

// NewBackOff builds an exponential backoff policy from the config.
// The policy never gives up by elapsed time; attempts are bounded by the caller.
// A non-positive Backoff falls back to the default, MaxBackoff is raised to at
// least Backoff and Multiplier to at least 1, so every wait is positive.
func NewBackOff(config *ReconnectConfig) *backoff.ExponentialBackOff {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	initial := config.Backoff
	if initial <= 0 {
		initial = DefaultReconnectConfig().Backoff
	}
	maxInterval := config.MaxBackoff
	if maxInterval < initial {
		maxInterval = initial
	}
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = multiplier
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Reconnect attempts fn with exponential backoff until it succeeds, fails
// permanently, runs out of attempts or ctx is done
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig, isPermanent IsPermanentFunc, logger zerolog.Logger) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	var policy backoff.BackOff = NewBackOff(config)
	if config.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(config.MaxAttempts-1))
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isPermanent != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Connection attempt failed")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isPermanent != nil && isPermanent(err) {
			return err
		}
		return fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
	}

	if attempt > 1 {
		logger.Info().Int("attempts", attempt).Msg("Connection established after retries")
	}
	return nil
}

// LoopBackoff yields growing delays between reconnection attempts of a
// long-running loop and starts over after a success
type LoopBackoff struct {
	policy *backoff.ExponentialBackOff
}

// NewLoopBackoff creates a backoff for an unbounded reconnect loop
func NewLoopBackoff(config *ReconnectConfig) *LoopBackoff {
	return &LoopBackoff{policy: NewBackOff(config)}
}

// Next returns the delay before the next attempt
func (l *LoopBackoff) Next() time.Duration {
	d := l.policy.NextBackOff()
	if d == backoff.Stop {
		return l.policy.MaxInterval
	}
	return d
}

// Reset starts the delay sequence over
func (l *LoopBackoff) Reset() {
	l.policy.Reset()
}
