package provider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
)

// RetryConfig controls the transient-error retry decorator.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is tuned for a rate-limited market data provider:
// few attempts, generous backoff.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// RetryQuotes retries transient provider failures with jittered backoff.
// It sits below the enrichment pipeline, which itself never retries: once
// this decorator gives up, the failure becomes lookup errors for the
// affected group.
type RetryQuotes struct {
	quotes Quotes
	config RetryConfig
}

var _ Quotes = (*RetryQuotes)(nil)

// NewRetryQuotes wraps a Quotes provider with retry behavior.
func NewRetryQuotes(quotes Quotes, config ...RetryConfig) *RetryQuotes {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &RetryQuotes{quotes: quotes, config: cfg}
}

// FetchChain retries the underlying fetch on transient errors.
func (r *RetryQuotes) FetchChain(ctx context.Context, underlying string, expiration time.Time) (*Chain, error) {
	return retryFetch(ctx, r.config, func() (*Chain, error) {
		return r.quotes.FetchChain(ctx, underlying, expiration)
	})
}

// FetchExpirations retries the underlying fetch on transient errors.
func (r *RetryQuotes) FetchExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	return retryFetch(ctx, r.config, func() ([]time.Time, error) {
		return r.quotes.FetchExpirations(ctx, underlying)
	})
}

func retryFetch[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("operation canceled: %w", err)
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}
	return zero, lastErr
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// isTransient reports whether an error is worth retrying. Permanent 4xx
// API errors (other than 429) and not-found/config errors are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotConfigured) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
