// Package provider defines the quote/Greeks and custody collaborator
// contracts consumed by the enrichment pipeline, along with a Tradier
// API client implementation and resilience decorators.
package provider

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/afialkov/greekfolio/internal/models"
)

// ErrNotFound is returned when the provider has no data for the requested
// underlying or expiration.
var ErrNotFound = errors.New("provider: not found")

// ErrNotConfigured is returned when the provider is unusable because
// credentials or configuration are missing. It is fatal only for the
// affected call, never for the process.
var ErrNotConfigured = errors.New("provider: missing credentials")

// Chain is the market state for every contract of one (underlying,
// expiration) pair, plus the underlying's own price.
type Chain struct {
	UnderlyingPrice float64                 `json:"underlying_price"`
	Contracts       []models.OptionContract `json:"contracts"`
}

// Quotes supplies option chains with Greeks and available expirations.
// IV and Greeks always come from the provider; nothing is derived locally.
type Quotes interface {
	FetchChain(ctx context.Context, underlying string, expiration time.Time) (*Chain, error)
	FetchExpirations(ctx context.Context, underlying string) ([]time.Time, error)
}

// Custody supplies the raw positions held at the brokerage.
type Custody interface {
	FetchRawPositions(ctx context.Context) ([]models.RawPosition, error)
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// BreakerQuotes wraps a Quotes provider with circuit breaker protection so
// a flapping provider stops consuming rate-limited request budget.
type BreakerQuotes struct {
	quotes  Quotes
	breaker *gobreaker.CircuitBreaker
}

var _ Quotes = (*BreakerQuotes)(nil)

// NewBreakerQuotes creates a BreakerQuotes with sensible defaults.
func NewBreakerQuotes(quotes Quotes) *BreakerQuotes {
	return NewBreakerQuotesWithSettings(quotes, BreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewBreakerQuotesWithSettings creates a BreakerQuotes with custom settings.
func NewBreakerQuotesWithSettings(quotes Quotes, settings BreakerSettings) *BreakerQuotes {
	gbSettings := gobreaker.Settings{
		Name:        "QuoteProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerQuotes{
		quotes:  quotes,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// FetchChain wraps the underlying provider call with the circuit breaker.
func (b *BreakerQuotes) FetchChain(ctx context.Context, underlying string, expiration time.Time) (*Chain, error) {
	return execBreaker(b.breaker, func() (*Chain, error) {
		return b.quotes.FetchChain(ctx, underlying, expiration)
	})
}

// FetchExpirations wraps the underlying provider call with the circuit breaker.
func (b *BreakerQuotes) FetchExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	return execBreaker(b.breaker, func() ([]time.Time, error) {
		return b.quotes.FetchExpirations(ctx, underlying)
	})
}
