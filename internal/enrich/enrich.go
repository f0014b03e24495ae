// Package enrich fuses raw brokerage positions with live market quotes
// and Greeks. Positions are classified with the symbol codec, chain
// lookups are batched per (underlying, expiration) group, and individual
// failures never abort the rest of the batch.
package enrich

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/afialkov/greekfolio/internal/cache"
	"github.com/afialkov/greekfolio/internal/models"
	"github.com/afialkov/greekfolio/internal/occ"
	"github.com/afialkov/greekfolio/internal/provider"
)

// StrikeMatchEpsilon is the tolerance for matching a parsed strike against
// a chain contract's strike.
const StrikeMatchEpsilon = 1e-3

// defaultFanout bounds concurrent chain fetches; the provider is rate-
// and cost-limited.
const defaultFanout = 4

// LookupError records a single position that could not be enriched. It is
// non-fatal: the rest of the batch proceeds.
type LookupError struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Reason    string `json:"reason"`
}

func (e LookupError) Error() string {
	return fmt.Sprintf("position %s (%s): %s", e.Symbol, e.AccountID, e.Reason)
}

// Result is the outcome of one enrichment pass. Positions and Errors
// partition the input: every raw position lands in exactly one of them.
type Result struct {
	PassID    string                    `json:"pass_id"`
	Positions []models.EnrichedPosition `json:"positions"`
	Errors    []LookupError             `json:"errors,omitempty"`
	Summary   models.PortfolioSummary   `json:"summary"`
}

// chainKey identifies one batched chain lookup.
type chainKey struct {
	Underlying string
	Expiration string // YYYY-MM-DD; time.Time is not a reliable map key
}

// Enricher runs enrichment passes against a quote provider, memoizing
// chain fetches in a TTL cache shared across passes.
type Enricher struct {
	quotes provider.Quotes
	chains *cache.TTL[chainKey, *provider.Chain]
	logger *logrus.Logger
	fanout int
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithFanout bounds the number of concurrent chain fetches.
func WithFanout(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.fanout = n
		}
	}
}

// NewEnricher creates an Enricher. Chain fetches are cached for cacheTTL;
// a non-positive TTL disables the cache.
func NewEnricher(quotes provider.Quotes, cacheTTL time.Duration, logger *logrus.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		quotes: quotes,
		chains: cache.New[chainKey, *provider.Chain](cacheTTL),
		logger: logger,
		fanout: defaultFanout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClearCache drops memoized chains. Exposed for tests and for forcing a
// fresh snapshot.
func (e *Enricher) ClearCache() {
	e.chains.Clear()
}

// group is the per-(underlying, expiration) batch assembled during
// classification. Intermediate state is local to one pass.
type group struct {
	key        chainKey
	expiration time.Time
	positions  []classified
}

type classified struct {
	raw models.RawPosition
	id  models.OptionIdentity
}

// Enrich classifies every raw position, batches chain lookups per
// (underlying, expiration), and merges market state into each position.
// Failures are recorded per position; the returned result always carries
// whatever succeeded. The context deadline bounds the whole pass: groups
// not fetched in time surface as errors rather than discarding progress.
func (e *Enricher) Enrich(ctx context.Context, raw []models.RawPosition) *Result {
	res := &Result{PassID: uuid.NewString()}
	log := e.logger.WithField("pass_id", res.PassID)

	var mu sync.Mutex // guards res across fetch goroutines

	groups := make(map[chainKey]*group)
	for _, pos := range raw {
		inst := occ.Parse(pos.Symbol)
		if inst.Kind == models.KindEquity {
			res.Positions = append(res.Positions, enrichEquity(pos, inst))
			continue
		}
		key := chainKey{
			Underlying: inst.Option.Underlying,
			Expiration: inst.Option.Expiration.Format("2006-01-02"),
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, expiration: inst.Option.Expiration}
			groups[key] = g
		}
		g.positions = append(g.positions, classified{raw: pos, id: inst.Option})
	}

	log.WithFields(logrus.Fields{
		"positions": len(raw),
		"groups":    len(groups),
	}).Debug("starting enrichment pass")

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.fanout)
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			chain, err := e.fetchChain(ctx, g)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("group", g.key).Warn("chain fetch failed")
				for _, c := range g.positions {
					res.Errors = append(res.Errors, LookupError{
						AccountID: c.raw.AccountID,
						Symbol:    c.raw.Symbol,
						Reason:    fmt.Sprintf("chain fetch failed: %v", err),
					})
				}
				return nil // group failures never abort sibling groups
			}
			for _, c := range g.positions {
				contract := findContract(chain.Contracts, c.id)
				if contract == nil {
					res.Errors = append(res.Errors, LookupError{
						AccountID: c.raw.AccountID,
						Symbol:    c.raw.Symbol,
						Reason: fmt.Sprintf("no %s contract at strike %g in %s %s chain",
							c.id.Type, c.id.Strike, g.key.Underlying, g.key.Expiration),
					})
					continue
				}
				res.Positions = append(res.Positions, enrichOption(c.raw, c.id, contract))
			}
			return nil
		})
	}
	_ = eg.Wait() // goroutines report failures via res.Errors

	// Map iteration above makes output order nondeterministic; fix it so
	// callers see stable results.
	sort.Slice(res.Positions, func(i, j int) bool {
		return res.Positions[i].Raw.Symbol < res.Positions[j].Raw.Symbol
	})
	sort.Slice(res.Errors, func(i, j int) bool {
		return res.Errors[i].Symbol < res.Errors[j].Symbol
	})

	res.Summary = models.Summarize(res.Positions)

	log.WithFields(logrus.Fields{
		"enriched": len(res.Positions),
		"errors":   len(res.Errors),
	}).Info("enrichment pass complete")

	return res
}

// fetchChain serves a group's chain from cache when fresh, otherwise from
// the provider. Stale entries read as misses and are overwritten.
func (e *Enricher) fetchChain(ctx context.Context, g *group) (*provider.Chain, error) {
	if chain, ok := e.chains.Get(g.key); ok {
		return chain, nil
	}
	chain, err := e.quotes.FetchChain(ctx, g.key.Underlying, g.expiration)
	if err != nil {
		return nil, err
	}
	e.chains.Put(g.key, chain)
	return chain, nil
}

// findContract locates the chain contract matching the parsed identity's
// strike and type exactly (within strike tolerance).
func findContract(contracts []models.OptionContract, id models.OptionIdentity) *models.OptionContract {
	for i := range contracts {
		if contracts[i].Type == id.Type && math.Abs(contracts[i].Strike-id.Strike) <= StrikeMatchEpsilon {
			return &contracts[i]
		}
	}
	return nil
}

// enrichOption derives market and risk fields for a matched option
// position. Exposures use the unit-less convention greek * quantity *
// multiplier; they are deliberately not multiplied by the underlying
// price.
func enrichOption(raw models.RawPosition, id models.OptionIdentity, contract *models.OptionContract) models.EnrichedPosition {
	price := contract.Mid()
	marketValue := price * raw.Quantity * models.SharesPerContract
	costBasis := raw.AverageCost * raw.Quantity * models.SharesPerContract

	return models.EnrichedPosition{
		Raw:           raw,
		Status:        models.StatusMatched,
		Instrument:    models.NewOptionInstrument(id),
		Contract:      contract,
		MarketValue:   marketValue,
		CostBasis:     costBasis,
		UnrealizedPnL: marketValue - costBasis,
		Exposure:      contract.Greeks.Scale(raw.Quantity * models.SharesPerContract),
	}
}

// enrichEquity derives market fields for an equity position. There is no
// live equity quote in the chain flow, so market value falls back to cost
// basis; equities carry no Greek exposure and no multiplier.
func enrichEquity(raw models.RawPosition, inst models.Instrument) models.EnrichedPosition {
	marketValue := raw.AverageCost * raw.Quantity
	return models.EnrichedPosition{
		Raw:           raw,
		Status:        models.StatusEquity,
		Instrument:    inst,
		MarketValue:   marketValue,
		CostBasis:     marketValue,
		UnrealizedPnL: 0,
	}
}
