package models

// RawPosition is a holding as reported by the custody provider. It is the
// source of truth for quantity and cost and is never mutated after fetch.
// Quantity is signed: negative means short. AverageCost is per share for
// equities and per contract-share for options (the provider's convention).
type RawPosition struct {
	AccountID   string  `json:"account_id"`
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	AverageCost float64 `json:"average_cost"`
}

// EnrichmentStatus describes how a position resolved during enrichment.
type EnrichmentStatus string

const (
	// StatusMatched means the position parsed as an option and a contract
	// with the same strike and type was found in the fetched chain.
	StatusMatched EnrichmentStatus = "matched"
	// StatusUnmatched means the position parsed as an option but no
	// contract matched; such positions are reported as lookup errors and
	// excluded from the enriched output.
	StatusUnmatched EnrichmentStatus = "unmatched"
	// StatusEquity means the position did not parse as an option.
	StatusEquity EnrichmentStatus = "equity"
)

// EnrichedPosition is a RawPosition fused with its resolved identity and,
// for options, the matching contract and derived market/risk fields.
//
// Invariant: Contract is non-nil exactly when Status == StatusMatched.
type EnrichedPosition struct {
	Raw        RawPosition      `json:"raw"`
	Status     EnrichmentStatus `json:"status"`
	Instrument Instrument       `json:"instrument"`
	Contract   *OptionContract  `json:"contract,omitempty"`

	MarketValue   float64 `json:"market_value"`
	CostBasis     float64 `json:"cost_basis"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`

	// Exposure is greek * signed quantity * multiplier, a unit-less
	// convention: it is NOT multiplied by the underlying price.
	Exposure Greeks `json:"exposure"`
}

// PortfolioSummary is a pure reduction over enriched positions. Sums and
// counts only, so the result is independent of input ordering.
type PortfolioSummary struct {
	OptionCount   int     `json:"option_count"`
	EquityCount   int     `json:"equity_count"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Exposure      Greeks  `json:"exposure"`
}

// Accumulate folds one enriched position into the summary.
func (s *PortfolioSummary) Accumulate(p EnrichedPosition) {
	switch p.Status {
	case StatusMatched:
		s.OptionCount++
	case StatusEquity:
		s.EquityCount++
	case StatusUnmatched:
		// Unmatched positions never reach the enriched output.
		return
	}
	s.MarketValue += p.MarketValue
	s.UnrealizedPnL += p.UnrealizedPnL
	s.Exposure = s.Exposure.Add(p.Exposure)
}

// Summarize reduces a set of enriched positions into a PortfolioSummary.
func Summarize(positions []EnrichedPosition) PortfolioSummary {
	var s PortfolioSummary
	for _, p := range positions {
		s.Accumulate(p)
	}
	return s
}
