package models

import "time"

// Greeks holds per-contract risk measures as supplied by the quote provider.
// They are never computed locally. Zero values mean the provider omitted them.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Add returns the element-wise sum of two Greeks.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

// Scale returns the Greeks multiplied by k.
func (g Greeks) Scale(k float64) Greeks {
	return Greeks{
		Delta: g.Delta * k,
		Gamma: g.Gamma * k,
		Theta: g.Theta * k,
		Vega:  g.Vega * k,
	}
}

// OptionContract is the market state for an option identity at a point in
// time. Price fields use 0 to mean "not quoted" (the provider reports no
// zero-priced contracts).
type OptionContract struct {
	Strike            float64    `json:"strike"`
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Last              float64    `json:"last"`
	Volume            int64      `json:"volume"`
	OpenInterest      int64      `json:"open_interest"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	Greeks            Greeks     `json:"greeks"`
	ObservedAt        time.Time  `json:"observed_at,omitempty"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade when
// either side of the book is missing. Returns 0 when nothing is quoted.
func (c *OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}
