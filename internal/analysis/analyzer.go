// Package analysis computes risk/reward analytics for single- and
// multi-leg option strategies: cost, payoff extremes, breakevens, a P&L
// curve, and aggregated Greeks.
//
// All functions are pure and synchronous; numeric work is float64
// throughout with no intermediate rounding.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/afialkov/greekfolio/internal/models"
)

// StrategyLeg is one buy or sell position in a single option contract.
// Premium is the per-share price paid (buy) or received (sell) to open.
type StrategyLeg struct {
	Strike   float64           `json:"strike"`
	Type     models.OptionType `json:"type"`
	Action   models.Side       `json:"action"`
	Quantity int               `json:"quantity"`
	Premium  float64           `json:"premium"`
	Greeks   models.Greeks     `json:"greeks"`
}

// Request describes a strategy to analyze.
type Request struct {
	Legs            []StrategyLeg `json:"legs"`
	UnderlyingPrice float64       `json:"underlying_price"`
	DaysToExpiry    int           `json:"days_to_expiry"`
	TargetPrices    []float64     `json:"target_prices,omitempty"`
	// ConversionPrice, when positive, additionally reports each P&L
	// divided by this price (a unit transform, e.g. dollars to shares of
	// the underlying).
	ConversionPrice float64 `json:"conversion_price,omitempty"`
}

// CurvePoint is one sample of the expiration payoff.
type CurvePoint struct {
	Price        float64 `json:"price"`
	PnL          float64 `json:"pnl"`
	PnLConverted float64 `json:"pnl_converted,omitempty"`
}

// Extreme is a payoff extreme. When Unlimited is true the extreme is
// unbounded and Value/Price carry no meaning.
type Extreme struct {
	Value     float64  `json:"value"`
	Unlimited bool     `json:"unlimited"`
	Price     *float64 `json:"price,omitempty"`
}

// Result is the full analysis of a strategy.
type Result struct {
	TotalCost           float64       `json:"total_cost"`
	MaxProfit           Extreme       `json:"max_profit"`
	MaxLoss             Extreme       `json:"max_loss"`
	Breakevens          []float64     `json:"breakevens"`
	CurrentPnL          float64       `json:"current_pnl"`
	CurrentPnLConverted float64       `json:"current_pnl_converted,omitempty"`
	Curve               []CurvePoint  `json:"pnl_curve,omitempty"`
	Greeks              models.Greeks `json:"greeks"`
}

// ValidationError reports malformed strategy input. The analysis is
// rejected before any computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid strategy input: %s %s", e.Field, e.Reason)
}

func validate(req *Request) error {
	if len(req.Legs) == 0 {
		return &ValidationError{Field: "legs", Reason: "must not be empty"}
	}
	for i, leg := range req.Legs {
		if leg.Strike <= 0 {
			return &ValidationError{Field: fmt.Sprintf("legs[%d].strike", i), Reason: "must be > 0"}
		}
		if leg.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("legs[%d].quantity", i), Reason: "must be > 0"}
		}
		if !leg.Type.Valid() {
			return &ValidationError{Field: fmt.Sprintf("legs[%d].type", i), Reason: "must be call or put"}
		}
		if !leg.Action.Valid() {
			return &ValidationError{Field: fmt.Sprintf("legs[%d].action", i), Reason: "must be buy or sell"}
		}
		if leg.Premium < 0 {
			return &ValidationError{Field: fmt.Sprintf("legs[%d].premium", i), Reason: "must be >= 0"}
		}
	}
	if req.UnderlyingPrice <= 0 {
		return &ValidationError{Field: "underlying_price", Reason: "must be > 0"}
	}
	if req.DaysToExpiry < 0 {
		return &ValidationError{Field: "days_to_expiry", Reason: "must be >= 0"}
	}
	return nil
}

// intrinsic is the exercise value of one share of the option at price p.
func intrinsic(typ models.OptionType, strike, p float64) float64 {
	if typ == models.OptionTypeCall {
		return math.Max(p-strike, 0)
	}
	return math.Max(strike-p, 0)
}

// payoffAt evaluates the aggregate expiration P&L at underlying price p.
func payoffAt(legs []StrategyLeg, p float64) float64 {
	total := 0.0
	for _, leg := range legs {
		total += models.SharesPerContract * float64(leg.Quantity) * leg.Action.Sign() *
			(intrinsic(leg.Type, leg.Strike, p) - leg.Premium)
	}
	return total
}

// rightTailSlope returns the payoff slope (per dollar of underlying) in
// the rightmost linear segment, where only calls contribute. The right
// tail is the only unbounded direction: the left side is capped at P=0,
// where puts reach their full intrinsic value.
func rightTailSlope(legs []StrategyLeg) float64 {
	slope := 0.0
	for _, leg := range legs {
		if leg.Type == models.OptionTypeCall {
			slope += models.SharesPerContract * float64(leg.Quantity) * leg.Action.Sign()
		}
	}
	return slope
}

// strikePrices returns the sorted, deduplicated set of leg strikes: the
// only interior points where the piecewise-linear payoff can kink.
func strikePrices(legs []StrategyLeg) []float64 {
	seen := make(map[float64]struct{}, len(legs))
	strikes := make([]float64, 0, len(legs))
	for _, leg := range legs {
		if _, ok := seen[leg.Strike]; !ok {
			seen[leg.Strike] = struct{}{}
			strikes = append(strikes, leg.Strike)
		}
	}
	sort.Float64s(strikes)
	return strikes
}

// Analyze validates the request and computes the full strategy analysis.
// Validation failures abort before any computation.
func Analyze(req Request) (*Result, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	totalCost := 0.0
	greeks := models.Greeks{}
	for _, leg := range req.Legs {
		scale := float64(leg.Quantity) * leg.Action.Sign()
		totalCost += models.SharesPerContract * leg.Premium * scale
		greeks = greeks.Add(leg.Greeks.Scale(scale))
	}

	strikes := strikePrices(req.Legs)
	rightSlope := rightTailSlope(req.Legs)

	// Extrema of a piecewise-linear payoff occur at a kink, at the P=0
	// boundary, or in the unbounded right tail.
	candidates := append([]float64{0}, strikes...)
	maxProfit := Extreme{Unlimited: rightSlope > 0}
	maxLoss := Extreme{Unlimited: rightSlope < 0}
	bestHigh, bestLow := math.Inf(-1), math.Inf(1)
	var highAt, lowAt float64
	for _, p := range candidates {
		// Ties prefer the higher price so flat segments report the strike
		// rather than the P=0 boundary.
		v := payoffAt(req.Legs, p)
		if v >= bestHigh {
			bestHigh, highAt = v, p
		}
		if v <= bestLow {
			bestLow, lowAt = v, p
		}
	}
	if !maxProfit.Unlimited {
		maxProfit.Value = bestHigh
		maxProfit.Price = &highAt
	}
	if !maxLoss.Unlimited {
		maxLoss.Value = -bestLow
		maxLoss.Price = &lowAt
	}

	breakevens := findBreakevens(req.Legs, strikes, rightSlope)

	res := &Result{
		TotalCost:  totalCost,
		MaxProfit:  maxProfit,
		MaxLoss:    maxLoss,
		Breakevens: breakevens,
		CurrentPnL: payoffAt(req.Legs, req.UnderlyingPrice),
		Greeks:     greeks,
	}

	if len(req.TargetPrices) > 0 {
		targets := append([]float64(nil), req.TargetPrices...)
		sort.Float64s(targets)
		res.Curve = make([]CurvePoint, 0, len(targets))
		for _, p := range targets {
			pt := CurvePoint{Price: p, PnL: payoffAt(req.Legs, p)}
			if req.ConversionPrice > 0 {
				pt.PnLConverted = pt.PnL / req.ConversionPrice
			}
			res.Curve = append(res.Curve, pt)
		}
	}
	if req.ConversionPrice > 0 {
		res.CurrentPnLConverted = res.CurrentPnL / req.ConversionPrice
	}

	return res, nil
}

// findBreakevens scans consecutive linear segments for sign changes and
// interpolates the zero crossing within each. Valid because the payoff is
// linear between adjacent strikes and in both tails.
func findBreakevens(legs []StrategyLeg, strikes []float64, rightSlope float64) []float64 {
	const eps = 1e-9

	points := append([]float64{0}, strikes...)
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = payoffAt(legs, p)
	}

	var crossings []float64
	push := func(x float64) {
		if len(crossings) > 0 && math.Abs(crossings[len(crossings)-1]-x) < eps {
			return
		}
		crossings = append(crossings, x)
	}

	for i := 0; i < len(points); i++ {
		if math.Abs(values[i]) < eps {
			if points[i] > 0 {
				push(points[i])
			}
			continue
		}
		if i+1 < len(points) && values[i]*values[i+1] < 0 {
			a, b := points[i], points[i+1]
			pa, pb := values[i], values[i+1]
			push(a - pa*(b-a)/(pb-pa))
		}
	}

	// Right tail: one more crossing if the payoff at the last strike and
	// the tail slope point in opposite directions.
	last := len(points) - 1
	if math.Abs(values[last]) >= eps && rightSlope != 0 && values[last]*rightSlope < 0 {
		push(points[last] - values[last]/rightSlope)
	}

	return crossings
}
