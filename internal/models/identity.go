// Package models defines the data model shared by the symbol codec, the
// strategy analyzer, and the position enrichment pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// SharesPerContract is the standard option multiplier: one contract
// controls 100 shares of the underlying. Equities use no multiplier.
const SharesPerContract = 100.0

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Side is the direction of a strategy leg.
type Side string

const (
	// SideBuy opens a long leg.
	SideBuy Side = "buy"
	// SideSell opens a short leg.
	SideSell Side = "sell"
)

// Valid returns true if the Side is one of the defined constants.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Sign returns +1 for buy and -1 for sell. The same sign convention is
// applied to payoff and to Greek contributions everywhere: selling a
// contract negates its Greeks.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OptionIdentity identifies an option contract independent of market state:
// underlying, expiration, type, and strike.
type OptionIdentity struct {
	Underlying string     `json:"underlying"`
	Expiration time.Time  `json:"expiration"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
}

// String returns a human-readable description, e.g. "IBIT 2025-02-21 55 call".
func (o OptionIdentity) String() string {
	return fmt.Sprintf("%s %s %g %s",
		o.Underlying, o.Expiration.Format("2006-01-02"), o.Strike, o.Type)
}

// InstrumentKind classifies a parsed symbol.
type InstrumentKind string

const (
	// KindOption indicates the symbol parsed as a standard option identifier.
	KindOption InstrumentKind = "option"
	// KindEquity indicates the fallback classification for anything else.
	KindEquity InstrumentKind = "equity"
)

// Instrument is the tagged result of symbol classification. Exactly one of
// Option (when Kind == KindOption) or Equity (when Kind == KindEquity) is set.
type Instrument struct {
	Kind   InstrumentKind `json:"kind"`
	Option OptionIdentity `json:"option,omitempty"`
	Equity string         `json:"equity,omitempty"`
}

// NewEquityInstrument builds the equity fallback: the raw string trimmed
// and uppercased.
func NewEquityInstrument(raw string) Instrument {
	return Instrument{
		Kind:   KindEquity,
		Equity: strings.ToUpper(strings.TrimSpace(raw)),
	}
}

// NewOptionInstrument wraps an OptionIdentity.
func NewOptionInstrument(id OptionIdentity) Instrument {
	return Instrument{Kind: KindOption, Option: id}
}
