// Package occ parses and builds standardized option symbols (OSI/OCC
// format) and derives calendar helpers from contract expirations.
//
// Parsing is total: anything that does not decode as a valid option symbol
// resolves to an equity identity instead of failing.
package occ

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/afialkov/greekfolio/internal/models"
)

// matcher attempts to decode one symbol layout. Matchers are tried in
// order and the first success wins; failure to match is not an error.
type matcher interface {
	match(clean string) (models.OptionIdentity, bool)
}

// paddedMatcher handles the exchange-standard form with optional padding
// between root and date: 1-6 letters, spaces, YYMMDD, C/P, 8-digit strike
// in thousandths. Example: "IBIT  250221C00055000".
type paddedMatcher struct{ re *regexp.Regexp }

// compactMatcher handles the same layout with no padding, e.g.
// "IBIT250221C00055000".
type compactMatcher struct{ re *regexp.Regexp }

// decimalStrikeMatcher handles a non-standard variant where the strike is
// written directly as a decimal number with no /1000 scaling, e.g.
// "IBIT250221C55.5". Some data vendors emit this form.
type decimalStrikeMatcher struct{ re *regexp.Regexp }

var matchers = []matcher{
	paddedMatcher{regexp.MustCompile(`^([A-Z]{1,6}) *(\d{6})([CP])(\d{8})$`)},
	compactMatcher{regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])(\d{8})$`)},
	decimalStrikeMatcher{regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])(\d+(?:\.\d+)?)$`)},
}

func (m paddedMatcher) match(clean string) (models.OptionIdentity, bool) {
	return matchScaled(m.re, clean)
}

func (m compactMatcher) match(clean string) (models.OptionIdentity, bool) {
	return matchScaled(m.re, clean)
}

// matchScaled decodes the standard 8-digit strike form (integer thousandths).
func matchScaled(re *regexp.Regexp, clean string) (models.OptionIdentity, bool) {
	groups := re.FindStringSubmatch(clean)
	if groups == nil {
		return models.OptionIdentity{}, false
	}
	thousandths, err := strconv.ParseInt(groups[4], 10, 64)
	if err != nil {
		return models.OptionIdentity{}, false
	}
	return assemble(groups[1], groups[2], groups[3], float64(thousandths)/1000)
}

func (m decimalStrikeMatcher) match(clean string) (models.OptionIdentity, bool) {
	groups := m.re.FindStringSubmatch(clean)
	if groups == nil {
		return models.OptionIdentity{}, false
	}
	strike, err := strconv.ParseFloat(groups[4], 64)
	if err != nil {
		return models.OptionIdentity{}, false
	}
	return assemble(groups[1], groups[2], groups[3], strike)
}

// assemble validates the decoded fields and builds the identity. A bad
// month/day or non-positive strike rejects the match so the caller falls
// through to the equity fallback.
func assemble(root, yymmdd, cp string, strike float64) (models.OptionIdentity, bool) {
	exp, ok := decodeDate(yymmdd)
	if !ok || strike <= 0 {
		return models.OptionIdentity{}, false
	}
	typ := models.OptionTypeCall
	if cp == "P" {
		typ = models.OptionTypePut
	}
	return models.OptionIdentity{
		Underlying: root,
		Expiration: exp,
		Type:       typ,
		Strike:     strike,
	}, true
}

// decodeDate parses YYMMDD with a fixed +2000 year offset. There is no
// century disambiguation beyond that; symbols from before 2000 (or after
// 2099) decode to the wrong century.
func decodeDate(yymmdd string) (time.Time, bool) {
	yy, _ := strconv.Atoi(yymmdd[0:2])
	mm, _ := strconv.Atoi(yymmdd[2:4])
	dd, _ := strconv.Atoi(yymmdd[4:6])
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}, false
	}
	d := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 31 -> Mar 3); reject those.
	if d.Month() != time.Month(mm) || d.Day() != dd {
		return time.Time{}, false
	}
	return d, true
}

// stripSourcePrefix removes a data-source prefix such as "O:" from the
// front of a symbol.
func stripSourcePrefix(s string) string {
	if i := strings.Index(s, ":"); i > 0 && i <= 2 {
		return s[i+1:]
	}
	return s
}

// Parse classifies a raw symbol string as either an option or an equity.
// It never fails: strings that do not decode as a valid option symbol are
// normalized (trimmed, uppercased) and returned as an equity identity.
func Parse(raw string) models.Instrument {
	clean := strings.ToUpper(strings.TrimSpace(stripSourcePrefix(strings.TrimSpace(raw))))
	for _, m := range matchers {
		if id, ok := m.match(clean); ok {
			return models.NewOptionInstrument(id)
		}
	}
	return models.NewEquityInstrument(raw)
}

// Build serializes an option identity into the standard 21-character
// symbol: root padded to 6 with trailing spaces, YYMMDD, C/P, and the
// strike in thousandths zero-padded to 8 digits.
//
// Parse(Build(x)) == x whenever x.Strike is an exact multiple of 0.001;
// finer precision is lost to the thousandths encoding.
func Build(id models.OptionIdentity) string {
	cp := "C"
	if id.Type == models.OptionTypePut {
		cp = "P"
	}
	return fmt.Sprintf("%-6s%s%s%08d",
		id.Underlying,
		id.Expiration.Format("060102"),
		cp,
		int64(math.Round(id.Strike*1000)))
}

// DaysToExpiration returns the number of whole UTC days until the contract
// expires, clamped at zero. A contract expiring today returns 0.
func DaysToExpiration(expiration time.Time) int {
	return daysToExpirationAt(expiration, time.Now())
}

func daysToExpirationAt(expiration, now time.Time) int {
	n := now.UTC().Truncate(24 * time.Hour)
	e := expiration.UTC().Truncate(24 * time.Hour)
	days := int(e.Sub(n).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsExpired reports whether the contract has no days left. Note that this
// treats "expires today" the same as already expired (end-of-day cutoff).
func IsExpired(expiration time.Time) bool {
	return DaysToExpiration(expiration) == 0
}
