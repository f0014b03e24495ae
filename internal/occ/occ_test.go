package occ

import (
	"math"
	"testing"
	"time"

	"github.com/afialkov/greekfolio/internal/models"
)

func TestParse_OptionForms(t *testing.T) {
	feb21 := time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want models.OptionIdentity
	}{
		{
			name: "compact standard form",
			raw:  "IBIT250221C00055000",
			want: models.OptionIdentity{Underlying: "IBIT", Expiration: feb21, Type: models.OptionTypeCall, Strike: 55},
		},
		{
			name: "padded root",
			raw:  "IBIT  250221C00055000",
			want: models.OptionIdentity{Underlying: "IBIT", Expiration: feb21, Type: models.OptionTypeCall, Strike: 55},
		},
		{
			name: "data source prefix",
			raw:  "O:IBIT  250221C00055000",
			want: models.OptionIdentity{Underlying: "IBIT", Expiration: feb21, Type: models.OptionTypeCall, Strike: 55},
		},
		{
			name: "surrounding whitespace",
			raw:  "  SPY250221P00480000 ",
			want: models.OptionIdentity{Underlying: "SPY", Expiration: feb21, Type: models.OptionTypePut, Strike: 480},
		},
		{
			name: "fractional strike in thousandths",
			raw:  "SPY250221C00480500",
			want: models.OptionIdentity{Underlying: "SPY", Expiration: feb21, Type: models.OptionTypeCall, Strike: 480.5},
		},
		{
			name: "decimal strike fallback",
			raw:  "SPY250221C480.5",
			want: models.OptionIdentity{Underlying: "SPY", Expiration: feb21, Type: models.OptionTypeCall, Strike: 480.5},
		},
		{
			name: "lowercase input is normalized",
			raw:  "ibit250221c00055000",
			want: models.OptionIdentity{Underlying: "IBIT", Expiration: feb21, Type: models.OptionTypeCall, Strike: 55},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Kind != models.KindOption {
				t.Fatalf("Parse(%q).Kind = %s, want option", tt.raw, got.Kind)
			}
			if got.Option != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got.Option, tt.want)
			}
		})
	}
}

func TestParse_PrefixAndPaddingEquivalence(t *testing.T) {
	a := Parse("O:IBIT  250221C00055000")
	b := Parse("IBIT250221C00055000")
	if a != b {
		t.Errorf("prefixed/padded and compact forms differ: %+v vs %+v", a, b)
	}
}

func TestParse_EquityFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ticker", raw: "AAPL", want: "AAPL"},
		{name: "lowercase ticker", raw: " msft ", want: "MSFT"},
		{name: "invalid month", raw: "SPY251321C00480000", want: "SPY251321C00480000"},
		{name: "invalid day", raw: "SPY250231C00480000", want: "SPY250231C00480000"},
		{name: "zero strike", raw: "SPY250221C00000000", want: "SPY250221C00000000"},
		{name: "root too long", raw: "ABCDEFG250221C00055000", want: "ABCDEFG250221C00055000"},
		{name: "empty string", raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Kind != models.KindEquity {
				t.Fatalf("Parse(%q).Kind = %s, want equity", tt.raw, got.Kind)
			}
			if got.Equity != tt.want {
				t.Errorf("Parse(%q).Equity = %q, want %q", tt.raw, got.Equity, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	id := models.OptionIdentity{
		Underlying: "IBIT",
		Expiration: time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
		Type:       models.OptionTypeCall,
		Strike:     55,
	}
	want := "IBIT  250221C00055000"
	if got := Build(id); got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildParse_RoundTrip(t *testing.T) {
	ids := []models.OptionIdentity{
		{Underlying: "SPY", Expiration: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), Type: models.OptionTypePut, Strike: 480},
		{Underlying: "A", Expiration: time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), Type: models.OptionTypeCall, Strike: 132.5},
		{Underlying: "GOOGL", Expiration: time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), Type: models.OptionTypeCall, Strike: 0.001},
		{Underlying: "IBIT", Expiration: time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC), Type: models.OptionTypeCall, Strike: 55.125},
	}
	for _, id := range ids {
		got := Parse(Build(id))
		if got.Kind != models.KindOption {
			t.Fatalf("round trip of %v lost option classification", id)
		}
		if got.Option.Underlying != id.Underlying ||
			!got.Option.Expiration.Equal(id.Expiration) ||
			got.Option.Type != id.Type ||
			math.Abs(got.Option.Strike-id.Strike) > 1e-9 {
			t.Errorf("Parse(Build(%v)) = %v", id, got.Option)
		}
	}
}

func TestDaysToExpiration(t *testing.T) {
	now := time.Date(2025, 2, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		exp  time.Time
		want int
	}{
		{name: "thirty days out", exp: now.AddDate(0, 0, 30), want: 30},
		{name: "tomorrow", exp: now.AddDate(0, 0, 1), want: 1},
		{name: "expires today counts as zero", exp: now, want: 0},
		{name: "already expired clamps to zero", exp: now.AddDate(0, 0, -5), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysToExpirationAt(tt.exp, now); got != tt.want {
				t.Errorf("daysToExpirationAt(%v) = %d, want %d", tt.exp, got, tt.want)
			}
		})
	}
}

func TestIsExpired_TodayCutoff(t *testing.T) {
	// A contract expiring today is treated as already expired; this is the
	// documented end-of-day cutoff behavior.
	today := time.Now().UTC()
	if !IsExpired(today) {
		t.Error("IsExpired(today) = false, want true")
	}
	if IsExpired(today.AddDate(0, 0, 2)) {
		t.Error("IsExpired(two days out) = true, want false")
	}
}
