package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afialkov/greekfolio/internal/models"
)

// APIError represents a provider API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

const expirationFormat = "2006-01-02"

// TradierClient talks to the Tradier market data and account APIs. It
// implements both the Quotes and Custody contracts.
type TradierClient struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	accountID string
	sandbox   bool
}

var (
	_ Quotes  = (*TradierClient)(nil)
	_ Custody = (*TradierClient)(nil)
)

// NewTradierClient creates a Tradier provider client. An empty baseURL
// selects the production or sandbox endpoint based on the sandbox flag.
func NewTradierClient(apiKey, accountID string, sandbox bool, baseURL string) *TradierClient {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	return &TradierClient{
		client:    &http.Client{Timeout: 10 * time.Second},
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		sandbox:   sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierClient) WithHTTPClient(c *http.Client) *TradierClient {
	if c != nil {
		t.client = c
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Greeks       *chainGreeks `json:"greeks,omitempty"`
	Symbol       string       `json:"symbol"`
	OptionType   string       `json:"option_type"`
	Bid          float64      `json:"bid"`
	Ask          float64      `json:"ask"`
	Last         float64      `json:"last"`
	Volume       int64        `json:"volume"`
	OpenInterest int64        `json:"open_interest"`
	Strike       float64      `json:"strike"`
}

type chainGreeks struct {
	UpdatedAt string  `json:"updated_at"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	MidIV     float64 `json:"mid_iv"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type positionsResponse struct {
	Positions positionsWrapper `json:"positions"`
}

// positionsWrapper handles the case where positions can be a "null" string
// or an object.
type positionsWrapper struct {
	Position singleOrArray[positionItem] `json:"position"`
}

func (pw *positionsWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*pw = positionsWrapper{}
		return nil
	}
	type normalWrapper positionsWrapper
	return json.Unmarshal(b, (*normalWrapper)(pw))
}

type positionItem struct {
	Symbol    string  `json:"symbol"`
	CostBasis float64 `json:"cost_basis"`
	Quantity  float64 `json:"quantity"`
}

// ============ API Methods ============

// FetchChain retrieves the option chain with Greeks for one underlying and
// expiration, together with the underlying's current price.
func (t *TradierClient) FetchChain(ctx context.Context, underlying string, expiration time.Time) (*Chain, error) {
	if t.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("symbol", underlying)
	params.Set("expiration", expiration.Format(expirationFormat))
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response chainResponse
	if err := t.makeRequest(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("fetching chain %s %s: %w", underlying, expiration.Format(expirationFormat), err)
	}
	if len(response.Options.Option) == 0 {
		return nil, fmt.Errorf("chain %s %s: %w", underlying, expiration.Format(expirationFormat), ErrNotFound)
	}

	spot, err := t.fetchQuote(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("fetching underlying quote for %s: %w", underlying, err)
	}

	chain := &Chain{
		UnderlyingPrice: spot,
		Contracts:       make([]models.OptionContract, 0, len(response.Options.Option)),
	}
	for _, opt := range response.Options.Option {
		chain.Contracts = append(chain.Contracts, convertOption(opt))
	}
	return chain, nil
}

func convertOption(opt chainOption) models.OptionContract {
	c := models.OptionContract{
		Strike:       opt.Strike,
		Type:         models.OptionType(opt.OptionType),
		Bid:          opt.Bid,
		Ask:          opt.Ask,
		Last:         opt.Last,
		Volume:       opt.Volume,
		OpenInterest: opt.OpenInterest,
	}
	if opt.Greeks != nil {
		c.ImpliedVolatility = opt.Greeks.MidIV
		c.Greeks = models.Greeks{
			Delta: opt.Greeks.Delta,
			Gamma: opt.Greeks.Gamma,
			Theta: opt.Greeks.Theta,
			Vega:  opt.Greeks.Vega,
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", opt.Greeks.UpdatedAt); err == nil {
			c.ObservedAt = ts.UTC()
		}
	}
	return c
}

// fetchQuote returns the last trade price (or mid when the tape is empty)
// for a symbol.
func (t *TradierClient) fetchQuote(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequest(ctx, endpoint, &response); err != nil {
		return 0, err
	}
	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return 0, fmt.Errorf("quote %s: %w", symbol, ErrNotFound)
	}
	q := quotes[0]
	if q.Last > 0 {
		return q.Last, nil
	}
	return (q.Bid + q.Ask) / 2, nil
}

// FetchExpirations retrieves the sorted expiration dates for an underlying.
func (t *TradierClient) FetchExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	if t.apiKey == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("symbol", underlying)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response expirationsResponse
	if err := t.makeRequest(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("fetching expirations for %s: %w", underlying, err)
	}
	if len(response.Expirations.Date) == 0 {
		return nil, fmt.Errorf("expirations %s: %w", underlying, ErrNotFound)
	}

	dates := make([]time.Time, 0, len(response.Expirations.Date))
	for _, d := range response.Expirations.Date {
		parsed, err := time.Parse(expirationFormat, d)
		if err != nil {
			log.Printf("warning: skipping unparseable expiration %q for %s: %v", d, underlying, err)
			continue
		}
		dates = append(dates, parsed)
	}
	return dates, nil
}

// FetchRawPositions retrieves current account holdings.
func (t *TradierClient) FetchRawPositions(ctx context.Context) ([]models.RawPosition, error) {
	if t.apiKey == "" || t.accountID == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/positions", t.baseURL, t.accountID)

	var response positionsResponse
	if err := t.makeRequest(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	positions := make([]models.RawPosition, 0, len(response.Positions.Position))
	for _, item := range response.Positions.Position {
		if item.Quantity == 0 {
			continue
		}
		// Tradier reports cost_basis as total dollars for the lot;
		// normalize to a per-share average cost.
		multiplier := 1.0
		if occLike(item.Symbol) {
			multiplier = models.SharesPerContract
		}
		positions = append(positions, models.RawPosition{
			AccountID:   t.accountID,
			Symbol:      item.Symbol,
			Quantity:    item.Quantity,
			AverageCost: item.CostBasis / (item.Quantity * multiplier),
		})
	}
	return positions, nil
}

// occLike is a cheap length heuristic for deciding the cost-basis
// multiplier; authoritative classification happens in the occ package.
func occLike(symbol string) bool {
	return len(symbol) >= 16
}

func (t *TradierClient) makeRequest(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "greekfolio/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" && t.sandbox {
		log.Printf("Rate limit remaining: %s", remaining)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: endpoint + " -> failed to read error body"}
		}
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
