package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afialkov/greekfolio/internal/enrich"
	"github.com/afialkov/greekfolio/internal/models"
	"github.com/afialkov/greekfolio/internal/provider"
)

type stubProvider struct {
	chain     *provider.Chain
	chainErr  error
	exps      []time.Time
	expsErr   error
	positions []models.RawPosition
	posErr    error
}

func (s *stubProvider) FetchChain(ctx context.Context, underlying string, expiration time.Time) (*provider.Chain, error) {
	if s.chainErr != nil {
		return nil, s.chainErr
	}
	return s.chain, nil
}

func (s *stubProvider) FetchExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	if s.expsErr != nil {
		return nil, s.expsErr
	}
	return s.exps, nil
}

func (s *stubProvider) FetchRawPositions(ctx context.Context) ([]models.RawPosition, error) {
	if s.posErr != nil {
		return nil, s.posErr
	}
	return s.positions, nil
}

func newTestServer(t *testing.T, stub *stubProvider, cfg Config) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	enricher := enrich.NewEnricher(stub, time.Minute, logger)
	srv := NewServer(cfg, stub, stub, enricher, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func TestHandleAnalyze(t *testing.T) {
	ts := newTestServer(t, &stubProvider{}, Config{})

	body := `{
		"legs": [{"strike": 55, "type": "call", "action": "buy", "quantity": 1, "premium": 2.50}],
		"underlying_price": 52,
		"days_to_expiry": 30
	}`
	resp, err := http.Post(ts.URL+"/api/strategy/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := string(raw)
	assert.Contains(t, got, `"total_cost":250`)
	assert.Contains(t, got, `"breakevens":[57.5]`)
	assert.Contains(t, got, `"unlimited":true`)
}

func TestHandleAnalyze_BadRequests(t *testing.T) {
	ts := newTestServer(t, &stubProvider{}, Config{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "validation failure",
			body: `{"legs": [], "underlying_price": 52, "days_to_expiry": 30}`,
			want: "legs",
		},
		{
			name: "malformed json",
			body: `{"legs": [`,
			want: "malformed",
		},
		{
			name: "unknown field",
			body: `{"legz": [], "underlying_price": 52}`,
			want: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/strategy/analyze", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(raw), tt.want)
		})
	}
}

func TestHandleGetPositions(t *testing.T) {
	stub := &stubProvider{
		chain: &provider.Chain{
			UnderlyingPrice: 481.25,
			Contracts: []models.OptionContract{
				{Strike: 480, Type: models.OptionTypeCall, Bid: 5.10, Ask: 5.30, Greeks: models.Greeks{Delta: 0.52}},
			},
		},
		positions: []models.RawPosition{
			{AccountID: "acct", Symbol: "SPY250221C00480000", Quantity: 2, AverageCost: 5.00},
			{AccountID: "acct", Symbol: "SPY250221P00470000", Quantity: 1, AverageCost: 3.00},
			{AccountID: "acct", Symbol: "SPY", Quantity: 10, AverageCost: 475.00},
		},
	}
	ts := newTestServer(t, stub, Config{})

	resp, body := getJSON(t, ts.URL+"/api/positions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"pass_id"`)
	assert.Contains(t, body, `"market_value":1040`)
	assert.Contains(t, body, `"underlying":"SPY"`)
	assert.Contains(t, body, `"expiration":"2025-02-21"`)
	assert.Contains(t, body, `"status":"equity"`)
	assert.Contains(t, body, `"SPY250221P00470000"`)
	assert.Contains(t, body, "no put contract")
}

func TestHandleGetSummary(t *testing.T) {
	stub := &stubProvider{
		chain: &provider.Chain{
			UnderlyingPrice: 481.25,
			Contracts: []models.OptionContract{
				{Strike: 480, Type: models.OptionTypeCall, Bid: 5.10, Ask: 5.30, Greeks: models.Greeks{Delta: 0.52}},
			},
		},
		positions: []models.RawPosition{
			{AccountID: "acct", Symbol: "SPY250221C00480000", Quantity: 2, AverageCost: 5.00},
			{AccountID: "acct", Symbol: "SPY", Quantity: 10, AverageCost: 475.00},
		},
	}
	ts := newTestServer(t, stub, Config{})

	resp, body := getJSON(t, ts.URL+"/api/portfolio/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"option_count":1`)
	assert.Contains(t, body, `"equity_count":1`)
	assert.Contains(t, body, `"market_value":5790`)
	assert.Contains(t, body, `"error_count":0`)
}

func TestHandleGetPositions_UpstreamFailure(t *testing.T) {
	ts := newTestServer(t, &stubProvider{posErr: provider.ErrNotConfigured}, Config{})

	resp, _ := getJSON(t, ts.URL+"/api/positions")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleGetExpirations(t *testing.T) {
	stub := &stubProvider{
		exps: []time.Time{
			time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
		},
	}
	ts := newTestServer(t, stub, Config{})

	resp, body := getJSON(t, ts.URL+"/api/expirations/spy")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"symbol":"SPY"`)
	assert.Contains(t, body, `"2025-02-21"`)
	assert.Contains(t, body, `"2025-03-21"`)
}

func TestHandleGetExpirations_NotFound(t *testing.T) {
	ts := newTestServer(t, &stubProvider{expsErr: provider.ErrNotFound}, Config{})

	resp, _ := getJSON(t, ts.URL+"/api/expirations/ZZZZ")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, &stubProvider{exps: []time.Time{time.Now()}}, Config{AuthToken: "secret"})

	resp, _ := getJSON(t, ts.URL+"/api/expirations/SPY")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open for probes.
	resp, _ = getJSON(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/expirations/SPY", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Auth-Token", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, authed.Body.Close())
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	resp, _ = getJSON(t, ts.URL+"/api/expirations/SPY?token=secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
