// Package server exposes the analytics HTTP API: strategy analysis,
// enriched positions, portfolio summary and expiration lookup.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/afialkov/greekfolio/internal/analysis"
	"github.com/afialkov/greekfolio/internal/enrich"
	"github.com/afialkov/greekfolio/internal/models"
	"github.com/afialkov/greekfolio/internal/provider"
	"github.com/afialkov/greekfolio/internal/util"
)

// displayTick is the increment money fields are rounded to in API views.
const displayTick = 0.01

type Server struct {
	router      *chi.Mux
	server      *http.Server
	quotes      provider.Quotes
	custody     provider.Custody
	enricher    *enrich.Enricher
	logger      *logrus.Logger
	port        int
	authToken   string
	passTimeout time.Duration
}

type Config struct {
	Port        int
	AuthToken   string
	PassTimeout time.Duration
}

// PositionView is the API shape of one enriched position, with money
// fields rounded to a display tick.
type PositionView struct {
	AccountID     string        `json:"account_id"`
	Symbol        string        `json:"symbol"`
	Status        string        `json:"status"`
	Quantity      float64       `json:"quantity"`
	Underlying    string        `json:"underlying,omitempty"`
	Expiration    string        `json:"expiration,omitempty"`
	OptionType    string        `json:"option_type,omitempty"`
	Strike        float64       `json:"strike,omitempty"`
	MarketValue   float64       `json:"market_value"`
	CostBasis     float64       `json:"cost_basis"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	Exposure      models.Greeks `json:"exposure"`
}

// PositionsResponse is returned by the positions endpoint.
type PositionsResponse struct {
	PassID    string               `json:"pass_id"`
	Positions []PositionView       `json:"positions"`
	Errors    []enrich.LookupError `json:"errors,omitempty"`
}

// SummaryView is the API shape of the portfolio summary.
type SummaryView struct {
	PassID        string        `json:"pass_id"`
	OptionCount   int           `json:"option_count"`
	EquityCount   int           `json:"equity_count"`
	MarketValue   float64       `json:"market_value"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	Exposure      models.Greeks `json:"exposure"`
	ErrorCount    int           `json:"error_count"`
}

// ExpirationsResponse is returned by the expirations endpoint.
type ExpirationsResponse struct {
	Symbol      string   `json:"symbol"`
	Expirations []string `json:"expirations"`
}

func NewServer(cfg Config, quotes provider.Quotes, custody provider.Custody, enricher *enrich.Enricher, logger *logrus.Logger) *Server {
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 30 * time.Second
	}
	s := &Server{
		router:      chi.NewRouter(),
		quotes:      quotes,
		custody:     custody,
		enricher:    enricher,
		logger:      logger,
		port:        cfg.Port,
		authToken:   cfg.AuthToken,
		passTimeout: cfg.PassTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Post("/api/strategy/analyze", s.handleAnalyze)
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/portfolio/summary", s.handleGetSummary)
	s.router.Get("/api/expirations/{symbol}", s.handleGetExpirations)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := analysis.Analyze(req)
	if err != nil {
		var vErr *analysis.ValidationError
		if errors.As(err, &vErr) {
			http.Error(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		s.logger.WithError(err).Error("Strategy analysis failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.WithError(err).Error("Failed to encode analysis result")
	}
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	result, ok := s.runEnrichment(w, r)
	if !ok {
		return
	}

	resp := PositionsResponse{
		PassID:    result.PassID,
		Positions: convertPositionsToViews(result.Positions),
		Errors:    result.Errors,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("Failed to encode positions")
	}
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	result, ok := s.runEnrichment(w, r)
	if !ok {
		return
	}

	view := SummaryView{
		PassID:        result.PassID,
		OptionCount:   result.Summary.OptionCount,
		EquityCount:   result.Summary.EquityCount,
		MarketValue:   util.RoundToTick(result.Summary.MarketValue, displayTick),
		UnrealizedPnL: util.RoundToTick(result.Summary.UnrealizedPnL, displayTick),
		Exposure:      result.Summary.Exposure,
		ErrorCount:    len(result.Errors),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		s.logger.WithError(err).Error("Failed to encode summary")
	}
}

// runEnrichment fetches holdings and runs one enrichment pass. On failure
// it writes the error response and returns ok=false.
func (s *Server) runEnrichment(w http.ResponseWriter, r *http.Request) (*enrich.Result, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.passTimeout)
	defer cancel()

	raw, err := s.custody.FetchRawPositions(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch holdings")
		status := s.upstreamStatus(err)
		http.Error(w, http.StatusText(status), status)
		return nil, false
	}

	return s.enricher.Enrich(ctx, raw), true
}

func (s *Server) handleGetExpirations(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	dates, err := s.quotes.FetchExpirations(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("symbol", symbol).Error("Failed to fetch expirations")
		status := s.upstreamStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp := ExpirationsResponse{Symbol: symbol, Expirations: make([]string, 0, len(dates))}
	for _, d := range dates {
		resp.Expirations = append(resp.Expirations, d.Format("2006-01-02"))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("Failed to encode expirations")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.WithError(err).Error("Failed to encode health response")
	}
}

// upstreamStatus maps provider failures to response codes.
func (s *Server) upstreamStatus(err error) int {
	if errors.Is(err, provider.ErrNotConfigured) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func convertPositionsToViews(positions []models.EnrichedPosition) []PositionView {
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		views = append(views, convertPositionToView(&positions[i]))
	}
	return views
}

func convertPositionToView(pos *models.EnrichedPosition) PositionView {
	view := PositionView{
		AccountID:     pos.Raw.AccountID,
		Symbol:        pos.Raw.Symbol,
		Status:        string(pos.Status),
		Quantity:      pos.Raw.Quantity,
		MarketValue:   util.RoundToTick(pos.MarketValue, displayTick),
		CostBasis:     util.RoundToTick(pos.CostBasis, displayTick),
		UnrealizedPnL: util.RoundToTick(pos.UnrealizedPnL, displayTick),
		Exposure:      pos.Exposure,
	}
	if pos.Instrument.Kind == models.KindOption {
		id := pos.Instrument.Option
		view.Underlying = id.Underlying
		view.Expiration = id.Expiration.Format("2006-01-02")
		view.OptionType = string(id.Type)
		view.Strike = id.Strike
	}
	return view
}
