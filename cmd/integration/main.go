// Command integration runs an end-to-end smoke check against the live
// provider sandbox: expirations, one chain fetch, and a full enrichment
// pass over the account's real holdings.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/afialkov/greekfolio/internal/config"
	"github.com/afialkov/greekfolio/internal/enrich"
	"github.com/afialkov/greekfolio/internal/provider"
)

func main() {
	fmt.Println("=== greekfolio - End-to-End Integration Check ===")
	fmt.Println()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Never run the smoke check against a live account.
	if !cfg.IsSandbox() {
		log.Fatalf("Integration checks must run in sandbox mode. Set environment.mode: 'sandbox' in config.yaml")
	}

	logger := log.New(os.Stdout, "[E2E] ", log.LstdFlags)

	tradier := provider.NewTradierClient(
		cfg.Provider.APIKey,
		cfg.Provider.AccountID,
		true, // force sandbox endpoints
		cfg.Provider.APIEndpoint,
	)
	quotes := provider.NewRetryQuotes(tradier)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const symbol = "SPY"

	logger.Printf("Step 1: fetching expirations for %s...", symbol)
	expirations, err := quotes.FetchExpirations(ctx, symbol)
	if err != nil {
		log.Fatalf("FetchExpirations failed: %v", err)
	}
	logger.Printf("  %d expirations, nearest %s", len(expirations), expirations[0].Format("2006-01-02"))

	logger.Printf("Step 2: fetching %s chain for %s...", symbol, expirations[0].Format("2006-01-02"))
	chain, err := quotes.FetchChain(ctx, symbol, expirations[0])
	if err != nil {
		log.Fatalf("FetchChain failed: %v", err)
	}
	logger.Printf("  underlying %.2f, %d contracts", chain.UnderlyingPrice, len(chain.Contracts))

	logger.Println("Step 3: fetching account holdings...")
	raw, err := tradier.FetchRawPositions(ctx)
	if err != nil {
		log.Fatalf("FetchRawPositions failed: %v", err)
	}
	logger.Printf("  %d raw positions", len(raw))

	logger.Println("Step 4: running enrichment pass...")
	enrichLogger := logrus.New()
	enrichLogger.SetLevel(logrus.DebugLevel)
	enricher := enrich.NewEnricher(quotes, cfg.GetChainTTL(), enrichLogger, enrich.WithFanout(cfg.GetFanout()))

	result := enricher.Enrich(ctx, raw)
	logger.Printf("  pass %s: %d enriched, %d errors", result.PassID, len(result.Positions), len(result.Errors))
	for _, le := range result.Errors {
		logger.Printf("  lookup error: %v", le)
	}
	logger.Printf("  summary: %d options, %d equities, market value %.2f, delta %.2f",
		result.Summary.OptionCount, result.Summary.EquityCount,
		result.Summary.MarketValue, result.Summary.Exposure.Delta)

	fmt.Println()
	fmt.Println("=== Integration check passed ===")
}
