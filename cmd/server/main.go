package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/afialkov/greekfolio/internal/config"
	"github.com/afialkov/greekfolio/internal/enrich"
	"github.com/afialkov/greekfolio/internal/provider"
	"github.com/afialkov/greekfolio/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Populate the environment before config expansion; a missing .env is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Infof("Starting greekfolio in %s mode", cfg.Environment.Mode)

	tradier := provider.NewTradierClient(
		cfg.Provider.APIKey,
		cfg.Provider.AccountID,
		cfg.IsSandbox(),
		cfg.Provider.APIEndpoint,
	)

	// Quote fetches go through retry then circuit breaking; custody calls
	// are one-shot and stay undecorated.
	quotes := provider.NewBreakerQuotes(provider.NewRetryQuotes(tradier))

	enricher := enrich.NewEnricher(
		quotes,
		cfg.GetChainTTL(),
		logger,
		enrich.WithFanout(cfg.GetFanout()),
	)

	srv := server.NewServer(server.Config{
		Port:        cfg.GetPort(),
		AuthToken:   cfg.Server.AuthToken,
		PassTimeout: cfg.GetPassTimeout(),
	}, quotes, tradier, enricher, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		logger.Infof("Received %s, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Server stopped")
}
