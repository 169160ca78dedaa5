package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/lexa/internal/app"
	"github.com/ternarybob/lexa/internal/common"
)

// runServe starts the ingestion worker and refresh scheduler, then
// blocks until interrupted.
func runServe() {
	common.PrintBanner(common.GetVersion())

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start background services")
	}

	logger.Info().Msg("Lexa running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	cancel()
}
