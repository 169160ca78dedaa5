package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/lexa/internal/app"
	"github.com/ternarybob/lexa/internal/models"
)

// runIngest queues one local file for ingestion. The serve command must
// be running (or started afterwards) for the job to be processed; the
// queue is durable so ordering between the two does not matter.
func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	source := fs.String("source", "upload", "Document source (ato, legislation, treasury, upload)")
	title := fs.String("title", "", "Document title (defaults to parsed title)")
	sourceURL := fs.String("url", "", "Canonical URL the document came from")
	refresh := fs.String("refresh", "monthly", "Refresh policy (weekly, monthly, quarterly, never)")
	section := fs.String("section", "", "Source section hint for classification")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexa ingest [flags] <file>")
		fs.PrintDefaults()
		os.Exit(2)
	}
	path := fs.Arg(0)

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("Failed to read file")
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	doc := &models.Document{
		Title:         *title,
		Source:        models.DocumentSource(strings.ToLower(*source)),
		SourceURL:     *sourceURL,
		RefreshPolicy: models.RefreshPolicy(strings.ToLower(*refresh)),
	}
	if *section != "" {
		doc.Metadata = map[string]string{"section": *section}
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := application.EnqueueDocument(context.Background(), doc, content); err != nil {
		logger.Fatal().Err(err).Msg("Failed to queue document")
	}

	fmt.Printf("Queued document %s for ingestion\n", doc.ID)
}

// runReprocess purges a document's derived data and queues it again.
func runReprocess(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexa reprocess <doc-id>")
		os.Exit(2)
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.ReprocessDocument(context.Background(), args[0]); err != nil {
		logger.Fatal().Err(err).Str("document_id", args[0]).Msg("Failed to queue reprocessing")
	}

	fmt.Printf("Queued document %s for reprocessing\n", args[0])
}

// runRefresh triggers one refresh sweep outside the cron schedule.
func runRefresh() {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.TriggerRefreshSweep(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Refresh sweep failed")
	}
}
