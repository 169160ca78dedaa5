package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/lexa/internal/app"
	"github.com/ternarybob/lexa/internal/interfaces"
)

// runQuery asks one question and prints the answer with citations.
func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	topK := fs.Int("top-k", 0, "Candidates to retrieve (0 uses config)")
	conversation := fs.String("conversation", "", "Conversation ID for follow-up questions")
	source := fs.String("source", "", "Restrict to one document source")
	docType := fs.String("doc-type", "", "Restrict to one document type")
	taxArea := fs.String("tax-area", "", "Restrict to one tax area")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lexa query [flags] <question>")
		fs.PrintDefaults()
		os.Exit(2)
	}
	question := fs.Arg(0)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	opts := interfaces.QueryOptions{
		TopK:           *topK,
		ConversationID: *conversation,
	}
	if *source != "" || *docType != "" || *taxArea != "" {
		opts.Filters = &interfaces.SearchFilter{
			Source:  *source,
			DocType: *docType,
			TaxArea: *taxArea,
		}
	}

	response, err := application.RunQuery(context.Background(), question, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Query failed")
	}

	fmt.Println(response.Answer)

	if len(response.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, citation := range response.Citations {
			line := fmt.Sprintf("  [%d] %s", i+1, citation.Title)
			if citation.Section != "" {
				line += fmt.Sprintf(" (%s)", citation.Section)
			}
			if citation.SourceURL != "" {
				line += " - " + citation.SourceURL
			}
			fmt.Println(line)
		}
	}

	fmt.Printf("\nconversation: %s", response.ConversationID)
	if response.Cached {
		fmt.Print("  (cached)")
	}
	fmt.Printf("  %dms\n", response.Timings.TotalMs)
}
