// -----------------------------------------------------------------------
// lexa - legal/regulatory document RAG service
// -----------------------------------------------------------------------

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lexa [flags] <command> [args]

Commands:
  serve               Run the ingestion worker and refresh scheduler
  ingest <file>       Queue a document file for ingestion
  query <question>    Ask a question against the indexed corpus
  reprocess <doc-id>  Purge and re-ingest a document
  refresh             Run one refresh sweep immediately
  version             Print version information

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Lexa version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "version" {
		fmt.Printf("Lexa version %s\n", common.GetFullVersion())
		return
	}

	// Auto-discover config file if not specified.
	if len(configFiles) == 0 {
		if _, err := os.Stat("lexa.toml"); err == nil {
			configFiles = append(configFiles, "lexa.toml")
		} else if _, err := os.Stat("deployments/local/lexa.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/lexa.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)

	switch args[0] {
	case "serve":
		runServe()
	case "ingest":
		runIngest(args[1:])
	case "query":
		runQuery(args[1:])
	case "reprocess":
		runReprocess(args[1:])
	case "refresh":
		runRefresh()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(2)
	}
}
