// Command carolquery is the demo entrypoint for the CAROL query engine
// (out of scope per the core design; a thin CLI wrapper around
// internal/carol.Driver, in the teacher's godotenv/config.Load/log.Fatalf
// startup idiom).
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/carol"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/config"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/logging"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/transport"
)

// argFlags collects repeated -arg flags, each either a bare string
// ("engine power") or a pipe-delimited tuple ("Event|EventDate|is on or
// after|2023-01-01"), into the shapes rules.FromStrings expects.
type argFlags []string

func (a *argFlags) String() string { return strings.Join(*a, ";") }

func (a *argFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var args argFlags
	flag.Var(&args, "arg", "a query argument; repeatable. Bare string or pipe-delimited tuple (Field|Subfield|Condition|Value)")
	download := flag.Bool("download", false, "download and aggregate full results instead of only probing the count")
	requireAll := flag.Bool("require-all", true, "combine arguments with AND (true) or OR (false)")
	catalogPath := flag.String("catalog", cfg.CatalogPath, "path to the possible_values.json vocabulary file")
	outputDir := flag.String("output", cfg.OutputDir, "directory for downloaded archives and the aggregated table")
	flag.Parse()

	if len(args) == 0 {
		log.Fatal("at least one -arg is required")
	}

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	logger := logging.New(cfg)

	parsedArgs := make([]rules.Arg, 0, len(args))
	for _, raw := range args {
		parts := strings.Split(raw, "|")
		arg, err := rules.FromStrings(parts...)
		if err != nil {
			log.Fatalf("invalid -arg %q: %v", raw, err)
		}
		parsedArgs = append(parsedArgs, arg)
	}

	session := transport.New()
	driver := carol.New(cat, session, *outputDir, cfg.MaxOneRequest, cfg.SegmentSize, cfg.ProbeRequestsPerSecond, cfg.ExportRequestsPerSecond, logger)

	result, err := driver.Query(context.Background(), parsedArgs, *download, *requireAll)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	logger.Info().
		Str("state", string(result.State)).
		Int("result_count", result.ResultCount).
		Int("rows_written", result.RowsWritten).
		Str("output", result.OutputPath).
		Msg("query complete")
}
