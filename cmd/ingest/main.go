// Command ingest runs one ingestion pass over a data directory and prints a
// report, without starting the API server. Useful for validating a new batch
// of export files before they reach the shared deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"elcedro/backend/internal/analytics"
	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/ingest"
	"elcedro/backend/internal/logger"
)

type options struct {
	dataDir     string
	catalogPath string
	jsonOut     bool
	logLevel    string
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data", "", "directory holding the sales export files (required)")
	flag.StringVar(&opts.catalogPath, "catalog", "", "family catalog file (.xlsx or .csv)")
	flag.BoolVar(&opts.jsonOut, "json", false, "print the full report as JSON")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level during ingestion")
	flag.Parse()

	if opts.dataDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.New(opts.logLevel, true)

	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog error")
	}

	loader := ingest.NewLoader(cat, log)
	ds, rep, err := loader.LoadDir(context.Background(), opts.dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatal().Err(err).Msg("encode report")
		}
		return
	}

	fmt.Printf("files: %d ingested, %d skipped\n", ds.SourceFiles, ds.SkippedFiles)
	for _, b := range rep.Batches {
		fmt.Printf("  %-40s %7d rows  %-15s docs=%d multi=%d fallback=%d\n",
			b.File, b.Rows, b.Convention, b.Recon.Documents, b.Recon.MultiLineDocs, b.Recon.Fallback)
	}
	for _, name := range rep.Skipped {
		fmt.Printf("  %-40s SKIPPED\n", name)
	}
	fmt.Printf("lines: %d in %s\n", rep.Lines, rep.Duration.Round(time.Millisecond))
	fmt.Printf("years: %v\n", ds.Years)
	fmt.Printf("families: %d, brands: %d\n", len(ds.Families), len(ds.Brands))

	if f, ok := analytics.DefaultWindow(ds.Lines); ok {
		k := analytics.KPIs(analytics.Filter(ds.Lines, f), f, domain.DefaultFloorAreas[domain.BranchAll])
		fmt.Printf("trailing window %d [%d..%d]: sales=%.2f profit=%.2f txns=%.0f\n",
			f.Year, f.MonthStart, f.MonthEnd, float64(k.Sales), float64(k.Profit), float64(k.Transactions))
	}
}
