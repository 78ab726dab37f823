// Command analyze computes terrain metadata for every GPX file in a
// directory and writes it as {"routes": [...]} JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/config"
	"github.com/stuartshay/route-analyzer/internal/database"
	"github.com/stuartshay/route-analyzer/internal/elevation"
	"github.com/stuartshay/route-analyzer/internal/logging"
)

// errFilesFailed is returned when the output was written but some files
// could not be analyzed
var errFilesFailed = errors.New("some GPX files failed to analyze")

func main() {
	logging.Setup(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, os.Args[1:])
	stop()

	if err != nil {
		if !errors.Is(err, errFilesFailed) {
			log.Error().Err(err).Msg("Analysis failed")
		}
		os.Exit(1)
	}
}

// run parses args over the defaults in cfg and analyzes the GPX directory.
// Resources it opens are released before it returns.
func run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	dir := fs.String("dir", cfg.GPXDir, "directory containing .gpx files")
	out := fs.String("out", cfg.OutputPath, "output JSON path")
	workers := fs.Int("workers", cfg.Workers, "files analyzed concurrently")
	backfill := fs.Bool("backfill", cfg.BackfillEnabled, "fetch elevation for tracks without a usable profile")
	writeBack := fs.Bool("write-gpx", false, "save backfilled elevations into the source GPX files")
	persist := fs.Bool("persist", cfg.DatabaseEnabled, "upsert results into PostgreSQL")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logging.SetLevel(*logLevel)
	cfg.BackfillEnabled = *backfill

	b := &batch{
		analyzer: calculator.NewAnalyzer(calculator.Thresholds{
			SignificantSlopeDeg: cfg.SignificantSlopeDeg,
			GentleSlopeDeg:      cfg.GentleSlopeDeg,
		}),
		workers:   *workers,
		writeBack: *writeBack,
	}

	backfiller, closeCache, err := elevation.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initializing elevation backfill: %w", err)
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.Warn().Err(err).Msg("Failed to close elevation cache")
		}
	}()
	b.backfiller = backfiller

	if *persist {
		dbClient, err := database.NewClient(cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("initializing database client: %w", err)
		}
		defer dbClient.Close()

		if err := dbClient.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensuring database schema: %w", err)
		}
		b.store = dbClient
	}

	files, err := listGPX(*dir)
	if err != nil {
		return err
	}
	log.Info().Str("dir", *dir).Int("files", len(files)).Msg("Analyzing GPX files")

	collection, sum, err := b.run(ctx, files)
	if err != nil {
		return fmt.Errorf("analysis aborted: %w", err)
	}

	if err := writeCollection(*out, collection); err != nil {
		return err
	}

	log.Info().
		Str("output", *out).
		Int("files", sum.Files).
		Int("analyzed", sum.Analyzed).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("backfilled", sum.Backfilled).
		Int("persisted", sum.Persisted).
		Int("written_back", sum.WrittenBack).
		Dur("elapsed", sum.Elapsed).
		Msg("Route metadata written")

	if sum.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFilesFailed, sum.Failed, sum.Files)
	}
	return nil
}
