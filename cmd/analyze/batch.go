package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/elevation"
	"github.com/stuartshay/route-analyzer/internal/metrics"
	"github.com/stuartshay/route-analyzer/internal/track"
)

// routeWriter persists analyzed routes; *database.Client implements it
type routeWriter interface {
	UpsertRoute(ctx context.Context, route calculator.RouteMetadata) error
}

// batch analyzes every GPX file in a directory
type batch struct {
	analyzer   *calculator.Analyzer
	backfiller *elevation.Backfiller
	store      routeWriter
	workers    int
	// writeBack saves backfilled elevations into the source GPX files
	writeBack bool
}

// summary counts per-file outcomes of one run
type summary struct {
	Files       int
	Analyzed    int
	Skipped     int
	Failed      int
	Backfilled  int
	Persisted   int
	WrittenBack int
	Elapsed     time.Duration
}

// listGPX returns the *.gpx files in dir in name order
func listGPX(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading GPX directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gpx") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// fileOutcome is the result of analyzing one file
type fileOutcome struct {
	route       *calculator.RouteMetadata
	skipped     bool
	failed      bool
	backfilled  bool
	persisted   bool
	writtenBack bool
}

// run analyzes files concurrently and returns the routes in file order.
// Files with too few points are skipped and other per-file failures are
// logged; only context cancellation aborts the run.
func (b *batch) run(ctx context.Context, files []string) (*calculator.Collection, summary, error) {
	start := time.Now()
	outcomes := make([]fileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			outcome, err := b.analyzeFile(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Error().Err(err).Str("file", filepath.Base(path)).Msg("Route analysis failed")
				metrics.RouteAnalyses.WithLabelValues("failed").Inc()
				outcomes[i] = fileOutcome{failed: true}
				return nil
			}
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, summary{}, err
	}

	collection := &calculator.Collection{Routes: []calculator.RouteMetadata{}}
	sum := summary{Files: len(files)}
	for _, o := range outcomes {
		switch {
		case o.failed:
			sum.Failed++
		case o.skipped:
			sum.Skipped++
		case o.route != nil:
			sum.Analyzed++
			collection.Routes = append(collection.Routes, *o.route)
		}
		if o.backfilled {
			sum.Backfilled++
		}
		if o.persisted {
			sum.Persisted++
		}
		if o.writtenBack {
			sum.WrittenBack++
		}
	}
	sum.Elapsed = time.Since(start)

	return collection, sum, nil
}

func (b *batch) analyzeFile(ctx context.Context, path string) (fileOutcome, error) {
	var outcome fileOutcome
	started := time.Now()
	defer func() { metrics.RouteAnalysisDuration.Observe(time.Since(started).Seconds()) }()

	parsed, err := track.ParseFile(path)
	if errors.Is(err, track.ErrNoPoints) {
		log.Warn().Str("file", filepath.Base(path)).Msg("No track points, skipping")
		metrics.RouteAnalyses.WithLabelValues("insufficient_data").Inc()
		outcome.skipped = true
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	points := parsed.Points
	if b.backfiller != nil && track.NeedsElevation(points) {
		log.Info().Str("file", filepath.Base(path)).Int("points", len(points)).Msg("Backfilling elevation")

		filled, report, err := b.backfiller.Fill(ctx, points)
		if err != nil {
			return outcome, err
		}
		points = filled
		outcome.backfilled = report.Filled > 0

		if b.writeBack && report.Filled > 0 {
			if err := parsed.SetElevations(points, report.Resolved); err != nil {
				return outcome, err
			}
			if err := parsed.Save(path); err != nil {
				return outcome, err
			}
			outcome.writtenBack = true
		}
	}

	route, err := b.analyzer.Analyze(points, track.RouteInfoFromPath(path))
	if errors.Is(err, calculator.ErrInsufficientData) {
		log.Warn().Str("file", filepath.Base(path)).Int("points", len(points)).Msg("Insufficient data, skipping")
		metrics.RouteAnalyses.WithLabelValues("insufficient_data").Inc()
		outcome.skipped = true
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	if b.store != nil {
		if err := b.store.UpsertRoute(ctx, *route); err != nil {
			return outcome, fmt.Errorf("persisting route: %w", err)
		}
		outcome.persisted = true
	}

	metrics.RouteAnalyses.WithLabelValues("completed").Inc()
	log.Info().
		Str("route_id", route.ID).
		Float64("distance_km", route.DistanceKM).
		Int("ascent_m", route.AscentM).
		Int("descent_m", route.DescentM).
		Int("max_slope_deg", route.MaxSlopeDeg).
		Str("primary_aspect", string(route.PrimaryAspect)).
		Msg("Route analyzed")

	outcome.route = route
	return outcome, nil
}

// writeCollection writes {"routes": [...]} to path, creating parent dirs
func writeCollection(path string, collection *calculator.Collection) error {
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding route metadata: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing route metadata: %w", err)
	}
	return nil
}
