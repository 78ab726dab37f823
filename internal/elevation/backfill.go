package elevation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/metrics"
)

const (
	// DefaultChunkSize keeps requests well under the API's location limit
	DefaultChunkSize = 50
	// DefaultDelay is the minimum spacing between two API calls
	DefaultDelay = 1200 * time.Millisecond
	// DefaultBreakerFailures is the consecutive failure count that opens the breaker
	DefaultBreakerFailures = 3
	// DefaultBreakerTimeout is how long the breaker stays open
	DefaultBreakerTimeout = time.Minute
)

var errThrottleAborted = errors.New("elevation lookup throttle aborted")

// Options configures a Backfiller. Zero values select the defaults.
type Options struct {
	ChunkSize       int
	Delay           time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Report summarizes one Fill call
type Report struct {
	Points        int
	Filled        int
	Chunks        int
	FetchedChunks int
	CachedChunks  int
	FailedChunks  int
	// Resolved marks, per input point, whether the provider supplied an
	// elevation for it
	Resolved []bool
}

// Partial reports whether some chunks could not be filled
func (r Report) Partial() bool {
	return r.FailedChunks > 0
}

// Backfiller splices looked-up elevations into track points. Calls to the
// provider are spaced by at least Options.Delay across all goroutines
// sharing the Backfiller.
type Backfiller struct {
	provider  Provider
	cache     *Cache
	chunkSize int
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]*float64]
}

// NewBackfiller creates a Backfiller. cache may be nil.
func NewBackfiller(provider Provider, cache *Cache, opts Options) *Backfiller {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize > MaxChunkSize {
		opts.ChunkSize = MaxChunkSize
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]*float64](gobreaker.Settings{
		Name:        "elevation-lookup",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Elevation lookup circuit breaker state change")
			metrics.BackfillBreakerState.Set(float64(to))
		},
	})

	return &Backfiller{
		provider:  provider,
		cache:     cache,
		chunkSize: opts.ChunkSize,
		limiter:   rate.NewLimiter(rate.Every(opts.Delay), 1),
		breaker:   breaker,
	}
}

// Fill returns a copy of points with elevations from the provider. Points in
// chunks that fail keep the elevation they came with. The only error
// returned is the context's, when it is cancelled mid-way; the partially
// filled copy is returned alongside it.
func (b *Backfiller) Fill(ctx context.Context, points []calculator.TrackPoint) ([]calculator.TrackPoint, Report, error) {
	ctx, span := otel.Tracer("github.com/stuartshay/route-analyzer/internal/elevation").Start(ctx, "elevation.Fill")
	defer span.End()

	out := make([]calculator.TrackPoint, len(points))
	copy(out, points)

	report := Report{Points: len(points), Resolved: make([]bool, len(points))}

	for start := 0; start < len(out); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(out) {
			end = len(out)
		}
		report.Chunks++

		coords := make([]Coordinate, end-start)
		for i, p := range out[start:end] {
			coords[i] = Coordinate{Lat: p.Lat, Lon: p.Lon}
		}

		elevations, cached, err := b.lookup(ctx, coords)
		if err != nil {
			if errors.Is(err, errThrottleAborted) || ctx.Err() != nil {
				cause := ctx.Err()
				if cause == nil {
					// the next slot is past the context deadline
					cause = context.DeadlineExceeded
				}
				span.RecordError(cause)
				return out, report, cause
			}
			report.FailedChunks++
			metrics.BackfillChunks.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Int("chunk_start", start).Int("chunk_size", len(coords)).Msg("Elevation chunk lookup failed")
			continue
		}

		if cached {
			report.CachedChunks++
			metrics.BackfillChunks.WithLabelValues("cached").Inc()
		} else {
			report.FetchedChunks++
			metrics.BackfillChunks.WithLabelValues("fetched").Inc()
		}

		for i, e := range elevations {
			if e != nil {
				out[start+i].ElevationM = *e
				report.Resolved[start+i] = true
				report.Filled++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("backfill.points", report.Points),
		attribute.Int("backfill.filled", report.Filled),
		attribute.Int("backfill.failed_chunks", report.FailedChunks),
	)

	log.Info().
		Int("points", report.Points).
		Int("filled", report.Filled).
		Int("chunks", report.Chunks).
		Int("cached_chunks", report.CachedChunks).
		Int("failed_chunks", report.FailedChunks).
		Msg("Elevation backfill finished")

	return out, report, nil
}

// lookup serves a chunk from the cache or, throttled and behind the
// breaker, from the provider
func (b *Backfiller) lookup(ctx context.Context, coords []Coordinate) ([]*float64, bool, error) {
	if b.cache != nil {
		if elevations, ok := b.cache.Get(ctx, coords); ok {
			return elevations, true, nil
		}
	}

	// An open breaker rejects immediately, there is nothing to wait for
	if b.breaker.State() != gobreaker.StateOpen {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("%w: %v", errThrottleAborted, err)
		}
	}

	elevations, err := b.breaker.Execute(func() ([]*float64, error) {
		result, err := b.provider.Lookup(ctx, coords)
		if err == nil && len(result) != len(coords) {
			err = fmt.Errorf("provider returned %d elevations for %d locations", len(result), len(coords))
		}
		return result, err
	})
	if err != nil {
		return nil, false, err
	}

	if b.cache != nil {
		if err := b.cache.Put(ctx, coords, elevations); err != nil {
			log.Warn().Err(err).Msg("Failed to cache elevation chunk")
		}
	}

	return elevations, false, nil
}
