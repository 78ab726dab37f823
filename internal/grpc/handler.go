// Package grpc implements the RouteAnalysisService gRPC server handlers
// for GPX route analysis job management.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/config"
	"github.com/stuartshay/route-analyzer/internal/elevation"
	"github.com/stuartshay/route-analyzer/internal/metrics"
	"github.com/stuartshay/route-analyzer/internal/queue"
	"github.com/stuartshay/route-analyzer/internal/track"
)

const tracerName = "github.com/stuartshay/route-analyzer/internal/grpc"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RouteStore persists analyzed routes. *database.Client implements it.
type RouteStore interface {
	UpsertRoute(ctx context.Context, route calculator.RouteMetadata) error
	ListRoutes(ctx context.Context, region string) ([]calculator.RouteMetadata, error)
}

// Server implements the RouteAnalysisService gRPC server
type Server struct {
	cfg        *config.Config
	store      RouteStore
	backfiller *elevation.Backfiller
	analyzer   *calculator.Analyzer
	queue      *queue.Queue
}

// NewServer creates a new gRPC server instance. store and backfiller are
// optional; without a store results are not persisted and ListRoutes is
// unavailable, without a backfiller flat tracks are analyzed as-is.
func NewServer(cfg *config.Config, store RouteStore, backfiller *elevation.Backfiller) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		backfiller: backfiller,
		analyzer: calculator.NewAnalyzer(calculator.Thresholds{
			SignificantSlopeDeg: cfg.SignificantSlopeDeg,
			GentleSlopeDeg:      cfg.GentleSlopeDeg,
		}),
	}

	// Initialize job queue with processor
	s.queue = queue.NewQueue(cfg.Workers, s.processRouteJob)

	return s
}

// AnalyzeRoute initiates an async analysis job for a GPX file
func (s *Server) AnalyzeRoute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filePath := stringField(req, "file_path")
	region := stringField(req, "region")

	log.Info().
		Str("file_path", filePath).
		Str("region", region).
		Msg("Received route analysis request")

	if filePath == "" {
		return nil, status.Error(codes.InvalidArgument, "file_path is required")
	}

	resolved := s.resolvePath(filePath)
	if _, err := os.Stat(resolved); err != nil {
		return nil, status.Errorf(codes.NotFound, "GPX file not accessible: %v", err)
	}

	jobID, err := s.queue.Enqueue(resolved, region)
	if errors.Is(err, queue.ErrQueueFull) {
		log.Warn().Str("file_path", resolved).Msg("Analysis queue full")
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to enqueue job")
		return nil, status.Errorf(codes.Internal, "failed to enqueue job: %v", err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"job_id":    jobID,
		"status":    string(queue.StatusQueued),
		"queued_at": formatTime(time.Now().UTC()),
	})
}

// GetJobStatus returns the current status of an analysis job
func (s *Server) GetJobStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}

	job, err := s.queue.GetJob(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	fields, err := jobFields(job, true)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding job: %v", err)
	}

	return structpb.NewStruct(fields)
}

// ListJobs returns a list of analysis jobs with optional filtering
func (s *Server) ListJobs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(numberField(req, "limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := int(numberField(req, "offset"))
	if offset < 0 {
		offset = 0
	}

	jobs, total := s.queue.ListJobs(queue.JobStatus(stringField(req, "status")), limit, offset)

	summaries := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		fields, err := jobFields(job, false)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encoding job: %v", err)
		}
		summaries = append(summaries, fields)
	}

	return structpb.NewStruct(map[string]interface{}{
		"jobs":        summaries,
		"total_count": total,
		"limit":       limit,
		"offset":      offset,
	})
}

// ListRoutes returns persisted route metadata, optionally filtered by region
func (s *Server) ListRoutes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unavailable, "route store not configured")
	}

	routes, err := s.store.ListRoutes(ctx, stringField(req, "region"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list routes")
		return nil, status.Errorf(codes.Internal, "listing routes: %v", err)
	}

	items := make([]interface{}, 0, len(routes))
	for i := range routes {
		value, err := routeValue(&routes[i])
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encoding route: %v", err)
		}
		items = append(items, value)
	}

	return structpb.NewStruct(map[string]interface{}{
		"routes": items,
		"count":  len(items),
	})
}

// processRouteJob is the worker function that analyzes one GPX file
func (s *Server) processRouteJob(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "route.Analyze", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("gpx.file", filepath.Base(job.FilePath)),
	))
	defer span.End()

	start := time.Now()
	defer func() { metrics.RouteAnalysisDuration.Observe(time.Since(start).Seconds()) }()

	log.Info().
		Str("job_id", job.ID).
		Str("file_path", job.FilePath).
		Msg("Processing route analysis job")

	result, outcome, err := s.analyzeFile(ctx, job)
	metrics.RouteAnalyses.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		log.Error().Err(err).Str("job_id", job.ID).Msg("Route analysis failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("route.distance_km", result.Route.DistanceKM),
		attribute.String("route.primary_aspect", string(result.Route.PrimaryAspect)),
	)

	log.Info().
		Str("job_id", job.ID).
		Str("route_id", result.Route.ID).
		Float64("distance_km", result.Route.DistanceKM).
		Int("descent_m", result.Route.DescentM).
		Int("max_slope_deg", result.Route.MaxSlopeDeg).
		Str("primary_aspect", string(result.Route.PrimaryAspect)).
		Msg("Route metadata calculated")

	return result, nil
}

// analyzeFile parses, backfills, analyzes and persists one route. The
// returned outcome labels the analysis metric.
func (s *Server) analyzeFile(ctx context.Context, job *queue.Job) (*queue.JobResult, string, error) {
	parsed, err := track.ParseFile(job.FilePath)
	if err != nil {
		return nil, "failed", fmt.Errorf("GPX parsing failed: %w", err)
	}

	result := &queue.JobResult{}
	points := parsed.Points

	if s.backfiller != nil && track.NeedsElevation(points) {
		filled, report, err := s.backfiller.Fill(ctx, points)
		if err != nil {
			return nil, "failed", fmt.Errorf("elevation backfill aborted: %w", err)
		}
		points = filled
		result.BackfilledPoints = report.Filled
	}

	info := track.RouteInfoFromPath(job.FilePath)
	info.Region = job.Region

	route, err := s.analyzer.Analyze(points, info)
	if errors.Is(err, calculator.ErrInsufficientData) {
		return nil, "insufficient_data", fmt.Errorf("%s: %w", info.Filename, err)
	}
	if err != nil {
		return nil, "failed", fmt.Errorf("analysis failed: %w", err)
	}
	result.Route = route

	if s.store != nil {
		if err := s.store.UpsertRoute(ctx, *route); err != nil {
			return nil, "failed", fmt.Errorf("persisting route: %w", err)
		}
		result.Persisted = true
	}

	return result, "completed", nil
}

// resolvePath anchors relative paths at the configured GPX directory
func (s *Server) resolvePath(path string) string {
	if filepath.IsAbs(path) || s.cfg.GPXDir == "" {
		return path
	}
	return filepath.Join(s.cfg.GPXDir, path)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.queue.Shutdown(timeout)
}

func jobFields(job *queue.Job, detailed bool) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"job_id":    job.ID,
		"status":    string(job.Status),
		"file_path": job.FilePath,
		"region":    job.Region,
		"queued_at": formatTime(job.QueuedAt),
	}

	if job.CompletedAt != nil {
		fields["completed_at"] = formatTime(*job.CompletedAt)
	}

	if !detailed {
		return fields, nil
	}

	if job.StartedAt != nil {
		fields["started_at"] = formatTime(*job.StartedAt)
	}

	if job.ErrorMessage != "" {
		fields["error_message"] = job.ErrorMessage
	}

	if job.Result != nil {
		result := map[string]interface{}{
			"backfilled_points":  job.Result.BackfilledPoints,
			"persisted":          job.Result.Persisted,
			"processing_time_ms": job.Result.ProcessingTimeMS,
		}
		if job.Result.Route != nil {
			route, err := routeValue(job.Result.Route)
			if err != nil {
				return nil, err
			}
			result["route"] = route
		}
		fields["result"] = result
	}

	return fields, nil
}

// routeValue converts route metadata to a structpb-compatible map using its
// JSON field names
func routeValue(route *calculator.RouteMetadata) (map[string]interface{}, error) {
	data, err := json.Marshal(route)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
