package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/stuartshay/route-analyzer/internal/config"
	"github.com/stuartshay/route-analyzer/internal/database"
	"github.com/stuartshay/route-analyzer/internal/elevation"
	grpcserver "github.com/stuartshay/route-analyzer/internal/grpc"
	"github.com/stuartshay/route-analyzer/internal/logging"
	"github.com/stuartshay/route-analyzer/internal/tracing"
)

var version = "dev"

func main() {
	// Initialize structured logging
	logging.Setup(os.Stdout)

	log.Info().Str("version", version).Msg("Starting route-analyzer service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	logging.SetLevel(cfg.LogLevel)

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("grpc_port", cfg.GRPCPort).
		Str("http_port", cfg.HTTPPort).
		Int("workers", cfg.Workers).
		Bool("database_enabled", cfg.DatabaseEnabled).
		Bool("backfill_enabled", cfg.BackfillEnabled).
		Float64("significant_slope_deg", cfg.SignificantSlopeDeg).
		Float64("gentle_slope_deg", cfg.GentleSlopeDeg).
		Msg("Configuration loaded")

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:      cfg.ServiceName,
		ServiceNamespace: "ski-touring",
		ServiceVersion:   version,
		Environment:      cfg.Environment,
		OTLPEndpoint:     cfg.OTELEndpoint,
		Enabled:          cfg.OTELEnabled,
		SampleRatio:      cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracer")
		}
	}()

	// Initialize database client when route persistence is enabled
	var store grpcserver.RouteStore
	var dbClient *database.Client
	if cfg.DatabaseEnabled {
		dbClient, err = database.NewClient(cfg.DatabaseDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database client")
		}
		defer dbClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = dbClient.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		store = dbClient
		log.Info().Str("db_host", cfg.PostgresHost).Msg("Database connection established")
	}

	backfiller, closeCache, err := elevation.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize elevation backfill")
	}
	defer func() { _ = closeCache() }()

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	// Register route analysis service
	analysisServer := grpcserver.NewServer(cfg, store, backfiller)
	grpcserver.RegisterRouteAnalysisServiceServer(grpcServer, analysisServer)

	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable server reflection for debugging
	reflection.Register(grpcServer)

	// Start gRPC server
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TCP listener")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Start HTTP server for probes and metrics
	var ready func(context.Context) error
	if dbClient != nil {
		ready = dbClient.HealthCheck
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           newHTTPMux(cfg.ServiceName, ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, gracefully stopping...")
	healthServer.Shutdown()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	case <-stopped:
		log.Info().Msg("gRPC server stopped")
	}

	// Shutdown analysis workers
	if err := analysisServer.Shutdown(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown analysis workers")
	}

	log.Info().Msg("Service shutdown complete")
}

// newHTTPMux serves liveness, readiness and Prometheus metrics. ready may be
// nil when the service has no dependencies to check.
func newHTTPMux(serviceName string, ready func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", serviceName, "")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "not ready", serviceName, err.Error())
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready", serviceName, "")
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, status, service, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{Status: status, Service: service, Error: errMsg}) //nolint:errcheck
}
