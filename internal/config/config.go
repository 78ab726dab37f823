// Package config provides application configuration management,
// loading settings from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string
	Workers     int

	// Database configuration
	DatabaseEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Redis elevation cache; empty address uses an in-process cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Elevation backfill
	BackfillEnabled   bool
	ElevationURL      string
	ElevationDataset  string
	ElevationTimeout  time.Duration
	BackfillChunkSize int
	BackfillDelay     time.Duration

	// Aspect thresholds in degrees
	SignificantSlopeDeg float64
	GentleSlopeDeg      float64

	// GPX input directory and metadata output path
	GPXDir     string
	OutputPath string

	// OpenTelemetry configuration
	OTELEnabled     bool
	OTELEndpoint    string
	OTELSampleRatio float64

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "route-analyzer"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "routes"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ElevationURL:     getEnv("ELEVATION_API_URL", "https://api.opentopodata.org"),
		ElevationDataset: getEnv("ELEVATION_DATASET", "eudem25m"),

		GPXDir:     getEnv("GPX_DIR", "data/gpx"),
		OutputPath: getEnv("OUTPUT_PATH", "data/routes-metadata.json"),

		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Workers, err = parseInt("WORKERS", "4"); err != nil {
		return nil, fmt.Errorf("invalid WORKERS: %w", err)
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", "0"); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.BackfillChunkSize, err = parseInt("BACKFILL_CHUNK_SIZE", "50"); err != nil {
		return nil, fmt.Errorf("invalid BACKFILL_CHUNK_SIZE: %w", err)
	}
	if cfg.BackfillChunkSize < 1 || cfg.BackfillChunkSize > 100 {
		return nil, fmt.Errorf("invalid BACKFILL_CHUNK_SIZE: %d not in [1,100]", cfg.BackfillChunkSize)
	}

	if cfg.DatabaseEnabled, err = parseBool("DATABASE_ENABLED", "false"); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_ENABLED: %w", err)
	}
	if cfg.BackfillEnabled, err = parseBool("BACKFILL_ENABLED", "true"); err != nil {
		return nil, fmt.Errorf("invalid BACKFILL_ENABLED: %w", err)
	}
	if cfg.OTELEnabled, err = parseBool("OTEL_ENABLED", "false"); err != nil {
		return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	if cfg.CacheTTL, err = parseDuration("CACHE_TTL", "720h"); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.ElevationTimeout, err = parseDuration("ELEVATION_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid ELEVATION_TIMEOUT: %w", err)
	}
	if cfg.BackfillDelay, err = parseDuration("BACKFILL_DELAY", "1200ms"); err != nil {
		return nil, fmt.Errorf("invalid BACKFILL_DELAY: %w", err)
	}

	// Parse float values
	if cfg.SignificantSlopeDeg, err = parseFloat("SIGNIFICANT_SLOPE_DEG", "15"); err != nil {
		return nil, fmt.Errorf("invalid SIGNIFICANT_SLOPE_DEG: %w", err)
	}
	if cfg.GentleSlopeDeg, err = parseFloat("GENTLE_SLOPE_DEG", "3"); err != nil {
		return nil, fmt.Errorf("invalid GENTLE_SLOPE_DEG: %w", err)
	}
	if cfg.OTELSampleRatio, err = parseFloat("OTEL_SAMPLE_RATIO", "1"); err != nil {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloat parses a float64 from an environment variable or default value
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnv(key, defaultValue)
	return strconv.ParseFloat(value, 64)
}

func parseInt(key, defaultValue string) (int, error) {
	return strconv.Atoi(getEnv(key, defaultValue))
}

func parseBool(key, defaultValue string) (bool, error) {
	return strconv.ParseBool(getEnv(key, defaultValue))
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	return time.ParseDuration(getEnv(key, defaultValue))
}
