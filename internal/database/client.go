// Package database provides PostgreSQL persistence for analyzed route
// metadata with connection pooling and health checks.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"

	"github.com/stuartshay/route-analyzer/internal/calculator"
)

// ErrRouteNotFound is returned by GetRoute for unknown IDs
var ErrRouteNotFound = errors.New("route not found")

const schema = `
CREATE TABLE IF NOT EXISTS route_metadata (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	filename         TEXT NOT NULL,
	region           TEXT NOT NULL,
	distance_km      DOUBLE PRECISION NOT NULL,
	ascent_m         INTEGER NOT NULL,
	descent_m        INTEGER NOT NULL,
	elevation_min_m  INTEGER NOT NULL,
	elevation_max_m  INTEGER NOT NULL,
	max_slope_deg    INTEGER NOT NULL,
	avg_slope_deg    DOUBLE PRECISION NOT NULL,
	primary_aspect   TEXT NOT NULL,
	aspect_breakdown JSONB NOT NULL,
	analyzed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS route_metadata_region_idx ON route_metadata (region);
`

const routeColumns = `
	id, name, filename, region, distance_km, ascent_m, descent_m,
	elevation_min_m, elevation_max_m, max_slope_deg, avg_slope_deg,
	primary_aspect, aspect_breakdown`

// Client wraps a PostgreSQL database connection
type Client struct {
	db *sql.DB
}

// NewClient creates a new database client with connection pooling
func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema creates the route_metadata table if it does not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// UpsertRoute inserts or replaces the metadata row for route.ID
func (c *Client) UpsertRoute(ctx context.Context, route calculator.RouteMetadata) error {
	if route.ID == "" {
		return errors.New("route id is required")
	}

	breakdown, err := encodeBreakdown(route.AspectBreakdown)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO route_metadata (` + routeColumns + `, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			filename = EXCLUDED.filename,
			region = EXCLUDED.region,
			distance_km = EXCLUDED.distance_km,
			ascent_m = EXCLUDED.ascent_m,
			descent_m = EXCLUDED.descent_m,
			elevation_min_m = EXCLUDED.elevation_min_m,
			elevation_max_m = EXCLUDED.elevation_max_m,
			max_slope_deg = EXCLUDED.max_slope_deg,
			avg_slope_deg = EXCLUDED.avg_slope_deg,
			primary_aspect = EXCLUDED.primary_aspect,
			aspect_breakdown = EXCLUDED.aspect_breakdown,
			analyzed_at = now()
	`

	_, err = c.db.ExecContext(ctx, query,
		route.ID,
		route.Name,
		route.Filename,
		route.Region,
		route.DistanceKM,
		route.AscentM,
		route.DescentM,
		route.ElevationMinM,
		route.ElevationMaxM,
		route.MaxSlopeDeg,
		route.AvgSlopeDeg,
		string(route.PrimaryAspect),
		breakdown,
	)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}

	return nil
}

// GetRoute retrieves one route by ID
func (c *Client) GetRoute(ctx context.Context, id string) (*calculator.RouteMetadata, error) {
	query := `SELECT ` + routeColumns + ` FROM route_metadata WHERE id = $1`

	route, err := scanRoute(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return route, nil
}

// ListRoutes returns routes ordered by name, optionally filtered by region
func (c *Client) ListRoutes(ctx context.Context, region string) ([]calculator.RouteMetadata, error) {
	query := `SELECT ` + routeColumns + ` FROM route_metadata`

	var args []interface{}
	if region != "" {
		query += " WHERE region = $1"
		args = append(args, region)
	}

	query += " ORDER BY name ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }() // nolint:errcheck // Close in defer, error not actionable

	var routes []calculator.RouteMetadata
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *route)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return routes, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(row rowScanner) (*calculator.RouteMetadata, error) {
	var route calculator.RouteMetadata
	var aspect string
	var breakdown []byte

	err := row.Scan(
		&route.ID,
		&route.Name,
		&route.Filename,
		&route.Region,
		&route.DistanceKM,
		&route.AscentM,
		&route.DescentM,
		&route.ElevationMinM,
		&route.ElevationMaxM,
		&route.MaxSlopeDeg,
		&route.AvgSlopeDeg,
		&aspect,
		&breakdown,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	route.PrimaryAspect = calculator.Aspect(aspect)
	if route.AspectBreakdown, err = decodeBreakdown(breakdown); err != nil {
		return nil, err
	}

	return &route, nil
}

func encodeBreakdown(b calculator.AspectBreakdown) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encoding aspect breakdown: %w", err)
	}
	return string(data), nil
}

func decodeBreakdown(data []byte) (calculator.AspectBreakdown, error) {
	var b calculator.AspectBreakdown
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decoding aspect breakdown: %w", err)
	}
	return b, nil
}
