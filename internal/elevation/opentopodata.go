// Package elevation backfills missing elevation profiles from an external
// lookup service. Backfill is best effort: failed lookups leave points
// untouched and never stop an analysis.
package elevation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MaxChunkSize is the largest number of locations accepted per lookup
const MaxChunkSize = 100

// Coordinate is a latitude/longitude pair in decimal degrees
type Coordinate struct {
	Lat float64
	Lon float64
}

// Provider looks up ground elevation in meters for a batch of coordinates.
// The result has one entry per coordinate; nil means no data for it.
type Provider interface {
	Lookup(ctx context.Context, coords []Coordinate) ([]*float64, error)
}

// OpenTopoDataClient queries an OpenTopoData compatible API
type OpenTopoDataClient struct {
	baseURL    string
	dataset    string
	httpClient *http.Client
}

// NewOpenTopoDataClient creates a client for baseURL (e.g.
// https://api.opentopodata.org) and dataset (e.g. eudem25m)
func NewOpenTopoDataClient(baseURL, dataset string, timeout time.Duration) *OpenTopoDataClient {
	return &OpenTopoDataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		dataset: dataset,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type openTopoDataResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// Lookup fetches elevations for up to MaxChunkSize coordinates
func (c *OpenTopoDataClient) Lookup(ctx context.Context, coords []Coordinate) ([]*float64, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	if len(coords) > MaxChunkSize {
		return nil, fmt.Errorf("too many locations: %d (max %d)", len(coords), MaxChunkSize)
	}

	reqURL := fmt.Sprintf("%s/v1/%s?locations=%s",
		c.baseURL, url.PathEscape(c.dataset), url.QueryEscape(formatLocations(coords)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // nolint:errcheck // Close in defer, error not actionable

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp openTopoDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if apiResp.Status != "" && apiResp.Status != "OK" {
		return nil, fmt.Errorf("API error: %s %s", apiResp.Status, apiResp.Error)
	}

	if len(apiResp.Results) != len(coords) {
		return nil, fmt.Errorf("API returned %d results for %d locations", len(apiResp.Results), len(coords))
	}

	elevations := make([]*float64, len(coords))
	for i, r := range apiResp.Results {
		elevations[i] = r.Elevation
	}

	return elevations, nil
}

// formatLocations renders coordinates as lat,lon|lat,lon
func formatLocations(coords []Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
	}
	return strings.Join(parts, "|")
}
