// Package track reads GPX files into ordered track point sequences for the
// calculator. It is the only place that deals with GPX structure; missing
// elevations are defaulted here so the analyzer never sees partial points.
package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/stuartshay/route-analyzer/internal/calculator"
)

// ErrNoPoints is returned when a GPX document has neither track nor route points
var ErrNoPoints = errors.New("gpx contains no track or route points")

// Track is a parsed GPX trajectory
type Track struct {
	Name        string
	Description string
	Points      []calculator.TrackPoint
	// MissingElevation counts points that had no <ele> and were set to 0
	MissingElevation int

	doc   *gpx.GPX
	nodes []*gpx.GPXPoint
}

// ParseFile reads and parses a GPX file. The document name falls back to
// the file's base name.
func ParseFile(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read GPX file: %w", err)
	}

	t, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return t, nil
}

// ParseBytes parses GPX content. Track points are read in track and
// segment order; route points are used only when there are no track points.
func ParseBytes(data []byte) (*Track, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	t := &Track{
		Name:        doc.Name,
		Description: doc.Description,
		doc:         doc,
	}

	for ti := range doc.Tracks {
		trk := &doc.Tracks[ti]
		if t.Name == "" {
			t.Name = trk.Name
		}
		for si := range trk.Segments {
			seg := &trk.Segments[si]
			for pi := range seg.Points {
				if err := t.appendPoint(&seg.Points[pi]); err != nil {
					return nil, err
				}
			}
		}
	}

	if len(t.nodes) == 0 {
		for ri := range doc.Routes {
			rte := &doc.Routes[ri]
			if t.Name == "" {
				t.Name = rte.Name
			}
			for pi := range rte.Points {
				if err := t.appendPoint(&rte.Points[pi]); err != nil {
					return nil, err
				}
			}
		}
	}

	if len(t.nodes) == 0 {
		return nil, ErrNoPoints
	}

	return t, nil
}

func (t *Track) appendPoint(node *gpx.GPXPoint) error {
	if node.Latitude < -90 || node.Latitude > 90 {
		return fmt.Errorf("point %d: latitude %v out of range", len(t.nodes), node.Latitude)
	}
	if node.Longitude < -180 || node.Longitude > 180 {
		return fmt.Errorf("point %d: longitude %v out of range", len(t.nodes), node.Longitude)
	}

	var ele float64
	if node.Elevation.NotNull() {
		ele = node.Elevation.Value()
	} else {
		t.MissingElevation++
	}

	t.nodes = append(t.nodes, node)
	t.Points = append(t.Points, calculator.TrackPoint{
		Lat:        node.Latitude,
		Lon:        node.Longitude,
		ElevationM: ele,
	})
	return nil
}

// NeedsElevation reports whether the track carries no usable elevation
// profile: every point has the same elevation as the first one.
func NeedsElevation(points []calculator.TrackPoint) bool {
	if len(points) == 0 {
		return false
	}
	first := points[0].ElevationM
	for _, p := range points[1:] {
		if p.ElevationM != first {
			return false
		}
	}
	return true
}

// SetElevations replaces the track's points, e.g. after a backfill, and
// mirrors the elevations of resolved points into the underlying GPX document
// so it can be saved back to disk. Nodes that were not resolved keep the
// elevation they were parsed with, or none at all.
func (t *Track) SetElevations(points []calculator.TrackPoint, resolved []bool) error {
	if len(points) != len(t.nodes) {
		return fmt.Errorf("elevation update has %d points, track has %d", len(points), len(t.nodes))
	}
	if len(resolved) != len(t.nodes) {
		return fmt.Errorf("elevation update has %d resolved flags, track has %d", len(resolved), len(t.nodes))
	}

	missing := 0
	for i, p := range points {
		if resolved[i] {
			t.nodes[i].Elevation = *gpx.NewNullableFloat64(p.ElevationM)
		}
		if !t.nodes[i].Elevation.NotNull() {
			missing++
		}
	}
	t.Points = append(t.Points[:0], points...)
	t.MissingElevation = missing
	return nil
}

// Save writes the GPX document, including any updated elevations, to path
func (t *Track) Save(path string) error {
	data, err := t.doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write GPX file: %w", err)
	}
	return nil
}

// RouteInfoFromPath derives the route identity from a GPX file path.
// The file name is the display name; it takes priority over the name
// stored inside the GPX.
func RouteInfoFromPath(path string) calculator.RouteInfo {
	filename := filepath.Base(path)
	id := strings.TrimSuffix(filename, filepath.Ext(filename))
	return calculator.RouteInfo{
		ID:       id,
		Name:     id,
		Filename: filename,
	}
}
