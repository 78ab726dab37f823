package calculator

import (
	"errors"
	"math"
)

const (
	// SignificantSlopeDeg is the grade at which a slope carries avalanche
	// aspect signal. Segments at or above it feed the aspect breakdown and
	// the descent-biased primary aspect.
	SignificantSlopeDeg = 15.0

	// GentleSlopeDeg is the last-resort grade for picking a primary aspect
	// on tours that never reach SignificantSlopeDeg.
	GentleSlopeDeg = 3.0

	// DefaultAspect is reported when no segment reaches GentleSlopeDeg.
	// It is a placeholder, not a computed result.
	DefaultAspect = AspectN
)

// ErrInsufficientData is returned when a track has fewer than two usable
// points and no segment can be formed
var ErrInsufficientData = errors.New("insufficient data: at least 2 track points are required")

// Thresholds holds the slope cut-offs used for aspect classification
type Thresholds struct {
	SignificantSlopeDeg float64
	GentleSlopeDeg      float64
}

// DefaultThresholds returns the standard 15° / 3° cut-offs
func DefaultThresholds() Thresholds {
	return Thresholds{
		SignificantSlopeDeg: SignificantSlopeDeg,
		GentleSlopeDeg:      GentleSlopeDeg,
	}
}

// RouteInfo identifies the route being analyzed
type RouteInfo struct {
	ID       string
	Name     string
	Filename string
	// Region overrides name-based region inference when set
	Region string
}

// RouteMetadata is the per-route terrain summary.
// JSON keys match the routes-metadata.json consumed by the route browser;
// units are carried in the Go field names.
type RouteMetadata struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Filename        string          `json:"filename"`
	Region          string          `json:"region"`
	DistanceKM      float64         `json:"distance"`
	AscentM         int             `json:"ascent"`
	DescentM        int             `json:"descent"`
	ElevationMinM   int             `json:"elevationMin"`
	ElevationMaxM   int             `json:"elevationMax"`
	MaxSlopeDeg     int             `json:"maxSlope"`
	AvgSlopeDeg     float64         `json:"avgSlope"`
	PrimaryAspect   Aspect          `json:"primaryAspect"`
	AspectBreakdown AspectBreakdown `json:"aspectBreakdown"`
}

// Collection is the on-disk list of analyzed routes
type Collection struct {
	Routes []RouteMetadata `json:"routes"`
}

// Analyzer aggregates track segments into RouteMetadata
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer using the given slope thresholds
func NewAnalyzer(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Thresholds returns the analyzer's slope cut-offs
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze is Analyzer.Analyze with the default thresholds
func Analyze(points []TrackPoint, info RouteInfo) (*RouteMetadata, error) {
	return NewAnalyzer(DefaultThresholds()).Analyze(points, info)
}

// Analyze walks the track once and summarizes it. Points with non-finite
// coordinates are skipped. Fewer than two remaining points returns
// ErrInsufficientData and no metadata.
func (a *Analyzer) Analyze(points []TrackPoint, info RouteInfo) (*RouteMetadata, error) {
	acc := routeAccumulator{
		thresholds:   a.thresholds,
		elevationMin: math.Inf(1),
		elevationMax: math.Inf(-1),
	}

	var prev TrackPoint
	usable := 0
	for _, p := range points {
		if !p.valid() {
			continue
		}
		if usable > 0 {
			acc.add(prev, p)
		}
		prev = p
		usable++
	}

	if usable < 2 {
		return nil, ErrInsufficientData
	}

	return acc.metadata(info), nil
}

// routeAccumulator holds the running totals of a single forward pass
type routeAccumulator struct {
	thresholds Thresholds

	totalDistance      float64
	totalAscent        float64
	totalDescent       float64
	elevationMin       float64
	elevationMax       float64
	maxSlope           float64
	totalSlopeDistance float64

	aspects        AspectHistogram
	descentAspects AspectHistogram
	gentleAspects  AspectHistogram
}

func (acc *routeAccumulator) add(p1, p2 TrackPoint) {
	seg := AnalyzeSegment(p1, p2)

	acc.totalDistance += seg.DistanceM

	if seg.Ascending() {
		acc.totalAscent += seg.ElevationChangeM
	}
	if seg.Descending() {
		acc.totalDescent += -seg.ElevationChangeM
	}

	acc.elevationMin = math.Min(acc.elevationMin, math.Min(p1.ElevationM, p2.ElevationM))
	acc.elevationMax = math.Max(acc.elevationMax, math.Max(p1.ElevationM, p2.ElevationM))

	acc.maxSlope = math.Max(acc.maxSlope, seg.SlopeDeg)
	acc.totalSlopeDistance += seg.SlopeDeg * seg.DistanceM

	bucket := CategorizeAspect(seg.AspectDeg)

	if seg.SlopeDeg >= acc.thresholds.SignificantSlopeDeg {
		acc.aspects.Add(bucket, seg.DistanceM)
		if seg.Descending() {
			acc.descentAspects.Add(bucket, seg.DistanceM)
		}
	}

	if seg.SlopeDeg >= acc.thresholds.GentleSlopeDeg {
		acc.gentleAspects.Add(bucket, seg.DistanceM)
	}
}

// primaryAspect prefers steep descent exposure, then any steep exposure,
// then gentle exposure, and finally DefaultAspect
func (acc *routeAccumulator) primaryAspect() Aspect {
	for _, h := range []*AspectHistogram{&acc.descentAspects, &acc.aspects, &acc.gentleAspects} {
		if aspect, ok := h.Dominant(); ok {
			return aspect
		}
	}
	return DefaultAspect
}

func (acc *routeAccumulator) metadata(info RouteInfo) *RouteMetadata {
	avgSlope := 0.0
	if acc.totalDistance > 0 {
		avgSlope = acc.totalSlopeDistance / acc.totalDistance
	}

	name := info.Name
	if name == "" {
		name = info.ID
	}

	region := info.Region
	if region == "" {
		region = InferRegion(name)
	}

	return &RouteMetadata{
		ID:              info.ID,
		Name:            name,
		Filename:        info.Filename,
		Region:          region,
		DistanceKM:      round2(acc.totalDistance / 1000),
		AscentM:         roundInt(acc.totalAscent),
		DescentM:        roundInt(acc.totalDescent),
		ElevationMinM:   roundInt(acc.elevationMin),
		ElevationMaxM:   roundInt(acc.elevationMax),
		MaxSlopeDeg:     roundInt(acc.maxSlope),
		AvgSlopeDeg:     round1(avgSlope),
		PrimaryAspect:   acc.primaryAspect(),
		AspectBreakdown: acc.aspects.Breakdown(),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
