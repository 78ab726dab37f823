package calculator

import (
	"math"
)

// Segment holds the terrain figures derived from two consecutive track points
type Segment struct {
	// DistanceM is the horizontal great-circle distance in meters
	DistanceM float64
	// ElevationChangeM is p2 minus p1 in meters; positive means climbing
	ElevationChangeM float64
	// SlopeDeg is the unsigned terrain grade in degrees
	SlopeDeg float64
	// BearingDeg is the direction of travel in [0, 360)
	BearingDeg float64
	// AspectDeg is the direction the slope faces in [0, 360)
	AspectDeg float64
}

// Ascending reports whether the segment gains elevation
func (s Segment) Ascending() bool {
	return s.ElevationChangeM > 0
}

// Descending reports whether the segment loses elevation
func (s Segment) Descending() bool {
	return s.ElevationChangeM < 0
}

// AnalyzeSegment derives distance, slope, travel bearing and slope aspect
// for the segment p1 -> p2
func AnalyzeSegment(p1, p2 TrackPoint) Segment {
	distance := DistanceMeters(p1, p2)
	elevationChange := p2.ElevationM - p1.ElevationM
	bearing := InitialBearingDegrees(p1, p2)

	return Segment{
		DistanceM:        distance,
		ElevationChangeM: elevationChange,
		SlopeDeg:         SlopeDegrees(elevationChange, distance),
		BearingDeg:       bearing,
		AspectDeg:        FacingAspect(bearing, elevationChange),
	}
}

// SlopeDegrees returns the unsigned grade in degrees for a rise of
// elevationChangeM over a horizontal run of distanceM.
// A zero-length run has no defined grade and reports 0.
func SlopeDegrees(elevationChangeM, distanceM float64) float64 {
	if distanceM <= 0 {
		return 0
	}
	return math.Abs(radiansToDegrees(math.Atan(elevationChangeM / distanceM)))
}

// FacingAspect converts a travel bearing into the aspect of the slope being
// travelled. Climbing a slope means moving against the direction it faces
// (heading north uphill is on a south-facing slope), so ascending legs are
// flipped by 180°. Level and descending legs face the direction of travel.
func FacingAspect(bearingDeg, elevationChangeM float64) float64 {
	if elevationChangeM > 0 {
		return NormalizeBearing(bearingDeg + 180)
	}
	return NormalizeBearing(bearingDeg)
}
