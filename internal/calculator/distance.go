// Package calculator derives terrain metadata from recorded GPS tracks:
// great-circle distances, per-segment slope and aspect, and the per-route
// aggregate consumed by route listings.
package calculator

import (
	"math"
)

const (
	// EarthRadiusM is the Earth's mean radius in meters
	EarthRadiusM = 6371000.0
)

// TrackPoint is a single recorded GPS sample.
// Latitude and longitude are decimal degrees, elevation is meters.
type TrackPoint struct {
	Lat        float64
	Lon        float64
	ElevationM float64
}

// valid reports whether every coordinate of the point is a finite number
func (p TrackPoint) valid() bool {
	return isFinite(p.Lat) && isFinite(p.Lon) && isFinite(p.ElevationM)
}

// HaversineMeters calculates the great-circle distance in meters between two
// points given their latitudes and longitudes in decimal degrees
//
// Formula:
// a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
// c = 2 ⋅ atan2( √a, √(1−a) )
// d = R ⋅ c
//
// where:
// φ is latitude, λ is longitude, R is earth's radius (6,371,000 m)
//
// a is clamped to [0, 1] before the inverse trig step; rounding near
// antipodal points can push it just past 1 and √(1−a) would be NaN.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)

	deltaLat := lat2Rad - lat1Rad
	deltaLon := degreesToRadians(lon2) - degreesToRadians(lon1)

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)

	a := sinLat*sinLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sinLon*sinLon
	a = clamp(a, 0, 1)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// DistanceMeters is HaversineMeters applied to two track points
func DistanceMeters(p1, p2 TrackPoint) float64 {
	return HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
}

// InitialBearingDegrees returns the initial compass bearing of the
// great-circle path from p1 to p2, clockwise from true north, in [0, 360).
func InitialBearingDegrees(p1, p2 TrackPoint) float64 {
	lat1 := degreesToRadians(p1.Lat)
	lat2 := degreesToRadians(p2.Lat)
	deltaLon := degreesToRadians(p2.Lon - p1.Lon)

	y := math.Sin(deltaLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLon)

	return NormalizeBearing(radiansToDegrees(math.Atan2(y, x)))
}

// NormalizeBearing folds any finite angle in degrees into [0, 360)
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	// -1e-15 + 360 rounds up to exactly 360
	if b >= 360 {
		b = 0
	}
	return b
}

// degreesToRadians converts degrees to radians
func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// radiansToDegrees converts radians to degrees
func radiansToDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
