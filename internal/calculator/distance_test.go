package calculator

import (
	"math"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "Same location",
			lat1:      47.4,
			lon1:      10.28,
			lat2:      47.4,
			lon2:      10.28,
			expected:  0.0,
			tolerance: 0.000001,
		},
		{
			name:      "0.01° of latitude (~1112 m)",
			lat1:      47.40,
			lon1:      10.28,
			lat2:      47.41,
			lon2:      10.28,
			expected:  1111.95,
			tolerance: 0.5,
		},
		{
			name:      "Oberstdorf to Nebelhorn summit (~5 km)",
			lat1:      47.4099,
			lon1:      10.2797,
			lat2:      47.4215,
			lon2:      10.3444,
			expected:  5060,
			tolerance: 300,
		},
		{
			name:      "New York to Boston (~306 km)",
			lat1:      40.7128,
			lon1:      -74.0060,
			lat2:      42.3601,
			lon2:      -71.0589,
			expected:  306000,
			tolerance: 5000,
		},
		{
			name:      "Antipodal points",
			lat1:      0,
			lon1:      0,
			lat2:      0,
			lon2:      180,
			expected:  math.Pi * EarthRadiusM,
			tolerance: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HaversineMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.IsNaN(result) {
				t.Fatalf("HaversineMeters() returned NaN")
			}
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("HaversineMeters() = %.2f m, expected %.2f m (±%.2f m)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestHaversineMeters_Symmetry(t *testing.T) {
	points := []TrackPoint{
		{Lat: 47.40, Lon: 10.28},
		{Lat: 47.4215, Lon: 10.3444},
		{Lat: -33.86, Lon: 151.21},
		{Lat: 89.999, Lon: -179.9},
		{Lat: -0.5, Lon: 179.999},
		{Lat: 0.5, Lon: -0.000001},
	}

	for i, a := range points {
		if d := DistanceMeters(a, a); d != 0 {
			t.Errorf("DistanceMeters(p%d, p%d) = %g, expected 0", i, i, d)
		}
		for j, b := range points {
			ab := DistanceMeters(a, b)
			ba := DistanceMeters(b, a)
			if ab != ba {
				t.Errorf("DistanceMeters not symmetric for p%d/p%d: %.9f != %.9f", i, j, ab, ba)
			}
		}
	}
}

func TestHaversineMeters_NearAntipodalStaysFinite(t *testing.T) {
	for _, lon := range []float64{179.9999999, 180, -180, 180.0000001} {
		d := HaversineMeters(0, 0, 0, lon)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			t.Errorf("HaversineMeters(0,0,0,%v) = %v, expected finite", lon, d)
		}
		if d > math.Pi*EarthRadiusM+1e-6 {
			t.Errorf("HaversineMeters(0,0,0,%v) = %v exceeds half circumference", lon, d)
		}
	}
}

func TestInitialBearingDegrees(t *testing.T) {
	origin := TrackPoint{Lat: 47.40, Lon: 10.28}

	tests := []struct {
		name     string
		to       TrackPoint
		expected float64
	}{
		{name: "north", to: TrackPoint{Lat: 47.41, Lon: 10.28}, expected: 0},
		{name: "east", to: TrackPoint{Lat: 47.40, Lon: 10.29}, expected: 90},
		{name: "south", to: TrackPoint{Lat: 47.39, Lon: 10.28}, expected: 180},
		{name: "west", to: TrackPoint{Lat: 47.40, Lon: 10.27}, expected: 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InitialBearingDegrees(origin, tt.to)
			if result < 0 || result >= 360 {
				t.Fatalf("InitialBearingDegrees() = %.4f, outside [0, 360)", result)
			}
			diff := math.Abs(result - tt.expected)
			if diff > 180 {
				diff = 360 - diff
			}
			if diff > 0.1 {
				t.Errorf("InitialBearingDegrees() = %.4f, expected %.1f", result, tt.expected)
			}
		})
	}
}

func TestNormalizeBearing(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{540, 180},
		{-90, 270},
		{-1e-15, 0},
	}

	for _, tt := range tests {
		result := NormalizeBearing(tt.in)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("NormalizeBearing(%v) = %v, expected %v", tt.in, result, tt.expected)
		}
	}
}

func TestDegreesToRadians(t *testing.T) {
	tests := []struct {
		degrees  float64
		expected float64
	}{
		{0, 0},
		{90, math.Pi / 2},
		{180, math.Pi},
		{360, 2 * math.Pi},
		{-90, -math.Pi / 2},
	}

	for _, tt := range tests {
		result := degreesToRadians(tt.degrees)
		if math.Abs(result-tt.expected) > 0.0001 {
			t.Errorf("degreesToRadians(%.2f) = %.4f, expected %.4f", tt.degrees, result, tt.expected)
		}
	}
}

func BenchmarkHaversineMeters(b *testing.B) {
	lat1, lon1 := 47.4099, 10.2797
	lat2, lon2 := 47.4215, 10.3444

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HaversineMeters(lat1, lon1, lat2, lon2)
	}
}
