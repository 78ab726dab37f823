package track

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/route-analyzer/internal/calculator"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>Nebelhorn Abfahrt</name><desc>Classic descent</desc></metadata>
  <trk>
    <name>track name</name>
    <trkseg>
      <trkpt lat="47.40" lon="10.28"><ele>2000</ele></trkpt>
      <trkpt lat="47.41" lon="10.28"><ele>1950</ele></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="47.42" lon="10.28"><ele>1900</ele></trkpt>
    </trkseg>
  </trk>
</gpx>`

const noElevationGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="47.40" lon="10.28"></trkpt>
    <trkpt lat="47.41" lon="10.28"></trkpt>
    <trkpt lat="47.42" lon="10.29"></trkpt>
  </trkseg></trk>
</gpx>`

const routeOnlyGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <rte>
    <name>Planned</name>
    <rtept lat="47.30" lon="10.20"><ele>1200</ele></rtept>
    <rtept lat="47.31" lon="10.21"><ele>1350</ele></rtept>
  </rte>
</gpx>`

func TestParseBytes(t *testing.T) {
	tr, err := ParseBytes([]byte(sampleGPX))
	require.NoError(t, err)

	assert.Equal(t, "Nebelhorn Abfahrt", tr.Name)
	assert.Equal(t, "Classic descent", tr.Description)
	assert.Equal(t, 0, tr.MissingElevation)
	require.Len(t, tr.Points, 3)
	assert.Equal(t, calculator.TrackPoint{Lat: 47.40, Lon: 10.28, ElevationM: 2000}, tr.Points[0])
	assert.Equal(t, calculator.TrackPoint{Lat: 47.42, Lon: 10.28, ElevationM: 1900}, tr.Points[2])
}

func TestParseBytes_MissingElevationDefaultsToZero(t *testing.T) {
	tr, err := ParseBytes([]byte(noElevationGPX))
	require.NoError(t, err)

	assert.Equal(t, 3, tr.MissingElevation)
	for _, p := range tr.Points {
		assert.Equal(t, 0.0, p.ElevationM)
	}
	assert.True(t, NeedsElevation(tr.Points))
}

func TestParseBytes_RoutePointsFallback(t *testing.T) {
	tr, err := ParseBytes([]byte(routeOnlyGPX))
	require.NoError(t, err)

	assert.Equal(t, "Planned", tr.Name)
	require.Len(t, tr.Points, 2)
	assert.Equal(t, 1350.0, tr.Points[1].ElevationM)
}

func TestParseBytes_Errors(t *testing.T) {
	t.Run("not xml", func(t *testing.T) {
		_, err := ParseBytes([]byte("definitely not gpx"))
		assert.Error(t, err)
	})

	t.Run("no points", func(t *testing.T) {
		_, err := ParseBytes([]byte(`<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"></gpx>`))
		assert.True(t, errors.Is(err, ErrNoPoints))
	})

	t.Run("latitude out of range", func(t *testing.T) {
		doc := `<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1">
<trk><trkseg><trkpt lat="97.0" lon="10.0"><ele>1</ele></trkpt></trkseg></trk></gpx>`
		_, err := ParseBytes([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "latitude")
	})
}

func TestNeedsElevation(t *testing.T) {
	tests := []struct {
		name     string
		points   []calculator.TrackPoint
		expected bool
	}{
		{name: "empty", points: nil, expected: false},
		{name: "constant non-zero", points: []calculator.TrackPoint{{ElevationM: 800}, {ElevationM: 800}}, expected: true},
		{name: "all zero", points: []calculator.TrackPoint{{}, {}, {}}, expected: true},
		{name: "varies", points: []calculator.TrackPoint{{ElevationM: 800}, {ElevationM: 800}, {ElevationM: 801}}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsElevation(tt.points))
		})
	}
}

func TestParseFile_SetElevationsAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kleinwalsertal-tour.gpx")
	require.NoError(t, os.WriteFile(path, []byte(noElevationGPX), 0644))

	tr, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kleinwalsertal-tour", tr.Name, "name falls back to file name")

	filled := make([]calculator.TrackPoint, len(tr.Points))
	copy(filled, tr.Points)
	for i := range filled {
		filled[i].ElevationM = 1500 + float64(i)*25
	}

	require.NoError(t, tr.SetElevations(filled, []bool{true, true, true}))
	assert.Equal(t, 0, tr.MissingElevation)
	require.NoError(t, tr.Save(path))

	reread, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, reread.Points, 3)
	assert.InDelta(t, 1550.0, reread.Points[2].ElevationM, 0.01)
	assert.False(t, NeedsElevation(reread.Points))

	assert.Error(t, tr.SetElevations(filled[:1], []bool{true}))
	assert.Error(t, tr.SetElevations(filled, []bool{true}))
}

func TestSetElevations_UnresolvedNotWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.gpx")
	require.NoError(t, os.WriteFile(path, []byte(noElevationGPX), 0644))

	tr, err := ParseFile(path)
	require.NoError(t, err)

	filled := make([]calculator.TrackPoint, len(tr.Points))
	copy(filled, tr.Points)
	filled[0].ElevationM = 2000
	filled[1].ElevationM = 1990

	require.NoError(t, tr.SetElevations(filled, []bool{true, true, false}))
	assert.Equal(t, 1, tr.MissingElevation)
	require.NoError(t, tr.Save(path))

	reread, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reread.MissingElevation, "unresolved point stays without <ele>")
	assert.Equal(t, 1990.0, reread.Points[1].ElevationM)
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.gpx"))
	assert.Error(t, err)
}

func TestRouteInfoFromPath(t *testing.T) {
	info := RouteInfoFromPath("/data/gpx/Oberstdorf-Gaisalpsee.gpx")
	assert.Equal(t, "Oberstdorf-Gaisalpsee", info.ID)
	assert.Equal(t, "Oberstdorf-Gaisalpsee", info.Name)
	assert.Equal(t, "Oberstdorf-Gaisalpsee.gpx", info.Filename)
	assert.Empty(t, info.Region)
}
