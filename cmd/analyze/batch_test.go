package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/elevation"
	"github.com/stuartshay/route-analyzer/internal/track"
)

const descentGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="47.40" lon="10.28"><ele>2000</ele></trkpt>
    <trkpt lat="47.41" lon="10.28"><ele>1950</ele></trkpt>
    <trkpt lat="47.42" lon="10.28"><ele>1900</ele></trkpt>
  </trkseg></trk>
</gpx>`

const flatGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="47.40" lon="10.28"></trkpt>
    <trkpt lat="47.41" lon="10.28"></trkpt>
    <trkpt lat="47.42" lon="10.28"></trkpt>
  </trkseg></trk>
</gpx>`

const singlePointGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg><trkpt lat="47.40" lon="10.28"><ele>2000</ele></trkpt></trkseg></trk>
</gpx>`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

type recordingWriter struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (w *recordingWriter) UpsertRoute(_ context.Context, route calculator.RouteMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.ids = append(w.ids, route.ID)
	return nil
}

// descendingElevationServer answers OpenTopoData requests with an
// elevation that drops 50 m per 0.01 degree of latitude
func descendingElevationServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locations := strings.Split(r.URL.Query().Get("locations"), "|")
		results := make([]map[string]interface{}, len(locations))
		for i := range locations {
			results[i] = map[string]interface{}{"elevation": 2000 - 50*float64(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "OK", "results": results})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestListGPX(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.gpx":     descentGPX,
		"a.GPX":     descentGPX,
		"notes.txt": "not a track",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.gpx"), 0755))

	files, err := listGPX(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.GPX", filepath.Base(files[0]))
	assert.Equal(t, "b.gpx", filepath.Base(files[1]))

	_, err = listGPX(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBatchRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"fellhorn.gpx":  descentGPX,
		"nebelhorn.gpx": descentGPX,
		"summit.gpx":    singlePointGPX,
		"broken.gpx":    "<gpx",
	})
	files, err := listGPX(dir)
	require.NoError(t, err)

	store := &recordingWriter{}
	b := &batch{analyzer: calculator.NewAnalyzer(calculator.DefaultThresholds()), store: store, workers: 3}

	collection, sum, err := b.run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, summary{Files: 4, Analyzed: 2, Skipped: 1, Failed: 1, Persisted: 2, Elapsed: sum.Elapsed}, sum)
	require.Len(t, collection.Routes, 2)
	assert.Equal(t, "fellhorn", collection.Routes[0].ID, "routes keep file order")
	assert.Equal(t, "Allgäu Alps West", collection.Routes[0].Region)
	assert.Equal(t, "nebelhorn", collection.Routes[1].ID)
	assert.Equal(t, "Allgäu Alps Central", collection.Routes[1].Region)
	assert.ElementsMatch(t, []string{"fellhorn", "nebelhorn"}, store.ids)
}

func TestBatchRun_StoreFailureCountsAsFailed(t *testing.T) {
	dir := writeFiles(t, map[string]string{"fellhorn.gpx": descentGPX})
	files, err := listGPX(dir)
	require.NoError(t, err)

	b := &batch{
		analyzer: calculator.NewAnalyzer(calculator.DefaultThresholds()),
		store:    &recordingWriter{err: errors.New("connection refused")},
		workers:  1,
	}

	collection, sum, err := b.run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, collection.Routes)
}

func TestBatchRun_BackfillAndWriteBack(t *testing.T) {
	server := descendingElevationServer(t)
	dir := writeFiles(t, map[string]string{"oberstdorf-flat.gpx": flatGPX})
	files, err := listGPX(dir)
	require.NoError(t, err)

	provider := elevation.NewOpenTopoDataClient(server.URL, "eudem25m", 5*time.Second)
	b := &batch{
		analyzer:   calculator.NewAnalyzer(calculator.DefaultThresholds()),
		backfiller: elevation.NewBackfiller(provider, nil, elevation.Options{Delay: time.Millisecond}),
		workers:    1,
		writeBack:  true,
	}

	collection, sum, err := b.run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Backfilled)
	assert.Equal(t, 1, sum.WrittenBack)

	require.Len(t, collection.Routes, 1)
	route := collection.Routes[0]
	assert.Equal(t, 100, route.DescentM)
	assert.Equal(t, 1900, route.ElevationMinM)
	assert.Equal(t, 2000, route.ElevationMaxM)

	// The source file now carries the backfilled profile
	saved, err := track.ParseFile(files[0])
	require.NoError(t, err)
	assert.False(t, track.NeedsElevation(saved.Points))
	assert.Equal(t, 1950.0, saved.Points[1].ElevationM)
}

func TestBatchRun_PartialBackfillWriteBack(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		call := calls
		mu.Unlock()
		if call > 1 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		locations := strings.Split(r.URL.Query().Get("locations"), "|")
		results := make([]map[string]interface{}, len(locations))
		for i := range locations {
			results[i] = map[string]interface{}{"elevation": 2000 - 10*float64(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "OK", "results": results})
	}))
	t.Cleanup(server.Close)

	dir := writeFiles(t, map[string]string{"oberstdorf-flat.gpx": flatGPX})
	files, err := listGPX(dir)
	require.NoError(t, err)

	provider := elevation.NewOpenTopoDataClient(server.URL, "eudem25m", 5*time.Second)
	b := &batch{
		analyzer:   calculator.NewAnalyzer(calculator.DefaultThresholds()),
		backfiller: elevation.NewBackfiller(provider, nil, elevation.Options{ChunkSize: 2, Delay: time.Millisecond}),
		workers:    1,
		writeBack:  true,
	}

	_, sum, err := b.run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.WrittenBack)

	// The point from the failed chunk keeps no elevation on disk, so the
	// next run backfills it again
	saved, err := track.ParseFile(files[0])
	require.NoError(t, err)
	require.Len(t, saved.Points, 3)
	assert.Equal(t, 2000.0, saved.Points[0].ElevationM)
	assert.Equal(t, 1990.0, saved.Points[1].ElevationM)
	assert.Equal(t, 1, saved.MissingElevation)
}

func TestBatchRun_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.gpx": flatGPX, "b.gpx": flatGPX})
	files, err := listGPX(dir)
	require.NoError(t, err)

	provider := elevation.NewOpenTopoDataClient("http://127.0.0.1:1", "eudem25m", time.Second)
	b := &batch{
		analyzer:   calculator.NewAnalyzer(calculator.DefaultThresholds()),
		backfiller: elevation.NewBackfiller(provider, nil, elevation.Options{Delay: time.Hour}),
		workers:    1,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = b.run(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "routes-metadata.json")
	collection := &calculator.Collection{Routes: []calculator.RouteMetadata{{
		ID:            "nebelhorn",
		Name:          "nebelhorn",
		Filename:      "nebelhorn.gpx",
		Region:        "Allgäu Alps Central",
		DistanceKM:    2.22,
		DescentM:      100,
		PrimaryAspect: calculator.AspectN,
	}}}

	require.NoError(t, writeCollection(path, collection))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"routes": [`)
	assert.Contains(t, string(data), `"primaryAspect": "N"`)
	assert.Contains(t, string(data), `"aspectBreakdown": {`)

	var decoded calculator.Collection
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *collection, decoded)
}
