package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/route-analyzer/internal/calculator"
	"github.com/stuartshay/route-analyzer/internal/config"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		GPXDir:              dir,
		OutputPath:          filepath.Join(dir, "out", "routes-metadata.json"),
		Workers:             2,
		SignificantSlopeDeg: 15,
		GentleSlopeDeg:      3,
		LogLevel:            "error",
	}
}

func TestRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{"fellhorn.gpx": descentGPX})
	cfg := testConfig(dir)

	require.NoError(t, run(context.Background(), cfg, nil))

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	var collection calculator.Collection
	require.NoError(t, json.Unmarshal(data, &collection))
	require.Len(t, collection.Routes, 1)
	assert.Equal(t, "fellhorn", collection.Routes[0].ID)
}

func TestRun_FailedFilesReturnError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"fellhorn.gpx": descentGPX,
		"broken.gpx":   "<gpx",
	})
	cfg := testConfig(dir)
	out := filepath.Join(t.TempDir(), "routes.json")

	err := run(context.Background(), cfg, []string{"-out", out})
	assert.ErrorIs(t, err, errFilesFailed)

	// The output is still written before the failure is reported
	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	var collection calculator.Collection
	require.NoError(t, json.Unmarshal(data, &collection))
	assert.Len(t, collection.Routes, 1)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()

	err := run(context.Background(), testConfig(dir), []string{"-workers", "lots"})
	assert.Error(t, err)

	err = run(context.Background(), testConfig(dir), []string{"-dir", filepath.Join(dir, "missing")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errFilesFailed)
}
