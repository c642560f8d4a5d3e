package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/objectstore"
	"github.com/open-aims/reefworker/internal/regionaldata"
)

func writeTestRegionFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

// fakeCacheMetrics records ObserveCacheHit calls for assertions,
// standing in for adminserver.Collector in tests.
type fakeCacheMetrics struct {
	hits int32
}

func (f *fakeCacheMetrics) ObserveCacheHit() {
	atomic.AddInt32(&f.hits, 1)
}

func newTestContext(t *testing.T, dataDir string, uploadHandler http.HandlerFunc) (*Context, *int32) {
	t.Helper()
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if uploadHandler != nil {
			uploadHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := objectstore.New("us-west-2", srv.URL, nil)
	store.Clock = clock.NewMock()

	return &Context{
		StorageURI:    "s3://bucket/prefix",
		DataDir:       dataDir,
		CacheDir:      t.TempDir(),
		RegionalCache: &regionaldata.Cache{},
		Engine:        assessment.DefaultEngine{},
		Store:         store,
		Metrics:       &fakeCacheMetrics{},
	}, &attempts
}

const testRegionYAML = `
name: GBR
criteria:
  depth:
    id: depth
    display_name: Depth
    units: m
    min: 0
    max: 40
`

func TestRegionalAssessmentHappyPath(t *testing.T) {
	dataDir := t.TempDir()
	writeTestRegionFile(t, dataDir, "gbr.yaml", testRegionYAML)
	ctx, uploads := newTestContext(t, dataDir, nil)

	out, err := RegionalAssessment(ctx, RegionalAssessmentInput{Region: "GBR"})
	require.NoError(t, err)
	result := out.(RegionalAssessmentOutput)
	assert.Equal(t, "regional_assessment.tiff", result.CogPath)
	assert.Equal(t, int32(1), atomic.LoadInt32(uploads))
}

func TestRegionalAssessmentUnknownRegion(t *testing.T) {
	dataDir := t.TempDir()
	writeTestRegionFile(t, dataDir, "gbr.yaml", testRegionYAML)
	ctx, _ := newTestContext(t, dataDir, nil)

	_, err := RegionalAssessment(ctx, RegionalAssessmentInput{Region: "NOPE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_input")
}

func TestRegionalAssessmentCacheHitSkipsCompute(t *testing.T) {
	dataDir := t.TempDir()
	writeTestRegionFile(t, dataDir, "gbr.yaml", testRegionYAML)
	ctx, uploads := newTestContext(t, dataDir, nil)

	_, err := RegionalAssessment(ctx, RegionalAssessmentInput{Region: "GBR"})
	require.NoError(t, err)

	entries, err := os.ReadDir(ctx.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	cachedPath := filepath.Join(ctx.CacheDir, entries[0].Name())
	before, err := os.ReadFile(cachedPath)
	require.NoError(t, err)

	fm := ctx.Metrics.(*fakeCacheMetrics)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fm.hits), "first run computes, it is not a cache hit")

	_, err = RegionalAssessment(ctx, RegionalAssessmentInput{Region: "GBR"})
	require.NoError(t, err)

	after, err := os.ReadFile(cachedPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int32(2), atomic.LoadInt32(uploads))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fm.hits), "second run must observe a cache hit")
}

func TestRegionalAssessmentRejectsUnknownCriterion(t *testing.T) {
	dataDir := t.TempDir()
	writeTestRegionFile(t, dataDir, "gbr.yaml", testRegionYAML)
	ctx, _ := newTestContext(t, dataDir, nil)

	min := 1.0
	_, err := RegionalAssessment(ctx, RegionalAssessmentInput{
		Region:   "GBR",
		Criteria: map[string]Bounds{"turbidity": {Min: &min}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_input")
}
