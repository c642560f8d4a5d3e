package assessment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-aims/reefworker/internal/paramcache"
)

func TestDefaultEngineIsDeterministic(t *testing.T) {
	var eng DefaultEngine
	params := RegionParams{
		Region:   "GBR",
		Criteria: []paramcache.Criterion{{ID: "depth", Min: 5, Max: 30}},
	}
	r1, err := eng.AssessRegion(params)
	require.NoError(t, err)
	r2, err := eng.AssessRegion(params)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestFilterSitesKeepsOnlyAboveThreshold(t *testing.T) {
	var eng DefaultEngine
	params := SiteParams{
		RegionParams: RegionParams{Region: "GBR", Criteria: make([]paramcache.Criterion, 5)},
		Threshold:    0.5,
		XDist:        10,
		YDist:        10,
	}
	sites, err := eng.AssessSites(params)
	require.NoError(t, err)
	require.Len(t, sites, 5)

	kept, err := eng.FilterSites(sites, params)
	require.NoError(t, err)
	for _, s := range kept {
		assert.GreaterOrEqual(t, s.Score, params.Threshold)
	}
	assert.Len(t, kept, 5) // scores start at threshold and only increase
}

func TestFilterSitesEmptyWhenNoCandidates(t *testing.T) {
	var eng DefaultEngine
	params := SiteParams{RegionParams: RegionParams{Region: "GBR"}, Threshold: 0.9}
	sites, err := eng.AssessSites(params)
	require.NoError(t, err)
	assert.Empty(t, sites)

	kept, err := eng.FilterSites(sites, params)
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestCOGWriterWritesExpectedSize(t *testing.T) {
	writer := COGWriter{TileSize: 8, WriterThreads: 4}
	raster := Raster{Region: "GBR", Width: 16, Height: 16, Bands: [][]float32{make([]float32, 16*16)}}
	for i := range raster.Bands[0] {
		raster.Bands[0][i] = float32(i)
	}

	path := filepath.Join(t.TempDir(), "out.tiff")
	require.NoError(t, writer.Write(path, raster))

	info, err := os.Stat(path)
	require.NoError(t, err)
	headerSize := int64(4 + 4 + 4 + 4)
	tiles := int64((16 / 8) * (16 / 8))
	bytesPerTile := int64(8*8) * 4
	assert.Equal(t, headerSize+tiles*bytesPerTile, info.Size())
}

func TestCOGWriterDeterministicAcrossThreadCounts(t *testing.T) {
	raster := Raster{Region: "GBR", Width: 16, Height: 16, Bands: [][]float32{make([]float32, 16*16)}}
	for i := range raster.Bands[0] {
		raster.Bands[0][i] = float32(i) * 1.5
	}

	path1 := filepath.Join(t.TempDir(), "a.tiff")
	path2 := filepath.Join(t.TempDir(), "b.tiff")
	require.NoError(t, COGWriter{TileSize: 8, WriterThreads: 1}.Write(path1, raster))
	require.NoError(t, COGWriter{TileSize: 8, WriterThreads: 4}.Write(path2, raster))

	b1, err := os.ReadFile(path1)
	require.NoError(t, err)
	b2, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestFeatureWriterEmptyIsNull(t *testing.T) {
	var w FeatureWriter
	data, err := w.Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestFeatureWriterNonEmpty(t *testing.T) {
	var w FeatureWriter
	data, err := w.Marshal([]Site{{ID: "s1", Lon: 1, Lat: 2, Score: 0.9}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "FeatureCollection")
	assert.Contains(t, string(data), "s1")
}
