package assessment

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
)

// COGWriter writes a Raster out as a tiled, Cloud-Optimized-GeoTIFF-
// shaped file: a small fixed header followed by one record per tile,
// each tile written independently so WriterThreads goroutines can
// produce them concurrently -- mirroring spec.md §4.H's "tile size
// 256 and 4 writer threads" requirement, and grounded on the same
// goroutine-per-unit-of-work shape the teacher's worker.doWork uses
// for concurrent attempts, here applied to tiles of one raster
// instead of independent jobs.
//
// The format is a deterministic placeholder, not a byte-for-byte
// valid GeoTIFF: spec.md §1 places the real raster/GIS encoding
// outside the worker's scope. What matters for the worker's own
// correctness properties (cache hit equivalence, byte-identical
// re-uploads) is that the same Raster always serializes to the same
// bytes, and that concurrent tile writers never corrupt the file.
type COGWriter struct {
	TileSize      int
	WriterThreads int
}

// NewCOGWriter returns a writer using spec.md's fixed tile size and
// writer-thread count.
func NewCOGWriter() COGWriter {
	return COGWriter{TileSize: 256, WriterThreads: 4}
}

const cogMagic = "RGCG" // ReefGuide Cloud-optimized Geotiff (placeholder format)

// Write renders raster as a tiled file at path. Each tile's byte
// offset is computed in advance so tile goroutines can write with
// os.File.WriteAt concurrently without any shared-state coordination
// beyond the *os.File itself, which is safe for non-overlapping
// WriteAt ranges.
func (w COGWriter) Write(path string, raster Raster) error {
	if w.TileSize <= 0 {
		return fmt.Errorf("assessment: COGWriter.TileSize must be positive")
	}
	if len(raster.Bands) == 0 {
		return fmt.Errorf("assessment: raster has no bands")
	}

	tilesX := (raster.Width + w.TileSize - 1) / w.TileSize
	tilesY := (raster.Height + w.TileSize - 1) / w.TileSize
	numTiles := tilesX * tilesY
	bytesPerTile := int64(w.TileSize*w.TileSize) * 4 // float32 per pixel

	headerSize := int64(len(cogMagic) + 4 + 4 + 4) // magic + width + height + tileSize
	fileSize := headerSize + int64(numTiles)*bytesPerTile

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("assessment: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(fileSize); err != nil {
		return fmt.Errorf("assessment: truncating %s: %w", path, err)
	}

	header := make([]byte, headerSize)
	copy(header, cogMagic)
	binary.BigEndian.PutUint32(header[4:], uint32(raster.Width))
	binary.BigEndian.PutUint32(header[8:], uint32(raster.Height))
	binary.BigEndian.PutUint32(header[12:], uint32(w.TileSize))
	if _, err := f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("assessment: writing header of %s: %w", path, err)
	}

	band := raster.Bands[0]
	threads := w.WriterThreads
	if threads <= 0 {
		threads = 1
	}

	tileIndices := make(chan int, numTiles)
	for i := 0; i < numTiles; i++ {
		tileIndices <- i
	}
	close(tileIndices)

	var wg sync.WaitGroup
	errCh := make(chan error, numTiles)
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tileIdx := range tileIndices {
				tile := encodeTile(band, raster.Width, raster.Height, w.TileSize, tileIdx, tilesX)
				offset := headerSize + int64(tileIdx)*bytesPerTile
				if _, err := f.WriteAt(tile, offset); err != nil {
					errCh <- fmt.Errorf("assessment: writing tile %d of %s: %w", tileIdx, path, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	if err, ok := <-errCh; ok {
		return err
	}
	return nil
}

// encodeTile extracts one tileSize x tileSize block of band (row-major,
// width x height) as big-endian float32 bytes, zero-padding any pixels
// past the raster's actual extent.
func encodeTile(band []float32, width, height, tileSize, tileIdx, tilesX int) []byte {
	tileRow := tileIdx / tilesX
	tileCol := tileIdx % tilesX
	buf := make([]byte, tileSize*tileSize*4)

	for y := 0; y < tileSize; y++ {
		srcY := tileRow*tileSize + y
		if srcY >= height {
			continue
		}
		for x := 0; x < tileSize; x++ {
			srcX := tileCol*tileSize + x
			if srcX >= width {
				continue
			}
			value := band[srcY*width+srcX]
			off := (y*tileSize + x) * 4
			binary.BigEndian.PutUint32(buf[off:], math.Float32bits(value))
		}
	}
	return buf
}
