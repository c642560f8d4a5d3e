package paramcache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path derives the on-disk path of a cached artifact:
// "<cache_dir>/<hash>_<region>_<kind>.<ext>". kind is a short tag such
// as "regional_assessment" or "suitability_assessment"; ext is the
// artifact's file extension without a leading dot.
func Path(cacheDir, hash, region, kind, ext string) string {
	name := fmt.Sprintf("%s_%s_%s.%s", hash, region, kind, ext)
	return filepath.Join(cacheDir, name)
}

// Exists reports whether a cache entry is already present at path. A
// true result is treated as equivalent to having just recomputed the
// artifact: handlers that observe a hit skip calling the assessment
// routines entirely.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic writes data to path by first writing to a temporary
// file in the same directory and renaming it into place, so that a
// concurrent reader never observes a partially written cache entry --
// the disk-cache-safety rule two racing workers computing the same
// fingerprint both rely on.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("paramcache: creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	// Always clean up the temp file on any path that doesn't end in a
	// successful rename.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("paramcache: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("paramcache: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("paramcache: renaming %s to %s: %w", tmpName, path, err)
	}
	succeeded = true
	return nil
}
