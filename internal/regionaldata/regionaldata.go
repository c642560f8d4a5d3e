package regionaldata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// Cache is a process-wide, load-once slot for the regional dataset.
// The loader is expensive (minutes, in production: it shells out to
// the external assessment library's data-preparation step in spirit,
// here it walks and parses the on-disk region files) so a worker
// warms it once at startup and every handler thereafter gets the
// already-materialized value back from Get under a read lock, without
// reloading it.
//
// This mirrors the single-writer-many-readers discipline of the
// teacher's cache/lru.go (a sync.RWMutex guarding an index map), but
// collapses the LRU's bounded-eviction machinery away entirely: there
// is exactly one cached value for the lifetime of the process, not a
// bounded set of named entries, so a sync.Once-guarded slot is the
// right-sized version of that same idea.
type Cache struct {
	once sync.Once
	mu   sync.RWMutex
	data *Data
	err  error
}

// Get returns the process-wide regional dataset, loading it from
// dataPath on first call. cachePath is accepted for symmetry with the
// other on-disk caches in this worker (internal/paramcache) and to
// keep the call signature stable if a future revision wants to add a
// persisted side-cache; per the canonical (memory-only) design this
// revision never touches it. See DESIGN.md for the discussion of the
// disk-backed variant this specification did not adopt.
func (c *Cache) Get(dataPath, cachePath string) (*Data, error) {
	_ = cachePath
	c.once.Do(func() {
		data, err := Load(dataPath)
		c.mu.Lock()
		c.data, c.err = data, err
		c.mu.Unlock()
	})
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.err
}

// Load reads every "<region>.yaml" file directly under dir and
// assembles them into a single Data value.
func Load(dir string) (*Data, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("regionaldata: reading %s: %w", dir, err)
	}

	regions := make(map[string]Region)
	criteriaSet := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("regionaldata: reading %s: %w", path, err)
		}
		var region Region
		if err := yaml.Unmarshal(raw, &region); err != nil {
			return nil, fmt.Errorf("regionaldata: parsing %s: %w", path, err)
		}
		if region.Name == "" {
			region.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		for id := range region.Criteria {
			criteriaSet[id] = struct{}{}
		}
		regions[region.Name] = region
	}

	criteriaIDs := make([]string, 0, len(criteriaSet))
	for id := range criteriaSet {
		criteriaIDs = append(criteriaIDs, id)
	}
	sort.Strings(criteriaIDs)

	return &Data{Regions: regions, CriteriaIDs: criteriaIDs}, nil
}
