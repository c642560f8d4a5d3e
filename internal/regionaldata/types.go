// Package regionaldata owns the large, read-mostly dataset of
// per-region criteria bounds and display metadata, loaded once per
// process and shared lock-free by every subsequent reader.
package regionaldata

// Criterion describes one environmental variable's admissible bounds
// for a single region, plus the display metadata and default bounds
// the API needs to render it. When a caller's request omits a value,
// the handlers' bounds merging falls back to Min/Max.
type Criterion struct {
	ID          string  `yaml:"id"`
	DisplayName string  `yaml:"display_name"`
	Units       string  `yaml:"units"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`

	// DefaultMin/DefaultMax are the bounds advertised to callers as
	// the region's suggested default window. When a region file
	// omits them, they fall back to Min/Max (see
	// Criterion.ResolvedDefaultMin and ResolvedDefaultMax).
	DefaultMin *float64 `yaml:"default_min,omitempty"`
	DefaultMax *float64 `yaml:"default_max,omitempty"`
}

// Region is one region's full set of criteria bounds.
type Region struct {
	Name     string               `yaml:"name"`
	Criteria map[string]Criterion `yaml:"criteria"`
}

// Data is the complete, effectively-immutable regional dataset. Once
// constructed by Load, no field is ever mutated; concurrent readers
// need no coordination.
type Data struct {
	Regions map[string]Region

	// CriteriaIDs lists every criterion id known across all regions,
	// sorted. This is the "fixed sorted order over the global
	// criteria registry" the parameter-hash component (internal/
	// paramcache) canonicalizes against, so that two semantically
	// equal parameter sets always hash identically regardless of the
	// order criteria appeared in a request payload.
	CriteriaIDs []string
}

// Region looks up a region by name. The second return value is false
// if the region is unknown.
func (d *Data) Region(name string) (Region, bool) {
	r, ok := d.Regions[name]
	return r, ok
}

// Criterion looks up one criterion within a region.
func (r Region) Criterion(id string) (Criterion, bool) {
	c, ok := r.Criteria[id]
	return c, ok
}

// ResolvedDefaultMin returns the display default minimum, falling
// back to the hard bound when the region file did not specify one.
func (c Criterion) ResolvedDefaultMin() float64 {
	if c.DefaultMin != nil {
		return *c.DefaultMin
	}
	return c.Min
}

// ResolvedDefaultMax returns the display default maximum, falling
// back to the hard bound when the region file did not specify one.
func (c Criterion) ResolvedDefaultMax() float64 {
	if c.DefaultMax != nil {
		return *c.DefaultMax
	}
	return c.Max
}
