// Package assessment models the external scientific assessment
// routines spec.md §1 places out of scope ("opaque pure functions
// assess(params) -> artifact"). It defines narrow interfaces for the
// region/suitability assessment calls and the raster/feature writers
// a handler needs, plus a default deterministic implementation so the
// rest of the worker pipeline (caching, upload, reporting) can be
// exercised end to end without a real raster engine.
package assessment

import "github.com/open-aims/reefworker/internal/paramcache"

// Raster is a minimal in-memory raster result from a region
// assessment: enough structure for a COG writer to tile, without
// modeling real geospatial projection/band semantics the worker
// itself never inspects.
type Raster struct {
	Region string
	Width  int
	Height int
	Bands  [][]float32 // one flattened Width*Height slice per band
}

// Site is one candidate location from a suitability assessment.
type Site struct {
	ID    string
	Lon   float64
	Lat   float64
	Score float64
}

// RegionParams is the resolved input to a regional assessment call.
type RegionParams struct {
	Region   string
	Criteria []paramcache.Criterion
}

// SiteParams is the resolved input to a suitability assessment call;
// it extends RegionParams with the three fields unique to suitability
// (spec.md §9: "suitability is regional + 3 extra fields").
type SiteParams struct {
	RegionParams
	Threshold float64
	XDist     float64
	YDist     float64
}
