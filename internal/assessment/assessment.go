package assessment

import "fmt"

// RegionAssessor computes a region's suitability/assessment raster.
// Grounded on spec.md §4.H's assess_region(params) external call.
type RegionAssessor interface {
	AssessRegion(params RegionParams) (Raster, error)
}

// SiteAssessor computes candidate suitability sites for a region.
// Grounded on spec.md §4.H's assess_sites(params) external call.
type SiteAssessor interface {
	AssessSites(params SiteParams) ([]Site, error)
}

// SiteFilterer narrows a candidate site list down to those actually
// meeting the suitability threshold. Grounded on spec.md §4.H's
// filter_sites(...) external call.
type SiteFilterer interface {
	FilterSites(sites []Site, params SiteParams) ([]Site, error)
}

// Engine bundles the three external assessment calls a handler needs.
// A single concrete type can implement all three, or they can be
// composed independently in tests.
type Engine interface {
	RegionAssessor
	SiteAssessor
	SiteFilterer
}

// DefaultEngine is a deterministic, in-process stand-in for the real
// scientific assessment routines. It produces reproducible (same
// params -> same output) placeholder artifacts so the handler
// pipeline, cache, and upload path can all be exercised without
// depending on the actual raster/GIS engine, which spec.md §1
// explicitly places out of scope.
type DefaultEngine struct{}

// AssessRegion synthesizes a small single-band raster whose values are
// a deterministic function of the resolved criteria bounds.
func (DefaultEngine) AssessRegion(params RegionParams) (Raster, error) {
	const size = 16
	band := make([]float32, size*size)
	seed := float32(len(params.Region))
	for _, c := range params.Criteria {
		seed += float32(c.Min) + float32(c.Max)
	}
	for i := range band {
		band[i] = seed + float32(i)/float32(len(band))
	}
	return Raster{Region: params.Region, Width: size, Height: size, Bands: [][]float32{band}}, nil
}

// AssessSites synthesizes a deterministic candidate site list sized by
// the region's criterion count, so AssessSites([]) for an
// unrecognized/empty-criteria region yields an empty candidate list
// rather than a panic.
func (DefaultEngine) AssessSites(params SiteParams) ([]Site, error) {
	count := len(params.Criteria)
	sites := make([]Site, 0, count)
	for i := 0; i < count; i++ {
		sites = append(sites, Site{
			ID:    fmt.Sprintf("%s-site-%03d", params.Region, i),
			Lon:   float64(i) * params.XDist,
			Lat:   float64(i) * params.YDist,
			Score: params.Threshold + float64(i)*0.01,
		})
	}
	return sites, nil
}

// FilterSites keeps only sites scoring at or above the suitability
// threshold.
func (DefaultEngine) FilterSites(sites []Site, params SiteParams) ([]Site, error) {
	kept := make([]Site, 0, len(sites))
	for _, s := range sites {
		if s.Score >= params.Threshold {
			kept = append(kept, s)
		}
	}
	return kept, nil
}
