package handlers

import (
	"os"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/errs"
	"github.com/open-aims/reefworker/internal/paramcache"
)

const suitabilityAssessmentKind = "suitability_assessment"

// SuitabilityAssessment implements the SUITABILITY_ASSESSMENT job type.
//
// Unlike RegionalAssessment, this handler is not memoized against the
// disk cache: spec.md §4.H.SUITABILITY_ASSESSMENT calls assess_sites/
// filter_sites unconditionally on every run and ends with "upload...
// delete the local temp file" -- the artifact is a scratch file for
// this one job, not a reusable cache entry.
func SuitabilityAssessment(rawCtx interface{}, rawInput interface{}) (interface{}, error) {
	ctx := rawCtx.(*Context)
	input := rawInput.(SuitabilityAssessmentInput)

	threshold := defaultSuitabilityThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}

	data, err := ctx.RegionalCache.Get(ctx.DataDir, ctx.CacheDir)
	if err != nil {
		return nil, errs.Internal(err, "loading regional data")
	}
	regionData, ok := data.Region(input.Region)
	if !ok {
		return nil, errs.InvalidInput("unknown region %q", input.Region)
	}
	criteria, err := BuildCriteria(regionData, input.Criteria)
	if err != nil {
		return nil, err
	}

	hash := paramcache.Hash(data.CriteriaIDs, paramcache.Parameters{
		Region:    input.Region,
		Criteria:  criteria,
		Threshold: &threshold,
		XDist:     &input.XDist,
		YDist:     &input.YDist,
	})
	path := paramcache.Path(ctx.CacheDir, hash, input.Region, suitabilityAssessmentKind, "geojson")

	siteParams := assessment.SiteParams{
		RegionParams: assessment.RegionParams{Region: input.Region, Criteria: criteria},
		Threshold:    threshold,
		XDist:        input.XDist,
		YDist:        input.YDist,
	}

	candidates, err := ctx.Engine.AssessSites(siteParams)
	if err != nil {
		return nil, errs.Internal(err, "suitability assessment for %q", input.Region)
	}
	sites, err := ctx.Engine.FilterSites(candidates, siteParams)
	if err != nil {
		return nil, errs.Internal(err, "filtering suitability sites for %q", input.Region)
	}

	var writer assessment.FeatureWriter
	geojson, err := writer.Marshal(sites)
	if err != nil {
		return nil, errs.Internal(err, "encoding suitability geojson for %q", input.Region)
	}
	if err := paramcache.WriteAtomic(path, geojson); err != nil {
		return nil, errs.Internal(err, "writing suitability geojson for %q", input.Region)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			ctx.logger().WithError(err).WithField("path", path).Warn("suitability assessment: removing local temp file")
		}
	}()

	const uploadName = "suitable.geojson"
	if err := uploadArtifact(ctx, path, uploadName); err != nil {
		return nil, err
	}

	return SuitabilityAssessmentOutput{GeojsonPath: uploadName}, nil
}
