package handlers

import (
	"fmt"
	"os"
	"time"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/errs"
	"github.com/open-aims/reefworker/internal/paramcache"
)

const regionalAssessmentKind = "regional_assessment"

// RegionalAssessment implements the REGIONAL_ASSESSMENT job type.
func RegionalAssessment(rawCtx interface{}, rawInput interface{}) (interface{}, error) {
	ctx := rawCtx.(*Context)
	input := rawInput.(RegionalAssessmentInput)

	hash, params, err := resolveRegionalParams(ctx, input.Region, input.Criteria)
	if err != nil {
		return nil, err
	}

	path := paramcache.Path(ctx.CacheDir, hash, input.Region, regionalAssessmentKind, "tiff")

	if !paramcache.Exists(path) {
		raster, err := ctx.Engine.AssessRegion(assessment.RegionParams{
			Region:   input.Region,
			Criteria: params.Criteria,
		})
		if err != nil {
			return nil, errs.Internal(err, "regional assessment for %q", input.Region)
		}
		if err := writeRasterAtomically(path, raster); err != nil {
			return nil, errs.Internal(err, "writing regional assessment raster for %q", input.Region)
		}
	} else {
		ctx.logger().WithField("path", path).Debug("regional assessment cache hit")
		ctx.cacheMetrics().ObserveCacheHit()
	}

	const uploadName = "regional_assessment.tiff"
	if err := uploadArtifact(ctx, path, uploadName); err != nil {
		return nil, err
	}

	return RegionalAssessmentOutput{CogPath: uploadName}, nil
}

// resolveRegionalParams loads the regional dataset, looks up the
// requested region, merges user criteria overrides, and computes the
// parameter fingerprint in one step for the regional handler.
// SuitabilityAssessment does the same lookup and merge inline, since
// its fingerprint also carries the threshold and distances.
func resolveRegionalParams(ctx *Context, region string, userCriteria map[string]Bounds) (hash string, params paramcache.Parameters, err error) {
	data, err := ctx.RegionalCache.Get(ctx.DataDir, ctx.CacheDir)
	if err != nil {
		return "", paramcache.Parameters{}, errs.Internal(err, "loading regional data")
	}

	regionData, ok := data.Region(region)
	if !ok {
		return "", paramcache.Parameters{}, errs.InvalidInput("unknown region %q", region)
	}

	criteria, err := BuildCriteria(regionData, userCriteria)
	if err != nil {
		return "", paramcache.Parameters{}, err
	}

	params = paramcache.Parameters{Region: region, Criteria: criteria}
	hash = paramcache.Hash(data.CriteriaIDs, params)
	return hash, params, nil
}

func writeRasterAtomically(path string, raster assessment.Raster) error {
	tmpPath := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	writer := assessment.NewCOGWriter()
	if err := writer.Write(tmpPath, raster); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

func uploadArtifact(ctx *Context, localPath, targetName string) error {
	targetURI := fmt.Sprintf("%s/%s", ctx.StorageURI, targetName)
	if err := ctx.Store.Upload(localPath, targetURI); err != nil {
		return err
	}
	return nil
}
