package handlers

import (
	"sort"

	"github.com/open-aims/reefworker/internal/errs"
	"github.com/open-aims/reefworker/internal/regionaldata"
)

// dataSpecCriterion is one criterion's entry in the payload posted to
// the job-dispatch API's admin data-specification endpoint.
type dataSpecCriterion struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Units       string  `json:"units"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	DefaultMin  float64 `json:"default_min"`
	DefaultMax  float64 `json:"default_max"`
}

type dataSpecRegion struct {
	Name     string              `json:"name"`
	Criteria []dataSpecCriterion `json:"criteria"`
}

type dataSpecPayload struct {
	Regions []dataSpecRegion `json:"regions"`
}

// DataSpecificationUpdate implements the DATA_SPECIFICATION_UPDATE job
// type: it re-publishes the worker's currently loaded regional dataset
// to the job-dispatch API so it can refresh whatever it shows callers
// as the admissible per-region criteria bounds. CacheBuster is never
// inspected; its only role is letting the API treat repeated calls as
// non-idempotent.
func DataSpecificationUpdate(rawCtx interface{}, rawInput interface{}) (interface{}, error) {
	ctx := rawCtx.(*Context)
	_ = rawInput.(DataSpecificationUpdateInput)

	data, err := ctx.RegionalCache.Get(ctx.DataDir, ctx.CacheDir)
	if err != nil {
		return nil, errs.Internal(err, "loading regional data")
	}

	payload := buildDataSpecPayload(data)
	if err := ctx.Client.PostDataSpecification(payload); err != nil {
		return nil, err
	}

	return DataSpecificationUpdateOutput{}, nil
}

func buildDataSpecPayload(data *regionaldata.Data) dataSpecPayload {
	regionNames := make([]string, 0, len(data.Regions))
	for name := range data.Regions {
		regionNames = append(regionNames, name)
	}
	sort.Strings(regionNames)

	payload := dataSpecPayload{Regions: make([]dataSpecRegion, 0, len(regionNames))}
	for _, name := range regionNames {
		region := data.Regions[name]
		out := dataSpecRegion{Name: name, Criteria: make([]dataSpecCriterion, 0, len(region.Criteria))}
		for _, id := range criteriaIDsFor(region) {
			c := region.Criteria[id]
			out.Criteria = append(out.Criteria, dataSpecCriterion{
				ID:          c.ID,
				DisplayName: c.DisplayName,
				Units:       c.Units,
				Min:         c.Min,
				Max:         c.Max,
				DefaultMin:  c.ResolvedDefaultMin(),
				DefaultMax:  c.ResolvedDefaultMax(),
			})
		}
		payload.Regions = append(payload.Regions, out)
	}
	return payload
}

func criteriaIDsFor(region regionaldata.Region) []string {
	ids := make([]string, 0, len(region.Criteria))
	for id := range region.Criteria {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
