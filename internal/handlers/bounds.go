package handlers

import (
	"sort"

	"github.com/open-aims/reefworker/internal/errs"
	"github.com/open-aims/reefworker/internal/paramcache"
	"github.com/open-aims/reefworker/internal/regionaldata"
)

// mergeOne resolves one criterion's bounds: a user-supplied min/max
// overrides the regional default when non-nil, otherwise the regional
// value is inherited. Callers only reach this once they already know
// the criterion has a regional entry -- see BuildCriteria for the
// omit/error decision that has to happen before merging.
func mergeOne(id string, regional regionaldata.Criterion, user Bounds) paramcache.Criterion {
	min, max := regional.Min, regional.Max
	if user.Min != nil {
		min = *user.Min
	}
	if user.Max != nil {
		max = *user.Max
	}
	return paramcache.Criterion{ID: id, Min: min, Max: max}
}

// BuildCriteria merges a caller's per-criterion overrides with a
// region's defaults, translating the source's exception-based bounds
// checking (spec.md §9) into a plain (result, error) return.
//
// Every criterion present in the region is included in the result,
// merged with any matching user override. Any user-supplied criterion
// id with no regional entry is an error unless both its min and max
// are nil (in which case it is silently omitted, per spec.md §4.H's
// bounds-merging rule).
func BuildCriteria(region regionaldata.Region, userCriteria map[string]Bounds) ([]paramcache.Criterion, error) {
	result := make([]paramcache.Criterion, 0, len(region.Criteria))
	seen := make(map[string]bool, len(region.Criteria))

	regionIDs := make([]string, 0, len(region.Criteria))
	for id := range region.Criteria {
		regionIDs = append(regionIDs, id)
	}
	sort.Strings(regionIDs)

	for _, id := range regionIDs {
		regCrit := region.Criteria[id]
		user := userCriteria[id]
		result = append(result, mergeOne(id, regCrit, user))
		seen[id] = true
	}

	userIDs := make([]string, 0, len(userCriteria))
	for id := range userCriteria {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		user := userCriteria[id]
		if user.Min == nil && user.Max == nil {
			continue // omitted: no regional entry, no user value either
		}
		return nil, errs.InvalidInput("criterion %q has no regional entry for region %q", id, region.Name)
	}

	return result, nil
}
