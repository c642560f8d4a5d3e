// Package handlers implements the four job-type handlers: the
// adapter from typed input to the external assessment routines
// (internal/assessment), object-store upload, and typed output.
//
// Per spec.md §9's "Handler-criteria field list" design note, this
// implementation adopts the recommended cleaner shape: job inputs
// carry a single Criteria map[string]Bounds keyed by criterion id, decoded from a
// flexible JSON object, rather than a hard-coded field per criterion
// (depth_min, depth_max, ...). See DESIGN.md for the Open Question
// resolution.
package handlers

import (
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/authclient"
	"github.com/open-aims/reefworker/internal/objectstore"
	"github.com/open-aims/reefworker/internal/regionaldata"
)

// Bounds is one criterion's optional user-supplied override.
// Per-field optionality: a nil Min or Max means "inherit from the
// region's default for this criterion."
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// TestInput/TestOutput back the TEST job type, which exists purely
// for plumbing verification (spec.md §4.H).
type TestInput struct {
	ID int `json:"id,omitempty"`
}

type TestOutput struct{}

// RegionalAssessmentInput is the REGIONAL_ASSESSMENT job's input.
type RegionalAssessmentInput struct {
	Region   string            `json:"region"`
	Criteria map[string]Bounds `json:"criteria,omitempty"`
}

type RegionalAssessmentOutput struct {
	CogPath string `json:"cog_path"`
}

// defaultSuitabilityThreshold stands in for the "external constant"
// spec.md §4.H.2 says the suitability handler falls back to when the
// caller's threshold is null. The real value lives in the (out of
// scope) assessment library; this is a reasonable stand-in so the
// handler pipeline is fully exercisable without it.
const defaultSuitabilityThreshold = 0.5

// SuitabilityAssessmentInput is the SUITABILITY_ASSESSMENT job's
// input: a RegionalAssessmentInput plus the three fields unique to
// site suitability.
type SuitabilityAssessmentInput struct {
	Region    string            `json:"region"`
	Criteria  map[string]Bounds `json:"criteria,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
	XDist     float64           `json:"x_dist"`
	YDist     float64           `json:"y_dist"`
}

type SuitabilityAssessmentOutput struct {
	GeojsonPath string `json:"geojson_path"`
}

// DataSpecificationUpdateInput is the DATA_SPECIFICATION_UPDATE job's
// input. CacheBuster is intentionally opaque: the worker never
// interprets it, only that its presence signals the API to treat the
// call as non-idempotent (spec.md §4.H.3).
type DataSpecificationUpdateInput struct {
	CacheBuster string `json:"cache_buster,omitempty"`
}

type DataSpecificationUpdateOutput struct{}

// CacheMetrics receives an observation every time a handler serves a
// disk-cache hit instead of recomputing an assessment artifact. The
// worker runtime's adminserver.Collector implements this (among other
// methods); handlers only depend on this narrow slice of it.
type CacheMetrics interface {
	ObserveCacheHit()
}

// Context is the per-job immutable value passed to every handler.
// Created at dispatch by the worker runtime; dropped at job
// completion.
type Context struct {
	StorageURI string
	Region     string
	Endpoint   string
	CacheDir   string
	DataDir    string

	Client        *authclient.Client
	RegionalCache *regionaldata.Cache
	Engine        assessment.Engine
	Store         *objectstore.Client
	Log           *logrus.Entry
	Clock         clock.Clock
	Metrics       CacheMetrics
}

func (c *Context) clock() clock.Clock {
	if c.Clock == nil {
		return clock.New()
	}
	return c.Clock
}

func (c *Context) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Log
}

type noopCacheMetrics struct{}

func (noopCacheMetrics) ObserveCacheHit() {}

func (c *Context) cacheMetrics() CacheMetrics {
	if c.Metrics == nil {
		return noopCacheMetrics{}
	}
	return c.Metrics
}
