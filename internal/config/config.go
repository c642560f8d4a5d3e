// Package config loads and validates the worker's startup configuration
// from its environment, following the env-var contract in the worker's
// external interface spec.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/open-aims/reefworker/internal/errs"
)

// JobType is one of the closed set of job kinds a worker may be
// configured to handle.
type JobType string

const (
	TypeTest                    JobType = "TEST"
	TypeRegionalAssessment      JobType = "REGIONAL_ASSESSMENT"
	TypeSuitabilityAssessment   JobType = "SUITABILITY_ASSESSMENT"
	TypeDataSpecificationUpdate JobType = "DATA_SPECIFICATION_UPDATE"
)

// knownJobTypes is consulted when parsing JOB_TYPES; an unrecognized
// tag is a startup error. It is not consulted by the handler registry
// (internal/registry), which is extensible independently of this set --
// this list only bounds what the *config loader* will accept without
// complaint.
var knownJobTypes = map[JobType]bool{
	TypeTest:                    true,
	TypeRegionalAssessment:      true,
	TypeSuitabilityAssessment:   true,
	TypeDataSpecificationUpdate: true,
}

const (
	defaultPollInterval = 5000 * time.Millisecond
	defaultIdleTimeout  = 600000 * time.Millisecond
	defaultMetricsPort  = 9090
)

// Worker is the immutable configuration a worker process is started
// with, for the lifetime of the process.
type Worker struct {
	APIEndpoint  string
	Username     string
	Password     string
	JobTypes     []JobType
	DataPath     string
	CachePath    string
	AWSRegion    string
	S3Endpoint   string
	PollInterval time.Duration
	IdleTimeout  time.Duration
	SentryDSN    string
	MetricsPort  int
}

// Overrides carries CLI-flag values that take precedence over the
// corresponding environment variable when non-empty/non-zero. The CLI
// entry point (cmd/reefworker) populates this from urfave/cli flags;
// every field is optional.
type Overrides struct {
	APIEndpoint  string
	JobTypes     string
	DataPath     string
	CachePath    string
	AWSRegion    string
	S3Endpoint   string
	PollInterval time.Duration
	IdleTimeout  time.Duration
	MetricsPort  int
}

// Load reads and validates the worker configuration from the process
// environment, applying any non-zero fields of overrides on top.
func Load(overrides Overrides) (Worker, error) {
	get := func(name string) string { return os.Getenv(name) }

	apiEndpoint := firstNonEmpty(overrides.APIEndpoint, get("API_ENDPOINT"))
	username := get("WORKER_USERNAME")
	password := get("WORKER_PASSWORD")
	jobTypesRaw := firstNonEmpty(overrides.JobTypes, get("JOB_TYPES"))
	dataPath := firstNonEmpty(overrides.DataPath, get("DATA_PATH"))
	cachePath := firstNonEmpty(overrides.CachePath, get("CACHE_PATH"))
	awsRegion := firstNonEmpty(overrides.AWSRegion, get("AWS_REGION"))
	s3Endpoint := firstNonEmpty(overrides.S3Endpoint, get("S3_ENDPOINT"))
	sentryDSN := get("SENTRY_DSN")

	required := map[string]string{
		"API_ENDPOINT":     apiEndpoint,
		"WORKER_USERNAME":  username,
		"WORKER_PASSWORD":  password,
		"JOB_TYPES":        jobTypesRaw,
		"DATA_PATH":        dataPath,
		"CACHE_PATH":       cachePath,
		"AWS_REGION":       awsRegion,
	}
	for name, value := range required {
		if value == "" {
			return Worker{}, errs.Config("missing required environment variable %s", name)
		}
	}

	jobTypes, err := parseJobTypes(jobTypesRaw)
	if err != nil {
		return Worker{}, err
	}

	pollInterval := overrides.PollInterval
	if pollInterval == 0 {
		pollInterval, err = durationMillisEnv("POLL_INTERVAL_MS", defaultPollInterval)
		if err != nil {
			return Worker{}, err
		}
	}

	idleTimeout := overrides.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout, err = durationMillisEnv("IDLE_TIMEOUT_MS", defaultIdleTimeout)
		if err != nil {
			return Worker{}, err
		}
	}

	metricsPort := overrides.MetricsPort
	if metricsPort == 0 {
		metricsPort, err = intEnv("METRICS_PORT", defaultMetricsPort)
		if err != nil {
			return Worker{}, err
		}
	}

	return Worker{
		APIEndpoint:  apiEndpoint,
		Username:     username,
		Password:     password,
		JobTypes:     jobTypes,
		DataPath:     dataPath,
		CachePath:    cachePath,
		AWSRegion:    awsRegion,
		S3Endpoint:   s3Endpoint,
		PollInterval: pollInterval,
		IdleTimeout:  idleTimeout,
		SentryDSN:    sentryDSN,
		MetricsPort:  metricsPort,
	}, nil
}

func parseJobTypes(raw string) ([]JobType, error) {
	parts := strings.Split(raw, ",")
	result := make([]JobType, 0, len(parts))
	for _, p := range parts {
		tag := JobType(strings.TrimSpace(p))
		if tag == "" {
			continue
		}
		if !knownJobTypes[tag] {
			return nil, errs.Config("JOB_TYPES: unknown job type %q", tag)
		}
		result = append(result, tag)
	}
	if len(result) == 0 {
		return nil, errs.Config("JOB_TYPES: must name at least one job type")
	}
	return result, nil
}

func durationMillisEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Config("%s: not an integer number of milliseconds: %v", name, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Config("%s: not an integer: %v", name, err)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// String renders the config for --check-config / startup log output,
// redacting the password.
func (w Worker) String() string {
	types := make([]string, len(w.JobTypes))
	for i, t := range w.JobTypes {
		types[i] = string(t)
	}
	return fmt.Sprintf(
		"api_endpoint=%s username=%s job_types=%s data_path=%s cache_path=%s aws_region=%s s3_endpoint=%s poll_interval=%s idle_timeout=%s metrics_port=%d",
		w.APIEndpoint, w.Username, strings.Join(types, ","), w.DataPath, w.CachePath, w.AWSRegion, w.S3Endpoint, w.PollInterval, w.IdleTimeout, w.MetricsPort,
	)
}
