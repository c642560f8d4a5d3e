// Package registry implements the handler registry: a map from job
// type tag to a (handler, input schema, output schema) registration,
// populated at startup and read-only thereafter.
//
// This generalizes the teacher's worker.Worker.Tasks map
// (_examples/diffeo-go-coordinate/worker/worker.go), which looks up a
// plain function by a string task name with no schema validation.
// Here the lookup key is the job type tag string (any tag may be
// registered, independently of config.JobType), and dispatch additionally
// decodes the raw payload against a registered input schema and
// type-checks the handler's result against an output schema before
// ever handing either to the caller -- the "validates payloads on
// dispatch" requirement the teacher's task map does not need, because
// Coordinate work units there are untyped maps end to end.
package registry

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/open-aims/reefworker/internal/errs"
)

// Handler processes one decoded job input and produces a typed output.
// ctx is whatever per-job context value the caller's HandlerContext
// type maps to; handlers type-assert it as needed.
type Handler func(ctx interface{}, input interface{}) (interface{}, error)

// Schema validates a decoded value against a job type's expected shape.
// Decode unmarshals raw JSON into a concrete value of the expected
// type; Check confirms a handler's output is of the expected type.
type Schema interface {
	Decode(raw json.RawMessage) (interface{}, error)
	Check(value interface{}) error
}

type registration struct {
	handler Handler
	input   Schema
	output  Schema
}

// Registry maps job type tag to its registration. It is built up
// during startup via Register and is never mutated again once the
// worker begins polling, so dispatch needs no locking.
type Registry struct {
	entries map[string]registration
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register associates a job type tag with a handler and its input/
// output schemas, logging the registration at debug level. Calling
// Register again for the same tag replaces the previous registration
// without error (last writer wins); this is intentional so that tests
// can override a production handler for one job type without
// rebuilding the whole registry.
func (r *Registry) Register(jobType string, handler Handler, input, output Schema) {
	r.entries[jobType] = registration{handler: handler, input: input, output: output}
	logrus.WithField("job_type", jobType).Debug("registry: registered handler")
}

// Dispatch looks up jobType, decodes rawPayload against its input
// schema, invokes the handler, and checks the result against the
// output schema.
func (r *Registry) Dispatch(jobType string, rawPayload json.RawMessage, ctx interface{}) (interface{}, error) {
	reg, ok := r.entries[jobType]
	if !ok {
		return nil, errs.UnknownJobType(jobType)
	}

	input, err := reg.input.Decode(rawPayload)
	if err != nil {
		return nil, errs.InvalidInput("decoding input for job type %q: %v", jobType, err)
	}

	output, err := reg.handler(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := reg.output.Check(output); err != nil {
		return nil, errs.Internal(err, "handler for job type %q produced an invalid output", jobType)
	}
	return output, nil
}

// Registered reports whether jobType has a registration, without
// dispatching anything. Dispatch does its own lookup and reports an
// unregistered type as errs.UnknownJobType.
func (r *Registry) Registered(jobType string) bool {
	_, ok := r.entries[jobType]
	return ok
}
