package authclient

import (
	"encoding/json"
	"net/http"

	"github.com/jtacoma/uritemplates"

	"github.com/open-aims/reefworker/internal/errs"
)

// Assignment mirrors the job-dispatch API's claim response body.
type Assignment struct {
	AssignmentID  string          `json:"assignment_id"`
	JobID         string          `json:"job_id"`
	Type          string          `json:"type"`
	InputPayload  json.RawMessage `json:"input_payload"`
	StorageURI    string          `json:"storage_uri"`
	StorageScheme string          `json:"storage_scheme"`
}

// PollJob requests a claim for any of the given job types, identifying
// itself as workerID so the dispatch API (and anyone watching its logs)
// can tell fleet members apart. ok is false when the API replied with
// NoJob (204 or empty body); assignment is only meaningful when ok is
// true.
func (c *Client) PollJob(types []string, workerID string) (assignment Assignment, ok bool, err error) {
	tmpl, err := uritemplates.Parse("/jobs/poll{?types,worker_id}")
	if err != nil {
		return Assignment{}, false, errs.Internal(err, "authclient: parsing poll template")
	}
	expanded, err := tmpl.Expand(map[string]interface{}{"types": types, "worker_id": workerID})
	if err != nil {
		return Assignment{}, false, errs.Internal(err, "authclient: expanding poll template")
	}
	u, err := c.baseURL.Parse(expanded)
	if err != nil {
		return Assignment{}, false, errs.Internal(err, "authclient: resolving poll URL")
	}

	// A single request decides everything: rawDo leaves assign at its
	// zero value for both a 204 response and a 200 with an empty
	// body, and decodes into it otherwise. Polling is a claim, not an
	// idempotent read, so this never issues a second real request to
	// "see" the outcome -- do() already folds the
	// 401-refresh-and-retry-once policy into this one call.
	var assign Assignment
	if err := c.do(http.MethodGet, u, nil, &assign); err != nil {
		return Assignment{}, false, err
	}
	if assign.AssignmentID == "" {
		return Assignment{}, false, nil
	}
	return assign, true, nil
}

// ResultReport is the body posted to /jobs/assignments/<id>/result.
type ResultReport struct {
	Status string       `json:"status"`
	Output interface{}  `json:"output,omitempty"`
	Error  *ResultError `json:"error,omitempty"`
}

// ResultError carries the classified failure reported for a job.
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReportResult posts the terminal outcome of an assignment.
func (c *Client) ReportResult(assignmentID string, report ResultReport) error {
	tmpl, err := uritemplates.Parse("/jobs/assignments/{id}/result")
	if err != nil {
		return errs.Internal(err, "authclient: parsing result template")
	}
	expanded, err := tmpl.Expand(map[string]interface{}{"id": assignmentID})
	if err != nil {
		return errs.Internal(err, "authclient: expanding result template")
	}
	return c.Post(expanded, report, nil)
}

// PostDataSpecification posts the full regional data-specification
// payload to the admin endpoint.
func (c *Client) PostDataSpecification(payload interface{}) error {
	return c.Post("/admin/data-specification", payload, nil)
}
