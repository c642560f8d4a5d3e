// Package observability is the worker's best-effort error-reporting
// sink: when SENTRY_DSN is configured the runtime posts a small JSON
// event through it for a failed regional-data warmup at STARTING and
// for every job whose outcome is classified internal or auth_failure.
// A result POST that still fails after its retries is only logged, not
// reported here.
//
// There is no vendored Sentry SDK anywhere in the retrieval pack to
// ground a real client library against, so this follows the teacher's
// own minimal net/http usage (restclient/rest.go's small Do-style
// wrapper) rather than inventing a dependency.
package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink posts best-effort error events to a configured DSN endpoint.
// A zero-value Sink (DSN == "") is a safe no-op.
type Sink struct {
	dsn        string
	httpClient *http.Client
	log        *logrus.Entry
}

// New builds a Sink. An empty dsn disables reporting: Report becomes a
// no-op and never attempts a network call.
func New(dsn string, log *logrus.Entry) *Sink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sink{
		dsn:        dsn,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

// event is the minimal payload posted to the DSN: enough for an
// operator watching the sink's backing store to triage, without
// depending on any particular observability vendor's wire format.
type event struct {
	Level     string    `json:"level"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Report sends a best-effort event. Failures to deliver the report
// itself are logged at warn level and otherwise swallowed -- this sink
// must never be the reason a job fails or the process exits non-zero.
func (s *Sink) Report(ctx context.Context, kind, workerID, message string) {
	if s == nil || s.dsn == "" {
		return
	}

	body, err := json.Marshal(event{
		Level:     "error",
		Kind:      kind,
		Message:   message,
		WorkerID:  workerID,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.log.WithError(err).Warn("observability: encoding event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dsn, bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Warn("observability: building request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.WithError(err).Warn("observability: reporting event")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.WithField("status", resp.StatusCode).Warn("observability: sink rejected event")
	}
}
