// Package objectstore implements the worker's object-store client:
// a single Upload operation against an S3-compatible PUT endpoint,
// with bounded retries on transient failure.
package objectstore

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/open-aims/reefworker/internal/errs"
)

const (
	maxAttempts   = 3
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2
)

// Client uploads local files to S3-compatible object storage. One
// Client is constructed per job from the job's HandlerContext, since
// the region/endpoint pair can vary per assignment.
type Client struct {
	Region   string
	Endpoint string // optional MinIO-compatible override

	HTTP  *http.Client
	Clock clock.Clock
	Log   *logrus.Entry
}

// New builds a Client for one job's region/endpoint.
func New(region, endpoint string, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		Region:   region,
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		Clock:    clock.New(),
		Log:      log,
	}
}

// Upload PUTs the contents of localPath to targetURI ("s3://bucket/key...").
// Any failed PUT (network error or 4xx/5xx status) is retried, for at
// most maxAttempts attempts in total, with exponential backoff between
// them (base 500ms, factor 2). Exhausting the attempts surfaces
// errs.KindUpload.
func (c *Client) Upload(localPath, targetURI string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errs.Internal(err, "objectstore: reading %s", localPath)
	}

	destURL, err := c.signedURL(targetURI)
	if err != nil {
		return err
	}

	var lastErr error
	backoff := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.put(destURL, data)
		if err == nil {
			return nil
		}
		lastErr = err
		c.Log.WithFields(logrus.Fields{"attempt": attempt, "target": targetURI}).
			WithError(err).Warn("objectstore: upload attempt failed")
		if attempt < maxAttempts {
			c.Clock.Sleep(backoff)
			backoff *= backoffFactor
		}
	}
	return errs.Upload(lastErr, "objectstore: exhausted %d attempts uploading to %s", maxAttempts, targetURI)
}

func (c *Client) put(destURL string, data []byte) error {
	req, err := http.NewRequest(http.MethodPut, destURL, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("building PUT request: %w", err)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("performing PUT: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// 4xx on an upload is not expected to succeed on retry, but
		// the worker still counts it against the same attempt budget
		// rather than adding a second error-kind distinction the spec
		// does not call for.
		return fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}
	return nil
}

// signedURL turns "s3://bucket/key..." into the HTTPS URL this client
// PUTs to: either the configured MinIO-compatible endpoint, or the
// region's standard virtual-hosted-style S3 endpoint.
func (c *Client) signedURL(targetURI string) (string, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(targetURI, scheme) {
		return "", errs.InvalidInput("objectstore: target URI %q is not of the form s3://bucket/key", targetURI)
	}
	rest := strings.TrimPrefix(targetURI, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errs.InvalidInput("objectstore: target URI %q missing bucket or key", targetURI)
	}
	bucket, key := parts[0], parts[1]

	if c.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.Endpoint, "/"), bucket, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.Region, key), nil
}
