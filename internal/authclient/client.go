// Package authclient provides the authenticated HTTP client the
// worker uses to talk to the job-dispatch API: token acquisition,
// automatic refresh on 401, and JSON GET/POST helpers.
//
// The request plumbing (URL templating + JSON encode into an in-memory
// buffer) is grounded directly on the teacher's restclient.resource
// type (_examples/diffeo-go-coordinate/restclient/rest.go): a small
// struct wrapping a base *url.URL with Do/Get/Post methods, expanding
// github.com/jtacoma/uritemplates templates and encoding bodies with
// github.com/ugorji/go/codec's JsonHandle rather than encoding/json
// directly.
package authclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jtacoma/uritemplates"
	"github.com/sirupsen/logrus"
	codec "github.com/ugorji/go/codec"

	"github.com/open-aims/reefworker/internal/errs"
)

var jsonHandle = &codec.JsonHandle{}

// Client is the process-wide authenticated client bound to one
// (username, password, endpoint) triple. Token refresh is
// non-reentrant: callers are the single-threaded worker runtime, so a
// plain mutex (not a goroutine-per-refresh scheme) matches how it is
// actually used.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client
	log      *logrus.Entry

	mu      sync.Mutex
	token   string
	expires time.Time
}

// loginRequest/loginResponse mirror the POST /auth/login contract.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New constructs a Client against baseURL. It does not perform any
// network I/O; the token is acquired lazily on first use.
func New(baseURL, username, password string, timeout time.Duration, log *logrus.Entry) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errs.Config("authclient: invalid API_ENDPOINT %q: %v", baseURL, err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL:  u,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}, nil
}

// Get performs an authenticated GET against path (resolved relative to
// the client's base URL) and decodes a JSON response body into out.
// out may be nil for responses with no body (e.g. 204 No Content).
func (c *Client) Get(path string, out interface{}) error {
	u, err := c.resolve(path)
	if err != nil {
		return err
	}
	return c.do(http.MethodGet, u, nil, out)
}

// Post performs an authenticated POST of in (JSON-encoded) against
// path, decoding a JSON response into out if out is non-nil.
func (c *Client) Post(path string, in, out interface{}) error {
	u, err := c.resolve(path)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, u, in, out)
}

func (c *Client) resolve(path string) (*url.URL, error) {
	tmpl, err := uritemplates.Parse(path)
	if err != nil {
		return nil, errs.Internal(err, "authclient: parsing path template %q", path)
	}
	expanded, err := tmpl.Expand(map[string]interface{}{})
	if err != nil {
		return nil, errs.Internal(err, "authclient: expanding path template %q", path)
	}
	return c.baseURL.Parse(expanded)
}

// do performs one authenticated request, refreshing and retrying
// exactly once on a 401 response, per the worker's auth contract.
func (c *Client) do(method string, u *url.URL, in, out interface{}) error {
	if err := c.ensureToken(false); err != nil {
		return err
	}

	resp, err := c.rawDo(method, u, in, out)
	if err == nil {
		return nil
	}

	httpErr, isHTTPErr := err.(*statusError)
	if !isHTTPErr || httpErr.status != http.StatusUnauthorized {
		return err
	}

	c.log.Debug("authclient: got 401, refreshing token and retrying once")
	if err := c.ensureToken(true); err != nil {
		return err
	}
	_, err = c.rawDo(method, u, in, out)
	if err != nil {
		if httpErr, ok := err.(*statusError); ok && httpErr.status == http.StatusUnauthorized {
			return errs.AuthFailure("credentials rejected after token refresh")
		}
		return err
	}
	return nil
}

// statusError carries the HTTP status code of a non-2xx response so
// do() can distinguish 401 from other failures.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.status, e.body)
}

// rawDo performs exactly one HTTP round trip with the current token
// attached, with no refresh/retry logic of its own.
func (c *Client) rawDo(method string, u *url.URL, in, out interface{}) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf, jsonHandle)
		if err := enc.Encode(in); err != nil {
			return nil, errs.Internal(err, "authclient: encoding request body")
		}
		body = &buf
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, errs.Internal(err, "authclient: building request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Transient(err, "authclient: %s %s", method, u)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient(err, "authclient: reading response body")
	}

	if resp.StatusCode >= 500 {
		return nil, errs.Transient(&statusError{status: resp.StatusCode, body: string(respBody)}, "authclient: server error")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &statusError{status: resp.StatusCode, body: string(respBody)}
	}
	if resp.StatusCode >= 400 {
		return nil, errs.InvalidInput("authclient: request rejected with status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		dec := codec.NewDecoderBytes(respBody, jsonHandle)
		if err := dec.Decode(out); err != nil {
			return nil, errs.Internal(err, "authclient: decoding response body")
		}
	}
	return resp, nil
}

// ensureToken acquires a token if none is held, or if force is true or
// the held token has expired.
func (c *Client) ensureToken(force bool) error {
	c.mu.Lock()
	needsRefresh := force || c.token == "" || time.Now().After(c.expires)
	c.mu.Unlock()
	if !needsRefresh {
		return nil
	}

	loginURL, err := c.baseURL.Parse("/auth/login")
	if err != nil {
		return errs.Internal(err, "authclient: building login URL")
	}

	req := loginRequest{Username: c.username, Password: c.password}
	var resp loginResponse

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	_, err = c.rawDo(http.MethodPost, loginURL, req, &resp)
	if err != nil {
		if httpErr, ok := err.(*statusError); ok && httpErr.status == http.StatusUnauthorized {
			return errs.AuthFailure("login rejected for user %q", c.username)
		}
		return err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.expires = resp.ExpiresAt
	c.mu.Unlock()
	c.log.Debug("authclient: acquired token")
	return nil
}
