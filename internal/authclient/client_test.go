package authclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "worker", "secret", 2*time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestLoginThenGet(t *testing.T) {
	var loggedIn int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			atomic.StoreInt32(&loggedIn, 1)
			json.NewEncoder(w).Encode(loginResponse{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)})
		case "/widgets":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	var out map[string]string
	require.NoError(t, c.Get("/widgets", &out))
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&loggedIn))
}

func TestRefreshOnceOn401(t *testing.T) {
	var logins int32
	var requestCount int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			n := atomic.AddInt32(&logins, 1)
			json.NewEncoder(w).Encode(loginResponse{Token: fmt.Sprintf("tok-%d", n), ExpiresAt: time.Now().Add(time.Hour)})
		case "/widgets":
			n := atomic.AddInt32(&requestCount, 1)
			// The first attempt with tok-1 is rejected once; the
			// retry after refresh (tok-2) must succeed.
			if n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
		}
	})

	var out map[string]string
	require.NoError(t, c.Get("/widgets", &out))
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
	assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
}

func TestAuthFailureAfterRefresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(loginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	err := c.Get("/widgets", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_failure")
}

func TestPollJobNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(loginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
		case "/jobs/poll":
			w.WriteHeader(http.StatusNoContent)
		}
	})

	_, ok, err := c.PollJob([]string{"TEST"}, "worker-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPollJobReturnsAssignment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(loginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
		case "/jobs/poll":
			json.NewEncoder(w).Encode(Assignment{
				AssignmentID: "a-1",
				JobID:        "j-1",
				Type:         "TEST",
				StorageURI:   "s3://bucket/prefix",
			})
		}
	})

	assignment, ok, err := c.PollJob([]string{"TEST"}, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a-1", assignment.AssignmentID)
}

func TestPollJobSendsWorkerID(t *testing.T) {
	var capturedQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(loginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
		case "/jobs/poll":
			capturedQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusNoContent)
		}
	})

	_, ok, err := c.PollJob([]string{"TEST"}, "worker-42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, capturedQuery, "worker_id=worker-42")
}

func TestReportResultPostsToTemplatedURL(t *testing.T) {
	var capturedPath string
	var capturedBody ResultReport
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			json.NewEncoder(w).Encode(loginResponse{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
		default:
			capturedPath = r.URL.Path
			json.NewDecoder(r.Body).Decode(&capturedBody)
			w.WriteHeader(http.StatusOK)
		}
	})

	require.NoError(t, c.ReportResult("assign-42", ResultReport{Status: "succeeded"}))
	assert.Equal(t, "/jobs/assignments/assign-42/result", capturedPath)
	assert.Equal(t, "succeeded", capturedBody.Status)
}
