package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/authclient"
	"github.com/open-aims/reefworker/internal/config"
	"github.com/open-aims/reefworker/internal/handlers"
	"github.com/open-aims/reefworker/internal/identity"
	"github.com/open-aims/reefworker/internal/regionaldata"
	"github.com/open-aims/reefworker/internal/registry"
)

const fixtureRegionYAML = `
name: GBR
criteria:
  depth:
    id: depth
    display_name: Depth
    units: m
    min: 0
    max: 40
`

func writeFixtureRegion(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gbr.yaml"), []byte(fixtureRegionYAML), 0o644))
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":      "tok",
		"expires_at": time.Now().Add(time.Hour),
	})
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.Register("TEST", handlers.Test, registry.JSONSchema[handlers.TestInput](), registry.JSONSchema[handlers.TestOutput]())
	return reg
}

func newTestRuntime(t *testing.T, client *authclient.Client, reg *registry.Registry, dataDir string, pollInterval, idleTimeout time.Duration) *Runtime {
	t.Helper()
	rt := New(config.Worker{
		JobTypes:     []config.JobType{config.TypeTest},
		DataPath:     dataDir,
		CachePath:    t.TempDir(),
		AWSRegion:    "us-west-2",
		PollInterval: pollInterval,
		IdleTimeout:  idleTimeout,
	}, identity.New(time.Now()), client, reg, &regionaldata.Cache{}, assessment.DefaultEngine{})
	rt.Clock = clock.NewMock()
	return rt
}

// advanceClock repeatedly nudges a mock clock forward from a
// background goroutine, the same pattern internal/objectstore's tests
// use to push a blocked Sleep/Timer across a deadline without a real
// wall-clock wait.
func advanceClock(mock *clock.Mock, step time.Duration, iterations int) {
	go func() {
		for i := 0; i < iterations; i++ {
			mock.Add(step)
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestRunIdleShutdown(t *testing.T) {
	dataDir := t.TempDir()
	writeFixtureRegion(t, dataDir)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginHandler(w, r)
		case "/jobs/poll":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client, err := authclient.New(srv.URL, "worker", "secret", 2*time.Second, nil)
	require.NoError(t, err)

	rt := newTestRuntime(t, client, testRegistry(), dataDir, 50*time.Millisecond, 200*time.Millisecond)
	mock := rt.Clock.(*clock.Mock)
	advanceClock(mock, 20*time.Millisecond, 500)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop on idle timeout")
	}
	assert.Equal(t, StateDone, rt.State())
}

func TestRunTestJobHappyPath(t *testing.T) {
	dataDir := t.TempDir()
	writeFixtureRegion(t, dataDir)

	var reportedStatus string
	var reportedOutput json.RawMessage
	var rt *Runtime

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginHandler(w, r)
		case "/jobs/poll":
			json.NewEncoder(w).Encode(authclient.Assignment{
				AssignmentID: "a1",
				JobID:        "j1",
				Type:         "TEST",
				InputPayload: json.RawMessage(`{"id":42}`),
			})
		case "/jobs/assignments/a1/result":
			var body struct {
				Status string          `json:"status"`
				Output json.RawMessage `json:"output"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			reportedStatus = body.Status
			reportedOutput = body.Output
			w.WriteHeader(http.StatusOK)
			rt.Stop()
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client, err := authclient.New(srv.URL, "worker", "secret", 2*time.Second, nil)
	require.NoError(t, err)

	rt = newTestRuntime(t, client, testRegistry(), dataDir, 10*time.Millisecond, time.Hour)
	mock := rt.Clock.(*clock.Mock)
	advanceClock(mock, 500*time.Millisecond, 200)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not complete the TEST job in time")
	}

	assert.Equal(t, "succeeded", reportedStatus)
	assert.Equal(t, "{}", string(reportedOutput))
}

func TestRunUnknownJobTypeReportsInvalidInput(t *testing.T) {
	dataDir := t.TempDir()
	writeFixtureRegion(t, dataDir)

	var reportedStatus, reportedKind string
	var rt *Runtime

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginHandler(w, r)
		case "/jobs/poll":
			json.NewEncoder(w).Encode(authclient.Assignment{
				AssignmentID: "a2",
				JobID:        "j2",
				Type:         "SOMETHING_ROGUE",
				InputPayload: json.RawMessage(`{}`),
			})
		case "/jobs/assignments/a2/result":
			var body struct {
				Status string `json:"status"`
				Error  struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			reportedStatus = body.Status
			reportedKind = body.Error.Kind
			w.WriteHeader(http.StatusOK)
			rt.Stop()
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client, err := authclient.New(srv.URL, "worker", "secret", 2*time.Second, nil)
	require.NoError(t, err)

	rt = newTestRuntime(t, client, testRegistry(), dataDir, 10*time.Millisecond, time.Hour)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not report the unknown job type in time")
	}

	assert.Equal(t, "failed", reportedStatus)
	assert.Equal(t, "invalid_input", reportedKind)
}

func TestAtMostOneInFlight(t *testing.T) {
	dataDir := t.TempDir()
	writeFixtureRegion(t, dataDir)

	var rt *Runtime
	var pollCount int32
	var pollsWhileWorking int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginHandler(w, r)
		case "/jobs/poll":
			n := atomic.AddInt32(&pollCount, 1)
			if rt != nil && rt.State() == StateWorking {
				atomic.AddInt32(&pollsWhileWorking, 1)
			}
			if n == 1 {
				json.NewEncoder(w).Encode(authclient.Assignment{
					AssignmentID: "a1",
					JobID:        "j1",
					Type:         "TEST",
					InputPayload: json.RawMessage(`{}`),
				})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "/jobs/assignments/a1/result":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client, err := authclient.New(srv.URL, "worker", "secret", 2*time.Second, nil)
	require.NoError(t, err)

	rt = newTestRuntime(t, client, testRegistry(), dataDir, 10*time.Millisecond, time.Hour)
	mock := rt.Clock.(*clock.Mock)
	advanceClock(mock, 500*time.Millisecond, 200)

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&pollCount) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	rt.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&pollsWhileWorking))
}
