package adminserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWhenPortZero(t *testing.T) {
	s := New(0, nil)
	assert.Nil(t, s)
}

func TestHealthzReflectsReadiness(t *testing.T) {
	s := New(18099, nil)
	require.NotNil(t, s)

	errCh := make(chan error, 1)
	s.Start(errCh)
	defer s.Stop(context.Background()) //nolint:errcheck

	// Give the listener a moment to bind.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18099/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	s.MarkReady()

	resp, err = http.Get("http://127.0.0.1:18099/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	select {
	case err := <-errCh:
		t.Fatalf("admin server reported an error: %v", err)
	default:
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	s := New(18100, nil)
	require.NotNil(t, s)

	errCh := make(chan error, 1)
	s.Start(errCh)
	defer s.Stop(context.Background()) //nolint:errcheck

	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18100/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
