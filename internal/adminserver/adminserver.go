// Package adminserver exposes the worker's small local admin HTTP
// surface: a liveness probe and a Prometheus scrape endpoint. Routing
// and middleware mirror the teacher's cmd/coordinated pairing of a
// gorilla/mux router (_examples/diffeo-go-coordinate/restserver/server.go)
// with the same "small admin HTTP surface next to the real work" shape,
// wrapped in urfave/negroni's classic Logger+Recovery stack.
package adminserver

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reefworker",
			Name:      "jobs_total",
			Help:      "Number of dispatched jobs by type and terminal outcome.",
		},
		[]string{"type", "outcome"},
	)

	pollDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reefworker",
			Name:      "poll_duration_seconds",
			Help:      "Latency of GET /jobs/poll calls.",
			Buckets:   prometheus.ExponentialBuckets(math.Pow(2, -7), 2, 12),
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reefworker",
			Name:      "cache_hits_total",
			Help:      "Number of assessment jobs served from the parameter-hashed disk cache.",
		},
	)

	idleShutdownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reefworker",
			Name:      "idle_shutdowns_total",
			Help:      "Number of times the worker exited due to idle timeout.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, pollDurationSeconds, cacheHitsTotal, idleShutdownsTotal)
}

// Collector implements runtime.Metrics on top of the package-level
// prometheus collectors above. There is exactly one worker runtime per
// process, so process-wide prometheus.MustRegister collectors (the
// teacher's own idiom in cmd/coordinated/metrics.go) fit without
// needing an instance-scoped registry.
type Collector struct{}

func (Collector) ObserveJob(jobType, outcome string) {
	jobsTotal.WithLabelValues(jobType, outcome).Inc()
}

func (Collector) ObservePollDuration(d time.Duration) {
	pollDurationSeconds.Observe(d.Seconds())
}

func (Collector) ObserveCacheHit() {
	cacheHitsTotal.Inc()
}

func (Collector) ObserveIdleShutdown() {
	idleShutdownsTotal.Inc()
}

// Server is the worker's optional local admin HTTP server. It is bound
// to 127.0.0.1 only -- this surface is for the orchestrator's liveness
// probe and a local Prometheus scrape sidecar, never the public
// internet.
type Server struct {
	httpServer *http.Server
	ready      int32
}

// New builds a Server listening on 127.0.0.1:port. Pass port 0 to
// disable the admin endpoint entirely (New returns nil in that case,
// and callers should skip Start/Stop).
func New(port int, log *logrus.Entry) *Server {
	if port == 0 {
		return nil
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	n := negroni.New(negroni.NewRecovery(), negroni.NewLogger())
	n.UseHandler(router)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: n,
	}
	return s
}

// MarkReady flips the /healthz probe to 200, once STARTING completes.
func (s *Server) MarkReady() {
	if s == nil {
		return
	}
	atomic.StoreInt32(&s.ready, 1)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.ready) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Start runs the admin server in the background. Errors other than a
// clean shutdown are sent to errCh.
func (s *Server) Start(errCh chan<- error) {
	if s == nil {
		return
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Stop gracefully shuts the admin server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
