// Package runtime implements the worker's core state machine: poll,
// claim, dispatch, report, idle-timeout shutdown.
//
// This is the direct generalization of the teacher's worker.Worker.Run
// event loop (_examples/diffeo-go-coordinate/worker/worker.go): that
// loop already has the shape of a clock.Clock-driven ticker, an idle
// flag, and a context.Context for cancellation selecting over work
// completion. This package keeps that shape but collapses it to the
// single-job-at-a-time state machine the worker requires: no child
// worker pool, no concurrent "maybeDoWork" dispatcher, just a
// straight-line poll/sleep/dispatch loop.
package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/authclient"
	"github.com/open-aims/reefworker/internal/config"
	"github.com/open-aims/reefworker/internal/errs"
	"github.com/open-aims/reefworker/internal/handlers"
	"github.com/open-aims/reefworker/internal/identity"
	"github.com/open-aims/reefworker/internal/objectstore"
	"github.com/open-aims/reefworker/internal/observability"
	"github.com/open-aims/reefworker/internal/regionaldata"
	"github.com/open-aims/reefworker/internal/registry"
)

// State names one phase of the worker's lifecycle, per spec:
// STARTING -> POLLING <-> WORKING -> STOPPING -> DONE, with a direct
// POLLING -> STOPPING edge on idle timeout.
type State string

const (
	StateStarting State = "starting"
	StatePolling  State = "polling"
	StateWorking  State = "working"
	StateStopping State = "stopping"
	StateDone     State = "done"
)

const (
	reportMaxAttempts   = 3
	reportBackoffBase   = 500 * time.Millisecond
	reportBackoffFactor = 2
)

// Metrics receives worker lifecycle observations. The admin endpoint
// (internal/adminserver) implements this on top of prometheus
// collectors; tests use the no-op default.
type Metrics interface {
	ObserveJob(jobType, outcome string)
	ObservePollDuration(d time.Duration)
	ObserveCacheHit()
	ObserveIdleShutdown()
}

type noopMetrics struct{}

func (noopMetrics) ObserveJob(string, string)        {}
func (noopMetrics) ObservePollDuration(time.Duration) {}
func (noopMetrics) ObserveCacheHit()                 {}
func (noopMetrics) ObserveIdleShutdown()             {}

// Runtime owns every dependency a running worker process needs and
// drives the poll/claim/dispatch/report loop.
type Runtime struct {
	Config        config.Worker
	Identity      identity.Worker
	Client        *authclient.Client
	Registry      *registry.Registry
	RegionalCache *regionaldata.Cache
	Engine        assessment.Engine
	Clock         clock.Clock
	Log           *logrus.Entry
	Metrics       Metrics
	Observability *observability.Sink

	mu    sync.RWMutex
	state State

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  int32
}

// New constructs a Runtime from its fully-wired dependencies. Clock,
// Log and Metrics default to production values if left zero.
func New(cfg config.Worker, ident identity.Worker, client *authclient.Client, reg *registry.Registry, regionalCache *regionaldata.Cache, engine assessment.Engine) *Runtime {
	return &Runtime{
		Config:        cfg,
		Identity:      ident,
		Client:        client,
		Registry:      reg,
		RegionalCache: regionalCache,
		Engine:        engine,
		Clock:         clock.New(),
		Log:           logrus.NewEntry(logrus.StandardLogger()),
		Metrics:       noopMetrics{},
		state:         StateStarting,
		stopCh:        make(chan struct{}),
	}
}

// State reports the runtime's current lifecycle phase.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Stop requests a cooperative shutdown: the polling loop checks for
// this between iterations (spec: "checked between iterations"). It
// never interrupts an in-flight WORKING dispatch. Safe to call more
// than once and from any goroutine (e.g. a signal handler).
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() {
		atomic.StoreInt32(&r.stopped, 1)
		close(r.stopCh)
	})
}

func (r *Runtime) stopRequested() bool {
	return atomic.LoadInt32(&r.stopped) == 1
}

// Run warms the regional-data cache, then drives the poll/dispatch
// loop until ctx is cancelled, Stop is called, or the worker has been
// idle for longer than Config.IdleTimeout. It always returns nil once
// STARTING succeeds; startup failures (regional data warmup) are
// returned directly so the caller can exit non-zero.
func (r *Runtime) Run(ctx context.Context) error {
	r.setState(StateStarting)
	if _, err := r.RegionalCache.Get(r.Config.DataPath, r.Config.CachePath); err != nil {
		wrapped := errs.Internal(err, "runtime: warming regional data")
		r.Observability.Report(ctx, string(errs.KindInternal), r.Identity.ID, wrapped.Error())
		return wrapped
	}
	r.setState(StatePolling)

	jobTypes := make([]string, len(r.Config.JobTypes))
	for i, t := range r.Config.JobTypes {
		jobTypes[i] = string(t)
	}

	idleSince := r.Clock.Now()

	for {
		if r.stopRequested() || ctx.Err() != nil {
			break
		}
		if r.Clock.Now().Sub(idleSince) >= r.Config.IdleTimeout {
			r.Log.Info("runtime: idle timeout reached")
			r.Metrics.ObserveIdleShutdown()
			break
		}

		pollStart := r.Clock.Now()
		assignment, ok, err := r.Client.PollJob(jobTypes, r.Identity.ID)
		r.Metrics.ObservePollDuration(r.Clock.Now().Sub(pollStart))
		if err != nil {
			r.Log.WithError(err).Warn("runtime: poll failed")
			if !r.sleepOrStop(ctx, r.Config.PollInterval) {
				break
			}
			continue
		}

		if !ok {
			if !r.sleepOrStop(ctx, r.Config.PollInterval) {
				break
			}
			continue
		}

		// Only a real assignment counts as activity for idle-timeout
		// purposes: a worker polled every poll_interval against a
		// quiet queue must still be able to reach idle_timeout, which
		// would be mathematically impossible if a bare NoJob reply
		// (arriving far more often than idle_timeout elapses) reset
		// the clock too. See DESIGN.md for this Open Question's
		// resolution.
		idleSince = r.Clock.Now()
		r.setState(StateWorking)
		r.runJob(ctx, assignment)
		r.setState(StatePolling)
	}

	r.setState(StateStopping)
	r.setState(StateDone)
	return nil
}

// sleepOrStop sleeps for d on the runtime's clock, returning early
// (with false) if ctx is cancelled or Stop is called meanwhile.
func (r *Runtime) sleepOrStop(ctx context.Context, d time.Duration) bool {
	timer := r.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.stopCh:
		return false
	}
}

// runJob builds the per-job handler context, dispatches through the
// registry, and reports the terminal outcome. Errors reporting the
// result are logged, not retried indefinitely beyond reportMaxAttempts
// -- per spec, an assignment that can't be reported is abandoned to
// the API's own lease-expiry mechanism.
func (r *Runtime) runJob(ctx context.Context, a authclient.Assignment) {
	log := r.Log.WithFields(logrus.Fields{
		"assignment_id": a.AssignmentID,
		"job_id":        a.JobID,
		"type":          a.Type,
	})

	hctx := &handlers.Context{
		StorageURI:    a.StorageURI,
		Region:        r.Config.AWSRegion,
		Endpoint:      r.Config.S3Endpoint,
		CacheDir:      r.Config.CachePath,
		DataDir:       r.Config.DataPath,
		Client:        r.Client,
		RegionalCache: r.RegionalCache,
		Engine:        r.Engine,
		Store:         objectstore.New(r.Config.AWSRegion, r.Config.S3Endpoint, log),
		Log:           log,
		Clock:         r.Clock,
		Metrics:       r.Metrics,
	}

	output, dispatchErr := r.Registry.Dispatch(a.Type, a.InputPayload, hctx)

	report := authclient.ResultReport{Status: "succeeded"}
	outcome := "succeeded"
	if dispatchErr != nil {
		kind := errs.Classify(dispatchErr)
		outcome = string(kind)
		report.Status = "failed"
		report.Error = &authclient.ResultError{Kind: string(kind), Message: dispatchErr.Error()}
		log.WithError(dispatchErr).Warn("runtime: job failed")
		if kind == errs.KindInternal || kind == errs.KindAuthFailure {
			r.Observability.Report(ctx, string(kind), r.Identity.ID, dispatchErr.Error())
		}
	} else {
		report.Output = output
		log.Info("runtime: job succeeded")
	}
	r.Metrics.ObserveJob(a.Type, outcome)

	if err := r.reportWithRetry(a.AssignmentID, report); err != nil {
		log.WithError(err).Error("runtime: abandoning assignment, could not report result")
	}
}

// reportWithRetry POSTs the job's terminal result, retrying any failure
// for at most reportMaxAttempts attempts in total with exponential
// backoff, per spec.md §4.G.5.
func (r *Runtime) reportWithRetry(assignmentID string, report authclient.ResultReport) error {
	backoff := reportBackoffBase
	var lastErr error
	for attempt := 1; attempt <= reportMaxAttempts; attempt++ {
		err := r.Client.ReportResult(assignmentID, report)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < reportMaxAttempts {
			r.Clock.Sleep(backoff)
			backoff *= reportBackoffFactor
		}
	}
	return lastErr
}
