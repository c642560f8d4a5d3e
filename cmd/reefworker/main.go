// Package main is the reefworker binary: a single long-running process
// that polls the job-dispatch API, claims and executes one job at a
// time, and exits after an idle timeout. Flag/env wiring follows the
// teacher's cmd/coordinated pairing of a small main() with a
// package-level flag set, adapted here to urfave/cli so every flag can
// also be supplied as an environment variable without extra glue (the
// primary deployment path is an orchestrator that injects env vars
// only; flags exist for interactive/debugging use).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/open-aims/reefworker/internal/adminserver"
	"github.com/open-aims/reefworker/internal/assessment"
	"github.com/open-aims/reefworker/internal/authclient"
	"github.com/open-aims/reefworker/internal/config"
	"github.com/open-aims/reefworker/internal/handlers"
	"github.com/open-aims/reefworker/internal/identity"
	"github.com/open-aims/reefworker/internal/observability"
	"github.com/open-aims/reefworker/internal/regionaldata"
	"github.com/open-aims/reefworker/internal/registry"
	"github.com/open-aims/reefworker/internal/runtime"
)

const authTimeout = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "reefworker"
	app.Usage = "polls for and executes reef assessment jobs"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "api-endpoint", Usage: "overrides API_ENDPOINT"},
		cli.StringFlag{Name: "job-types", Usage: "overrides JOB_TYPES (comma-separated)"},
		cli.StringFlag{Name: "data-path", Usage: "overrides DATA_PATH"},
		cli.StringFlag{Name: "cache-path", Usage: "overrides CACHE_PATH"},
		cli.StringFlag{Name: "aws-region", Usage: "overrides AWS_REGION"},
		cli.StringFlag{Name: "s3-endpoint", Usage: "overrides S3_ENDPOINT"},
		cli.DurationFlag{Name: "poll-interval", Usage: "overrides POLL_INTERVAL_MS"},
		cli.DurationFlag{Name: "idle-timeout", Usage: "overrides IDLE_TIMEOUT_MS"},
		cli.IntFlag{Name: "metrics-port", Usage: "overrides METRICS_PORT"},
		cli.BoolFlag{Name: "check-config", Usage: "validate configuration, print it, and exit"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("reefworker: fatal error")
	}
}

func overridesFromFlags(c *cli.Context) config.Overrides {
	return config.Overrides{
		APIEndpoint:  c.String("api-endpoint"),
		JobTypes:     c.String("job-types"),
		DataPath:     c.String("data-path"),
		CachePath:    c.String("cache-path"),
		AWSRegion:    c.String("aws-region"),
		S3Endpoint:   c.String("s3-endpoint"),
		PollInterval: c.Duration("poll-interval"),
		IdleTimeout:  c.Duration("idle-timeout"),
		MetricsPort:  c.Int("metrics-port"),
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(overridesFromFlags(c))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if c.Bool("check-config") {
		fmt.Println(cfg.String())
		return nil
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	ident := identity.New(time.Now())
	log = log.WithField("worker_id", ident.ID)

	client, err := authclient.New(cfg.APIEndpoint, cfg.Username, cfg.Password, authTimeout, log)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reefworker: building API client: %v", err), 1)
	}

	reg := registry.New()
	reg.Register("TEST", handlers.Test, registry.JSONSchema[handlers.TestInput](), registry.JSONSchema[handlers.TestOutput]())
	reg.Register("REGIONAL_ASSESSMENT", handlers.RegionalAssessment,
		registry.JSONSchema[handlers.RegionalAssessmentInput](), registry.JSONSchema[handlers.RegionalAssessmentOutput]())
	reg.Register("SUITABILITY_ASSESSMENT", handlers.SuitabilityAssessment,
		registry.JSONSchema[handlers.SuitabilityAssessmentInput](), registry.JSONSchema[handlers.SuitabilityAssessmentOutput]())
	reg.Register("DATA_SPECIFICATION_UPDATE", handlers.DataSpecificationUpdate,
		registry.JSONSchema[handlers.DataSpecificationUpdateInput](), registry.JSONSchema[handlers.DataSpecificationUpdateOutput]())

	rt := runtime.New(cfg, ident, client, reg, &regionaldata.Cache{}, assessment.DefaultEngine{})
	rt.Log = log
	rt.Metrics = adminserver.Collector{}
	rt.Observability = observability.New(cfg.SentryDSN, log)

	admin := adminserver.New(cfg.MetricsPort, log)
	adminErrCh := make(chan error, 1)
	admin.Start(adminErrCh)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("reefworker: admin server shutdown error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("reefworker: received shutdown signal")
		rt.Stop()
	}()

	log.WithField("config", cfg.String()).Info("reefworker: starting")

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()
	go markReadyOnceStarted(rt, admin)

	select {
	case err := <-runErrCh:
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("reefworker: %v", err), 1)
		}
		return nil
	case err := <-adminErrCh:
		log.WithError(err).Error("reefworker: admin server failed")
		rt.Stop()
		<-runErrCh
		return cli.NewExitError(fmt.Sprintf("reefworker: admin server: %v", err), 1)
	}
}

// markReadyOnceStarted flips the liveness probe to healthy as soon as
// STARTING (regional-data warmup) completes, rather than waiting for
// the whole run to finish.
func markReadyOnceStarted(rt *runtime.Runtime, admin *adminserver.Server) {
	for rt.State() == runtime.StateStarting {
		time.Sleep(10 * time.Millisecond)
	}
	admin.MarkReady()
}
