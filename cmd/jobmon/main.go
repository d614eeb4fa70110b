// jobmon monitors commcell jobs. Without arguments it lists the active
// jobs; given a job id it waits for that job to finish, killing it if
// it stalls in pending or waiting past the configured timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"commcell/internal/commcell"
	"commcell/internal/config"
	"commcell/internal/job"
	"commcell/internal/observability"
	"commcell/internal/transport"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("jobmon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadClientConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}()

	if cfg.AuthToken == "" {
		slog.Warn("No auth token configured - set COMMCELL_TOKEN or COMMCELL_TOKEN_FILE")
	}

	rq := transport.NewHTTPRequester(cfg.ServerURL, cfg.AuthToken, cfg.RequestTimeout, metrics)
	if err := rq.Ready(ctx); err != nil {
		return fmt.Errorf("commcell not reachable at %s: %w", cfg.ServerURL, err)
	}

	session := commcell.NewSession(rq, commcell.Config{
		CommservName:  cfg.CommservName,
		JobLogsEmails: cfg.JobLogsEmails,
	})
	controller := job.NewController(session, job.Options{
		PollInterval: cfg.PollInterval,
		Metrics:      metrics,
	})

	if len(os.Args) < 2 {
		return listActiveJobs(ctx, controller)
	}

	id, err := strconv.Atoi(os.Args[1])
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", os.Args[1], err)
	}
	return waitForJob(ctx, controller, id, cfg)
}

func listActiveJobs(ctx context.Context, controller *job.Controller) error {
	summary, err := controller.ActiveJobSummary(ctx)
	if err != nil {
		return err
	}
	slog.Info("Active job summary",
		"running", summary.RunningJobs,
		"suspended", summary.SuspendedJobs,
		"queued", summary.QueuedJobs,
		"waiting", summary.WaitingJobs,
	)

	jobs, err := controller.ActiveJobs(ctx, job.ListOptions{})
	if err != nil {
		return err
	}
	for id, view := range jobs {
		slog.Info("Active job",
			"job_id", id,
			"operation", view.Operation,
			"status", view.Status,
			"client", view.ClientName,
			"percent_complete", view.PercentComplete,
		)
	}
	return nil
}

func waitForJob(ctx context.Context, controller *job.Controller, id int, cfg *config.ClientConfig) error {
	j, err := controller.Get(ctx, id)
	if err != nil {
		return err
	}

	summary := j.Summary()
	slog.Info("Waiting for job",
		"job_id", id,
		"operation", summary.LocalizedOperationName,
		"status", summary.Status,
	)

	ok, err := j.WaitForCompletion(ctx, cfg.StallTimeout, cfg.ReturnTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %d finished with status %q: %s", id, j.Summary().Status, j.DelayReason())
	}

	slog.Info("Job completed", "job_id", id, "status", j.Summary().Status)
	return nil
}
