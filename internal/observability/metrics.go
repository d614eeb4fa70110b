package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the SDK-side metrics:
// - Latency: how long API calls and job waits take
// - Traffic: API call and poll throughput
// - Errors: rate of failed calls and failed jobs
type Metrics struct {
	meter metric.Meter

	// API metrics (Latency, Traffic, Errors)
	APIRequestDuration metric.Float64Histogram
	APIRequestsTotal   metric.Int64Counter
	APIErrorsTotal     metric.Int64Counter

	// Job lifecycle metrics
	JobPollsTotal      metric.Int64Counter
	JobWaitDuration    metric.Float64Histogram
	JobControlTotal    metric.Int64Counter
	WatchdogKillsTotal metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("commcell")
	m := &Metrics{meter: meter}

	// API metrics
	m.APIRequestDuration, err = meter.Float64Histogram(
		"api_request_duration_seconds",
		metric.WithDescription("Server API call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIRequestsTotal, err = meter.Int64Counter(
		"api_requests_total",
		metric.WithDescription("Total number of server API calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIErrorsTotal, err = meter.Int64Counter(
		"api_errors_total",
		metric.WithDescription("Total number of failed server API calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job lifecycle metrics
	m.JobPollsTotal, err = meter.Int64Counter(
		"job_polls_total",
		metric.WithDescription("Total number of job status refreshes"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobWaitDuration, err = meter.Float64Histogram(
		"job_wait_duration_seconds",
		metric.WithDescription("Time spent blocking in job completion waits"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(30, 60, 120, 300, 600, 900, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobControlTotal, err = meter.Int64Counter(
		"job_control_operations_total",
		metric.WithDescription("Total pause/resume/kill/resubmit operations"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WatchdogKillsTotal, err = meter.Int64Counter(
		"job_watchdog_kills_total",
		metric.WithDescription("Jobs killed after exceeding the pending/waiting watchdog"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordAPIRequest records one server API call.
func (m *Metrics) RecordAPIRequest(ctx context.Context, method, endpoint string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		endpointAttr(endpoint),
		statusAttr(statusCode),
	)

	m.APIRequestDuration.Record(ctx, durationSeconds, attrs)
	m.APIRequestsTotal.Add(ctx, 1, attrs)

	if statusCode == 0 || statusCode >= 400 {
		m.APIErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobPoll records one summary+details refresh cycle.
func (m *Metrics) RecordJobPoll(ctx context.Context) {
	m.JobPollsTotal.Add(ctx, 1)
}

// RecordJobWait records the duration and outcome of a completion wait.
func (m *Metrics) RecordJobWait(ctx context.Context, outcome string, durationSeconds float64) {
	m.JobWaitDuration.Record(ctx, durationSeconds, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordJobControl records a pause/resume/kill/resubmit operation.
func (m *Metrics) RecordJobControl(ctx context.Context, action string, success bool) {
	m.JobControlTotal.Add(ctx, 1, metric.WithAttributes(actionAttr(action), successAttr(success)))
}

// RecordWatchdogKill records a job killed by the pending/waiting watchdog.
func (m *Metrics) RecordWatchdogKill(ctx context.Context) {
	m.WatchdogKillsTotal.Add(ctx, 1)
}
