package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter

	PublishAttempts metric.Int64Counter
	PublishDuration metric.Float64Histogram
	SweepRuns       metric.Int64Counter
	SweptPosts      metric.Int64Counter
	Generations     metric.Int64Counter
	Uploads         metric.Int64Counter
}

// Setup registers instruments on the default prometheus registry and
// installs the provider globally.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	return setup(serviceName, prometheus.DefaultRegisterer, promhttp.Handler())
}

// NewForTest builds instruments on an isolated registry so tests can call it repeatedly.
func NewForTest() *Metrics {
	reg := prometheus.NewRegistry()
	m, _, err := setup("test", reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err != nil {
		panic(err)
	}
	return m
}

func setup(serviceName string, reg prometheus.Registerer, handler http.Handler) (*Metrics, http.Handler, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	if reg == prometheus.DefaultRegisterer {
		otel.SetMeterProvider(provider)
	}

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	if m.HTTPRequests, err = meter.Int64Counter(
		"pm_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, nil, err
	}

	if m.HTTPDuration, err = meter.Float64Histogram(
		"pm_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, nil, err
	}

	if m.CacheHits, err = meter.Int64Counter(
		"pm_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	); err != nil {
		return nil, nil, err
	}

	if m.CacheMisses, err = meter.Int64Counter(
		"pm_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	); err != nil {
		return nil, nil, err
	}

	if m.ActiveConnections, err = meter.Int64UpDownCounter(
		"pm_stream_connections",
		metric.WithDescription("Number of open notification streams (SSE and WebSocket)"),
	); err != nil {
		return nil, nil, err
	}

	if m.PublishAttempts, err = meter.Int64Counter(
		"pm_publish_attempts_total",
		metric.WithDescription("Publish attempts by outcome and trigger"),
	); err != nil {
		return nil, nil, err
	}

	if m.PublishDuration, err = meter.Float64Histogram(
		"pm_publish_duration_seconds",
		metric.WithDescription("Time spent publishing a post to LinkedIn"),
	); err != nil {
		return nil, nil, err
	}

	if m.SweepRuns, err = meter.Int64Counter(
		"pm_sweep_runs_total",
		metric.WithDescription("Scheduled-publish sweeps by result"),
	); err != nil {
		return nil, nil, err
	}

	if m.SweptPosts, err = meter.Int64Counter(
		"pm_swept_posts_total",
		metric.WithDescription("Due posts handled by the sweeper, by outcome"),
	); err != nil {
		return nil, nil, err
	}

	if m.Generations, err = meter.Int64Counter(
		"pm_generations_total",
		metric.WithDescription("Post generations by content source"),
	); err != nil {
		return nil, nil, err
	}

	if m.Uploads, err = meter.Int64Counter(
		"pm_uploads_total",
		metric.WithDescription("Image uploads by storage mode"),
	); err != nil {
		return nil, nil, err
	}

	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}

// RecordPublish counts one publish attempt. trigger is "manual" or "sweep".
func (m *Metrics) RecordPublish(ctx context.Context, trigger, outcome string, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	m.PublishAttempts.Add(ctx, 1, labels)
	m.PublishDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordSweep(ctx context.Context, result string) {
	m.SweepRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordSweptPost(ctx context.Context, outcome string) {
	m.SweptPosts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordGeneration(ctx context.Context, source string) {
	m.Generations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) RecordUpload(ctx context.Context, mode string) {
	m.Uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
