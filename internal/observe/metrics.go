// Package observe provides application-wide observability primitives for
// TalkDub: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all TalkDub metrics.
const meterName = "github.com/talkdub-lab/talkdub"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// PhaseDuration tracks per-phase pipeline execution latency. Use with
	// attributes:
	//   attribute.String("phase", ...), attribute.String("status", ...)
	PhaseDuration metric.Float64Histogram

	// JobDuration tracks end-to-end job processing latency.
	JobDuration metric.Float64Histogram

	// TranslationDuration tracks per-chunk translation latency.
	TranslationDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// JobsProcessed counts finished jobs. Use with attribute:
	//   attribute.String("status", ...)
	JobsProcessed metric.Int64Counter

	// PhaseRetries counts per-phase retry attempts. Use with attribute:
	//   attribute.String("phase", ...)
	PhaseRetries metric.Int64Counter

	// Downloads counts delivery downloads. Use with attribute:
	//   attribute.String("status", ...)
	Downloads metric.Int64Counter

	// CacheLookups counts translation cache lookups. Use with attribute:
	//   attribute.String("result", ...) ("hit" or "miss")
	CacheLookups metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts translation provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of queued jobs.
	QueueDepth metric.Int64UpDownCounter

	// ActiveJobs tracks the number of jobs currently being processed.
	ActiveJobs metric.Int64UpDownCounter
}

// phaseBuckets defines histogram bucket boundaries (in seconds) sized for
// media-pipeline phases that run from seconds to hours.
var phaseBuckets = []float64{
	1, 5, 15, 60, 300, 900, 1800, 3600, 7200, 14400,
}

// requestBuckets defines histogram bucket boundaries (in seconds) for the
// HTTP surface and translation calls.
var requestBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PhaseDuration, err = m.Float64Histogram("talkdub.phase.duration",
		metric.WithDescription("Latency of pipeline phase execution by phase and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(phaseBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("talkdub.job.duration",
		metric.WithDescription("End-to-end job processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(phaseBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("talkdub.translation.duration",
		metric.WithDescription("Latency of per-chunk translation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("talkdub.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.JobsProcessed, err = m.Int64Counter("talkdub.jobs.processed",
		metric.WithDescription("Total finished jobs by final status."),
	); err != nil {
		return nil, err
	}
	if met.PhaseRetries, err = m.Int64Counter("talkdub.phase.retries",
		metric.WithDescription("Total pipeline phase retry attempts by phase."),
	); err != nil {
		return nil, err
	}
	if met.Downloads, err = m.Int64Counter("talkdub.downloads",
		metric.WithDescription("Total delivery download requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("talkdub.cache.lookups",
		metric.WithDescription("Total translation cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("talkdub.provider.errors",
		metric.WithDescription("Total translation provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("talkdub.queue.depth",
		metric.WithDescription("Number of queued jobs."),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("talkdub.active_jobs",
		metric.WithDescription("Number of jobs currently being processed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordPhase is a convenience method that records a phase execution with
// the standard attribute set.
func (m *Metrics) RecordPhase(ctx context.Context, phase, status string, seconds float64) {
	m.PhaseDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("status", status),
		),
	)
}

// RecordPhaseRetry is a convenience method that counts one retry attempt of
// the named phase.
func (m *Metrics) RecordPhaseRetry(ctx context.Context, phase string) {
	m.PhaseRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordJob is a convenience method that records a finished job.
func (m *Metrics) RecordJob(ctx context.Context, status string, seconds float64) {
	m.JobsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.JobDuration.Record(ctx, seconds)
}

// RecordDownload is a convenience method that records a download request
// counter increment.
func (m *Metrics) RecordDownload(ctx context.Context, status string) {
	m.Downloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCacheLookup is a convenience method that records a translation cache
// lookup counter increment.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
