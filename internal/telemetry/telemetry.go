// Package telemetry provides OpenTelemetry instrumentation for the
// newsclean engine. It exports Prometheus metrics and provides tracing
// capabilities.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "newsclean"

// Metrics holds all newsclean Prometheus metrics
type Metrics struct {
	// Classification metrics
	ArticlesIngested      prometheus.Counter
	ArticlesClassified    *prometheus.CounterVec
	ClassificationsFailed prometheus.Counter
	MatchDuration         prometheus.Histogram
	BatchSize             prometheus.Histogram

	// Rule set metrics
	RuleSetVersion prometheus.Gauge
	RulesEnabled   prometheus.Gauge

	// Reclassification metrics
	ReclassRuns       prometheus.Counter
	ReclassSuperseded prometheus.Counter
	ReclassExpired    prometheus.Counter
	ReclassDuration   prometheus.Histogram

	// Backpressure metrics
	IngestQueueDepth prometheus.Gauge
	WorkDropped      prometheus.Counter

	// Delivery metrics
	ArticlesDelivered prometheus.Counter
	DeliveryFailed    prometheus.Counter
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initClassificationMetrics(m)
	initRuleSetMetrics(m)
	initReclassMetrics(m)
	initBackpressureMetrics(m)
	initDeliveryMetrics(m)
	return m
}

func initClassificationMetrics(m *Metrics) {
	m.ArticlesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_articles_ingested_total",
		Help: "Total articles accepted for ingestion",
	})

	m.ArticlesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsclean_articles_classified_total",
		Help: "Total classification passes by outcome (cleaned, uncleaned)",
	}, []string{"outcome"})

	m.ClassificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_classifications_failed_total",
		Help: "Total classification passes that failed and flagged the article",
	})

	m.MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsclean_match_duration_seconds",
		Help:    "Time spent evaluating one article against the rule set",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	m.BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsclean_batch_size",
		Help:    "Number of articles per reclassification batch",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
	})
}

func initRuleSetMetrics(m *Metrics) {
	m.RuleSetVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsclean_rule_set_version",
		Help: "Current rule-set version",
	})

	m.RulesEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsclean_rules_enabled",
		Help: "Number of enabled rules in the live rule set",
	})
}

func initReclassMetrics(m *Metrics) {
	m.ReclassRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_reclassification_runs_total",
		Help: "Total reclassification sweeps executed",
	})

	m.ReclassSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_reclassification_superseded_total",
		Help: "Total reclassification jobs skipped because a newer rule version arrived",
	})

	m.ReclassExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_reclassification_expired_total",
		Help: "Total reclassification jobs dropped after exceeding their TTL",
	})

	m.ReclassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsclean_reclassification_duration_seconds",
		Help:    "Wall time of one full reclassification sweep",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
}

func initBackpressureMetrics(m *Metrics) {
	m.IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsclean_ingest_queue_depth",
		Help: "Current pending articles in the ingest queue",
	})

	m.WorkDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_work_dropped_total",
		Help: "Work items dropped due to queue full",
	})
}

func initDeliveryMetrics(m *Metrics) {
	m.ArticlesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_articles_delivered_total",
		Help: "Total cleaned articles published downstream",
	})

	m.DeliveryFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsclean_delivery_failed_total",
		Help: "Total downstream publish attempts that failed",
	})
}

// RecordIngest counts one accepted article. Nil-safe.
func (p *Provider) RecordIngest() {
	if p == nil {
		return
	}
	p.Metrics.ArticlesIngested.Inc()
}

// RecordClassification records one classification pass.
func (p *Provider) RecordClassification(outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.ArticlesClassified.WithLabelValues(outcome).Inc()
	p.Metrics.MatchDuration.Observe(duration.Seconds())
}

// RecordClassificationFailure records a failed classification pass.
func (p *Provider) RecordClassificationFailure() {
	if p == nil {
		return
	}
	p.Metrics.ClassificationsFailed.Inc()
}

// SetRuleSet records the live rule-set version and enabled-rule count.
func (p *Provider) SetRuleSet(version int64, enabled int) {
	if p == nil {
		return
	}
	p.Metrics.RuleSetVersion.Set(float64(version))
	p.Metrics.RulesEnabled.Set(float64(enabled))
}

// RecordReclassRun records one completed reclassification sweep.
func (p *Provider) RecordReclassRun(batch int, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.ReclassRuns.Inc()
	p.Metrics.BatchSize.Observe(float64(batch))
	p.Metrics.ReclassDuration.Observe(duration.Seconds())
}

// RecordReclassSuperseded counts a job skipped for a newer rule version.
func (p *Provider) RecordReclassSuperseded() {
	if p == nil {
		return
	}
	p.Metrics.ReclassSuperseded.Inc()
}

// RecordReclassExpired counts a job dropped past its TTL.
func (p *Provider) RecordReclassExpired() {
	if p == nil {
		return
	}
	p.Metrics.ReclassExpired.Inc()
}

// SetIngestQueueDepth sets the current ingest queue depth.
func (p *Provider) SetIngestQueueDepth(depth int) {
	if p == nil {
		return
	}
	p.Metrics.IngestQueueDepth.Set(float64(depth))
}

// IncrementWorkDropped increments the dropped work counter.
func (p *Provider) IncrementWorkDropped() {
	if p == nil {
		return
	}
	p.Metrics.WorkDropped.Inc()
}

// RecordDelivery records one downstream publish attempt.
func (p *Provider) RecordDelivery(success bool) {
	if p == nil {
		return
	}
	if success {
		p.Metrics.ArticlesDelivered.Inc()
		return
	}
	p.Metrics.DeliveryFailed.Inc()
}

// StartSpan starts a new trace span. Nil-safe: without a provider it
// returns the context unchanged and a no-op span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
