package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maree"

// Metrics holds the Prometheus collectors for upstream fetches and calendar generation.
type Metrics struct {
	// Upstream metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: source, outcome={success,error,status}
	UpstreamDuration *prometheus.HistogramVec // labels: source
	RowsSkipped      *prometheus.CounterVec   // labels: source, reason
	EventsParsed     *prometheus.CounterVec   // labels: source

	// Pipeline metrics.
	Generations        *prometheus.CounterVec   // labels: source, outcome={ok,<error kind>}
	GenerationDuration *prometheus.HistogramVec // labels: source
	SpanWarnings       *prometheus.CounterVec   // labels: source

	ZoneCache *prometheus.CounterVec // labels: result={hit,miss}

	RequestLatency *prometheus.HistogramVec // labels: verb, path, code
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Upstream rows discarded during parsing.",
		}, []string{"source", "reason"}),
		EventsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_parsed_total",
			Help:      "Tide events produced by each source.",
		}, []string{"source"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Calendar generations by source and outcome.",
		}, []string{"source", "outcome"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end calendar generation duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		SpanWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "span_warnings_total",
			Help:      "Requests above a source's recommended span.",
		}, []string{"source"}),
		ZoneCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_cache_total",
			Help:      "Time zone cache lookups by result.",
		}, []string{"result"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.2, 0.4, 0.8, 1.0, 2.0, 4.0, 8.0, 16.0, 32.0},
		}, []string{"verb", "path", "code"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.RowsSkipped,
		m.EventsParsed,
		m.Generations,
		m.GenerationDuration,
		m.SpanWarnings,
		m.ZoneCache,
		m.RequestLatency,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry registers the metrics with reg instead of the default registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) (*Metrics, error) {
	m := newMetrics()
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// WriteTextfile dumps everything g gathers to path, in the node_exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// The helpers below tolerate a nil receiver so components can run without metrics.

func (m *Metrics) ObserveUpstream(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(source, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) SkipRow(source, reason string) {
	if m == nil {
		return
	}
	m.RowsSkipped.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) AddEvents(source string, n int) {
	if m == nil {
		return
	}
	m.EventsParsed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveGeneration(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(source, outcome).Inc()
	m.GenerationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) WarnSpan(source string) {
	if m == nil {
		return
	}
	m.SpanWarnings.WithLabelValues(source).Inc()
}

func (m *Metrics) ZoneLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ZoneCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(verb, path string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(verb, path, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
