package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	stages   *latencyWindow

	Completions       *prometheus.CounterVec
	CompletionLatency *prometheus.HistogramVec
	GeocodeLookups    *prometheus.CounterVec
	DialogueOutcomes  *prometheus.CounterVec
	ParsedOptions     prometheus.Histogram
	WSMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stages:   newLatencyWindow(256),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion calls by persona and result code.",
		}, []string{"persona", "result"}),
		CompletionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion round-trip latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 3000, 5000, 8000, 15000},
		}, []string{"persona"}),
		GeocodeLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_lookups_total",
			Help:      "Reverse geocode resolutions by result (hit, miss, error, skipped).",
		}, []string{"result"}),
		DialogueOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_outcomes_total",
			Help:      "Dialogue results by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ParsedOptions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parsed_options",
			Help:      "Number of reply options parsed from a completion.",
			Buckets:   []float64{0, 1, 2, 3, 4},
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveCompletion(persona, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(persona, result).Inc()
	m.CompletionLatency.WithLabelValues(persona).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveGeocode(result string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.DialogueOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveParsedOptions(n int) {
	if m == nil {
		return
	}
	m.ParsedOptions.Observe(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage records a stage latency in the window served at /v1/perf/latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.add(stage, d)
}

// SnapshotStages summarises the named stages, or every stage seen so far.
func (m *Metrics) SnapshotStages(only ...string) StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.snapshot(only...)
}

// Handler serves this instance's registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
