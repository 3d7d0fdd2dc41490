package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RealKorush/bahbah/internal/domain"
)

const metricsNamespace = "linkchecker"

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	links    prometheus.Counter
	records  *prometheus.CounterVec
	skipped  prometheus.Counter
	latency  prometheus.Histogram
	inFlight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		links: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "links_total",
			Help:      "Links received for checking.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Result records by status.",
		}, []string{"status"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "probes_skipped_total",
			Help:      "Probes skipped because the address breaker was open.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "probe_latency_seconds",
			Help:      "TCP connect latency of alive endpoints.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "probes_in_flight",
			Help:      "Probes currently dialing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.links, m.records, m.skipped, m.latency, m.inFlight)
	}
	return m
}

func (m *Metrics) link() {
	if m == nil {
		return
	}
	m.links.Inc()
}

func (m *Metrics) skip() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) probeStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) probeFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) observe(rec domain.Record) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(rec.Status)).Inc()
	if rec.LatencyMS != nil {
		m.latency.Observe(*rec.LatencyMS / 1000)
	}
}
