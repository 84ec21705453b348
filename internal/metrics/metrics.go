// Package metrics exposes scan counters as Prometheus metrics.
//
// All methods are safe on a nil *Metrics, so components can be built
// without a registry in tests and one-shot CLI runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cheatwatch/internal/core"
)

const namespace = "cheatwatch"

type Metrics struct {
	FilesTotal    *prometheus.CounterVec
	EventsTotal   *prometheus.CounterVec
	ScansTotal    *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	RiskPercent   prometheus.Gauge
	Running       prometheus.Gauge
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files and blobs seen by each scanner, by outcome.",
		}, []string{"scanner", "outcome"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_events_total",
			Help:      "Evidence events recorded, by category and kind.",
		}, []string{"category", "kind"}),
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Finished scans by final state.",
		}, []string{"state"}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each scan phase.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"phase"}),
		RiskPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_percent",
			Help:      "Total risk of the last completed scan.",
		}),
		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_running",
			Help:      "1 while a scan is in progress.",
		}),
	}
}

// Outcomes for FilesTotal.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

func (m *Metrics) File(scanner, outcome string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(scanner, outcome).Inc()
}

// Emit implements core.Emitter.
func (m *Metrics) Emit(ev core.Event) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(string(ev.Category), string(ev.Kind)).Inc()
}

func (m *Metrics) Phase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.Running.Set(1)
}

func (m *Metrics) ScanFinished(state string, riskPercent int, hasSummary bool) {
	if m == nil {
		return
	}
	m.Running.Set(0)
	m.ScansTotal.WithLabelValues(state).Inc()
	if hasSummary {
		m.RiskPercent.Set(float64(riskPercent))
	}
}
