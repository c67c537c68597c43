// Package metrics exposes Prometheus collectors for scan runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

const namespace = "barcode_filer"

// Metrics holds the scanner collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
	skipped   prometheus.Counter
	duration  prometheus.Histogram
	scans     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents that went through the pipeline, by outcome.",
		}, []string{"outcome"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_skipped_total",
			Help:      "Directory entries ignored because they are not .pdf files.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Wall time of one pipeline invocation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan runs, by status.",
		}, []string{"status"}),
	}
}

// ObserveDocument records one pipeline result
func (m *Metrics) ObserveDocument(r domain.DocumentResult) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(string(r.Outcome.Kind)).Inc()
	m.duration.Observe(r.Duration.Seconds())
}

// ObserveSkipped records n skipped directory entries
func (m *Metrics) ObserveSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

// ObserveScan records a finished scan run
func (m *Metrics) ObserveScan(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.scans.WithLabelValues(status).Inc()
}
