package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by the loop.
type Metrics struct {
	Cycles            *prometheus.CounterVec
	DetectionFailures *prometheus.CounterVec
	UploadAttempts    prometheus.Counter
	ChangeRatio       prometheus.Gauge
	CycleDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapwatch",
			Name:      "cycles_total",
			Help:      "Completed monitor cycles by outcome.",
		}, []string{"outcome"}),
		DetectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapwatch",
			Name:      "detection_failures_total",
			Help:      "Absorbed detection failures by kind.",
		}, []string{"kind"}),
		UploadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapwatch",
			Name:      "upload_attempts_total",
			Help:      "Upload attempts including retries.",
		}),
		ChangeRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snapwatch",
			Name:      "change_ratio_percent",
			Help:      "Percentage of changed pixels in the last measured comparison.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snapwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in a cycle, excluding the interval wait.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Cycles, m.DetectionFailures, m.UploadAttempts, m.ChangeRatio, m.CycleDuration)
	}
	return m
}
