package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. Collectors are created
// unregistered; call Register to expose them.
type Metrics struct {
	JobsTotal       *prometheus.CounterVec
	RecordsTotal    prometheus.Counter
	JobDuration     prometheus.Histogram
	CyclesTotal     prometheus.Counter
	CycleInProgress prometheus.Gauge
}

// NewMetrics creates the pipeline collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optionyield",
			Name:      "jobs_total",
			Help:      "Instrument jobs processed, by outcome (ok or skip reason)",
		}, []string{"outcome"}),
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionyield",
			Name:      "records_total",
			Help:      "Valuation records appended to result tables",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optionyield",
			Name:      "job_duration_seconds",
			Help:      "Time to fetch, parse and value one instrument",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionyield",
			Name:      "cycles_total",
			Help:      "Refresh cycles started",
		}),
		CycleInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optionyield",
			Name:      "cycle_in_progress",
			Help:      "1 while a refresh cycle is running",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.JobsTotal,
		m.RecordsTotal,
		m.JobDuration,
		m.CyclesTotal,
		m.CycleInProgress,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeJob(outcome string, records int, elapsed time.Duration) {
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.RecordsTotal.Add(float64(records))
	m.JobDuration.Observe(elapsed.Seconds())
}
