package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics reports deep query activity. It satisfies deepquery.Observer.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	windows     *prometheus.CounterVec
	engine      prometheus.Histogram
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the collectors with reg, reusing collectors that are
// already registered under the same names. Other registration errors panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepquery",
			Name:      "runs_total",
			Help:      "Deep query runs by final status.",
		},
		[]string{"status"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "deepquery",
			Name:      "run_seconds",
			Help:      "Wall time of a whole deep query.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	windows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepquery",
			Name:      "windows_total",
			Help:      "Windows by outcome: queried, dropped at extraction, or failed at query.",
		},
		[]string{"outcome"},
	)
	engine := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "deepquery",
			Name:      "engine_seconds",
			Help:      "Latency of a single point query against the engine.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	collectors := []prometheus.Collector{runs, runDuration, windows, engine}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case runs:
				runs = already.ExistingCollector.(*prometheus.CounterVec)
			case windows:
				windows = already.ExistingCollector.(*prometheus.CounterVec)
			case runDuration:
				runDuration = already.ExistingCollector.(prometheus.Histogram)
			case engine:
				engine = already.ExistingCollector.(prometheus.Histogram)
			}
		}
	}

	return &Metrics{
		runs:        runs,
		runDuration: runDuration,
		windows:     windows,
		engine:      engine,
	}
}

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) WindowOutcome(outcome string) {
	if m == nil {
		return
	}
	m.windows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EngineCall(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.engine.Observe(elapsed.Seconds())
}
