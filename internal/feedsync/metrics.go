package feedsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "feedbridge"

// Metrics holds the sync collectors. A nil *Metrics records nothing.
type Metrics struct {
	cycles     *prometheus.CounterVec
	newItems   prometheus.Counter
	deliveries *prometheus.CounterVec
	evicted    prometheus.Counter
	pending    prometheus.Gauge
	lastCheck  prometheus.Gauge
	duration   prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Sync cycles by result",
		}, []string{"result"}),
		newItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_new_total",
			Help:      "Items observed for the first time",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by result",
		}, []string{"result"}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_evicted_total",
			Help:      "Undelivered items dropped by the retention cap",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_items",
			Help:      "Items awaiting delivery",
		}),
		lastCheck: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the last sync attempt",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of sync cycles",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) cycle(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) observed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.newItems.Add(float64(n))
}

func (m *Metrics) delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) evictedPending(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

func (m *Metrics) state(pending int, lastCheck time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if !lastCheck.IsZero() {
		m.lastCheck.Set(float64(lastCheck.Unix()))
	}
}
