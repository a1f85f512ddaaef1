package usecase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics instruments queries and mutations. A nil *SyncMetrics is valid
// and records nothing.
type SyncMetrics struct {
	fetches   *prometheus.CounterVec
	retries   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	discarded *prometheus.CounterVec
	mutations *prometheus.CounterVec
	live      prometheus.Gauge
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loki_dashboard",
			Name:      "query_fetches_total",
			Help:      "Completed query fetches by result.",
		}, []string{"query", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loki_dashboard",
			Name:      "query_retries_total",
			Help:      "Immediate retry attempts after a failed fetch.",
		}, []string{"query"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loki_dashboard",
			Name:      "query_fetch_duration_seconds",
			Help:      "Fetch latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loki_dashboard",
			Name:      "query_results_discarded_total",
			Help:      "Results dropped because a newer request superseded them.",
		}, []string{"query"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loki_dashboard",
			Name:      "mutations_total",
			Help:      "Control actions by result.",
		}, []string{"mutation", "result"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loki_dashboard",
			Name:      "live_updates",
			Help:      "1 while live updates are on.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.retries, m.duration, m.discarded, m.mutations, m.live)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *SyncMetrics) observeFetch(key QueryKey, err error, attempts int, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(string(key), result(err)).Inc()
	if attempts > 1 {
		m.retries.WithLabelValues(string(key)).Add(float64(attempts - 1))
	}
	m.duration.WithLabelValues(string(key)).Observe(took.Seconds())
}

func (m *SyncMetrics) observeDiscard(key QueryKey) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(string(key)).Inc()
}

func (m *SyncMetrics) observeMutation(name MutationName, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(name), result(err)).Inc()
}

func (m *SyncMetrics) setLive(on bool) {
	if m == nil {
		return
	}
	if on {
		m.live.Set(1)
	} else {
		m.live.Set(0)
	}
}
