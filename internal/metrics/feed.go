package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/renix-codex/feedsync/internal/feed"
)

type feedMetrics struct {
	loads        *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	upsertBatch  prometheus.Histogram
	visible      prometheus.Gauge
	total        prometheus.Gauge
	superseded   prometheus.Counter
}

// NewFeedMetrics returns engine metrics, or nil when metrics are disabled.
func NewFeedMetrics() feed.Metrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return newFeedMetrics(reg)
}

func newFeedMetrics(reg prometheus.Registerer) *feedMetrics {
	f := promauto.With(reg)
	return &feedMetrics{
		loads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Completed loads by source and outcome",
			},
			[]string{"remote", "outcome"},
		),
		loadDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Load duration from start to published result",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"remote"},
		),
		upsertBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_batch_size",
			Help:      "Posts merged into the store per refresh",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		visible: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_visible_posts",
			Help:      "Posts in the pagination window",
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_total_posts",
			Help:      "Posts in the local store",
		}),
		superseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_superseded_total",
			Help:      "Stale remote loads replaced by a newer refresh",
		}),
	}
}

func (m *feedMetrics) ObserveLoad(remote bool, outcome string, seconds float64) {
	if m == nil {
		return
	}
	r := strconv.FormatBool(remote)
	m.loads.WithLabelValues(r, outcome).Inc()
	m.loadDuration.WithLabelValues(r).Observe(seconds)
}

func (m *feedMetrics) ObserveUpsert(batch int) {
	if m == nil {
		return
	}
	m.upsertBatch.Observe(float64(batch))
}

func (m *feedMetrics) RecordWindow(visible, total int) {
	if m == nil {
		return
	}
	m.visible.Set(float64(visible))
	m.total.Set(float64(total))
}

func (m *feedMetrics) RecordSuperseded() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}
