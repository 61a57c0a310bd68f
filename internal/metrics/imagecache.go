package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/renix-codex/feedsync/internal/imagecache"
)

type imageCacheMetrics struct {
	lookups     *prometheus.CounterVec
	fetchErrors prometheus.Counter
}

// NewImageCacheMetrics returns image cache metrics, or nil when metrics are
// disabled.
func NewImageCacheMetrics() imagecache.Metrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return newImageCacheMetrics(reg)
}

func newImageCacheMetrics(reg prometheus.Registerer) *imageCacheMetrics {
	f := promauto.With(reg)
	return &imageCacheMetrics{
		lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "image_cache",
				Name:      "lookups_total",
				Help:      "Image loads by result",
			},
			[]string{"result"}, // "hit", "miss", "coalesced"
		),
		fetchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image_cache",
			Name:      "fetch_errors_total",
			Help:      "Image downloads that failed",
		}),
	}
}

func (m *imageCacheMetrics) Hit()       { m.lookups.WithLabelValues("hit").Inc() }
func (m *imageCacheMetrics) Miss()      { m.lookups.WithLabelValues("miss").Inc() }
func (m *imageCacheMetrics) Coalesced() { m.lookups.WithLabelValues("coalesced").Inc() }
func (m *imageCacheMetrics) FetchError() {
	m.fetchErrors.Inc()
}
