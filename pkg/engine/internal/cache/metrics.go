package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the traffic through caches. A nil *Metrics records
// nothing.
type Metrics struct {
	fragmentsPushed *prometheus.CounterVec
	fragmentsPulled *prometheus.CounterVec
	bytesPushed     *prometheus.CounterVec
	blockedPushes   *prometheus.CounterVec
}

// NewMetrics creates cache metrics registered to reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		fragmentsPushed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_cache_fragments_pushed_total",
			Help: "Total number of fragments pushed into caches, by cache type",
		}, []string{"type"}),
		fragmentsPulled: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_cache_fragments_pulled_total",
			Help: "Total number of fragments handed to consumers, by cache type. Concatenated fragments count once",
		}, []string{"type"}),
		bytesPushed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_cache_bytes_pushed_total",
			Help: "Total number of buffer bytes pushed into caches, by cache type",
		}, []string{"type"}),
		blockedPushes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_cache_blocked_pushes_total",
			Help: "Total number of pushes that had to wait for the consumer because the cache was full",
		}, []string{"type"}),
	}
}

func (m *Metrics) observePush(t Type, size int64) {
	if m == nil {
		return
	}
	m.fragmentsPushed.WithLabelValues(t.String()).Inc()
	m.bytesPushed.WithLabelValues(t.String()).Add(float64(size))
}

func (m *Metrics) observePull(t Type) {
	if m == nil {
		return
	}
	m.fragmentsPulled.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) observeBlocked(t Type) {
	if m == nil {
		return
	}
	m.blockedPushes.WithLabelValues(t.String()).Inc()
}
