package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusEmpty   = "empty"
)

type metrics struct {
	queries *prometheus.CounterVec

	planning  prometheus.Histogram
	execution prometheus.Histogram

	planCacheHits   prometheus.Counter
	planCacheMisses prometheus.Counter
	kernelsStarted  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_queries_total",
			Help: "Total number of executed plans by status",
		}, []string{"status"}),

		planning: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "blazing_engine_planning_duration_seconds",
			Help: "Time spent parsing plans and building their execution graph",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		execution: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "blazing_engine_execution_duration_seconds",
			Help: "Time spent executing graphs until their result is available",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		planCacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blazing_engine_plan_cache_hits_total",
			Help: "Total number of plans served from the plan cache",
		}),
		planCacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blazing_engine_plan_cache_misses_total",
			Help: "Total number of plans parsed because they were not cached",
		}),
		kernelsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "blazing_engine_kernels_started_total",
			Help: "Total number of operators scheduled, including the output operator",
		}),
	}
}
