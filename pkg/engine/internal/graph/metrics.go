package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a container of metrics for graph executions. A nil *Metrics
// records nothing.
type Metrics struct {
	// registry to collect metrics as a unit.
	reg *prometheus.Registry

	kernelsTotal *prometheus.CounterVec

	kernelAdmissionSeconds prometheus.Histogram
	kernelExecSeconds      *prometheus.HistogramVec
}

// NewMetrics creates a new set of graph metrics. Call [Metrics.Register] to
// expose them.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		reg: reg,

		kernelsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blazing_engine_graph_kernels_total",
			Help: "Total number of kernels by kind and state, counting transitions into state",
		}, []string{"kind", "state"}),

		kernelAdmissionSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "blazing_engine_graph_kernel_admission_seconds",
			Help: "Number of seconds a scan kernel waited for an admission slot",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		kernelExecSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "blazing_engine_graph_kernel_exec_seconds",
			Help: "Number of seconds a kernel took to run, by kind",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}, []string{"kind"}),
	}
}

// Register registers metrics to report to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error { return reg.Register(m.reg) }

// Unregister unregisters metrics from the provided Registerer.
func (m *Metrics) Unregister(reg prometheus.Registerer) { reg.Unregister(m.reg) }

func (m *Metrics) observeState(kind string, s State) {
	if m == nil {
		return
	}
	m.kernelsTotal.WithLabelValues(kind, s.String()).Inc()
}

func (m *Metrics) observeAdmission(d time.Duration) {
	if m == nil {
		return
	}
	m.kernelAdmissionSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeExec(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.kernelExecSeconds.WithLabelValues(kind).Observe(d.Seconds())
}
