package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	FiringsTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "taskmill_firings_total", Help: "Total task firings"})
	FiringFailures     = prometheus.NewCounter(prometheus.CounterOpts{Name: "taskmill_firing_failures_total", Help: "Firings that ended in a consumer fault"})
	FiringDuration     = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "taskmill_firing_duration_seconds", Help: "Wall-clock run time of task firings"})
	RegisteredTasks    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "taskmill_registered_tasks", Help: "Tasks currently registered"})
	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "taskmill_audit_write_failures_total", Help: "Audit entries that failed to persist"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			FiringsTotal,
			FiringFailures,
			FiringDuration,
			RegisteredTasks,
			AuditWriteFailures,
		)
	})
	return promhttp.Handler()
}
