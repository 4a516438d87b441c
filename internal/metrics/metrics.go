package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors for package-sync.
// A run is short-lived, so the registry is written to a node_exporter
// textfile instead of being served over HTTP.
type Metrics struct {
	registry               *prometheus.Registry
	runDurationSeconds     prometheus.Histogram
	packagesTotal          *prometheus.GaugeVec
	operationsTotal        *prometheus.CounterVec
	managerUnavailable     *prometheus.GaugeVec
	stateRecoveriesTotal   prometheus.Counter
	lastSuccessfulRunGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "package_sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		packagesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "package_sync_packages_total",
			Help: "Installed packages recorded for this machine by manager.",
		}, []string{"machine", "manager"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "package_sync_operations_total",
			Help: "Package install/remove operations by manager, operation and result.",
		}, []string{"manager", "op", "result"}),
		managerUnavailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "package_sync_manager_unavailable",
			Help: "1 when the package manager could not be listed during the last run.",
		}, []string{"manager"}),
		stateRecoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "package_sync_state_recoveries_total",
			Help: "Corrupted state files that were backed up and replaced.",
		}),
		lastSuccessfulRunGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "package_sync_last_successful_run_timestamp",
			Help: "Unix timestamp of the last successful run.",
		}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.packagesTotal,
		m.operationsTotal,
		m.managerUnavailable,
		m.stateRecoveriesTotal,
		m.lastSuccessfulRunGauge,
	)

	return m
}

// WriteTextfile writes the registry in the text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveRunDuration records the duration of a completed run.
func (m *Metrics) ObserveRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.Observe(duration.Seconds())
}

// SetPackagesTotal sets the package gauge for the given machine/manager.
func (m *Metrics) SetPackagesTotal(machine string, manager string, value int) {
	if m == nil {
		return
	}
	m.packagesTotal.WithLabelValues(machine, manager).Set(float64(value))
}

// IncOperation counts one install or remove attempt.
func (m *Metrics) IncOperation(manager string, op string, failed bool) {
	if m == nil {
		return
	}
	result := "success"
	if failed {
		result = "failure"
	}
	m.operationsTotal.WithLabelValues(manager, op, result).Inc()
}

// SetManagerUnavailable flags whether a manager was skipped.
func (m *Metrics) SetManagerUnavailable(manager string, unavailable bool) {
	if m == nil {
		return
	}
	value := 0.0
	if unavailable {
		value = 1
	}
	m.managerUnavailable.WithLabelValues(manager).Set(value)
}

// IncStateRecoveries counts a corrupted state file replacement.
func (m *Metrics) IncStateRecoveries() {
	if m == nil {
		return
	}
	m.stateRecoveriesTotal.Inc()
}

// SetLastSuccessfulRunTimestamp sets the last successful run time.
func (m *Metrics) SetLastSuccessfulRunTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRunGauge.Set(float64(t.Unix()))
}
