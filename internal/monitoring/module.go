package monitoring

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "linkcard".
	Namespace string
}

// Module owns the maintenance collectors, the job registry and the health manager.
type Module struct {
	registry *prometheus.Registry
	metrics  *collectors
	jobs     *JobRegistry
	health   *HealthManager
}

type collectors struct {
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "linkcard"
	}

	metrics := &collectors{
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance job executions by result",
		}, []string{"job", "result"}),
		maintenanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "maintenance_duration_seconds",
			Help:      "Maintenance job duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		maintenanceLastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "maintenance_last_success_timestamp",
			Help:      "Unix time of the last successful maintenance run",
		}, []string{"job"}),
	}

	registry := prometheus.NewRegistry()
	for _, collector := range []prometheus.Collector{
		metrics.maintenanceRuns,
		metrics.maintenanceDuration,
		metrics.maintenanceLastRun,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		jobs:     NewJobRegistry(),
		health:   NewHealthManager(),
	}, nil
}

// Health exposes the module health manager.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Jobs exposes the maintenance job registry.
func (m *Module) Jobs() *JobRegistry {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Handler serves the module registry together with the process-wide default
// registry, which carries the card, click and API metrics.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(prometheus.Gatherers{prometheus.DefaultGatherer, m.registry}, promhttp.HandlerOpts{})
}

// RecordMaintenanceRun records the completion of a maintenance job.
func (m *Module) RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	if m == nil {
		return
	}
	job = normalizeLabel(job, "unknown")
	result = normalizeLabel(result, "unknown")
	if duration < 0 {
		duration = 0
	}

	m.metrics.maintenanceRuns.WithLabelValues(job, result).Inc()
	m.metrics.maintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())
	if result == ResultSuccess {
		m.metrics.maintenanceLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
	m.jobs.Record(job, result, strings.TrimSpace(message), duration)
}

var defaultModule atomic.Pointer[Module]

// SetModule installs the process-wide module used by the package-level helpers.
func SetModule(m *Module) {
	defaultModule.Store(m)
}

// CurrentModule returns the installed module, creating one on first use.
func CurrentModule() *Module {
	if m := defaultModule.Load(); m != nil {
		return m
	}
	m, err := NewModule(Options{})
	if err != nil {
		return nil
	}
	if defaultModule.CompareAndSwap(nil, m) {
		return m
	}
	return defaultModule.Load()
}

// RecordMaintenanceRun records a maintenance run against the installed module.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	CurrentModule().RecordMaintenanceRun(job, result, message, duration)
}

// MaintenanceSnapshot lists the jobs tracked by the installed module.
func MaintenanceSnapshot() []JobSummary {
	return CurrentModule().Jobs().Snapshot()
}

func normalizeLabel(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
