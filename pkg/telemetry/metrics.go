package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for assembly runs.
type Metrics struct {
	config MetricsConfig

	// Assembly metrics
	assembliesStarted   prometheus.Counter
	assembliesCompleted *prometheus.CounterVec
	assemblyDuration    *prometheus.HistogramVec
	assemblyErrors      *prometheus.CounterVec
	mergeErrors         *prometheus.CounterVec
	componentsAssembled *prometheus.GaugeVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Reload metrics
	reloads *prometheus.CounterVec

	// Component lifecycle metrics
	componentOps        *prometheus.CounterVec
	componentOpDuration *prometheus.HistogramVec
	runningComponents   prometheus.Gauge

	activeAssemblies prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled collector accepts every call and records nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		assembliesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assemblies_started_total",
				Help:      "Total number of assembly runs started",
			},
		),
		assembliesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assemblies_completed_total",
				Help:      "Total number of assembly runs completed",
			},
			[]string{"status"},
		),
		assemblyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "assembly_duration_seconds",
				Help:      "Duration of assembly runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		assemblyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assembly_errors_total",
				Help:      "Total number of failed assembly runs by error kind",
			},
			[]string{"kind"},
		),
		mergeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merge_errors_total",
				Help:      "Total number of merge errors by kind",
			},
			[]string{"kind"},
		),
		componentsAssembled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "components_assembled",
				Help:      "Number of components in the last successful assembly",
			},
			[]string{"kind"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations",
			},
			[]string{"policy", "severity"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of configuration and policy reloads",
			},
			[]string{"source", "status"},
		),
		componentOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_operations_total",
				Help:      "Total number of component lifecycle operations",
			},
			[]string{"create_ref", "operation", "status"},
		),
		componentOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "component_operation_duration_seconds",
				Help:      "Duration of component lifecycle operations in seconds",
				Buckets:   buckets,
			},
			[]string{"create_ref", "operation"},
		),
		runningComponents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_components",
				Help:      "Current number of started components",
			},
		),
		activeAssemblies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_assemblies",
				Help:      "Current number of assembly runs in progress",
			},
		),
	}

	registry.MustRegister(
		m.assembliesStarted,
		m.assembliesCompleted,
		m.assemblyDuration,
		m.assemblyErrors,
		m.mergeErrors,
		m.componentsAssembled,
		m.policyViolations,
		m.reloads,
		m.componentOps,
		m.componentOpDuration,
		m.runningComponents,
		m.activeAssemblies,
	)

	return m, nil
}

// Registry returns the registry backing the collector, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAssemblyStarted counts a started assembly run.
func (m *Metrics) RecordAssemblyStarted() {
	if m.registry == nil {
		return
	}
	m.assembliesStarted.Inc()
	m.activeAssemblies.Inc()
}

// RecordAssemblyCompleted records a finished run. kind is the error kind of
// a failed run and empty for a successful one.
func (m *Metrics) RecordAssemblyCompleted(kind string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	status := "success"
	if kind != "" {
		status = "failed"
		m.assemblyErrors.WithLabelValues(kind).Inc()
	}
	m.assembliesCompleted.WithLabelValues(status).Inc()
	m.assemblyDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeAssemblies.Dec()
}

// RecordMergeError counts one merge error.
func (m *Metrics) RecordMergeError(kind string) {
	if m.registry == nil {
		return
	}
	m.mergeErrors.WithLabelValues(kind).Inc()
}

// SetComponentCounts sets the wired and opaque component counts.
func (m *Metrics) SetComponentCounts(wired, opaque int) {
	if m.registry == nil {
		return
	}
	m.componentsAssembled.WithLabelValues("wired").Set(float64(wired))
	m.componentsAssembled.WithLabelValues("opaque").Set(float64(opaque))
}

// RecordPolicyViolation counts one policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.registry == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// RecordReload counts a reload of configuration or policy files.
func (m *Metrics) RecordReload(source string, err error) {
	if m.registry == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.reloads.WithLabelValues(source, status).Inc()
}

// RecordComponentOperation records one lifecycle operation on a component.
func (m *Metrics) RecordComponentOperation(createRef, operation string, duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.componentOps.WithLabelValues(createRef, operation, status).Inc()
	m.componentOpDuration.WithLabelValues(createRef, operation).Observe(duration.Seconds())
}

// SetRunningComponents sets the number of started components.
func (m *Metrics) SetRunningComponents(count int) {
	if m.registry == nil {
		return
	}
	m.runningComponents.Set(float64(count))
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer binds the metrics endpoint and serves it until ctx is
// done. Bind errors are returned; serve errors go to errorFn.
func (m *Metrics) StartMetricsServer(ctx context.Context, errorFn func(error)) error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	listener, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddress, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && errorFn != nil {
			errorFn(err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return nil
}
