// Package metrics provides Prometheus metrics collection for the compiler
// and its HTTP inspector surface.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Compiler metrics.
	CompilesTotal       *prometheus.CounterVec
	CompileDuration     *prometheus.HistogramVec
	StatesEmittedTotal  *prometheus.CounterVec
	CompileErrorsTotal  *prometheus.CounterVec

	// HTTP inspector metrics.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Registry store metrics.
	RegistryQueriesTotal  *prometheus.CounterVec
	RegistryQueryDuration *prometheus.HistogramVec

	ServiceInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CompilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sfnc_compiles_total",
				Help: "Total number of state-machine compilations attempted",
			},
			[]string{"machine", "status"},
		),
		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sfnc_compile_duration_seconds",
				Help:    "Time spent compiling one state machine",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"machine"},
		),
		StatesEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sfnc_states_emitted_total",
				Help: "Total number of states emitted by the compiler, by kind",
			},
			[]string{"machine", "kind"},
		),
		CompileErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sfnc_compile_errors_total",
				Help: "Total number of compile errors, by error code",
			},
			[]string{"machine", "code"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sfnc_http_requests_total",
				Help: "Total number of inspector HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sfnc_http_request_duration_seconds",
				Help:    "Inspector HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sfnc_http_requests_in_flight",
				Help: "Current number of in-flight inspector HTTP requests",
			},
		),

		RegistryQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sfnc_registry_queries_total",
				Help: "Total number of construct registry store queries",
			},
			[]string{"operation", "status"},
		),
		RegistryQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sfnc_registry_query_duration_seconds",
				Help:    "Construct registry store query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),

		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sfnc_build_info",
				Help: "Compiler build information",
			},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.CompilesTotal,
			m.CompileDuration,
			m.StatesEmittedTotal,
			m.CompileErrorsTotal,
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.RegistryQueriesTotal,
			m.RegistryQueryDuration,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)

	return m
}

// RecordCompile records a single compile attempt and its state fan-out.
func (m *Metrics) RecordCompile(machine string, statusOK bool, duration time.Duration, statesByKind map[string]int) {
	status := "ok"
	if !statusOK {
		status = "error"
	}
	m.CompilesTotal.WithLabelValues(machine, status).Inc()
	m.CompileDuration.WithLabelValues(machine).Observe(duration.Seconds())
	for kind, n := range statesByKind {
		m.StatesEmittedTotal.WithLabelValues(machine, kind).Add(float64(n))
	}
}

// RecordCompileError records a compile failure by error code.
func (m *Metrics) RecordCompileError(machine, code string) {
	m.CompileErrorsTotal.WithLabelValues(machine, code).Inc()
}

// RecordHTTPRequest records an inspector HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRegistryQuery records a construct registry store query.
func (m *Metrics) RecordRegistryQuery(operation string, statusOK bool, duration time.Duration) {
	status := "ok"
	if !statusOK {
		status = "error"
	}
	m.RegistryQueriesTotal.WithLabelValues(operation, status).Inc()
	m.RegistryQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

// Enabled returns whether Prometheus metrics should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("sfnc")
	}
	return globalMetrics
}
