// Package monitoring provides prometheus metrics for optimizer passes and the
// vectorized runtime.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a container of colflow metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// registry to collect metrics as a unit.
	reg *prometheus.Registry

	rewritesTotal  *prometheus.CounterVec
	erasedTotal    *prometheus.CounterVec
	passSeconds    *prometheus.HistogramVec
	tasksTotal     *prometheus.CounterVec
	taskRowsTotal  *prometheus.CounterVec
	taskErrors     prometheus.Counter
	executions     *prometheus.CounterVec
	executeSeconds prometheus.Histogram
}

// NewMetrics creates metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		reg: reg,

		rewritesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "colflow_optimizer_rewrites_total",
			Help: "Total number of committed rewrites by pass and pattern",
		}, []string{"pass", "pattern"}),
		erasedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "colflow_optimizer_erased_nodes_total",
			Help: "Total number of nodes removed as dead code by pass",
		}, []string{"pass"}),
		passSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "colflow_optimizer_pass_seconds",
			Help: "Number of seconds a rewrite pass took to reach a fixed point",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}, []string{"pass"}),
		tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "colflow_runtime_tasks_total",
			Help: "Total number of pipeline tasks executed by worker kind",
		}, []string{"worker"}),
		taskRowsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "colflow_runtime_task_rows_total",
			Help: "Total number of rows processed by pipeline tasks by worker kind",
		}, []string{"worker"}),
		taskErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "colflow_runtime_task_errors_total",
			Help: "Total number of pipeline tasks that failed or panicked",
		}),
		executions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "colflow_runtime_executions_total",
			Help: "Total number of vectorized executions by outcome",
		}, []string{"outcome"}),
		executeSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "colflow_runtime_execute_seconds",
			Help: "Number of seconds one vectorized execution took including the join barrier",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rewritesTotal, m.erasedTotal, m.passSeconds,
		m.tasksTotal, m.taskRowsTotal, m.taskErrors,
		m.executions, m.executeSeconds,
	}
}

// Register registers metrics to report to reg in addition to the private
// registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Unregister unregisters metrics from the provided Registerer.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// RecordRewrite counts one committed rewrite.
func (m *Metrics) RecordRewrite(pass, pattern string) {
	if m == nil {
		return
	}
	m.rewritesTotal.WithLabelValues(pass, pattern).Inc()
}

// RecordPass observes a finished pass.
func (m *Metrics) RecordPass(pass string, d time.Duration, erased int) {
	if m == nil {
		return
	}
	m.passSeconds.WithLabelValues(pass).Observe(d.Seconds())
	m.erasedTotal.WithLabelValues(pass).Add(float64(erased))
}

// RecordTask counts one executed task and the rows it covered.
func (m *Metrics) RecordTask(worker string, rows int, err error) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(worker).Inc()
	m.taskRowsTotal.WithLabelValues(worker).Add(float64(rows))
	if err != nil {
		m.taskErrors.Inc()
	}
}

// RecordExecution observes one Execute call.
func (m *Metrics) RecordExecution(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.executeSeconds.Observe(d.Seconds())
}
