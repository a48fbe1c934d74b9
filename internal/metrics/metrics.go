// Package metrics exposes Prometheus instrumentation for the tool
// dispatch and agent execution paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. It
// implements the dispatcher's Observer interface.
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Agent metrics
	AgentRunsTotal   *prometheus.CounterVec
	AgentRunDuration *prometheus.HistogramVec

	// Session metrics
	SessionsTotal      prometheus.Counter
	SessionRoundsTotal prometheus.Counter

	// Permission metrics
	PermissionDecisionsTotal *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		AgentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Total number of agent runs",
			},
			[]string{"agent_type", "status"},
		),
		AgentRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type"},
		),

		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_total",
				Help: "Total number of conversation sessions started",
			},
		),
		SessionRoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "session_rounds_total",
				Help: "Total number of model-call rounds across all sessions",
			},
		),

		PermissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permission_decisions_total",
				Help: "Permission gate decisions by outcome",
			},
			[]string{"category", "decision"},
		),
	}

	m.registerMetrics()
	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.AgentRunsTotal)
	m.registry.MustRegister(m.AgentRunDuration)
	m.registry.MustRegister(m.SessionsTotal)
	m.registry.MustRegister(m.SessionRoundsTotal)
	m.registry.MustRegister(m.PermissionDecisionsTotal)
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordAgentRun records one finished agent run.
func (m *Metrics) RecordAgentRun(agentType string, duration time.Duration, status string) {
	m.AgentRunsTotal.WithLabelValues(agentType, status).Inc()
	m.AgentRunDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordSessionStart records a new conversation session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
}

// RecordSessionRounds adds finished model-call rounds.
func (m *Metrics) RecordSessionRounds(rounds int) {
	m.SessionRoundsTotal.Add(float64(rounds))
}

// RecordPermissionDecision records one gate outcome.
func (m *Metrics) RecordPermissionDecision(category, decision string) {
	m.PermissionDecisionsTotal.WithLabelValues(category, decision).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
