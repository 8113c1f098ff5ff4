// Package metrics exposes Prometheus collectors for the retrieval
// pipeline and the agent loop. Exposition (HTTP endpoint, push) is left
// to the embedding application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the process-wide collectors. A nil *Collector is
// valid everywhere and records nothing.
type Collector struct {
	registry *prometheus.Registry

	retrievalLatency  prometheus.Histogram
	retrievalRequests *prometheus.CounterVec
	agentIterations   prometheus.Histogram
	toolExecutions    *prometheus.CounterVec
}

// NewCollector creates and registers all collectors on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		retrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragtutor",
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Wall-clock latency of Retrieve calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		retrievalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragtutor",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrieve calls by outcome.",
		}, []string{"outcome"}),
		agentIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragtutor",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Iterations consumed per agent execution.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragtutor",
			Subsystem: "agent",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
	}
	c.registry.MustRegister(c.retrievalLatency, c.retrievalRequests, c.agentIterations, c.toolExecutions)
	return c
}

// Registry returns the underlying registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRetrieval records one Retrieve call.
func (c *Collector) ObserveRetrieval(latency time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.retrievalRequests.WithLabelValues(outcome).Inc()
	if err == nil {
		c.retrievalLatency.Observe(latency.Seconds())
	}
}

// ObserveAgentIterations records iterations consumed by one execution.
func (c *Collector) ObserveAgentIterations(n int) {
	if c == nil {
		return
	}
	c.agentIterations.Observe(float64(n))
}

// ObserveToolExecution records one tool invocation outcome.
func (c *Collector) ObserveToolExecution(tool string, success bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	c.toolExecutions.WithLabelValues(tool, outcome).Inc()
}
