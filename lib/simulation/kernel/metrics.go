package kernel

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors the kernel updates as it
// advances ticks. The engine never starts its own HTTP server (there is
// no metrics/HTTP surface in scope per spec §1); host programs register
// these with their own registry, the way the teacher's pkg/metrics
// registers collectors against a package-level Registry.
type Metrics struct {
	TicksProcessed  prometheus.Counter
	TokensCreated   *prometheus.CounterVec // labelled by node_id
	TokensDropped   *prometheus.CounterVec
	NodeErrors      *prometheus.CounterVec
	FeedbackBlocked *prometheus.CounterVec
}

// NewMetrics constructs a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dataflow_sim",
			Subsystem: "kernel",
			Name:      "ticks_processed_total",
			Help:      "Total number of simulation ticks processed.",
		}),
		TokensCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataflow_sim",
			Subsystem: "kernel",
			Name:      "tokens_created_total",
			Help:      "Total number of tokens created, by origin node.",
		}, []string{"node_id"}),
		TokensDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataflow_sim",
			Subsystem: "kernel",
			Name:      "tokens_dropped_total",
			Help:      "Total number of tokens dropped on queue overflow, by node.",
		}, []string{"node_id"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataflow_sim",
			Subsystem: "kernel",
			Name:      "node_errors_total",
			Help:      "Total number of per-node evaluation errors, by node.",
		}, []string{"node_id"}),
		FeedbackBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataflow_sim",
			Subsystem: "kernel",
			Name:      "feedback_blocked_total",
			Help:      "Total number of feedback events/messages rejected, by node.",
		}, []string{"node_id"}),
	}
}

// Collectors returns every collector for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.TicksProcessed, m.TokensCreated, m.TokensDropped, m.NodeErrors, m.FeedbackBlocked}
}
