package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tool calls and the database link.
type Metrics struct {
	// Tool calls by primary operation and outcome
	ToolCalls *prometheus.CounterVec

	// Tool call latency by primary operation
	CallLatency *prometheus.HistogramVec

	// 1 when the last database probe succeeded
	DatabaseUp prometheus.Gauge
}

// New registers all metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icio_tool_calls_total",
			Help: "Total tool calls by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "ok", "invalid_input", "error"

		CallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "icio_tool_call_duration_seconds",
			Help:    "Duration of tool calls including validation lookups and the query",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		DatabaseUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "icio_database_up",
			Help: "Whether the last database probe succeeded",
		}),
	}
}

// ObserveCall records the outcome and latency of one tool call.
func (m *Metrics) ObserveCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(operation, outcome).Inc()
	m.CallLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetDatabaseUp records the result of a database probe.
func (m *Metrics) SetDatabaseUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.DatabaseUp.Set(1)
		return
	}
	m.DatabaseUp.Set(0)
}
