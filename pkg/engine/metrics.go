package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/anthropics/purple-iqrf/pkg/dpa"
)

// Metrics holds the dispatcher's Prometheus instrumentation. The collectors
// are not registered anywhere by default; callers pull them off the handler
// and register them with their own registry.
type Metrics struct {
	transactions   *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  prometheus.Counter
	inflight       prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iqrf",
			Subsystem: "dpa",
			Name:      "transactions_total",
			Help:      "Completed DPA transactions by result code.",
		}, []string{"result"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iqrf",
			Subsystem: "dpa",
			Name:      "frames_received_total",
			Help:      "Inbound frames by classified direction.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iqrf",
			Subsystem: "dpa",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped: unparsable, mismatched or unsolicited.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iqrf",
			Subsystem: "dpa",
			Name:      "transactions_in_flight",
			Help:      "Whether a transaction currently owns the link (0 or 1).",
		}),
	}
}

func (m *Metrics) observeResult(code dpa.ErrorCode) {
	m.transactions.WithLabelValues(code.String()).Inc()
}

// Collectors returns every collector the dispatcher maintains, for
// registration with a caller-owned Prometheus registry.
func (h *Handler) Collectors() []prometheus.Collector {
	m := h.metrics
	return []prometheus.Collector{m.transactions, m.framesReceived, m.framesDropped, m.inflight,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "iqrf",
			Subsystem: "dpa",
			Name:      "queue_depth",
			Help:      "Transactions waiting for the link.",
		}, func() float64 { return float64(len(h.queue)) }),
	}
}
