package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics records the outcome of POS sales and every stock movement.
type SalesMetrics struct {
	committed *prometheus.CounterVec
	aborted   *prometheus.CounterVec
	movements *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewSalesMetrics registers the sales metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSalesMetrics(reg prometheus.Registerer) *SalesMetrics {
	if reg == nil {
		return &SalesMetrics{}
	}
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_committed_total",
		Help: "POS sales committed, by payment method.",
	}, []string{"payment_method"})
	aborted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_aborted_total",
		Help: "POS sales rolled back, by error code.",
	}, []string{"reason"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Stock movements written to the ledger, by direction.",
	}, []string{"type"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_duration_seconds",
		Help:    "Time spent inside the sale transaction.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(committed, aborted, movements, duration)
	return &SalesMetrics{
		committed: committed,
		aborted:   aborted,
		movements: movements,
		duration:  duration,
	}
}

func (m *SalesMetrics) IncCommitted(paymentMethod string) {
	if m == nil || m.committed == nil {
		return
	}
	m.committed.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (m *SalesMetrics) IncAborted(reason string) {
	if m == nil || m.aborted == nil {
		return
	}
	m.aborted.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *SalesMetrics) IncMovement(movementType string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(movementType)).Inc()
}

func (m *SalesMetrics) ObserveDuration(d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
