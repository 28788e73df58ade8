package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos"

// Metrics holds the business counters of the inventory engine.
type Metrics struct {
	registry *prometheus.Registry

	SalesCreated        prometheus.Counter
	SalesCancelled      prometheus.Counter
	ReservationFailures *prometheus.CounterVec
	ReturnsProcessed    *prometheus.CounterVec
	LowStockAlerts      prometheus.Counter
	EventsDispatched    *prometheus.CounterVec
	StockAdjustments    *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry, so tests can build as many as they like.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		SalesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_created_total",
			Help:      "Sales committed",
		}),
		SalesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_cancelled_total",
			Help:      "Sales cancelled",
		}),
		ReservationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_failures_total",
			Help:      "Stock reservations aborted, by reason",
		}, []string{"reason"}),
		ReturnsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_processed_total",
			Help:      "Returns moved out of pending, by resulting status",
		}, []string{"status"}),
		LowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Low-stock notifications sent",
		}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Domain events dispatched after commit",
		}, []string{"type", "result"}),
		StockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_total",
			Help:      "Manual stock adjustments, by operation",
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.SalesCreated,
		m.SalesCancelled,
		m.ReservationFailures,
		m.ReturnsProcessed,
		m.LowStockAlerts,
		m.EventsDispatched,
		m.StockAdjustments,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
