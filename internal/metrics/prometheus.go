package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "extendedbot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry           *prometheus.Registry
	ordersPlaced       prometheus.Counter
	ordersFailed       prometheus.Counter
	openCycles         prometheus.Counter
	closeCycles        prometheus.Counter
	validationFailures prometheus.Counter
	missedCloses       prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	openCycles := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "open_cycles_total",
		Help:      "Total number of basket open attempts.",
	})
	closeCycles := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "close_cycles_total",
		Help:      "Total number of basket close attempts.",
	})
	validationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "validation_failures_total",
		Help:      "Total number of basket validation failures.",
	})
	missedCloses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "missed_close_recoveries_total",
		Help:      "Total number of closes triggered past the expected close date.",
	})

	registry.MustRegister(ordersPlaced, ordersFailed, openCycles, closeCycles, validationFailures, missedCloses)

	m := &Metrics{
		OrdersPlaced:          promCounter{ordersPlaced},
		OrdersFailed:          promCounter{ordersFailed},
		OpenCycles:            promCounter{openCycles},
		CloseCycles:           promCounter{closeCycles},
		ValidationFailures:    promCounter{validationFailures},
		MissedCloseRecoveries: promCounter{missedCloses},
	}

	return &Prometheus{
		Metrics:            m,
		registry:           registry,
		ordersPlaced:       ordersPlaced,
		ordersFailed:       ordersFailed,
		openCycles:         openCycles,
		closeCycles:        closeCycles,
		validationFailures: validationFailures,
		missedCloses:       missedCloses,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
