package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
)

// StoreMetrics holds Prometheus metrics fed from storefront bus events.
type StoreMetrics struct {
	// Bus traffic
	EventsPublished *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec

	// Catalog
	CatalogProducts prometheus.Gauge
	Loading         prometheus.Gauge

	// Basket
	BasketItems prometheus.Gauge
	BasketValue prometheus.Gauge

	// Checkout funnel
	CheckoutStep     *prometheus.CounterVec
	ValidationFailed *prometheus.CounterVec
	OrdersReady      prometheus.Counter
	OrdersSubmitted  prometheus.Counter
	OrderValue       prometheus.Histogram

	// Failures reported by the workflow
	ErrorsReported *prometheus.CounterVec
}

// NewStoreMetrics creates the metrics and registers them with reg. A nil reg
// registers with the default registry.
func NewStoreMetrics(namespace string, reg prometheus.Registerer) *StoreMetrics {
	if namespace == "" {
		namespace = "larek"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	subsystem := "store"

	return &StoreMetrics{
		// =======================================================================
		// Bus traffic
		// =======================================================================
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Total events published on the bus",
			},
			[]string{"topic"},
		),
		HandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handler_failures_total",
				Help:      "Total event handlers that returned an error or panicked",
			},
			[]string{"topic"},
		),

		// =======================================================================
		// Catalog
		// =======================================================================
		CatalogProducts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "catalog_products",
				Help:      "Number of products in the loaded catalog",
			},
		),
		Loading: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "loading",
				Help:      "1 while the catalog is being fetched",
			},
		),

		// =======================================================================
		// Basket
		// =======================================================================
		BasketItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "basket_items",
				Help:      "Number of items in the basket",
			},
		),
		BasketValue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "basket_value",
				Help:      "Sum of basket item prices",
			},
		),

		// =======================================================================
		// Checkout funnel
		// =======================================================================
		CheckoutStep: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_step_total",
				Help:      "Total entries into each checkout step",
			},
			[]string{"step"},
		),
		ValidationFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "validation_failed_total",
				Help:      "Total validation passes with an error on the field",
			},
			[]string{"field"},
		),
		OrdersReady: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_ready_total",
				Help:      "Total times the draft order passed validation",
			},
		),
		OrdersSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_submitted_total",
				Help:      "Total orders accepted by the backend",
			},
		),
		OrderValue: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Total of submitted orders",
				Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
			},
		),

		// =======================================================================
		// Failures
		// =======================================================================
		ErrorsReported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_reported_total",
				Help:      "Total background failures reported by the workflow",
			},
			[]string{"code"},
		),
	}
}

// Attach subscribes the metrics to every bus event.
func (m *StoreMetrics) Attach(b *bus.Bus) bus.Subscription {
	return b.Subscribe(bus.All(), m.observe)
}

// HandlerFailed counts a failed handler. It matches bus.ErrorHook.
func (m *StoreMetrics) HandlerFailed(_ context.Context, ev bus.Event, _ error) {
	m.HandlerFailures.WithLabelValues(ev.Topic.String()).Inc()
}

func (m *StoreMetrics) observe(_ context.Context, ev bus.Event) error {
	m.EventsPublished.WithLabelValues(ev.Topic.String()).Inc()

	if ev.Topic == bus.TopicStepChanged {
		m.CheckoutStep.WithLabelValues(fmt.Sprint(ev.Payload)).Inc()
		return nil
	}

	switch p := ev.Payload.(type) {
	case []domain.CatalogItem:
		m.CatalogProducts.Set(float64(len(p)))
	case []domain.Product:
		var value int64
		for _, item := range p {
			value += item.PriceValue()
		}
		m.BasketItems.Set(float64(len(p)))
		m.BasketValue.Set(float64(value))
	case bool:
		if ev.Topic == bus.TopicLoadingChanged {
			m.Loading.Set(boolGauge(p))
		}
	case domain.FormErrors:
		for field := range p {
			m.ValidationFailed.WithLabelValues(string(field)).Inc()
		}
	case domain.Order:
		m.OrdersReady.Inc()
	case domain.OrderResult:
		m.OrdersSubmitted.Inc()
		m.OrderValue.Observe(float64(p.Total))
	case error:
		m.ErrorsReported.WithLabelValues(domain.ErrorCode(p)).Inc()
	}
	return nil
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
