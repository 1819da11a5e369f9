package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomrelay"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	Joins             prometheus.Counter
	Leaves            prometheus.Counter

	// Subscription metrics
	Subscribes   *prometheus.CounterVec
	Unsubscribes *prometheus.CounterVec

	// Message metrics
	MessagesReceived prometheus.Counter
	Deliveries       *prometheus.CounterVec
	Publishes        *prometheus.CounterVec

	// Store metrics
	StoreErrors *prometheus.CounterVec
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns the /metrics handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with all relay metrics plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of gateway connections currently open on this process.",
		}),
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Total group joins handled by this process.",
		}),
		Leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaves_total",
			Help:      "Total connection leaves handled by this process.",
		}),
		Subscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribe_total",
			Help:      "Channel subscribe requests by result.",
		}, []string{"result"}),
		Unsubscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsubscribe_total",
			Help:      "Channel unsubscribe requests by result.",
		}, []string{"result"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from the coordination store.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection message deliveries by result.",
		}, []string{"result"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Messages published through the HTTP API by result.",
		}, []string{"result"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed coordination store operations by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		r.ConnectionsActive,
		r.Joins,
		r.Leaves,
		r.Subscribes,
		r.Unsubscribes,
		r.MessagesReceived,
		r.Deliveries,
		r.Publishes,
		r.StoreErrors,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ConnectionOpened increments the active connection gauge.
func (r *Registry) ConnectionOpened() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (r *Registry) ConnectionClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

// IncJoin counts a group join.
func (r *Registry) IncJoin() {
	if r == nil {
		return
	}
	r.Joins.Inc()
}

// IncLeave counts a connection leave.
func (r *Registry) IncLeave() {
	if r == nil {
		return
	}
	r.Leaves.Inc()
}

// ObserveSubscribe counts a subscribe request.
func (r *Registry) ObserveSubscribe(err error) {
	if r == nil {
		return
	}
	r.Subscribes.WithLabelValues(result(err)).Inc()
}

// ObserveUnsubscribe counts an unsubscribe request.
func (r *Registry) ObserveUnsubscribe(err error) {
	if r == nil {
		return
	}
	r.Unsubscribes.WithLabelValues(result(err)).Inc()
}

// IncMessageReceived counts a message arriving from the store.
func (r *Registry) IncMessageReceived() {
	if r == nil {
		return
	}
	r.MessagesReceived.Inc()
}

// ObserveDelivery counts a delivery attempt to one connection.
func (r *Registry) ObserveDelivery(err error) {
	if r == nil {
		return
	}
	r.Deliveries.WithLabelValues(result(err)).Inc()
}

// ObservePublish counts a publish request.
func (r *Registry) ObservePublish(err error) {
	if r == nil {
		return
	}
	r.Publishes.WithLabelValues(result(err)).Inc()
}

// IncStoreError counts a failed store operation.
func (r *Registry) IncStoreError(op string) {
	if r == nil {
		return
	}
	r.StoreErrors.WithLabelValues(op).Inc()
}
