// Package metrics holds the Prometheus collectors exported by the runtime.
// Every method is safe on a nil *Metrics so instrumentation stays optional.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups dispatch and HTTP collectors.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	MessagesUnrouted  *prometheus.CounterVec
	HandlerRuns       *prometheus.CounterVec
	HandlerFailures   *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec
	ContextsOpen      prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
	HTTPInFlight      prometheus.Gauge
}

// New creates the collectors under namespace and registers them with reg.
// Collectors that are already registered are reused.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "nether"
	}
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Messages submitted to a context, by kind and type.",
		}, []string{"kind", "type"}),
		MessagesUnrouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_unrouted_total",
			Help:      "Commands and queries dropped because no component accepted them.",
		}, []string{"type"}),
		HandlerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_runs_total",
			Help:      "Dispatch tasks started, by component and message type.",
		}, []string{"component", "type"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Dispatch tasks that returned an error or panicked.",
		}, []string{"component", "type"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in component Handle calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "type"}),
		ContextsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_open",
			Help:      "Mediator contexts currently registered.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status.",
		}, []string{"method", "status"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.MessagesProcessed = register(reg, m.MessagesProcessed, &err)
	m.MessagesUnrouted = register(reg, m.MessagesUnrouted, &err)
	m.HandlerRuns = register(reg, m.HandlerRuns, &err)
	m.HandlerFailures = register(reg, m.HandlerFailures, &err)
	m.HandlerDuration = register(reg, m.HandlerDuration, &err)
	m.ContextsOpen = register(reg, m.ContextsOpen, &err)
	m.HTTPRequests = register(reg, m.HTTPRequests, &err)
	m.HTTPInFlight = register(reg, m.HTTPInFlight, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = errors.Join(*errp, err)
	}
	return c
}

func (m *Metrics) MessageProcessed(kind, typ string) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(kind, typ).Inc()
}

func (m *Metrics) MessageUnrouted(typ string) {
	if m == nil {
		return
	}
	m.MessagesUnrouted.WithLabelValues(typ).Inc()
}

// HandlerFinished records one completed dispatch task.
func (m *Metrics) HandlerFinished(component, typ string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.HandlerRuns.WithLabelValues(component, typ).Inc()
	m.HandlerDuration.WithLabelValues(component, typ).Observe(d.Seconds())
	if err != nil {
		m.HandlerFailures.WithLabelValues(component, typ).Inc()
	}
}

func (m *Metrics) ContextOpened() {
	if m == nil {
		return
	}
	m.ContextsOpen.Inc()
}

func (m *Metrics) ContextClosed() {
	if m == nil {
		return
	}
	m.ContextsOpen.Dec()
}

// RequestStarted bumps the in-flight gauge and returns the matching completion func.
func (m *Metrics) RequestStarted() func(method string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	m.HTTPInFlight.Inc()
	return func(method string, status int) {
		m.HTTPInFlight.Dec()
		m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}
