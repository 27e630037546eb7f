// Package metrics exposes counters for the sync engine.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Requests     *prometheus.CounterVec
	RequestFails *prometheus.CounterVec
	Deduplicated *prometheus.CounterVec
	Events       *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "requests_total",
			Help:      "Requests issued to the server, by method.",
		}, []string{"method"}),
		RequestFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "request_failures_total",
			Help:      "Requests that returned an error, by method.",
		}, []string{"method"}),
		Deduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "requests_deduplicated_total",
			Help:      "Callers that joined an in-flight request instead of issuing one.",
		}, []string{"cache"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "events_total",
			Help:      "Inbound pushes applied, by event.",
		}, []string{"event"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "events_dropped_total",
			Help:      "Inbound pushes that could not be decoded, by event.",
		}, []string{"event"}),
	}
	for _, c := range []**prometheus.CounterVec{&m.Requests, &m.RequestFails, &m.Deduplicated, &m.Events, &m.Dropped} {
		if err := reg.Register(*c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			*c = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return m, nil
}

// Request counts a request to method and whether it failed.
func (m *Metrics) Request(method string, err error) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method).Inc()
	if err != nil {
		m.RequestFails.WithLabelValues(method).Inc()
	}
}

// Shared counts a caller joining an in-flight request of cache.
func (m *Metrics) Shared(cache string) {
	if m == nil {
		return
	}
	m.Deduplicated.WithLabelValues(cache).Inc()
}

// Event counts an applied push.
func (m *Metrics) Event(event string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(event).Inc()
}

// Drop counts a push that failed to decode.
func (m *Metrics) Drop(event string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(event).Inc()
}
