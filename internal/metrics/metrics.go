// Package metrics exposes Prometheus metrics for the authentication engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lener reports the current size of one of the in-memory stores.
type Lener interface {
	Len() int
}

// Collector tracks request and authentication outcomes.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	authAttempts  *prometheus.CounterVec
	responses     *prometheus.CounterVec
}

// New builds the collector and registers the store-size gauges.
func New(sessions, transactions Lener) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identio_requests_total",
				Help: "Authentication requests received, by protocol and parsing status",
			},
			[]string{"protocol", "status"},
		),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identio_auth_attempts_total",
				Help: "Authentication attempts, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identio_responses_total",
				Help: "Protocol responses issued, by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
	}

	c.registry.MustRegister(c.requestsTotal, c.authAttempts, c.responses)

	if sessions != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "identio_user_sessions",
				Help: "User sessions currently held in the session store",
			},
			func() float64 { return float64(sessions.Len()) },
		))
	}
	if transactions != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "identio_transactions",
				Help: "Transactions currently in flight",
			},
			func() float64 { return float64(transactions.Len()) },
		))
	}

	return c
}

// RecordRequest counts an inbound authentication request.
func (c *Collector) RecordRequest(protocol, status string) {
	c.requestsTotal.WithLabelValues(protocol, status).Inc()
}

// RecordAuthAttempt counts one authentication attempt.
func (c *Collector) RecordAuthAttempt(method, outcome string) {
	c.authAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordResponse counts a protocol response sent to a relying party.
func (c *Collector) RecordResponse(protocol, outcome string) {
	c.responses.WithLabelValues(protocol, outcome).Inc()
}

// Handler serves the exposition endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
