// Package metrics exposes Prometheus instruments for the HTTP surface and
// the transport coordination core.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route, and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conveyor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// SearchesTotal counts item catalog searches.
	SearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "item_searches_total",
		Help:      "Total item name searches served.",
	})

	// PollsTotal counts machine poll cycles by outcome.
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "machine_polls_total",
		Help:      "Total machine poll requests by outcome.",
	}, []string{"outcome"})

	// DirectivesIssued counts transfer directives handed to machines.
	DirectivesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "directives_issued_total",
		Help:      "Total transfer directives issued to polling machines.",
	})

	// MachinesOnline tracks how many machines are currently online.
	MachinesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conveyor",
		Name:      "machines_online",
		Help:      "Number of machines currently marked online.",
	})
)

// RecordRequest observes one completed HTTP request.
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
