package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the page server's Prometheus collectors. Each server cycle
// gets its own registry so a restart does not register twice.
type Metrics struct {
	registry       *prometheus.Registry
	pagesServed    *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	cacheResults   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laxpress_pages_served_total",
				Help: "Total number of page responses by route and status code",
			},
			[]string{"route", "code"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "laxpress_render_duration_seconds",
				Help:    "Time spent building and rendering a page",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"template"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laxpress_page_cache_total",
				Help: "Page cache lookups by result",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		m.pagesServed,
		m.renderDuration,
		m.cacheResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
