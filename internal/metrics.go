// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes dispatch activity to Prometheus. It implements Observer.
type Metrics struct {
	Registry   *prometheus.Registry
	inFlight   prometheus.Gauge
	dispatches *prometheus.CounterVec
	latency    prometheus.Histogram
}

// NewMetrics registers the dispatch collectors on a fresh registry, along with
// the Go runtime and process collectors describing the harness itself.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heyload_dispatches_in_flight",
			Help: "Number of requests currently in flight",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heyload_dispatches_total",
			Help: "Completed dispatches by result",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heyload_dispatch_latency_seconds",
			Help:    "Dispatch latency, penalty latency included for failures",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}
	m.Registry.MustRegister(m.inFlight, m.dispatches, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// DispatchStarted implements Observer.
func (m *Metrics) DispatchStarted() {
	m.inFlight.Inc()
}

// DispatchFinished implements Observer.
func (m *Metrics) DispatchFinished(o Outcome) {
	m.inFlight.Dec()
	result := "success"
	if !o.Success {
		result = string(o.Class)
	}
	m.dispatches.WithLabelValues(result).Inc()
	if o.HasLatency {
		m.latency.Observe(o.Latency.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
