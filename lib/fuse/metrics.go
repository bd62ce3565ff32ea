// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the adapter's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	rejectedWrites *prometheus.CounterVec
	resolveErrors  prometheus.Counter
}

// NewMetrics creates the adapter collectors and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permfs",
			Name:      "requests_total",
			Help:      "Filesystem requests served, by operation.",
		}, []string{"op"}),
		rejectedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permfs",
			Name:      "rejected_writes_total",
			Help:      "Write-class requests refused with EROFS, by operation.",
		}, []string{"op"}),
		resolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "permfs",
			Name:      "resolve_errors_total",
			Help:      "Requests that failed with EIO because an existing entry could not be resolved.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(metrics.requests, metrics.rejectedWrites, metrics.resolveErrors)
	}
	return metrics
}

func (m *Metrics) request(op string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op).Inc()
}

func (m *Metrics) rejected(op string) {
	if m == nil {
		return
	}
	m.rejectedWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) resolveError() {
	if m == nil {
		return
	}
	m.resolveErrors.Inc()
}
