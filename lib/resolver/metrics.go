// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import "github.com/prometheus/client_golang/prometheus"

// Resolution outcomes used as the "result" label.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics holds the resolver's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	resolutions  *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheEntries prometheus.Gauge
}

// NewMetrics creates the resolver collectors and registers them with
// registerer. A nil registerer leaves them unregistered, which is
// useful in tests that read the collectors directly.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permfs",
			Name:      "resolutions_total",
			Help:      "Permission resolutions computed, by result. Cache hits are not counted.",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "permfs",
			Name:      "resolution_cache_hits_total",
			Help:      "Resolutions answered from the resolution cache.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "permfs",
			Name:      "resolution_cache_entries",
			Help:      "Paths held in the resolution cache.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(metrics.resolutions, metrics.cacheHits, metrics.cacheEntries)
	}
	return metrics
}

func (m *Metrics) resolved(result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result).Inc()
}

func (m *Metrics) hit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) stored() {
	if m == nil {
		return
	}
	m.cacheEntries.Inc()
}
