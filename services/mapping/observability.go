// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("msbridge.mapping")

// Prometheus metrics for the mapping service. Registered once on the
// default registry; /metrics is exposed by cmd/mapserver.
var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapping_requests_total",
		Help: "Mapping API requests by endpoint and outcome.",
	}, []string{"endpoint", "status"})

	metricTranslateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapping_translate_duration_seconds",
		Help:    "End-to-end translation latency.",
		Buckets: prometheus.DefBuckets,
	})

	metricTranslateSites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapping_translate_call_sites_total",
		Help: "Call sites processed by translation outcome.",
	}, []string{"outcome"})

	metricCorpusEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapping_corpus_entries",
		Help: "Entries in the live corpus index by category.",
	}, []string{"category"})

	metricRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapping_corpus_refresh_total",
		Help: "Corpus refresh attempts by outcome.",
	}, []string{"outcome"})
)

// recordCorpusStats pushes the live index sizes into the gauges.
func recordCorpusStats(consistent, diff int) {
	metricCorpusEntries.WithLabelValues("consistent").Set(float64(consistent))
	metricCorpusEntries.WithLabelValues("diff").Set(float64(diff))
}
