// Package metrics exposes Prometheus instrumentation for the build core.
// Cache errors are counted separately from misses so telemetry can tell
// "definitely not cached" apart from "cache unreachable", even when the
// engine treats both as "must execute".
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheFetches counts artifact cache fetch results per tier.
	CacheFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildgrid_cache_fetches_total",
		Help: "Artifact cache fetches by tier and outcome (hit, miss, error).",
	}, []string{"tier", "outcome"})

	// CacheStores counts artifact cache store attempts per tier.
	CacheStores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildgrid_cache_stores_total",
		Help: "Artifact cache stores by tier and outcome (ok, error, rejected).",
	}, []string{"tier", "outcome"})

	// RulesBuilt counts rule executions by final status.
	RulesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildgrid_rules_total",
		Help: "Rules processed by final status (cached, built, failed, skipped).",
	}, []string{"status"})

	// FingerprintsComputed counts rule-key computations.
	FingerprintsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildgrid_fingerprints_computed_total",
		Help: "Rule keys computed this process.",
	})
)

// Register installs the Prometheus handler on the given mux.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
