package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunsTotal counts simulation runs by terminal status
var RunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskd_runs_total",
		Help: "Total number of simulation runs by terminal status",
	},
	[]string{"status"},
)

// PathsGenerated counts total Monte Carlo paths generated
var PathsGenerated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskd_paths_generated_total",
		Help: "Total number of Monte Carlo paths generated by process kind",
	},
	[]string{"process"},
)

// RunDuration records end-to-end run duration
var RunDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "riskd_run_duration_seconds",
		Help:    "End-to-end duration of simulation runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	},
)

// Result cache metrics
var (
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskd_result_cache_hits_total",
			Help: "Number of simulation results served from the cache",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskd_result_cache_misses_total",
			Help: "Number of cache lookups that fell through to simulation",
		},
	)
)

// VarBreaches counts portfolio VaR limit breaches detected
var VarBreaches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskd_var_breaches_total",
		Help: "Number of VaR limit breaches detected by method",
	},
	[]string{"method"},
)

// EventsPublished counts messages published to the event bus
var EventsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskd_events_published_total",
		Help: "Number of events published by topic and outcome",
	},
	[]string{"topic", "outcome"},
)

func init() {
	prometheus.MustRegister(RunsTotal, PathsGenerated, RunDuration)
	prometheus.MustRegister(CacheHits, CacheMisses)
	prometheus.MustRegister(VarBreaches, EventsPublished)
}
