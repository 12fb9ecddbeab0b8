// Package metrics holds the pingsweep process's package-level
// Prometheus collectors, registered once via promauto, exposed over
// promhttp by cmd/pingsweep.
//
// Grounded on telemetry/global-monitor/internal/metrics/metrics.go's
// package-level promauto.New* var block.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Slash16CompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pingsweep_slash16_completed_total",
		Help: "Total number of /16 subnets that finished probing, by terminal state",
	}, []string{"state"})

	ProbeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pingsweep_probe_outcomes_total",
		Help: "Total number of individual address probes, by outcome",
	}, []string{"outcome"})

	CurrentlyPinging = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pingsweep_currently_pinging",
		Help: "The /16 currently being probed, as its first two octets",
	}, []string{"octet"})

	Slash16Duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pingsweep_slash16_duration_seconds",
		Help:    "Wall-clock duration of probing a single /16",
		Buckets: prometheus.ExponentialBuckets(1, 1.6, 12), // 1s .. ~176s
	})

	WorkersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pingsweep_workers_connected",
		Help: "Number of worker subprocesses currently connected to the master",
	})

	WorkerDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pingsweep_worker_disconnects_total",
		Help: "Total number of worker disconnections observed by the master",
	})

	AllErrorSlash24sTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pingsweep_all_error_slash24_total",
		Help: "Total number of /24 subnets that came back entirely Error",
	})
)
