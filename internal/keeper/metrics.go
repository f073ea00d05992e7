package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keeper_runs_total",
			Help: "Total number of keeper runs",
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keeper_run_duration_seconds",
			Help:    "Duration of a keeper run across all jobs",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_jobs_total",
			Help: "Total number of oracle update jobs by outcome",
		},
		[]string{"oracle", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_job_duration_seconds",
			Help:    "Duration of a single oracle update job",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"oracle"},
	)
)
