package printing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts submissions by document type and outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_jobs_total",
			Help: "Total number of print submissions",
		},
		[]string{"type", "status"},
	)

	// JobDuration tracks end-to-end submission time.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "print_job_duration_seconds",
			Help:    "Print submission duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	// PagesTotal counts rasterized PDF pages handed to a driver session.
	PagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "print_pages_rendered_total",
			Help: "Total number of PDF pages rendered",
		},
	)
)
