// SPDX-License-Identifier: MIT

// Package metrics defines Prometheus metrics for the geometry pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_operations_total",
		Help: "Geometry operations by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome=success|empty|error

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoproc_operation_duration_seconds",
		Help:    "Time spent computing a geometry operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	featuresProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_features_processed_total",
		Help: "Features consumed and produced by operations",
	}, []string{"direction"}) // direction=in|out

	reprojectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_reprojections_total",
		Help: "Coordinate reprojections by target CRS",
	}, []string{"crs"}) // crs=utm|epsg3395|epsg4326

	shapefilesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_shapefiles_read_total",
		Help: "Shapefile archive reads by outcome",
	}, []string{"outcome"}) // outcome=success|error

	cacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_result_cache_total",
		Help: "Result cache lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss

	jobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geoproc_jobs_queued",
		Help: "Jobs currently waiting in the queue",
	})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geoproc_jobs_running",
		Help: "Jobs currently being executed",
	})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_jobs_completed_total",
		Help: "Finished jobs by terminal state",
	}, []string{"state"}) // state=succeeded|failed

	datasetsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geoproc_datasets_stored",
		Help: "Datasets currently stored",
	})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoproc_auth_failures_total",
		Help: "Rejected API requests by reason",
	}, []string{"reason"}) // reason=missing|invalid
)

func IncOperation(operation, outcome string) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveOperationDuration(operation string, d time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func AddFeaturesIn(n int)  { featuresProcessed.WithLabelValues("in").Add(float64(n)) }
func AddFeaturesOut(n int) { featuresProcessed.WithLabelValues("out").Add(float64(n)) }

func IncReprojection(crs string) { reprojectionsTotal.WithLabelValues(crs).Inc() }

func IncShapefileRead(outcome string) { shapefilesRead.WithLabelValues(outcome).Inc() }

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func SetJobsQueued(n int)  { jobsQueued.Set(float64(n)) }
func SetJobsRunning(n int) { jobsRunning.Set(float64(n)) }

func IncJobsRunning() { jobsRunning.Inc() }
func DecJobsRunning() { jobsRunning.Dec() }

func IncJobCompleted(state string) { jobsCompleted.WithLabelValues(state).Inc() }

func SetDatasetsStored(n int) { datasetsStored.Set(float64(n)) }

func IncAuthFailure(reason string) { authFailures.WithLabelValues(reason).Inc() }
