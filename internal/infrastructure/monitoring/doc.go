/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the pipeline
runtime: event throughput per buffer and group, claim-wait latency, backlog
depth, scheduler activity (splits, merges, co-locations, thread slots), error
policy outcomes, and stalled-worker detections.

Nothing here sits on the publish or claim path. Counters are bumped on
completion boundaries, gauges are refreshed by the stats loop, and claim-wait
quantiles are computed on demand from a bounded sample window.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Record pipeline activity
	metrics.RecordPublished("stage-in")
	metrics.RecordCompleted("enrichers")
	metrics.ObserveClaimWait("enrichers", wait)

	// Scheduler activity
	metrics.RecordSplit("enrich")
	metrics.SetThreadSlots(3)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
