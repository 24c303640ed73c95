/*
Copyright 2026 The Activity Tracker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	itemsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sync_items_enqueued_total",
		Help: "Telemetry items accepted into the delivery queue.",
	})

	itemsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sync_items_delivered_total",
		Help: "Telemetry items accepted by the server.",
	})

	itemsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sync_items_dropped_total",
		Help: "Telemetry items consumed without delivery, by failed calls or shutdown.",
	})

	batchesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sync_batches_submitted_total",
		Help: "Per-session batch calls attempted.",
	})

	batchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_sync_batches_failed_total",
		Help: "Per-session batch calls that failed.",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_sync_queue_depth",
		Help: "Telemetry items currently queued.",
	})

	onlineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_sync_online",
		Help: "1 while the connectivity probe reports the server reachable.",
	})

	flushSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_sync_flush_seconds",
		Help:    "Duration of one delivery pass.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

var syncerCollectors = []prometheus.Collector{
	itemsEnqueued,
	itemsDelivered,
	itemsDropped,
	batchesSubmitted,
	batchesFailed,
	queueDepth,
	onlineGauge,
	flushSeconds,
}
