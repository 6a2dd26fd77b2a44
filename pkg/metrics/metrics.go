package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	PagesCrawledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_pages_crawled_total",
			Help: "Frontier entries processed by crawl workers.",
		},
		[]string{"outcome"}, // done, skipped, failed, retry
	)

	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_crawl_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"domain"},
	)

	FrontierEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_frontier_enqueued_total",
			Help: "URLs added to a crawl frontier.",
		},
		[]string{"source"}, // seed, sitemap, link
	)

	LinkProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_link_probes_total",
			Help: "Link validation results.",
		},
		[]string{"type", "result"}, // result: ok, broken, error, page_match
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_tasks_total",
			Help: "Tasks executed by the worker runner.",
		},
		[]string{"type", "outcome"}, // outcome: success, retry, exhausted
	)

	AuditsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audits_finished_total",
			Help: "Audits that reached a terminal status.",
		},
		[]string{"status"},
	)

	TasksInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_tasks_in_queue",
			Help: "Scheduled tasks waiting in the durable queue.",
		},
	)
)
