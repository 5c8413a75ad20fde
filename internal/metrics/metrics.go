package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ProgressSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_progress_subscribers",
			Help: "Number of open progress event streams",
		},
	)

	// Timeline Metrics
	TimelineMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_timeline_mutations_total",
			Help: "Total number of timeline edits by operation and outcome",
		},
		[]string{"operation", "result"},
	)

	TimelineClips = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_timeline_clips",
			Help: "Number of clips on the timeline",
		},
	)

	// Export Job Metrics
	ExportJobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_export_jobs_created_total",
			Help: "Total number of export jobs created",
		},
		[]string{"format"},
	)

	ExportJobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_export_jobs_finished_total",
			Help: "Total number of finished export jobs",
		},
		[]string{"status"},
	)

	ExportJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_export_jobs_active",
			Help: "Number of export jobs currently running",
		},
	)

	ExportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vedit_export_queue_depth",
			Help: "Number of export jobs waiting in queue",
		},
	)

	ExportJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_export_job_duration_seconds",
			Help:    "Export job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"resolution", "codec"},
	)

	ExportStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_export_stage_duration_seconds",
			Help:    "Export stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage", "status"},
	)

	ExportOutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vedit_export_output_size_bytes",
			Help:    "Size of exported files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 15), // 1MB to 16GB
		},
	)

	ExportEncodeFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vedit_export_encode_fallbacks_total",
			Help: "Exports saved from the merged output after encoding failed",
		},
	)

	// Business Metrics
	VideoDurationExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vedit_video_duration_exported_seconds_total",
			Help: "Total duration of exported timelines in seconds",
		},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vedit_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Messaging Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_events_published_total",
			Help: "Total number of job events published to the broker",
		},
		[]string{"routing_key", "status"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by event and outcome",
		},
		[]string{"event", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vedit_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordTimelineMutation records an edit and whether it was applied or rejected
func RecordTimelineMutation(operation string, applied bool) {
	result := "applied"
	if !applied {
		result = "rejected"
	}
	TimelineMutationsTotal.WithLabelValues(operation, result).Inc()
}

// UpdateTimelineClips sets the current clip count
func UpdateTimelineClips(n int) {
	TimelineClips.Set(float64(n))
}

// RecordExportJobCreated records an export job entering the queue
func RecordExportJobCreated(format string) {
	ExportJobsCreatedTotal.WithLabelValues(format).Inc()
}

// RecordExportJobFinished records a terminal export job
func RecordExportJobFinished(status string, duration float64, resolution, codec string) {
	ExportJobsFinishedTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		ExportJobDuration.WithLabelValues(resolution, codec).Observe(duration)
	}
}

// UpdateExportQueue updates running and waiting job counts
func UpdateExportQueue(active, pending int) {
	ExportJobsActive.Set(float64(active))
	ExportQueueDepth.Set(float64(pending))
}

// RecordExportStage records one stage run
func RecordExportStage(stage, status string, duration float64) {
	ExportStageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordExportOutput records a completed export's file
func RecordExportOutput(sizeBytes int64, durationSeconds float64, encodeFallback bool) {
	ExportOutputBytes.Observe(float64(sizeBytes))
	VideoDurationExported.Add(durationSeconds)
	if encodeFallback {
		ExportEncodeFallbacksTotal.Inc()
	}
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	if bytesTransferred > 0 {
		StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
	}
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventPublished records a broker publish
func RecordEventPublished(routingKey string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(routingKey, status).Inc()
}

// RecordWebhookDelivery records one webhook delivery attempt
func RecordWebhookDelivery(event, status string) {
	WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
