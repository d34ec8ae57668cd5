package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_index_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_index_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_index_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"status"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitle_index_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Scanner metrics
var (
	ScanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_scan_cycles_total",
			Help: "Total number of scan cycles by outcome",
		},
		[]string{"status"},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_scan_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan cycle",
		},
	)

	ScanLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_scan_last_run_duration_seconds",
			Help: "Duration of the last scan cycle in seconds",
		},
	)

	ScanRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_scan_running",
			Help: "Whether a scan cycle is currently running (1) or not (0)",
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_scan_files_total",
			Help: "Files reconciled by the scanner by outcome",
		},
		[]string{"outcome"}, // new, changed, unchanged, restored, missing, error
	)

	ScanLibrariesMissing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_scan_libraries_missing",
			Help: "Registered libraries whose root is currently unreachable",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_watcher_events_total",
			Help: "Filesystem watcher events by operation",
		},
		[]string{"op"},
	)

	WatcherErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitle_index_watcher_errors_total",
			Help: "Filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_watched_directories",
			Help: "Number of directories registered with the filesystem watcher",
		},
	)
)

// Indexer metrics
var (
	IndexerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_indexer_files_total",
			Help: "Files processed by the indexer by outcome",
		},
		[]string{"status"},
	)

	IndexerTracksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_indexer_tracks_total",
			Help: "Tracks recorded by the indexer by type",
		},
		[]string{"type"},
	)

	IndexerConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitle_index_indexer_conversations_total",
			Help: "Conversations created by subtitle segmentation",
		},
	)

	IndexerSubtitleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_indexer_subtitle_errors_total",
			Help: "Subtitle tracks that could not be extracted or parsed",
		},
		[]string{"stage"}, // probe, extract, parse, store, search_index
	)

	IndexerPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_indexer_pending_files",
			Help: "Files waiting for track extraction in the current cycle",
		},
	)
)

// FFmpeg subprocess metrics
var (
	FFmpegRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_ffmpeg_runs_total",
			Help: "FFmpeg and FFprobe invocations by kind and status",
		},
		[]string{"kind", "status"},
	)

	FFmpegDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_index_ffmpeg_duration_seconds",
			Help:    "FFmpeg and FFprobe run time in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 180, 600},
		},
		[]string{"kind"},
	)

	FFmpegInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_ffmpeg_in_progress",
			Help: "FFmpeg processes currently running",
		},
	)
)

// Render metrics
var (
	RenderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_render_requests_total",
			Help: "Render requests by output format and outcome",
		},
		[]string{"format", "status"}, // status: cached, rendered, error
	)

	RenderLedgerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_render_ledger_entries",
			Help: "Rendered artifacts tracked in the render ledger",
		},
	)

	RenderSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitle_index_render_swept_total",
			Help: "Rendered artifacts removed after expiring",
		},
	)
)

// Search metrics
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_search_queries_total",
			Help: "Search queries by engine and status",
		},
		[]string{"engine", "status"},
	)

	SearchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_index_search_results",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
		},
		[]string{"engine"},
	)
)

// Proxy and thumbnail metrics
var (
	ProxyLinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_proxy_links_total",
			Help: "Path proxy acquisitions by outcome",
		},
		[]string{"status"}, // linked, fallback, disabled
	)

	ThumbnailRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_thumbnail_requests_total",
			Help: "Thumbnail requests by outcome",
		},
		[]string{"status"}, // cached, generated, error
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale NFS handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_index_filesystem_stale_errors_total",
			Help: "Stale NFS file handle errors observed",
		},
		[]string{"operation"},
	)
)

// Library totals, refreshed by the Collector
var (
	LibrariesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_libraries_total",
			Help: "Registered libraries",
		},
	)

	FilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitle_index_files_total",
			Help: "Known files by state",
		},
		[]string{"state"}, // indexed, pending, missing
	)

	TracksTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitle_index_tracks_total",
			Help: "Stored tracks by type",
		},
		[]string{"type"},
	)

	ConversationsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_conversations_total",
			Help: "Stored conversations",
		},
	)

	LinesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_lines_total",
			Help: "Stored dialogue lines",
		},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitle_index_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_memory_usage_ratio",
			Help: "Heap usage as a share of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitle_index_memory_paused",
			Help: "Whether indexing is paused for memory pressure (1 = paused)",
		},
	)
)

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first scrape.
func InitializeMetrics() {
	for _, s := range []string{"success", "error"} {
		ScanCyclesTotal.WithLabelValues(s)
		DBTransactionDuration.WithLabelValues(s)
	}
	for _, o := range []string{"new", "changed", "unchanged", "restored", "missing", "error"} {
		ScanFilesTotal.WithLabelValues(o)
	}
	for _, t := range []string{"video", "audio", "subtitle"} {
		IndexerTracksTotal.WithLabelValues(t)
		TracksTotal.WithLabelValues(t)
	}
	for _, s := range []string{"probe", "extract", "parse", "store", "search_index"} {
		IndexerSubtitleErrors.WithLabelValues(s)
	}
	for _, k := range []string{"probe", "extract", "render", "thumbnail"} {
		FFmpegRunsTotal.WithLabelValues(k, "success")
		FFmpegRunsTotal.WithLabelValues(k, "error")
		FFmpegDuration.WithLabelValues(k)
	}
	for _, f := range []string{"mp4", "webm", "gif", "png"} {
		for _, s := range []string{"cached", "rendered", "error"} {
			RenderRequestsTotal.WithLabelValues(f, s)
		}
	}
	for _, s := range []string{"linked", "fallback", "disabled"} {
		ProxyLinksTotal.WithLabelValues(s)
	}
	for _, s := range []string{"indexed", "pending", "missing"} {
		FilesTotal.WithLabelValues(s)
	}
	for _, op := range []string{"stat", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}
