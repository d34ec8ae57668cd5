// Package metrics provides Prometheus instrumentation for the subtitle index
// server.
//
// All metrics are prefixed with "subtitle_index_". They fall into these groups:
//
//   - HTTP: request counts, durations and in-flight requests
//   - Database: query counts and durations, transaction durations, file sizes
//   - Scanner: scan cycles, library and file reconciliation counts, watcher events
//   - Indexer: files indexed, tracks and conversations extracted, probe failures
//   - FFmpeg: subprocess runs and durations by kind (probe, extract, render, thumbnail)
//   - Render: requests by format and cache outcome, ledger sweeps
//   - Search: queries by engine and status, result counts
//   - Filesystem: NFS stale-handle retries
//   - Library totals: gauges refreshed by the Collector
//
// Metrics are registered with the default registry through promauto and are
// exposed by the metrics server started in main.
package metrics
