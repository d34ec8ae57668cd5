// Package memory configures the Go memory limit from the container limit
// and applies backpressure to background indexing.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT, leaving headroom
// for ffmpeg child processes. A Monitor samples heap usage and pauses the
// indexer between files while usage stays above the critical mark; search
// and render requests are unaffected.
package memory
