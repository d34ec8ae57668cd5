// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read by [Read] through viper from, in increasing order of
// precedence: built-in defaults, an optional subtitle-index.yaml (or the file
// passed with --config), a .env file loaded with godotenv, and the process
// environment. Recognised options:
//
//   - ROOT_DIRECTORY: scan root, and base for relative library paths (default: ./data/library)
//   - OUTPUT_DIRECTORY: where rendered clips are written (default: ./data/output)
//   - DATABASE_DIR: SQLite database, bleve index and render ledger (default: ./data)
//   - CACHE_DIR: thumbnails and temporary subtitle files (default: ./data/cache)
//   - DEFAULT_LIBRARIES / NONDEFAULT_LIBRARIES: comma-separated library paths;
//     setting either one disables auto-discovery and prunes unlisted libraries
//   - SKIP_SETUP: skip first-run library discovery (default: false)
//   - SYMLINK_DIRECTORY: directory for short path proxies (default: disabled)
//   - PORT: HTTP server port (default: 3100)
//   - METRICS_PORT / METRICS_ENABLED: Prometheus metrics server (default: 9090, true)
//   - SCAN_INTERVAL / SCAN_RETRY_DELAY: scan cadence and retry delay after a failed cycle (default: 5m)
//   - STAT_WORKERS: concurrent stat calls per library scan (default: 2 per CPU)
//   - SKIP_HIDDEN: skip files and directories whose names start with "." (default: false)
//   - EXTRACT_SUBTITLES: extract and segment subtitle tracks (default: true)
//   - WATCH_LIBRARIES: trigger scans from filesystem events (default: false)
//   - SEARCH_ENGINE: fts5 or bleve (default: fts5)
//   - SEARCH_LIMIT: maximum results per search (default: 200)
//   - RENDER_CACHE_TTL: how long rendered clips are kept (default: 72h, 0 keeps forever)
//   - FFMPEG_PATH / FFPROBE_PATH: tool binaries (default: looked up in PATH)
//   - LOG_LEVEL / LOG_FORMAT: debug|info|warn|error and console|json
//
// [LoadConfig] additionally validates the result, resolves directories to
// absolute paths and creates the writable ones.
//
// # Startup Logging
//
// The Log* helpers print the sectioned startup and shutdown report.
package startup
