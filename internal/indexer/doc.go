// Package indexer keeps the database consistent with the library roots on
// disk and extracts searchable dialogue from media files.
//
// A scan cycle runs four steps in order:
//   - Library sync: register configured libraries, or discover the
//     subdirectories of the scan root on first run
//   - Existence check: stat every library root and record reachability
//   - File scan: walk reachable libraries in parallel and insert, restore,
//     invalidate or mark missing file rows
//   - Indexing: probe each pending file, store its tracks, and segment
//     subtitle tracks into conversations and lines
//
// Rows are never deleted by a scan except when an explicitly configured
// library list drops a library. A file whose size or modification time
// changes is re-extracted; its old tracks and conversations are removed
// from the database and from any external search index first.
//
// The indexer operates in multiple modes:
//   - Initial cycle: on startup
//   - Periodic cycle: every scan interval, or after the retry delay when a
//     cycle fails
//   - File watching: fsnotify events debounced into an early cycle
//   - Manual trigger: on demand via the API
//
// Hidden files and directories (prefixed with '.') are ignored.
package indexer
