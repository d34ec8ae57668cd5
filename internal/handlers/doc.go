// Package handlers provides the HTTP API of the subtitle indexer.
//
// It includes handlers for:
//   - Libraries, folder trees, file and track details
//   - Dialogue search with library, path and language filters
//   - Rendering clips and stills, and serving the rendered output
//   - Video thumbnails
//   - Scan control and progress
//   - Health checks and version information
//
// Errors are returned as {"message", "details"} JSON bodies. Unknown ids map
// to 404, malformed requests to 400 and everything else to 500.
package handlers
