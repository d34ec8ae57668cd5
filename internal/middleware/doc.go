// Package middleware provides HTTP middleware for the subtitle indexer API.
//
// It includes:
//   - Request ids and structured access logging through zerolog
//   - Prometheus request metrics with bounded path labels
//   - gzip compression of JSON responses
package middleware
