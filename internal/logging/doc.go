// Package logging provides a simple leveled logging interface for the
// subtitle index server.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//
// Messages are written through zerolog. The level is configured via the
// LOG_LEVEL environment variable (or DEBUG=true) and the output format via
// LOG_FORMAT ("console", the default, or "json").
package logging
