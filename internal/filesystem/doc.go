/*
Package filesystem wraps the stat and directory-listing calls made by the
library scanner with retry logic for NFS stale file handle errors.

Only ESTALE (errno 116 on Linux) triggers a retry. Every other error is
returned immediately. Retries back off exponentially:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	entries, err := filesystem.ReadDirWithRetry(root, filesystem.RetryConfig{
	    MaxRetries:     5,
	    InitialBackoff: 100 * time.Millisecond,
	    MaxBackoff:     time.Second,
	})

Retry attempts, stale-handle errors and final failures are counted in the
subtitle_index_filesystem_* metrics, labelled by operation.
*/
package filesystem
