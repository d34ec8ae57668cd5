/*
Package workers sizes worker pools from GOMAXPROCS, which the Go runtime sets
from the container CPU limit, rather than runtime.NumCPU, which reports the
host.

	// stat workers for the library scanner, capped at 32
	n := workers.ForIO(32, cfg.StatWorkers)

A positive override (the STAT_WORKERS setting) replaces the calculation but
is still capped by the limit.
*/
package workers
