package workers

import (
	"runtime"
)

// Count returns a worker count for a task type. It respects container CPU
// limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics, 2.0 for I/O-bound work.
//
// A positive override (STAT_WORKERS) replaces the calculation. The limit caps
// the result; 0 means no limit.
func Count(multiplier float64, limit, override int) int {
	workers := override
	if workers <= 0 {
		workers = int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	}

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForIO returns worker count for I/O-bound tasks such as stat calls against
// network mounts (2 per CPU).
func ForIO(limit, override int) int {
	return Count(2.0, limit, override)
}
