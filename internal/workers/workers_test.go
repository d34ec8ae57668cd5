package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		override   int
		minExpect  int
		maxExpect  int
	}{
		{name: "CPU-bound", multiplier: 1.0, minExpect: 1, maxExpect: availableCPU},
		{name: "I/O-bound", multiplier: 2.0, minExpect: 1, maxExpect: availableCPU * 2},
		{name: "Limit lower than calculated", multiplier: 2.0, limit: 2, minExpect: 1, maxExpect: 2},
		{name: "Very low multiplier", multiplier: 0.01, minExpect: 1, maxExpect: 1},
		{name: "Override", multiplier: 1.0, override: 8, minExpect: 8, maxExpect: 8},
		{name: "Override capped by limit", multiplier: 1.0, override: 20, limit: 10, minExpect: 10, maxExpect: 10},
		{name: "Negative override ignored", multiplier: 1.0, override: -5, minExpect: 1, maxExpect: availableCPU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit, tt.override)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d, %d) = %d, want in [%d, %d]",
					tt.multiplier, tt.limit, tt.override, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestForIODoublesCount(t *testing.T) {
	cpu := Count(1.0, 0, 0)
	io := ForIO(0, 0)
	if io < cpu {
		t.Errorf("ForIO() = %d, want >= Count(1.0) = %d", io, cpu)
	}
	if ForIO(1, 0) != 1 {
		t.Error("ForIO(1, 0) should be capped at 1")
	}
}
