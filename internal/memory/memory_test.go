package memory

import (
	"context"
	"errors"
	"runtime/debug"
	"testing"
	"time"
)

func newTestMonitor(limit int64, heap *uint64) *Monitor {
	m := NewMonitor(Config{LimitBytes: limit, PauseAt: 0.85, ResumeAt: 0.7, CheckInterval: time.Hour})
	m.readHeap = func() uint64 { return *heap }
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	heap := uint64(100)
	m := newTestMonitor(1000, &heap)

	m.check()
	if m.IsPaused() {
		t.Fatal("Expected not paused at 10% usage")
	}

	heap = 900
	m.check()
	if !m.IsPaused() {
		t.Fatal("Expected paused at 90% usage")
	}

	done := make(chan error, 1)
	go func() { done <- m.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	heap = 800
	m.check()
	if !m.IsPaused() {
		t.Fatal("Expected to stay paused between the marks")
	}

	heap = 500
	m.check()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitIfPaused() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after recovery")
	}

	if got := m.Usage(); got != 0.5 {
		t.Errorf("Usage() = %v, want 0.5", got)
	}
}

func TestWaitIfPausedHonoursContext(t *testing.T) {
	heap := uint64(950)
	m := newTestMonitor(1000, &heap)
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := m.WaitIfPaused(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitIfPaused() error = %v, want deadline exceeded", err)
	}
}

func TestStopReleasesWaiters(t *testing.T) {
	heap := uint64(950)
	m := newTestMonitor(1000, &heap)
	m.check()

	m.Stop()
	m.Stop()
	if err := m.WaitIfPaused(context.Background()); err != nil {
		t.Errorf("WaitIfPaused() after Stop error = %v", err)
	}
}

func TestMonitorWithoutLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	debug.SetMemoryLimit(1<<63 - 1)
	defer debug.SetMemoryLimit(prev)

	m := NewMonitor(DefaultConfig())
	m.Start()
	defer m.Stop()

	if m.Usage() != 0 || m.IsPaused() {
		t.Error("Expected an unlimited monitor to be inert")
	}
}

func TestConfigureFromEnv(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	tests := []struct {
		name       string
		limit      string
		ratio      string
		configured bool
		want       int64
	}{
		{"unset", "", "", false, 0},
		{"invalid", "lots", "", false, 0},
		{"default ratio", "1000000", "", true, 750000},
		{"custom ratio", "1000000", "0.5", true, 500000},
		{"ratio out of range", "1000000", "1.5", true, 750000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()
			if result.Configured != tt.configured {
				t.Fatalf("Configured = %v, want %v", result.Configured, tt.configured)
			}
			if result.GoMemLimit != tt.want {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
