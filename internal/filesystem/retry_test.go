package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetryRetriesStaleHandles(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	got, err := withRetry("stat", "/nfs/file", config, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("withRetry() = %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	config := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	_, err := withRetry("readdir", "/nfs/dir", config, func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/missing", DefaultRetryConfig(), func() (int, error) {
		calls++
		return 0, syscall.ENOENT
	})
	if err == nil || calls != 1 {
		t.Errorf("err = %v, calls = %d; want error after 1 call", err, calls)
	}
}

func TestStatAndReadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(filepath.Join(dir, "a.mkv"), DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 1 {
		t.Errorf("Size() = %d, want 1", info.Size())
	}

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.mkv" {
		t.Errorf("entries = %v, want [a.mkv]", entries)
	}

	if _, err := StatWithRetry(filepath.Join(dir, "nope"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !DirExists(dir, DefaultRetryConfig()) {
		t.Error("DirExists(dir) = false, want true")
	}
	if DirExists(file, DefaultRetryConfig()) {
		t.Error("DirExists(file) = true, want false")
	}
	if DirExists(filepath.Join(dir, "gone"), DefaultRetryConfig()) {
		t.Error("DirExists(missing) = true, want false")
	}
}
