package proxy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

const maxAttempts = 5

// Proxy creates links in a single directory. The zero value, or a Proxy with
// an empty directory, never links.
type Proxy struct {
	dir string
}

// New returns a Proxy that creates links under dir. An empty dir disables
// linking.
func New(dir string) *Proxy {
	return &Proxy{dir: dir}
}

// Enabled reports whether links are created.
func (p *Proxy) Enabled() bool {
	return p != nil && p.dir != ""
}

// Link is an acquired path. Path is either a symlink or the original path.
type Link struct {
	Path   string
	target string
	linked bool
}

// Acquire returns a short path for target. It never fails: if a link
// cannot be created the target itself is returned.
func (p *Proxy) Acquire(target string) *Link {
	if !p.Enabled() {
		metrics.ProxyLinksTotal.WithLabelValues("disabled").Inc()
		return &Link{Path: target, target: target}
	}

	ext := filepath.Ext(target)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		path := filepath.Join(p.dir, uuid.NewString()+ext)
		err := os.Symlink(target, path)
		if err == nil {
			metrics.ProxyLinksTotal.WithLabelValues("linked").Inc()
			return &Link{Path: path, target: target, linked: true}
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		logging.Warn("Path proxy unavailable for %s, using original path: %v", target, err)
		break
	}

	metrics.ProxyLinksTotal.WithLabelValues("fallback").Inc()
	return &Link{Path: target, target: target}
}

// Linked reports whether Path is a symlink created by Acquire.
func (l *Link) Linked() bool {
	return l.linked
}

// Release removes the link. It is safe to call more than once and on a nil
// Link.
func (l *Link) Release() error {
	if l == nil || !l.linked {
		return nil
	}
	l.linked = false
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove path proxy %s: %w", l.Path, err)
	}
	return nil
}

// Purge removes leftover links from a previous run. Only symlinks are
// removed.
func (p *Proxy) Purge() (int, error) {
	if !p.Enabled() {
		return 0, nil
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read symlink directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, e.Name())); err != nil {
			logging.Warn("failed to remove stale path proxy %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
