package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"subtitle-index/internal/filesystem"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/workers"
)

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers is the number of concurrent stat workers
	NumWorkers int
	// BatchSize is the number of file rows written per transaction
	BatchSize int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Retry configures stat retries on stale network handles
	Retry filesystem.RetryConfig
}

// DefaultParallelWalkerConfig returns defaults sized for I/O-bound stat
// calls. statWorkers overrides the worker count when positive.
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	return WalkerConfig(0)
}

// WalkerConfig returns the default configuration with the worker count
// overridden when statWorkers is positive.
func WalkerConfig(statWorkers int) ParallelWalkerConfig {
	return ParallelWalkerConfig{
		NumWorkers:    workers.ForIO(16, statWorkers),
		BatchSize:     500,
		ChannelBuffer: 1000,
		SkipHidden:    false,
		Retry:         filesystem.DefaultRetryConfig(),
	}
}

// ObservedFile is a regular file seen during a walk. Path is relative to
// the walk root with '/' separators; LastModified is in milliseconds.
type ObservedFile struct {
	Path         string
	LastModified int64
	Size         int64
}

// WalkResult is the outcome of a walk. Unreadable lists the relative
// directories, with a trailing '/', whose contents could not be listed, and
// Skipped the files that could not be stat'ed. Known files in either must
// not be treated as gone.
type WalkResult struct {
	Files      []ObservedFile
	Unreadable []string
	Skipped    []string
}

// Covers reports whether path was skipped or lies in an unreadable
// directory.
func (r *WalkResult) Covers(path string) bool {
	for _, prefix := range r.Unreadable {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, skipped := range r.Skipped {
		if path == skipped {
			return true
		}
	}
	return false
}

type fileJob struct {
	path    string
	relPath string
}

type fileResult struct {
	relPath string
	file    *ObservedFile
	err     error
}

// ParallelWalker lists a directory tree and stats its files with a pool of
// workers.
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string

	jobs    chan fileJob
	results chan fileResult

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	unreadableMu sync.Mutex
	unreadable   []string

	filesProcessed atomic.Int64
	errorsCount    atomic.Int64
}

// NewParallelWalker creates a walker for root. Cancelling ctx stops the walk.
func NewParallelWalker(ctx context.Context, root string, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &ParallelWalker{
		config:  config,
		root:    root,
		jobs:    make(chan fileJob, config.ChannelBuffer),
		results: make(chan fileResult, config.ChannelBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Walk enumerates every regular file below the root. It fails only when the
// root itself cannot be listed or the walk was cancelled; other errors are
// counted and skipped.
func (pw *ParallelWalker) Walk() (*WalkResult, error) {
	defer pw.cancel()
	logging.Debug("Walking %s with %d workers", pw.root, pw.config.NumWorkers)
	startTime := time.Now()

	for i := 0; i < pw.config.NumWorkers; i++ {
		pw.wg.Add(1)
		go pw.worker()
	}

	result := &WalkResult{}
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for r := range pw.results {
			if r.err != nil {
				pw.errorsCount.Add(1)
				logging.Warn("Skipping file: %v", r.err)
				result.Skipped = append(result.Skipped, r.relPath)
				continue
			}
			if r.file != nil {
				result.Files = append(result.Files, *r.file)
			}
		}
	}()

	err := pw.walkAndEnqueue()

	close(pw.jobs)
	pw.wg.Wait()
	close(pw.results)
	collectorWg.Wait()

	if err == nil {
		err = pw.ctx.Err()
	}

	pw.unreadableMu.Lock()
	result.Unreadable = pw.unreadable
	pw.unreadableMu.Unlock()

	logging.Debug("Walk of %s complete: %d files in %v (errors: %d)",
		pw.root, pw.filesProcessed.Load(), time.Since(startTime), pw.errorsCount.Load())

	return result, err
}

func (pw *ParallelWalker) walkAndEnqueue() error {
	// WalkDir does not descend into a symlinked root.
	root, err := filepath.EvalSymlinks(pw.root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", pw.root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-pw.ctx.Done():
			return fs.SkipAll
		default:
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			//nolint:nilerr // skip this entry but keep walking
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if err != nil {
			if relPath == "." {
				return fmt.Errorf("failed to read %s: %w", pw.root, err)
			}
			pw.errorsCount.Add(1)
			logging.Warn("Error accessing path %s: %v", path, err)
			if d == nil || d.IsDir() {
				pw.markUnreadable(relPath)
				if d != nil {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if relPath == "." {
			return nil
		}

		if pw.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		select {
		case pw.jobs <- fileJob{path: path, relPath: relPath}:
		case <-pw.ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (pw *ParallelWalker) markUnreadable(relPath string) {
	pw.unreadableMu.Lock()
	defer pw.unreadableMu.Unlock()
	pw.unreadable = append(pw.unreadable, strings.TrimSuffix(relPath, "/")+"/")
}

func (pw *ParallelWalker) worker() {
	defer pw.wg.Done()

	for job := range pw.jobs {
		if pw.ctx.Err() != nil {
			return
		}

		result := pw.statFile(job)
		if result.file != nil {
			pw.filesProcessed.Add(1)
		}

		select {
		case pw.results <- result:
		case <-pw.ctx.Done():
			return
		}
	}
}

// statFile follows symlinks, so a link to a regular file is indexed as one.
func (pw *ParallelWalker) statFile(job fileJob) fileResult {
	info, err := filesystem.StatWithRetry(job.path, pw.config.Retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileResult{}
		}
		return fileResult{relPath: job.relPath, err: fmt.Errorf("stat %s: %w", job.path, err)}
	}
	if !info.Mode().IsRegular() {
		return fileResult{}
	}

	return fileResult{file: &ObservedFile{
		Path:         job.relPath,
		LastModified: info.ModTime().UnixMilli(),
		Size:         info.Size(),
	}}
}
