package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
	"subtitle-index/internal/proxy"
	"subtitle-index/internal/transcoder"
)

// ErrScanRootUnreadable is returned when library discovery cannot list the
// scan root. It aborts the cycle; the loop retries after the retry delay.
var ErrScanRootUnreadable = errors.New("scan root unreadable")

// Prober reads stream lists and subtitle text from media files.
type Prober interface {
	Probe(ctx context.Context, path string) ([]transcoder.Stream, error)
	ExtractSubtitle(ctx context.Context, path string, streamIndex int) (string, error)
}

// ConversationSink receives conversations as they are stored and the ids of
// conversations about to disappear, so a search index outside the database
// can follow along.
type ConversationSink interface {
	Add(ctx context.Context, conversations []database.Conversation) error
	Remove(ctx context.Context, ids []int64) error
}

// Options configures the scan cycle.
type Options struct {
	// RootDir is the scan root. Relative library paths resolve against it.
	RootDir string
	// DefaultLibraries and NondefaultLibraries, when either is non-empty,
	// are the complete set of libraries; any other registered library is
	// removed.
	DefaultLibraries    []string
	NondefaultLibraries []string
	// SkipSetup disables first-run discovery of libraries under RootDir.
	SkipSetup bool
	// ScanInterval is the pause between successful cycles and RetryDelay
	// the pause after a failed one.
	ScanInterval time.Duration
	RetryDelay   time.Duration
	// ExtractSubtitles controls whether subtitle tracks are segmented.
	ExtractSubtitles bool
	// Watch starts a filesystem watcher that triggers early cycles.
	Watch bool
	// Walker configures the parallel file walker.
	Walker ParallelWalkerConfig
	// Memory, when set, is consulted before each file is indexed.
	Memory Pauser
}

// Pauser blocks while background work should yield to memory pressure.
type Pauser interface {
	WaitIfPaused(ctx context.Context) error
}

// Indexer keeps the database in step with the library roots on disk.
type Indexer struct {
	db     *database.Database
	prober Prober
	proxy  *proxy.Proxy
	sink   ConversationSink
	opts   Options

	stopChan chan struct{}
	stopOnce sync.Once
	trigger  chan struct{}
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	indexMu        sync.Mutex
	isScanning     bool
	lastScanTime   time.Time
	firstCycleDone bool
	lastError      error
	startTime      time.Time

	progress atomic.Value

	// cycleDone receives after every cycle so the watcher can pick up
	// libraries the cycle registered.
	cycleDone chan struct{}
}

// Progress describes the running or last scan cycle.
type Progress struct {
	Phase        string    `json:"phase"`
	FilesScanned int64     `json:"filesScanned"`
	FilesPending int64     `json:"filesPending"`
	FilesIndexed int64     `json:"filesIndexed"`
	IsScanning   bool      `json:"isScanning"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// Cycle phases reported in Progress.
const (
	PhaseIdle     = "idle"
	PhaseSync     = "sync"
	PhaseExists   = "check"
	PhaseScan     = "scan"
	PhaseIndex    = "index"
	defaultPeriod = 5 * time.Minute
)

// New creates an Indexer. sink may be nil.
func New(db *database.Database, prober Prober, px *proxy.Proxy, sink ConversationSink, opts Options) *Indexer {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = defaultPeriod
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultPeriod
	}
	if opts.Walker.NumWorkers <= 0 {
		opts.Walker = DefaultParallelWalkerConfig()
	}

	idx := &Indexer{
		db:        db,
		prober:    prober,
		proxy:     px,
		sink:      sink,
		opts:      opts,
		stopChan:  make(chan struct{}),
		trigger:   make(chan struct{}, 1),
		cycleDone: make(chan struct{}, 1),
		startTime: time.Now(),
	}
	idx.progress.Store(Progress{Phase: PhaseIdle})
	return idx
}


// Start runs the scan loop in the background: one cycle immediately, then
// one every ScanInterval, or RetryDelay after a failed cycle.
func (idx *Indexer) Start() {
	go idx.loop()

	if idx.opts.Watch {
		go idx.watch()
	}
}

// Stop ends the loop and cancels a running cycle.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		close(idx.stopChan)

		idx.cancelMu.Lock()
		if idx.cancel != nil {
			idx.cancel()
		}
		idx.cancelMu.Unlock()
	})
}

// TriggerScan requests an early cycle. Requests made while one is pending
// are merged.
func (idx *Indexer) TriggerScan() {
	select {
	case idx.trigger <- struct{}{}:
	default:
	}
}

func (idx *Indexer) loop() {
	for {
		ctx, cancel := context.WithCancel(context.Background())
		idx.cancelMu.Lock()
		idx.cancel = cancel
		idx.cancelMu.Unlock()

		select {
		case <-idx.stopChan:
			cancel()
			return
		default:
		}

		err := idx.RunScanCycle(ctx)
		cancel()

		delay := idx.opts.ScanInterval
		if err != nil {
			logging.Error("Scan cycle failed, retrying in %v: %v", idx.opts.RetryDelay, err)
			delay = idx.opts.RetryDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-idx.trigger:
			timer.Stop()
			logging.Info("Scan cycle triggered")
		case <-idx.stopChan:
			timer.Stop()
			logging.Info("Scan loop stopped")
			return
		}
	}
}

// RunScanCycle synchronizes libraries, checks that their roots exist, scans
// their files and indexes pending ones. A cycle requested while another is
// running returns immediately. Only library synchronization errors fail the
// cycle; per-library and per-file problems are logged and skipped.
func (idx *Indexer) RunScanCycle(ctx context.Context) (err error) {
	if !idx.tryStartScan() {
		logging.Info("Scan already in progress, skipping...")
		return nil
	}
	startTime := time.Now()
	defer func() { idx.finishScan(startTime, err) }()

	metrics.ScanRunning.Set(1)
	defer metrics.ScanRunning.Set(0)

	logging.Info("Starting scan cycle...")

	idx.setPhase(PhaseSync, startTime)
	if err = idx.SyncLibraries(ctx); err != nil {
		return err
	}

	idx.setPhase(PhaseExists, startTime)
	if err = idx.CheckLibraryExistence(ctx); err != nil {
		return err
	}

	idx.setPhase(PhaseScan, startTime)
	if err = idx.ScanFiles(ctx); err != nil {
		return err
	}

	idx.setPhase(PhaseIndex, startTime)
	return idx.IndexFiles(ctx)
}

func (idx *Indexer) tryStartScan() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isScanning {
		return false
	}
	idx.isScanning = true
	return true
}

func (idx *Indexer) finishScan(startTime time.Time, err error) {
	duration := time.Since(startTime)

	idx.indexMu.Lock()
	idx.isScanning = false
	idx.firstCycleDone = true
	idx.lastScanTime = time.Now()
	idx.lastError = err
	idx.indexMu.Unlock()

	p := idx.GetProgress()
	p.Phase = PhaseIdle
	p.IsScanning = false
	idx.progress.Store(p)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ScanCyclesTotal.WithLabelValues(status).Inc()
	metrics.ScanLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.ScanLastRunDuration.Set(duration.Seconds())

	if err == nil {
		logging.Info("Scan cycle complete: %d files scanned, %d indexed in %v", p.FilesScanned, p.FilesIndexed, duration)
	}

	select {
	case idx.cycleDone <- struct{}{}:
	default:
	}
}

func (idx *Indexer) setPhase(phase string, startTime time.Time) {
	p := idx.GetProgress()
	if phase == PhaseSync {
		p = Progress{}
	}
	p.Phase = phase
	p.IsScanning = true
	p.StartedAt = startTime
	idx.progress.Store(p)
}

func (idx *Indexer) updateProgress(fn func(p *Progress)) {
	p := idx.GetProgress()
	fn(&p)
	idx.progress.Store(p)
}

// GetProgress returns the progress of the running or last cycle.
func (idx *Indexer) GetProgress() Progress {
	if p, ok := idx.progress.Load().(Progress); ok {
		return p
	}
	return Progress{}
}

// IsReady reports whether the first cycle has finished, successfully or
// not.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.firstCycleDone
}

// IsScanning reports whether a cycle is running.
func (idx *Indexer) IsScanning() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isScanning
}

// LastScanTime returns when the last cycle finished.
func (idx *Indexer) LastScanTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastScanTime
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready     bool      `json:"ready"`
	Scanning  bool      `json:"scanning"`
	StartTime time.Time `json:"startTime"`
	Uptime    string    `json:"uptime"`
	LastScan  time.Time `json:"lastScan,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Progress  Progress  `json:"progress"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:     idx.firstCycleDone,
		Scanning:  idx.isScanning,
		StartTime: idx.startTime,
		Uptime:    time.Since(idx.startTime).String(),
		LastScan:  idx.lastScanTime,
		Progress:  idx.GetProgress(),
	}
	if idx.lastError != nil {
		status.LastError = idx.lastError.Error()
	}
	return status
}
