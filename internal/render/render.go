package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
	"subtitle-index/internal/proxy"
	"subtitle-index/internal/subtitle"
	"subtitle-index/internal/transcoder"
	"subtitle-index/internal/validation"
)

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid render request")
	// ErrTrackNotFound is returned when a requested track id is unknown.
	ErrTrackNotFound = errors.New("track not found")
)

// OutputPrefix is the URL path under which artifacts are served.
const OutputPrefix = "/output/"

// TrackResolver locates tracks on disk.
type TrackResolver interface {
	GetTrackSources(ctx context.Context, ids ...int64) (map[int64]database.TrackSource, error)
}

// Runner runs an ffmpeg job to completion.
type Runner interface {
	Run(ctx context.Context, job transcoder.Job) error
}

// Config locates the directories a Renderer works in.
type Config struct {
	// RootDir resolves relative library paths.
	RootDir string
	// OutputDir holds finished artifacts.
	OutputDir string
	// TempDir holds subtitle scripts while ffmpeg runs.
	TempDir string
	// CacheTTL is how long an unused artifact is kept. Zero keeps
	// artifacts forever.
	CacheTTL time.Duration
}

// Result is the outcome of a render.
type Result struct {
	OutputFile string `json:"outputFile"`
	Cached     bool   `json:"cached"`
}

// Renderer turns render requests into media files named by their cache key.
type Renderer struct {
	tracks    TrackResolver
	runner    Runner
	proxy     *proxy.Proxy
	ledger    *Ledger
	validator *validation.Validator
	cfg       Config

	stopChan chan struct{}
}

// New creates a Renderer. ledger may be nil, in which case artifacts are
// reused while present but never swept.
func New(tracks TrackResolver, runner Runner, px *proxy.Proxy, ledger *Ledger, v *validation.Validator, cfg Config) *Renderer {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Renderer{
		tracks:    tracks,
		runner:    runner,
		proxy:     px,
		ledger:    ledger,
		validator: v,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
	}
}

// Validate checks a request without rendering it.
func (r *Renderer) Validate(req *Request) error {
	if err := r.validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !req.OutputFormat.Still() && req.EndSeconds <= req.StartSeconds {
		return fmt.Errorf("%w: field 'endSeconds' must be greater than 'startSeconds'", ErrInvalidRequest)
	}
	return nil
}

// Render produces the artifact for req, or returns the existing one when an
// identical request was rendered before. Temporary files and path proxies
// are released on every path; a failed run leaves nothing in the output
// directory.
func (r *Renderer) Render(ctx context.Context, req *Request) (*Result, error) {
	if err := r.Validate(req); err != nil {
		return nil, err
	}
	format := string(req.OutputFormat)

	key, err := CacheKey(req)
	if err != nil {
		return nil, err
	}
	name := FileName(key, req.OutputFormat)
	finalPath := filepath.Join(r.cfg.OutputDir, name)
	result := &Result{OutputFile: OutputPrefix + name}

	if info, err := os.Stat(finalPath); err == nil {
		r.recordHit(name, req.OutputFormat, info.Size())
		metrics.RenderRequestsTotal.WithLabelValues(format, "cached").Inc()
		result.Cached = true
		return result, nil
	}

	if err := r.render(ctx, req, finalPath); err != nil {
		metrics.RenderRequestsTotal.WithLabelValues(format, "error").Inc()
		return nil, err
	}
	metrics.RenderRequestsTotal.WithLabelValues(format, "rendered").Inc()

	if r.ledger != nil {
		now := time.Now()
		var size int64
		if info, err := os.Stat(finalPath); err == nil {
			size = info.Size()
		}
		if err := r.ledger.Put(Entry{Name: name, Format: req.OutputFormat, Size: size, Created: now, LastAccess: now}); err != nil {
			logging.Warn("Failed to record render %s: %v", name, err)
		}
	}
	return result, nil
}

func (r *Renderer) recordHit(name string, format Format, size int64) {
	if r.ledger == nil {
		return
	}
	now := time.Now()
	err := r.ledger.Touch(name, now)
	if errors.Is(err, ErrEntryNotFound) {
		err = r.ledger.Put(Entry{Name: name, Format: format, Size: size, Created: now, LastAccess: now})
	}
	if err != nil {
		logging.Warn("Failed to update render ledger for %s: %v", name, err)
	}
}

func (r *Renderer) render(ctx context.Context, req *Request, finalPath string) (err error) {
	video, audio, err := r.resolve(ctx, req)
	if err != nil {
		return err
	}

	script := subtitle.Assemble(req.Preamble, req.NondialogueEvents, subtitle.Shift(req.DialogueEvents, req.StartSeconds))
	scriptPath, err := writeTemp(r.cfg.TempDir, script.String())
	if err != nil {
		return err
	}
	defer removeQuietly(scriptPath)

	videoLink := r.proxy.Acquire(r.sourcePath(*video))
	defer releaseQuietly(videoLink)

	job := transcoder.Job{
		Kind:        transcoder.KindRender,
		Inputs:      []transcoder.Input{{Path: videoLink.Path, Seek: req.StartSeconds, Duration: req.Duration()}},
		FilterGraph: fmt.Sprintf("[0:%d]ass=%s[v]", video.StreamIndex, EscapeFilterPath(scriptPath)),
		Maps:        []string{"[v]"},
		Options:     encoderOptions(req.OutputFormat),
	}

	if audio != nil && req.OutputFormat.HasAudio() {
		audioLink := r.proxy.Acquire(r.sourcePath(*audio))
		defer releaseQuietly(audioLink)

		job.Inputs = append(job.Inputs, transcoder.Input{Path: audioLink.Path, Seek: req.StartSeconds, Duration: req.Duration()})
		job.Maps = append(job.Maps, fmt.Sprintf("1:%d", audio.StreamIndex))
	}

	// ffmpeg picks the muxer from the extension, so the partial file keeps it.
	partialPath := filepath.Join(filepath.Dir(finalPath), ".partial-"+uuid.NewString()+filepath.Ext(finalPath))
	job.Output = partialPath
	defer func() {
		if err != nil {
			removeQuietly(partialPath)
		}
	}()

	logging.Debug("Rendering %s from track %d at %.3fs", filepath.Base(finalPath), req.VideoTrackID, req.StartSeconds)
	if err = r.runner.Run(ctx, job); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if err = os.Rename(partialPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish render: %w", err)
	}
	return nil
}

func (r *Renderer) resolve(ctx context.Context, req *Request) (video, audio *database.TrackSource, err error) {
	ids := []int64{req.VideoTrackID}
	if req.AudioTrackID != nil && req.OutputFormat.HasAudio() {
		ids = append(ids, *req.AudioTrackID)
	}

	sources, err := r.tracks.GetTrackSources(ctx, ids...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve tracks: %w", err)
	}

	v, ok := sources[req.VideoTrackID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: video track %d", ErrTrackNotFound, req.VideoTrackID)
	}
	video = &v

	if req.AudioTrackID != nil && req.OutputFormat.HasAudio() {
		a, ok := sources[*req.AudioTrackID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: audio track %d", ErrTrackNotFound, *req.AudioTrackID)
		}
		audio = &a
	}
	return video, audio, nil
}

func (r *Renderer) sourcePath(s database.TrackSource) string {
	libraryRoot := s.LibraryPath
	if !filepath.IsAbs(libraryRoot) {
		libraryRoot = filepath.Join(r.cfg.RootDir, libraryRoot)
	}
	return filepath.Join(libraryRoot, filepath.FromSlash(s.FilePath))
}

// encoderOptions returns the output arguments for a format. Outputs with
// audio are downmixed to stereo; every output drops source metadata and
// chapters.
func encoderOptions(format Format) []string {
	var opts []string
	switch format {
	case FormatMP4:
		opts = []string{"-c:v", "libx264", "-tune", "animation", "-crf", "16"}
	case FormatWebM:
		opts = []string{"-c:v", "libvpx", "-crf", "6", "-b:v", "1M"}
	case FormatPNG:
		opts = []string{"-frames:v", "1"}
	}

	if format.HasAudio() {
		opts = append(opts, "-ac", "2")
	}
	return append(opts, "-map_metadata", "-1", "-map_chapters", "-1")
}

// EscapeFilterPath quotes a file path for use as an ass filter argument
// inside a filter graph.
func EscapeFilterPath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	return strings.ReplaceAll(escaped, `\`, `\\`)
}

func writeTemp(dir, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "render-*.ass")
	if err != nil {
		return "", fmt.Errorf("failed to create subtitle file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		removeQuietly(f.Name())
		return "", fmt.Errorf("failed to write subtitle file: %w", err)
	}
	if err := f.Close(); err != nil {
		removeQuietly(f.Name())
		return "", fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return f.Name(), nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to remove %s: %v", path, err)
	}
}

func releaseQuietly(link *proxy.Link) {
	if err := link.Release(); err != nil {
		logging.Warn("%v", err)
	}
}

// StartSweeper removes expired artifacts every interval until Stop is
// called. It does nothing without a ledger or a TTL.
func (r *Renderer) StartSweeper(interval time.Duration) {
	if r.ledger == nil || r.cfg.CacheTTL <= 0 {
		return
	}
	go r.sweepLoop(interval)
}

// Stop ends the sweeper.
func (r *Renderer) Stop() {
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
}

func (r *Renderer) sweepLoop(interval time.Duration) {
	r.Sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopChan:
			return
		}
	}
}

// Sweep removes artifacts unused for longer than the cache TTL.
func (r *Renderer) Sweep() int {
	if r.ledger == nil || r.cfg.CacheTTL <= 0 {
		return 0
	}
	removed, err := r.ledger.Sweep(r.cfg.OutputDir, r.cfg.CacheTTL, time.Now())
	if err != nil {
		logging.Warn("Render sweep incomplete: %v", err)
	}
	if removed > 0 {
		logging.Info("Removed %d expired renders", removed)
	}
	return removed
}
