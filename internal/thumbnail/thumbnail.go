package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
	"subtitle-index/internal/proxy"
	"subtitle-index/internal/transcoder"
)

// ErrDisabled is returned when no thumbnail cache directory is available.
var ErrDisabled = errors.New("thumbnails disabled")

const (
	maxSize     = 320
	jpegQuality = 80
	seekSeconds = 5
)

// FrameGrabber runs an ffmpeg job and returns its output.
type FrameGrabber interface {
	Output(ctx context.Context, job transcoder.Job) ([]byte, error)
}

// Source identifies the video stream to capture. Version changes whenever
// the file content does, so a stale thumbnail is never served.
type Source struct {
	Path        string
	StreamIndex int
	Version     string
}

// Generator produces JPEG thumbnails of video tracks and caches them on
// disk.
type Generator struct {
	cacheDir string
	enabled  bool
	grabber  FrameGrabber
	proxy    *proxy.Proxy
	mu       sync.Mutex
}

// NewGenerator creates a Generator caching under cacheDir.
func NewGenerator(cacheDir string, enabled bool, grabber FrameGrabber, px *proxy.Proxy) *Generator {
	if enabled {
		logging.Debug("Thumbnail generator: enabled, cache dir: %s", cacheDir)
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			logging.Warn("Thumbnail generator: failed to create cache dir: %v", err)
		}
	} else {
		logging.Debug("Thumbnail generator: disabled")
	}
	return &Generator{
		cacheDir: cacheDir,
		enabled:  enabled,
		grabber:  grabber,
		proxy:    px,
	}
}

// IsEnabled reports whether thumbnails can be generated.
func (g *Generator) IsEnabled() bool {
	return g.enabled
}

// Get returns the thumbnail for src, generating it on a cache miss.
func (g *Generator) Get(ctx context.Context, src Source) ([]byte, error) {
	if !g.enabled {
		return nil, ErrDisabled
	}

	cachePath := filepath.Join(g.cacheDir, cacheKey(src))
	if data, err := os.ReadFile(cachePath); err == nil {
		metrics.ThumbnailRequestsTotal.WithLabelValues("cached").Inc()
		return data, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if data, err := os.ReadFile(cachePath); err == nil {
		metrics.ThumbnailRequestsTotal.WithLabelValues("cached").Inc()
		return data, nil
	}

	data, err := g.generate(ctx, src)
	if err != nil {
		metrics.ThumbnailRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("thumbnail generation failed: %w", err)
	}
	metrics.ThumbnailRequestsTotal.WithLabelValues("generated").Inc()

	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		logging.Warn("Failed to cache thumbnail %s: %v", cachePath, err)
	}
	return data, nil
}

func (g *Generator) generate(ctx context.Context, src Source) ([]byte, error) {
	link := g.proxy.Acquire(src.Path)
	defer func() {
		if err := link.Release(); err != nil {
			logging.Warn("%v", err)
		}
	}()

	frame, err := g.grabber.Output(ctx, frameJob(link.Path, src.StreamIndex, seekSeconds))
	if err != nil || len(frame) == 0 {
		// Clips shorter than the seek offset yield nothing; take the first frame.
		logging.Debug("Frame at %ds unavailable for %s, using first frame: %v", seekSeconds, src.Path, err)
		frame, err = g.grabber.Output(ctx, frameJob(link.Path, src.StreamIndex, 0))
		if err != nil {
			return nil, err
		}
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", src.Path)
	}

	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func frameJob(path string, streamIndex int, seek float64) transcoder.Job {
	return transcoder.Job{
		Kind:    transcoder.KindThumbnail,
		Inputs:  []transcoder.Input{{Path: path, Seek: seek}},
		Maps:    []string{fmt.Sprintf("0:%d", streamIndex)},
		Options: []string{"-frames:v", "1", "-f", "image2pipe", "-c:v", "png"},
		Output:  "-",
	}
}

func cacheKey(src Source) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", src.Path, src.StreamIndex, src.Version)))
	return hex.EncodeToString(sum[:16]) + ".jpg"
}
