package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

// Job kinds, used as metric labels.
const (
	KindProbe     = "probe"
	KindExtract   = "extract"
	KindRender    = "render"
	KindThumbnail = "thumbnail"
)

// stderrLimit caps how much ffmpeg diagnostic output is kept for errors.
const stderrLimit = 4096

// Transcoder runs ffprobe and ffmpeg subprocesses.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// Stream is one entry of ffprobe's stream list.
type Stream struct {
	Index     int        `json:"index"`
	CodecType string     `json:"codec_type"`
	CodecName string     `json:"codec_name"`
	Tags      StreamTags `json:"tags"`
}

// StreamTags are the container tags of a stream that the index keeps.
type StreamTags struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

type probeOutput struct {
	Streams []Stream `json:"streams"`
}

// ExitError is returned when ffmpeg or ffprobe exits unsuccessfully. Stderr
// holds the tail of the tool's diagnostic output.
type ExitError struct {
	Kind   string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Kind, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// New creates a Transcoder. Empty paths fall back to the binaries on PATH.
func New(ffmpegPath, ffprobePath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		processes:   make(map[string]*exec.Cmd),
	}
}

// Probe lists the streams of a media file.
func (t *Transcoder) Probe(ctx context.Context, path string) ([]Stream, error) {
	out, err := t.run(ctx, KindProbe, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return probed.Streams, nil
}

// ExtractSubtitle converts one subtitle stream of a file to ASS text.
func (t *Transcoder) ExtractSubtitle(ctx context.Context, path string, streamIndex int) (string, error) {
	job := Job{
		Kind:   KindExtract,
		Inputs: []Input{{Path: path}},
		Maps:   []string{"0:" + strconv.Itoa(streamIndex)},
		Options: []string{
			"-f", "ass",
		},
		Output: "-",
	}

	out, err := t.Output(ctx, job)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Run executes a job that writes to a file.
func (t *Transcoder) Run(ctx context.Context, job Job) error {
	_, err := t.run(ctx, job.Kind, t.ffmpegPath, job.Args()...)
	return err
}

// Output executes a job that writes to stdout and returns everything it
// wrote once the process has exited.
func (t *Transcoder) Output(ctx context.Context, job Job) ([]byte, error) {
	if job.Output != "-" {
		return nil, errors.New("job output must be stdout")
	}
	return t.run(ctx, job.Kind, t.ffmpegPath, job.Args()...)
}

func (t *Transcoder) run(ctx context.Context, kind, bin string, args ...string) ([]byte, error) {
	id := uuid.NewString()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if logging.IsDebugEnabled() {
		logging.Debug("[%s] %s %s", kind, bin, strings.Join(args, " "))
	}

	start := time.Now()
	metrics.FFmpegInProgress.Inc()

	if err := cmd.Start(); err != nil {
		metrics.FFmpegInProgress.Dec()
		metrics.FFmpegRunsTotal.WithLabelValues(kind, "error").Inc()
		return nil, &ExitError{Kind: kind, Err: err}
	}

	t.processMu.Lock()
	t.processes[id] = cmd
	t.processMu.Unlock()

	err := cmd.Wait()

	t.processMu.Lock()
	delete(t.processes, id)
	t.processMu.Unlock()

	metrics.FFmpegInProgress.Dec()
	metrics.FFmpegDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FFmpegRunsTotal.WithLabelValues(kind, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExitError{Kind: kind, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	metrics.FFmpegRunsTotal.WithLabelValues(kind, "success").Inc()
	return stdout.Bytes(), nil
}

// Cleanup stops all running processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for id, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process %s: %s", id, strings.Join(cmd.Args, " "))
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process %s: %v", id, err)
			}
		}
	}
}

// Running returns the number of processes currently executing.
func (t *Transcoder) Running() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
