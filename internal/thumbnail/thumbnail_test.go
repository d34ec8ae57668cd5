package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtitle-index/internal/proxy"
	"subtitle-index/internal/transcoder"
)

type fakeGrabber struct {
	mu      sync.Mutex
	jobs    []transcoder.Job
	frame   []byte
	seekErr error
}

func (f *fakeGrabber) Output(_ context.Context, job transcoder.Job) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = append(f.jobs, job)
	if f.seekErr != nil && job.Inputs[0].Seek > 0 {
		return nil, f.seekErr
	}
	return f.frame, nil
}

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestGenerator(t *testing.T, grabber *fakeGrabber) (*Generator, string) {
	t.Helper()
	linkDir := t.TempDir()
	return NewGenerator(filepath.Join(t.TempDir(), "thumbs"), true, grabber, proxy.New(linkDir)), linkDir
}

func TestGetGeneratesAndCaches(t *testing.T) {
	grabber := &fakeGrabber{frame: pngFrame(t, 640, 360)}
	g, linkDir := newTestGenerator(t, grabber)
	src := Source{Path: "/media/Show/ep1.mkv", StreamIndex: 0, Version: "100-2048"}

	data, err := g.Get(context.Background(), src)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, maxSize, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())

	require.Len(t, grabber.jobs, 1)
	job := grabber.jobs[0]
	assert.Equal(t, transcoder.KindThumbnail, job.Kind)
	assert.Equal(t, "-", job.Output)
	assert.Equal(t, []string{"0:0"}, job.Maps)
	assert.Equal(t, float64(seekSeconds), job.Inputs[0].Seek)
	assert.Equal(t, linkDir, filepath.Dir(job.Inputs[0].Path))

	again, err := g.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Len(t, grabber.jobs, 1, "second request is served from cache")

	src.Version = "200-2048"
	_, err = g.Get(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, grabber.jobs, 2, "a new file version is generated again")
}

func TestGetFallsBackToFirstFrame(t *testing.T) {
	grabber := &fakeGrabber{frame: pngFrame(t, 100, 100), seekErr: errors.New("end of file")}
	g, _ := newTestGenerator(t, grabber)

	_, err := g.Get(context.Background(), Source{Path: "/media/short.mkv", StreamIndex: 2})
	require.NoError(t, err)

	require.Len(t, grabber.jobs, 2)
	assert.Zero(t, grabber.jobs[1].Inputs[0].Seek)
	assert.Equal(t, []string{"0:2"}, grabber.jobs[1].Maps)
}

func TestGetEmptyOutput(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeGrabber{})

	_, err := g.Get(context.Background(), Source{Path: "/media/broken.mkv"})
	assert.Error(t, err)
}

func TestGetUndecodableFrame(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeGrabber{frame: []byte("not an image")})

	_, err := g.Get(context.Background(), Source{Path: "/media/broken.mkv"})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	g := NewGenerator("", false, &fakeGrabber{}, proxy.New(""))
	assert.False(t, g.IsEnabled())

	_, err := g.Get(context.Background(), Source{Path: "/media/a.mkv"})
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestCacheKey(t *testing.T) {
	a := cacheKey(Source{Path: "/a.mkv", StreamIndex: 0, Version: "1"})
	assert.Equal(t, a, cacheKey(Source{Path: "/a.mkv", StreamIndex: 0, Version: "1"}))
	assert.NotEqual(t, a, cacheKey(Source{Path: "/a.mkv", StreamIndex: 1, Version: "1"}))
	assert.NotEqual(t, a, cacheKey(Source{Path: "/b.mkv", StreamIndex: 0, Version: "1"}))
	assert.Equal(t, ".jpg", filepath.Ext(a))
}
