package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger", "renders.db")
	l, err := OpenLedger(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLedgerPutGetTouch(t *testing.T) {
	l, _ := openTestLedger(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Put(Entry{Name: "abc.mp4", Format: FormatMP4, Size: 42, Created: created, LastAccess: created}))
	assert.Equal(t, 1, l.Count())

	e, err := l.Get("abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.Size)
	assert.True(t, e.LastAccess.Equal(created))

	later := created.Add(time.Hour)
	require.NoError(t, l.Touch("abc.mp4", later))
	e, err = l.Get("abc.mp4")
	require.NoError(t, err)
	assert.True(t, e.LastAccess.Equal(later))
	assert.True(t, e.Created.Equal(created))

	_, err = l.Get("missing.mp4")
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.True(t, errors.Is(l.Touch("missing.mp4", later), ErrEntryNotFound))
}

func TestLedgerSweep(t *testing.T) {
	l, _ := openTestLedger(t)
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, name := range []string{"old.mp4", "fresh.webm"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, l.Put(Entry{Name: "old.mp4", LastAccess: now.Add(-48 * time.Hour)}))
	require.NoError(t, l.Put(Entry{Name: "fresh.webm", LastAccess: now.Add(-time.Hour)}))
	require.NoError(t, l.Put(Entry{Name: "vanished.png", LastAccess: now.Add(-48 * time.Hour)}))

	removed, err := l.Sweep(dir, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(filepath.Join(dir, "old.mp4"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "fresh.webm"))
	assert.NoError(t, err)

	assert.Equal(t, 1, l.Count())
	_, err = l.Get("fresh.webm")
	assert.NoError(t, err)
}

func TestLedgerPersists(t *testing.T) {
	l, path := openTestLedger(t)
	require.NoError(t, l.Put(Entry{Name: "a.gif", LastAccess: time.Now()}))
	require.NoError(t, l.Close())

	reopened, err := OpenLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
}

func TestRendererSweep(t *testing.T) {
	r := newTestRenderer(t, true)

	name := "expired.mp4"
	require.NoError(t, os.WriteFile(filepath.Join(r.outDir, name), []byte("x"), 0o644))
	require.NoError(t, r.ledger.Put(Entry{Name: name, LastAccess: time.Now().Add(-2 * time.Hour)}))

	assert.Equal(t, 1, r.Sweep())
	assertEmpty(t, r.outDir)

	noLedger := newTestRenderer(t, false)
	assert.Zero(t, noLedger.Sweep())
}
