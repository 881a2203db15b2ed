package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/staticd/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newDirSource(t *testing.T) (*DirSource, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<h1>home</h1>")
	writeFile(t, dir, "css/site.css", "body{}")
	src, err := NewDirSource(dir)
	require.NoError(t, err)
	return src, dir
}

type loaderMetrics struct {
	mu     sync.Mutex
	hits   int
	misses int
	reads  int
	errs   int
}

func (m *loaderMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *loaderMetrics) ObserveOriginRead(_ string, _ int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err != nil {
		m.errs++
	}
}

// ============================================================================
// DirSource
// ============================================================================

func TestNewDirSource_Validation(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")
	_, err = NewDirSource(filepath.Join(dir, "file.txt"))
	assert.Error(t, err)
}

func TestDirSource_Stat(t *testing.T) {
	src, _ := newDirSource(t)
	ctx := context.Background()

	info, err := src.Stat(ctx, "index.html")
	require.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(len("<h1>home</h1>")), info.Size)

	info, err = src.Stat(ctx, "css")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	info, err = src.Stat(ctx, ".")
	require.NoError(t, err)
	assert.True(t, info.IsDir, "root is a directory")

	_, err = src.Stat(ctx, "nope.html")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Stat(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirSource_Read(t *testing.T) {
	src, _ := newDirSource(t)
	ctx := context.Background()

	data, err := src.Read(ctx, "css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	_, err = src.Read(ctx, "css")
	assert.ErrorIs(t, err, ErrIsDirectory)

	_, err = src.Read(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Read(ctx, "..")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "dir", src.Name())
}

func TestDirSource_SymlinkOutsideRoot(t *testing.T) {
	src, dir := newDirSource(t)
	outside := t.TempDir()
	writeFile(t, outside, "secret.txt", "nope")

	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "leak.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(dir, "index.html"), filepath.Join(dir, "home.html")))

	_, err := src.Stat(context.Background(), "leak.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = src.Read(context.Background(), "leak.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	data, err := src.Read(context.Background(), "home.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>home</h1>", string(data), "links inside the root are followed")
}

func TestDirSource_EmptyFile(t *testing.T) {
	src, dir := newDirSource(t)
	writeFile(t, dir, "empty.txt", "")

	data, err := src.Read(context.Background(), "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, data)
}

// ============================================================================
// Loader
// ============================================================================

func TestLoad_CacheOnServesStaleBytes(t *testing.T) {
	src, dir := newDirSource(t)
	m := &loaderMetrics{}
	l := New(src, cache.NewGate(true, nil), cache.NewSlot(nil), m)
	ctx := context.Background()

	first, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "<h1>home</h1>", string(first.Data))

	writeFile(t, dir, "index.html", "<h1>changed</h1>")

	second, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "<h1>home</h1>", string(second.Data), "cached bytes survive the edit")

	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, 1, m.reads)
}

func TestLoad_CacheOffSeesModification(t *testing.T) {
	src, dir := newDirSource(t)
	slot := cache.NewSlot(nil)
	l := New(src, cache.NewGate(false, nil), slot, nil)
	ctx := context.Background()

	first, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>home</h1>", string(first.Data))

	writeFile(t, dir, "index.html", "<h1>changed</h1>")

	second, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.Equal(t, "<h1>changed</h1>", string(second.Data))
	assert.Equal(t, 0, slot.Len(), "slot untouched while the gate is off")
}

func TestLoad_NewKeyEvictsOld(t *testing.T) {
	src, dir := newDirSource(t)
	slot := cache.NewSlot(nil)
	l := New(src, cache.NewGate(true, nil), slot, nil)
	ctx := context.Background()

	_, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	_, err = l.Load(ctx, "css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "css/site.css", slot.Key())

	writeFile(t, dir, "index.html", "<h1>changed</h1>")
	res, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "<h1>changed</h1>", string(res.Data))
}

func TestLoad_ToggleKeepsStaleEntry(t *testing.T) {
	src, dir := newDirSource(t)
	gate := cache.NewGate(true, nil)
	l := New(src, gate, cache.NewSlot(nil), nil)
	ctx := context.Background()

	_, err := l.Load(ctx, "index.html")
	require.NoError(t, err)

	gate.Toggle()
	writeFile(t, dir, "index.html", "<h1>v2</h1>")
	off, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>v2</h1>", string(off.Data))

	gate.Toggle()
	on, err := l.Load(ctx, "index.html")
	require.NoError(t, err)
	assert.True(t, on.CacheHit)
	assert.Equal(t, "<h1>home</h1>", string(on.Data), "entry from before the off/on cycle is served")
}

type failingSource struct{}

func (failingSource) Stat(context.Context, string) (Info, error) { return Info{Size: 1}, nil }
func (failingSource) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (failingSource) Name() string { return "failing" }

func TestLoad_ErrorIsNotCached(t *testing.T) {
	m := &loaderMetrics{}
	slot := cache.NewSlot(nil)
	l := New(failingSource{}, cache.NewGate(true, nil), slot, m)

	_, err := l.Load(context.Background(), "x")
	assert.EqualError(t, err, "disk on fire")
	assert.Equal(t, 0, slot.Len())
	assert.Equal(t, 1, m.errs)
}

func TestLoader_Accessors(t *testing.T) {
	src, _ := newDirSource(t)
	gate := cache.NewGate(true, nil)
	slot := cache.NewSlot(nil)
	l := New(src, gate, slot, nil)

	assert.Same(t, gate, l.Gate())
	assert.Same(t, slot, l.Slot())
	assert.Equal(t, "dir", l.Source().Name())

	info, err := l.Stat(context.Background(), "index.html")
	require.NoError(t, err)
	assert.False(t, info.IsDir)
}
