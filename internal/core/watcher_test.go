package core

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "add", EventAdd.String())
	assert.Equal(t, "change", EventChange.String())
	assert.Equal(t, "unlink", EventUnlink.String())
	assert.Equal(t, "rename", EventRename.String())
}

func TestClassifyOp(t *testing.T) {
	assert.Equal(t, EventAdd, classifyOp(fsnotify.Create))
	assert.Equal(t, EventUnlink, classifyOp(fsnotify.Remove))
	assert.Equal(t, EventRename, classifyOp(fsnotify.Rename))
	assert.Equal(t, EventChange, classifyOp(fsnotify.Write))
}

func TestWatcher_FireDropsDuplicatedPending(t *testing.T) {
	w := NewWatcher(t.TempDir(), 64*1024, nil, testLogger(t))

	w.mu.Lock()
	w.pending["a.txt"] = WatchEvent{Kind: EventAdd, RelativePath: "a.txt"}
	w.mu.Unlock()

	w.fire("a.txt")

	select {
	case ev := <-w.Events():
		assert.Equal(t, "a.txt", ev.RelativePath)
	default:
		t.Fatal("expected an event")
	}

	// Second fire for the same path with nothing pending emits nothing.
	w.fire("a.txt")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestWatcher_DrainStopsFutureFires(t *testing.T) {
	w := NewWatcher(t.TempDir(), 64*1024, nil, testLogger(t))

	w.mu.Lock()
	w.pending["a.txt"] = WatchEvent{Kind: EventAdd, RelativePath: "a.txt"}
	w.mu.Unlock()

	w.drain()
	w.fire("a.txt")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event after drain: %+v", ev)
	default:
	}
}

type fakeHashLookup struct {
	hashes map[string]hashsum.Digest
}

func (f *fakeHashLookup) KnownHash(relPath string) (hashsum.Digest, bool) {
	d, found := f.hashes[relPath]

	return d, found
}

func TestWatcher_IsNoopChange_NoLookupReturnsFalse(t *testing.T) {
	w := NewWatcher(t.TempDir(), 64*1024, nil, testLogger(t))
	assert.False(t, w.isNoopChange("missing.txt"))
}

func TestWatcher_IsNoopChange_UnknownPathReturnsFalse(t *testing.T) {
	lookup := &fakeHashLookup{hashes: map[string]hashsum.Digest{}}
	w := NewWatcher(t.TempDir(), 64*1024, lookup, testLogger(t))
	assert.False(t, w.isNoopChange("never-seen.txt"))
}

func TestWatcher_IsNoopChange_MatchingDigestSuppresses(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fd, err := hashsum.HashFile(path, 64*1024)
	require.NoError(t, err)

	lookup := &fakeHashLookup{hashes: map[string]hashsum.Digest{"a.txt": fd.ContentHash}}
	w := NewWatcher(root, 64*1024, lookup, testLogger(t))

	assert.True(t, w.isNoopChange("a.txt"))
}

func TestWatcher_IsNoopChange_DifferingDigestDoesNotSuppress(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	lookup := &fakeHashLookup{hashes: map[string]hashsum.Digest{"a.txt": hashsum.Digest{0xff}}}
	w := NewWatcher(root, 64*1024, lookup, testLogger(t))

	assert.False(t, w.isNoopChange("a.txt"))
}

func TestNewWatcher_DefaultDebounce(t *testing.T) {
	w := NewWatcher("/tmp", 1024, nil, testLogger(t))
	require.Equal(t, defaultDebounce, w.debounce)
}
