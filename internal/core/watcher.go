package core

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

// EventKind enumerates the change kinds a Watcher can emit.
type EventKind int

const (
	EventAdd EventKind = iota
	EventChange
	EventUnlink
	EventAddDir
	EventUnlinkDir
	EventRename
)

func (k EventKind) String() string {
	switch k {
	case EventAdd:
		return "add"
	case EventChange:
		return "change"
	case EventUnlink:
		return "unlink"
	case EventAddDir:
		return "addDir"
	case EventUnlinkDir:
		return "unlinkDir"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// WatchEvent is one debounced, deduplicated filesystem change.
type WatchEvent struct {
	Kind         EventKind
	RelativePath string
	Timestamp    time.Time
	Size         int64 // -1 if unknown (e.g. unlink)
}

// FsWatcher abstracts filesystem event monitoring, satisfied by
// *fsnotify.Watcher. Tests inject a fake.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }

// defaultDebounce is the per-path debounce window: the last observation
// within the window wins.
const defaultDebounce = 300 * time.Millisecond

// HashLookup returns the last known content hash for a relative path, used
// to drop a debounced "change" whose content turns out unchanged. Satisfied
// by SnapshotStore.
type HashLookup interface {
	KnownHash(relPath string) (hashsum.Digest, bool)
}

// Watcher emits a debounced, deduplicated sequence of WatchEvents for one
// folder root, backed by native filesystem notifications. A recursive walk
// registers the directories present when Run starts; directories created
// later are not added to the watch.
type Watcher struct {
	root     string
	lookup   HashLookup
	logger   *slog.Logger
	debounce time.Duration
	blockSize int

	newFsWatcher func() (FsWatcher, error)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]WatchEvent
	out     chan WatchEvent
	closed  bool
}

// NewWatcher constructs a Watcher rooted at root. blockSize must match the
// folder's configured block size, used when recomputing a hash to suppress
// a no-op change event.
func NewWatcher(root string, blockSize int, lookup HashLookup, logger *slog.Logger) *Watcher {
	return &Watcher{
		root:      root,
		lookup:    lookup,
		logger:    logger,
		debounce:  defaultDebounce,
		blockSize: blockSize,
		newFsWatcher: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWrapper{w: w}, nil
		},
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]WatchEvent),
		out:     make(chan WatchEvent, 256),
	}
}

// Events returns the channel of debounced events. Valid for the lifetime of
// one Run call.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.out
}

// Run registers the watch recursively under root and blocks, dispatching
// debounced events until ctx is cancelled. Closing drains in-flight debounce
// timers before returning so no event is emitted after Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := w.newFsWatcher()
	if err != nil {
		return NewSyncError(KindIO, "creating filesystem watcher", err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return NewSyncError(KindIO, "registering watch paths", err)
	}

	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			w.handleRaw(ev)
		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) addRecursive(fw FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return fw.Add(path)
		}

		return nil
	})
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		w.logger.Warn("event outside root", slog.String("path", ev.Name))

		return
	}

	kind := classifyOp(ev.Op)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.pending[relPath] = WatchEvent{Kind: kind, RelativePath: relPath, Timestamp: time.Now(), Size: -1}

	if t, ok := w.timers[relPath]; ok {
		t.Stop()
	}

	w.timers[relPath] = time.AfterFunc(w.debounce, func() { w.fire(relPath) })
}

func classifyOp(op fsnotify.Op) EventKind {
	switch {
	case op&fsnotify.Create != 0:
		return EventAdd
	case op&fsnotify.Remove != 0:
		return EventUnlink
	case op&fsnotify.Rename != 0:
		return EventRename
	default:
		return EventChange
	}
}

func (w *Watcher) fire(relPath string) {
	w.mu.Lock()
	ev, ok := w.pending[relPath]
	delete(w.pending, relPath)
	delete(w.timers, relPath)
	closed := w.closed
	w.mu.Unlock()

	if !ok || closed {
		return
	}

	if ev.Kind == EventChange && w.isNoopChange(relPath) {
		return
	}

	select {
	case w.out <- ev:
	default:
		w.logger.Warn("watcher event channel full, dropping", slog.String("path", relPath))
	}
}

// isNoopChange reports whether a debounced "change" should be suppressed
// because the recomputed content hash equals the stored one.
func (w *Watcher) isNoopChange(relPath string) bool {
	if w.lookup == nil {
		return false
	}

	prior, ok := w.lookup.KnownHash(relPath)
	if !ok {
		return false
	}

	fd, err := hashsum.HashFile(filepath.Join(w.root, relPath), w.blockSize)
	if err != nil {
		return false
	}

	return fd.ContentHash == prior
}

func (w *Watcher) drain() {
	w.mu.Lock()
	w.closed = true

	for _, t := range w.timers {
		t.Stop()
	}

	w.timers = make(map[string]*time.Timer)
	w.pending = make(map[string]WatchEvent)
	w.mu.Unlock()
}
