package core

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

const (
	sqlUpsertSnapshot = `INSERT INTO snapshot_entries
		(folder_id, rel_path, content_hash, size, mtime_unix_nano, is_dir, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, rel_path) DO UPDATE SET
		 content_hash = excluded.content_hash,
		 size = excluded.size,
		 mtime_unix_nano = excluded.mtime_unix_nano,
		 is_dir = excluded.is_dir,
		 updated_at = excluded.updated_at`

	sqlDeleteSnapshot = `DELETE FROM snapshot_entries WHERE folder_id = ? AND rel_path = ?`

	sqlListSnapshot = `SELECT rel_path, content_hash, size, mtime_unix_nano, is_dir
		FROM snapshot_entries WHERE folder_id = ?`
)

// EntryKind classifies what a SnapshotEntry's path names on disk.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// SnapshotEntry is the store's belief about one relative path inside one
// folder.
type SnapshotEntry struct {
	RelativePath string
	Size         int64
	ContentHash  hashsum.Digest
	Blocks       []hashsum.Digest
	Mtime        time.Time
	Kind         EntryKind
	IsIgnored    bool
}

// CompareResult classifies a candidate entry against the store's belief.
type CompareResult int

const (
	CompareUnchanged CompareResult = iota
	CompareNew
	CompareModified
)

func (c CompareResult) String() string {
	switch c {
	case CompareNew:
		return "new"
	case CompareModified:
		return "modified"
	default:
		return "unchanged"
	}
}

const defaultMaxEntriesPerFolder = 1_000_000

// folderSnapshot is one folder's in-memory authoritative map, guarded by its
// own lock so that a writer on one folder never blocks a reader on another.
type folderSnapshot struct {
	mu      sync.RWMutex
	entries map[string]*SnapshotEntry
}

// SnapshotStore is the per-folder authoritative map of relative path to
// {size, hash, mtime}. It is reconstructable from a full filesystem scan, so
// the SQLite-backed persistence below is a warm cache, not a source of
// truth: a corrupt or missing database degrades to an empty in-memory map
// that Reconcile repopulates from the next scan.
type SnapshotStore struct {
	db     *sql.DB
	logger *slog.Logger

	maxEntriesPerFolder int

	mu      sync.Mutex
	folders map[string]*folderSnapshot
}

// NewSnapshotStore constructs a SnapshotStore over an already-migrated
// database. Pass a nil db to run purely in memory (used by tests).
func NewSnapshotStore(db *sql.DB, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:                  db,
		logger:              logger,
		maxEntriesPerFolder: defaultMaxEntriesPerFolder,
		folders:             make(map[string]*folderSnapshot),
	}
}

// normalizeRelPath applies the relativePath invariant: Unicode NFC form,
// forward-slash separators, no leading slash.
func normalizeRelPath(relPath string) string {
	clean := strings.ReplaceAll(relPath, `\`, "/")
	clean = strings.TrimPrefix(clean, "/")

	return norm.NFC.String(clean)
}

func (s *SnapshotStore) folder(folderID string) *folderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[folderID]
	if !ok {
		f = &folderSnapshot{entries: make(map[string]*SnapshotEntry)}
		s.folders[folderID] = f
	}

	return f
}

// Get returns the stored entry for relPath, if any.
func (s *SnapshotStore) Get(folderID, relPath string) (SnapshotEntry, bool) {
	relPath = normalizeRelPath(relPath)
	f := s.folder(folderID)

	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.entries[relPath]
	if !ok {
		return SnapshotEntry{}, false
	}

	return *e, true
}

// KnownHash implements HashLookup for the Watcher's duplicate-change
// suppression, scoped to one folder via ForFolder.
func (s *SnapshotStore) KnownHash(folderID, relPath string) (hashsum.Digest, bool) {
	e, ok := s.Get(folderID, relPath)
	if !ok {
		return hashsum.Digest{}, false
	}

	return e.ContentHash, true
}

// FolderHashLookup adapts one folder's view of a SnapshotStore to the
// HashLookup interface the Watcher consumes.
type FolderHashLookup struct {
	store    *SnapshotStore
	folderID string
}

// ForFolder returns a HashLookup scoped to one folder.
func (s *SnapshotStore) ForFolder(folderID string) FolderHashLookup {
	return FolderHashLookup{store: s, folderID: folderID}
}

func (v FolderHashLookup) KnownHash(relPath string) (hashsum.Digest, bool) {
	return v.store.KnownHash(v.folderID, relPath)
}

// Put records e as the current belief for folderID, persisting it and
// evicting the oldest-by-mtime entry if the folder is now over capacity.
func (s *SnapshotStore) Put(ctx context.Context, folderID string, e SnapshotEntry) error {
	e.RelativePath = normalizeRelPath(e.RelativePath)
	f := s.folder(folderID)

	f.mu.Lock()
	f.entries[e.RelativePath] = &e
	over := len(f.entries) > s.maxEntriesPerFolder
	f.mu.Unlock()

	if err := s.persistPut(ctx, folderID, e); err != nil {
		return err
	}

	if over {
		s.evictOldest(f)
	}

	return nil
}

// evictOldest drops the oldest-by-mtime entry from the in-memory map. It
// remains recoverable from the database (or from the next full scan), so
// this only relieves memory pressure, never data loss.
func (s *SnapshotStore) evictOldest(f *folderSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var oldestPath string

	var oldestMtime time.Time

	first := true

	for path, e := range f.entries {
		if first || e.Mtime.Before(oldestMtime) {
			oldestPath = path
			oldestMtime = e.Mtime
			first = false
		}
	}

	if !first {
		delete(f.entries, oldestPath)
	}
}

// Remove deletes the stored entry for relPath.
func (s *SnapshotStore) Remove(ctx context.Context, folderID, relPath string) error {
	relPath = normalizeRelPath(relPath)
	f := s.folder(folderID)

	f.mu.Lock()
	delete(f.entries, relPath)
	f.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, sqlDeleteSnapshot, folderID, relPath); err != nil {
		return NewSyncError(KindIO, "deleting snapshot entry "+relPath, err)
	}

	return nil
}

// List returns every entry currently believed for folderID, in no
// particular order.
func (s *SnapshotStore) List(folderID string) []SnapshotEntry {
	f := s.folder(folderID)

	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]SnapshotEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *e)
	}

	return out
}

// Compare classifies candidate against the stored belief for its path.
func (s *SnapshotStore) Compare(folderID string, candidate SnapshotEntry) CompareResult {
	existing, ok := s.Get(folderID, candidate.RelativePath)
	if !ok {
		return CompareNew
	}

	if existing.Size != candidate.Size ||
		existing.ContentHash != candidate.ContentHash ||
		!existing.Mtime.Equal(candidate.Mtime) {
		return CompareModified
	}

	return CompareUnchanged
}

// Reconcile folds a fresh full-scan result into folderID's belief,
// returning the relative paths added and removed. Existing entries whose
// scanned content differs are overwritten in place (not reported as
// added/removed — callers compare via Compare beforehand for that).
func (s *SnapshotStore) Reconcile(ctx context.Context, folderID string, scanned []SnapshotEntry) (added, removed []string, err error) {
	seen := make(map[string]struct{}, len(scanned))

	for _, e := range scanned {
		e.RelativePath = normalizeRelPath(e.RelativePath)
		seen[e.RelativePath] = struct{}{}

		if _, ok := s.Get(folderID, e.RelativePath); !ok {
			added = append(added, e.RelativePath)
		}

		if putErr := s.Put(ctx, folderID, e); putErr != nil {
			return nil, nil, putErr
		}
	}

	for _, e := range s.List(folderID) {
		if _, ok := seen[e.RelativePath]; !ok {
			removed = append(removed, e.RelativePath)

			if rmErr := s.Remove(ctx, folderID, e.RelativePath); rmErr != nil {
				return nil, nil, rmErr
			}
		}
	}

	return added, removed, nil
}

// LoadFolder populates the in-memory map for folderID from the database,
// for use at startup before the first scan completes. A missing database
// is not an error: the folder starts empty and Reconcile repopulates it.
func (s *SnapshotStore) LoadFolder(ctx context.Context, folderID string) error {
	if s.db == nil {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, sqlListSnapshot, folderID)
	if err != nil {
		return NewSyncError(KindIO, "loading snapshot for folder "+folderID, err)
	}
	defer rows.Close()

	f := s.folder(folderID)

	f.mu.Lock()
	defer f.mu.Unlock()

	for rows.Next() {
		var (
			relPath     string
			contentHash string
			size        int64
			mtimeNano   int64
			isDir       bool
		)

		if err := rows.Scan(&relPath, &contentHash, &size, &mtimeNano, &isDir); err != nil {
			return NewSyncError(KindIO, "scanning snapshot row", err)
		}

		digest, err := parseDigestHex(contentHash)
		if err != nil {
			return err
		}

		kind := KindFile
		if isDir {
			kind = KindDirectory
		}

		f.entries[relPath] = &SnapshotEntry{
			RelativePath: relPath,
			Size:         size,
			ContentHash:  digest,
			Mtime:        time.Unix(0, mtimeNano),
			Kind:         kind,
		}
	}

	if err := rows.Err(); err != nil {
		return NewSyncError(KindIO, "iterating snapshot rows", err)
	}

	return nil
}

func (s *SnapshotStore) persistPut(ctx context.Context, folderID string, e SnapshotEntry) error {
	if s.db == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, sqlUpsertSnapshot,
		folderID, e.RelativePath, e.ContentHash.String(), e.Size,
		e.Mtime.UnixNano(), e.Kind == KindDirectory, time.Now().UnixNano(),
	)
	if err != nil {
		return NewSyncError(KindIO, "persisting snapshot entry "+e.RelativePath, err)
	}

	return nil
}

func parseDigestHex(s string) (hashsum.Digest, error) {
	var d hashsum.Digest

	if len(s) != hashsum.DigestSize*2 {
		return d, NewSyncError(KindIntegrity, fmt.Sprintf("malformed content hash %q", s), nil)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, NewSyncError(KindIntegrity, "parsing content hash", err)
	}

	copy(d[:], decoded)

	return d, nil
}
