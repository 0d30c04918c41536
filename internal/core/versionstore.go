package core

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

const (
	sqlInsertVersion = `INSERT INTO versions
		(id, folder_id, rel_path, content_hash, size, device_id, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`

	sqlFindDedupVersion = `SELECT id, folder_id, rel_path, content_hash, size, device_id, created_at
		FROM versions WHERE folder_id = ? AND rel_path = ? AND content_hash = ?`

	sqlListVersions = `SELECT id, folder_id, rel_path, content_hash, size, device_id, created_at
		FROM versions WHERE folder_id = ? AND rel_path = ? ORDER BY created_at DESC`

	sqlGetVersion = `SELECT id, folder_id, rel_path, content_hash, size, device_id, created_at
		FROM versions WHERE id = ?`

	sqlDeleteVersion = `DELETE FROM versions WHERE id = ?`

	sqlUpsertBlobRef = `INSERT INTO version_blobs (content_hash, size, ref_count, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(content_hash) DO UPDATE SET ref_count = ref_count + 1`

	sqlDecrementBlobRef = `UPDATE version_blobs SET ref_count = ref_count - 1 WHERE content_hash = ?`

	sqlOrphanedBlobs = `SELECT content_hash FROM version_blobs WHERE ref_count <= 0`

	sqlDeleteBlobRow = `DELETE FROM version_blobs WHERE content_hash = ?`

	sqlVersionStats = `SELECT COUNT(*), COALESCE(SUM(size), 0), MIN(created_at), MAX(created_at)
		FROM versions WHERE deleted = 0`

	sqlOldestNonCurrentVersions = `SELECT v.id, v.content_hash, v.size FROM versions v
		WHERE v.id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY folder_id, rel_path ORDER BY created_at DESC) rn
				FROM versions
			) WHERE rn = 1
		)
		ORDER BY v.created_at ASC LIMIT ?`
)

// VersionRecord is one immutable past content of a file.
type VersionRecord struct {
	VersionID        string
	FolderID         string
	RelativePath     string
	ContentHash      hashsum.Digest
	Size             int64
	CreatedAt        time.Time
	StoredPath       string
	OriginDeviceID   string
	OriginDeviceName string
}

// RetentionKind tags the shape of a RetentionPolicy.
type RetentionKind int

const (
	RetentionNone RetentionKind = iota
	RetentionSimple
	RetentionTimeBased
)

// RetentionPolicy is applied after each new version is recorded.
type RetentionPolicy struct {
	Kind         RetentionKind
	KeepVersions int           // for RetentionSimple
	KeepDuration time.Duration // for RetentionTimeBased
}

// VersionStoreStats summarizes the whole store.
type VersionStoreStats struct {
	TotalVersions int
	TotalBytes    int64
	OldestAt      time.Time
	NewestAt      time.Time
}

const lowDiskSpaceFloor = 1 << 30 // 1 GiB
const lowDiskSweepFraction = 0.25
const defaultSweepInterval = time.Hour

// VersionStore is the content-addressed past-version store: blobs under
// <versionsDir>/<hash[0:2]>/<hash>, metadata indexed by versionId with
// secondary access by (folderId, relPath) and createdAt.
type VersionStore struct {
	db          *sql.DB
	versionsDir string
	logger      *slog.Logger

	diskFreeFunc func(path string) (uint64, error)
	nowFunc      func() time.Time
}

// NewVersionStore constructs a VersionStore rooted at versionsDir, backed by
// an already-migrated database shared with SnapshotStore.
func NewVersionStore(db *sql.DB, versionsDir string, logger *slog.Logger) *VersionStore {
	return &VersionStore{
		db:           db,
		versionsDir:  versionsDir,
		logger:       logger,
		diskFreeFunc: getDiskSpace,
		nowFunc:      time.Now,
	}
}

func (vs *VersionStore) blobPath(hash hashsum.Digest) string {
	hex := hash.String()

	return filepath.Join(vs.versionsDir, hex[:2], hex)
}

// Snapshot records bytes as a new version of (folderId, relPath), deduping
// on (folderId, relPath, contentHash): a repeat snapshot of identical
// content returns the existing record without writing a second blob.
func (vs *VersionStore) Snapshot(
	ctx context.Context, folderID, relPath string, data []byte, deviceID, deviceName string,
) (VersionRecord, error) {
	fd, err := hashsum.HashReader(bytes.NewReader(data), defaultSnapshotBlockSize)
	if err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "hashing snapshot content", err)
	}

	if existing, ok, err := vs.findDedup(ctx, folderID, relPath, fd.ContentHash); err != nil {
		return VersionRecord{}, err
	} else if ok {
		return existing, nil
	}

	if err := vs.writeBlob(fd.ContentHash, data); err != nil {
		return VersionRecord{}, err
	}

	rec := VersionRecord{
		VersionID:        uuid.NewString(),
		FolderID:         folderID,
		RelativePath:     relPath,
		ContentHash:      fd.ContentHash,
		Size:             int64(len(data)),
		CreatedAt:        vs.nowFunc(),
		StoredPath:       vs.blobPath(fd.ContentHash),
		OriginDeviceID:   deviceID,
		OriginDeviceName: deviceName,
	}

	tx, err := vs.db.BeginTx(ctx, nil)
	if err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "beginning snapshot transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlInsertVersion,
		rec.VersionID, rec.FolderID, rec.RelativePath, rec.ContentHash.String(),
		rec.Size, rec.OriginDeviceID, rec.CreatedAt.UnixNano(),
	); err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "inserting version record", err)
	}

	if _, err := tx.ExecContext(ctx, sqlUpsertBlobRef, rec.ContentHash.String(), rec.Size, rec.CreatedAt.UnixNano()); err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "recording blob reference", err)
	}

	if err := tx.Commit(); err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "committing snapshot transaction", err)
	}

	return rec, nil
}

func (vs *VersionStore) findDedup(ctx context.Context, folderID, relPath string, hash hashsum.Digest) (VersionRecord, bool, error) {
	row := vs.db.QueryRowContext(ctx, sqlFindDedupVersion, folderID, relPath, hash.String())

	rec, err := scanVersionRow(row)
	if err == sql.ErrNoRows {
		return VersionRecord{}, false, nil
	}

	if err != nil {
		return VersionRecord{}, false, NewSyncError(KindIO, "checking version dedup", err)
	}

	rec.StoredPath = vs.blobPath(rec.ContentHash)

	return rec, true, nil
}

func (vs *VersionStore) writeBlob(hash hashsum.Digest, data []byte) error {
	path := vs.blobPath(hash)

	if _, err := os.Stat(path); err == nil {
		return nil // blob already present, ref counted separately
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewSyncError(KindIO, "creating blob shard directory", err)
	}

	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return NewSyncError(KindIO, "writing blob tempfile", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return NewSyncError(KindIO, "renaming blob into place", err)
	}

	return nil
}

// List returns every retained version of (folderId, relPath), newest first.
func (vs *VersionStore) List(ctx context.Context, folderID, relPath string) ([]VersionRecord, error) {
	rows, err := vs.db.QueryContext(ctx, sqlListVersions, folderID, relPath)
	if err != nil {
		return nil, NewSyncError(KindIO, "listing versions", err)
	}
	defer rows.Close()

	var out []VersionRecord

	for rows.Next() {
		rec, err := scanVersionRow(rows)
		if err != nil {
			return nil, NewSyncError(KindIO, "scanning version row", err)
		}

		rec.StoredPath = vs.blobPath(rec.ContentHash)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, NewSyncError(KindIO, "iterating version rows", err)
	}

	return out, nil
}

// Fetch reads the blob bytes for versionId.
func (vs *VersionStore) Fetch(ctx context.Context, versionID string) ([]byte, error) {
	rec, err := vs.get(ctx, versionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(vs.blobPath(rec.ContentHash))
	if err != nil {
		return nil, NewSyncError(KindIO, "reading version blob", err)
	}

	return data, nil
}

// Restore writes versionId's content atomically to targetPath.
func (vs *VersionStore) Restore(ctx context.Context, versionID, targetPath string) error {
	data, err := vs.Fetch(ctx, versionID)
	if err != nil {
		return err
	}

	tmpPath := targetPath + ".part-restore-" + versionID

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return NewSyncError(KindIO, "writing restore tempfile", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)

		return NewSyncError(KindIO, "renaming restored file into place", err)
	}

	return nil
}

func (vs *VersionStore) get(ctx context.Context, versionID string) (VersionRecord, error) {
	row := vs.db.QueryRowContext(ctx, sqlGetVersion, versionID)

	rec, err := scanVersionRow(row)
	if err == sql.ErrNoRows {
		return VersionRecord{}, NewSyncError(KindNotFound, "version "+versionID+" not found", nil)
	}

	if err != nil {
		return VersionRecord{}, NewSyncError(KindIO, "loading version record", err)
	}

	return rec, nil
}

// ApplyRetention enforces policy for (folderId, relPath): for simple{N} keep
// the N most recent (including the current version); for time-based{D} keep
// every record newer than now-D plus the current version; for none keep
// only the current version. The current version (most recent createdAt) is
// never deleted by this call.
func (vs *VersionStore) ApplyRetention(ctx context.Context, folderID, relPath string, policy RetentionPolicy) error {
	versions, err := vs.List(ctx, folderID, relPath)
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		return nil
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].CreatedAt.After(versions[j].CreatedAt) })

	keep := vs.selectKept(versions, policy)

	for _, v := range versions[keep:] {
		if err := vs.deleteVersion(ctx, v); err != nil {
			vs.logger.Warn("retention: failed to delete version, will retry next sweep",
				slog.String("version_id", v.VersionID), slog.String("error", err.Error()))
		}
	}

	return nil
}

func (vs *VersionStore) selectKept(versions []VersionRecord, policy RetentionPolicy) int {
	switch policy.Kind {
	case RetentionSimple:
		if policy.KeepVersions < 1 {
			return 1
		}

		if policy.KeepVersions > len(versions) {
			return len(versions)
		}

		return policy.KeepVersions
	case RetentionTimeBased:
		cutoff := vs.nowFunc().Add(-policy.KeepDuration)

		kept := 1 // the current version is always kept

		for _, v := range versions[1:] {
			if v.CreatedAt.Before(cutoff) {
				break
			}

			kept++
		}

		return kept
	default:
		return 1
	}
}

func (vs *VersionStore) deleteVersion(ctx context.Context, rec VersionRecord) error {
	tx, err := vs.db.BeginTx(ctx, nil)
	if err != nil {
		return NewSyncError(KindIO, "beginning version delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlDeleteVersion, rec.VersionID); err != nil {
		return NewSyncError(KindIO, "deleting version record", err)
	}

	if _, err := tx.ExecContext(ctx, sqlDecrementBlobRef, rec.ContentHash.String()); err != nil {
		return NewSyncError(KindIO, "decrementing blob reference", err)
	}

	if err := tx.Commit(); err != nil {
		return NewSyncError(KindIO, "committing version delete", err)
	}

	return nil
}

// SweepOrphanedBlobs deletes blob files whose ref_count has dropped to zero
// or below, and their bookkeeping rows. Failures to remove a file are
// logged and left for the next sweep, per the "failures don't fail the
// owning operation" rule.
func (vs *VersionStore) SweepOrphanedBlobs(ctx context.Context) error {
	rows, err := vs.db.QueryContext(ctx, sqlOrphanedBlobs)
	if err != nil {
		return NewSyncError(KindIO, "listing orphaned blobs", err)
	}

	var hashes []string

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()

			return NewSyncError(KindIO, "scanning orphaned blob row", err)
		}

		hashes = append(hashes, h)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return NewSyncError(KindIO, "iterating orphaned blob rows", err)
	}

	for _, h := range hashes {
		vs.removeBlobByHex(ctx, h)
	}

	return nil
}

func (vs *VersionStore) removeBlobByHex(ctx context.Context, hexHash string) {
	path := filepath.Join(vs.versionsDir, hexHash[:2], hexHash)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		vs.logger.Warn("sweep: failed to remove orphaned blob, retrying next sweep",
			slog.String("hash", hexHash), slog.String("error", err.Error()))

		return
	}

	if _, err := vs.db.ExecContext(ctx, sqlDeleteBlobRow, hexHash); err != nil {
		vs.logger.Warn("sweep: failed to clear orphaned blob row",
			slog.String("hash", hexHash), slog.String("error", err.Error()))
	}
}

// EvictLowDiskSpace deletes the oldest non-current versions across all
// files, as many as 25% of the total version count, when free space under
// versionsDir drops below 1 GiB.
func (vs *VersionStore) EvictLowDiskSpace(ctx context.Context) error {
	free, err := vs.diskFreeFunc(vs.versionsDir)
	if err != nil {
		return NewSyncError(KindIO, "checking disk space", err)
	}

	if free >= lowDiskSpaceFloor {
		return nil
	}

	var total int

	if err := vs.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions`).Scan(&total); err != nil {
		return NewSyncError(KindIO, "counting versions", err)
	}

	limit := int(float64(total) * lowDiskSweepFraction)
	if limit < 1 {
		return nil
	}

	rows, err := vs.db.QueryContext(ctx, sqlOldestNonCurrentVersions, limit)
	if err != nil {
		return NewSyncError(KindIO, "selecting eviction candidates", err)
	}

	type candidate struct {
		id   string
		hash string
	}

	var candidates []candidate

	for rows.Next() {
		var c candidate

		var size int64
		if err := rows.Scan(&c.id, &c.hash, &size); err != nil {
			rows.Close()

			return NewSyncError(KindIO, "scanning eviction candidate", err)
		}

		candidates = append(candidates, c)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return NewSyncError(KindIO, "iterating eviction candidates", err)
	}

	for _, c := range candidates {
		if _, err := vs.db.ExecContext(ctx, sqlDeleteVersion, c.id); err != nil {
			vs.logger.Warn("low disk space eviction: failed to delete version",
				slog.String("version_id", c.id), slog.String("error", err.Error()))

			continue
		}

		if _, err := vs.db.ExecContext(ctx, sqlDecrementBlobRef, c.hash); err != nil {
			vs.logger.Warn("low disk space eviction: failed to decrement blob ref",
				slog.String("hash", c.hash), slog.String("error", err.Error()))
		}
	}

	vs.logger.Info("low disk space eviction complete",
		slog.Uint64("free_bytes", free), slog.Int("evicted", len(candidates)))

	return vs.SweepOrphanedBlobs(ctx)
}

// SweepLoop runs periodic retention sweeps (orphan collection and low disk
// space eviction) until ctx is cancelled.
func (vs *VersionStore) SweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := vs.SweepOrphanedBlobs(ctx); err != nil {
				vs.logger.Warn("sweep: orphan collection failed", slog.String("error", err.Error()))
			}

			if err := vs.EvictLowDiskSpace(ctx); err != nil {
				vs.logger.Warn("sweep: low disk space eviction failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stats summarizes the whole store.
func (vs *VersionStore) Stats(ctx context.Context) (VersionStoreStats, error) {
	var (
		count          int
		totalBytes     int64
		oldestNanosPtr sql.NullInt64
		newestNanosPtr sql.NullInt64
	)

	err := vs.db.QueryRowContext(ctx, sqlVersionStats).Scan(&count, &totalBytes, &oldestNanosPtr, &newestNanosPtr)
	if err != nil {
		return VersionStoreStats{}, NewSyncError(KindIO, "computing version store stats", err)
	}

	stats := VersionStoreStats{TotalVersions: count, TotalBytes: totalBytes}

	if oldestNanosPtr.Valid {
		stats.OldestAt = time.Unix(0, oldestNanosPtr.Int64)
	}

	if newestNanosPtr.Valid {
		stats.NewestAt = time.Unix(0, newestNanosPtr.Int64)
	}

	return stats, nil
}

type versionScanner interface {
	Scan(dest ...any) error
}

func scanVersionRow(s versionScanner) (VersionRecord, error) {
	var (
		rec       VersionRecord
		hashHex   string
		createdAt int64
	)

	if err := s.Scan(&rec.VersionID, &rec.FolderID, &rec.RelativePath, &hashHex, &rec.Size, &rec.OriginDeviceID, &createdAt); err != nil {
		return VersionRecord{}, err
	}

	digest, err := parseDigestHex(hashHex)
	if err != nil {
		return VersionRecord{}, err
	}

	rec.ContentHash = digest
	rec.CreatedAt = time.Unix(0, createdAt)

	return rec, nil
}

const defaultSnapshotBlockSize = 64 * 1024
