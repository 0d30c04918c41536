package core

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

const (
	sqlUpsertTombstone = `INSERT INTO tombstones (folder_id, rel_path, peer_id, deleted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(folder_id, rel_path, peer_id) DO UPDATE SET deleted_at = excluded.deleted_at`

	sqlGetTombstone = `SELECT deleted_at FROM tombstones
		WHERE folder_id = ? AND rel_path = ? AND peer_id = ?`

	sqlPruneTombstones = `DELETE FROM tombstones WHERE deleted_at < ?`
)

// tombstoneRetention is how long a deletion is remembered before it's
// pruned, per the 30-day retention window.
const tombstoneRetention = 30 * 24 * time.Hour

// TombstoneStore remembers, per (folderId, relPath, peerId), the last time
// that peer told us it deleted a path — the "modification wins over an
// older tombstone" rule in plan derivation needs this to distinguish "the
// peer deleted this after I last touched it" from "the peer never saw my
// edit and still has the old tombstone."
type TombstoneStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTombstoneStore constructs a TombstoneStore over an already-migrated
// database. Pass a nil db to run purely in memory — writes then silently
// no-op and Get always reports no tombstone, matching an empty log.
func NewTombstoneStore(db *sql.DB, logger *slog.Logger) *TombstoneStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &TombstoneStore{db: db, logger: logger, nowFunc: time.Now}
}

// Record notes that peerID reported relPath deleted in folderID as of now.
func (ts *TombstoneStore) Record(ctx context.Context, folderID, relPath, peerID string) error {
	if ts.db == nil {
		return nil
	}

	_, err := ts.db.ExecContext(ctx, sqlUpsertTombstone, folderID, relPath, peerID, ts.nowFunc().UnixNano())
	if err != nil {
		return NewSyncError(KindIO, "recording tombstone", err)
	}

	return nil
}

// Get reports the deletion time peerID last reported for relPath in
// folderID, if any.
func (ts *TombstoneStore) Get(folderID, relPath, peerID string) (time.Time, bool) {
	if ts.db == nil {
		return time.Time{}, false
	}

	var deletedAtNano int64

	err := ts.db.QueryRow(sqlGetTombstone, folderID, relPath, peerID).Scan(&deletedAtNano)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(0, deletedAtNano), true
}

// Prune removes tombstones older than tombstoneRetention.
func (ts *TombstoneStore) Prune(ctx context.Context) error {
	if ts.db == nil {
		return nil
	}

	cutoff := ts.nowFunc().Add(-tombstoneRetention).UnixNano()

	res, err := ts.db.ExecContext(ctx, sqlPruneTombstones, cutoff)
	if err != nil {
		return NewSyncError(KindIO, "pruning tombstones", err)
	}

	if n, rowsErr := res.RowsAffected(); rowsErr == nil && n > 0 {
		ts.logger.Info("pruned expired tombstones", slog.Int64("count", n))
	}

	return nil
}
