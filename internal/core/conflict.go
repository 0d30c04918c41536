package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

// clearWinnerThreshold is the maximum |mtime_local - mtime_remote| under
// which two divergent content hashes still produce a recorded Conflict
// rather than letting the newer mtime win outright.
const clearWinnerThreshold = 10_000 * time.Millisecond

// maxHistoryEntries bounds ConflictResolver's retained resolution history.
const maxHistoryEntries = 100

// ResolutionKind is the chosen outcome for a Conflict.
type ResolutionKind int

const (
	ResolutionNone ResolutionKind = iota
	ResolutionLocal
	ResolutionRemote
	ResolutionBoth
	ResolutionManual
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionLocal:
		return "local"
	case ResolutionRemote:
		return "remote"
	case ResolutionBoth:
		return "both"
	case ResolutionManual:
		return "manual"
	default:
		return "none"
	}
}

// FileVersion is the half of a Conflict belonging to one side (local or
// remote): just enough to detect and later resolve divergence.
type FileVersion struct {
	ContentHash hashsum.Digest
	Mtime       time.Time
	DeviceName  string // origin device, used to name "both" conflict copies
}

// Conflict is a divergent (folderId, relativePath) that the clear-winner
// rule couldn't resolve on its own. Created only by the orchestrator, via
// ConflictResolver.Detect.
type Conflict struct {
	ConflictID   string
	FolderID     string
	RelativePath string
	LocalVersion FileVersion
	RemoteVersion FileVersion
	DetectedAt   time.Time
	Resolved     bool
	Resolution   ResolutionKind
	ResolvedAt   time.Time
}

// Detection is the outcome of comparing one path's local and remote
// versions. Exactly one of Match, ClearWinner, or Conflict != nil holds.
type Detection struct {
	Match              bool // hashes equal, nothing to do
	ClearWinner        bool // one mtime decisively wins, no Conflict recorded
	ClearWinnerIsLocal bool // valid only if ClearWinner
	Conflict           *Conflict
}

// ConflictResolver detects divergence between a folder's local belief and
// a peer's reported state, and carries out the four resolution actions.
// It is stateless with respect to the filesystem between calls except for
// the bounded in-memory history log; persistence of Conflict records
// themselves is the orchestrator's job.
type ConflictResolver struct {
	syncRoot string
	logger   *slog.Logger

	history []Conflict

	nowFunc func() time.Time
}

// NewConflictResolver constructs a ConflictResolver rooted at syncRoot,
// the folder's absolute local path.
func NewConflictResolver(syncRoot string, logger *slog.Logger) *ConflictResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConflictResolver{
		syncRoot: syncRoot,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Detect compares local and remote versions of one path per §4.7: matching
// hashes mean nothing to do; a large enough mtime gap lets the newer side
// win without recording anything; otherwise a Conflict is created (and
// appended to history once later resolved).
func (r *ConflictResolver) Detect(folderID, relPath string, local, remote FileVersion) Detection {
	if local.ContentHash == remote.ContentHash {
		return Detection{Match: true}
	}

	delta := local.Mtime.Sub(remote.Mtime)
	if delta < 0 {
		delta = -delta
	}

	if delta > clearWinnerThreshold {
		return Detection{ClearWinner: true, ClearWinnerIsLocal: local.Mtime.After(remote.Mtime)}
	}

	return Detection{
		Conflict: &Conflict{
			ConflictID:    uuid.NewString(),
			FolderID:      folderID,
			RelativePath:  relPath,
			LocalVersion:  local,
			RemoteVersion: remote,
			DetectedAt:    r.nowFunc(),
		},
	}
}

// ResolveOutcome reports what Resolve did to the filesystem so the caller
// can drive a targeted re-sync of the affected path.
type ResolveOutcome struct {
	// RemoteContentPath is where the remote bytes belong for local,
	// remote and both (the backup, the original path, or the renamed
	// remote copy); Done false there means they are not written yet. For
	// "manual" it is the resolved<ext> file the user saves in the
	// workspace (remote bytes go to remote-copy<ext> beside it), and Done
	// is always false.
	RemoteContentPath string
	Done              bool
}

// Resolve carries out one of the four resolution actions for c. remoteData
// is the already-fetched remote content, or nil when the action doesn't
// need it yet (manual creates the placeholder first and the download
// completes it later, so remoteData may be nil there).
func (r *ConflictResolver) Resolve(c *Conflict, resolution ResolutionKind, localPath string, remoteData []byte) (ResolveOutcome, error) {
	if c.Resolved {
		return ResolveOutcome{}, NewSyncError(KindConflict, "conflict "+c.ConflictID+" already resolved", nil)
	}

	var (
		outcome ResolveOutcome
		err     error
	)

	switch resolution {
	case ResolutionLocal:
		outcome, err = r.resolveKeepLocal(c, localPath, remoteData)
	case ResolutionRemote:
		outcome, err = r.resolveKeepRemote(c, localPath, remoteData)
	case ResolutionBoth:
		outcome, err = r.resolveKeepBoth(c, localPath, remoteData)
	case ResolutionManual:
		outcome, err = r.resolveManual(c, localPath, remoteData)
	default:
		return ResolveOutcome{}, NewSyncError(KindConfig, fmt.Sprintf("unknown conflict resolution %q", resolution), nil)
	}

	if err != nil {
		return ResolveOutcome{}, err
	}

	c.Resolved = true
	c.Resolution = resolution
	c.ResolvedAt = r.nowFunc()

	r.recordHistory(*c)

	return outcome, nil
}

// resolveKeepLocal keeps localPath untouched and stashes the remote
// content as a backup under the conflict workspace.
func (r *ConflictResolver) resolveKeepLocal(c *Conflict, localPath string, remoteData []byte) (ResolveOutcome, error) {
	workspace, err := r.ensureWorkspace(c, localPath)
	if err != nil {
		return ResolveOutcome{}, err
	}

	backupPath := filepath.Join(workspace, "remote-backup"+filepath.Ext(localPath))

	if remoteData != nil {
		if err := writeFileAtomic(backupPath, remoteData); err != nil {
			return ResolveOutcome{}, err
		}
	}

	return ResolveOutcome{RemoteContentPath: backupPath, Done: remoteData != nil}, nil
}

// resolveKeepRemote stashes the local file as a backup and replaces it
// with the remote content.
func (r *ConflictResolver) resolveKeepRemote(c *Conflict, localPath string, remoteData []byte) (ResolveOutcome, error) {
	workspace, err := r.ensureWorkspace(c, localPath)
	if err != nil {
		return ResolveOutcome{}, err
	}

	backupPath := filepath.Join(workspace, "local-backup"+filepath.Ext(localPath))

	if err := os.Rename(localPath, backupPath); err != nil && !os.IsNotExist(err) {
		return ResolveOutcome{}, NewSyncError(KindIO, "backing up local file before remote wins", err)
	}

	if remoteData == nil {
		return ResolveOutcome{RemoteContentPath: localPath}, nil
	}

	if err := writeFileAtomic(localPath, remoteData); err != nil {
		return ResolveOutcome{}, err
	}

	return ResolveOutcome{RemoteContentPath: localPath, Done: true}, nil
}

// resolveKeepBoth renames the local file to <base>.~conflict~local~<ts><ext>
// and writes the remote content to <base>.~conflict~<remoteDeviceName>~<ts><ext>.
// localPath itself is removed, per the spec's documented resolution of its
// own open question.
func (r *ConflictResolver) resolveKeepBoth(c *Conflict, localPath string, remoteData []byte) (ResolveOutcome, error) {
	stem, ext := splitStemExt(localPath)
	ts := r.nowFunc().UTC().Format("20060102-150405")

	localCopy := fmt.Sprintf("%s.~conflict~local~%s%s", stem, ts, ext)

	remoteName := c.RemoteVersion.DeviceName
	if remoteName == "" {
		remoteName = "remote"
	}

	remoteCopy := fmt.Sprintf("%s.~conflict~%s~%s%s", stem, remoteName, ts, ext)

	if err := os.Rename(localPath, localCopy); err != nil {
		return ResolveOutcome{}, NewSyncError(KindIO, "renaming local file for keep-both conflict", err)
	}

	if remoteData == nil {
		return ResolveOutcome{RemoteContentPath: remoteCopy}, nil
	}

	if err := writeFileAtomic(remoteCopy, remoteData); err != nil {
		return ResolveOutcome{}, err
	}

	return ResolveOutcome{RemoteContentPath: remoteCopy, Done: true}, nil
}

// resolveManual creates a workspace directory with the local copy, a
// README describing the conflict, and a placeholder for the remote
// download. The user is expected to produce "resolved<ext>" in that
// directory once they've reconciled the two sides by hand.
func (r *ConflictResolver) resolveManual(c *Conflict, localPath string, remoteData []byte) (ResolveOutcome, error) {
	workspace, err := r.ensureWorkspace(c, localPath)
	if err != nil {
		return ResolveOutcome{}, err
	}

	_, ext := splitStemExt(localPath)

	readme := fmt.Sprintf(
		"Conflict %s\nFolder: %s\nPath: %s\nDetected: %s\n\nLocal hash:  %s (mtime %s)\nRemote hash: %s (mtime %s)\n\nReconcile local-copy%s and remote-copy%s by hand, then save your\nresult as resolved%s in this directory.\n",
		c.ConflictID, c.FolderID, c.RelativePath, c.DetectedAt.UTC().Format(time.RFC3339),
		c.LocalVersion.ContentHash.String(), c.LocalVersion.Mtime.UTC().Format(time.RFC3339),
		c.RemoteVersion.ContentHash.String(), c.RemoteVersion.Mtime.UTC().Format(time.RFC3339),
		ext, ext, ext,
	)

	if err := os.WriteFile(filepath.Join(workspace, "README.txt"), []byte(readme), 0o644); err != nil {
		return ResolveOutcome{}, NewSyncError(KindIO, "writing manual conflict README", err)
	}

	localCopyPath := filepath.Join(workspace, "local-copy"+ext)
	if err := copyFile(localPath, localCopyPath); err != nil {
		return ResolveOutcome{}, err
	}

	remoteCopyPath := filepath.Join(workspace, "remote-copy"+ext)

	if remoteData != nil {
		if err := writeFileAtomic(remoteCopyPath, remoteData); err != nil {
			return ResolveOutcome{}, err
		}
	} else {
		if err := os.WriteFile(remoteCopyPath+".pending", nil, 0o644); err != nil {
			return ResolveOutcome{}, NewSyncError(KindIO, "writing manual conflict placeholder", err)
		}
	}

	return ResolveOutcome{RemoteContentPath: filepath.Join(workspace, "resolved"+ext)}, nil
}

// ensureWorkspace creates (and returns) the conflict workspace directory
// for c, named after localPath's stem so it sorts next to the file it
// covers.
func (r *ConflictResolver) ensureWorkspace(c *Conflict, localPath string) (string, error) {
	stem, _ := splitStemExt(localPath)
	dir := stem + ".conflict-" + c.ConflictID

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewSyncError(KindIO, "creating conflict workspace", err)
	}

	return dir, nil
}

// History returns the bounded resolution history, oldest first.
func (r *ConflictResolver) History() []Conflict {
	out := make([]Conflict, len(r.history))
	copy(out, r.history)

	return out
}

func (r *ConflictResolver) recordHistory(c Conflict) {
	r.history = append(r.history, c)

	if len(r.history) > maxHistoryEntries {
		r.history = r.history[len(r.history)-maxHistoryEntries:]
	}

	r.logger.Info("conflict resolved",
		slog.String("conflict_id", c.ConflictID),
		slog.String("folder_id", c.FolderID),
		slog.String("path", c.RelativePath),
		slog.String("resolution", c.Resolution.String()),
	)
}

// splitStemExt splits path into a (stem, ext) pair, treating dotfiles with
// no embedded extension (".bashrc") as having an empty extension so a
// conflict suffix is appended after the full filename rather than before
// the leading dot.
func splitStemExt(path string) (stem, ext string) {
	base := filepath.Base(path)
	dir := path[:len(path)-len(base)]

	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return dir + base, ""
	}

	ext = filepath.Ext(base)
	stem = dir + base[:len(base)-len(ext)]

	return stem, ext
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return NewSyncError(KindIO, "writing "+path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return NewSyncError(KindIO, "renaming into place "+path, err)
	}

	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return NewSyncError(KindIO, "reading "+src, err)
	}

	return writeFileAtomic(dst, data)
}
