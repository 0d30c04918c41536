package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

func digestOf(t *testing.T, s string) hashsum.Digest {
	t.Helper()

	fd, err := hashsum.HashReader(strings.NewReader(s), 4)
	require.NoError(t, err)

	return fd.ContentHash
}

func TestConflictResolver_DetectHashMatch(t *testing.T) {
	r := NewConflictResolver(t.TempDir(), testLogger(t))

	h := digestOf(t, "same")
	now := time.Now()

	d := r.Detect("f1", "a.txt", FileVersion{ContentHash: h, Mtime: now}, FileVersion{ContentHash: h, Mtime: now.Add(time.Hour)})
	assert.True(t, d.Match)
	assert.Nil(t, d.Conflict)
}

func TestConflictResolver_DetectClearWinner(t *testing.T) {
	r := NewConflictResolver(t.TempDir(), testLogger(t))

	base := time.Now()
	local := FileVersion{ContentHash: digestOf(t, "local"), Mtime: base.Add(time.Minute)}
	remote := FileVersion{ContentHash: digestOf(t, "remote"), Mtime: base}

	d := r.Detect("f1", "a.txt", local, remote)
	require.True(t, d.ClearWinner)
	assert.True(t, d.ClearWinnerIsLocal)
	assert.Nil(t, d.Conflict)
}

func TestConflictResolver_DetectGenuineConflict(t *testing.T) {
	r := NewConflictResolver(t.TempDir(), testLogger(t))

	base := time.Now()
	local := FileVersion{ContentHash: digestOf(t, "local"), Mtime: base.Add(3 * time.Second)}
	remote := FileVersion{ContentHash: digestOf(t, "remote"), Mtime: base}

	d := r.Detect("f1", "a.txt", local, remote)
	require.False(t, d.Match)
	require.False(t, d.ClearWinner)
	require.NotNil(t, d.Conflict)
	assert.Equal(t, "f1", d.Conflict.FolderID)
	assert.Equal(t, "a.txt", d.Conflict.RelativePath)
	assert.NotEmpty(t, d.Conflict.ConflictID)
}

func newConflict(t *testing.T, r *ConflictResolver) *Conflict {
	t.Helper()

	d := r.Detect("f1", "a.txt",
		FileVersion{ContentHash: digestOf(t, "local"), Mtime: time.Now().Add(3 * time.Second)},
		FileVersion{ContentHash: digestOf(t, "remote"), Mtime: time.Now(), DeviceName: "phone"},
	)
	require.NotNil(t, d.Conflict)

	return d.Conflict
}

func TestConflictResolver_ResolveLocal(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))
	c := newConflict(t, r)

	localPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

	outcome, err := r.Resolve(c, ResolutionLocal, localPath, []byte("remote content"))
	require.NoError(t, err)
	assert.True(t, outcome.Done)
	assert.True(t, c.Resolved)
	assert.Equal(t, ResolutionLocal, c.Resolution)

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "local content", string(data))

	backup, err := os.ReadFile(outcome.RemoteContentPath)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(backup))
}

func TestConflictResolver_ResolveRemote(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))
	c := newConflict(t, r)

	localPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

	outcome, err := r.Resolve(c, ResolutionRemote, localPath, []byte("remote content"))
	require.NoError(t, err)
	assert.True(t, outcome.Done)

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(data))
}

func TestConflictResolver_ResolveBothRenamesBothSides(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))
	c := newConflict(t, r)

	localPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

	outcome, err := r.Resolve(c, ResolutionBoth, localPath, []byte("remote content"))
	require.NoError(t, err)
	assert.True(t, outcome.Done)

	_, err = os.Stat(localPath)
	assert.True(t, os.IsNotExist(err), "original path should be removed by the rename")

	remoteData, err := os.ReadFile(outcome.RemoteContentPath)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(remoteData))
	assert.Contains(t, outcome.RemoteContentPath, "~conflict~phone~")
}

func TestConflictResolver_ResolveManualCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))
	c := newConflict(t, r)

	localPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

	outcome, err := r.Resolve(c, ResolutionManual, localPath, nil)
	require.NoError(t, err)
	assert.False(t, outcome.Done)
	assert.Contains(t, outcome.RemoteContentPath, "resolved.txt")

	workspace := filepath.Dir(outcome.RemoteContentPath)

	readme, err := os.ReadFile(filepath.Join(workspace, "README.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), c.ConflictID)

	localCopy, err := os.ReadFile(filepath.Join(workspace, "local-copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local content", string(localCopy))
}

func TestConflictResolver_ResolveAlreadyResolvedFails(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))
	c := newConflict(t, r)

	localPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

	_, err := r.Resolve(c, ResolutionLocal, localPath, []byte("remote content"))
	require.NoError(t, err)

	_, err = r.Resolve(c, ResolutionLocal, localPath, []byte("remote content"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
}

func TestConflictResolver_HistoryBounded(t *testing.T) {
	dir := t.TempDir()
	r := NewConflictResolver(dir, testLogger(t))

	for i := 0; i < maxHistoryEntries+5; i++ {
		c := newConflict(t, r)
		localPath := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(localPath, []byte("local content"), 0o644))

		_, err := r.Resolve(c, ResolutionLocal, localPath, []byte("remote content"))
		require.NoError(t, err)
	}

	assert.Len(t, r.History(), maxHistoryEntries)
}
