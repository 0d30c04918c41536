package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/peerid"
)

func TestResolveFolders_MergesGlobalSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{{ID: "photos", Path: "/home/user/Photos", Peers: []string{"laptop"}}}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	rf := resolved[0]
	assert.Equal(t, "/home/user/Photos", rf.Path)
	assert.Equal(t, ModeSendReceive, rf.Mode)
	assert.Equal(t, RetentionSimple, rf.RetentionPolicy)
	assert.Equal(t, cfg.Performance, rf.Performance)
	require.Len(t, rf.Peers, 1)
	assert.True(t, rf.Peers[0].Equal(peerid.NewPeerID("laptop")))
}

func TestResolveFolders_ExpandsTildeAndRejectsRelative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{{ID: "bad", Path: "relative/path"}}

	_, err := ResolveFolders(cfg, testLogger(t))
	assert.ErrorContains(t, err, "must be absolute")
}

func TestResolveFolders_AppliesIgnorePresets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IgnorePresets = []string{"node"}
	cfg.Folders = []Folder{{ID: "code", Path: "/home/user/code", IgnorePatterns: []string{"*.bak"}}}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)
	assert.Contains(t, resolved[0].IgnorePatterns, "node_modules/")
	assert.Contains(t, resolved[0].IgnorePatterns, "*.bak")
}

func TestResolveFolders_SortedByID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{
		{ID: "zebra", Path: "/z"},
		{ID: "alpha", Path: "/a"},
	}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.True(t, resolved[0].ID.Equal(peerid.NewFolderID("alpha")))
	assert.True(t, resolved[1].ID.Equal(peerid.NewFolderID("zebra")))
}

func TestMatchFolder_AutoSelectsSingleFolder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{{ID: "photos", Path: "/p"}}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)

	rf, err := MatchFolder(resolved, "")
	require.NoError(t, err)
	assert.True(t, rf.ID.Equal(peerid.NewFolderID("photos")))
}

func TestMatchFolder_RequiresSelectorWithMultipleFolders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{{ID: "a", Path: "/a"}, {ID: "b", Path: "/b"}}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)

	_, err = MatchFolder(resolved, "")
	assert.ErrorContains(t, err, "specify a folder id")
}

func TestMatchFolder_NoMatchReturnsError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Folders = []Folder{{ID: "a", Path: "/a"}}

	resolved, err := ResolveFolders(cfg, testLogger(t))
	require.NoError(t, err)

	_, err = MatchFolder(resolved, "missing")
	assert.ErrorContains(t, err, "no folder matching")
}
