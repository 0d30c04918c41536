package ignorematch

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger that writes to stderr, so ignore
// decisions are visible in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestMatch_BuiltinDefaults(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, testLogger(t))

	assert.True(t, m.Match(".git", true).Ignored)
	assert.True(t, m.Match(".DS_Store", false).Ignored)
	assert.True(t, m.Match("foo.part-abc123", false).Ignored)
	assert.False(t, m.Match("notes.md", false).Ignored)
}

func TestMatch_FolderConfigPatterns(t *testing.T) {
	root := t.TempDir()
	m := New(root, []string{"*.log", "build/"}, testLogger(t))

	assert.True(t, m.Match("server.log", false).Ignored)
	assert.True(t, m.Match("build", true).Ignored)
	assert.False(t, m.Match("build", false).Ignored)
}

func TestMatch_Gitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.tmp\n"), 0o644))

	m := New(root, nil, testLogger(t))

	assert.True(t, m.Match("scratch.tmp", false).Ignored)
	assert.False(t, m.Match("scratch.txt", false).Ignored)
}

func TestMatch_StignoreOverridesGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.bin\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".stignore"), []byte("!important.bin\n"), 0o644))

	m := New(root, nil, testLogger(t))

	assert.True(t, m.Match("other.bin", false).Ignored)
	assert.False(t, m.Match("important.bin", false).Ignored)
}

func TestMatch_SubdirectoryStignoreIsRootedToItsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", ".stignore"), []byte("*.cache\n"), 0o644))

	m := New(root, nil, testLogger(t))

	assert.True(t, m.Match("sub/data.cache", false).Ignored)
	assert.False(t, m.Match("data.cache", false).Ignored, "pattern from sub/.stignore must not leak to root")
	assert.False(t, m.Match("other/data.cache", false).Ignored, "pattern from sub/.stignore must not leak to sibling dirs")
}

func TestMatch_NestedDirectoryInheritsAncestorPatterns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	m := New(root, nil, testLogger(t))

	assert.True(t, m.Match("a/b/debug.log", false).Ignored)
}

func TestInvalidateDir_ForcesReloadOfChangedMarkerFiles(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, testLogger(t))

	assert.False(t, m.Match("newly.tmp", false).Ignored)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.tmp\n"), 0o644))
	m.InvalidateDir(".")

	assert.True(t, m.Match("newly.tmp", false).Ignored)
}
