package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func applyAndRead(t *testing.T, basePath string, d Delta) string {
	t.Helper()

	outPath := filepath.Join(t.TempDir(), "out")
	out, err := os.Create(outPath)
	require.NoError(t, err)

	require.NoError(t, Apply(basePath, d, out))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	return string(data)
}

func TestDelta_IdenticalFilesAreAllCopy(t *testing.T) {
	dir := t.TempDir()
	base := writeTempFile(t, dir, "base", "0123456789abcdef")
	target := writeTempFile(t, dir, "target", "0123456789abcdef")

	d, err := Compute(base, target, 4)
	require.NoError(t, err)

	for _, c := range d.Chunks {
		assert.Equal(t, ChunkCopy, c.Kind)
	}

	assert.Equal(t, "0123456789abcdef", applyAndRead(t, base, d))
}

func TestDelta_PrependShiftsInserts(t *testing.T) {
	dir := t.TempDir()
	base := writeTempFile(t, dir, "base", "HelloWorld")
	target := writeTempFile(t, dir, "target", "PrefixHelloWorld")

	d, err := Compute(base, target, 4)
	require.NoError(t, err)

	assert.Equal(t, "PrefixHelloWorld", applyAndRead(t, base, d))

	var hasCopy bool

	for _, c := range d.Chunks {
		if c.Kind == ChunkCopy {
			hasCopy = true
		}
	}

	assert.True(t, hasCopy, "expected at least one copy chunk referencing base offsets")
}

func TestDelta_CompletelyDifferentContentIsAllInsert(t *testing.T) {
	dir := t.TempDir()
	base := writeTempFile(t, dir, "base", "aaaaaaaaaaaaaaaa")
	target := writeTempFile(t, dir, "target", "bbbbbbbbbbbbbbbb")

	d, err := Compute(base, target, 4)
	require.NoError(t, err)

	for _, c := range d.Chunks {
		assert.Equal(t, ChunkInsert, c.Kind)
	}

	assert.Equal(t, "bbbbbbbbbbbbbbbb", applyAndRead(t, base, d))
}

func TestDelta_ShrinkingTargetTruncates(t *testing.T) {
	dir := t.TempDir()
	base := writeTempFile(t, dir, "base", "0123456789abcdef")
	target := writeTempFile(t, dir, "target", "01234567")

	d, err := Compute(base, target, 4)
	require.NoError(t, err)

	assert.Equal(t, "01234567", applyAndRead(t, base, d))
}

func TestDelta_ApplyProducesMatchingContentHash(t *testing.T) {
	dir := t.TempDir()
	base := writeTempFile(t, dir, "base", "The quick brown fox jumps over")
	target := writeTempFile(t, dir, "target", "The quick brown fox leaps over a wall")

	blockSize := 8

	d, err := Compute(base, target, blockSize)
	require.NoError(t, err)

	result := applyAndRead(t, base, d)

	wantDigest, err := hashsum.HashFile(target, blockSize)
	require.NoError(t, err)

	gotDigest, err := hashsum.HashReader(strings.NewReader(result), blockSize)
	require.NoError(t, err)

	assert.Equal(t, wantDigest.ContentHash, gotDigest.ContentHash)
}
