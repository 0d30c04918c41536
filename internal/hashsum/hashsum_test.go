package hashsum

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile_IdenticalBytesProduceIdenticalDigests(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog, repeated for blocks. ")
	for len(content) < 300 {
		content = append(content, content...)
	}

	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, content, 0o644))
	require.NoError(t, os.WriteFile(pathB, content, 0o644))

	digestA, err := HashFile(pathA, 64)
	require.NoError(t, err)
	digestB, err := HashFile(pathB, 64)
	require.NoError(t, err)

	assert.Equal(t, digestA.ContentHash, digestB.ContentHash)
	assert.Equal(t, digestA.Blocks, digestB.Blocks)
	assert.Equal(t, int64(len(content)), digestA.Size)
}

func TestHashFile_ShortFinalBlockIncludedAsIs(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{0x42}, 64+10)
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path, 64)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 2)

	wantLast := BlockHash(content[64:])
	assert.Equal(t, wantLast, got.Blocks[1])
}

func TestHashFile_OneByteChangeSharesPrefixUntilModifiedBlock(t *testing.T) {
	dir := t.TempDir()
	base := bytes.Repeat([]byte{0x01}, 64*3)
	modified := append([]byte(nil), base...)
	modified[64+5] ^= 0xFF

	pathBase := filepath.Join(dir, "base.bin")
	pathMod := filepath.Join(dir, "mod.bin")
	require.NoError(t, os.WriteFile(pathBase, base, 0o644))
	require.NoError(t, os.WriteFile(pathMod, modified, 0o644))

	baseDigest, err := HashFile(pathBase, 64)
	require.NoError(t, err)
	modDigest, err := HashFile(pathMod, 64)
	require.NoError(t, err)

	assert.Equal(t, baseDigest.Blocks[0], modDigest.Blocks[0])
	assert.NotEqual(t, baseDigest.Blocks[1], modDigest.Blocks[1])
	assert.Equal(t, baseDigest.Blocks[2], modDigest.Blocks[2])
	assert.NotEqual(t, baseDigest.ContentHash, modDigest.ContentHash)
}

func TestHashFile_ZeroByteFileIsDefinedAndStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := HashFile(path, 64)
	require.NoError(t, err)
	assert.Empty(t, got.Blocks)
	assert.Equal(t, int64(0), got.Size)
	assert.False(t, got.ContentHash.IsZero() && len(got.Blocks) > 0)

	again, err := HashFile(path, 64)
	require.NoError(t, err)
	assert.Equal(t, got.ContentHash, again.ContentHash)
}

func TestContentHash_IsDigestOfConcatenatedBlockDigestBytes(t *testing.T) {
	blocks := []Digest{BlockHash([]byte("one")), BlockHash([]byte("two"))}

	var buf bytes.Buffer
	for _, b := range blocks {
		buf.Write(b[:])
	}

	want := BlockHash(buf.Bytes())
	assert.Equal(t, want, ContentHash(blocks))
}

func TestRollingHasher_MatchesHashFile(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("abcdefgh"), 50)
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	want, err := HashFile(path, 64)
	require.NoError(t, err)

	rh := NewRollingHasher(64)
	n, err := rh.Write(content[:100])
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	_, err = rh.Write(content[100:])
	require.NoError(t, err)

	got := rh.Finish()
	assert.Equal(t, want.ContentHash, got.ContentHash)
	assert.Equal(t, want.Blocks, got.Blocks)
}

func TestDigest_StringIsLowercaseHex(t *testing.T) {
	d := BlockHash([]byte("x"))
	s := d.String()
	assert.Len(t, s, DigestSize*2)
	assert.Regexp(t, "^[0-9a-f]+$", s)
}
