package peerid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFolderID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty string produces zero id", raw: "", want: ""},
		{name: "15-char id gets zero-padded", raw: "abc123def456789", want: "0abc123def456789"},
		{name: "16-char id unchanged", raw: "abc123def4567890", want: "abc123def4567890"},
		{name: "uppercase lowercased", raw: "ABC123DEF4567890", want: "abc123def4567890"},
		{name: "short id padded to 16", raw: "abc", want: "0000000000000abc"},
		{name: "idempotent", raw: "0abc123def456789", want: "0abc123def456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFolderID(tt.raw)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFolderID_IsZero(t *testing.T) {
	assert.True(t, FolderID{}.IsZero())
	assert.True(t, NewFolderID("").IsZero())
	assert.False(t, NewFolderID("abc123def4567890").IsZero())
	assert.False(t, NewFolderID("abc").IsZero())
}

func TestFolderID_Equal(t *testing.T) {
	a := NewFolderID("ABC123DEF4567890")
	b := NewFolderID("abc123def4567890")
	c := NewFolderID("different1234567")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, FolderID{}.Equal(NewFolderID("")))
}

func TestFolderID_TextMarshaling(t *testing.T) {
	id := NewFolderID("SomeFolder123456")

	text, err := id.MarshalText()
	require.NoError(t, err)

	var roundTripped FolderID
	require.NoError(t, roundTripped.UnmarshalText(text))
	assert.True(t, id.Equal(roundTripped))
}

func TestFolderID_SQLRoundTrip(t *testing.T) {
	id := NewFolderID("some-folder-id")

	value, err := id.Value()
	require.NoError(t, err)

	var scanned FolderID
	require.NoError(t, scanned.Scan(value))
	assert.True(t, id.Equal(scanned))

	var zero FolderID
	require.NoError(t, zero.Scan(nil))
	assert.True(t, zero.IsZero())
}

func TestNewPeerID(t *testing.T) {
	got := NewPeerID("DEADBEEF")
	assert.Equal(t, "00000000deadbeef", got.String())
}

func TestPeerID_Equal(t *testing.T) {
	a := NewPeerID("fingerprint-one")
	b := NewPeerID("FINGERPRINT-ONE")
	c := NewPeerID("fingerprint-two")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPairKey(t *testing.T) {
	folder := NewFolderID("folder-one")
	peer := NewPeerID("peer-one")

	key := NewPairKey(folder, peer)
	other := NewPairKey(folder, peer)

	assert.Equal(t, key, other)
	assert.False(t, key.IsZero())
	assert.True(t, PairKey{}.IsZero())
	assert.Equal(t, folder.String()+":"+peer.String(), key.String())
}
