package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeers_UsesExplicitName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = []Device{{ID: "laptop", Name: "Work Laptop", PublicKey: "key"}}

	resolved, err := ResolvePeers(cfg)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "Work Laptop", resolved[0].Name)
}

func TestResolvePeers_DefaultNameTruncatesLongID(t *testing.T) {
	cfg := DefaultConfig()
	longID := strings.Repeat("a", 40)
	cfg.Devices = []Device{{ID: longID, PublicKey: "key"}}

	resolved, err := ResolvePeers(cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resolved[0].Name, "…"))
	assert.Less(t, len(resolved[0].Name), len(longID))
}

func TestResolvePeers_MissingPublicKeyFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = []Device{{ID: "laptop"}}

	_, err := ResolvePeers(cfg)
	assert.ErrorContains(t, err, "publicKey must not be empty")
}
