package config

import (
	"fmt"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/peerid"
)

// Device is one `[[devices]]` entry: a paired remote's persisted identity.
type Device struct {
	ID        string `toml:"id"`
	Name      string `toml:"name"`
	PublicKey string `toml:"publicKey"`
	Address   string `toml:"address"`
}

// ResolvedPeer is a Device resolved into its typed identity plus a
// display name, the shape PeerSession/SyncOrchestrator consume.
type ResolvedPeer struct {
	ID          peerid.PeerID
	Name        string
	PublicKey   string
	LastAddress string
}

// ResolvePeers builds a ResolvedPeer for every configured device.
func ResolvePeers(cfg *Config) ([]*ResolvedPeer, error) {
	resolved := make([]*ResolvedPeer, 0, len(cfg.Devices))

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.PublicKey == "" {
			return nil, fmt.Errorf("device %q: publicKey must not be empty", d.ID)
		}

		name := d.Name
		if name == "" {
			name = defaultPeerDisplayName(d.ID)
		}

		resolved = append(resolved, &ResolvedPeer{
			ID:          peerid.NewPeerID(d.ID),
			Name:        name,
			PublicKey:   d.PublicKey,
			LastAddress: d.Address,
		})
	}

	return resolved, nil
}

// defaultPeerDisplayName computes a human-readable name for a device that
// has not configured an explicit display name: the raw id, truncated so
// long key-derived ids don't dominate status output.
const displayNameTruncateLen = 12

func defaultPeerDisplayName(rawID string) string {
	if len(rawID) <= displayNameTruncateLen {
		return rawID
	}

	return rawID[:displayNameTruncateLen] + "…"
}
