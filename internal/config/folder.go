package config

import (
	"cmp"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/peerid"
)

// Sync modes a Folder can operate in.
const (
	ModeSendReceive = "send-receive"
	ModeReceiveOnly = "receive-only"
)

// Retention policy kinds.
const (
	RetentionSimple     = "simple"
	RetentionTimeBased  = "time-based"
	RetentionNone       = "none"
)

// Folder is one `[[folders]]` entry as parsed from TOML.
type Folder struct {
	ID              string   `toml:"id"`
	Path            string   `toml:"path"`
	Mode            string   `toml:"mode"`
	Peers           []string `toml:"peers"`
	IgnorePatterns  []string `toml:"ignorePatterns"`
	RetentionPolicy string   `toml:"retentionPolicy"`
	RetentionCount  int      `toml:"retentionCount"`  // simple: keep N most recent
	RetentionDays   int      `toml:"retentionDays"`   // time-based: keep entries newer than N days
	Paused          bool     `toml:"paused"`
}

// ResolvedFolder is the fully merged view of one folder: its own fields
// plus the global sections a folder-scoped component needs, assembled so
// that Watcher/SnapshotStore/TransferScheduler/PolicyGate each take one
// struct instead of reaching back into the global Config.
type ResolvedFolder struct {
	ID   peerid.FolderID
	Path string // absolute, tilde-expanded
	Mode string
	Peers []peerid.PeerID

	IgnorePatterns  []string // folder patterns + resolved ignorePresets
	RetentionPolicy string
	RetentionCount  int
	RetentionDays   int
	Paused          bool

	Performance PerformanceConfig
	Security    SecurityConfig
	Advanced    AdvancedConfig
}

// ResolveFolders builds a ResolvedFolder for every configured folder,
// merging global sections in. Results are sorted by folder id for
// deterministic ordering (matches the teacher's drive-resolution
// ordering guarantee).
func ResolveFolders(cfg *Config, logger *slog.Logger) ([]*ResolvedFolder, error) {
	resolved := make([]*ResolvedFolder, 0, len(cfg.Folders))

	for i := range cfg.Folders {
		rf, err := resolveFolder(cfg, &cfg.Folders[i], logger)
		if err != nil {
			return nil, fmt.Errorf("resolving folder %q: %w", cfg.Folders[i].ID, err)
		}

		resolved = append(resolved, rf)
	}

	slices.SortFunc(resolved, func(a, b *ResolvedFolder) int {
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	return resolved, nil
}

func resolveFolder(cfg *Config, f *Folder, logger *slog.Logger) (*ResolvedFolder, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("folder %q: path must not be empty", f.ID)
	}

	path := expandTilde(f.Path)
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("folder %q: path must be absolute after expansion, got %q", f.ID, path)
	}

	peers := make([]peerid.PeerID, 0, len(f.Peers))
	for _, raw := range f.Peers {
		peers = append(peers, peerid.NewPeerID(raw))
	}

	patterns := make([]string, 0, len(cfg.IgnorePresets)+len(f.IgnorePatterns))
	patterns = append(patterns, resolvePresets(cfg.IgnorePresets)...)
	patterns = append(patterns, f.IgnorePatterns...)

	mode := f.Mode
	if mode == "" {
		mode = ModeSendReceive
	}

	retention := f.RetentionPolicy
	if retention == "" {
		retention = RetentionSimple
	}

	logger.Debug("resolved folder",
		slog.String("id", f.ID),
		slog.String("path", path),
		slog.String("mode", mode),
		slog.Int("peer_count", len(peers)),
	)

	return &ResolvedFolder{
		ID:              peerid.NewFolderID(f.ID),
		Path:            path,
		Mode:            mode,
		Peers:           peers,
		IgnorePatterns:  patterns,
		RetentionPolicy: retention,
		RetentionCount:  f.RetentionCount,
		RetentionDays:   f.RetentionDays,
		Paused:          f.Paused,
		Performance:     cfg.Performance,
		Security:        cfg.Security,
		Advanced:        cfg.Advanced,
	}, nil
}

// ignorePresetPatterns maps a named preset to the glob patterns it expands
// to. Presets let users opt into common exclusion sets (e.g. "node") by
// name instead of copy-pasting pattern lists into every folder.
var ignorePresetPatterns = map[string][]string{
	"node":   {"node_modules/", "npm-debug.log*"},
	"go":     {"*.test", "vendor/"},
	"python": {"__pycache__/", "*.pyc", ".venv/"},
	"build":  {"dist/", "build/", "*.o", "*.obj"},
}

func resolvePresets(names []string) []string {
	var patterns []string

	for _, name := range names {
		patterns = append(patterns, ignorePresetPatterns[strings.ToLower(name)]...)
	}

	return patterns
}

// MatchFolder selects a folder from the config by selector string: exact
// id match, or (when selector is empty) auto-select if exactly one folder
// is configured.
func MatchFolder(resolved []*ResolvedFolder, selector string) (*ResolvedFolder, error) {
	if selector == "" {
		if len(resolved) == 1 {
			return resolved[0], nil
		}

		return nil, fmt.Errorf("multiple folders configured — specify a folder id")
	}

	id := peerid.NewFolderID(selector)

	for _, rf := range resolved {
		if rf.ID.Equal(id) {
			return rf, nil
		}
	}

	return nil, fmt.Errorf("no folder matching %q", selector)
}
