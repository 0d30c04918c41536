// Package ignorematch implements the IgnoreMatcher component: a four-layer
// gitignore-style exclusion cascade evaluated for every path the
// SyncOrchestrator considers when planning.
//
// Layers, lowest to highest precedence:
//
//  1. Built-in defaults (VCS directories, OS junk files, in-flight partial
//     transfer markers) — always active, not user-configurable.
//  2. Folder configuration patterns (the folder's ignorePresets selection
//     plus any explicit glob patterns).
//  3. `.gitignore` files, read top-down from the folder root.
//  4. `.stignore` files, read the same way but evaluated last so they can
//     override a `.gitignore` decision for the same path.
//
// Patterns accumulate down the directory tree the way nested `.gitignore`
// files do in Git: a subdirectory inherits every ancestor's patterns, and a
// `.stignore`/`.gitignore` found in a subdirectory is rooted to that
// subdirectory so it never reaches outside it. Within the combined pattern
// list, later entries take precedence — the same last-match-wins rule
// github.com/sabhiram/go-gitignore already applies per file, generalized
// across the four layers by feeding it one ordered, per-directory pattern
// set rather than four independent matchers.
package ignorematch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultPatterns are always-active exclusions, independent of any
// per-folder configuration.
var DefaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"*.part-*",
	"*.partial",
	"~*",
}

// gitignoreMarker and stignoreMarker name the two per-directory marker
// files consulted at layers 3 and 4.
const (
	gitignoreMarker = ".gitignore"
	stignoreMarker  = ".stignore"
)

// Matcher evaluates the four-layer ignore cascade for one folder root.
// Safe for concurrent use; directory pattern sets are computed once and
// cached.
type Matcher struct {
	root   string
	logger *slog.Logger

	basePatterns []string // built-in defaults + folder config patterns, layers 1-2

	mu       sync.RWMutex
	patterns map[string][]string        // dir (relative to root, "." for root) -> combined ordered patterns
	compiled map[string]*ignore.GitIgnore // dir -> compiled matcher, nil if patterns is empty
}

// New creates a Matcher rooted at root, with configPatterns supplying
// layer 2 (folder configuration, e.g. resolved ignorePresets). Built-in
// defaults (layer 1) are always included ahead of configPatterns.
func New(root string, configPatterns []string, logger *slog.Logger) *Matcher {
	base := make([]string, 0, len(DefaultPatterns)+len(configPatterns))
	base = append(base, DefaultPatterns...)
	base = append(base, configPatterns...)

	return &Matcher{
		root:         root,
		logger:       logger,
		basePatterns: base,
		patterns:     make(map[string][]string),
		compiled:     make(map[string]*ignore.GitIgnore),
	}
}

// Result describes the outcome of matching one path.
type Result struct {
	Ignored bool
	Reason  string
}

// Match evaluates relPath (slash-separated, relative to the folder root)
// against the four-layer cascade. isDir controls whether the path is
// matched with a trailing slash, which gitignore semantics treat
// differently (a directory-only pattern only matches directories).
func (m *Matcher) Match(relPath string, isDir bool) Result {
	relPath = filepath.ToSlash(relPath)
	dir := filepath.ToSlash(filepath.Dir(relPath))

	gi, err := m.compiledFor(dir)
	if err != nil {
		m.logger.Warn("ignorematch: failed to load patterns, treating as not ignored",
			slog.String("dir", dir), slog.Any("error", err))

		return Result{Ignored: false}
	}

	if gi == nil {
		return Result{Ignored: false}
	}

	matchPath := relPath
	if isDir {
		matchPath += "/"
	}

	if gi.MatchesPath(matchPath) {
		return Result{Ignored: true, Reason: "matches ignore pattern"}
	}

	return Result{Ignored: false}
}

// compiledFor returns the compiled matcher for dir, building it (and every
// ancestor up to the root) on first use.
func (m *Matcher) compiledFor(dir string) (*ignore.GitIgnore, error) {
	m.mu.RLock()
	gi, cached := m.compiled[dir]
	m.mu.RUnlock()

	if cached {
		return gi, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gi, cached = m.compiled[dir]; cached {
		return gi, nil
	}

	lines, err := m.patternsFor(dir)
	if err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		m.compiled[dir] = nil
		return nil, nil
	}

	compiled, err := ignore.CompileIgnoreLines(lines...)
	if err != nil {
		return nil, fmt.Errorf("ignorematch: compiling patterns for %q: %w", dir, err)
	}

	m.compiled[dir] = compiled

	return compiled, nil
}

// patternsFor returns the ordered pattern list in effect within dir: its
// parent's patterns (recursively, bottoming out at the folder root's base
// patterns), followed by dir's own .gitignore lines, followed by dir's own
// .stignore lines rooted to dir. Results are cached per directory.
func (m *Matcher) patternsFor(dir string) ([]string, error) {
	if cached, ok := m.patterns[dir]; ok {
		return cached, nil
	}

	var parent []string

	if dir == "." || dir == "" {
		parent = m.basePatterns
	} else {
		var err error

		parent, err = m.patternsFor(filepath.ToSlash(filepath.Dir(dir)))
		if err != nil {
			return nil, err
		}
	}

	own, err := readMarkerLines(filepath.Join(m.root, filepath.FromSlash(dir), gitignoreMarker), "")
	if err != nil {
		return nil, err
	}

	rootedDir := dir
	if rootedDir == "." {
		rootedDir = ""
	}

	ownSt, err := readMarkerLines(filepath.Join(m.root, filepath.FromSlash(dir), stignoreMarker), rootedDir)
	if err != nil {
		return nil, err
	}

	combined := make([]string, 0, len(parent)+len(own)+len(ownSt))
	combined = append(combined, parent...)
	combined = append(combined, own...)
	combined = append(combined, ownSt...)

	m.patterns[dir] = combined

	return combined, nil
}

// readMarkerLines reads a marker file's non-empty, non-comment lines. If
// rootPrefix is non-empty, every pattern that is not already anchored
// (does not start with "/" or "!") is rooted to that subdirectory so it
// cannot match outside the directory the marker file lives in — this is
// the ".stignore files are prefixed by their relative path" rule. A
// missing file is not an error; it yields no patterns.
func readMarkerLines(path, rootPrefix string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("ignorematch: reading %s: %w", path, err)
	}

	var lines []string

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if rootPrefix != "" && !strings.HasPrefix(trimmed, "/") && !strings.HasPrefix(trimmed, "!") {
			trimmed = "/" + rootPrefix + "/" + trimmed
		}

		lines = append(lines, trimmed)
	}

	return lines, nil
}

// InvalidateDir drops cached pattern/matcher state for dir and all of its
// descendants, forcing a reload on next Match, for use after a
// `.gitignore`/`.stignore` file itself changes.
func (m *Matcher) InvalidateDir(dir string) {
	dir = filepath.ToSlash(dir)

	m.mu.Lock()
	defer m.mu.Unlock()

	for cachedDir := range m.patterns {
		if cachedDir == dir || strings.HasPrefix(cachedDir, dir+"/") {
			delete(m.patterns, cachedDir)
			delete(m.compiled, cachedDir)
		}
	}
}
