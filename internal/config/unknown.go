package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownGlobalKeys are the valid top-level and nested-section keys in the
// config file. Nested keys are recorded as "section.field" so a typo inside
// a table still gets a targeted suggestion.
var knownGlobalKeys = map[string]bool{
	"language": true, "theme": true, "folders": true, "devices": true,
	"ignorePresets": true,

	"schedules.quietHours": true, "schedules.networkRules": true,
	"schedules.networkRules.allowedSSIDs": true, "schedules.networkRules.blockedSSIDs": true,
	"schedules.networkRules.lanOnly": true, "schedules.networkRules.meteredBehavior": true,
	"schedules.networkRules.meteredLimitKbps": true,

	"performance.uploadLimit": true, "performance.downloadLimit": true,
	"performance.maxConcurrentTransfers": true, "performance.compressionEnabled": true,
	"performance.compressionLevel": true, "performance.deltaSync": true, "performance.blockSize": true,

	"security.encryptionEnabled": true, "security.encryptionAlgorithm": true,
	"security.deviceVerification": true,

	"notifications.enabled": true,

	"advanced.respectGitignore": true, "advanced.symbolicLinks": true,
	"advanced.filePermissions": true, "advanced.logLevel": true, "advanced.logRetentionDays": true,
}

// knownGlobalKeysList is the sorted slice form of knownGlobalKeys for
// Levenshtein matching. Sorted for deterministic suggestions when two
// candidates have the same edit distance.
var knownGlobalKeysList = func() []string {
	keys := make([]string, 0, len(knownGlobalKeys))
	for k := range knownGlobalKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// knownFolderKeys are the valid keys inside a `[[folders]]` entry.
var knownFolderKeys = map[string]bool{
	"id": true, "path": true, "mode": true, "peers": true, "ignorePatterns": true,
	"retentionPolicy": true, "retentionCount": true, "retentionDays": true, "paused": true,
}

var knownFolderKeysList = func() []string {
	keys := make([]string, 0, len(knownFolderKeys))
	for k := range knownFolderKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// knownDeviceKeys are the valid keys inside a `[[devices]]` entry.
var knownDeviceKeys = map[string]bool{
	"id": true, "name": true, "publicKey": true, "address": true,
}

var knownDeviceKeysList = func() []string {
	keys := make([]string, 0, len(knownDeviceKeys))
	for k := range knownDeviceKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key. Keys under
// folders/devices array-of-tables are routed to the folder/device key sets.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		parts := key.String()

		if err := buildUnknownKeyError(parts); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func buildUnknownKeyError(keyStr string) error {
	switch {
	case strings.HasPrefix(keyStr, "folders."):
		leaf := strings.TrimPrefix(keyStr, "folders.")
		// array-of-tables indices look like "folders.0.ignorePatterns"; keep
		// only the field name.
		leaf = lastSegmentAfterIndex(leaf)

		if knownFolderKeys[leaf] {
			return nil
		}

		return suggestError(leaf, knownFolderKeysList, "folders")

	case strings.HasPrefix(keyStr, "devices."):
		leaf := strings.TrimPrefix(keyStr, "devices.")
		leaf = lastSegmentAfterIndex(leaf)

		if knownDeviceKeys[leaf] {
			return nil
		}

		return suggestError(leaf, knownDeviceKeysList, "devices")

	default:
		if knownGlobalKeys[keyStr] {
			return nil
		}

		// Nested key whose parent table is known (e.g. a new field inside an
		// array entry within a known section) — only flag if the immediate
		// parent section itself is unrecognized.
		if parent := parentSection(keyStr); parent != "" && knownGlobalKeys[parent] {
			return nil
		}

		return suggestError(keyStr, knownGlobalKeysList, "")
	}
}

func lastSegmentAfterIndex(s string) string {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}

	return parts[0]
}

func parentSection(keyStr string) string {
	idx := strings.LastIndex(keyStr, ".")
	if idx < 0 {
		return ""
	}

	return keyStr[:idx]
}

func suggestError(key string, known []string, scope string) error {
	suggestion := closestMatch(key, known)

	label := "config key"
	if scope != "" {
		label = fmt.Sprintf("key in %s entry", scope)
	}

	if suggestion != "" {
		return fmt.Errorf("unknown %s %q — did you mean %q?", label, key, suggestion)
	}

	return fmt.Errorf("unknown %s %q", label, key)
}

// closestMatch finds the closest known key by Levenshtein distance. Returns
// empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
