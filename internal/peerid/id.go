// Package peerid provides type-safe identity types for folders and peers.
// It consolidates normalization logic (lowercase, fixed-width zero-padding)
// and gives compile-time safety over raw string usage for the two stable
// identifiers the core keys everything by.
//
// Two types cover the codebase's identity needs:
//   - FolderID: normalized local-folder identifier
//   - PeerID: normalized paired-device identifier, derived from the peer's
//     long-lived public key fingerprint
//
// This is a leaf package with zero external dependencies beyond stdlib.
package peerid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"
)

// idMinLength is the minimum length a normalized identifier is padded to.
// Short, human-typed folder names (e.g. "a") would otherwise collide more
// easily as database keys; padding to a fixed width keeps comparisons and
// indexes uniform regardless of where the raw id originated.
const idMinLength = 16

// FolderID is a normalized identifier for a configured sync folder.
// Lowercase and zero-padded to at least idMinLength characters. The zero
// value (FolderID{}) represents an absent or unknown folder.
type FolderID struct {
	value string
}

// NewFolderID creates a normalized FolderID from a raw configured id.
// Applies lowercase and left-pads short ids with zeros. Empty input returns
// the zero FolderID, the single representation for "absent/unknown".
func NewFolderID(raw string) FolderID {
	return FolderID{value: normalize(raw)}
}

// String returns the normalized folder id.
func (id FolderID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value FolderID.
func (id FolderID) IsZero() bool {
	return isZero(id.value)
}

// Equal reports whether two FolderIDs are identical, treating every
// zero-value form (ID{}, New(""), New("0")) as equal to the others.
func (id FolderID) Equal(other FolderID) bool {
	if id.value == other.value {
		return true
	}

	return id.IsZero() && other.IsZero()
}

// MarshalText implements encoding.TextMarshaler.
func (id FolderID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The input is
// normalized (lowercased + zero-padded) just like NewFolderID.
func (id *FolderID) UnmarshalText(text []byte) error {
	*id = NewFolderID(string(text))
	return nil
}

// Scan implements sql.Scanner for reading folder ids out of SQLite. SQL
// NULL produces the zero FolderID.
func (id *FolderID) Scan(src any) error {
	v, err := scanNormalized(src)
	if err != nil {
		return fmt.Errorf("peerid.FolderID.Scan: %w", err)
	}

	*id = NewFolderID(v)

	return nil
}

// Value implements driver.Valuer for writing folder ids to SQLite. The
// zero FolderID writes SQL NULL to match Scan.
func (id FolderID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// PeerID is a normalized identifier for a paired remote device, derived
// from the peer's long-lived public key fingerprint. Lowercase and
// zero-padded to at least idMinLength characters. The zero value
// (PeerID{}) represents an absent or unknown peer.
type PeerID struct {
	value string
}

// NewPeerID creates a normalized PeerID from a raw fingerprint string.
// Applies lowercase and left-pads short ids with zeros. Empty input
// returns the zero PeerID.
func NewPeerID(raw string) PeerID {
	return PeerID{value: normalize(raw)}
}

// String returns the normalized peer id.
func (id PeerID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value PeerID.
func (id PeerID) IsZero() bool {
	return isZero(id.value)
}

// Equal reports whether two PeerIDs are identical, treating every
// zero-value form as equal to the others.
func (id PeerID) Equal(other PeerID) bool {
	if id.value == other.value {
		return true
	}

	return id.IsZero() && other.IsZero()
}

// MarshalText implements encoding.TextMarshaler.
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PeerID) UnmarshalText(text []byte) error {
	*id = NewPeerID(string(text))
	return nil
}

// Scan implements sql.Scanner for reading peer ids out of SQLite.
func (id *PeerID) Scan(src any) error {
	v, err := scanNormalized(src)
	if err != nil {
		return fmt.Errorf("peerid.PeerID.Scan: %w", err)
	}

	*id = NewPeerID(v)

	return nil
}

// Value implements driver.Valuer for writing peer ids to SQLite.
func (id PeerID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// normalize lowercases and zero-pads a raw identifier to idMinLength.
// Empty input returns "" (the zero value), never a string of zeros.
func normalize(raw string) string {
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	if len(lower) >= idMinLength {
		return lower
	}

	return strings.Repeat("0", idMinLength-len(lower)) + lower
}

// isZero reports whether a normalized value represents the zero identifier.
func isZero(value string) bool {
	return value == "" || value == strings.Repeat("0", idMinLength)
}

// scanNormalized extracts a string from a database/sql source value,
// returning "" for SQL NULL.
func scanNormalized(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported scan type %T", src)
	}
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = FolderID{}
	_ encoding.TextUnmarshaler = (*FolderID)(nil)
	_ fmt.Stringer             = FolderID{}
	_ driver.Valuer            = FolderID{}
	_ sql.Scanner              = (*FolderID)(nil)

	_ encoding.TextMarshaler   = PeerID{}
	_ encoding.TextUnmarshaler = (*PeerID)(nil)
	_ fmt.Stringer             = PeerID{}
	_ driver.Valuer            = PeerID{}
	_ sql.Scanner              = (*PeerID)(nil)
)
