package peerid

// PairKey is a composite (FolderID, PeerID) pair usable as a map key for
// per-folder, per-peer state, in place of ad-hoc "folderID:peerID" string
// concatenation.
//
// Comparable: both fields are structs containing only an unexported
// string, so PairKey is fully comparable and safe as a map key.
type PairKey struct {
	Folder FolderID
	Peer   PeerID
}

// NewPairKey creates a PairKey from a folder id and peer id.
func NewPairKey(folder FolderID, peer PeerID) PairKey {
	return PairKey{Folder: folder, Peer: peer}
}

// String returns the "folderID:peerID" representation, for logging.
func (k PairKey) String() string {
	return k.Folder.String() + ":" + k.Peer.String()
}

// IsZero reports whether both components are zero/empty.
func (k PairKey) IsZero() bool {
	return k.Folder.IsZero() && k.Peer.IsZero()
}
