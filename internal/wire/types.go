// Package wire defines the PeerSession wire protocol: the request/reply
// message set exchanged between paired peers over an injected secure
// channel, plus the envelope framing and typed encode/decode helpers used
// to send and receive them.
//
// The secure channel itself — pairing, key exchange, transport encryption —
// is out of scope here and supplied by the caller as a SecureChannel; this
// package only concerns itself with what travels over it once established.
package wire

import "time"

// Message type tags. These are the literal values carried in an
// Envelope's Type field and appear on the wire exactly as written here.
const (
	TypeFileListRequest    = "file-list-request"
	TypeFileListResponse   = "file-list-response"
	TypeTransferInit       = "transfer-init"
	TypeTransferInitAck    = "transfer-init-ack"
	TypeTransferChunk      = "transfer-chunk"
	TypeTransferChunkAck   = "transfer-chunk-ack"
	TypeTransferChunkError = "transfer-chunk-error"
	TypeTransferComplete   = "transfer-complete"
	TypeRequestFile        = "request-file"
	TypeHeartbeat          = "heartbeat"
	TypeHeartbeatAck       = "heartbeat-ack"
	TypeError              = "error"
)

// EntryKind enumerates the kinds of entries a FileListResponse can report.
type EntryKind string

// Entry kinds recognized in a FileListResponse.
const (
	EntryFile      EntryKind = "file"
	EntryDirectory EntryKind = "directory"
	EntrySymlink   EntryKind = "symlink"
)

// FileListRequest asks a peer for its current view of one folder.
type FileListRequest struct {
	FolderID string `json:"folderId"`
}

// FileEntry is one remote path in a FileListResponse. Hash is empty for
// directories.
type FileEntry struct {
	RelativePath string    `json:"relativePath"`
	Kind         EntryKind `json:"type"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash,omitempty"`
	ModifiedAt   time.Time `json:"modifiedAt"`
}

// FileListResponse is the reply to a FileListRequest.
type FileListResponse struct {
	FolderID string      `json:"folderId"`
	Files    []FileEntry `json:"files"`
}

// TransferFile describes the file a TransferInit is about to send.
type TransferFile struct {
	RelativePath string    `json:"relativePath"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	ModifiedAt   time.Time `json:"mtime"`
}

// TransferInit opens a new transfer. The receiver replies with
// TransferInitAck before any chunk is sent.
type TransferInit struct {
	TransferID  string       `json:"transferId"`
	File        TransferFile `json:"file"`
	TotalChunks int          `json:"totalChunks"`
	ChunkSize   int          `json:"chunkSize"`
	Compressed  bool         `json:"compressed"`
}

// TransferInitAck acknowledges a TransferInit, unblocking the sender's
// first chunk.
type TransferInitAck struct {
	TransferID string `json:"transferId"`
}

// TransferChunk carries one chunk's bytes. Hash is the digest of Data in
// the form it was sent (post-compression when Compressed was set on
// init), so the receiver can verify each chunk as it arrives.
type TransferChunk struct {
	TransferID string `json:"transferId"`
	ChunkIndex int     `json:"chunkIndex"`
	Data       []byte  `json:"data"`
	Hash       string  `json:"hash"`
}

// TransferChunkAck acknowledges successful receipt and verification of
// one chunk.
type TransferChunkAck struct {
	TransferID string `json:"transferId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TransferChunkError reports a chunk that failed hash verification. The
// sender is expected to retry that chunk.
type TransferChunkError struct {
	TransferID string `json:"transferId"`
	ChunkIndex int    `json:"chunkIndex"`
	Reason     string `json:"reason"`
}

// TransferComplete closes a transfer and reports the canonical whole-file
// hash of the bytes as the sender saw them, for the receiver's final
// integrity check.
type TransferComplete struct {
	TransferID string `json:"transferId"`
	FileHash   string `json:"fileHash"`
}

// RequestFile asks a peer to start sending one file, optionally pinned to
// a specific content hash (used to request a particular version rather
// than "whatever you currently have").
type RequestFile struct {
	TransferID   string `json:"transferId"`
	FolderID     string `json:"folderId"`
	RelativePath string `json:"relativePath"`
	Hash         string `json:"hash,omitempty"`
}

// Heartbeat is a keepalive sent on an idle session.
type Heartbeat struct {
	SentAt time.Time `json:"sentAt"`
}

// HeartbeatAck answers a Heartbeat.
type HeartbeatAck struct {
	SentAt time.Time `json:"sentAt"`
}

// ErrorMessage reports a protocol-level failure that isn't specific to
// one chunk (e.g. "unpaired peer", "unknown folder"). Kind mirrors the
// closed ErrorKind taxonomy shared across the core.
type ErrorMessage struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
