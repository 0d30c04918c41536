// Package hashsum implements block and whole-file content hashing on top
// of BLAKE2b-256, a collision-resistant 256-bit digest with a streaming
// hash.Hash API suitable for both block hashing and whole-file digests.
//
// The canonical whole-file digest is the digest of the concatenation of
// the *raw block digest bytes*, computed left-to-right with no padding —
// never the hash of the file bytes directly, and never built from hex
// strings. A short final block is included as-is.
package hashsum

import (
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the length, in bytes, of a block or whole-file digest.
const DigestSize = blake2b.Size256

// Digest is a 256-bit BLAKE2b content digest.
type Digest [DigestSize]byte

// String returns the lowercase hex encoding of the digest, matching the
// wire and on-disk representation used throughout the codebase.
func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// IsZero reports whether d is the zero digest (not a value BLAKE2b-256
// produces in practice, used as a sentinel for "not yet computed").
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// FileDigest is the result of hashing a whole file: its size, the ordered
// per-block digests, and the canonical whole-file content hash derived
// from them.
type FileDigest struct {
	Size        int64
	BlockSize   int
	Blocks      []Digest
	ContentHash Digest
}

// newBlockHasher returns a fresh BLAKE2b-256 hasher. Panics only on a
// misconfigured key length; no key is passed, so this never fails in
// practice.
func newBlockHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("hashsum: blake2b.New256: %v", err))
	}

	return h
}

// BlockHash computes the digest of a single block's raw bytes.
func BlockHash(block []byte) Digest {
	h := newBlockHasher()
	h.Write(block)

	var d Digest
	copy(d[:], h.Sum(nil))

	return d
}

// ContentHash derives the canonical whole-file digest from an ordered
// list of block digests: H(concat(block digests)), computed left to
// right over the raw digest bytes, with no padding or separators.
func ContentHash(blocks []Digest) Digest {
	h := newBlockHasher()
	for _, b := range blocks {
		h.Write(b[:])
	}

	var d Digest
	copy(d[:], h.Sum(nil))

	return d
}

// HashFile reads path in blockSize chunks, computing each block's digest
// and the canonical whole-file digest derived from them. A zero-length
// file produces an empty Blocks slice and the content hash of zero blocks
// (H() over no input), which is still well-defined and stable.
func HashFile(path string, blockSize int) (FileDigest, error) {
	if blockSize <= 0 {
		return FileDigest{}, fmt.Errorf("hashsum: HashFile %s: blockSize must be positive, got %d", path, blockSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return FileDigest{}, fmt.Errorf("hashsum: opening %s: %w", path, err)
	}
	defer f.Close()

	return hashReader(f, blockSize, path)
}

// HashReader is HashFile's streaming counterpart for callers that already
// have an io.Reader (e.g. an in-flight download) rather than a path.
func HashReader(r io.Reader, blockSize int) (FileDigest, error) {
	if blockSize <= 0 {
		return FileDigest{}, fmt.Errorf("hashsum: HashReader: blockSize must be positive, got %d", blockSize)
	}

	return hashReader(r, blockSize, "<reader>")
}

func hashReader(r io.Reader, blockSize int, label string) (FileDigest, error) {
	buf := make([]byte, blockSize)

	var (
		blocks []Digest
		total  int64
	)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			blocks = append(blocks, BlockHash(buf[:n]))
			total += int64(n)
		}

		if err == io.EOF {
			break
		}

		if err == io.ErrUnexpectedEOF {
			// Final short block already captured above; stop cleanly.
			break
		}

		if err != nil {
			return FileDigest{}, fmt.Errorf("hashsum: reading %s: %w", label, err)
		}
	}

	return FileDigest{
		Size:        total,
		BlockSize:   blockSize,
		Blocks:      blocks,
		ContentHash: ContentHash(blocks),
	}, nil
}

// RollingHasher incrementally hashes a stream in fixed-size blocks,
// emitting a completed block digest each time blockSize bytes accumulate.
// It hashes bytes as they arrive rather than holding a whole file in
// memory.
type RollingHasher struct {
	blockSize int
	buf       []byte
	blocks    []Digest
	total     int64
}

// NewRollingHasher creates a RollingHasher for the given folder-wide
// block size.
func NewRollingHasher(blockSize int) *RollingHasher {
	return &RollingHasher{
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

// Write implements io.Writer, folding p into the current block buffer and
// flushing completed blocks as they fill.
func (rh *RollingHasher) Write(p []byte) (int, error) {
	written := len(p)
	rh.total += int64(written)

	for len(p) > 0 {
		room := rh.blockSize - len(rh.buf)
		if room > len(p) {
			room = len(p)
		}

		rh.buf = append(rh.buf, p[:room]...)
		p = p[room:]

		if len(rh.buf) == rh.blockSize {
			rh.blocks = append(rh.blocks, BlockHash(rh.buf))
			rh.buf = rh.buf[:0]
		}
	}

	return written, nil
}

// Finish flushes any partial trailing block and returns the completed
// FileDigest. The hasher must not be reused afterward.
func (rh *RollingHasher) Finish() FileDigest {
	if len(rh.buf) > 0 {
		rh.blocks = append(rh.blocks, BlockHash(rh.buf))
	}

	return FileDigest{
		Size:        rh.total,
		BlockSize:   rh.blockSize,
		Blocks:      rh.blocks,
		ContentHash: ContentHash(rh.blocks),
	}
}
