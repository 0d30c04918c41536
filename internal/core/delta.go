package core

import (
	"io"
	"os"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
)

// ChunkKind tags a Delta chunk's shape.
type ChunkKind int

const (
	ChunkCopy ChunkKind = iota
	ChunkInsert
	ChunkDelete
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkInsert:
		return "insert"
	case ChunkDelete:
		return "delete"
	default:
		return "copy"
	}
}

// Chunk is one instruction for reconstructing a target file from a base
// file. DstOffset is always populated (even for Copy, which the wire
// format doesn't require it for) because every chunk corresponds to
// exactly one target block position, and carrying it makes Apply a single
// pass over the chunk list rather than a running-cursor computation.
type Chunk struct {
	Kind      ChunkKind
	SrcOffset int64 // valid for Copy: offset into the base file
	DstOffset int64 // offset into the target output
	Length    int64 // valid for Copy and Delete
	Bytes     []byte
}

// Delta is the ordered sequence of chunks produced by Compute, plus the
// target length Apply must produce.
type Delta struct {
	Chunks     []Chunk
	TargetSize int64
}

// Compute hashes targetPath with blockSize (the folder-wide constant) and
// compares each target block against basePath's blocks at the same index.
// A matching digest emits Copy referencing the base offset; otherwise
// Insert carries the raw target bytes. The final block may be short.
func Compute(basePath, targetPath string, blockSize int) (Delta, error) {
	baseDigest, err := hashsum.HashFile(basePath, blockSize)
	if err != nil {
		return Delta{}, NewSyncError(KindIO, "hashing base file "+basePath, err)
	}

	target, err := os.Open(targetPath)
	if err != nil {
		return Delta{}, NewSyncError(KindIO, "opening target file "+targetPath, err)
	}
	defer target.Close()

	var (
		chunks []Chunk
		total  int64
		index  int
	)

	buf := make([]byte, blockSize)

	for {
		n, readErr := io.ReadFull(target, buf)
		if n > 0 {
			block := buf[:n]
			dstOffset := int64(index) * int64(blockSize)

			if index < len(baseDigest.Blocks) && hashsum.BlockHash(block) == baseDigest.Blocks[index] {
				chunks = append(chunks, Chunk{
					Kind:      ChunkCopy,
					SrcOffset: dstOffset,
					DstOffset: dstOffset,
					Length:    int64(n),
				})
			} else {
				bytesCopy := make([]byte, n)
				copy(bytesCopy, block)

				chunks = append(chunks, Chunk{
					Kind:      ChunkInsert,
					DstOffset: dstOffset,
					Length:    int64(n),
					Bytes:     bytesCopy,
				})
			}

			total += int64(n)
			index++
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}

		if readErr != nil {
			return Delta{}, NewSyncError(KindIO, "reading target file "+targetPath, readErr)
		}
	}

	return Delta{Chunks: chunks, TargetSize: total}, nil
}

// Apply reconstructs the target described by d onto out, reading base
// bytes from basePath for every Copy chunk. out is sized to d.TargetSize
// and any bytes beyond the last chunk written are left zero, matching a
// target whose final blocks the producer chose not to re-send because
// they were unchanged from the base past the compared range — which never
// happens given Compute always covers every target block, so this is
// purely defensive.
func Apply(basePath string, d Delta, out *os.File) error {
	base, err := os.Open(basePath)
	if err != nil {
		return NewSyncError(KindIO, "opening base file "+basePath, err)
	}
	defer base.Close()

	for _, c := range d.Chunks {
		switch c.Kind {
		case ChunkCopy:
			if err := copyChunk(base, out, c); err != nil {
				return err
			}
		case ChunkInsert:
			if _, err := out.WriteAt(c.Bytes, c.DstOffset); err != nil {
				return NewSyncError(KindIO, "writing insert chunk", err)
			}
		case ChunkDelete:
			// Informational per the spec's Open Question resolution: Compute
			// never emits it, and a shrinking target is fully described by
			// the Truncate below plus the Copy/Insert chunks that precede it.
		}
	}

	if err := out.Truncate(d.TargetSize); err != nil {
		return NewSyncError(KindIO, "truncating output to target size", err)
	}

	return nil
}

func copyChunk(base, out *os.File, c Chunk) error {
	buf := make([]byte, c.Length)

	if _, err := base.ReadAt(buf, c.SrcOffset); err != nil && err != io.EOF {
		return NewSyncError(KindIO, "reading base chunk", err)
	}

	if _, err := out.WriteAt(buf, c.DstOffset); err != nil {
		return NewSyncError(KindIO, "writing copy chunk", err)
	}

	return nil
}
