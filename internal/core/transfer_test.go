package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/wire"
)

// fakeSession is an in-memory TransferSession pairing two ends through
// buffered channels, mirroring internal/wire's pipeChannel test double
// without depending on the unexported wire test helper.
type fakeSession struct {
	out chan wire.Message
	in  chan wire.Message

	corruptChunk  bool
	corruptedOnce bool
}

func newFakeSessionPair() (*fakeSession, *fakeSession) {
	a := make(chan wire.Message, 64)
	b := make(chan wire.Message, 64)

	return &fakeSession{out: a, in: b}, &fakeSession{out: b, in: a}
}

func (f *fakeSession) deliver(ctx context.Context, msg wire.Message) error {
	select {
	case f.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSession) SendTransferInit(ctx context.Context, init wire.TransferInit) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferInit, TransferInit: &init})
}

func (f *fakeSession) SendTransferInitAck(ctx context.Context, ack wire.TransferInitAck) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferInitAck, TransferInitAck: &ack})
}

func (f *fakeSession) SendTransferChunk(ctx context.Context, chunk wire.TransferChunk) error {
	if f.corruptChunk && !f.corruptedOnce {
		f.corruptedOnce = true
		chunk.Hash = "corrupted-hash"
	}

	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferChunk, TransferChunk: &chunk})
}

func (f *fakeSession) SendTransferChunkAck(ctx context.Context, ack wire.TransferChunkAck) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferChunkAck, TransferChunkAck: &ack})
}

func (f *fakeSession) SendTransferChunkError(ctx context.Context, chunkErr wire.TransferChunkError) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferChunkError, TransferChunkError: &chunkErr})
}

func (f *fakeSession) SendTransferComplete(ctx context.Context, complete wire.TransferComplete) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeTransferComplete, TransferComplete: &complete})
}

func (f *fakeSession) SendRequestFile(ctx context.Context, req wire.RequestFile) error {
	return f.deliver(ctx, wire.Message{Type: wire.TypeRequestFile, RequestFile: &req})
}

func (f *fakeSession) Next(ctx context.Context) (wire.Message, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

// runUploaderPeer answers the upload side of the protocol as the remote
// peer would: ack the init, verify and ack each chunk, and stop once
// transfer-complete arrives.
func runUploaderPeer(t *testing.T, ctx context.Context, peer *fakeSession, wantHash hashsum.Digest) {
	t.Helper()

	for {
		msg, err := peer.Next(ctx)
		if err != nil {
			return
		}

		switch {
		case msg.TransferInit != nil:
			require.NoError(t, peer.SendTransferInitAck(ctx, wire.TransferInitAck{TransferID: msg.TransferInit.TransferID}))
		case msg.TransferChunk != nil:
			got := hashsum.BlockHash(msg.TransferChunk.Data)
			if got.String() != msg.TransferChunk.Hash {
				require.NoError(t, peer.SendTransferChunkError(ctx, wire.TransferChunkError{
					TransferID: msg.TransferChunk.TransferID,
					ChunkIndex: msg.TransferChunk.ChunkIndex,
					Reason:     "hash mismatch",
				}))

				continue
			}

			require.NoError(t, peer.SendTransferChunkAck(ctx, wire.TransferChunkAck{
				TransferID: msg.TransferChunk.TransferID,
				ChunkIndex: msg.TransferChunk.ChunkIndex,
			}))
		case msg.TransferComplete != nil:
			assert.Equal(t, wantHash.String(), msg.TransferComplete.FileHash)
			return
		}
	}
}

// runDownloaderPeer answers the download side: on a file request, sends
// init, then streams chunks and a final complete message.
func runDownloaderPeer(t *testing.T, ctx context.Context, peer *fakeSession, transferID string, data []byte, hash hashsum.Digest, chunkSize int) {
	t.Helper()

	msg, err := peer.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg.RequestFile)

	totalChunks := (len(data) + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	require.NoError(t, peer.SendTransferInit(ctx, wire.TransferInit{
		TransferID:  transferID,
		TotalChunks: totalChunks,
		ChunkSize:   chunkSize,
	}))

	ackMsg, err := peer.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, ackMsg.TransferInitAck)

	for idx := 0; idx < totalChunks; idx++ {
		start := idx * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}

		chunk := data[start:end]
		chunkDigest := hashsum.BlockHash(chunk)

		require.NoError(t, peer.SendTransferChunk(ctx, wire.TransferChunk{
			TransferID: transferID,
			ChunkIndex: idx,
			Data:       chunk,
			Hash:       chunkDigest.String(),
		}))

		ackOrErr, err := peer.Next(ctx)
		require.NoError(t, err)

		if ackOrErr.TransferChunkError != nil {
			continue
		}

		require.NotNil(t, ackOrErr.TransferChunkAck)
	}

	require.NoError(t, peer.SendTransferComplete(ctx, wire.TransferComplete{
		TransferID: transferID,
		FileHash:   hash.String(),
	}))
}

func newTestScheduler(t *testing.T) *TransferScheduler {
	t.Helper()

	bw := NewBandwidthLimiter(0, 0, testLogger(t))

	return NewTransferScheduler(bw, testLogger(t), nil)
}

func TestTransferScheduler_UploadHappyPath(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	content := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	fd, err := hashsum.HashFile(srcPath, 16)
	require.NoError(t, err)

	ts := newTestScheduler(t)
	ts.chunkSize = 32

	local, remote := newFakeSessionPair()
	ts.RegisterPeer("peerA", local)

	task := &TransferTask{
		TransferID:   "t1",
		Direction:    TransferUpload,
		PeerID:       "peerA",
		LocalPath:    srcPath,
		ExpectedHash: fd.ContentHash,
	}
	require.NoError(t, ts.Enqueue(task))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		runUploaderPeer(t, ctx, remote, fd.ContentHash)
		close(done)
	}()

	runCtx, runCancel := context.WithCancel(ctx)

	go func() {
		<-done
		runCancel()
	}()

	ts.Run(runCtx)

	got, ok := ts.Task("t1")
	require.True(t, ok)
	assert.Equal(t, TransferCompleted, got.State)
	assert.Equal(t, int64(len(content)), got.BytesTransferred)
}

func TestTransferScheduler_DownloadHappyPath(t *testing.T) {
	dir := t.TempDir()
	dstPath := filepath.Join(dir, "dst.txt")
	content := []byte("downloaded payload data spanning multiple chunks for this test case")

	fd, err := hashsum.HashReader(bytes.NewReader(content), defaultSnapshotBlockSize)
	require.NoError(t, err)

	ts := newTestScheduler(t)
	ts.chunkSize = 16

	local, remote := newFakeSessionPair()
	ts.RegisterPeer("peerB", local)

	task := &TransferTask{
		TransferID:   "t2",
		Direction:    TransferDownload,
		PeerID:       "peerB",
		LocalPath:    dstPath,
		ExpectedHash: fd.ContentHash,
	}
	require.NoError(t, ts.Enqueue(task))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		runDownloaderPeer(t, ctx, remote, "t2", content, fd.ContentHash, ts.chunkSize)
		close(done)
	}()

	runCtx, runCancel := context.WithCancel(ctx)

	go func() {
		<-done
		time.Sleep(50 * time.Millisecond)
		runCancel()
	}()

	ts.Run(runCtx)

	got, ok := ts.Task("t2")
	require.True(t, ok)
	assert.Equal(t, TransferCompleted, got.State)

	data, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestTransferScheduler_CancelTransfer(t *testing.T) {
	ts := newTestScheduler(t)

	local, _ := newFakeSessionPair()
	ts.RegisterPeer("peerC", local)

	task := &TransferTask{
		TransferID: "t3",
		Direction:  TransferUpload,
		PeerID:     "peerC",
		LocalPath:  filepath.Join(t.TempDir(), "missing.txt"),
	}
	require.NoError(t, ts.Enqueue(task))

	ts.CancelTransfer("t3")

	got, ok := ts.Task("t3")
	require.True(t, ok)
	assert.Equal(t, TransferCancelled, got.State)

	ts.CancelTransfer("t3")
	got, ok = ts.Task("t3")
	require.True(t, ok)
	assert.Equal(t, TransferCancelled, got.State)
}

func TestTransferScheduler_EnqueueUnknownPeerFails(t *testing.T) {
	ts := newTestScheduler(t)

	err := ts.Enqueue(&TransferTask{TransferID: "t4", PeerID: "ghost"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}
