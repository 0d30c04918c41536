package core

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/hashsum"
	"github.com/HabrielStark/AirSync-Lite-sub000/internal/wire"
)

// TransferState is the observable lifecycle of one TransferTask.
type TransferState int

const (
	TransferPending TransferState = iota
	TransferActive
	TransferCompleted
	TransferFailed
	TransferCancelled
)

func (s TransferState) String() string {
	switch s {
	case TransferActive:
		return "active"
	case TransferCompleted:
		return "completed"
	case TransferFailed:
		return "failed"
	case TransferCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// TransferDirection is which way a TransferTask's bytes flow.
type TransferDirection int

const (
	TransferUpload TransferDirection = iota
	TransferDownload
)

func (d TransferDirection) bandwidthDirection() Direction {
	if d == TransferDownload {
		return DirectionDownload
	}

	return DirectionUpload
}

const (
	defaultMaxConcurrentTransfers = 3
	defaultChunkSize              = 256 * 1024
	defaultMaxRetries             = 3
	defaultQueueDepth             = 256
	chunkWireTimeout              = 30 * time.Second
)

// TransferTask tracks one in-flight or queued upload/download. Callers
// (the sync orchestrator deriving a transfer plan) populate every field
// before Enqueue; the scheduler only ever reads TransferID/Direction/
// FolderID/RelativePath/PeerID/LocalPath/ExpectedSize/ExpectedHash and writes
// State/RetryCount/BytesTransferred back as the transfer progresses.
type TransferTask struct {
	TransferID       string
	Direction        TransferDirection
	FolderID         string
	RelativePath     string
	PeerID           string
	LocalPath        string
	ExpectedSize     int64
	ExpectedHash     hashsum.Digest
	State            TransferState
	RetryCount       int
	BytesTransferred int64

	mu     stdsync.Mutex
	cancel context.CancelFunc
}

func (t *TransferTask) setState(s TransferState) {
	t.mu.Lock()
	t.State = s
	t.mu.Unlock()
}

func (t *TransferTask) snapshot() TransferTask {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := *t
	cp.cancel = nil

	return cp
}

// TransferSession is the subset of wire.Session a TransferScheduler needs
// to drive one peer's transfers. Matches wire.Session's method set so the
// real type satisfies it with no adapter.
type TransferSession interface {
	SendTransferInit(ctx context.Context, init wire.TransferInit) error
	SendTransferInitAck(ctx context.Context, ack wire.TransferInitAck) error
	SendTransferChunk(ctx context.Context, chunk wire.TransferChunk) error
	SendTransferChunkAck(ctx context.Context, ack wire.TransferChunkAck) error
	SendTransferChunkError(ctx context.Context, chunkErr wire.TransferChunkError) error
	SendTransferComplete(ctx context.Context, complete wire.TransferComplete) error
	SendRequestFile(ctx context.Context, req wire.RequestFile) error
	Next(ctx context.Context) (wire.Message, error)
}

// TransferScheduler owns one bounded FIFO queue per peer, a per-peer
// concurrency cap, and the upload/download protocol state machines from
// §4.8. It drives an injected TransferSession per peer; pairing, key
// exchange, and framing live below that in the wire package.
type TransferScheduler struct {
	logger     *slog.Logger
	bandwidth  *BandwidthLimiter
	maxPerPeer int64
	chunkSize  int
	maxRetries int

	mu       stdsync.Mutex
	queues   map[string]chan *TransferTask
	sems     map[string]*semaphore.Weighted
	tasks    map[string]*TransferTask
	sessions map[string]TransferSession

	metricActive   prometheus.Gauge
	metricBytes    *prometheus.CounterVec
	metricFailures prometheus.Counter
}

// NewTransferScheduler constructs a scheduler. registry is used to
// register the scheduler's Prometheus collectors; pass nil to skip
// metrics registration (e.g. in tests).
func NewTransferScheduler(bandwidth *BandwidthLimiter, logger *slog.Logger, registry prometheus.Registerer) *TransferScheduler {
	if logger == nil {
		logger = slog.Default()
	}

	ts := &TransferScheduler{
		logger:     logger,
		bandwidth:  bandwidth,
		maxPerPeer: defaultMaxConcurrentTransfers,
		chunkSize:  defaultChunkSize,
		maxRetries: defaultMaxRetries,
		queues:     make(map[string]chan *TransferTask),
		sems:       make(map[string]*semaphore.Weighted),
		tasks:      make(map[string]*TransferTask),
		sessions:   make(map[string]TransferSession),

		metricActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airsync_transfers_active",
			Help: "Number of transfers currently executing.",
		}),
		metricBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsync_transfer_bytes_total",
			Help: "Total bytes transferred, by direction.",
		}, []string{"direction"}),
		metricFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airsync_transfer_failures_total",
			Help: "Total transfers that exhausted retries and failed.",
		}),
	}

	if registry != nil {
		registry.MustRegister(ts.metricActive, ts.metricBytes, ts.metricFailures)
	}

	return ts
}

// RegisterPeer attaches the session used to talk to peerID and ensures
// its queue and concurrency semaphore exist.
func (ts *TransferScheduler) RegisterPeer(peerID string, session TransferSession) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.sessions[peerID] = session

	if _, ok := ts.queues[peerID]; !ok {
		ts.queues[peerID] = make(chan *TransferTask, defaultQueueDepth)
		ts.sems[peerID] = semaphore.NewWeighted(ts.maxPerPeer)
	}
}

// Enqueue places task on its peer's FIFO. The peer must already be
// registered via RegisterPeer.
func (ts *TransferScheduler) Enqueue(task *TransferTask) error {
	ts.mu.Lock()
	q, ok := ts.queues[task.PeerID]
	ts.mu.Unlock()

	if !ok {
		return NewSyncError(KindNotFound, "no queue for peer "+task.PeerID, nil)
	}

	task.State = TransferPending

	ts.mu.Lock()
	ts.tasks[task.TransferID] = task
	ts.mu.Unlock()

	select {
	case q <- task:
		return nil
	default:
		return NewSyncError(KindExhausted, "transfer queue full for peer "+task.PeerID, nil).WithRetryable(true)
	}
}

// Run drains every registered peer's queue until ctx is cancelled, running
// up to maxPerPeer transfers per peer concurrently.
func (ts *TransferScheduler) Run(ctx context.Context) {
	ts.mu.Lock()
	peers := make([]string, 0, len(ts.queues))
	for p := range ts.queues {
		peers = append(peers, p)
	}
	ts.mu.Unlock()

	var wg stdsync.WaitGroup

	for _, peerID := range peers {
		wg.Add(1)

		go func(peerID string) {
			defer wg.Done()
			ts.runPeerLoop(ctx, peerID)
		}(peerID)
	}

	wg.Wait()
}

func (ts *TransferScheduler) runPeerLoop(ctx context.Context, peerID string) {
	ts.mu.Lock()
	q := ts.queues[peerID]
	sem := ts.sems[peerID]
	ts.mu.Unlock()

	var wg stdsync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case task, ok := <-q:
			if !ok {
				wg.Wait()
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return
			}

			wg.Add(1)

			go func(task *TransferTask) {
				defer wg.Done()
				defer sem.Release(1)

				ts.execute(ctx, task)
			}(task)
		}
	}
}

// CancelTransfer removes a pending task from consideration and aborts an
// active one at its next suspension point. Idempotent.
func (ts *TransferScheduler) CancelTransfer(transferID string) {
	ts.mu.Lock()
	task, ok := ts.tasks[transferID]
	ts.mu.Unlock()

	if !ok {
		return
	}

	task.mu.Lock()
	cancel := task.cancel
	state := task.State
	task.mu.Unlock()

	if state == TransferCompleted || state == TransferCancelled {
		return
	}

	if cancel != nil {
		cancel()
	}

	task.setState(TransferCancelled)

	if task.LocalPath != "" {
		os.Remove(partialPath(task.LocalPath, transferID))
	}
}

// Task returns a point-in-time copy of a tracked task's state.
func (ts *TransferScheduler) Task(transferID string) (TransferTask, bool) {
	ts.mu.Lock()
	task, ok := ts.tasks[transferID]
	ts.mu.Unlock()

	if !ok {
		return TransferTask{}, false
	}

	return task.snapshot(), true
}

func partialPath(targetPath, transferID string) string {
	return filepath.Join(filepath.Dir(targetPath), ".part-"+transferID)
}

func (ts *TransferScheduler) execute(ctx context.Context, task *TransferTask) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	task.mu.Lock()
	if task.State == TransferCancelled {
		task.mu.Unlock()

		return
	}

	task.cancel = cancel
	task.mu.Unlock()

	task.setState(TransferActive)
	ts.metricActive.Inc()

	defer ts.metricActive.Dec()

	ts.mu.Lock()
	session := ts.sessions[task.PeerID]
	ts.mu.Unlock()

	var step time.Duration

	backoff := retry.WithMaxRetries(uint64(ts.maxRetries), retry.BackoffFunc(func() (time.Duration, bool) {
		step += time.Second

		return step, false
	}))

	attempt := 0

	err := retry.Do(taskCtx, backoff, func(ctx context.Context) error {
		attempt++
		task.RetryCount = attempt - 1

		var runErr error
		if task.Direction == TransferUpload {
			runErr = ts.runUpload(ctx, session, task)
		} else {
			runErr = ts.runDownload(ctx, session, task)
		}

		if runErr == nil {
			return nil
		}

		if IsKind(runErr, KindCancelled) {
			return runErr
		}

		ts.logger.Warn("transfer attempt failed, retrying",
			slog.String("transfer_id", task.TransferID),
			slog.Int("attempt", attempt),
			slog.String("error", runErr.Error()))

		return retry.RetryableError(runErr)
	})

	if err != nil {
		if IsKind(err, KindCancelled) {
			task.setState(TransferCancelled)

			return
		}

		task.setState(TransferFailed)
		ts.metricFailures.Inc()
		ts.logger.Error("transfer failed, retries exhausted",
			slog.String("transfer_id", task.TransferID), slog.String("error", err.Error()))

		return
	}

	task.setState(TransferCompleted)
}

// runUpload implements the §4.8 upload protocol for one file.
func (ts *TransferScheduler) runUpload(ctx context.Context, session TransferSession, task *TransferTask) error {
	f, err := os.Open(task.LocalPath)
	if err != nil {
		return NewSyncError(KindIO, "opening file for upload", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return NewSyncError(KindIO, "stat file for upload", err)
	}

	totalChunks := int((info.Size() + int64(ts.chunkSize) - 1) / int64(ts.chunkSize))
	if totalChunks == 0 {
		totalChunks = 1
	}

	initCtx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
	defer cancel()

	if err := session.SendTransferInit(initCtx, wire.TransferInit{
		TransferID: task.TransferID,
		File: wire.TransferFile{
			RelativePath: task.RelativePath,
			Size:         info.Size(),
			Hash:         task.ExpectedHash.String(),
			ModifiedAt:   info.ModTime(),
		},
		TotalChunks: totalChunks,
		ChunkSize:   ts.chunkSize,
	}); err != nil {
		return NewSyncError(KindNetwork, "sending transfer init", err).WithRetryable(true)
	}

	if err := ts.awaitInitAck(ctx, session, task.TransferID); err != nil {
		return err
	}

	buf := make([]byte, ts.chunkSize)
	resumeFrom := resumeChunkIndex(task)

	for idx := resumeFrom; idx < totalChunks; idx++ {
		n, readErr := f.ReadAt(buf, int64(idx)*int64(ts.chunkSize))
		if readErr != nil && readErr != io.EOF {
			return NewSyncError(KindIO, "reading chunk for upload", readErr)
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if err := ts.bandwidth.Wait(ctx, DirectionUpload, n); err != nil {
			return err
		}

		chunkDigest := hashsum.BlockHash(data)

		chunkCtx, chunkCancel := context.WithTimeout(ctx, chunkWireTimeout)
		sendErr := session.SendTransferChunk(chunkCtx, wire.TransferChunk{
			TransferID: task.TransferID,
			ChunkIndex: idx,
			Data:       data,
			Hash:       chunkDigest.String(),
		})
		chunkCancel()

		if sendErr != nil {
			return NewSyncError(KindNetwork, "sending chunk", sendErr).WithRetryable(true)
		}

		if err := ts.awaitChunkAck(ctx, session, task.TransferID, idx); err != nil {
			return err
		}

		task.BytesTransferred += int64(n)
		ts.metricBytes.WithLabelValues(task.Direction.bandwidthDirection().String()).Add(float64(n))
	}

	completeCtx, completeCancel := context.WithTimeout(ctx, chunkWireTimeout)
	defer completeCancel()

	if err := session.SendTransferComplete(completeCtx, wire.TransferComplete{
		TransferID: task.TransferID,
		FileHash:   task.ExpectedHash.String(),
	}); err != nil {
		return NewSyncError(KindNetwork, "sending transfer complete", err).WithRetryable(true)
	}

	return nil
}

// resumeChunkIndex reports where an upload retry should resume: chunk
// index covering the bytes already acknowledged in a prior attempt.
func resumeChunkIndex(task *TransferTask) int {
	if task.BytesTransferred == 0 {
		return 0
	}

	return int(task.BytesTransferred) / defaultChunkSize
}

func (ts *TransferScheduler) awaitInitAck(ctx context.Context, session TransferSession, transferID string) error {
	ctx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
	defer cancel()

	msg, err := session.Next(ctx)
	if err != nil {
		return NewSyncError(KindNetwork, "awaiting init-ack", err).WithRetryable(true)
	}

	if msg.TransferInitAck == nil || msg.TransferInitAck.TransferID != transferID {
		return NewSyncError(KindProtocolViolation, "expected init-ack for "+transferID, nil)
	}

	return nil
}

func (ts *TransferScheduler) awaitChunkAck(ctx context.Context, session TransferSession, transferID string, chunkIndex int) error {
	ctx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
	defer cancel()

	msg, err := session.Next(ctx)
	if err != nil {
		return NewSyncError(KindNetwork, "awaiting chunk-ack", err).WithRetryable(true)
	}

	if msg.TransferChunkError != nil && msg.TransferChunkError.TransferID == transferID {
		return NewSyncError(KindIntegrity, "chunk "+strconv.Itoa(chunkIndex)+" rejected: "+msg.TransferChunkError.Reason, nil).WithRetryable(true)
	}

	if msg.TransferChunkAck == nil || msg.TransferChunkAck.TransferID != transferID || msg.TransferChunkAck.ChunkIndex != chunkIndex {
		return NewSyncError(KindProtocolViolation, "expected chunk-ack for "+transferID, nil)
	}

	return nil
}

// runDownload implements the §4.8 download protocol: request the file,
// then drive the receiver side of the same init/chunk/complete exchange.
func (ts *TransferScheduler) runDownload(ctx context.Context, session TransferSession, task *TransferTask) error {
	requestCtx, cancel := context.WithTimeout(ctx, chunkWireTimeout)

	err := session.SendRequestFile(requestCtx, wire.RequestFile{
		TransferID:   task.TransferID,
		FolderID:     task.FolderID,
		RelativePath: task.RelativePath,
		Hash:         task.ExpectedHash.String(),
	})
	cancel()

	if err != nil {
		return NewSyncError(KindNetwork, "sending file request", err).WithRetryable(true)
	}

	partPath := partialPath(task.LocalPath, task.TransferID)

	var out *os.File

	defer func() {
		if out != nil {
			out.Close()
		}
	}()

	for {
		msg, err := ts.nextWithTimeout(ctx, session)
		if err != nil {
			return err
		}

		switch {
		case msg.Error != nil:
			return NewSyncError(KindNetwork, "peer reported error: "+msg.Error.Message, nil).WithRetryable(msg.Error.Retryable)

		case msg.TransferInit != nil:
			if msg.TransferInit.TransferID != task.TransferID {
				continue
			}

			out, err = openResumable(partPath)
			if err != nil {
				return err
			}

			ackCtx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
			err = session.SendTransferInitAck(ackCtx, wire.TransferInitAck{TransferID: task.TransferID})
			cancel()

			if err != nil {
				return NewSyncError(KindNetwork, "sending init-ack", err).WithRetryable(true)
			}

		case msg.TransferChunk != nil:
			if msg.TransferChunk.TransferID != task.TransferID {
				continue
			}

			if out == nil {
				var openErr error

				out, openErr = openResumable(partPath)
				if openErr != nil {
					return openErr
				}
			}

			if err := ts.writeChunk(ctx, session, task, out, *msg.TransferChunk); err != nil {
				return err
			}

		case msg.TransferComplete != nil:
			if msg.TransferComplete.TransferID != task.TransferID {
				continue
			}

			return ts.finishDownload(out, partPath, task, msg.TransferComplete.FileHash)
		}
	}
}

func (ts *TransferScheduler) nextWithTimeout(ctx context.Context, session TransferSession) (wire.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
	defer cancel()

	msg, err := session.Next(ctx)
	if err != nil {
		return wire.Message{}, NewSyncError(KindNetwork, "awaiting transfer message", err).WithRetryable(true)
	}

	return msg, nil
}

func (ts *TransferScheduler) writeChunk(ctx context.Context, session TransferSession, task *TransferTask, out *os.File, chunk wire.TransferChunk) error {
	gotDigest := hashsum.BlockHash(chunk.Data)
	if gotDigest.String() != chunk.Hash {
		chunkCtx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
		sendErr := session.SendTransferChunkError(chunkCtx, wire.TransferChunkError{
			TransferID: chunk.TransferID,
			ChunkIndex: chunk.ChunkIndex,
			Reason:     "hash mismatch",
		})
		cancel()

		if sendErr != nil {
			ts.logger.Warn("failed to send chunk-error", slog.String("error", sendErr.Error()))
		}

		return NewSyncError(KindIntegrity, "chunk hash mismatch", nil).WithRetryable(true)
	}

	if err := ts.bandwidth.Wait(ctx, DirectionDownload, len(chunk.Data)); err != nil {
		return err
	}

	if _, err := out.WriteAt(chunk.Data, int64(chunk.ChunkIndex)*int64(ts.chunkSize)); err != nil {
		return NewSyncError(KindIO, "writing downloaded chunk", err)
	}

	ackCtx, cancel := context.WithTimeout(ctx, chunkWireTimeout)
	ackErr := session.SendTransferChunkAck(ackCtx, wire.TransferChunkAck{TransferID: chunk.TransferID, ChunkIndex: chunk.ChunkIndex})
	cancel()

	if ackErr != nil {
		return NewSyncError(KindNetwork, "sending chunk-ack", ackErr).WithRetryable(true)
	}

	task.BytesTransferred += int64(len(chunk.Data))
	ts.metricBytes.WithLabelValues(task.Direction.bandwidthDirection().String()).Add(float64(len(chunk.Data)))

	return nil
}

func (ts *TransferScheduler) finishDownload(out *os.File, partPath string, task *TransferTask, fileHash string) error {
	if out != nil {
		if err := out.Close(); err != nil {
			return NewSyncError(KindIO, "closing partial download file", err)
		}
	}

	data, err := os.ReadFile(partPath)
	if err != nil {
		return NewSyncError(KindIO, "reading completed partial file", err)
	}

	gotDigest, err := hashsum.HashReader(bytes.NewReader(data), defaultSnapshotBlockSize)
	if err != nil {
		return NewSyncError(KindIO, "hashing downloaded file", err)
	}

	if gotDigest.ContentHash.String() != fileHash {
		os.Remove(partPath)

		return NewSyncError(KindIntegrity, "whole-file hash mismatch on download completion", nil)
	}

	if err := os.Rename(partPath, task.LocalPath); err != nil {
		return NewSyncError(KindIO, "renaming completed download into place", err)
	}

	return nil
}

func openResumable(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, NewSyncError(KindIO, "opening partial download file", err)
	}

	return f, nil
}
