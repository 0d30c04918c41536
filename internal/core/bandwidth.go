package core

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes a limiter's token bucket burst relative to its
// per-second rate, letting short bursts spend savings from a quiet period
// without lowering sustained throughput below the configured limit.
const burstMultiplier = 2

// Direction distinguishes the two independently-limited transfer flows.
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

func (d Direction) String() string {
	if d == DirectionDownload {
		return "download"
	}

	return "upload"
}

// BandwidthLimiter enforces the global uploadKBps/downloadKBps caps shared
// by every transfer in both directions. A zero limit means unlimited and
// is represented by a nil *rate.Limiter for that direction, so Wait is a
// no-op rather than branching on a sentinel value everywhere it's called.
//
// Token-bucket smoothing (WaitN against a rate.Limiter with a small burst)
// is the standard-library-adjacent way to hold "average bandwidth over any
// window doesn't exceed the limit by more than a small margin" — the same
// contract the wire protocol's adaptive per-chunk throttling targets,
// achieved here without hand-rolling a sleep-duration formula per chunk.
type BandwidthLimiter struct {
	mu       sync.RWMutex
	upload   *rate.Limiter
	download *rate.Limiter
	logger   *slog.Logger
}

// NewBandwidthLimiter constructs a limiter from KB/s caps; 0 means
// unlimited for that direction.
func NewBandwidthLimiter(uploadKBps, downloadKBps int64, logger *slog.Logger) *BandwidthLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	bl := &BandwidthLimiter{logger: logger}
	bl.SetLimit(DirectionUpload, uploadKBps)
	bl.SetLimit(DirectionDownload, downloadKBps)

	return bl
}

// SetLimit reconfigures one direction's cap at runtime; PolicyGate calls
// this to apply a quiet-hours limit-speed advisory and to lift it again
// once the window ends. kbps <= 0 means unlimited.
func (bl *BandwidthLimiter) SetLimit(dir Direction, kbps int64) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	var limiter *rate.Limiter

	if kbps > 0 {
		bytesPerSec := kbps * 1024
		burst := int(bytesPerSec) * burstMultiplier
		limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	}

	if dir == DirectionDownload {
		bl.download = limiter
	} else {
		bl.upload = limiter
	}

	bl.logger.Debug("bandwidth limit set", slog.String("direction", dir.String()), slog.Int64("kbps", kbps))
}

// Wait blocks until n bytes' worth of tokens are available in dir's
// bucket, or ctx is done. A request larger than the bucket's burst is
// split into burst-sized waits since rate.Limiter.WaitN rejects oversized
// single requests.
func (bl *BandwidthLimiter) Wait(ctx context.Context, dir Direction, n int) error {
	bl.mu.RLock()
	limiter := bl.upload
	if dir == DirectionDownload {
		limiter = bl.download
	}
	bl.mu.RUnlock()

	if limiter == nil || n <= 0 {
		return nil
	}

	burst := limiter.Burst()

	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}

		if err := limiter.WaitN(ctx, take); err != nil {
			return NewSyncError(KindCancelled, "waiting for bandwidth token", err)
		}

		n -= take
	}

	return nil
}
