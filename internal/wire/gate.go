package wire

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// defaultAdmissionRate is the per-peer inbound frame budget: 100 req/min.
	defaultAdmissionRate = 100
	// replayWindow is how long a nonce is remembered after first use.
	replayWindow = 10 * time.Second
)

// PeerGate wraps a SecureChannel with the admission control every inbound
// frame is subject to: a per-peer token bucket (default 100 req/min) and
// a nonce replay detector with a 10s window. It implements SecureChannel
// itself, so a Session built on top of a gated channel never has to know
// admission happened underneath it.
type PeerGate struct {
	channel SecureChannel
	limiter *rate.Limiter

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewPeerGate wraps channel with admission control. reqPerMinute <= 0
// falls back to defaultAdmissionRate.
func NewPeerGate(channel SecureChannel, reqPerMinute int) *PeerGate {
	if reqPerMinute <= 0 {
		reqPerMinute = defaultAdmissionRate
	}

	return &PeerGate{
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(float64(reqPerMinute)/60.0), reqPerMinute),
		seen:    make(map[string]time.Time),
	}
}

// Send stamps env with a fresh nonce, so the peer on the other end can run
// its own replay check on it, and forwards it unchanged otherwise.
func (g *PeerGate) Send(ctx context.Context, env Envelope) error {
	if env.Nonce == "" {
		env.Nonce = uuid.NewString()
	}

	return g.channel.Send(ctx, env)
}

// Receive returns the next envelope that passes admission: the token
// bucket has a point available and the envelope's nonce hasn't been seen
// within replayWindow. Frames that fail either check are dropped and
// Receive keeps waiting for the next one rather than surfacing an error,
// since a throttled or replayed frame isn't a channel-level failure.
func (g *PeerGate) Receive(ctx context.Context) (Envelope, error) {
	for {
		env, err := g.channel.Receive(ctx)
		if err != nil {
			return Envelope{}, err
		}

		if !g.limiter.Allow() {
			continue
		}

		if g.isReplay(env.Nonce) {
			continue
		}

		return env, nil
	}
}

func (g *PeerGate) isReplay(nonce string) bool {
	if nonce == "" {
		return false
	}

	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for n, seenAt := range g.seen {
		if now.Sub(seenAt) > replayWindow {
			delete(g.seen, n)
		}
	}

	if _, ok := g.seen[nonce]; ok {
		return true
	}

	g.seen[nonce] = now

	return false
}

// Close releases the wrapped channel.
func (g *PeerGate) Close() error {
	return g.channel.Close()
}
