package wire

import (
	"context"
	"sync"
)

// pipeChannel is an in-memory SecureChannel used by tests to exercise
// Session without a real transport. Two pipeChannels created by
// newPipePair are cross-wired: sending on one is receiving on the other.
type pipeChannel struct {
	out    chan Envelope
	in     chan Envelope
	mu     sync.Mutex
	closed bool
}

func newPipePair() (*pipeChannel, *pipeChannel) {
	a := make(chan Envelope, 16)
	b := make(chan Envelope, 16)

	return &pipeChannel{out: a, in: b}, &pipeChannel{out: b, in: a}
}

func (p *pipeChannel) Send(ctx context.Context, env Envelope) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}

	select {
	case p.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeChannel) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env, ok := <-p.in:
		if !ok {
			return Envelope{}, ErrChannelClosed
		}

		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (p *pipeChannel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.out)

	return nil
}
