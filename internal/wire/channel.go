package wire

import (
	"context"
	"encoding/json"
)

// Envelope is the outer frame every wire message travels in: a type tag
// plus the type-specific payload, deferred-decoded so Session can
// dispatch on Type before committing to a concrete struct.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Nonce is stamped by PeerGate.Send and checked by PeerGate.Receive on
	// the far end to suppress replayed frames. Empty on a channel with no
	// gate in front of it.
	Nonce string `json:"nonce,omitempty"`
}

// SecureChannel is the transport a Session sends and receives Envelopes
// over. Pairing, key exchange, and transport encryption are out of scope
// for this package and live entirely behind this interface — a Session
// never knows or cares whether the channel is a TLS socket, a QUIC
// stream, or an in-memory pipe in a test.
type SecureChannel interface {
	// Send writes one envelope, blocking until it is handed to the
	// transport or ctx is done.
	Send(ctx context.Context, env Envelope) error

	// Receive reads the next envelope, blocking until one arrives, the
	// channel is closed (ErrChannelClosed), or ctx is done.
	Receive(ctx context.Context) (Envelope, error)

	// Close releases the underlying transport. Safe to call more than
	// once.
	Close() error
}

// encodeEnvelope marshals a typed payload into an Envelope of the given
// type tag.
func encodeEnvelope(msgType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, &ProtocolError{MessageType: msgType, Detail: "encoding payload", Err: ErrMalformedPayload}
	}

	return Envelope{Type: msgType, Payload: data}, nil
}

// decodeEnvelope unmarshals env's payload into dst, which must be a
// pointer to the struct matching env.Type.
func decodeEnvelope(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return &ProtocolError{MessageType: env.Type, Detail: err.Error(), Err: ErrMalformedPayload}
	}

	return nil
}
