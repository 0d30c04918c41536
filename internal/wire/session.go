package wire

import (
	"context"
	"log/slog"
)

// Session is the typed send/receive surface over one established
// SecureChannel with one paired peer. It owns no retry or scheduling
// logic — callers (TransferScheduler, SyncOrchestrator) decide what to
// send and when; Session only handles encode/decode and logging.
type Session struct {
	channel SecureChannel
	logger  *slog.Logger
}

// NewSession wraps an established channel. logger is annotated with
// nothing peer-specific here; callers typically pass a logger already
// carrying the peer id.
func NewSession(channel SecureChannel, logger *slog.Logger) *Session {
	return &Session{channel: channel, logger: logger}
}

// Close releases the underlying channel.
func (s *Session) Close() error {
	return s.channel.Close()
}

func (s *Session) send(ctx context.Context, msgType string, payload any) error {
	env, err := encodeEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	s.logger.Debug("wire: sending", slog.String("type", msgType))

	return s.channel.Send(ctx, env)
}

// SendFileListRequest asks the peer for its view of one folder.
func (s *Session) SendFileListRequest(ctx context.Context, req FileListRequest) error {
	return s.send(ctx, TypeFileListRequest, req)
}

// SendFileListResponse replies to a FileListRequest.
func (s *Session) SendFileListResponse(ctx context.Context, resp FileListResponse) error {
	return s.send(ctx, TypeFileListResponse, resp)
}

// SendTransferInit opens a new transfer.
func (s *Session) SendTransferInit(ctx context.Context, init TransferInit) error {
	return s.send(ctx, TypeTransferInit, init)
}

// SendTransferInitAck acknowledges a TransferInit.
func (s *Session) SendTransferInitAck(ctx context.Context, ack TransferInitAck) error {
	return s.send(ctx, TypeTransferInitAck, ack)
}

// SendTransferChunk sends one chunk of an open transfer.
func (s *Session) SendTransferChunk(ctx context.Context, chunk TransferChunk) error {
	return s.send(ctx, TypeTransferChunk, chunk)
}

// SendTransferChunkAck acknowledges one chunk.
func (s *Session) SendTransferChunkAck(ctx context.Context, ack TransferChunkAck) error {
	return s.send(ctx, TypeTransferChunkAck, ack)
}

// SendTransferChunkError reports a chunk that failed verification.
func (s *Session) SendTransferChunkError(ctx context.Context, chunkErr TransferChunkError) error {
	return s.send(ctx, TypeTransferChunkError, chunkErr)
}

// SendTransferComplete closes a transfer.
func (s *Session) SendTransferComplete(ctx context.Context, complete TransferComplete) error {
	return s.send(ctx, TypeTransferComplete, complete)
}

// SendRequestFile asks the peer to start sending a file.
func (s *Session) SendRequestFile(ctx context.Context, req RequestFile) error {
	return s.send(ctx, TypeRequestFile, req)
}

// SendHeartbeat sends a keepalive.
func (s *Session) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	return s.send(ctx, TypeHeartbeat, hb)
}

// SendHeartbeatAck answers a Heartbeat.
func (s *Session) SendHeartbeatAck(ctx context.Context, ack HeartbeatAck) error {
	return s.send(ctx, TypeHeartbeatAck, ack)
}

// SendError reports a protocol-level failure not specific to one chunk.
func (s *Session) SendError(ctx context.Context, msg ErrorMessage) error {
	return s.send(ctx, TypeError, msg)
}

// Message is a decoded incoming envelope: exactly one of the typed
// fields is populated, matching Type.
type Message struct {
	Type string

	FileListRequest    *FileListRequest
	FileListResponse   *FileListResponse
	TransferInit       *TransferInit
	TransferInitAck    *TransferInitAck
	TransferChunk      *TransferChunk
	TransferChunkAck   *TransferChunkAck
	TransferChunkError *TransferChunkError
	TransferComplete   *TransferComplete
	RequestFile        *RequestFile
	Heartbeat          *Heartbeat
	HeartbeatAck       *HeartbeatAck
	Error              *ErrorMessage
}

// Next blocks for the next incoming envelope and decodes it into a
// Message. An unrecognized Type or a payload that doesn't match its
// declared Type yields a *ProtocolError wrapping ErrUnknownMessageType or
// ErrMalformedPayload respectively — both are ProtocolViolation-kind
// failures at the core layer.
func (s *Session) Next(ctx context.Context) (Message, error) {
	env, err := s.channel.Receive(ctx)
	if err != nil {
		return Message{}, err
	}

	s.logger.Debug("wire: received", slog.String("type", env.Type))

	msg := Message{Type: env.Type}

	var decodeErr error

	switch env.Type {
	case TypeFileListRequest:
		msg.FileListRequest = new(FileListRequest)
		decodeErr = decodeEnvelope(env, msg.FileListRequest)
	case TypeFileListResponse:
		msg.FileListResponse = new(FileListResponse)
		decodeErr = decodeEnvelope(env, msg.FileListResponse)
	case TypeTransferInit:
		msg.TransferInit = new(TransferInit)
		decodeErr = decodeEnvelope(env, msg.TransferInit)
	case TypeTransferInitAck:
		msg.TransferInitAck = new(TransferInitAck)
		decodeErr = decodeEnvelope(env, msg.TransferInitAck)
	case TypeTransferChunk:
		msg.TransferChunk = new(TransferChunk)
		decodeErr = decodeEnvelope(env, msg.TransferChunk)
	case TypeTransferChunkAck:
		msg.TransferChunkAck = new(TransferChunkAck)
		decodeErr = decodeEnvelope(env, msg.TransferChunkAck)
	case TypeTransferChunkError:
		msg.TransferChunkError = new(TransferChunkError)
		decodeErr = decodeEnvelope(env, msg.TransferChunkError)
	case TypeTransferComplete:
		msg.TransferComplete = new(TransferComplete)
		decodeErr = decodeEnvelope(env, msg.TransferComplete)
	case TypeRequestFile:
		msg.RequestFile = new(RequestFile)
		decodeErr = decodeEnvelope(env, msg.RequestFile)
	case TypeHeartbeat:
		msg.Heartbeat = new(Heartbeat)
		decodeErr = decodeEnvelope(env, msg.Heartbeat)
	case TypeHeartbeatAck:
		msg.HeartbeatAck = new(HeartbeatAck)
		decodeErr = decodeEnvelope(env, msg.HeartbeatAck)
	case TypeError:
		msg.Error = new(ErrorMessage)
		decodeErr = decodeEnvelope(env, msg.Error)
	default:
		return Message{}, &ProtocolError{MessageType: env.Type, Detail: "no handler for this type", Err: ErrUnknownMessageType}
	}

	if decodeErr != nil {
		return Message{}, decodeErr
	}

	return msg, nil
}
