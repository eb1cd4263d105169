package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/meshpay/meshledger/ledger"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

const (
	WireVersion = 1
	// MaxMessageSize bounds a single gossip or sync message
	MaxMessageSize = 8 << 20
)

type MessageType uint8

const (
	MsgDeltaAnnounce MessageType = iota + 1
	MsgSyncRequest
	MsgSyncResponse
)

func (t MessageType) String() string {
	switch t {
	case MsgDeltaAnnounce:
		return "delta_announce"
	case MsgSyncRequest:
		return "sync_request"
	case MsgSyncResponse:
		return "sync_response"
	default:
		return "unknown"
	}
}

// Envelope frames every message exchanged between nodes. Payload holds
// the msgpack encoding of the type-specific body.
type Envelope struct {
	Version uint8       `msgpack:"v"`
	Type    MessageType `msgpack:"t"`
	Origin  string      `msgpack:"o"`
	SentAt  int64       `msgpack:"s"`
	Payload []byte      `msgpack:"p"`
}

// SyncRequest asks a peer for everything it changed after Since.
type SyncRequest struct {
	Since uint64 `msgpack:"since"`
}

func newEnvelope(t MessageType, origin string, body interface{}) (*Envelope, error) {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s body", t)
	}
	return &Envelope{
		Version: WireVersion,
		Type:    t,
		Origin:  origin,
		SentAt:  time.Now().UnixMilli(),
		Payload: payload,
	}, nil
}

func NewDeltaAnnounce(origin string, d *ledger.Delta) (*Envelope, error) {
	return newEnvelope(MsgDeltaAnnounce, origin, d)
}

func NewSyncRequest(origin string, since uint64) (*Envelope, error) {
	return newEnvelope(MsgSyncRequest, origin, &SyncRequest{Since: since})
}

func NewSyncResponse(origin string, d *ledger.Delta) (*Envelope, error) {
	return newEnvelope(MsgSyncResponse, origin, d)
}

// Marshal encodes the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}
	if len(data) > MaxMessageSize {
		return nil, errors.Errorf("message of %d bytes exceeds limit %d", len(data), MaxMessageSize)
	}
	return data, nil
}

// Unmarshal decodes and checks an envelope received from the wire.
func Unmarshal(data []byte) (*Envelope, error) {
	if len(data) > MaxMessageSize {
		return nil, errors.Errorf("message of %d bytes exceeds limit %d", len(data), MaxMessageSize)
	}
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "failed to decode envelope")
	}
	if err := e.check(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Envelope) check() error {
	if e.Version != WireVersion {
		return errors.Errorf("unsupported wire version %d", e.Version)
	}
	switch e.Type {
	case MsgDeltaAnnounce, MsgSyncRequest, MsgSyncResponse:
		return nil
	default:
		return errors.Errorf("unknown message type %d", e.Type)
	}
}

// Delta decodes the body of an announce or sync response.
func (e *Envelope) Delta() (*ledger.Delta, error) {
	if e.Type != MsgDeltaAnnounce && e.Type != MsgSyncResponse {
		return nil, errors.Errorf("%s carries no delta", e.Type)
	}
	var d ledger.Delta
	if err := msgpack.Unmarshal(e.Payload, &d); err != nil {
		return nil, errors.Wrap(err, "failed to decode delta")
	}
	return &d, nil
}

func (e *Envelope) SyncRequest() (*SyncRequest, error) {
	if e.Type != MsgSyncRequest {
		return nil, errors.Errorf("%s is not a sync request", e.Type)
	}
	var r SyncRequest
	if err := msgpack.Unmarshal(e.Payload, &r); err != nil {
		return nil, errors.Wrap(err, "failed to decode sync request")
	}
	return &r, nil
}

// MessageID identifies raw message bytes for deduplication.
func MessageID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteEnvelope writes one envelope to a stream.
func WriteEnvelope(w io.Writer, e *Envelope) error {
	if err := msgpack.NewEncoder(w).Encode(e); err != nil {
		return errors.Wrap(err, "failed to write envelope")
	}
	return nil
}

// ReadEnvelope reads one envelope from a stream. r should implement
// io.ByteScanner (bufio.Reader, bytes.Buffer); otherwise the decoder
// buffers internally and may consume bytes of the next message.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var e Envelope
	if err := msgpack.NewDecoder(r).Decode(&e); err != nil {
		return nil, errors.Wrap(err, "failed to read envelope")
	}
	if len(e.Payload) > MaxMessageSize {
		return nil, errors.Errorf("payload of %d bytes exceeds limit %d", len(e.Payload), MaxMessageSize)
	}
	if err := e.check(); err != nil {
		return nil, err
	}
	return &e, nil
}
