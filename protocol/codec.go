package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/genwire"
)

const (
	// headerSize is the length prefix plus the kind byte.
	headerSize = 5

	// DefaultMaxFrameSize bounds the length prefix accepted by a Decoder.
	DefaultMaxFrameSize = 64 << 20
)

// Marshal encodes msg into exactly one frame:
//
//	length u32 (big endian) | kind u8 | msgpack body
//
// The length counts the kind byte and the body.
func Marshal(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("genwire/protocol: nil message")
	}
	var body []byte
	switch m := msg.(type) {
	case *CloseMessage:
	case *GeneratorRequest, *GeneratorResponse:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("genwire/protocol: encode %s: %w", msg.Kind(), err)
		}
		body = buf.Bytes()
	default:
		return nil, fmt.Errorf("genwire/protocol: unsupported message %T", msg)
	}
	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = byte(msg.Kind())
	copy(frame[headerSize:], body)
	return frame, nil
}

// Unmarshal decodes the kind byte and body of a frame whose length prefix
// was already consumed.
func Unmarshal(kind Kind, body []byte) (Message, error) {
	var msg Message
	switch kind {
	case KindRequest:
		msg = &GeneratorRequest{}
	case KindResponse:
		msg = &GeneratorResponse{}
	case KindClose:
		if len(body) != 0 {
			return nil, genwire.NewDecodeError(uint8(kind), "close message carries a payload", nil)
		}
		return &CloseMessage{}, nil
	default:
		return nil, genwire.NewDecodeError(uint8(kind), "unknown message kind", nil)
	}
	if err := msgpack.Unmarshal(body, msg); err != nil {
		return nil, genwire.NewDecodeError(uint8(kind), "decode body", err)
	}
	return msg, nil
}

// Encoder writes frames to a stream. It is not safe for concurrent use.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes msg as one frame in a single Write call.
func (e *Encoder) Encode(msg Message) error {
	frame, err := Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return genwire.NewTransportError("write", err)
	}
	return nil
}

// Decoder reads frames from a stream. It reads exactly the bytes of one
// frame per call and never buffers ahead. It is not safe for concurrent use.
type Decoder struct {
	r   io.Reader
	max int
	hdr [headerSize]byte
}

// NewDecoder returns a Decoder reading from r that accepts frames up to
// DefaultMaxFrameSize.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, max: DefaultMaxFrameSize}
}

// SetMaxFrameSize changes the largest accepted frame. Values <= 0 restore
// the default.
func (d *Decoder) SetMaxFrameSize(n int) {
	if n <= 0 {
		n = DefaultMaxFrameSize
	}
	d.max = n
}

// Decode blocks until one full frame is available and returns its message.
//
// It returns io.EOF when the stream ends, whether at a frame boundary or in
// the middle of a frame, and when the stream is closed while reading.
// Malformed frames yield a *genwire.DecodeError and other read failures a
// *genwire.TransportError.
func (d *Decoder) Decode() (Message, error) {
	if err := d.read(d.hdr[:4]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(d.hdr[:4])
	switch {
	case n == 0:
		return nil, genwire.NewDecodeError(0, "empty frame", nil)
	case uint64(n) > uint64(d.max):
		return nil, genwire.NewDecodeError(0, fmt.Sprintf("frame size %d exceeds limit %d", n, d.max), nil)
	}
	if err := d.read(d.hdr[4:5]); err != nil {
		return nil, err
	}
	kind := Kind(d.hdr[4])
	var body []byte
	if n > 1 {
		body = make([]byte, n-1)
		if err := d.read(body); err != nil {
			return nil, err
		}
	}
	return Unmarshal(kind, body)
}

func (d *Decoder) read(p []byte) error {
	_, err := io.ReadFull(d.r, p)
	switch {
	case err == nil:
		return nil
	case isEndOfStream(err):
		return io.EOF
	default:
		return genwire.NewTransportError("read", err)
	}
}

// isEndOfStream reports whether err means the stream is gone rather than
// broken.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}
