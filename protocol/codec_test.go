package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/genwire"
)

func sampleRequest() *GeneratorRequest {
	return &GeneratorRequest{
		ID:                "req-1",
		RootDirectory:     "/src/app",
		Package:           "api",
		DocumentFileNames: []string{"schema.graphqls", "queries/user.graphql"},
		Options:           map[string]string{"b": "2", "a": "1", "c": "3"},
	}
}

func sampleResponse() *GeneratorResponse {
	return &GeneratorResponse{
		ID: "req-1",
		Documents: []SourceDocument{
			{Name: "user", Path: "user.go", Kind: DocumentGo, SourceText: "package api\n", Hash: "abc"},
		},
		Errors: []GeneratorError{
			{Code: "GQL0001", Message: "unknown field", FilePath: "queries/user.graphql", Line: 3, Column: 5},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
	}{
		{"request", sampleRequest()},
		{"response", sampleResponse()},
		{"close", &CloseMessage{}},
		{"empty request", &GeneratorRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, NewEncoder(&buf).Encode(tt.msg))

			got, err := NewDecoder(&buf).Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Kind(), got.Kind())
			assert.Equal(t, tt.msg, got)
			assert.Zero(t, buf.Len(), "decoder must consume the whole frame")
		})
	}
}

func TestMarshalLayout(t *testing.T) {
	frame, err := Marshal(&CloseMessage{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, byte(KindClose)}, frame)

	frame, err = Marshal(sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, uint32(len(frame)-4), binary.BigEndian.Uint32(frame[:4]))
	assert.Equal(t, byte(KindRequest), frame[4])
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(sampleRequest())
	require.NoError(t, err)
	for range 20 {
		again, err := Marshal(sampleRequest())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestMarshalRejectsNil(t *testing.T) {
	_, err := Marshal(nil)
	require.Error(t, err)
}

func TestDecodeIncremental(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(sampleRequest()))
	require.NoError(t, enc.Encode(&CloseMessage{}))
	require.NoError(t, enc.Encode(sampleResponse()))

	dec := NewDecoder(iotest.OneByteReader(&buf))
	msg, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, sampleRequest(), msg)

	msg, err = dec.Decode()
	require.NoError(t, err)
	assert.IsType(t, &CloseMessage{}, msg)

	msg, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, sampleResponse(), msg)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeDoesNotReadAhead(t *testing.T) {
	first, err := Marshal(sampleRequest())
	require.NoError(t, err)
	second, err := Marshal(&CloseMessage{})
	require.NoError(t, err)

	r := bytes.NewReader(append(append([]byte{}, first...), second...))
	_, err = NewDecoder(r).Decode()
	require.NoError(t, err)
	assert.Equal(t, len(second), r.Len())
}

func TestDecodeEndOfStream(t *testing.T) {
	frame, err := Marshal(sampleRequest())
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty stream", nil},
		{"partial length", frame[:2]},
		{"missing kind", frame[:4]},
		{"partial body", frame[:len(frame)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.data)).Decode()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestDecodeClosedStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	require.NoError(t, pr.Close())

	_, err := NewDecoder(pr).Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeClosedWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := NewDecoder(pr).Decode()
		errc <- err
	}()
	require.NoError(t, pr.Close())
	assert.Equal(t, io.EOF, <-errc)
}

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewDecoder(iotest.ErrReader(boom)).Decode()
	require.Error(t, err)
	assert.True(t, genwire.IsTransportClosed(err))
	assert.ErrorIs(t, err, boom)
	assert.False(t, genwire.IsDecodeError(err))
}

func TestDecodeMalformed(t *testing.T) {
	header := func(n uint32, kind byte) []byte {
		b := make([]byte, 5)
		binary.BigEndian.PutUint32(b, n)
		b[4] = kind
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"zero length", []byte{0, 0, 0, 0}},
		{"oversized", header(DefaultMaxFrameSize+1, byte(KindRequest))},
		{"unknown kind", header(1, 42)},
		{"close with payload", append(header(2, byte(KindClose)), 0xc0)},
		{"request without body", header(1, byte(KindRequest))},
		{"garbage body", append(header(3, byte(KindResponse)), 0xc1, 0xc1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.data)).Decode()
			require.Error(t, err)
			assert.True(t, genwire.IsDecodeError(err), "got %v", err)
		})
	}
}

func TestDecoderMaxFrameSize(t *testing.T) {
	frame, err := Marshal(sampleResponse())
	require.NoError(t, err)

	dec := NewDecoder(bytes.NewReader(frame))
	dec.SetMaxFrameSize(8)
	_, err = dec.Decode()
	assert.True(t, genwire.IsDecodeError(err))

	dec = NewDecoder(bytes.NewReader(frame))
	dec.SetMaxFrameSize(0)
	_, err = dec.Decode()
	assert.NoError(t, err)
}

func TestEncodeWriteError(t *testing.T) {
	pr, pw := io.Pipe()
	require.NoError(t, pr.Close())

	err := NewEncoder(pw).Encode(&CloseMessage{})
	require.Error(t, err)
	assert.True(t, genwire.IsTransportClosed(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "close", KindClose.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}

func TestGeneratorError(t *testing.T) {
	e := GeneratorError{Code: "GQL", Message: "bad", FilePath: "a.graphql", Line: 2, Column: 4}
	assert.Equal(t, "a.graphql:2:4: bad (GQL)", e.Error())
	e.Line = 0
	assert.Equal(t, "a.graphql: bad (GQL)", e.Error())
	e.FilePath = ""
	assert.Equal(t, "bad (GQL)", e.Error())
}

func TestRequestOption(t *testing.T) {
	r := &GeneratorRequest{Options: map[string]string{"cacheControl": "true"}}
	assert.Equal(t, "true", r.Option("cacheControl", "false"))
	assert.Equal(t, "x", r.Option("missing", "x"))
	assert.Equal(t, "x", (&GeneratorRequest{}).Option("missing", "x"))
}
