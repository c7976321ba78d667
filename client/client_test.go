package client_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/client"
	"github.com/syssam/genwire/protocol"
	"github.com/syssam/genwire/worker"
)

const workerEnv = "GENWIRE_TEST_WORKER"

// TestMain turns the test binary into a worker process when workerEnv is set.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		srv := worker.NewServer(os.Stdin, os.Stdout, worker.GeneratorFunc(generated))
		if err := srv.Serve(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func generated(_ context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error) {
	return &protocol.GeneratorResponse{
		Documents: []protocol.SourceDocument{{
			Kind:       protocol.DocumentGo,
			SourceText: req.Option("payload", "") + "-generated",
		}},
	}, nil
}

// peer plays the worker end of an in-memory stream pair.
type peer struct {
	t   *testing.T
	dec *protocol.Decoder
	enc *protocol.Encoder
	out *io.PipeWriter // worker to client
}

func newClient(t *testing.T) (*client.Client, *peer) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	c, err := client.New(inR, outW)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = inW.Close()
		_ = outR.Close()
	})
	return c, &peer{
		t:   t,
		dec: protocol.NewDecoder(outR),
		enc: protocol.NewEncoder(inW),
		out: inW,
	}
}

func (p *peer) read() protocol.Message {
	msg, err := p.dec.Decode()
	require.NoError(p.t, err)
	return msg
}

func (p *peer) request() *protocol.GeneratorRequest {
	msg := p.read()
	req, ok := msg.(*protocol.GeneratorRequest)
	require.True(p.t, ok, "got %T", msg)
	return req
}

func (p *peer) reply(id, text string) {
	require.NoError(p.t, p.enc.Encode(&protocol.GeneratorResponse{
		ID:        id,
		Documents: []protocol.SourceDocument{{SourceText: text}},
	}))
}

// generate runs Generate on its own goroutine.
func generate(c *client.Client, ctx context.Context, req *protocol.GeneratorRequest) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		resp, err := c.Generate(ctx, req)
		ch <- outcome{resp, err}
	}()
	return ch
}

type outcome struct {
	resp *protocol.GeneratorResponse
	err  error
}

func await(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return")
		return outcome{}
	}
}

func payload(s string) *protocol.GeneratorRequest {
	return &protocol.GeneratorRequest{Options: map[string]string{"payload": s}}
}

func TestGenerateShutdownDispose(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)
	ctx := context.Background()

	pending := generate(c, ctx, payload("A"))
	req := w.request()
	assert.Equal(t, "A", req.Option("payload", ""))
	w.reply(req.ID, req.Option("payload", "")+"-generated")

	o := await(t, pending)
	require.NoError(t, o.err)
	assert.Equal(t, "A-generated", o.resp.Documents[0].SourceText)
	assert.Equal(t, client.StateIdle, c.State())

	shut := make(chan error, 1)
	go func() { shut <- c.Shutdown(ctx) }()
	assert.IsType(t, &protocol.CloseMessage{}, w.read())
	require.NoError(t, <-shut)

	require.NoError(t, c.Close())
	assert.Equal(t, client.StateDisposed, c.State())
	_, err := c.Generate(ctx, payload("B"))
	assert.ErrorIs(t, err, genwire.ErrDisposed)
	assert.True(t, genwire.IsDisposed(err))
}

func TestSequentialRequests(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)
	go func() {
		for {
			msg, err := w.dec.Decode()
			if err != nil {
				return
			}
			req := msg.(*protocol.GeneratorRequest)
			if err := w.enc.Encode(&protocol.GeneratorResponse{
				ID:        req.ID,
				Documents: []protocol.SourceDocument{{SourceText: req.Option("payload", "") + "-generated"}},
			}); err != nil {
				return
			}
		}
	}()

	for i := range 20 {
		in := fmt.Sprintf("req-%d", i)
		resp, err := c.Generate(context.Background(), payload(in))
		require.NoError(t, err)
		assert.Equal(t, in+"-generated", resp.Documents[0].SourceText)
	}
}

func TestGenerateAssignsIDWithoutMutatingRequest(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	req := payload("x")
	pending := generate(c, context.Background(), req)
	sent := w.request()
	require.NotEmpty(t, sent.ID)
	w.reply(sent.ID, "ok")
	require.NoError(t, await(t, pending).err)
	assert.Empty(t, req.ID)

	pending = generate(c, context.Background(), &protocol.GeneratorRequest{ID: "mine"})
	sent = w.request()
	assert.Equal(t, "mine", sent.ID)
	w.reply("mine", "ok")
	assert.NoError(t, await(t, pending).err)
}

func TestGenerateAcceptsResponseWithoutID(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	pending := generate(c, context.Background(), payload("x"))
	w.request()
	w.reply("", "anonymous")
	o := await(t, pending)
	require.NoError(t, o.err)
	assert.Equal(t, "anonymous", o.resp.Documents[0].SourceText)
}

func TestCancelReturnsToIdle(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	pending := generate(c, ctx, payload("slow"))
	first := w.request()
	cancel()

	o := await(t, pending)
	require.Error(t, o.err)
	assert.True(t, genwire.IsCanceled(o.err))
	assert.ErrorIs(t, o.err, context.Canceled)
	assert.Equal(t, client.StateIdle, c.State())

	// The late answer to the canceled request must not satisfy the next one.
	pending = generate(c, context.Background(), payload("next"))
	second := w.request()
	w.reply(first.ID, "stale")
	w.reply(second.ID, "fresh")
	o = await(t, pending)
	require.NoError(t, o.err)
	assert.Equal(t, "fresh", o.resp.Documents[0].SourceText)
}

func TestGenerateDeadline(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)
	go func() { _, _ = w.dec.Decode() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, payload("x"))
	assert.True(t, genwire.IsCanceled(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateWhilePendingIsMisuse(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	pending := generate(c, context.Background(), payload("first"))
	req := w.request()
	require.Eventually(t, func() bool {
		return c.State() == client.StateAwaitingResponse
	}, time.Second, time.Millisecond)

	_, err := c.Generate(context.Background(), payload("second"))
	assert.ErrorIs(t, err, genwire.ErrProtocolMisuse)
	assert.True(t, genwire.IsProtocolMisuse(err))

	w.reply(req.ID, "first-generated")
	o := await(t, pending)
	require.NoError(t, o.err)
	assert.Equal(t, "first-generated", o.resp.Documents[0].SourceText)
}

func TestCloseWhilePending(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	pending := generate(c, context.Background(), payload("x"))
	w.request()
	require.NoError(t, c.Close())

	o := await(t, pending)
	assert.ErrorIs(t, o.err, genwire.ErrDisposed)
	assert.Equal(t, client.StateDisposed, c.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	c, _ := newClient(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, client.StateDisposed, c.State())
	assert.ErrorIs(t, c.Shutdown(context.Background()), genwire.ErrDisposed)
}

func TestEndOfStreamWhilePending(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	pending := generate(c, context.Background(), payload("x"))
	w.request()
	require.NoError(t, w.out.Close())

	o := await(t, pending)
	require.Error(t, o.err)
	assert.True(t, genwire.IsTransportClosed(o.err))
	assert.Equal(t, client.StateIdle, c.State())

	// The transport is gone for good; later requests fail fast.
	_, err := c.Generate(context.Background(), payload("y"))
	assert.True(t, genwire.IsTransportClosed(err))
}

func TestDecodeErrorWhilePending(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	pending := generate(c, context.Background(), payload("x"))
	w.request()
	bad := make([]byte, 5)
	binary.BigEndian.PutUint32(bad, 1)
	bad[4] = 77
	_, err := w.out.Write(bad)
	require.NoError(t, err)

	o := await(t, pending)
	assert.True(t, genwire.IsDecodeError(o.err), "got %v", o.err)
}

func TestUnsolicitedResponseIsDropped(t *testing.T) {
	t.Parallel()
	c, w := newClient(t)

	w.reply("nobody", "ignored")
	require.NoError(t, w.enc.Encode(&protocol.CloseMessage{}))

	pending := generate(c, context.Background(), payload("x"))
	req := w.request()
	w.reply(req.ID, "answer")
	o := await(t, pending)
	require.NoError(t, o.err)
	assert.Equal(t, "answer", o.resp.Documents[0].SourceText)
}

func TestWriteFailureFailsGenerate(t *testing.T) {
	t.Parallel()
	inR, _ := io.Pipe()
	outR, outW := io.Pipe()
	require.NoError(t, outR.Close())

	c, err := client.New(inR, outW)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Generate(context.Background(), payload("x"))
	var te *genwire.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "write", te.Op)
	assert.Equal(t, client.StateIdle, c.State())
}

func TestNewRejectsNilStreams(t *testing.T) {
	_, err := client.New(nil, io.Discard)
	assert.Error(t, err)
	_, err = client.New(os.Stdin, nil)
	assert.Error(t, err)
}

func TestGenerateRejectsNilRequest(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", client.StateIdle.String())
	assert.Equal(t, "awaiting-response", client.StateAwaitingResponse.String())
	assert.Equal(t, "disposed", client.StateDisposed.String())
	assert.Equal(t, "unknown", client.State(42).String())
}

func TestStartProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a process")
	}
	t.Setenv(workerEnv, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := client.Start(ctx, os.Args[0], []string{"-test.run=^$"},
		client.WithStderr(os.Stderr),
		client.WithGracePeriod(10*time.Second),
	)
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	resp, err := p.Generate(ctx, payload("A"))
	require.NoError(t, err)
	assert.Equal(t, "A-generated", resp.Documents[0].SourceText)

	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Generate(ctx, payload("B"))
	assert.ErrorIs(t, err, genwire.ErrDisposed)
}

func TestStartMissingBinary(t *testing.T) {
	_, err := client.Start(context.Background(), "genwire-no-such-binary", nil)
	assert.Error(t, err)
}
