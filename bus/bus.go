package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/protocol"
)

// State is the lifecycle state of a Bus.
type State int32

// Bus lifecycle states. Closed is terminal.
const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMaxFrameSize bounds the size of inbound frames.
func WithMaxFrameSize(n int) Option {
	return func(b *Bus) {
		b.maxFrame = n
	}
}

// Bus owns the inbound and outbound streams of one client-worker session.
// It decodes inbound frames on a background goroutine and broadcasts every
// message to all subscribers, and it serializes outbound frames through a
// single writer goroutine.
type Bus struct {
	r        io.Reader
	w        io.Writer
	log      *slog.Logger
	maxFrame int

	ctx    context.Context // canceled when closing
	cancel context.CancelFunc
	sends  chan *sendOp

	readDone  chan struct{}
	writeDone chan struct{}

	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	terminated bool
	termErr    error
	termDone   chan struct{}
	writeErr   error

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// New creates a Bus over r (inbound) and w (outbound) and starts its
// receive loop. The Bus takes ownership of both streams: Close closes each
// of them that implements io.Closer.
func New(r io.Reader, w io.Writer, opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		r:         r,
		w:         w,
		log:       slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		sends:     make(chan *sendOp),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		subs:      make(map[uint64]*Subscription),
		termDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.receive()
	go b.write()
	return b
}

// State returns the current lifecycle state.
func (b *Bus) State() State {
	return State(b.state.Load())
}

// Done is closed when the receive loop has stopped for good.
func (b *Bus) Done() <-chan struct{} {
	return b.termDone
}

// Err returns the error that stopped the receive loop, or nil when it
// stopped at end-of-stream or by Close. It is only meaningful after Done
// is closed.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.termErr
}

// Subscribe registers obs for every message decoded from now on. When the
// receive loop already stopped, obs is handed the terminal notification
// right away.
func (b *Bus) Subscribe(obs Observer) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := newSubscription(b.nextID, b, obs)
	if b.terminated {
		s.terminate(b.termErr)
		return s
	}
	b.subs[s.id] = s
	return s
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// receive is the background receive loop.
func (b *Bus) receive() {
	defer close(b.readDone)
	dec := protocol.NewDecoder(b.r)
	dec.SetMaxFrameSize(b.maxFrame)
	for {
		msg, err := dec.Decode()
		if err != nil {
			b.terminate(err)
			return
		}
		b.dispatch(msg)
	}
}

func (b *Bus) dispatch(msg protocol.Message) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.next(msg)
	}
}

// terminate stops dispatching and hands every subscriber its terminal
// notification. Only the first call has an effect.
func (b *Bus) terminate(err error) {
	if errors.Is(err, io.EOF) || b.State() != StateOpen {
		// End of stream, or a read failure caused by Close.
		err = nil
	}
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.terminated = true
	b.termErr = err
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("genwire: receive loop failed", "error", err)
	} else {
		b.log.Debug("genwire: receive loop completed")
	}
	for _, s := range subs {
		s.terminate(err)
	}
	close(b.termDone)
}

// sendOp is one frame handed to the writer.
type sendOp struct {
	frame  []byte
	result chan error
	state  atomic.Int32 // opPending, opWriting or opAbandoned
}

const (
	opPending int32 = iota
	opWriting
	opAbandoned
)

// Send encodes msg and writes its frame to the outbound stream. Concurrent
// calls are serialized and their frames never interleave.
//
// When ctx ends before the writer started the frame, the frame is dropped.
// When it ends during the write, Send stops waiting but the frame is still
// written completely.
func (b *Bus) Send(ctx context.Context, msg protocol.Message) error {
	frame, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	op := &sendOp{frame: frame, result: make(chan error, 1)}

	select {
	case b.sends <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return genwire.ErrTransportClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		op.state.CompareAndSwap(opPending, opAbandoned)
		return ctx.Err()
	case <-b.writeDone:
		// The writer exits only after finishing its current op.
		select {
		case err := <-op.result:
			return err
		default:
			return genwire.ErrTransportClosed
		}
	}
}

// write is the single writer goroutine.
func (b *Bus) write() {
	defer close(b.writeDone)
	for {
		select {
		case <-b.ctx.Done():
			return
		case op := <-b.sends:
			if !op.state.CompareAndSwap(opPending, opWriting) {
				continue
			}
			op.result <- b.writeFrame(op.frame)
		}
	}
}

func (b *Bus) writeFrame(frame []byte) error {
	b.mu.Lock()
	broken := b.writeErr
	b.mu.Unlock()
	if broken != nil {
		return genwire.ErrTransportClosed
	}
	if _, err := b.w.Write(frame); err != nil {
		err = genwire.NewTransportError("write", err)
		b.mu.Lock()
		b.writeErr = err
		b.mu.Unlock()
		b.log.Warn("genwire: write failed", "error", err)
		return err
	}
	return nil
}

// Close stops the bus: it stops the writer, closes both streams, waits for
// the receive loop and completes the remaining subscribers. It is safe to
// call concurrently and more than once; later calls return the result of
// the first.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.state.Store(int32(StateClosing))
		b.cancel()

		var errs []error
		rc, readClosable := b.r.(io.Closer)
		if readClosable {
			errs = append(errs, closeStream(rc))
		}
		if wc, ok := b.w.(io.Closer); ok {
			errs = append(errs, closeStream(wc))
		}

		<-b.writeDone
		if readClosable {
			<-b.readDone
		}
		b.terminate(nil)

		b.state.Store(int32(StateClosed))
		b.closeErr = errors.Join(errs...)
		b.log.Debug("genwire: bus closed")
	})
	return b.closeErr
}

// closeStream closes c, treating an already closed stream as success.
func closeStream(c io.Closer) error {
	err := c.Close()
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
