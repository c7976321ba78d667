package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/bus"
	"github.com/syssam/genwire/protocol"
)

// State is the state of a Client.
type State int

// Client states. Disposed is terminal.
const (
	StateIdle State = iota
	StateAwaitingResponse
	StateDisposed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Client issues generation requests to a worker, one at a time.
//
// A Client is safe for concurrent use, but only one Generate call may be
// outstanding: a second call fails with genwire.ErrProtocolMisuse instead of
// queueing.
type Client struct {
	bus *bus.Bus
	sub *bus.Subscription
	log *slog.Logger

	mu       sync.Mutex
	pending  *pendingRequest
	disposed bool
	termErr  error // set once the bus stopped receiving

	closeOnce sync.Once
}

// pendingRequest is the correlation state of the outstanding request.
type pendingRequest struct {
	id   string
	done chan result
	once sync.Once
}

type result struct {
	resp *protocol.GeneratorResponse
	err  error
}

func (p *pendingRequest) resolve(resp *protocol.GeneratorResponse, err error) {
	p.once.Do(func() {
		p.done <- result{resp: resp, err: err}
	})
}

// New returns a Client talking to a worker that reads what the client writes
// to w and answers on r. The client owns both streams from now on.
func New(r io.Reader, w io.Writer, opts ...Option) (*Client, error) {
	if r == nil || w == nil {
		return nil, errors.New("genwire/client: nil stream")
	}
	o := newOptions(opts)
	c := &Client{
		bus: bus.New(r, w, bus.WithLogger(o.log), bus.WithMaxFrameSize(o.maxFrame)),
		log: o.log,
	}
	c.sub = c.bus.Subscribe(bus.ObserverFuncs{
		Next:      c.onMessage,
		Error:     c.onError,
		Completed: c.onCompleted,
	})
	return c, nil
}

// State reports the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.disposed:
		return StateDisposed
	case c.pending != nil:
		return StateAwaitingResponse
	default:
		return StateIdle
	}
}

// Generate sends req and waits for the worker's response.
//
// When req has no ID a random one is assigned to the frame sent; req itself
// is left untouched. The call fails with a *genwire.CanceledError when ctx
// ends first, with the transport error when the worker's stream ends or
// breaks, and with genwire.ErrDisposed when the client is closed meanwhile.
// In every case the client is idle again when Generate returns.
func (c *Client) Generate(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error) {
	if req == nil {
		return nil, errors.New("genwire/client: nil request")
	}
	msg := *req
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	p := &pendingRequest{id: msg.ID, done: make(chan result, 1)}

	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return nil, genwire.ErrDisposed
	case c.pending != nil:
		c.mu.Unlock()
		return nil, genwire.ErrProtocolMisuse
	case c.termErr != nil:
		err := c.termErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending = p
	c.mu.Unlock()
	defer c.release(p)

	if err := c.bus.Send(ctx, &msg); err != nil {
		// Disposal or a terminated stream may have settled the request
		// with a more precise outcome.
		select {
		case res := <-p.done:
			return res.resp, res.err
		default:
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, genwire.NewCanceledError(err)
		}
		return nil, err
	}

	select {
	case res := <-p.done:
		return res.resp, res.err
	case <-ctx.Done():
		c.log.Debug("genwire: request canceled", "id", p.id)
		return nil, genwire.NewCanceledError(ctx.Err())
	}
}

// release clears p unless something else already took its place.
func (c *Client) release(p *pendingRequest) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
}

// Shutdown asks the worker to exit by sending a close message. It neither
// waits for the worker nor closes the streams; use Close for that.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return genwire.ErrDisposed
	}
	err := c.bus.Send(ctx, &protocol.CloseMessage{})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return genwire.NewCanceledError(err)
	}
	return err
}

// Close disposes the client: an outstanding Generate fails with
// genwire.ErrDisposed, the subscription is released and the bus with its
// streams is closed. Teardown failures are logged, not returned. Close is
// idempotent and safe to call while Generate runs on another goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		p := c.pending
		c.pending = nil
		c.mu.Unlock()
		if p != nil {
			p.resolve(nil, genwire.ErrDisposed)
		}

		c.sub.Unsubscribe()
		if err := c.bus.Close(); err != nil {
			c.log.Warn("genwire: closing transport", "error", err)
		}
		c.log.Debug("genwire: client disposed")
	})
	return nil
}

func (c *Client) onMessage(msg protocol.Message) {
	resp, ok := msg.(*protocol.GeneratorResponse)
	if !ok {
		c.log.Debug("genwire: ignoring message", "kind", msg.Kind())
		return
	}
	c.mu.Lock()
	p := c.pending
	if p == nil || (resp.ID != "" && resp.ID != p.id) {
		c.mu.Unlock()
		c.log.Debug("genwire: dropping unsolicited response", "id", resp.ID)
		return
	}
	c.pending = nil
	c.mu.Unlock()
	p.resolve(resp, nil)
}

func (c *Client) onError(err error) {
	c.fail(err)
}

func (c *Client) onCompleted() {
	c.fail(genwire.NewTransportError("read", io.EOF))
}

// fail records the terminal transport error and settles the outstanding
// request with it.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.termErr = err
	p := c.pending
	c.pending = nil
	c.mu.Unlock()
	if p != nil {
		p.resolve(nil, err)
	}
}
