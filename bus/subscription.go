package bus

import (
	"sync"

	"github.com/syssam/genwire/protocol"
)

// Observer receives the messages dispatched by a Bus.
//
// OnError and OnCompleted are terminal: exactly one of them is delivered,
// at most once, after every message that preceded it on the stream.
type Observer interface {
	OnNext(msg protocol.Message)
	OnError(err error)
	OnCompleted()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Next      func(protocol.Message)
	Error     func(error)
	Completed func()
}

// OnNext implements Observer.
func (f ObserverFuncs) OnNext(msg protocol.Message) {
	if f.Next != nil {
		f.Next(msg)
	}
}

// OnError implements Observer.
func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// OnCompleted implements Observer.
func (f ObserverFuncs) OnCompleted() {
	if f.Completed != nil {
		f.Completed()
	}
}

// notification is one queued delivery.
type notification struct {
	msg   protocol.Message
	err   error
	final bool
}

// Subscription is the handle of one registered Observer. Deliveries run on
// a goroutine owned by the subscription, in the order they were queued.
type Subscription struct {
	id  uint64
	bus *Bus
	obs Observer

	mu       sync.Mutex
	queue    []notification
	final    bool // terminal notification queued
	released bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(id uint64, b *Bus, obs Observer) *Subscription {
	s := &Subscription{
		id:   id,
		bus:  b,
		obs:  obs,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Unsubscribe detaches the observer. Notifications still queued are
// discarded. It is safe to call more than once and from inside a callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.remove(s.id)
		}
		s.mu.Lock()
		s.released = true
		s.queue = nil
		s.mu.Unlock()
		s.signal()
	})
}

// Done is closed once the subscription delivered its terminal notification
// or was released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) next(msg protocol.Message) {
	s.push(notification{msg: msg})
}

func (s *Subscription) terminate(err error) {
	s.push(notification{err: err, final: true})
}

func (s *Subscription) push(n notification) {
	s.mu.Lock()
	if s.final || s.released {
		s.mu.Unlock()
		return
	}
	if n.final {
		s.final = true
	}
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if s.released {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			n := s.queue[0]
			s.queue[0] = notification{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			switch {
			case !n.final:
				s.obs.OnNext(n.msg)
			case n.err != nil:
				s.obs.OnError(n.err)
				return
			default:
				s.obs.OnCompleted()
				return
			}
		}
	}
}
