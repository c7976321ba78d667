// Package bus multiplexes one inbound/outbound stream pair to subscribers.
//
// A Bus runs two goroutines for its whole life: a receive loop that decodes
// frames from the inbound stream and broadcasts each message to every
// subscriber, and a writer that serializes outbound frames. Each
// Subscription has its own ordered mailbox, so a slow observer only delays
// itself.
//
//	b := bus.New(stdout, stdin)
//	sub := b.Subscribe(bus.ObserverFuncs{
//	    Next:      func(m protocol.Message) { ... },
//	    Error:     func(err error) { ... },
//	    Completed: func() { ... },
//	})
//	defer sub.Unsubscribe()
//
//	err := b.Send(ctx, &protocol.CloseMessage{})
//	_ = b.Close()
//
// The receive loop ends at end-of-stream (OnCompleted), on a malformed
// frame or a read failure (OnError) or when the bus is closed
// (OnCompleted). It never restarts.
package bus
