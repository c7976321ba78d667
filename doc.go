// Package genwire drives GraphQL client code generation in a separate worker
// process.
//
// A genwire session is one client and one worker connected by a pair of byte
// streams. The packages are layered, leaves first:
//
//   - protocol: messages and the length-prefixed frame codec
//   - bus: the receive loop, subscriber fan-out and the serialized send path
//   - client: the single-flight request/response API used by build tools
//   - worker: the serving side of the protocol
//   - generator: the GraphQL to Go generator answered by the worker
//
// This package holds the error taxonomy shared by all of them and the Cache
// interface used for result caching.
//
// # Errors
//
// Every public operation fails with a distinguishable error:
//
//	resp, err := c.Generate(ctx, req)
//	switch {
//	case genwire.IsCanceled(err):
//	    // ctx ended before the worker answered; the client is idle again
//	case genwire.IsTransportClosed(err):
//	    // the worker exited; start a new process and client
//	case genwire.IsDecodeError(err):
//	    // the worker wrote garbage; the session is unusable
//	}
package genwire
