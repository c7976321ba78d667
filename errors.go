package genwire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol failure taxonomy.
var (
	// ErrDecode is returned when a frame on the inbound stream is malformed.
	// It is fatal for the session that produced it.
	ErrDecode = errors.New("genwire: malformed frame")

	// ErrTransportClosed is returned when the inbound stream reached its end
	// or the outbound stream rejected a write.
	ErrTransportClosed = errors.New("genwire: transport closed")

	// ErrCanceled is returned when the caller canceled a request before a
	// response arrived.
	ErrCanceled = errors.New("genwire: request canceled")

	// ErrDisposed is returned by operations attempted on, or pending during,
	// the disposal of a client.
	ErrDisposed = errors.New("genwire: client disposed")

	// ErrProtocolMisuse is returned when a request is issued while another
	// one is still outstanding on the same client.
	ErrProtocolMisuse = errors.New("genwire: request already in flight")
)

// DecodeError represents a malformed frame.
type DecodeError struct {
	Kind   uint8  // Frame kind, if it was read
	Reason string // What was wrong with the frame
	Err    error  // Underlying error, if any
}

// Error returns the error string.
func (e *DecodeError) Error() string {
	msg := "genwire: malformed frame"
	if e.Kind != 0 {
		msg = fmt.Sprintf("%s (kind %d)", msg, e.Kind)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// NewDecodeError returns a new DecodeError.
func NewDecodeError(kind uint8, reason string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Reason: reason, Err: err}
}

// IsDecodeError returns true if the error is a DecodeError.
func IsDecodeError(err error) bool {
	if err == nil {
		return false
	}
	var e *DecodeError
	return errors.As(err, &e) || errors.Is(err, ErrDecode)
}

// TransportError wraps an I/O failure on one of the session streams.
type TransportError struct {
	Op  string // "read" or "write"
	Err error  // Underlying I/O error
}

// Error returns the error string.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("genwire: transport closed (%s)", e.Op)
	}
	return fmt.Sprintf("genwire: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrTransportClosed.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportClosed
}

// NewTransportError returns a new TransportError.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// IsTransportClosed returns true if the error reports a closed or failed transport.
func IsTransportClosed(err error) bool {
	if err == nil {
		return false
	}
	var e *TransportError
	return errors.As(err, &e) || errors.Is(err, ErrTransportClosed)
}

// CanceledError is returned when a caller's context ends before the
// response arrives. It matches both ErrCanceled and the context error.
type CanceledError struct {
	Err error // context.Canceled or context.DeadlineExceeded
}

// Error returns the error string.
func (e *CanceledError) Error() string {
	if e.Err == nil {
		return "genwire: request canceled"
	}
	return fmt.Sprintf("genwire: request canceled: %v", e.Err)
}

// Unwrap returns the context error.
func (e *CanceledError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrCanceled.
func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// NewCanceledError returns a new CanceledError.
func NewCanceledError(err error) *CanceledError {
	return &CanceledError{Err: err}
}

// IsCanceled returns true if the error is a CanceledError.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	var e *CanceledError
	return errors.As(err, &e) || errors.Is(err, ErrCanceled)
}

// IsDisposed returns true if the error reports a disposed client.
func IsDisposed(err error) bool {
	return err != nil && errors.Is(err, ErrDisposed)
}

// IsProtocolMisuse returns true if the error reports a second in-flight request.
func IsProtocolMisuse(err error) bool {
	return err != nil && errors.Is(err, ErrProtocolMisuse)
}
