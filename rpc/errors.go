package rpc

import (
	"errors"
	"fmt"
)

// ErrorCode classifies the application-level status a Kudu server attaches
// to a response whose ResponseHeader.IsError is set. The numeric values are
// a module-internal placeholder; what matters is the fatal/non-fatal split
// enforced by IsFatal.
type ErrorCode int32

const (
	ErrorApplicationError ErrorCode = iota + 1
	ErrorNoSuchMethod
	ErrorNoSuchService
	ErrorServerTooBusy
	ErrorInvalidRequest
)

const (
	ErrorFatalUnknown ErrorCode = iota + 100
	ErrorFatalServerShuttingDown
	ErrorFatalInvalidRpcHeader
	ErrorFatalDeserializingRequest
	ErrorFatalVersionMismatch
	ErrorFatalUnauthorized
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorApplicationError:
		return "ApplicationError"
	case ErrorNoSuchMethod:
		return "NoSuchMethod"
	case ErrorNoSuchService:
		return "NoSuchService"
	case ErrorServerTooBusy:
		return "ServerTooBusy"
	case ErrorInvalidRequest:
		return "InvalidRequest"
	case ErrorFatalUnknown:
		return "FatalUnknown"
	case ErrorFatalServerShuttingDown:
		return "FatalServerShuttingDown"
	case ErrorFatalInvalidRpcHeader:
		return "FatalInvalidRpcHeader"
	case ErrorFatalDeserializingRequest:
		return "FatalDeserializingRequest"
	case ErrorFatalVersionMismatch:
		return "FatalVersionMismatch"
	case ErrorFatalUnauthorized:
		return "FatalUnauthorized"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// IsFatal reports whether an application error of this kind requires the
// Connection to reset, per the taxonomy in spec.md section 7.
func (c ErrorCode) IsFatal() bool {
	switch c {
	case ErrorFatalUnknown, ErrorFatalServerShuttingDown, ErrorFatalInvalidRpcHeader,
		ErrorFatalDeserializingRequest, ErrorFatalVersionMismatch, ErrorFatalUnauthorized:
		return true
	default:
		return false
	}
}

// RpcError is the application-level error a server attaches to a response
// via ErrorStatusPB. It always completes the originating Rpc; if Code is
// fatal the Connection that received it resets.
type RpcError struct {
	Code                    ErrorCode
	Message                 string
	UnsupportedFeatureFlags []uint32
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error: %s: %s", e.Code, e.Message)
}

// IsFatal reports whether this error is connection-fatal.
func (e *RpcError) IsFatal() bool {
	return e.Code.IsFatal()
}

// Clone returns a copy suitable for delivering to multiple failed Rpcs
// during a reset drain.
func (e *RpcError) Clone() *RpcError {
	cp := *e
	cp.UnsupportedFeatureFlags = append([]uint32(nil), e.UnsupportedFeatureFlags...)
	return &cp
}

// Sentinel errors for the remaining kinds in the taxonomy. These are
// terminal per-Rpc outcomes, not necessarily connection-fatal.
var (
	// ErrTimedOut is returned when an Rpc's deadline has passed before it
	// could be sent or while it was queued across a reset.
	ErrTimedOut = errors.New("rpc: timed out")

	// ErrCancelled is returned when an Rpc's context was cancelled before
	// transmission.
	ErrCancelled = errors.New("rpc: cancelled")

	// ErrBackoff is returned by Proxy.Send when the mailbox channel has no
	// free capacity.
	ErrBackoff = errors.New("rpc: proxy queue full")

	// ErrConnectionOverflow is returned internally when the next call ID
	// would exceed the 2^31-1 ceiling; it forces a connection reset.
	ErrConnectionOverflow = errors.New("rpc: call id space exhausted")

	// ErrNegotiationFailed is returned when SASL negotiation cannot
	// proceed (e.g. the server does not offer PLAIN).
	ErrNegotiationFailed = errors.New("rpc: negotiation failed")

	// ErrInvalidRpcHeader marks a fatal framing/header protocol violation.
	ErrInvalidRpcHeader = errors.New("rpc: invalid rpc header")

	// ErrUnimplemented marks a feature the server used that this client
	// does not support (e.g. non-empty sidecars).
	ErrUnimplemented = errors.New("rpc: unimplemented")
)

// invalidHeaderf wraps ErrInvalidRpcHeader with context, keeping it
// matchable via errors.Is.
func invalidHeaderf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, ErrInvalidRpcHeader)
}
