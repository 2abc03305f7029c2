package rpc

import (
	"context"
	"time"
)

// ConnectionOptions configures a Connection, per spec.md section 3.
type ConnectionOptions struct {
	// NoDelay disables Nagle's algorithm on the socket. Defaults to true.
	NoDelay bool

	// RPCQueueLen is the hard ceiling on queued-plus-in-flight RPCs per
	// connection. Defaults to 256.
	RPCQueueLen uint32

	// BackoffInitial is the initial reconnect delay. Defaults to 10ms.
	BackoffInitial time.Duration

	// BackoffMax is the maximum reconnect delay. Defaults to 30s.
	BackoffMax time.Duration

	// MaxMessageLength is the largest incoming frame accepted before the
	// connection is torn down with a fatal protocol error. Defaults to
	// 5 MiB.
	MaxMessageLength uint32

	// MaxRPCsInFlight is the capacity of the Proxy's mailbox channel
	// (spec.md section 4.2's "capacity max_rpcs_in_flight"). Defaults to
	// RPCQueueLen.
	MaxRPCsInFlight uint32
}

// DefaultConnectionOptions returns the option set spec.md section 3
// describes as defaults.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		NoDelay:          true,
		RPCQueueLen:      256,
		BackoffInitial:   10 * time.Millisecond,
		BackoffMax:       30 * time.Second,
		MaxMessageLength: 5 * 1024 * 1024,
		MaxRPCsInFlight:  256,
	}
}

// withDefaults fills in zero numeric and duration fields with their
// documented default, so a caller can supply a partially populated
// ConnectionOptions (e.g. loaded from YAML, see the config package).
// NoDelay is used as given: a false value is not replaced by the default.
func (o ConnectionOptions) withDefaults() ConnectionOptions {
	d := DefaultConnectionOptions()
	if o.RPCQueueLen == 0 {
		o.RPCQueueLen = d.RPCQueueLen
	}
	if o.BackoffInitial == 0 {
		o.BackoffInitial = d.BackoffInitial
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = d.BackoffMax
	}
	if o.MaxMessageLength == 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.MaxRPCsInFlight == 0 {
		o.MaxRPCsInFlight = o.RPCQueueLen
	}
	return o
}

// Call is the completion handle returned by Proxy.Send, modeled on the
// standard library's net/rpc.Call: a channel that receives this same Call
// exactly once, after Response has been populated or Error has been set.
type Call struct {
	ServiceName string
	MethodName  string
	Request     Message
	Response    Message
	Error       error

	// Done is sent to exactly once, carrying this Call, when the Rpc
	// completes (successfully or not). It is never closed, so a caller
	// that only ever receives once cannot observe repeat sends.
	Done chan *Call
}

func newCall(serviceName, methodName string, req, resp Message) *Call {
	return &Call{
		ServiceName: serviceName,
		MethodName:  methodName,
		Request:     req,
		Response:    resp,
		Done:        make(chan *Call, 1),
	}
}

func (c *Call) fail(err error) {
	c.Error = err
	c.Done <- c
}

func (c *Call) succeed() {
	c.Done <- c
}

// Rpc is one outstanding remote call owned by a Connection, per spec.md
// section 3.
type Rpc struct {
	ServiceName          string
	MethodName           string
	Deadline             time.Time
	RequiredFeatureFlags []uint32
	Request              Message
	Response             Message
	// Sidecars is always empty in this implementation; reserved per
	// spec.md's data model.
	Sidecars [][]byte
	FailFast bool

	call *Call
	ctx  context.Context
}

// cancelled reports whether the Rpc's context has been cancelled.
func (r *Rpc) cancelled() bool {
	if r.ctx == nil {
		return false
	}
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// timedOut reports whether now is at or past the Rpc's deadline.
func (r *Rpc) timedOut(now time.Time) bool {
	return !r.Deadline.IsZero() && !now.Before(r.Deadline)
}

// fail completes the Rpc's Call with err. Safe to call exactly once.
func (r *Rpc) fail(err error) {
	r.call.fail(err)
}

// complete marks the Rpc's Call as succeeded; Response has already been
// populated in place by the caller.
func (r *Rpc) complete() {
	r.call.succeed()
}
