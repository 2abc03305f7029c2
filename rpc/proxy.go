package rpc

import (
	"context"
	"time"

	"github.com/phuhao00/kudugo/infra/metrics"
)

// Proxy is a cheaply-cloneable handle to a background goroutine running a
// Connection, per spec.md section 4.2. Proxy values share the same
// mailbox channel and the same underlying Connection; copying a Proxy
// (it holds only the address, the mailbox channel, a pointer to the
// Connection and its cancel function) is safe and is the idiomatic Go
// analogue of the source's clonable handle.
type Proxy struct {
	addr    string
	mailbox chan *Rpc
	conn    *Connection
	cancel  context.CancelFunc
}

// Spawn launches a background goroutine running a Connection to addr and
// returns a Proxy handle to it. The Connection starts dialing immediately.
func Spawn(ctx context.Context, addr string, opts ConnectionOptions, m *metrics.EndpointMetrics) *Proxy {
	runCtx, cancel := context.WithCancel(ctx)
	conn := NewConnection(addr, opts, m)
	go conn.Run(runCtx)
	return &Proxy{
		addr:    addr,
		mailbox: conn.mailbox,
		conn:    conn,
		cancel:  cancel,
	}
}

// Ready reports whether the mailbox has a free slot, per spec.md section
// 4.2's poll_ready. A true result is advisory: a concurrent Send from
// another clone of this Proxy can still fill the last slot first.
func (p *Proxy) Ready() bool {
	return len(p.mailbox) < cap(p.mailbox)
}

// Send constructs an Rpc for the given service/method and submits it for
// transmission, returning a completion handle. Unlike the source's
// contract (which requires a prior poll_ready and panics otherwise), Send
// returns ErrBackoff if the mailbox has no free capacity — a safer Go API
// for the same backpressure signal, per SPEC_FULL.md section 4.2.
func (p *Proxy) Send(ctx context.Context, serviceName, methodName string, req, resp Message, opts RpcOptions) (*Call, error) {
	call := newCall(serviceName, methodName, req, resp)
	rpc := &Rpc{
		ServiceName:          serviceName,
		MethodName:           methodName,
		Deadline:             opts.Deadline,
		RequiredFeatureFlags: opts.RequiredFeatureFlags,
		Request:              req,
		Response:             resp,
		FailFast:             opts.FailFast,
		call:                 call,
		ctx:                  ctx,
	}

	select {
	case p.mailbox <- rpc:
		return call, nil
	default:
		return nil, ErrBackoff
	}
}

// Throttle halves the Connection's adaptive in-flight ceiling. Call sites
// invoke this when they observe a server-signalled memory-pressure error
// on a completed Rpc, per spec.md section 4.1.
func (p *Proxy) Throttle() {
	p.conn.requestThrottle()
}

// Close tears down the background goroutine, failing every Rpc still
// queued or in flight with an error. Clones of this Proxy created before
// Close share the same underlying Connection and are also torn down.
func (p *Proxy) Close() {
	p.cancel()
}

// RpcOptions carries the per-call settings Send needs beyond the
// service/method pair and payloads: the deadline, required feature flags,
// and fail-fast policy from spec.md section 3's Rpc fields.
type RpcOptions struct {
	Deadline             time.Time
	RequiredFeatureFlags []uint32
	FailFast             bool
}
