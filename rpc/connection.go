package rpc

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phuhao00/kudugo/infra/metrics"
)

// connState is one of the four states a Connection cycles through, per
// spec.md section 4.1.
type connState int32

const (
	stateConnecting connState = iota
	stateNegotiating
	stateConnected
	stateReset
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateNegotiating:
		return "negotiating"
	case stateConnected:
		return "connected"
	case stateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// frameResult is what the per-incarnation reader goroutine sends back to
// the owning goroutine: either a decoded response header/body, or the
// terminal read error that ended the stream. gen lets the owner discard
// frames from a reader whose connection has since been reset.
type frameResult struct {
	gen    uint64
	header ResponseHeader
	body   []byte
	err    error
}

// Connection owns one TCP session to one remote address and implements the
// Connecting -> Negotiating -> Connected -> Reset -> Connecting state
// machine from spec.md section 4.1. All of its mutable state (the two
// queues, the write buffer, the throttle, the backoff generator) is touched by
// exactly one goroutine: the one running Run. Everything else communicates
// with it over channels, the idiomatic Go stand-in for the single-threaded
// cooperative reactor task described in spec.md section 5.
type Connection struct {
	addr string
	opts ConnectionOptions
	id   uuid.UUID

	metrics *metrics.EndpointMetrics

	mailbox    chan *Rpc
	frames     chan frameResult
	throttleCh chan struct{}

	state      connState
	sendQueue  *QueueMap
	recvQueue  map[int32]*Rpc
	writeBuf   []byte
	throttle   uint32
	backoff    *Backoff
	nextCallID int32
	delay      time.Duration

	conn     net.Conn
	connGen  uint64
	connStop func() bool
}

// NewConnection constructs a Connection for addr. It does not dial; call
// Run to drive the state machine.
func NewConnection(addr string, opts ConnectionOptions, m *metrics.EndpointMetrics) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		addr:       addr,
		opts:       opts,
		id:         uuid.New(),
		metrics:    m,
		mailbox:    make(chan *Rpc, opts.MaxRPCsInFlight),
		frames:     make(chan frameResult, 16),
		throttleCh: make(chan struct{}, 1),
		sendQueue:  NewQueueMap(),
		recvQueue:  make(map[int32]*Rpc),
		backoff:    NewBackoff(opts.BackoffInitial, opts.BackoffMax),
		state:      stateConnecting,
	}
}

// Run drives the state machine until ctx is cancelled. It is meant to be
// the body of the single goroutine a Proxy spawns per Connection.
func (c *Connection) Run(ctx context.Context) {
	defer c.teardown()
	for {
		var cont bool
		switch c.state {
		case stateConnecting:
			cont = c.doConnect(ctx)
		case stateNegotiating:
			cont = c.doNegotiate(ctx)
		case stateConnected:
			cont = c.runConnected(ctx)
		case stateReset:
			cont = c.doResetWait(ctx)
		}
		if !cont {
			return
		}
	}
}

// requestThrottle signals the owning goroutine to halve the throttle, per
// spec.md section 4.1's adaptive server-memory-pressure response. Safe to
// call from any goroutine; coalesces if a request is already pending.
func (c *Connection) requestThrottle() {
	select {
	case c.throttleCh <- struct{}{}:
	default:
	}
}

func (c *Connection) logf(format string, args ...interface{}) {
	log.Printf("rpc: connection %s (%s) "+format, append([]interface{}{c.id, c.addr}, args...)...)
}

// doConnect implements the Connecting state.
func (c *Connection) doConnect(ctx context.Context) bool {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.reset(err, stateConnecting)
		return true
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(c.opts.NoDelay)
	}
	c.conn = conn
	c.connStop = context.AfterFunc(ctx, func() { conn.Close() })

	var buf []byte
	buf = append(buf, frameHeaderPreamble...)
	negHeader := &RequestHeader{CallID: negotiationCallID}
	negBody := &SaslMessagePB{State: SaslStateNegotiate}
	frame, err := encodeMessage(negHeader, negBody)
	if err != nil {
		c.reset(err, stateConnecting)
		return true
	}
	buf = append(buf, frame...)
	if _, err := conn.Write(buf); err != nil {
		c.reset(err, stateConnecting)
		return true
	}

	c.state = stateNegotiating
	return true
}

// doNegotiate implements the Negotiating state: it may loop in place
// (NEGOTIATE -> INITIATE) before advancing to Connected on SUCCESS.
func (c *Connection) doNegotiate(ctx context.Context) bool {
	header, body, err := c.readFrameSync()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.reset(err, stateNegotiating)
		return true
	}
	if header.CallID != negotiationCallID {
		c.reset(invalidHeaderf("negotiation response call id %d, want %d", header.CallID, negotiationCallID), stateNegotiating)
		return true
	}

	var sasl SaslMessagePB
	if err := sasl.Unmarshal(body); err != nil {
		c.reset(err, stateNegotiating)
		return true
	}

	switch sasl.State {
	case SaslStateNegotiate:
		hasPlain := false
		for _, a := range sasl.Auths {
			if a.Mechanism == "PLAIN" {
				hasPlain = true
				break
			}
		}
		if !hasPlain {
			c.reset(ErrNegotiationFailed, stateNegotiating)
			return true
		}
		initHeader := &RequestHeader{CallID: negotiationCallID}
		initBody := &SaslMessagePB{
			State: SaslStateInitiate,
			Token: []byte("\x00user\x00"),
			Auths: []SaslAuth{{Mechanism: "PLAIN"}},
		}
		frame, err := encodeMessage(initHeader, initBody)
		if err != nil {
			c.reset(err, stateNegotiating)
			return true
		}
		if _, err := c.conn.Write(frame); err != nil {
			c.reset(err, stateNegotiating)
			return true
		}
		return true

	case SaslStateSuccess:
		ctxHeader := &RequestHeader{CallID: connectionContextCallID}
		ctxBody := &ConnectionContextPB{
			UserInfo: UserInformationPB{EffectiveUser: "user", RealUser: "user"},
		}
		frame, err := encodeMessage(ctxHeader, ctxBody)
		if err != nil {
			c.reset(err, stateNegotiating)
			return true
		}
		if _, err := c.conn.Write(frame); err != nil {
			c.reset(err, stateNegotiating)
			return true
		}

		c.backoff.Reset()
		c.throttle = c.opts.RPCQueueLen
		c.startReader(ctx)
		c.state = stateConnected
		return true

	default:
		c.reset(invalidHeaderf("unexpected sasl state %d during negotiation", sasl.State), stateNegotiating)
		return true
	}
}

// readFrameSync performs one blocking length-prefixed frame read, used only
// during the short handshake in Negotiating. Connected uses the
// asynchronous reader goroutine instead, since it must multiplex reads
// against new outbound Rpcs.
func (c *Connection) readFrameSync() (ResponseHeader, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return ResponseHeader{}, nil, err
	}
	l := binary.BigEndian.Uint32(lenBuf[:])
	if l > c.opts.MaxMessageLength {
		return ResponseHeader{}, nil, invalidHeaderf("frame length %d exceeds max %d", l, c.opts.MaxMessageLength)
	}
	payload := make([]byte, l)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return ResponseHeader{}, nil, err
	}
	var header ResponseHeader
	body, err := decodeFrame(payload, &header)
	return header, body, err
}

// startReader launches the per-incarnation goroutine that performs blocking
// frame reads off the current c.conn and feeds decoded frames back over
// c.frames, tagged with the current connGen so the owner can discard
// frames from a since-reset incarnation.
func (c *Connection) startReader(ctx context.Context) {
	conn := c.conn
	gen := c.connGen
	maxLen := c.opts.MaxMessageLength

	go func() {
		for {
			var lenBuf [4]byte
			if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
				sendFrame(ctx, c.frames, frameResult{gen: gen, err: err})
				return
			}
			l := binary.BigEndian.Uint32(lenBuf[:])
			if l > maxLen {
				sendFrame(ctx, c.frames, frameResult{gen: gen, err: invalidHeaderf("frame length %d exceeds max %d", l, maxLen)})
				return
			}
			payload := make([]byte, l)
			if _, err := io.ReadFull(conn, payload); err != nil {
				sendFrame(ctx, c.frames, frameResult{gen: gen, err: err})
				return
			}
			var header ResponseHeader
			body, err := decodeFrame(payload, &header)
			sendFrame(ctx, c.frames, frameResult{gen: gen, header: header, body: body, err: err})
			if err != nil {
				return
			}
		}
	}()
}

func sendFrame(ctx context.Context, frames chan frameResult, fr frameResult) {
	select {
	case frames <- fr:
	case <-ctx.Done():
	}
}

// runConnected implements the Connected state's read/write pump. It
// returns false only when ctx has been cancelled; a transport or protocol
// failure instead transitions c.state to Reset and returns true so Run's
// outer loop advances to doResetWait.
func (c *Connection) runConnected(ctx context.Context) bool {
	for {
		for c.state == stateConnected && c.sendQueue.Len() > 0 {
			if !c.tryPopAndSend() {
				break
			}
		}
		if c.state != stateConnected {
			return true
		}
		if !c.flushWriteBuf() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case rpc := <-c.mailbox:
			c.acceptRpc(rpc)
		case fm := <-c.frames:
			if fm.gen == c.connGen {
				if err := c.handleFrame(fm); err != nil {
					c.reset(err, stateConnected)
				}
			}
		case <-c.throttleCh:
			c.applyThrottle()
		}
	}
}

// tryPopAndSend implements poll_write_connected from spec.md section 4.1.
// It returns false when nothing more can be sent this iteration: either
// the queue is empty, the connection is throttled, or a write failed (in
// which case the connection has already been reset).
func (c *Connection) tryPopAndSend() bool {
	if len(c.writeBuf) > 8*1024 {
		if !c.flushWriteBuf() {
			return false
		}
	}
	if uint32(len(c.recvQueue)) >= c.throttle {
		return false
	}

	callID, rpc, ok := c.sendQueue.Pop()
	if !ok {
		return false
	}

	now := time.Now()
	if rpc.cancelled() {
		rpc.fail(ErrCancelled)
		return true
	}
	if rpc.timedOut(now) {
		rpc.fail(ErrTimedOut)
		return true
	}

	header := &RequestHeader{
		CallID: callID,
		RemoteMethod: RemoteMethodPB{
			ServiceName: rpc.ServiceName,
			MethodName:  rpc.MethodName,
		},
		RequiredFeatureFlags: rpc.RequiredFeatureFlags,
	}
	if !rpc.Deadline.IsZero() {
		header.TimeoutMillis = uint32(rpc.Deadline.Sub(now).Milliseconds())
	}

	frame, err := encodeMessage(header, rpc.Request)
	if err != nil {
		rpc.fail(err)
		return true
	}

	c.writeBuf = append(c.writeBuf, frame...)
	c.recvQueue[callID] = rpc
	if c.metrics != nil {
		c.metrics.RecordDispatched(c.addr)
	}
	return true
}

func (c *Connection) flushWriteBuf() bool {
	if len(c.writeBuf) == 0 {
		return true
	}
	if _, err := c.conn.Write(c.writeBuf); err != nil {
		c.reset(err, stateConnected)
		return false
	}
	c.writeBuf = c.writeBuf[:0]
	return true
}

// acceptRpc assigns a call ID to an incoming Rpc and enqueues it, per
// spec.md section 3's "next_call_id: monotonic counter, strictly less than
// 2^31". Call IDs are assigned here, at submission, rather than at pop
// time; see DESIGN.md for why that reading of spec.md section 4.1 was
// chosen. Overflow (the int32 counter wrapping negative) forces a reset,
// which is where the counter is rewound (see reset).
//
// The mailbox channel's own capacity is a separate backpressure layer
// (spec.md section 5's "two layers") and does not bound |send_queue| +
// |recv_queue|: mailbox slots free up as soon as acceptRpc dequeues them,
// independent of how long the Rpc then sits in send_queue/recv_queue, so
// RPCQueueLen must be enforced here too, per spec.md section 3's
// "|send_queue| + |recv_queue| <= rpc_queue_len" invariant.
func (c *Connection) acceptRpc(rpc *Rpc) {
	if uint32(c.sendQueue.Len()+len(c.recvQueue)) >= c.opts.RPCQueueLen {
		rpc.fail(ErrBackoff)
		return
	}
	if c.nextCallID < 0 {
		rpc.fail(ErrConnectionOverflow)
		c.reset(ErrConnectionOverflow, stateConnected)
		return
	}
	callID := c.nextCallID
	c.nextCallID++
	c.sendQueue.Insert(callID, rpc)
}

// applyThrottle halves the throttle, with a floor of 1, per spec.md
// section 4.1.
func (c *Connection) applyThrottle() {
	t := c.throttle
	if t > c.opts.RPCQueueLen {
		t = c.opts.RPCQueueLen
	}
	t /= 2
	if t < 1 {
		t = 1
	}
	c.throttle = t
	if c.metrics != nil {
		c.metrics.SetThrottleLimit(c.addr, float64(t))
	}
}

// handleFrame implements poll_read_connected from spec.md section 4.1. A
// non-nil return means the connection must reset; the caller resets with
// the returned error as cause.
func (c *Connection) handleFrame(fm frameResult) error {
	if fm.err != nil {
		return fm.err
	}
	header := fm.header

	if len(header.SidecarOffsets) > 0 {
		if rpc, ok := c.recvQueue[header.CallID]; ok {
			delete(c.recvQueue, header.CallID)
			rpc.fail(ErrUnimplemented)
		}
		return ErrUnimplemented
	}

	if header.IsError {
		var es ErrorStatusPB
		if err := es.Unmarshal(fm.body); err != nil {
			return err
		}
		rpcErr := es.toRpcError()
		if rpc, ok := c.recvQueue[header.CallID]; ok {
			delete(c.recvQueue, header.CallID)
			rpc.fail(rpcErr)
		}
		if rpcErr.IsFatal() {
			return rpcErr
		}
		return nil
	}

	rpc, ok := c.recvQueue[header.CallID]
	if !ok {
		// No Rpc is waiting on this call ID (for example a duplicate
		// response); the response is silently discarded.
		return nil
	}
	if err := rpc.Response.Unmarshal(fm.body); err != nil {
		// Leave the Rpc queued; the caller resets the connection and the
		// reset drain will decide whether to retry or fail it.
		return err
	}
	delete(c.recvQueue, header.CallID)
	rpc.complete()
	if c.throttle < c.opts.RPCQueueLen {
		c.throttle++
	}
	if c.metrics != nil {
		c.metrics.RecordCompleted(c.addr, "ok")
	}
	return nil
}

// reset implements the Connection's reset policy from spec.md section
// 4.1: close the socket, drain both queues under the fail_fast/deadline/
// cancellation policy, arm the backoff timer, and transition to Reset.
func (c *Connection) reset(err error, from connState) {
	if c.metrics != nil {
		c.metrics.RecordError(c.addr, from.String())
	}
	c.logf("resetting from %s: %v", from, err)

	c.closeConn()
	c.connGen++
	c.writeBuf = c.writeBuf[:0]

	now := time.Now()
	// Call IDs are assigned monotonically at mailbox-acceptance time, so
	// merging recv_queue (a plain map with randomized range order) and the
	// remaining send_queue by ascending call ID recovers their original
	// combined insertion order, which the retry policy must preserve
	// (spec.md section 8, scenario 6).
	type queued struct {
		callID int32
		rpc    *Rpc
	}
	pending := make([]queued, 0, len(c.recvQueue)+c.sendQueue.Len())
	for callID, rpc := range c.recvQueue {
		pending = append(pending, queued{callID, rpc})
	}
	c.recvQueue = make(map[int32]*Rpc)
	for _, e := range c.sendQueue.Drain() {
		pending = append(pending, queued{e.CallID, e.Rpc})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].callID < pending[j].callID })
	// Retained Rpcs keep their call IDs, so the counter resumes one past the
	// highest of them (at zero when none is retained); a new Rpc never
	// reuses an ID that is still queued for retry.
	var next int32
	for _, e := range pending {
		if c.drainRpc(e.rpc, err, now) {
			c.sendQueue.Insert(e.callID, e.rpc)
			next = e.callID + 1
		}
	}

	c.nextCallID = next
	c.delay = c.backoff.Next()
	c.state = stateReset
}

// drainRpc applies the per-Rpc reset policy from spec.md section 4.1 and
// reports whether rpc should be retained for retry.
func (c *Connection) drainRpc(rpc *Rpc, cause error, now time.Time) bool {
	if rpc.cancelled() {
		return false
	}
	if rpc.timedOut(now) {
		rpc.fail(ErrTimedOut)
		return false
	}
	if rpc.FailFast {
		if re, ok := cause.(*RpcError); ok {
			rpc.fail(re.Clone())
		} else {
			rpc.fail(cause)
		}
		return false
	}
	return true
}

// doResetWait implements the Reset state: wait out the backoff delay, then
// advance to Connecting.
func (c *Connection) doResetWait(ctx context.Context) bool {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		c.state = stateConnecting
		return true
	}
}

func (c *Connection) closeConn() {
	if c.connStop != nil {
		c.connStop()
		c.connStop = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// teardown runs once, when Run's context is cancelled. It fails every Rpc
// still held by the Connection or waiting in its mailbox so no completion
// handle is left unsignalled.
func (c *Connection) teardown() {
	c.closeConn()

	closedErr := errors.New("rpc: connection closed")
	for callID, rpc := range c.recvQueue {
		delete(c.recvQueue, callID)
		rpc.fail(closedErr)
	}
	for {
		_, rpc, ok := c.sendQueue.Pop()
		if !ok {
			break
		}
		rpc.fail(closedErr)
	}
	for {
		select {
		case rpc := <-c.mailbox:
			rpc.fail(closedErr)
		default:
			return
		}
	}
}
