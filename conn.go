package dbus

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lindenhall/dbusconn/frame"
	"github.com/lindenhall/dbusconn/pipeline"
	"github.com/lindenhall/dbusconn/sasl"
	"github.com/lindenhall/dbusconn/transport"
	"github.com/rs/xid"
)

const (
	busIface = "org.freedesktop.DBus"
	busPath  = ObjectPath("/org/freedesktop/DBus")
	busDest  = "org.freedesktop.DBus"
)

// Conn is a client-side D-Bus connection: it owns exactly one transport,
// one serial counter, one handler pipeline, and one pending-reply table
// (spec §3.3), and drives the state machine in spec §4.6.
type Conn struct {
	cfg   ConnConfig
	addrs []transport.Address
	id    xid.ID

	mu       sync.Mutex
	tr       transport.Transport
	reader   *bufio.Reader
	state    ConnState
	unique   string
	closing  bool
	closed   bool
	healthCh chan struct{} // closed to stop the running health loop

	// connecting is true from the moment the read loop starts until
	// connectOnce either reaches READY or tears itself down via
	// teardown. handleDisconnect defers to that in-flight connectOnce
	// call instead of racing it with its own cleanup and reconnect
	// decision.
	connecting bool

	serial uint32 // atomic, see nextSerial

	pending *pendingTable
	pipe    *pipeline.Pipeline

	listenersMu sync.RWMutex
	listeners   []Listener

	writeMu sync.Mutex

	workC chan func()
	workWG sync.WaitGroup
	stopC  chan struct{}

	metrics *Metrics
}

// NewConn parses address (a ';'-separated D-Bus address string, spec
// §6.2) and returns an unconnected Conn. Call [Conn.Connect] to
// actually establish the session.
func NewConn(address string, opts ...Option) (*Conn, error) {
	addrs, err := transport.ParseAddresses(address)
	if err != nil {
		return nil, err
	}
	cfg := NewConnConfig(opts...)

	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 2 {
			poolSize = 2
		}
	}

	c := &Conn{
		cfg:     cfg,
		addrs:   addrs,
		id:      xid.New(),
		pending: newPendingTable(),
		workC:   make(chan func(), 64),
		stopC:   make(chan struct{}),
	}
	c.metrics = newMetrics(cfg.Registerer, func() float64 { return float64(c.pending.len()) })

	c.pipe = pipeline.New(c)
	if err := c.pipe.AddFirst("head", &headHandler{conn: c}); err != nil {
		return nil, err
	}
	if err := c.pipe.AddLast("correlation", &correlationHandler{pending: c.pending}); err != nil {
		return nil, err
	}
	if err := c.pipe.AddLast("tail", &tailHandler{}); err != nil {
		return nil, err
	}

	for i := 0; i < poolSize; i++ {
		c.workWG.Add(1)
		go c.worker()
	}

	return c, nil
}

// SystemBus returns a Conn for the system bus address (spec §6.2).
func SystemBus(opts ...Option) (*Conn, error) {
	return NewConn(transport.SystemBusAddress(), opts...)
}

// SessionBus returns a Conn for the session bus named by
// DBUS_SESSION_BUS_ADDRESS. There is no default for the session bus.
func SessionBus(opts ...Option) (*Conn, error) {
	addr := transport.SessionBusAddress()
	if addr == "" {
		return nil, fmt.Errorf("dbus: DBUS_SESSION_BUS_ADDRESS is not set")
	}
	return NewConn(addr, opts...)
}

func (c *Conn) worker() {
	defer c.workWG.Done()
	for {
		select {
		case fn := <-c.workC:
			fn()
		case <-c.stopC:
			return
		}
	}
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.setState(s)
}

// State reports the connection's current position in the state machine.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is usable for requests
// (spec §6.4).
func (c *Conn) IsConnected() bool {
	return c.State() == StateReady
}

// Pipeline returns the connection's handler pipeline (spec §6.4),
// letting callers install their own handlers with AddFirst/AddLast/
// AddBefore/AddAfter.
func (c *Conn) Pipeline() *pipeline.Pipeline { return c.pipe }

// UniqueName returns the bus name acquired from Hello(), or "" before
// the connection has reached READY at least once.
func (c *Conn) UniqueName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unique
}

// nextSerial returns the next serial for this connection: an atomic,
// monotonically increasing counter that never emits 0 and wraps past
// 0xFFFFFFFF back to 1 (spec §4.6).
func (c *Conn) nextSerial() uint32 {
	for {
		old := atomic.LoadUint32(&c.serial)
		next := old + 1
		if next == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&c.serial, old, next) {
			return next
		}
	}
}

func (c *Conn) resetSerial() {
	atomic.StoreUint32(&c.serial, 0)
}

// Connect dials the transport, runs the SASL handshake, and issues
// Hello(), bringing the connection to READY (spec §4.6 state diagram:
// DISCONNECTED → CONNECTING → AUTHENTICATING → CONNECTED → READY).
func (c *Conn) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.connectOnce(ctx); err != nil {
		return err
	}
	return nil
}

func (c *Conn) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)
	c.emit(EventConnecting, nil)

	tr, err := transport.Dial(ctx, c.addrs)
	if err != nil {
		c.setState(StateDisconnected)
		return newCallError(ErrNoServer, err.Error(), err)
	}

	c.setState(StateAuthenticating)
	mechs := c.cfg.Mechanisms
	client := sasl.NewClient(tr, tr, mechs...)
	if err := client.Authenticate(ctx); err != nil {
		tr.Close()
		c.setState(StateDisconnected)
		return newCallError(ErrAuthFailed, err.Error(), err)
	}

	c.mu.Lock()
	c.tr = tr
	c.reader = client.Reader()
	c.healthCh = make(chan struct{})
	c.connecting = true
	c.mu.Unlock()

	c.resetSerial()
	c.setState(StateConnected)
	c.emit(EventConnected, nil)

	go c.readLoop()

	hello := &Message{
		Type:        MsgCall,
		Path:        busPath,
		Interface:   busIface,
		Member:      "Hello",
		Destination: busDest,
	}
	reply, err := c.sendCall(ctx, hello, c.cfg.ConnectTimeout)
	if err != nil {
		c.teardown(err)
		return err
	}
	if len(reply.Body) != 1 {
		err := newCallError(ErrFailed, "Hello reply had unexpected body shape", nil)
		c.teardown(err)
		return err
	}
	name, ok := reply.Body[0].(Str)
	if !ok {
		err := newCallError(ErrFailed, "Hello reply body was not a string", nil)
		c.teardown(err)
		return err
	}
	c.mu.Lock()
	c.unique = string(name)
	c.connecting = false
	c.mu.Unlock()

	c.setState(StateReady)
	c.emit(EventReady, nil)
	c.pipe.DispatchConnectionActive()

	if c.cfg.HealthCheckEnabled {
		go c.healthLoop(c.healthCh)
	}
	return nil
}

func (c *Conn) currentTransport() transport.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr
}

func (c *Conn) readLoop() {
	c.mu.Lock()
	r := c.reader
	c.mu.Unlock()

	dec := &frame.Decoder{In: r}
	for {
		f, err := dec.Next()
		if err != nil {
			c.handleDisconnect(newCallError(ErrDisconnected, err.Error(), err))
			return
		}
		msg, err := DecodeMessage(f)
		if err != nil {
			// Codec/frame errors are fatal: the stream cannot be
			// resynchronized mid-message (spec §7).
			log.Printf("dbus[%s]: fatal decode error, closing connection: %v", c.id, err)
			c.pipe.DispatchInboundFailure(err)
			c.handleDisconnect(newCallError(ErrDisconnected, "malformed message received", err))
			return
		}
		c.dispatchInbound(msg)
	}
}

// dispatchInbound hands msg to the worker pool so a slow user handler
// never blocks the I/O read loop (spec §4.6 "Threading").
func (c *Conn) dispatchInbound(msg *Message) {
	select {
	case c.workC <- func() { c.pipe.DispatchInbound(msg) }:
	case <-c.stopC:
	}
}

// handleDisconnect transitions the connection out of READY on transport
// loss or a fatal protocol error, failing every pending reply and
// either entering RECONNECTING (if enabled) or the terminal
// DISCONNECTED state (spec §4.5 "Disconnect", §4.6 "Reconnection").
func (c *Conn) handleDisconnect(cause error) {
	c.mu.Lock()
	if c.closing || c.connecting || c.state == StateDisconnected || c.state == StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.stopHealthLocked()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}

	c.setState(StateDisconnected)
	c.pending.drain(cause)
	c.emit(EventDisconnected, cause)
	c.pipe.DispatchConnectionInactive()

	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return
	}

	if c.cfg.AutoReconnectEnabled {
		c.setState(StateReconnecting)
		c.emit(EventReconnecting, cause)
		go c.reconnectLoop()
	}
}

func (c *Conn) stopHealthLocked() {
	if c.healthCh != nil {
		close(c.healthCh)
		c.healthCh = nil
	}
}

// reconnectLoop retries connectOnce with exponential backoff and ±20%
// jitter until it succeeds, the attempt cap is reached, or the
// connection is closed (spec §4.6).
func (c *Conn) reconnectLoop() {
	delay := c.cfg.ReconnectInitialDelay
	attempt := 0
	for {
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			return
		}

		attempt++
		c.metrics.incReconnectAttempt()
		select {
		case <-time.After(jitter(delay)):
		case <-c.stopC:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.connectOnce(ctx)
		cancel()
		if err == nil {
			c.emit(EventReconnected, nil)
			return
		}

		log.Printf("dbus[%s]: reconnect attempt %d failed: %v", c.id, attempt, err)
		if c.cfg.MaxReconnectAttempts > 0 && attempt >= c.cfg.MaxReconnectAttempts {
			c.setState(StateFailed)
			c.emit(EventFailed, err)
			return
		}

		delay = time.Duration(float64(delay) * c.cfg.ReconnectBackoffMultiplier)
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

// jitter returns d adjusted by a uniformly random amount in [-20%, +20%].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.2
	delta := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + delta)
}

// healthLoop periodically issues Peer.Ping against the bus daemon
// itself; failure is treated the same as a transport error (spec
// §4.6).
func (c *Conn) healthLoop(stop <-chan struct{}) {
	t := time.NewTicker(c.cfg.HealthCheckInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.stopC:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthCheckTimeout)
			start := time.Now()
			ping := &Message{
				Type:        MsgCall,
				Path:        busPath,
				Interface:   "org.freedesktop.DBus.Peer",
				Member:      "Ping",
				Destination: busDest,
			}
			_, err := c.sendCall(ctx, ping, c.cfg.HealthCheckTimeout)
			cancel()
			c.metrics.observeHealthCheckMs(float64(time.Since(start).Milliseconds()))
			if err != nil {
				log.Printf("dbus[%s]: health check failed: %v", c.id, err)
				c.handleDisconnect(newCallError(ErrDisconnected, "health check failed", err))
				return
			}
		}
	}
}

// SendRequest sends msg as a method call and waits for its reply, per
// spec §6.4. The serial is assigned here, overwriting any value already
// set on msg. Callers do not need to set msg.Type; it is forced to
// MsgCall.
func (c *Conn) SendRequest(ctx context.Context, msg *Message) (*Message, error) {
	if !c.IsConnected() {
		return nil, newCallError(ErrDisconnected, "connection is not ready", nil)
	}
	msg.Type = MsgCall
	timeout := c.cfg.MethodCallTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}
	return c.sendCall(ctx, msg, timeout)
}

// SendAndForget sends msg with NO_REPLY_EXPECTED semantics and returns
// once the bytes are committed to the transport, per spec §6.4 (every
// outbound write returns a completion; requests wanting a reply go
// through SendRequest instead).
func (c *Conn) SendAndForget(ctx context.Context, msg *Message) error {
	if !c.IsConnected() {
		return newCallError(ErrDisconnected, "connection is not ready", nil)
	}
	msg.Flags |= FlagNoReplyExpected
	return c.sendAndForget(msg)
}

// sendCall is the shared engine behind SendRequest and the internal
// Hello/Ping calls issued before the connection reaches READY.
func (c *Conn) sendCall(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	msg.Serial = c.nextSerial()
	wantsReply := msg.WantsReply()

	var pr *pendingReply
	if wantsReply {
		pr = c.pending.register(msg.Serial, timeout)
	}

	completion := pipeline.NewCompletion()
	c.pipe.DispatchOutbound(msg, completion)
	if err := completion.Wait(); err != nil {
		if pr != nil {
			c.pending.cancelOne(msg.Serial)
		}
		return nil, err
	}
	if !wantsReply {
		return nil, nil
	}

	select {
	case reply, ok := <-pr.replyC:
		if !ok {
			return nil, newCallError(ErrDisconnected, "connection closed while waiting for reply", nil)
		}
		if reply.Type == MsgError {
			detail := ""
			if len(reply.Body) > 0 {
				if s, ok := reply.Body[0].(Str); ok {
					detail = string(s)
				}
			}
			return nil, newCallError(reply.ErrorName, detail, nil)
		}
		return reply, nil
	case <-ctx.Done():
		c.pending.cancelOne(msg.Serial)
		name := ErrDisconnected
		if ctx.Err() == context.DeadlineExceeded {
			name = ErrTimeout
		}
		return nil, newCallError(name, ctx.Err().Error(), ctx.Err())
	}
}

func (c *Conn) sendAndForget(msg *Message) error {
	if msg.Serial == 0 {
		msg.Serial = c.nextSerial()
	}
	completion := pipeline.NewCompletion()
	c.pipe.DispatchOutbound(msg, completion)
	return completion.Wait()
}

// teardown is used during connectOnce when a later step (Hello) fails
// after the transport and read loop are already up.
func (c *Conn) teardown(cause error) {
	c.mu.Lock()
	c.connecting = false
	c.stopHealthLocked()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
	c.pending.drain(cause)
	c.setState(StateDisconnected)
}

// Close shuts the connection down per spec §5: stop accepting new
// requests, close the transport, fail remaining pending replies with
// Disconnected, and stop the worker pool.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.closed = true
	c.stopHealthLocked()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	c.setState(StateClosed)
	c.pending.drain(newCallError(ErrDisconnected, "connection closed", nil))

	var err error
	if tr != nil {
		err = tr.Close()
	}

	close(c.stopC)
	done := make(chan struct{})
	go func() {
		c.workWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("dbus[%s]: worker pool did not shut down within grace period", c.id)
	}

	return err
}

// headHandler is the pipeline's fixed head (spec §4.4): it is the only
// handler that ever sees the transport directly. Outbound messages stop
// here; inbound messages are injected here by [Conn.dispatchInbound].
type headHandler struct {
	pipeline.Base
	conn *Conn
}

func (h *headHandler) OnOutboundMessage(ctx *pipeline.Context, msg any, completion *pipeline.Completion) {
	m, ok := msg.(*Message)
	if !ok {
		completion.Resolve(fmt.Errorf("dbus: head handler received non-Message outbound value %T", msg))
		return
	}
	f, err := EncodeMessage(m)
	if err != nil {
		completion.Resolve(err)
		return
	}
	bs := frame.Encode(f)

	tr := h.conn.currentTransport()
	if tr == nil {
		completion.Resolve(newCallError(ErrDisconnected, "no active transport", nil))
		return
	}
	h.conn.writeMu.Lock()
	_, err = tr.Write(bs)
	h.conn.writeMu.Unlock()
	completion.Resolve(err)
}
