package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/pagewire/pkg/protocol"
)

var (
	ErrClientClosed       = errors.New("channel: client closed")
	ErrResponseTimeout    = errors.New("channel: response timeout")
	ErrReconnectExhausted = errors.New("channel: reconnect attempts exhausted")
	ErrQueueFull          = errors.New("channel: outbound queue full")
	ErrInvalidEndpoint    = errors.New("channel: invalid endpoint")
	ErrPingTimeout        = errors.New("channel: pong not received")
	ErrAlreadyConnected   = errors.New("channel: already connected")
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives inbound messages that are not replies to a pending
// EnqueueWithResponse. It runs on the read goroutine and must not block.
type Handler func(msg *protocol.Message)

// Observer is notified of client activity, typically pkg/metrics.
type Observer interface {
	StateChanged(s State)
	MessageSent()
	MessageReceived()
	DecodeFailed()
	SendRetried()
	Reconnecting()
	QueueDepth(n int)
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the default GorillaDialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client owns one outbound connection to the relay. It keeps the connection
// alive with heartbeats, queues and retries outbound messages, and
// reconnects with backoff. It knows nothing of sessions or pages.
type Client struct {
	cfg      Config
	dialer   Dialer
	logger   *slog.Logger
	observer Observer

	state   atomic.Int32
	queue   *queue
	pending *pendingRequests
	policy  *reconnectPolicy

	handlerMu sync.RWMutex
	handler   Handler

	hooksMu        sync.Mutex
	onReconnecting []func()
	onReconnected  []func()

	// drainMu is held for the whole of one drain cycle.
	drainMu sync.Mutex

	started   atomic.Bool
	opened    chan struct{}
	openOnce  sync.Once
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// New validates cfg and returns an unconnected client. An endpoint whose
// scheme is not ws or wss is rejected here.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := ValidateEndpoint(cfg.URL); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		dialer:  GorillaDialer{},
		queue:   &queue{limit: cfg.MaxQueue},
		pending: newPendingRequests(),
		policy:  newReconnectPolicy(cfg),
		opened:  make(chan struct{}),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "channel", "endpoint", cfg.URL)
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Done is closed once the client has shut down or given up reconnecting.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the client stopped: ErrClientClosed after Close,
// ErrReconnectExhausted after giving up, nil while running.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// QueueLen returns the number of queued outbound messages.
func (c *Client) QueueLen() int { return c.queue.len() }

// RegisterHandler sets the handler for inbound messages, replacing any
// previous one.
func (c *Client) RegisterHandler(h Handler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// OnReconnecting registers fn to run when an open connection is lost.
func (c *Client) OnReconnecting(fn func()) {
	c.hooksMu.Lock()
	c.onReconnecting = append(c.onReconnecting, fn)
	c.hooksMu.Unlock()
}

// OnReconnected registers fn to run when a lost connection is re-established.
func (c *Client) OnReconnected(fn func()) {
	c.hooksMu.Lock()
	c.onReconnected = append(c.onReconnected, fn)
	c.hooksMu.Unlock()
}

// Enqueue queues payload for sending, preserving FIFO order with other
// enqueued messages. It returns once the message is queued.
func (c *Client) Enqueue(id string, payload protocol.Payload) error {
	if c.isClosing() {
		return ErrClientClosed
	}
	data, err := protocol.EncodeMessage(&protocol.Message{ID: id, Payload: payload})
	if err != nil {
		return err
	}
	if err := c.queue.push(outbound{id: id, data: data}); err != nil {
		return err
	}
	c.observeQueue()
	return nil
}

// EnqueueWithResponse queues payload and waits for the reply carrying the
// same correlation id. An empty id is replaced with a random one. Fails
// with ErrResponseTimeout after Config.ResponseTimeout and with
// ErrClientClosed if the client shuts down first.
func (c *Client) EnqueueWithResponse(ctx context.Context, id string, payload protocol.Payload) (*protocol.Message, error) {
	if id == "" {
		id = uuid.NewString()
	}
	wait := c.pending.add(id)
	if err := c.Enqueue(id, payload); err != nil {
		c.pending.remove(id)
		return nil, err
	}

	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case r := <-wait:
		return r.msg, r.err
	case <-timer.C:
		c.pending.remove(id)
		return nil, fmt.Errorf("%w: %s", ErrResponseTimeout, id)
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, ctx.Err()
	}
}

// Connect starts the connection supervisor and blocks until the first
// connection is open. Failed attempts are retried under the reconnect
// policy; Connect returns ErrReconnectExhausted if it gives up, or ctx's
// error. The supervisor keeps running after ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosing() {
		return ErrClientClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	go c.supervise()

	select {
	case <-c.opened:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the client down: timers stop, an in-flight drain gets up to
// Config.ShutdownTimeout to finish, remaining messages get one best-effort
// flush, the transport is closed and pending requests fail with
// ErrClientClosed. Close blocks until that completes or ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.closing) })
	if !c.started.Swap(true) {
		// Never connected: nothing to flush.
		c.finish(nil, ErrClientClosed)
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	if c.observer != nil {
		c.observer.StateChanged(s)
	}
}

// supervise owns the connection: dial, run until lost, back off, repeat.
func (c *Client) supervise() {
	wasOpen := false
	for {
		c.setState(StateConnecting)
		conn, err := c.dial()
		if err == nil {
			c.policy.reset()
			if wasOpen {
				c.logger.Info("reconnected")
				c.runHooks(c.reconnectedHooks())
			}
			wasOpen = true
			lost := c.serve(conn)
			if lost == nil {
				return // shut down
			}
			c.logger.Warn("connection lost", "error", lost)
			if c.observer != nil {
				c.observer.Reconnecting()
			}
			c.runHooks(c.reconnectingHooks())
		} else {
			if c.isClosing() {
				c.finish(nil, ErrClientClosed)
				return
			}
			c.logger.Warn("connect failed", "error", err)
		}

		c.setState(StateDisconnected)
		delay, ok := c.policy.next()
		if !ok {
			c.logger.Error("giving up on relay connection",
				"attempts", c.cfg.ReconnectAttempts,
				"window", c.cfg.ReconnectWindow)
			c.finish(nil, ErrReconnectExhausted)
			return
		}
		c.logger.Debug("reconnecting", "delay", delay)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-c.closing:
			t.Stop()
			c.finish(nil, ErrClientClosed)
			return
		}
	}
}

func (c *Client) dial() (Transport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.InstanceID != "" {
		header.Set("X-Instance-Id", c.cfg.InstanceID)
	}
	return c.dialer.Dial(ctx, c.cfg.URL, header)
}

// serve runs one open connection. It returns the error that ended it, or
// nil after a shutdown (which it completes itself).
func (c *Client) serve(conn Transport) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.setState(StateOpen)
	c.openOnce.Do(func() { close(c.opened) })
	c.logger.Info("connected")

	errCh := make(chan error, 3)
	var loops, drain sync.WaitGroup
	loops.Add(2)
	drain.Add(1)
	go func() { defer loops.Done(); errCh <- c.readLoop(ctx, conn) }()
	go func() { defer loops.Done(); errCh <- c.heartbeatLoop(ctx, conn) }()
	go func() { defer drain.Done(); c.drainLoop(ctx, conn) }()

	select {
	case err := <-errCh:
		cancel()
		conn.Close()
		loops.Wait()
		drain.Wait()
		return err
	case <-c.closing:
		c.shutdown(conn, &drain, cancel)
		loops.Wait()
		return nil
	}
}

// shutdown lets an in-flight drain cycle finish, bounded by
// ShutdownTimeout, then cancels the connection loops and flushes.
func (c *Client) shutdown(conn Transport, drain *sync.WaitGroup, cancel context.CancelFunc) {
	c.setState(StateClosing)

	finished := make(chan struct{})
	go func() { drain.Wait(); close(finished) }()
	t := time.NewTimer(c.cfg.ShutdownTimeout)
	select {
	case <-finished:
		t.Stop()
	case <-t.C:
		c.logger.Warn("drain did not finish before shutdown timeout")
	}
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	if c.drainMu.TryLock() {
		c.flushOnce(ctx, conn)
		c.drainMu.Unlock()
	}
	stop()

	c.finish(conn, ErrClientClosed)
}

// finish closes the transport, fails pending requests and signals Done.
func (c *Client) finish(conn Transport, reason error) {
	if conn != nil {
		conn.Close()
	}
	c.errMu.Lock()
	if c.err == nil {
		c.err = reason
	}
	c.errMu.Unlock()

	c.pending.failAll(reason)
	c.setState(StateDisconnected)
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if n := c.queue.len(); n > 0 {
		c.logger.Warn("unsent messages dropped", "count", n)
	}
}

func (c *Client) readLoop(ctx context.Context, conn Transport) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if c.observer != nil {
			c.observer.MessageReceived()
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("dropping undecodable message", "error", err, "size", len(data))
			if c.observer != nil {
				c.observer.DecodeFailed()
			}
			continue
		}
		if msg.ID != "" && c.pending.resolve(msg) {
			continue
		}

		c.handlerMu.RLock()
		h := c.handler
		c.handlerMu.RUnlock()
		if h == nil {
			c.logger.Debug("no handler for message", "type", msg.Payload.Type())
			continue
		}
		h(msg)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, conn Transport) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 2*c.cfg.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: %v", ErrPingTimeout, err)
			}
		}
	}
}

func (c *Client) drainLoop(ctx context.Context, conn Transport) {
	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		case <-ticker.C:
			c.drainMu.Lock()
			c.drainOnce(ctx, conn)
			c.drainMu.Unlock()
		}
	}
}

// drainOnce sends queued messages in order. A message that fails every
// attempt stops the cycle and stays at the head of the queue.
func (c *Client) drainOnce(ctx context.Context, conn Transport) {
	for ctx.Err() == nil {
		m, ok := c.queue.peek()
		if !ok {
			return
		}
		if err := c.sendWithRetry(ctx, conn, m); err != nil {
			c.logger.Warn("send failed, will retry next cycle",
				"message_id", m.id,
				"attempts", c.cfg.SendAttempts,
				"error", err)
			return
		}
		c.queue.pop()
		c.observeQueue()
	}
}

// flushOnce is the final best-effort flush at shutdown: one attempt per
// message, stop at the first failure.
func (c *Client) flushOnce(ctx context.Context, conn Transport) {
	for ctx.Err() == nil {
		m, ok := c.queue.peek()
		if !ok {
			return
		}
		if err := c.write(ctx, conn, m); err != nil {
			return
		}
		c.queue.pop()
	}
}

func (c *Client) sendWithRetry(ctx context.Context, conn Transport, m outbound) error {
	backoff := c.cfg.SendBackoff
	var err error
	for attempt := 1; attempt <= c.cfg.SendAttempts; attempt++ {
		if err = c.write(ctx, conn, m); err == nil {
			return nil
		}
		if attempt == c.cfg.SendAttempts {
			break
		}
		if c.observer != nil {
			c.observer.SendRetried()
		}
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func (c *Client) write(ctx context.Context, conn Transport, m outbound) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, m.data); err != nil {
		return err
	}
	if c.observer != nil {
		c.observer.MessageSent()
	}
	return nil
}

func (c *Client) observeQueue() {
	if c.observer != nil {
		c.observer.QueueDepth(c.queue.len())
	}
}

func (c *Client) reconnectingHooks() []func() {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	return append([]func(){}, c.onReconnecting...)
}

func (c *Client) reconnectedHooks() []func() {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	return append([]func(){}, c.onReconnected...)
}

func (c *Client) runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
