// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultURL is the server address assumed when no WithServer option is
// given, matching every NATS client's out-of-the-box default.
const DefaultURL = "127.0.0.1:4222"

// Version is this module's protocol-client version, reported in CONNECT's
// connectInfo.Version field.
const Version = "0.1.0"

// defaultRequestTimeout bounds Request when the caller's ctx carries no
// deadline.
const defaultRequestTimeout = 2 * time.Second

// Status is the connection's three-state machine.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is the client connection. Its registry, correlator, counters, and
// outbound queue survive reconnects; only the socket, receiver, dispatcher,
// and sender are torn down and rebuilt per cycle by the supervisor loop run
// from Connect.
type Conn struct {
	opts     Options
	pool     *bufferPool
	registry *registry
	corr     *correlator
	counters *counters
	metrics  *connMetrics

	// outQueue is shared by every cycle's sender, so a Publish handed to it
	// while disconnected is still delivered once the next cycle's sender
	// starts draining.
	outQueue chan *buffer

	status     atomic.Int32
	serverInfo atomic.Pointer[[]byte]
	lastErr    atomic.Pointer[error]
	disposed   atomic.Bool

	pongMu      sync.Mutex
	pongWaiters []chan struct{}

	runMu       sync.Mutex
	cancelOuter context.CancelFunc
	loopDone    chan struct{}
}

// New constructs a Conn with no network activity yet; call Connect to start
// the supervisor loop.
func New(opts ...Option) *Conn {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}

	c := &Conn{
		opts:     o,
		pool:     newBufferPool(),
		counters: &counters{},
	}
	c.outQueue = make(chan *buffer, o.SenderQueueLength)
	c.registry = newRegistry(c.pool)

	if o.Registerer != nil {
		name := o.Name
		if name == "" {
			name = "default"
		}
		c.metrics = newConnMetrics(name)
		c.metrics.register(o.Registerer)
	}

	return c
}

// Connect starts the supervisor loop. It returns once the loop goroutine has
// been launched; it does not wait for the first connect attempt to succeed.
// Connecting asynchronously and reporting transitions through
// StatusChangedCB/ErrorCB is the point of an asynchronous client — use
// ConnectAndWait for a blocking convenience.
func (c *Conn) Connect() error {
	if c.disposed.Load() {
		return ErrAlreadyDisposed
	}
	if !c.status.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return ErrAlreadyConnected
	}

	var err error
	c.corr, err = newCorrelator(c.registry)
	if err != nil {
		c.status.Store(int32(Disconnected))
		return err
	}

	c.runMu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelOuter = cancel
	c.loopDone = make(chan struct{})
	c.runMu.Unlock()

	go c.superviseLoop(ctx)
	return nil
}

// ConnectAndWait is Connect plus a block until the first Connected
// transition (or ctx's deadline/cancellation, or a terminal dispose).
func (c *Conn) ConnectAndWait(ctx context.Context) error {
	if err := c.Connect(); err != nil {
		return err
	}
	for {
		switch Status(c.status.Load()) {
		case Connected:
			return nil
		}
		if c.disposed.Load() {
			return ErrAlreadyDisposed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Disconnect stops the supervisor loop without disposing the connection and
// closes the request correlator: a later Connect call resumes reconnecting
// with the same registry and outbound queue, and builds a fresh correlator
// under a new inbox prefix. Dispose, by contrast, is terminal.
func (c *Conn) Disconnect() error {
	if c.disposed.Load() {
		return ErrAlreadyDisposed
	}
	c.runMu.Lock()
	cancel := c.cancelOuter
	done := c.loopDone
	c.runMu.Unlock()
	if cancel == nil {
		return ErrConnectionClosed
	}
	cancel()
	if done != nil {
		<-done
	}
	if c.corr != nil {
		c.corr.close()
	}
	// superviseLoop always sets Disconnected itself before closing done.
	return nil
}

// Dispose permanently shuts the connection down: every blocked Subscription
// Next returns ErrConnectionClosed, and every subsequent operation returns
// ErrAlreadyDisposed.
func (c *Conn) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	// Disconnect refuses once disposed is set, so stop the loop directly.
	c.runMu.Lock()
	cancel := c.cancelOuter
	done := c.loopDone
	c.runMu.Unlock()
	if cancel != nil {
		cancel()
		if done != nil {
			<-done
		}
	}
	if c.corr != nil {
		c.corr.close()
	}
	c.registry.closeAll()
	return nil
}

// Drain unsubscribes every subscription, flushes queued frames, and then
// disposes the connection. Messages already queued in a subscription's inbox
// stay readable through Next; messages arriving after the unsubscribe,
// including replies to outstanding requests, are not delivered.
func (c *Conn) Drain(ctx context.Context) error {
	for _, sub := range c.registry.snapshot() {
		_ = sub.Unsubscribe()
	}
	_ = c.Flush(ctx)
	return c.Dispose()
}

// Status returns the connection's current three-state status.
func (c *Conn) Status() Status {
	return Status(c.status.Load())
}

// Stats returns a point-in-time snapshot of the connection's counters and, if
// metrics are registered, samples them into the Prometheus collectors.
func (c *Conn) Stats() Stats {
	s := c.counters.snapshot()
	c.metrics.sample(s)
	return s
}

// LastError returns the most recent asynchronous error surfaced through
// notifyError, or nil if none has occurred.
func (c *Conn) LastError() error {
	p := c.lastErr.Load()
	if p == nil {
		return nil
	}
	return *p
}

// ServerInfo returns the raw JSON payload of the most recent INFO frame, or
// nil if none has arrived yet.
func (c *Conn) ServerInfo() []byte {
	p := c.serverInfo.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (c *Conn) setServerInfo(info []byte) {
	cp := make([]byte, len(info))
	copy(cp, info)
	c.serverInfo.Store(&cp)
	if c.opts.ServerInfoCB != nil {
		c.opts.ServerInfoCB(c, cp)
	}
}

func (c *Conn) setStatus(s Status) {
	c.status.Store(int32(s))
	if c.metrics != nil {
		c.metrics.status.Set(float64(s))
	}
	if c.opts.StatusChangedCB != nil {
		c.opts.StatusChangedCB(c, s)
	}
}

func (c *Conn) notifyError(err error) {
	c.lastErr.Store(&err)
	c.opts.Logger.Error().Err(err).Msg("natscore: connection error")
	if c.opts.ErrorCB != nil {
		c.opts.ErrorCB(c, nil, err)
	}
}

func (c *Conn) notifySlowConsumer(sub *Subscription, err error) {
	c.opts.Logger.Warn().Str("subject", sub.Subject()).Msg("natscore: slow consumer")
	if c.opts.ErrorCB != nil {
		c.opts.ErrorCB(c, sub, err)
	}
}

func (c *Conn) notifyPong() {
	c.pongMu.Lock()
	if len(c.pongWaiters) == 0 {
		c.pongMu.Unlock()
		return
	}
	ch := c.pongWaiters[0]
	c.pongWaiters = c.pongWaiters[1:]
	c.pongMu.Unlock()
	close(ch)
}

func (c *Conn) addPongWaiter() chan struct{} {
	ch := make(chan struct{})
	c.pongMu.Lock()
	c.pongWaiters = append(c.pongWaiters, ch)
	c.pongMu.Unlock()
	return ch
}

func (c *Conn) removePongWaiter(target chan struct{}) {
	c.pongMu.Lock()
	defer c.pongMu.Unlock()
	for i, ch := range c.pongWaiters {
		if ch == target {
			c.pongWaiters = append(c.pongWaiters[:i], c.pongWaiters[i+1:]...)
			return
		}
	}
}

// Flush sends PING and blocks until the matching PONG arrives or ctx is
// done — confirmation that every frame enqueued before the call has reached
// the socket. Dispose does not wake a Flush that is already waiting.
func (c *Conn) Flush(ctx context.Context) error {
	ch := c.addPongWaiter()
	b := c.pool.buildPing()
	if err := c.enqueueOutCtx(ctx, b); err != nil {
		c.removePongWaiter(ch)
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		c.removePongWaiter(ch)
		return ctx.Err()
	}
}

// FlushTimeout is Flush bounded by a plain duration.
func (c *Conn) FlushTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Flush(ctx)
}

// enqueueOut hands b to the persistent outbound queue, blocking while full.
func (c *Conn) enqueueOut(b *buffer) error {
	if c.disposed.Load() {
		c.pool.put(b)
		return ErrAlreadyDisposed
	}
	c.outQueue <- b
	if c.counters != nil {
		c.counters.senderQueueBytes.Add(int64(b.Len))
	}
	return nil
}

// enqueueOutCtx is enqueueOut with cancellation.
func (c *Conn) enqueueOutCtx(ctx context.Context, b *buffer) error {
	if c.disposed.Load() {
		c.pool.put(b)
		return ErrAlreadyDisposed
	}
	select {
	case c.outQueue <- b:
		if c.counters != nil {
			c.counters.senderQueueBytes.Add(int64(b.Len))
		}
		return nil
	case <-ctx.Done():
		c.pool.put(b)
		return ctx.Err()
	}
}

// Publish sends subject/payload with no reply-to.
func (c *Conn) Publish(subject string, payload []byte) error {
	return c.PublishRequest(subject, "", payload)
}

// PublishRequest sends subject/payload with an explicit reply-to subject,
// the primitive Publish is built on.
func (c *Conn) PublishRequest(subject, replyTo string, payload []byte) error {
	b, err := c.pool.buildPub(subject, replyTo, payload)
	if err != nil {
		return err
	}
	return c.enqueueOut(b)
}

// PublishWithHeaders sends an HPUB frame carrying NATS/1.0 headers.
func (c *Conn) PublishWithHeaders(subject, replyTo string, headers []Header, payload []byte) error {
	b, err := c.pool.buildHPub(subject, replyTo, headers, payload)
	if err != nil {
		return err
	}
	return c.enqueueOut(b)
}

// Subscribe registers interest in subject, delivering matching messages to
// the returned Subscription's inbox. capacity bounds the inbox; zero selects
// Options.ReceiverQueueLength.
func (c *Conn) Subscribe(subject string, capacity int) (*Subscription, error) {
	return c.QueueSubscribe(subject, "", capacity)
}

// QueueSubscribe is Subscribe with a queue group: the server load-balances
// delivery across every subscriber sharing the group.
func (c *Conn) QueueSubscribe(subject, queueGroup string, capacity int) (*Subscription, error) {
	if c.disposed.Load() {
		return nil, ErrAlreadyDisposed
	}
	if capacity <= 0 {
		capacity = c.opts.ReceiverQueueLength
	}
	return c.registry.add(subject, queueGroup, capacity)
}

// codec returns Options.Serializer, falling back to RawCodec so the typed
// helpers below work even when the caller never configured one.
func (c *Conn) codec() Codec {
	if c.opts.Serializer != nil {
		return c.opts.Serializer
	}
	return RawCodec{}
}

// PublishValue encodes v with the configured Codec and publishes the result.
// Serializer plumbing is kept outside the core so the wire engine itself
// only ever moves bytes.
func (c *Conn) PublishValue(subject string, v any) error {
	data, err := c.codec().Encode(v)
	if err != nil {
		return err
	}
	return c.Publish(subject, data)
}

// DecodeValue decodes msg's payload into v with the configured Codec,
// wrapping a failure in DeserializationError, which is both reported through
// ErrorCB and returned.
func (c *Conn) DecodeValue(msg *Msg, v any) error {
	if err := c.codec().Decode(msg.Data, v); err != nil {
		derr := &DeserializationError{Subject: msg.Subject, Err: err}
		c.notifyError(derr)
		return derr
	}
	return nil
}

// Request publishes payload to subject with a private reply-to inbox and
// blocks for the first reply, ctx's cancellation, or defaultRequestTimeout
// if ctx carries no deadline.
func (c *Conn) Request(ctx context.Context, subject string, payload []byte) (*Msg, error) {
	if c.disposed.Load() {
		return nil, ErrAlreadyDisposed
	}
	if c.corr == nil {
		return nil, ErrConnectionClosed
	}

	replySubject, done := c.corr.register()

	b, err := c.pool.buildPub(subject, replySubject, payload)
	if err != nil {
		c.corr.drop(replySubject)
		return nil, err
	}
	if err := c.enqueueOutCtx(ctx, b); err != nil {
		c.corr.drop(replySubject)
		return nil, err
	}

	timeout := defaultRequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	// msg.Data is already materialized: it passed through the correlator's
	// own Subscription.Next, which materializes every Msg before returning it.
	return c.corr.await(ctx, replySubject, done, timeout)
}

// superviseLoop is the connection supervisor: dial, spawn
// receiver/dispatcher/sender under a fresh cancellable cycle, send CONNECT
// and replay subscriptions, wait for any of the three to fail, tear down,
// and retry until Disconnect/Dispose cancels the outer context.
func (c *Conn) superviseLoop(outerCtx context.Context) {
	defer close(c.loopDone)

	for {
		if outerCtx.Err() != nil {
			c.setStatus(Disconnected)
			return
		}
		c.setStatus(Connecting)

		tc, err := dialTCP(outerCtx, c.opts.Server)
		if err != nil {
			c.notifyError(err)
			if !c.sleepOrDone(outerCtx, c.opts.ReconnectDelay) {
				c.setStatus(Disconnected)
				return
			}
			continue
		}

		keepGoing := c.runCycle(outerCtx, tc)
		c.setStatus(Disconnected)
		if !keepGoing {
			return
		}

		if c.metrics != nil {
			c.metrics.reconnects.Add(1)
		}
		if !c.sleepOrDone(outerCtx, c.opts.ReconnectDelay) {
			c.setStatus(Disconnected)
			return
		}
	}
}

// runCycle drives one connected cycle to completion. It returns false if the
// outer context was cancelled and the supervisor loop should stop entirely,
// true if it should redial.
func (c *Conn) runCycle(outerCtx context.Context, tc netConn) bool {
	cycleCtx, cancelCycle := context.WithCancel(outerCtx)
	defer cancelCycle()
	defer tc.Close()

	pipe := newBytePipe(c.opts.ReadPipeHighWaterBytes)
	p := newParser(c.pool, c.opts.MaxPayloadSize)
	snd := newSender(c.pool, c.outQueue, tc, c.counters)
	rcv := newReceiver(tc, c.pool, pipe, c.counters)
	disp := newDispatcher(pipe, c.pool, p, snd, c.registry, c, c.counters)

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); errCh <- rcv.run(cycleCtx) }()
	go func() { defer wg.Done(); errCh <- disp.run(cycleCtx) }()
	go func() { defer wg.Done(); errCh <- snd.run(cycleCtx) }()

	connectJSON, err := connectInfoJSON(&c.opts)
	if err == nil {
		cb := c.pool.buildConnect(connectJSON)
		err = snd.enqueue(cb)
	}
	if err == nil {
		err = c.registry.resubscribe(snd)
	}
	if err != nil {
		c.notifyError(err)
		cancelCycle()
		wg.Wait()
		c.registry.setSender(nil)
		return outerCtx.Err() == nil
	}

	c.registry.setSender(snd)
	c.setStatus(Connected)

	firstErr := <-errCh
	cancelCycle()
	wg.Wait()
	c.registry.setSender(nil)

	if firstErr != nil && firstErr != context.Canceled {
		c.notifyError(firstErr)
	}
	return outerCtx.Err() == nil
}

// sleepOrDone waits d or until ctx is done, reporting which fired.
func (c *Conn) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
