package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const readBufSize = 4096

// Device keeps one serial connection alive. It reopens the port at a fixed
// interval after every failed open or unexpected disconnect until Close is
// called, and delivers parsed messages from the current connection only.
// It is safe for concurrent use by multiple goroutines.
type Device struct {
	cfg      Config
	open     Opener
	log      *zap.Logger
	clock    clock.Clock
	metrics  *Metrics
	events   *notifier
	interval atomic.Int64

	mu       sync.Mutex
	state    State
	gen      uint64
	current  *generation
	timer    *clock.Timer
	timerSeq uint64
}

// generation is one connect attempt and, if it opens, the connection that
// follows. Everything it produces is dropped once it is no longer current.
type generation struct {
	id       uint64
	ctx      context.Context
	cancel   context.CancelFunc
	port     Port
	openErr  error
	opened   chan struct{} // closed when the open attempt resolves
	readDone chan struct{} // closed when the read goroutine exits
	closed   chan struct{} // closed when teardown completes
	abnormal bool
	reason   string
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithClock sets the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(d *Device) { d.clock = c }
}

// WithOpener replaces OpenPort as the way ports are opened.
func WithOpener(o Opener) Option {
	return func(d *Device) { d.open = o }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// WithOnConnect registers a connect listener before New starts the
// auto-connect attempt, so the first notification cannot be missed.
func WithOnConnect(fn func()) Option {
	return func(d *Device) { d.OnConnect(fn) }
}

// WithOnData is the construction-time form of OnData.
func WithOnData(fn func(msg []byte)) Option {
	return func(d *Device) { d.OnData(fn) }
}

// WithOnClose is the construction-time form of OnClose.
func WithOnClose(fn func()) Option {
	return func(d *Device) { d.OnClose(fn) }
}

// New validates cfg and returns a Device. With cfg.AutoConnect the first
// connect attempt starts before New returns; its outcome is reported
// through connect listeners (see WithOnConnect) and the logs.
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	d := &Device{
		cfg:    cfg,
		open:   OpenPort,
		log:    zap.NewNop(),
		clock:  clock.New(),
		events: newNotifier(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(zap.String("device", cfg.Name), zap.String("path", cfg.Device))
	d.interval.Store(int64(cfg.ReconnectInterval))
	d.metrics.setState(StateDisconnected)

	if cfg.AutoConnect {
		d.mu.Lock()
		d.beginLocked()
		d.mu.Unlock()
	}
	return d, nil
}

func (d *Device) Name() string { return d.cfg.Name }
func (d *Device) Path() string { return d.cfg.Device }

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ReconnectInterval returns the delay used for the next reconnect.
func (d *Device) ReconnectInterval() time.Duration {
	return time.Duration(d.interval.Load())
}

// SetReconnectInterval changes the delay for reconnects scheduled from now
// on. A timer that is already pending keeps its original deadline.
func (d *Device) SetReconnectInterval(interval time.Duration) {
	d.interval.Store(int64(interval))
}

// OnConnect registers fn to run after every successful open.
func (d *Device) OnConnect(fn func()) (unsubscribe func()) {
	return d.events.subscribe(listener{kind: eventConnect, onEvent: fn})
}

// OnData registers fn to run for every parsed message. The slice is
// shared between listeners and must not be modified.
func (d *Device) OnData(fn func(msg []byte)) (unsubscribe func()) {
	return d.events.subscribe(listener{kind: eventData, onData: fn})
}

// OnClose registers fn to run after every completed teardown, whether it
// was caused by Close or by the device going away.
func (d *Device) OnClose(fn func()) (unsubscribe func()) {
	return d.events.subscribe(listener{kind: eventClose, onEvent: fn})
}

// Connect opens the port if the device is disconnected and waits for the
// attempt to resolve. It is a no-op when already connected and joins the
// attempt in flight when connecting, so there is never more than one open
// at a time. While a teardown is running it waits for it and then connects.
//
// A failed attempt returns an *OpenError; the retry has already been
// scheduled and the caller does not need to act on it.
func (d *Device) Connect(ctx context.Context) error {
	for {
		d.mu.Lock()
		switch d.state {
		case StateConnected:
			d.mu.Unlock()
			return nil
		case StateClosing:
			g := d.current
			d.mu.Unlock()
			select {
			case <-g.closed:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateConnecting:
			g := d.current
			d.mu.Unlock()
			return d.awaitOpen(ctx, g)
		default:
			g := d.beginLocked()
			d.mu.Unlock()
			return d.awaitOpen(ctx, g)
		}
	}
}

func (d *Device) awaitOpen(ctx context.Context, g *generation) error {
	select {
	case <-g.opened:
		return g.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the current connection and cancels any pending
// reconnect. It waits for the teardown, including the close notification
// being queued, unless ctx ends first. Closing a disconnected device is a
// no-op and fires no notification.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	d.cancelTimerLocked()
	g := d.current
	switch d.state {
	case StateDisconnected:
		d.mu.Unlock()
		return nil
	case StateConnecting:
		d.log.Info("connect attempt abandoned", zap.Uint64("generation", g.id))
		d.current = nil
		d.setStateLocked(StateDisconnected)
		g.cancel()
		g.openErr = ErrConnectAborted
		close(g.opened)
		d.mu.Unlock()
		return nil
	case StateConnected:
		g.abnormal = false
		d.setStateLocked(StateClosing)
		go d.teardown(g)
	case StateClosing:
		// A teardown after a read failure is already running; make sure it
		// does not schedule a reconnect.
		g.abnormal = false
	}
	d.mu.Unlock()

	select {
	case <-g.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes payload to the open port. It fails with a *WriteError when
// the device is not connected or the write fails; it never retries.
func (d *Device) Send(payload []byte) error {
	d.mu.Lock()
	g := d.current
	connected := d.state == StateConnected
	d.mu.Unlock()

	if !connected {
		d.metrics.writeFailed()
		return &WriteError{Payload: payload, Err: ErrNotConnected}
	}
	n, err := g.port.Write(payload)
	d.metrics.wrote(n)
	if err != nil {
		d.metrics.writeFailed()
		d.log.Warn("write failed",
			zap.Uint64("generation", g.id),
			zap.ByteString("payload", payload),
			zap.Error(err),
		)
		return &WriteError{Payload: payload, Err: err}
	}
	return nil
}

// SendString is Send for text payloads.
func (d *Device) SendString(s string) error {
	return d.Send([]byte(s))
}

// ── state machine internals ────────────────────────────────────────────────

func (d *Device) setStateLocked(s State) {
	d.state = s
	d.metrics.setState(s)
}

// beginLocked starts a new generation and its open attempt.
func (d *Device) beginLocked() *generation {
	d.cancelTimerLocked()
	d.gen++
	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{
		id:       d.gen,
		ctx:      ctx,
		cancel:   cancel,
		opened:   make(chan struct{}),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	d.current = g
	d.setStateLocked(StateConnecting)
	d.cfg.Parser.Reset()
	d.log.Debug("connecting", zap.Uint64("generation", g.id))
	go d.dial(g)
	return g
}

func (d *Device) dial(g *generation) {
	port, err := d.open(g.ctx, d.cfg)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != g {
		// Abandoned by Close; opened channel is already closed.
		if port != nil {
			port.Close()
		}
		d.log.Debug("discarding stale open result", zap.Uint64("generation", g.id))
		return
	}
	defer close(g.opened)
	g.cancel()

	if err != nil {
		g.openErr = &OpenError{Device: d.cfg.Device, Err: err}
		d.current = nil
		d.setStateLocked(StateDisconnected)
		d.metrics.openFailed()
		d.log.Warn("open failed",
			zap.Uint64("generation", g.id),
			zap.Duration("retry_in", d.ReconnectInterval()),
			zap.Error(err),
		)
		d.scheduleReconnectLocked()
		return
	}

	g.port = port
	go d.readLoop(g)
	d.setStateLocked(StateConnected)
	d.metrics.connected()
	d.log.Info("connected", zap.Uint64("generation", g.id))
	d.events.emit(event{kind: eventConnect})
}

// readLoop is the read pipeline of one generation.
func (d *Device) readLoop(g *generation) {
	defer close(g.readDone)
	buf := make([]byte, readBufSize)
	for {
		n, err := g.port.Read(buf)
		if n > 0 {
			d.deliver(g, buf[:n])
		}
		if err != nil {
			d.readFailed(g, err)
			return
		}
	}
}

// deliver parses chunk and queues the messages if g is still the live
// connection. Parsing happens under the lock so that a parser reset for
// the next generation never races with a late chunk.
func (d *Device) deliver(g *generation, chunk []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != g || d.state != StateConnected {
		return
	}
	msgs := d.cfg.Parser.Parse(chunk)
	for _, msg := range msgs {
		d.events.emit(event{kind: eventData, msg: msg})
	}
	d.metrics.received(len(msgs))
}

func (d *Device) readFailed(g *generation, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != g || d.state != StateConnected {
		return
	}

	var reported error
	if errors.Is(err, io.EOF) {
		reported = &AbnormalDisconnect{Device: d.cfg.Device, Err: err}
		g.reason = reasonHangup
	} else {
		reported = &RuntimeError{Device: d.cfg.Device, Err: err}
		g.reason = reasonReadFail
	}
	d.log.Warn("connection lost",
		zap.Uint64("generation", g.id),
		zap.Duration("retry_in", d.ReconnectInterval()),
		zap.Error(reported),
	)
	g.abnormal = true
	d.setStateLocked(StateClosing)
	go d.teardown(g)
}

// teardown closes the port of g, waits for its read pipeline to stop and
// completes the Closing -> Disconnected transition.
func (d *Device) teardown(g *generation) {
	if err := g.port.Close(); err != nil {
		d.log.Debug("port close", zap.Uint64("generation", g.id), zap.Error(err))
	}
	<-g.readDone

	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = nil
	d.setStateLocked(StateDisconnected)
	if g.abnormal {
		d.metrics.disconnected(g.reason)
		d.scheduleReconnectLocked()
	} else {
		d.metrics.disconnected(reasonClosed)
		d.log.Info("disconnected", zap.Uint64("generation", g.id))
	}
	d.events.emit(event{kind: eventClose})
	close(g.closed)
}

// scheduleReconnectLocked arms the single reconnect timer, replacing any
// pending one.
func (d *Device) scheduleReconnectLocked() {
	d.cancelTimerLocked()
	seq := d.timerSeq
	d.timer = d.clock.AfterFunc(d.ReconnectInterval(), func() {
		d.reconnect(seq)
	})
	d.metrics.reconnectScheduled()
}

// cancelTimerLocked stops the pending timer. Bumping the sequence makes a
// callback that already fired a no-op.
func (d *Device) cancelTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerSeq++
}

func (d *Device) reconnect(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.timerSeq || d.timer == nil {
		return
	}
	d.timer = nil
	if d.state != StateDisconnected {
		return
	}
	d.log.Info("reconnecting")
	d.beginLocked()
}
