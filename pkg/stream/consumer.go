package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/metrics"
)

// State is the lifecycle state of a Consumer.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is closed or errored.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// Sink receives decoded events on the loop.
type Sink interface {
	HandleEvent(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// HandleEvent calls f.
func (f SinkFunc) HandleEvent(ev Event) error { return f(ev) }

// DefaultIdleTimeout is how long an open stream may stay silent.
const DefaultIdleTimeout = 60 * time.Second

// Consumer follows one stream.
type Consumer struct {
	id      string
	loop    *loop.Loop
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	idleTimeout time.Duration
	tap         func(Frame)
	onDone      func(State, error)

	state atomic.Int32

	// Owned by the loop.
	idle   *loop.Timer
	err    error
	frames int

	mu     sync.Mutex
	cancel context.CancelFunc
	body   io.Closer

	done chan struct{}
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithIdleTimeout sets the idle timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		c.idleTimeout = d
	}
}

// WithTap registers fn to see every raw frame. fn runs on the reading
// goroutine, before the frame is decoded.
func WithTap(fn func(Frame)) Option {
	return func(c *Consumer) {
		c.tap = fn
	}
}

// WithOnDone registers fn to run on the loop once the consumer reaches a
// terminal state, before Done is closed.
func WithOnDone(fn func(State, error)) Option {
	return func(c *Consumer) {
		c.onDone = fn
	}
}

// WithID overrides the generated consumer id.
func WithID(id string) Option {
	return func(c *Consumer) {
		c.id = id
	}
}

// NewConsumer creates a Consumer in the connecting state.
func NewConsumer(l *loop.Loop, sink Sink, opts ...Option) *Consumer {
	c := &Consumer{
		id:          ulid.Make().String(),
		loop:        l,
		sink:        sink,
		logger:      slog.Default(),
		idleTimeout: DefaultIdleTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("stream", c.id)
	return c
}

// ID returns the consumer id.
func (c *Consumer) ID() string {
	return c.id
}

// State returns the current state. Safe from any goroutine.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Err returns the terminal error, if any. Read it on the loop or after
// Done is closed.
func (c *Consumer) Err() error {
	return c.err
}

// Frames returns the number of frames delivered to the sink.
func (c *Consumer) Frames() int {
	return c.frames
}

// Done is closed once the consumer reaches a terminal state.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Open issues req with client and consumes the response body. It returns
// immediately; the request runs on its own goroutine.
func (c *Consumer) Open(ctx context.Context, client *http.Client, req *http.Request) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(ctx)
	if !c.setCancel(cancel) {
		cancel()
		return
	}
	go func() {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			c.post(func() { c.finish(errors.New("E060").Wrap(err)) })
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			c.post(func() {
				c.finish(errors.New("E062").WithDetailf("%s %s: %s", req.Method, req.URL, resp.Status))
			})
			return
		}
		c.consume(resp.Body)
	}()
}

// OpenWebSocket dials url and consumes frames sent as text messages.
func (c *Consumer) OpenWebSocket(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(ctx)
	if !c.setCancel(cancel) {
		cancel()
		return
	}
	go func() {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				err = fmt.Errorf("%w (status %s)", err, resp.Status)
			}
			c.post(func() { c.finish(errors.New("E060").Wrap(err)) })
			return
		}
		c.consume(&wsBody{conn: conn})
	}()
}

// Consume reads frames from an already open body.
func (c *Consumer) Consume(body io.ReadCloser) {
	go c.consume(body)
}

func (c *Consumer) setCancel(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State().Terminal() {
		return false
	}
	c.cancel = cancel
	return true
}

func (c *Consumer) consume(body io.ReadCloser) {
	c.mu.Lock()
	if c.State().Terminal() {
		c.mu.Unlock()
		body.Close()
		return
	}
	c.body = body
	c.mu.Unlock()

	c.post(c.opened)

	r := NewReader(body)
	for {
		f, err := r.Next()
		if errors.IsKind(err, errors.KindMalformedFrame) {
			c.metrics.StreamFrameError()
			c.logger.Warn("stream frame dropped", "error", err, "event", f.Event)
			continue
		}
		if err != nil {
			if err == io.EOF {
				c.post(func() { c.finish(nil) })
			} else {
				c.post(func() { c.finish(errors.New("E061").Wrap(err)) })
			}
			return
		}
		if c.tap != nil {
			c.tap(f)
		}
		ev, err := Decode(f)
		if err != nil {
			c.metrics.StreamFrameError()
			c.logger.Warn("stream frame dropped", "error", err, "event", f.Event)
			continue
		}
		c.post(func() { c.deliver(ev) })
	}
}

// post runs fn on the loop. If the loop is gone the consumer is shut down
// from the calling goroutine.
func (c *Consumer) post(fn func()) {
	if !c.loop.Post(fn) {
		c.shutdown()
		if c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) ||
			c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
			close(c.done)
		}
	}
}

func (c *Consumer) opened() {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return
	}
	c.metrics.StreamOpened()
	c.logger.Debug("stream open")
	c.resetIdle()
}

func (c *Consumer) resetIdle() {
	if c.idleTimeout <= 0 {
		return
	}
	c.idle.Stop()
	c.idle = c.loop.AfterFunc(c.idleTimeout, func() {
		c.finish(errors.New("E063").WithDetailf("no frame for %s", c.idleTimeout))
	})
}

func (c *Consumer) deliver(ev Event) {
	if c.State() != StateOpen {
		return
	}
	c.resetIdle()
	if _, ok := ev.(KeepAlive); ok {
		return
	}
	c.frames++
	c.metrics.StreamFrame(Name(ev))
	if err := c.sink.HandleEvent(ev); err != nil {
		c.metrics.StreamFrameError()
		c.logger.Warn("stream event failed", "error", err, "event", Name(ev))
	}
}

// Close ends the stream and cancels the underlying request. Must be called
// on the loop.
func (c *Consumer) Close() {
	c.finish(nil)
}

// finish moves the consumer to a terminal state. Runs on the loop.
func (c *Consumer) finish(err error) {
	next := StateClosed
	if err != nil {
		next = StateErrored
	}
	for {
		cur := c.state.Load()
		if State(cur).Terminal() {
			return
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			break
		}
	}
	c.err = err
	c.idle.Stop()
	c.idle = nil
	c.shutdown()

	if err != nil {
		c.metrics.StreamError(reason(err))
		c.logger.Warn("stream errored", "error", err)
	} else {
		c.metrics.StreamClosed()
		c.logger.Debug("stream closed", "frames", c.frames)
	}
	if c.onDone != nil {
		c.onDone(next, err)
	}
	close(c.done)
}

func (c *Consumer) shutdown() {
	c.mu.Lock()
	cancel, body := c.cancel, c.body
	c.cancel, c.body = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
}

func reason(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return "unknown"
}

// wsBody reads text messages from a websocket connection as one byte
// stream.
type wsBody struct {
	conn *websocket.Conn
	cur  io.Reader
}

func (b *wsBody) Read(p []byte) (int, error) {
	for {
		if b.cur == nil {
			typ, r, err := b.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.TextMessage {
				continue
			}
			b.cur = r
		}
		n, err := b.cur.Read(p)
		if err == io.EOF {
			b.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (b *wsBody) Close() error {
	return b.conn.Close()
}
