package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("loop: closed")

// DefaultQueueSize is the default task queue capacity.
const DefaultQueueSize = 1024

// Loop is a single-goroutine task queue.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	clock  Clock
	logger *slog.Logger

	timers atomic.Int64

	// running is set while a task executes; used to detect re-entrant Drain.
	running atomic.Bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock used for timers.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the logger used to report task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		clock:  RealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the loop's clock.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Post enqueues fn. It is safe to call from any goroutine.
// Returns false if the loop has been closed.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes tasks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		}
	}
}

// Drain runs queued tasks on the calling goroutine until the queue is empty,
// including tasks posted by the tasks themselves. It returns the number of
// tasks run. Calling Drain from inside a task is a no-op.
func (l *Loop) Drain() int {
	if !l.running.CompareAndSwap(false, true) {
		return 0
	}
	defer l.running.Store(false)

	n := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.execute(fn)
		n++
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// execute runs a task with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Close stops Run and rejects further posts. Queued tasks are dropped.
func (l *Loop) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.done)
	l.mu.Lock()
	l.tasks = nil
	l.mu.Unlock()
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a one-shot timer whose callback runs on the loop.
type Timer struct {
	l     *Loop
	stop  func() bool
	state atomic.Int32 // 0 pending, 1 fired, 2 stopped
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{l: l}
	l.timers.Add(1)
	t.stop = l.clock.AfterFunc(d, func() {
		posted := l.Post(func() {
			if !t.state.CompareAndSwap(0, 1) {
				return
			}
			l.timers.Add(-1)
			fn()
		})
		if !posted && t.state.CompareAndSwap(0, 2) {
			l.timers.Add(-1)
		}
	})
	return t
}

// Stop cancels the timer. It reports whether the callback was prevented.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(0, 2) {
		return false
	}
	t.l.timers.Add(-1)
	t.stop()
	return true
}

// Active reports whether the timer is still pending.
func (t *Timer) Active() bool {
	return t != nil && t.state.Load() == 0
}

// PendingTimers returns the number of timers that have neither fired nor
// been stopped.
func (l *Loop) PendingTimers() int {
	return int(l.timers.Load())
}
