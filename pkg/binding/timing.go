package binding

import (
	"time"

	"github.com/vango-dev/patchwire/pkg/loop"
)

// Debouncer delays calls until triggers have been quiet for the wait
// duration. With Leading the first trigger of a burst fires immediately;
// the trailing call fires only if Trailing is set and a trigger arrived
// after the leading one.
type Debouncer struct {
	loop     *loop.Loop
	wait     time.Duration
	leading  bool
	trailing bool

	timer   *loop.Timer
	fn      func()
	pending bool
}

// NewDebouncer creates a Debouncer running on l.
func NewDebouncer(l *loop.Loop, wait time.Duration, leading, trailing bool) *Debouncer {
	return &Debouncer{loop: l, wait: wait, leading: leading, trailing: trailing}
}

// Trigger records a call to fn. The most recent fn is the one that fires.
func (d *Debouncer) Trigger(fn func()) {
	d.fn = fn
	if d.timer.Active() {
		d.timer.Stop()
		d.pending = true
	} else if d.leading {
		d.pending = false
		fn()
	} else {
		d.pending = true
	}
	d.timer = d.loop.AfterFunc(d.wait, d.flush)
}

func (d *Debouncer) flush() {
	d.timer = nil
	fire := d.pending && d.trailing
	d.pending = false
	if fire {
		d.fn()
	}
}

// Pending reports whether a call is waiting for the quiet period.
func (d *Debouncer) Pending() bool {
	return d.timer.Active()
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.timer.Stop()
	d.timer = nil
	d.pending = false
}

// Throttler lets at most one call through per interval. With Leading the
// first trigger fires immediately; with Trailing a trigger during the
// interval fires once when it ends.
type Throttler struct {
	loop     *loop.Loop
	interval time.Duration
	leading  bool
	trailing bool

	timer   *loop.Timer
	fn      func()
	pending bool
}

// NewThrottler creates a Throttler running on l. A throttler without
// leading calls always fires trailing calls.
func NewThrottler(l *loop.Loop, interval time.Duration, leading, trailing bool) *Throttler {
	return &Throttler{loop: l, interval: interval, leading: leading, trailing: trailing || !leading}
}

// Trigger records a call to fn.
func (t *Throttler) Trigger(fn func()) {
	t.fn = fn
	if t.timer.Active() {
		if t.trailing {
			t.pending = true
		}
		return
	}
	if t.leading {
		fn()
	} else {
		t.pending = true
	}
	t.timer = t.loop.AfterFunc(t.interval, t.expire)
}

func (t *Throttler) expire() {
	t.timer = nil
	if !t.pending {
		return
	}
	t.pending = false
	t.fn()
	t.timer = t.loop.AfterFunc(t.interval, t.expire)
}

// Cancel drops any queued call and ends the current interval.
func (t *Throttler) Cancel() {
	t.timer.Stop()
	t.timer = nil
	t.pending = false
}

// Delayer runs each call after a fixed delay.
type Delayer struct {
	loop   *loop.Loop
	delay  time.Duration
	timers map[*loop.Timer]struct{}
}

// NewDelayer creates a Delayer running on l.
func NewDelayer(l *loop.Loop, delay time.Duration) *Delayer {
	return &Delayer{loop: l, delay: delay, timers: make(map[*loop.Timer]struct{})}
}

// Trigger schedules fn.
func (d *Delayer) Trigger(fn func()) {
	var t *loop.Timer
	t = d.loop.AfterFunc(d.delay, func() {
		delete(d.timers, t)
		fn()
	})
	d.timers[t] = struct{}{}
}

// Cancel stops every scheduled call.
func (d *Delayer) Cancel() {
	for t := range d.timers {
		t.Stop()
	}
	clear(d.timers)
}

// Interval calls fn every period until cancelled.
type Interval struct {
	loop   *loop.Loop
	period time.Duration
	fn     func()
	timer  *loop.Timer
	done   bool
}

// NewInterval starts an Interval on l.
func NewInterval(l *loop.Loop, period time.Duration, fn func()) *Interval {
	iv := &Interval{loop: l, period: period, fn: fn}
	iv.schedule()
	return iv
}

func (iv *Interval) schedule() {
	iv.timer = iv.loop.AfterFunc(iv.period, func() {
		if iv.done {
			return
		}
		iv.schedule()
		iv.fn()
	})
}

// Cancel stops the interval.
func (iv *Interval) Cancel() {
	iv.done = true
	iv.timer.Stop()
}
