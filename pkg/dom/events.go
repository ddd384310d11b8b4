package dom

import (
	"golang.org/x/net/html"
)

// Event is a DOM event being dispatched.
type Event struct {
	// Type is the event name (e.g. "click", "input").
	Type string

	// Target is the element the event was dispatched to; nil for window events.
	Target *html.Node

	// CurrentTarget is the element whose listener is running.
	CurrentTarget *html.Node

	// Key is the key for keyboard events.
	Key string

	// Detail carries custom event payload.
	Detail any

	defaultPrevented bool
	stopped          bool
	passive          bool
}

// NewEvent returns an event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ}
}

// PreventDefault marks the default action as cancelled.
// It has no effect inside a passive listener.
func (e *Event) PreventDefault() {
	if e.passive {
		return
	}
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// StopPropagation stops the event from reaching further nodes.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool {
	return e.stopped
}

// Listener handles an event.
type Listener func(*Event)

// ListenerOptions mirror addEventListener options.
type ListenerOptions struct {
	Capture bool
	Once    bool
	Passive bool
}

type listener struct {
	id      uint64
	typ     string
	fn      Listener
	opts    ListenerOptions
	removed bool
}

// AddEventListener registers fn for events of typ on n. A nil n registers a
// window-scoped listener. The returned function removes the listener.
func (d *Document) AddEventListener(n *html.Node, typ string, fn Listener, opts ListenerOptions) (remove func()) {
	d.nextID++
	l := &listener{id: d.nextID, typ: typ, fn: fn, opts: opts}
	if n == nil {
		d.window = append(d.window, l)
	} else {
		st := d.ensure(n)
		st.listeners = append(st.listeners, l)
	}
	return func() {
		d.removeListener(n, l)
	}
}

func (d *Document) removeListener(n *html.Node, l *listener) {
	l.removed = true
	var list *[]*listener
	if n == nil {
		list = &d.window
	} else {
		st, ok := d.state[n]
		if !ok {
			return
		}
		list = &st.listeners
	}
	for i, x := range *list {
		if x == l {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of listeners on n (nil for window).
func (d *Document) ListenerCount(n *html.Node) int {
	if n == nil {
		return len(d.window)
	}
	if st, ok := d.state[n]; ok {
		return len(st.listeners)
	}
	return 0
}

// DispatchEvent dispatches ev to target through the capture, target and
// bubble phases, with window listeners outermost. A nil target dispatches
// to window listeners only. It returns false if the default was prevented.
func (d *Document) DispatchEvent(target *html.Node, ev *Event) bool {
	ev.Target = target

	var path []*html.Node
	for n := target; n != nil; n = n.Parent {
		path = append(path, n)
	}
	connected := target == nil || d.Contains(target)

	// Capture: window, then root → target's parent.
	if connected && !ev.stopped {
		d.invoke(nil, ev, true, false)
	}
	for i := len(path) - 1; i >= 1 && !ev.stopped; i-- {
		d.invoke(path[i], ev, true, false)
	}

	// Target phase runs every listener regardless of capture flag.
	if target != nil && !ev.stopped {
		d.invoke(target, ev, false, true)
	}

	// Bubble: target's parent → root, then window.
	for i := 1; i < len(path) && !ev.stopped; i++ {
		d.invoke(path[i], ev, false, false)
	}
	if connected && !ev.stopped {
		d.invoke(nil, ev, false, false)
	}

	ev.CurrentTarget = nil
	return !ev.defaultPrevented
}

func (d *Document) invoke(n *html.Node, ev *Event, capture, atTarget bool) {
	var list []*listener
	if n == nil {
		list = d.window
	} else if st, ok := d.state[n]; ok {
		list = st.listeners
	}
	if len(list) == 0 {
		return
	}
	snapshot := append([]*listener(nil), list...)
	for _, l := range snapshot {
		if l.removed || l.typ != ev.Type {
			continue
		}
		if !atTarget && l.opts.Capture != capture {
			continue
		}
		if l.opts.Once {
			d.removeListener(n, l)
		}
		ev.CurrentTarget = n
		ev.passive = l.opts.Passive
		l.fn(ev)
		ev.passive = false
	}
}

// Click dispatches a click event to n.
func (d *Document) Click(n *html.Node) bool {
	return d.DispatchEvent(n, NewEvent("click"))
}

// Input sets n's live value and dispatches an input event, as typing would.
func (d *Document) Input(n *html.Node, value string) bool {
	d.SetValue(n, value)
	return d.DispatchEvent(n, NewEvent("input"))
}

// Check sets a checkbox/radio state and dispatches change.
func (d *Document) Check(n *html.Node, checked bool) bool {
	d.SetChecked(n, checked)
	return d.DispatchEvent(n, NewEvent("change"))
}
