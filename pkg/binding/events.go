package binding

import (
	"strings"
	"time"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
)

// SignalPatchEvent is the event type seen by data-on-signal-patch
// expressions; evt.Detail holds the applied patch.
const SignalPatchEvent = "signal-patch"

// timing composes the delay, debounce and throttle modifiers into one
// scheduling function and its cancel.
func timing(b *Binding) (schedule func(func()), cancel func(), err error) {
	schedule = func(fn func()) { fn() }
	var cancels []func()
	cancel = func() {
		for _, c := range cancels {
			c()
		}
	}

	ms := b.Modifiers
	if ms.Has("debounce") && ms.Has("throttle") {
		return nil, nil, errors.New("E100").WithDetailf("%s: __debounce and __throttle are exclusive", b.Attr)
	}
	if m, ok := ms.Get("delay"); ok {
		d, err := m.Duration(-1)
		if err != nil {
			return nil, nil, err
		}
		dl := NewDelayer(b.Host.Loop, d)
		schedule = dl.Trigger
		cancels = append(cancels, dl.Cancel)
	}
	if m, ok := ms.Get("debounce"); ok {
		d, err := m.Duration(-1)
		if err != nil {
			return nil, nil, err
		}
		leading := m.HasTag("leading")
		trailing := !m.HasTag("notrailing") && (!leading || m.HasTag("trailing"))
		deb := NewDebouncer(b.Host.Loop, d, leading, trailing)
		inner := schedule
		schedule = func(fn func()) { deb.Trigger(func() { inner(fn) }) }
		cancels = append(cancels, deb.Cancel)
	}
	if m, ok := ms.Get("throttle"); ok {
		d, err := m.Duration(-1)
		if err != nil {
			return nil, nil, err
		}
		thr := NewThrottler(b.Host.Loop, d, !m.HasTag("noleading"), m.HasTag("trailing"))
		inner := schedule
		schedule = func(fn func()) { thr.Trigger(func() { inner(fn) }) }
		cancels = append(cancels, thr.Cancel)
	}
	return schedule, cancel, nil
}

func keyMatches(m Modifier, key string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, key) {
			return true
		}
	}
	return false
}

func pluginOn(b *Binding) (Teardown, error) {
	if b.Key == "" {
		return nil, errors.New("E101").WithDetailf("%s needs an event name", b.Attr)
	}
	c, err := b.Modifiers.KeyCase(CaseKebab)
	if err != nil {
		return nil, err
	}
	event := ConvertCase(b.Key, c)

	schedule, cancel, err := timing(b)
	if err != nil {
		return nil, err
	}

	ms := b.Modifiers
	el := b.Element
	outside := ms.Has("outside")
	self := ms.Has("self")
	prevent := ms.Has("prevent")
	stop := ms.Has("stop")
	keys, filterKeys := ms.Get("key")

	target := el
	if outside || ms.Has("window") {
		target = nil
	}

	handler := func(e *dom.Event) {
		if b.Disabled() {
			return
		}
		if outside && (e.Target == el || dom.IsAncestor(el, e.Target)) {
			return
		}
		if self && e.Target != el {
			return
		}
		if filterKeys && !keyMatches(keys, e.Key) {
			return
		}
		if prevent {
			e.PreventDefault()
		}
		if stop {
			e.StopPropagation()
		}
		schedule(func() {
			if b.Disabled() {
				return
			}
			if _, err := b.Evaluate(e); err != nil {
				b.Fail(err)
			}
		})
	}

	remove := b.Host.Doc.AddEventListener(target, event, handler, dom.ListenerOptions{
		Capture: ms.Has("capture"),
		Once:    ms.Has("once"),
		Passive: ms.Has("passive"),
	})
	return func() {
		remove()
		cancel()
	}, nil
}

func pluginOnInterval(b *Binding) (Teardown, error) {
	period := time.Second
	leading := false
	if m, ok := b.Modifiers.Get("duration"); ok {
		d, err := m.Duration(time.Second)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, errors.New("E100").WithDetailf("%s: interval must be positive", b.Attr)
		}
		period = d
		leading = m.HasTag("leading")
	}

	tick := func() {
		if b.Disabled() {
			return
		}
		if _, err := b.Evaluate(nil); err != nil {
			b.Fail(err)
		}
	}
	if leading {
		if _, err := b.Evaluate(nil); err != nil {
			return nil, err
		}
	}
	iv := NewInterval(b.Host.Loop, period, tick)
	return iv.Cancel, nil
}

func pluginOnSignalPatch(b *Binding) (Teardown, error) {
	schedule, cancel, err := timing(b)
	if err != nil {
		return nil, err
	}
	l := b.Host.Loop
	stop := b.Host.Store.OnPatch(func(patch map[string]any) {
		l.Post(func() {
			schedule(func() {
				if b.Disabled() {
					return
				}
				ev := dom.NewEvent(SignalPatchEvent)
				ev.Target = b.Element
				ev.Detail = patch
				if _, err := b.Evaluate(ev); err != nil {
					b.Fail(err)
				}
			})
		})
	})
	return func() {
		stop()
		cancel()
	}, nil
}
