package binding

import (
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// nest turns "a.b" and v into {"a": {"b": v}}.
func nest(path string, v any) map[string]any {
	segs := signal.Split(path)
	out := map[string]any{segs[len(segs)-1]: v}
	for i := len(segs) - 2; i >= 0; i-- {
		out = map[string]any{segs[i]: out}
	}
	return out
}

func pluginSignals(b *Binding) (Teardown, error) {
	v, err := b.Evaluate(nil)
	if err != nil {
		return nil, err
	}
	ifMissing := b.Modifiers.Has("ifmissing")

	var obj map[string]any
	if b.Key != "" {
		path, err := b.SignalPath()
		if err != nil {
			return nil, err
		}
		obj = nest(path, v)
	} else {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("E101").WithDetailf("%s without a key must evaluate to an object", b.Attr)
		}
		obj = m
	}
	if err := b.Host.Store.MergeObject(obj, ifMissing); err != nil {
		return nil, err
	}
	return func() {}, nil
}

func pluginComputed(b *Binding) (Teardown, error) {
	if b.Key == "" {
		return nil, errors.New("E101").WithDetail("computed needs a signal name key")
	}
	path, err := b.SignalPath()
	if err != nil {
		return nil, err
	}
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		return b.Host.Store.Set(path, v)
	})
}

func pluginEffect(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		_, err := b.Evaluate(nil)
		return err
	})
}

func pluginRef(b *Binding) (Teardown, error) {
	path, err := b.SignalPath()
	if err != nil {
		return nil, err
	}
	store := b.Host.Store
	if err := store.SetHandle(path, b.Element); err != nil {
		return nil, err
	}
	return func() {
		if store.Peek(path) == any(b.Element) {
			_ = store.Remove(path)
		}
	}, nil
}

func pluginIndicator(b *Binding) (Teardown, error) {
	if b.Host.Indicators == nil {
		return nil, errors.New("E101").WithDetail("indicators are not available on this page")
	}
	if b.Key == "" && strings.HasPrefix(b.Value, "#") {
		target := b.Host.Doc.GetElementByID(b.Value[1:])
		if target == nil {
			return nil, errors.New("E101").WithDetailf("indicator element %s not found", b.Value)
		}
		return b.Host.Indicators.AddElement(b.Element, target), nil
	}
	path, err := b.SignalPath()
	if err != nil {
		return nil, err
	}
	remove, err := b.Host.Indicators.AddSignal(b.Element, path)
	if err != nil {
		return nil, err
	}
	return remove, nil
}

func pluginInit(b *Binding) (Teardown, error) {
	run := func() {
		if b.Disabled() {
			return
		}
		if _, err := b.Evaluate(nil); err != nil {
			b.Fail(err)
		}
	}
	m, ok := b.Modifiers.Get("delay")
	if !ok {
		if _, err := b.Evaluate(nil); err != nil {
			return nil, err
		}
		return func() {}, nil
	}
	d, err := m.Duration(-1)
	if err != nil {
		return nil, err
	}
	dl := NewDelayer(b.Host.Loop, d)
	dl.Trigger(run)
	return dl.Cancel, nil
}

// bindable reads and writes the live state of a form control.
type bindable struct {
	doc *dom.Document
	b   *Binding
}

func (c bindable) read() (any, bool) {
	el := c.b.Element
	switch {
	case dom.InputType(el) == "radio":
		if !c.doc.Checked(el) {
			return nil, false
		}
		return c.doc.Value(el), true
	case dom.InputType(el) == "checkbox":
		return c.doc.Checked(el), true
	case dom.InputType(el) == "number" || dom.InputType(el) == "range":
		s := c.doc.Value(el)
		if s == "" {
			return nil, true
		}
		return expr.ToNumber(s), true
	}
	return c.doc.Value(el), true
}

func (c bindable) write(v any) {
	el := c.b.Element
	switch dom.InputType(el) {
	case "radio":
		want := expr.ToString(v) == c.doc.Value(el)
		if c.doc.Checked(el) != want {
			c.doc.SetChecked(el, want)
		}
	case "checkbox":
		want := expr.Truthy(v)
		if c.doc.Checked(el) != want {
			c.doc.SetChecked(el, want)
		}
	default:
		s := expr.ToString(v)
		if c.doc.Value(el) != s {
			c.doc.SetValue(el, s)
		}
	}
}

func pluginBind(b *Binding) (Teardown, error) {
	path, err := b.SignalPath()
	if err != nil {
		return nil, err
	}
	store := b.Host.Store
	c := bindable{doc: b.Host.Doc, b: b}

	if !store.Has(path) {
		if v, ok := c.read(); ok {
			if err := store.Set(path, v); err != nil {
				return nil, err
			}
		}
	}

	stop, err := b.Effect(func() error {
		c.write(store.Get(path))
		return nil
	})
	if err != nil {
		return nil, err
	}

	onInput := func(*dom.Event) {
		if b.Disabled() {
			return
		}
		v, ok := c.read()
		if !ok {
			return
		}
		if cur := store.Peek(path); cur == v {
			return
		}
		if err := store.Set(path, v); err != nil {
			b.Fail(err)
		}
	}
	removeInput := b.Host.Doc.AddEventListener(b.Element, "input", onInput, dom.ListenerOptions{})
	removeChange := b.Host.Doc.AddEventListener(b.Element, "change", onInput, dom.ListenerOptions{})

	return func() {
		removeInput()
		removeChange()
		stop()
	}, nil
}
