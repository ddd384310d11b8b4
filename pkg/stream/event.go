package stream

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/morph"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// Event names on the wire.
const (
	EventPatchElements = "patchwire-patch-elements"
	EventPatchSignals  = "patchwire-patch-signals"
	EventExecuteScript = "patchwire-execute-script"
)

// Event is a decoded frame.
type Event interface {
	eventName() string
}

// ElementPatch replaces or inserts markup.
type ElementPatch struct {
	morph.Patch
}

// SignalPatch merges a JSON object into the store.
type SignalPatch struct {
	signal.Patch
}

// ExecuteScript asks the page to run a program once.
type ExecuteScript struct {
	Script     string
	AutoRemove bool
	Attributes map[string]string
}

// KeepAlive is a comment-only frame.
type KeepAlive struct{}

func (ElementPatch) eventName() string  { return EventPatchElements }
func (SignalPatch) eventName() string   { return EventPatchSignals }
func (ExecuteScript) eventName() string { return EventExecuteScript }
func (KeepAlive) eventName() string     { return "" }

// Name returns the wire name of ev, or "keep-alive".
func Name(ev Event) string {
	if n := ev.eventName(); n != "" {
		return n
	}
	return "keep-alive"
}

// dataLines groups a frame's data lines by key.
type dataLines struct {
	order  []string
	values map[string][]string
}

func parseData(lines []string) dataLines {
	d := dataLines{values: map[string][]string{}}
	for _, line := range lines {
		key, value, _ := strings.Cut(line, " ")
		if _, ok := d.values[key]; !ok {
			d.order = append(d.order, key)
		}
		d.values[key] = append(d.values[key], value)
	}
	return d
}

func (d dataLines) text(key string) (string, bool) {
	v, ok := d.values[key]
	if !ok {
		return "", false
	}
	return strings.Join(v, "\n"), true
}

func (d dataLines) bool(key string, def bool) (bool, error) {
	s, ok := d.text(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, errors.New("E042").WithDetailf("%s: %q is not a boolean", key, s)
	}
	return b, nil
}

func (d dataLines) only(keys ...string) error {
	for _, k := range d.order {
		known := false
		for _, allowed := range keys {
			if k == allowed {
				known = true
				break
			}
		}
		if !known {
			return errors.New("E041").WithDetailf("unknown data key %q", k)
		}
	}
	return nil
}

// Decode turns a frame into an event.
func Decode(f Frame) (Event, error) {
	if f.KeepAlive() {
		return KeepAlive{}, nil
	}
	d := parseData(f.Data)
	switch f.Event {
	case EventPatchElements:
		return decodeElements(d)
	case EventPatchSignals:
		return decodeSignals(d)
	case EventExecuteScript:
		return decodeScript(d)
	case "":
		return nil, errors.New("E040").WithDetail("frame has data but no event name")
	}
	return nil, errors.New("E040").WithDetailf("event %q", f.Event)
}

func decodeElements(d dataLines) (Event, error) {
	if err := d.only("selector", "mode", "elements", "useViewTransition"); err != nil {
		return nil, err
	}
	var p ElementPatch
	p.Selector, _ = d.text("selector")
	p.Selector = strings.TrimSpace(p.Selector)
	modeText, _ := d.text("mode")
	mode, err := morph.ParseMode(modeText)
	if err != nil {
		return nil, err
	}
	p.Mode = mode
	p.Elements, _ = d.text("elements")
	if p.UseViewTransition, err = d.bool("useViewTransition", false); err != nil {
		return nil, err
	}
	if p.Mode != morph.ModeRemove && p.Elements == "" && p.Selector == "" {
		return nil, errors.New("E042").WithDetail("element patch without elements or selector")
	}
	return p, nil
}

func decodeSignals(d dataLines) (Event, error) {
	if err := d.only("signals", "onlyIfMissing"); err != nil {
		return nil, err
	}
	raw, ok := d.text("signals")
	if !ok {
		return nil, errors.New("E042").WithDetail("signal patch without signals")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, errors.New("E042").WithDetail("signals must be a JSON object").WithSource(raw)
	}
	var p SignalPatch
	p.Signals = json.RawMessage(raw)
	onlyIfMissing, err := d.bool("onlyIfMissing", false)
	if err != nil {
		return nil, err
	}
	p.OnlyIfMissing = onlyIfMissing
	return p, nil
}

func decodeScript(d dataLines) (Event, error) {
	if err := d.only("script", "autoRemove", "attributes"); err != nil {
		return nil, err
	}
	script, ok := d.text("script")
	if !ok {
		return nil, errors.New("E042").WithDetail("execute-script without script")
	}
	autoRemove, err := d.bool("autoRemove", true)
	if err != nil {
		return nil, err
	}
	ev := ExecuteScript{Script: script, AutoRemove: autoRemove}
	for _, line := range d.values["attributes"] {
		name, value, _ := strings.Cut(line, " ")
		if ev.Attributes == nil {
			ev.Attributes = map[string]string{}
		}
		ev.Attributes[name] = value
	}
	return ev, nil
}

// Encode turns an event into a frame.
func Encode(ev Event) Frame {
	f := Frame{Event: ev.eventName()}
	add := func(key, value string) {
		for _, line := range strings.Split(value, "\n") {
			f.Data = append(f.Data, key+" "+strings.TrimSuffix(line, "\r"))
		}
	}
	switch ev := ev.(type) {
	case ElementPatch:
		if ev.Selector != "" {
			add("selector", ev.Selector)
		}
		if ev.Mode != "" && ev.Mode != morph.ModeOuter {
			add("mode", string(ev.Mode))
		}
		if ev.UseViewTransition {
			add("useViewTransition", "true")
		}
		if ev.Elements != "" {
			add("elements", ev.Elements)
		}
	case SignalPatch:
		if ev.OnlyIfMissing {
			add("onlyIfMissing", "true")
		}
		add("signals", string(ev.Signals))
	case ExecuteScript:
		if !ev.AutoRemove {
			add("autoRemove", "false")
		}
		names := make([]string, 0, len(ev.Attributes))
		for name := range ev.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			add("attributes", name+" "+ev.Attributes[name])
		}
		add("script", ev.Script)
	case KeepAlive:
		f.Comments = []string{""}
	}
	return f
}
