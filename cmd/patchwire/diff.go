package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vango-dev/patchwire/pkg/runtime"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// watcher prints what each applied event changed on a page.
type watcher struct {
	out     io.Writer
	page    *runtime.Page
	html    string
	signals []byte
}

func newWatcher(out io.Writer) *watcher {
	return &watcher{out: out}
}

// attach takes the page's current state as the baseline. It must be called
// before the first event is applied.
func (w *watcher) attach(p *runtime.Page) {
	w.page = p
	w.html = p.HTML()
	w.signals = w.snapshot()
}

func (w *watcher) snapshot() []byte {
	b, err := json.Marshal(w.page.Store.Snapshot())
	if err != nil {
		return []byte("{}")
	}
	return b
}

// event is installed as the page event hook.
func (w *watcher) event(ev stream.Event, err error) {
	if w.page == nil {
		return
	}
	name := stream.Name(ev)
	if name == "" {
		return
	}
	if err != nil {
		fmt.Fprintf(w.out, "%s %s: %v\n", red("✗"), name, err)
	} else {
		fmt.Fprintf(w.out, "%s %s\n", green("●"), name)
	}

	signals := w.snapshot()
	if patch, err := jsonpatch.CreateMergePatch(w.signals, signals); err == nil && string(patch) != "{}" {
		fmt.Fprintf(w.out, "  signals %s\n", patch)
	}
	w.signals = signals

	html := w.page.HTML()
	if html != w.html {
		writeLineDiff(w.out, w.html, html)
	}
	w.html = html
}

// writeLineDiff prints the changed lines between a and b.
func writeLineDiff(out io.Writer, a, b string) {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	for _, d := range diffs {
		var prefix string
		paint := faint
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix, paint = "+", green
		case diffmatchpatch.DiffDelete:
			prefix, paint = "-", red
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", paint(prefix+" "+line))
		}
	}
}
