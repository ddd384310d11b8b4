package binding

import (
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/signal"
)

type fixture struct {
	t        *testing.T
	host     *Host
	registry *Registry
	clock    *loop.FakeClock
	bindings []*Binding
}

func newFixture(t *testing.T, markup string) *fixture {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	clock := loop.NewFakeClock(time.Unix(0, 0))
	store := signal.New()
	return &fixture{
		t: t,
		host: &Host{
			Doc:        doc,
			Store:      store,
			Eval:       expr.NewEvaluator(),
			Loop:       loop.New(loop.WithClock(clock)),
			Indicators: NewIndicators(store),
		},
		registry: Default(),
		clock:    clock,
	}
}

// attach binds every element in document order and fails on errors.
func (f *fixture) attach() {
	f.t.Helper()
	for _, err := range f.attachAll() {
		f.t.Fatal(err)
	}
}

func (f *fixture) attachAll() []error {
	var errs []error
	for _, n := range dom.Elements(f.host.Doc.Root()) {
		for _, c := range f.registry.Candidates(n) {
			b, err := f.registry.Attach(f.host, n, c)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			f.bindings = append(f.bindings, b)
		}
	}
	return errs
}

func (f *fixture) el(id string) *html.Node {
	f.t.Helper()
	n := f.host.Doc.GetElementByID(id)
	if n == nil {
		f.t.Fatalf("no element #%s", id)
	}
	return n
}

func (f *fixture) advance(d time.Duration) {
	step(f.host.Loop, f.clock, d)
}

func (f *fixture) teardownAll() {
	for _, b := range f.bindings {
		b.Disable()
	}
}
