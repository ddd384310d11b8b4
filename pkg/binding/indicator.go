package binding

import (
	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/signal"
)

// BusyAttr is set on external indicator elements while busy.
const BusyAttr = "aria-busy"

// Indicators tracks the in-flight actions of each element and mirrors the
// busy state into indicator signals and elements.
type Indicators struct {
	store  *signal.Store
	byElem map[*html.Node][]*indicator
	busy   map[*html.Node]int
}

type indicator struct {
	path   string
	target *html.Node
}

// NewIndicators creates an Indicators writing to store.
func NewIndicators(store *signal.Store) *Indicators {
	return &Indicators{
		store:  store,
		byElem: make(map[*html.Node][]*indicator),
		busy:   make(map[*html.Node]int),
	}
}

// AddSignal binds the boolean signal at path to el's busy state.
func (in *Indicators) AddSignal(el *html.Node, path string) (remove func(), err error) {
	if err := in.store.Set(path, in.busy[el] > 0); err != nil {
		return nil, err
	}
	return in.add(el, &indicator{path: path}), nil
}

// AddElement marks target with aria-busy while el is busy.
func (in *Indicators) AddElement(el, target *html.Node) (remove func()) {
	ind := &indicator{target: target}
	in.apply(ind, in.busy[el] > 0)
	return in.add(el, ind)
}

func (in *Indicators) add(el *html.Node, ind *indicator) func() {
	in.byElem[el] = append(in.byElem[el], ind)
	return func() {
		list := in.byElem[el]
		for i, e := range list {
			if e == ind {
				in.byElem[el] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(in.byElem[el]) == 0 {
			delete(in.byElem, el)
		}
	}
}

// Begin marks one more action in flight for el.
func (in *Indicators) Begin(el *html.Node) {
	in.busy[el]++
	if in.busy[el] == 1 {
		in.set(el, true)
	}
}

// End marks one action of el as settled. Extra calls are ignored.
func (in *Indicators) End(el *html.Node) {
	if in.busy[el] == 0 {
		return
	}
	in.busy[el]--
	if in.busy[el] == 0 {
		delete(in.busy, el)
		in.set(el, false)
	}
}

// Busy reports whether el has an action in flight.
func (in *Indicators) Busy(el *html.Node) bool {
	return in.busy[el] > 0
}

func (in *Indicators) set(el *html.Node, busy bool) {
	for _, ind := range in.byElem[el] {
		in.apply(ind, busy)
	}
}

func (in *Indicators) apply(ind *indicator, busy bool) {
	if ind.target != nil {
		if busy {
			dom.SetAttr(ind.target, BusyAttr, "true")
		} else {
			dom.RemoveAttr(ind.target, BusyAttr)
		}
		return
	}
	_ = in.store.Set(ind.path, busy)
}
