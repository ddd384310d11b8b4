package dom

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Document is a parsed HTML document plus per-node runtime state.
type Document struct {
	root *html.Node

	state  map[*html.Node]*nodeState
	window []*listener
	nextID uint64

	focused *html.Node

	selMu     sync.Mutex
	selectors map[string]cascadia.Selector
}

// nodeState is the runtime state kept beside a node.
type nodeState struct {
	props     map[string]any
	listeners []*listener
}

// Parse parses a complete HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return newDocument(root), nil
}

// ParseString parses a complete HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func newDocument(root *html.Node) *Document {
	return &Document{
		root:      root,
		state:     make(map[*html.Node]*nodeState),
		selectors: make(map[string]cascadia.Selector),
	}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return c
		}
	}
	return nil
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return d.child(atom.Body)
}

// Head returns the <head> element.
func (d *Document) Head() *html.Node {
	return d.child(atom.Head)
}

func (d *Document) child(a atom.Atom) *html.Node {
	h := d.DocumentElement()
	if h == nil {
		return nil
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// compile returns a cached compiled selector.
func (d *Document) compile(sel string) (cascadia.Selector, error) {
	d.selMu.Lock()
	defer d.selMu.Unlock()
	if s, ok := d.selectors[sel]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		return nil, errors.New("E021").WithDetailf("selector %q", sel).Wrap(err)
	}
	d.selectors[sel] = s
	return s, nil
}

// QuerySelector returns the first element matching sel, or nil.
func (d *Document) QuerySelector(sel string) (*html.Node, error) {
	return d.QuerySelectorIn(d.root, sel)
}

// QuerySelectorIn returns the first element under scope matching sel.
func (d *Document) QuerySelectorIn(scope *html.Node, sel string) (*html.Node, error) {
	s, err := d.compile(sel)
	if err != nil {
		return nil, err
	}
	return s.MatchFirst(scope), nil
}

// QuerySelectorAll returns every element matching sel in document order.
func (d *Document) QuerySelectorAll(sel string) ([]*html.Node, error) {
	return d.QuerySelectorAllIn(d.root, sel)
}

// QuerySelectorAllIn returns every element under scope matching sel.
func (d *Document) QuerySelectorAllIn(scope *html.Node, sel string) ([]*html.Node, error) {
	s, err := d.compile(sel)
	if err != nil {
		return nil, err
	}
	return s.MatchAll(scope), nil
}

// Matches reports whether n matches sel.
func (d *Document) Matches(n *html.Node, sel string) (bool, error) {
	s, err := d.compile(sel)
	if err != nil {
		return false, err
	}
	return s.Match(n), nil
}

// GetElementByID returns the connected element with the given id, or nil.
func (d *Document) GetElementByID(id string) *html.Node {
	return ElementByID(d.root, id)
}

// ElementByID returns the first element under scope with the given id.
func ElementByID(scope *html.Node, id string) *html.Node {
	if id == "" || scope == nil {
		return nil
	}
	var found *html.Node
	Walk(scope, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && ID(n) == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n is connected to the document.
func (d *Document) Contains(n *html.Node) bool {
	return IsAncestor(d.root, n)
}

// String renders the whole document.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// ensure returns the runtime state for n, creating it.
func (d *Document) ensure(n *html.Node) *nodeState {
	st, ok := d.state[n]
	if !ok {
		st = &nodeState{}
		d.state[n] = st
	}
	return st
}

// Prop returns a DOM property of n.
func (d *Document) Prop(n *html.Node, key string) (any, bool) {
	st, ok := d.state[n]
	if !ok || st.props == nil {
		return nil, false
	}
	v, ok := st.props[key]
	return v, ok
}

// SetProp sets a DOM property of n.
func (d *Document) SetProp(n *html.Node, key string, v any) {
	st := d.ensure(n)
	if st.props == nil {
		st.props = make(map[string]any)
	}
	st.props[key] = v
}

// DeleteProp removes a DOM property of n.
func (d *Document) DeleteProp(n *html.Node, key string) {
	if st, ok := d.state[n]; ok && st.props != nil {
		delete(st.props, key)
	}
}

// Forget drops runtime state (properties, listeners, focus) for n and its
// descendants. Called once a subtree has left the document for good.
func (d *Document) Forget(n *html.Node) {
	Walk(n, func(c *html.Node) bool {
		delete(d.state, c)
		if d.focused == c {
			d.focused = nil
		}
		return true
	})
}

// Focus makes n the active element.
func (d *Document) Focus(n *html.Node) {
	if d.focused == n {
		return
	}
	prev := d.focused
	d.focused = n
	if prev != nil {
		d.DispatchEvent(prev, NewEvent("blur"))
	}
	if n != nil {
		d.DispatchEvent(n, NewEvent("focus"))
	}
}

// ActiveElement returns the focused element if it is still connected.
func (d *Document) ActiveElement() *html.Node {
	if d.focused != nil && !d.Contains(d.focused) {
		return nil
	}
	return d.focused
}
