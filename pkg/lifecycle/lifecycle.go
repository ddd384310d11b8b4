// Package lifecycle attaches bindings to elements as they enter the
// document and tears them down as they leave.
package lifecycle

import (
	stderrors "errors"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/pkg/binding"
	"github.com/vango-dev/patchwire/pkg/dom"
)

// Canceller aborts the in-flight work owned by an element.
type Canceller interface {
	Cancel(el *html.Node)
}

// Manager tracks the bindings of one document. It implements
// morph.Observer. All methods must be called on the loop.
type Manager struct {
	host     *binding.Host
	registry *binding.Registry
	cancel   Canceller
	logger   *slog.Logger

	bound map[*html.Node][]*binding.Binding
}

// Option configures a Manager.
type Option func(*Manager)

// WithCanceller sets what cancels an element's actions on teardown.
func WithCanceller(c Canceller) Option {
	return func(m *Manager) {
		m.cancel = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager.
func New(host *binding.Host, registry *binding.Registry, opts ...Option) *Manager {
	m := &Manager{
		host:     host,
		registry: registry,
		logger:   slog.Default(),
		bound:    make(map[*html.Node][]*binding.Binding),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ignored reports whether n carries data-ignore, and whether it applies to
// n alone.
func ignored(n *html.Node) (ignore, self bool) {
	for _, a := range n.Attr {
		if a.Key != "data-ignore" && !strings.HasPrefix(a.Key, "data-ignore__") {
			continue
		}
		attr, ok, _ := binding.ParseAttribute(a.Key)
		if !ok || attr.Plugin != "ignore" {
			continue
		}
		return true, attr.Modifiers.Has("self")
	}
	return false, false
}

// Scan attaches bindings to root and its descendants in document order.
// Elements that are already bound keep their bindings. Failed bindings are
// logged and skipped; their errors are returned joined.
func (m *Manager) Scan(root *html.Node) error {
	var errs []error
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			ignore, self := ignored(n)
			if ignore && !self {
				return
			}
			if !ignore {
				errs = append(errs, m.bind(n)...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return stderrors.Join(errs...)
}

func (m *Manager) bind(n *html.Node) []error {
	var errs []error
	for _, c := range m.registry.Candidates(n) {
		if m.find(n, c.Attribute.Name) != nil {
			continue
		}
		if err := m.attach(n, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *Manager) attach(n *html.Node, c binding.Candidate) error {
	b, err := m.registry.Attach(m.host, n, c)
	if err != nil {
		m.logger.Error("binding not attached",
			"element", dom.Describe(n),
			"attribute", c.Attribute.Name,
			"error", err)
		return err
	}
	m.bound[n] = append(m.bound[n], b)
	return nil
}

func (m *Manager) find(n *html.Node, attr string) *binding.Binding {
	for _, b := range m.bound[n] {
		if b.Attr == attr {
			return b
		}
	}
	return nil
}

// Bindings returns the live bindings of n.
func (m *Manager) Bindings(n *html.Node) []*binding.Binding {
	return append([]*binding.Binding(nil), m.bound[n]...)
}

// Len returns the number of bound elements.
func (m *Manager) Len() int {
	return len(m.bound)
}

// Teardown disables every binding in root's subtree, cancels the actions
// those elements own and forgets their runtime state.
func (m *Manager) Teardown(root *html.Node) {
	dom.Walk(root, func(n *html.Node) bool {
		m.unbind(n)
		return true
	})
	m.host.Doc.Forget(root)
}

func (m *Manager) unbind(n *html.Node) {
	list, ok := m.bound[n]
	if !ok {
		return
	}
	delete(m.bound, n)
	if m.cancel != nil {
		m.cancel.Cancel(n)
	}
	for i := len(list) - 1; i >= 0; i-- {
		list[i].Disable()
	}
}

// Sweep tears down elements that are no longer in the document.
func (m *Manager) Sweep() int {
	var gone []*html.Node
	for n := range m.bound {
		if !m.host.Doc.Contains(n) {
			gone = append(gone, n)
		}
	}
	for _, n := range gone {
		m.unbind(n)
		m.host.Doc.Forget(n)
	}
	return len(gone)
}

// Close tears down every binding.
func (m *Manager) Close() {
	for n := range m.bound {
		m.unbind(n)
	}
}

// NodeAdded scans an inserted subtree.
func (m *Manager) NodeAdded(n *html.Node) {
	if n.Type != html.ElementNode {
		return
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if ignore, self := ignored(p); ignore && !self {
			return
		}
	}
	_ = m.Scan(n)
}

// NodeRemoved tears down a detached subtree.
func (m *Manager) NodeRemoved(n *html.Node) {
	m.Teardown(n)
}

// AttributeChanged rebinds a changed binding attribute.
func (m *Manager) AttributeChanged(n *html.Node, name string) {
	if !strings.HasPrefix(name, binding.Prefix) {
		return
	}
	if b := m.find(n, name); b != nil {
		b.Disable()
		m.remove(n, b)
	}
	value, ok := dom.Attr(n, name)
	if !ok {
		return
	}
	if ignore, _ := ignored(n); ignore {
		return
	}
	c, ok := m.registry.Candidate(name, value)
	if !ok {
		return
	}
	_ = m.attach(n, c)
}

func (m *Manager) remove(n *html.Node, b *binding.Binding) {
	list := m.bound[n]
	for i, x := range list {
		if x == b {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.bound, n)
	} else {
		m.bound[n] = list
	}
}
