package binding

import (
	"sort"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
)

// Factory attaches a plugin to a binding.
type Factory func(b *Binding) (Teardown, error)

// ExpressionMode says how a plugin's attribute value is treated.
type ExpressionMode int

const (
	// ExpressionOptional compiles the value when it is not empty.
	ExpressionOptional ExpressionMode = iota
	// ExpressionRequired rejects an empty value.
	ExpressionRequired
	// ExpressionNone leaves the value as text.
	ExpressionNone
)

// Plugin describes a registered attribute plugin.
type Plugin struct {
	Name       string
	Factory    Factory
	Expression ExpressionMode

	// Declaration plugins are attached before the other bindings of an
	// element.
	Declaration bool
}

// Registry maps plugin names to factories.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Default returns a Registry holding every built-in plugin.
func Default() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register associates name with factory, compiling non-empty values.
func (r *Registry) Register(name string, factory Factory) {
	r.RegisterPlugin(Plugin{Name: name, Factory: factory})
}

// RegisterPlugin installs p, replacing any plugin of the same name.
func (r *Registry) RegisterPlugin(p Plugin) {
	r.plugins[p.Name] = p
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the sorted plugin names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Candidate is a binding attribute recognized on an element.
type Candidate struct {
	Attribute Attribute
	Plugin    Plugin
	Value     string
	Err       error
}

// Candidates returns the element's binding attributes in attach order:
// declarations first, then attribute order. Unknown plugins are skipped.
func (r *Registry) Candidates(n *html.Node) []Candidate {
	var decl, rest []Candidate
	for _, a := range n.Attr {
		c, ok := r.Candidate(a.Key, a.Val)
		if !ok {
			continue
		}
		if c.Plugin.Declaration {
			decl = append(decl, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(decl, rest...)
}

// Candidate parses one attribute. It reports false when the attribute does
// not name a registered plugin.
func (r *Registry) Candidate(name, value string) (Candidate, bool) {
	a, ok, err := ParseAttribute(name)
	if !ok {
		return Candidate{}, false
	}
	p, known := r.plugins[a.Plugin]
	if !known {
		return Candidate{}, false
	}
	return Candidate{Attribute: a, Plugin: p, Value: value, Err: err}, true
}

// Attach creates the binding for c on n. Configuration and compile errors
// are returned and nothing is attached.
func (r *Registry) Attach(h *Host, n *html.Node, c Candidate) (*Binding, error) {
	fail := func(err error) (*Binding, error) {
		h.Metrics.BindingError(c.Plugin.Name)
		if e, ok := err.(*errors.Error); ok && e.Location == nil {
			e.WithLocation(dom.Describe(n), c.Attribute.Name, 0)
		}
		return nil, err
	}
	if c.Err != nil {
		return fail(c.Err)
	}

	b := &Binding{
		Host:      h,
		Element:   n,
		Attr:      c.Attribute.Name,
		Plugin:    c.Plugin.Name,
		Key:       c.Attribute.Key,
		Value:     c.Value,
		Modifiers: c.Attribute.Modifiers,
	}
	switch c.Plugin.Expression {
	case ExpressionRequired:
		if c.Value == "" {
			return fail(errors.New("E101").WithDetailf("%s needs an expression", c.Attribute.Name))
		}
		fallthrough
	case ExpressionOptional:
		if c.Value != "" {
			x, err := h.Eval.Compile(c.Value)
			if err != nil {
				return fail(err)
			}
			b.Expr = x
		}
	}

	td, err := c.Plugin.Factory(b)
	if err != nil {
		return fail(err)
	}
	b.teardown = td
	h.Metrics.BindingAttached(b.Plugin)
	return b, nil
}
