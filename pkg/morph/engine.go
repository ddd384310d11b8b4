package morph

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/metrics"
)

// Observer is told about structural changes.
type Observer interface {
	// NodeAdded is called for the root of every inserted subtree.
	NodeAdded(n *html.Node)
	// NodeRemoved is called for the root of every detached subtree.
	NodeRemoved(n *html.Node)
	// AttributeChanged is called when a kept element's attribute changes.
	AttributeChanged(n *html.Node, name string)
}

// Engine applies patches to one document.
type Engine struct {
	doc      *dom.Document
	observer Observer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine for doc.
func New(doc *dom.Document, opts ...Option) *Engine {
	e := &Engine{
		doc:    doc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) added(n *html.Node) {
	if e.observer != nil {
		e.observer.NodeAdded(n)
	}
}

func (e *Engine) removed(n *html.Node) {
	if e.observer != nil {
		e.observer.NodeRemoved(n)
	}
}

func (e *Engine) attrChanged(n *html.Node, name string) {
	if e.observer != nil {
		e.observer.AttributeChanged(n, name)
	}
}

// Apply resolves the patch targets and morphs each of them. A missing
// target yields a PatchTargetNotFound error; targets that were found are
// still patched.
func (e *Engine) Apply(p Patch) error {
	mode := p.Mode
	if mode == "" {
		mode = ModeOuter
	}

	if p.Selector != "" {
		targets, err := e.doc.QuerySelectorAll(p.Selector)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			e.metrics.TargetMissing()
			return errors.New("E020").WithDetailf("selector %q", p.Selector)
		}
		for _, t := range targets {
			if mode == ModeRemove {
				e.remove(t)
				continue
			}
			nodes, err := dom.ParseFragment(p.Elements, fragmentContext(t, mode))
			if err != nil {
				return errors.New("E042").Wrap(err)
			}
			e.Morph(t, nodes, mode)
		}
		e.metrics.MorphPatch(string(mode))
		return nil
	}

	nodes, err := dom.ParseFragment(p.Elements, inferContext(p.Elements))
	if err != nil {
		return errors.New("E042").Wrap(err)
	}
	var scopes []*html.Node
	if p.Scope != "" {
		if scopes, err = e.doc.QuerySelectorAll(p.Scope); err != nil {
			return err
		}
	}
	var missing []string
	applied := false
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		id := dom.ID(n)
		if id == "" {
			missing = append(missing, "<"+n.Data+"> without id")
			continue
		}
		target := e.byID(scopes, p.Scope != "", id)
		if target == nil {
			missing = append(missing, "#"+id)
			continue
		}
		if mode == ModeRemove {
			e.remove(target)
		} else {
			e.Morph(target, []*html.Node{n}, mode)
		}
		applied = true
	}
	if applied {
		e.metrics.MorphPatch(string(mode))
	}
	if len(missing) > 0 || !applied {
		e.metrics.TargetMissing()
		detail := strings.Join(missing, ", ")
		if detail == "" {
			detail = "patch has no elements and no selector"
		}
		return errors.New("E020").WithDetail(detail)
	}
	return nil
}

// fragmentContext is the element new markup will be parsed as children of.
func fragmentContext(target *html.Node, mode Mode) *html.Node {
	switch mode {
	case ModeInner, ModePrepend, ModeAppend:
		return target
	}
	if target.Parent != nil && target.Parent.Type == html.ElementNode {
		return target.Parent
	}
	return nil
}

func (e *Engine) byID(scopes []*html.Node, scoped bool, id string) *html.Node {
	if !scoped {
		return e.doc.GetElementByID(id)
	}
	for _, root := range scopes {
		if n := dom.ElementByID(root, id); n != nil {
			return n
		}
	}
	return nil
}

// tableParents maps elements the parser only accepts in a table context to
// a parent that accepts them.
var tableParents = map[string]string{
	"tr":       "tbody",
	"td":       "tr",
	"th":       "tr",
	"tbody":    "table",
	"thead":    "table",
	"tfoot":    "table",
	"caption":  "table",
	"colgroup": "table",
	"col":      "colgroup",
	"option":   "select",
	"optgroup": "select",
}

// inferContext picks a parse context from the first start tag of markup.
func inferContext(markup string) *html.Node {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if parent, ok := tableParents[string(name)]; ok {
				return dom.NewElement(parent)
			}
			return nil
		}
	}
}

// Morph applies nodes to target according to mode. nodes must be detached.
func (e *Engine) Morph(target *html.Node, nodes []*html.Node, mode Mode) {
	switch mode {
	case ModeOuter:
		e.morphOuter(target, nodes)
	case ModeInner:
		if dom.HasAttr(target, ignoreMorphAttr) {
			return
		}
		e.morphChildren(target, nodes)
	case ModeReplace:
		parent := target.Parent
		if parent == nil {
			return
		}
		e.insertAll(parent, nodes, target)
		e.remove(target)
	case ModePrepend:
		e.insertAll(target, nodes, target.FirstChild)
	case ModeAppend:
		e.insertAll(target, nodes, nil)
	case ModeBefore:
		if target.Parent != nil {
			e.insertAll(target.Parent, nodes, target)
		}
	case ModeAfter:
		if target.Parent != nil {
			e.insertAll(target.Parent, nodes, target.NextSibling)
		}
	case ModeRemove:
		e.remove(target)
	}
}

func (e *Engine) insertAll(parent *html.Node, nodes []*html.Node, ref *html.Node) {
	for _, n := range nodes {
		dom.Detach(n)
		dom.InsertBefore(parent, n, ref)
		e.added(n)
	}
}

func (e *Engine) remove(n *html.Node) {
	if n.Parent == nil {
		return
	}
	dom.Detach(n)
	e.removed(n)
}

// morphOuter morphs target into the fragment element that matches it and
// places the remaining fragment nodes around it.
func (e *Engine) morphOuter(target *html.Node, nodes []*html.Node) {
	if dom.HasAttr(target, ignoreMorphAttr) {
		return
	}
	match := -1
	for i, n := range nodes {
		if n.Type == html.ElementNode && sameElement(target, n) {
			match = i
			break
		}
	}
	parent := target.Parent
	if match < 0 {
		if parent == nil {
			return
		}
		e.insertAll(parent, nodes, target)
		e.remove(target)
		return
	}
	if parent != nil {
		e.insertAll(parent, nodes[:match], target)
		e.insertAll(parent, nodes[match+1:], target.NextSibling)
	}
	e.morphNode(target, nodes[match])
}

// sameElement reports whether old can be morphed into n.
func sameElement(old, n *html.Node) bool {
	if old.Type != n.Type || old.Data != n.Data || old.Namespace != n.Namespace {
		return false
	}
	return dom.ID(old) == dom.ID(n)
}

// morphNode brings old in line with n, keeping old's identity.
func (e *Engine) morphNode(old, n *html.Node) {
	switch old.Type {
	case html.TextNode, html.CommentNode:
		old.Data = n.Data
		return
	case html.ElementNode:
	default:
		return
	}
	if dom.HasAttr(old, ignoreMorphAttr) {
		return
	}
	keep := preservedBoth(old, n)
	e.syncAttrs(old, n, keep)
	if dom.IsFormControl(old) && e.doc.ActiveElement() != old {
		for _, prop := range []string{"value", "checked"} {
			if !keep[prop] {
				e.doc.DeleteProp(old, prop)
			}
		}
	}
	e.morphChildren(old, children(n))
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func preserved(n *html.Node) map[string]bool {
	v, ok := dom.Attr(n, preserveAttrAttr)
	if !ok {
		return nil
	}
	out := map[string]bool{}
	for _, name := range strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' }) {
		out[strings.ToLower(name)] = true
	}
	return out
}

// preservedBoth is the union of the attributes old and n preserve.
func preservedBoth(old, n *html.Node) map[string]bool {
	keep := preserved(old)
	for name := range preserved(n) {
		if keep == nil {
			keep = map[string]bool{}
		}
		keep[name] = true
	}
	return keep
}

func (e *Engine) syncAttrs(old, n *html.Node, keep map[string]bool) {
	for _, a := range n.Attr {
		if keep[a.Key] {
			continue
		}
		if dom.SetAttr(old, a.Key, a.Val) {
			e.attrChanged(old, a.Key)
		}
	}
	var stale []string
	for _, a := range old.Attr {
		if keep[a.Key] || dom.HasAttr(n, a.Key) {
			continue
		}
		stale = append(stale, a.Key)
	}
	for _, name := range stale {
		dom.RemoveAttr(old, name)
		e.attrChanged(old, name)
	}
}

// morphChildren reconciles parent's children with kids.
func (e *Engine) morphChildren(parent *html.Node, kids []*html.Node) {
	cur := parent.FirstChild
	for _, k := range kids {
		m := findMatch(cur, k)
		if m == nil {
			dom.Detach(k)
			dom.InsertBefore(parent, k, cur)
			e.added(k)
			continue
		}
		if m == cur {
			cur = cur.NextSibling
		} else {
			dom.Detach(m)
			dom.InsertBefore(parent, m, cur)
		}
		e.morphNode(m, k)
	}

	for cur != nil {
		next := cur.NextSibling
		e.remove(cur)
		cur = next
	}
}

// findMatch looks for the node among from and its following siblings that
// k should be morphed into. Elements with an id only match by id.
func findMatch(from, k *html.Node) *html.Node {
	if from == nil {
		return nil
	}
	switch k.Type {
	case html.TextNode, html.CommentNode:
		if from.Type == k.Type {
			return from
		}
		return nil
	case html.ElementNode:
	default:
		return nil
	}

	if id := dom.ID(k); id != "" {
		for c := from; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && dom.ID(c) == id && c.Data == k.Data {
				return c
			}
		}
		return nil
	}
	for c := from; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != k.Data || c.Namespace != k.Namespace {
			continue
		}
		if dom.ID(c) != "" {
			continue
		}
		return c
	}
	return nil
}
