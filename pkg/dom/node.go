package dom

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets attribute key on n. It reports whether the value changed.
func SetAttr(n *html.Node, key, val string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			if a.Val == val {
				return false
			}
			n.Attr[i].Val = val
			return true
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	return true
}

// RemoveAttr removes attribute key from n. It reports whether it was present.
func RemoveAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// ID returns the id attribute of n.
func ID(n *html.Node) string {
	v, _ := Attr(n, "id")
	return v
}

// Tag returns the lower-case tag name of an element.
func Tag(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return n.Data
}

// Describe returns a short selector-like description, e.g. "button#save.primary".
func Describe(n *html.Node) string {
	if n == nil {
		return "<nil>"
	}
	if n.Type == html.TextNode {
		return "#text"
	}
	if n.Type == html.DocumentNode {
		return "#document"
	}
	var b strings.Builder
	b.WriteString(n.Data)
	if id := ID(n); id != "" {
		b.WriteString("#" + id)
	}
	for _, c := range Classes(n) {
		b.WriteString("." + c)
	}
	return b.String()
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Elements returns n and every element descendant in document order.
func Elements(n *html.Node) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if IsElement(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// IsAncestor reports whether ancestor is n or one of n's ancestors.
func IsAncestor(ancestor, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == ancestor {
			return true
		}
	}
	return false
}

// Closest returns the nearest ancestor-or-self element with the given tag.
func Closest(n *html.Node, tag string) *html.Node {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

// TextContent returns the concatenated text of n's subtree.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// SetTextContent replaces n's children with a single text node. The existing
// text node is reused when n already has exactly one.
func SetTextContent(n *html.Node, s string) bool {
	if c := n.FirstChild; c != nil && c == n.LastChild && c.Type == html.TextNode {
		if c.Data == s {
			return false
		}
		c.Data = s
		return true
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
	return true
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertBefore inserts n into parent before ref, detaching n first. A nil
// ref appends.
func InsertBefore(parent, n, ref *html.Node) {
	if n == ref {
		return
	}
	Detach(n)
	parent.InsertBefore(n, ref)
}

// Classes returns the class list of n.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether n has class c.
func HasClass(n *html.Node, c string) bool {
	for _, x := range Classes(n) {
		if x == c {
			return true
		}
	}
	return false
}

// ToggleClass adds or removes class c. It reports whether the class list changed.
func ToggleClass(n *html.Node, c string, on bool) bool {
	list := Classes(n)
	idx := -1
	for i, x := range list {
		if x == c {
			idx = i
			break
		}
	}
	switch {
	case on && idx < 0:
		list = append(list, c)
	case !on && idx >= 0:
		list = append(list[:idx], list[idx+1:]...)
	default:
		return false
	}
	if len(list) == 0 {
		RemoveAttr(n, "class")
	} else {
		SetAttr(n, "class", strings.Join(list, " "))
	}
	return true
}

// Style returns the parsed declarations of n's style attribute.
func Style(n *html.Node) map[string]string {
	v, _ := Attr(n, "style")
	out := make(map[string]string)
	for _, decl := range strings.Split(v, ";") {
		k, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(val)
	}
	return out
}

// StyleProperty returns a single style declaration of n.
func StyleProperty(n *html.Node, prop string) string {
	return Style(n)[prop]
}

// SetStyleProperty sets (or, for an empty value, removes) a style declaration.
// It reports whether the style attribute changed.
func SetStyleProperty(n *html.Node, prop, val string) bool {
	style := Style(n)
	if old, ok := style[prop]; ok && old == val {
		return false
	}
	if val == "" {
		if _, ok := style[prop]; !ok {
			return false
		}
		delete(style, prop)
	} else {
		style[prop] = val
	}
	writeStyle(n, style)
	return true
}

func writeStyle(n *html.Node, style map[string]string) {
	if len(style) == 0 {
		RemoveAttr(n, "style")
		return
	}
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+style[k])
	}
	SetAttr(n, "style", strings.Join(parts, "; "))
}

// Render returns the outer HTML of n.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// InnerHTML returns the rendered children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// ParseFragment parses markup as the children of context. A nil context
// parses as body content. The returned nodes are detached.
func ParseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	return html.ParseFragment(strings.NewReader(markup), context)
}

// CloneNode returns a deep copy of n.
func CloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(CloneNode(ch))
	}
	return c
}

// NewElement returns a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}
