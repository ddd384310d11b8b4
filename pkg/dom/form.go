package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// InputType returns the lower-cased type attribute of an <input>.
func InputType(n *html.Node) string {
	if Tag(n) != "input" {
		return ""
	}
	t, _ := Attr(n, "type")
	if t == "" {
		return "text"
	}
	return strings.ToLower(t)
}

// IsCheckable reports whether n is a checkbox or radio input.
func IsCheckable(n *html.Node) bool {
	t := InputType(n)
	return t == "checkbox" || t == "radio"
}

// IsFormControl reports whether n carries a user-editable value.
func IsFormControl(n *html.Node) bool {
	switch Tag(n) {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// Value returns n's live value: the value property if it was set,
// otherwise the value implied by markup.
func (d *Document) Value(n *html.Node) string {
	if v, ok := d.Prop(n, "value"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	switch Tag(n) {
	case "textarea":
		return TextContent(n)
	case "select":
		var first, selected string
		seen, found := false, false
		Walk(n, func(c *html.Node) bool {
			if Tag(c) != "option" {
				return true
			}
			v := optionValue(c)
			if !seen {
				first = v
				seen = true
			}
			if HasAttr(c, "selected") && !found {
				selected = v
				found = true
			}
			return false
		})
		if found {
			return selected
		}
		return first
	}
	v, _ := Attr(n, "value")
	return v
}

func optionValue(opt *html.Node) string {
	if v, ok := Attr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(TextContent(opt))
}

// SetValue sets n's value property.
func (d *Document) SetValue(n *html.Node, v string) {
	d.SetProp(n, "value", v)
}

// Checked returns the checked state of a checkbox or radio input.
func (d *Document) Checked(n *html.Node) bool {
	if v, ok := d.Prop(n, "checked"); ok {
		b, _ := v.(bool)
		return b
	}
	return HasAttr(n, "checked")
}

// SetChecked sets the checked property. Checking a radio unchecks the other
// radios of the same name in its form.
func (d *Document) SetChecked(n *html.Node, checked bool) {
	d.SetProp(n, "checked", checked)
	if !checked || InputType(n) != "radio" {
		return
	}
	name, _ := Attr(n, "name")
	scope := Closest(n, "form")
	if scope == nil {
		scope = d.root
	}
	Walk(scope, func(c *html.Node) bool {
		if c != n && InputType(c) == "radio" {
			if other, _ := Attr(c, "name"); other == name {
				d.SetProp(c, "checked", false)
			}
		}
		return true
	})
}

// FormValues collects the named, enabled controls under form.
func (d *Document) FormValues(form *html.Node) url.Values {
	values := url.Values{}
	Walk(form, func(c *html.Node) bool {
		if !IsFormControl(c) {
			return true
		}
		name, ok := Attr(c, "name")
		if !ok || name == "" || HasAttr(c, "disabled") {
			return false
		}
		if IsCheckable(c) {
			if d.Checked(c) {
				v, ok := Attr(c, "value")
				if !ok {
					v = "on"
				}
				values.Add(name, v)
			}
			return false
		}
		switch InputType(c) {
		case "submit", "button", "reset", "file", "image":
			return false
		}
		values.Add(name, d.Value(c))
		return false
	})
	return values
}
