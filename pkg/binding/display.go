package binding

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/expr"
)

func pluginText(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		dom.SetTextContent(b.Element, expr.ToString(v))
		return nil
	})
}

func pluginShow(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		if expr.Truthy(v) {
			if dom.StyleProperty(b.Element, "display") == "none" {
				dom.SetStyleProperty(b.Element, "display", "")
			}
		} else {
			dom.SetStyleProperty(b.Element, "display", "none")
		}
		return nil
	})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pluginClass(b *Binding) (Teardown, error) {
	c, err := b.Modifiers.KeyCase(CaseKebab)
	if err != nil {
		return nil, err
	}
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		if b.Key != "" {
			dom.ToggleClass(b.Element, ConvertCase(b.Key, c), expr.Truthy(v))
			return nil
		}
		switch x := v.(type) {
		case map[string]any:
			for _, k := range sortedKeys(x) {
				for _, name := range strings.Fields(k) {
					dom.ToggleClass(b.Element, name, expr.Truthy(x[k]))
				}
			}
		case string:
			dom.SetAttr(b.Element, "class", x)
		}
		return nil
	})
}

func styleValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if !x {
			return ""
		}
	}
	return expr.ToString(v)
}

func pluginStyle(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		if b.Key != "" {
			dom.SetStyleProperty(b.Element, ConvertCase(b.Key, CaseKebab), styleValue(v))
			return nil
		}
		switch x := v.(type) {
		case map[string]any:
			for _, k := range sortedKeys(x) {
				dom.SetStyleProperty(b.Element, ConvertCase(k, CaseKebab), styleValue(x[k]))
			}
		case string:
			dom.SetAttr(b.Element, "style", x)
		}
		return nil
	})
}

func setAttrValue(b *Binding, name string, v any) {
	switch x := v.(type) {
	case nil:
		dom.RemoveAttr(b.Element, name)
	case bool:
		if x {
			dom.SetAttr(b.Element, name, "")
		} else {
			dom.RemoveAttr(b.Element, name)
		}
	default:
		dom.SetAttr(b.Element, name, expr.ToString(v))
	}
}

func pluginAttr(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		v, err := b.Evaluate(nil)
		if err != nil {
			return err
		}
		if b.Key != "" {
			setAttrValue(b, b.Key, v)
			return nil
		}
		m, ok := v.(map[string]any)
		if !ok {
			return errors.New("E101").WithDetailf("%s without a key must evaluate to an object", b.Attr)
		}
		for _, k := range sortedKeys(m) {
			setAttrValue(b, k, m[k])
		}
		return nil
	})
}

func pluginJSONSignals(b *Binding) (Teardown, error) {
	return b.Effect(func() error {
		snap := b.Host.Store.TrackedSnapshot()
		if b.Expr != nil {
			v, err := b.Evaluate(nil)
			if err != nil {
				return err
			}
			f, err := expr.FilterArg([]any{v})
			if err != nil {
				return err
			}
			data, err := b.Host.Store.Serialize(f)
			if err != nil {
				return err
			}
			snap = nil
			if err := json.Unmarshal(data, &snap); err != nil {
				return err
			}
		}
		var data []byte
		var err error
		if b.Modifiers.Has("terse") {
			data, err = json.Marshal(snap)
		} else {
			data, err = json.MarshalIndent(snap, "", "  ")
		}
		if err != nil {
			return err
		}
		dom.SetTextContent(b.Element, string(data))
		return nil
	})
}
