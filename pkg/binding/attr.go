package binding

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Prefix starts every binding attribute.
const Prefix = "data-"

// Modifier is one __name.tag.tag segment.
type Modifier struct {
	Name string
	Tags []string
}

// HasTag reports whether tag is present.
func (m Modifier) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Duration returns the first tag that parses as a duration, or def.
func (m Modifier) Duration(def time.Duration) (time.Duration, error) {
	for i, t := range m.Tags {
		// "1.5s" arrives split into "1" and "5s"
		if i+1 < len(m.Tags) {
			if d, ok := parseDuration(t + "." + m.Tags[i+1]); ok {
				return d, nil
			}
		}
		if d, ok := parseDuration(t); ok {
			return d, nil
		}
	}
	if def < 0 {
		return 0, errors.New("E100").WithDetailf("__%s needs a duration", m.Name)
	}
	return def, nil
}

// Modifiers is the ordered modifier list of an attribute.
type Modifiers []Modifier

// Has reports whether a modifier is present.
func (ms Modifiers) Has(name string) bool {
	_, ok := ms.Get(name)
	return ok
}

// Get returns the named modifier.
func (ms Modifiers) Get(name string) (Modifier, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return Modifier{}, false
}

// Attribute is a parsed binding attribute name.
type Attribute struct {
	Name      string
	Plugin    string
	Key       string
	Modifiers Modifiers
}

// ParseAttribute splits an attribute name into plugin, key and modifiers.
// It reports false for attributes that are not data-* attributes.
func ParseAttribute(name string) (Attribute, bool, error) {
	if !strings.HasPrefix(name, Prefix) || len(name) == len(Prefix) {
		return Attribute{}, false, nil
	}
	a := Attribute{Name: name}

	parts := strings.Split(name[len(Prefix):], "__")
	head := parts[0]
	if i := strings.IndexByte(head, ':'); i >= 0 {
		a.Plugin, a.Key = head[:i], head[i+1:]
		if a.Key == "" {
			return a, true, errors.New("E100").WithDetailf("empty key in %q", name)
		}
	} else {
		a.Plugin = head
	}
	if a.Plugin == "" {
		return a, true, errors.New("E100").WithDetailf("empty plugin name in %q", name)
	}

	for _, p := range parts[1:] {
		tags := strings.Split(p, ".")
		if tags[0] == "" {
			return a, true, errors.New("E100").WithDetailf("empty modifier in %q", name)
		}
		for _, t := range tags[1:] {
			if t == "" {
				return a, true, errors.New("E100").WithDetailf("empty tag on __%s in %q", tags[0], name)
			}
		}
		a.Modifiers = append(a.Modifiers, Modifier{Name: tags[0], Tags: tags[1:]})
	}
	return a, true, nil
}

// parseDuration accepts Go durations ("300ms", "1.5s") and bare
// milliseconds ("300").
func parseDuration(s string) (time.Duration, bool) {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Millisecond, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// Case names a key conversion.
type Case string

const (
	CaseCamel  Case = "camel"
	CaseKebab  Case = "kebab"
	CaseSnake  Case = "snake"
	CasePascal Case = "pascal"
)

// KeyCase returns the conversion requested by a __case modifier, or def.
func (ms Modifiers) KeyCase(def Case) (Case, error) {
	m, ok := ms.Get("case")
	if !ok {
		return def, nil
	}
	if len(m.Tags) != 1 {
		return "", errors.New("E100").WithDetail("__case takes one of camel, kebab, snake, pascal")
	}
	switch c := Case(m.Tags[0]); c {
	case CaseCamel, CaseKebab, CaseSnake, CasePascal:
		return c, nil
	}
	return "", errors.New("E100").WithDetailf("unknown case %q", m.Tags[0])
}

// ConvertCase converts each dot segment of a kebab- or snake-style key.
func ConvertCase(key string, c Case) string {
	segs := strings.Split(key, ".")
	for i, seg := range segs {
		segs[i] = convertSegment(seg, c)
	}
	return strings.Join(segs, ".")
}

func convertSegment(seg string, c Case) string {
	var words []string
	for _, w := range strings.FieldsFunc(seg, func(r rune) bool { return r == '-' || r == '_' }) {
		words = append(words, strings.ToLower(w))
	}
	if len(words) == 0 {
		return seg
	}
	// keep a leading local prefix
	lead := ""
	if strings.HasPrefix(seg, "_") {
		lead = "_"
	}
	switch c {
	case CaseKebab:
		return lead + strings.Join(words, "-")
	case CaseSnake:
		return lead + strings.Join(words, "_")
	case CasePascal:
		for i, w := range words {
			words[i] = upperFirst(w)
		}
		return lead + strings.Join(words, "")
	default:
		for i := 1; i < len(words); i++ {
			words[i] = upperFirst(words[i])
		}
		return lead + strings.Join(words, "")
	}
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
