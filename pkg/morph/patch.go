package morph

import (
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Mode says how a patch's elements relate to its target.
type Mode string

const (
	ModeOuter   Mode = "outer"
	ModeInner   Mode = "inner"
	ModeReplace Mode = "replace"
	ModePrepend Mode = "prepend"
	ModeAppend  Mode = "append"
	ModeBefore  Mode = "before"
	ModeAfter   Mode = "after"
	ModeRemove  Mode = "remove"
)

// Modes lists every mode.
var Modes = []Mode{ModeOuter, ModeInner, ModeReplace, ModePrepend, ModeAppend, ModeBefore, ModeAfter, ModeRemove}

// ParseMode parses a wire mode name. The empty string is outer;
// "hard-replace" is an alias of replace.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return ModeOuter, nil
	case "hard-replace":
		return ModeReplace, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.New("E042").WithDetailf("unknown patch mode %q", s)
}

// Patch is an element patch.
type Patch struct {
	// Selector picks the targets; when empty each fragment root is matched
	// to the existing element with the same id.
	Selector string

	// Scope, when set, restricts id matching to descendants of the
	// elements it selects.
	Scope string

	Mode Mode

	// Elements is the HTML fragment. Unused by remove.
	Elements string

	// UseViewTransition is carried for producers; a headless document has
	// nothing to animate.
	UseViewTransition bool
}

const (
	ignoreMorphAttr  = "data-ignore-morph"
	preserveAttrAttr = "data-preserve-attr"
)
