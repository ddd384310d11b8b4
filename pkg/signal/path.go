package signal

import (
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Split returns the segments of a dot path.
func Split(path string) []string {
	return strings.Split(path, ".")
}

// Join joins segments into a dot path.
func Join(segs ...string) string {
	return strings.Join(segs, ".")
}

func validatePath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("E081").WithDetail("empty signal path")
	}
	segs := Split(path)
	for _, s := range segs {
		if s == "" {
			return nil, errors.New("E081").WithDetailf("empty segment in signal path %q", path)
		}
	}
	return segs, nil
}

// overlaps reports whether a read of r is affected by a write of w:
// same path, or one is an ancestor of the other. The empty read path
// stands for the whole tree.
func overlaps(r, w string) bool {
	if r == w || r == "" {
		return true
	}
	if len(r) < len(w) {
		return strings.HasPrefix(w, r) && w[len(r)] == '.'
	}
	return strings.HasPrefix(r, w) && r[len(w)] == '.'
}

func lookup(root map[string]any, segs []string) (any, bool) {
	var cur any = root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign writes v at segs, replacing non-object intermediates.
func assign(root map[string]any, segs []string, v any) {
	m := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := m[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[s] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = v
}

func remove(root map[string]any, segs []string) bool {
	m := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := m[s].(map[string]any)
		if !ok {
			return false
		}
		m = next
	}
	last := segs[len(segs)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
