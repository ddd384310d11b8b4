package signal

import (
	"encoding/json"
	"regexp"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/vango-dev/patchwire/internal/errors"
)

// Patch is a structural merge of a JSON object into the store.
type Patch struct {
	// Signals is the JSON object to merge. A null value removes the path.
	Signals json.RawMessage

	// OnlyIfMissing drops every top-level key that is already defined.
	OnlyIfMissing bool
}

// ApplyPatch merges p into the store as one atomic step: objects merge
// recursively, any other value overwrites, null removes. Each subscription
// affected by the merge runs once after the whole patch is applied.
func (s *Store) ApplyPatch(p Patch) error {
	var obj map[string]any
	if err := json.Unmarshal(p.Signals, &obj); err != nil || obj == nil {
		e := errors.New("E042").WithDetail("signals must be a JSON object").WithSource(string(p.Signals))
		if err != nil {
			e = e.Wrap(err)
		}
		return e
	}
	return s.MergeObject(obj, p.OnlyIfMissing)
}

// MergeObject is ApplyPatch for an already decoded object.
func (s *Store) MergeObject(obj map[string]any, onlyIfMissing bool) error {
	if onlyIfMissing {
		missing := make(map[string]any, len(obj))
		for k, v := range obj {
			if !s.Has(k) {
				missing[k] = v
			}
		}
		obj = missing
	}
	if len(obj) == 0 {
		return nil
	}
	if err := s.checkDepth("*"); err != nil {
		return err
	}

	norm, err := normalize(obj)
	if err != nil {
		return errors.New("E042").Wrap(err)
	}
	obj = norm.(map[string]any)

	doc, err := json.Marshal(s.root)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return errors.New("E042").Wrap(err)
	}
	var next map[string]any
	if err := json.Unmarshal(merged, &next); err != nil {
		return errors.New("E042").Wrap(err)
	}
	if next == nil {
		next = make(map[string]any)
	}

	var changed []string
	diffPatch(s.root, next, obj, "", &changed)
	for _, path := range changed {
		delete(s.handles, path)
	}

	s.root = next
	s.metrics.SignalPatch()
	for _, o := range append([]*patchObserver(nil), s.patchObservers...) {
		o.fn(clone(obj).(map[string]any))
	}
	s.notify(changed)
	return nil
}

// diffPatch collects the paths touched by patch whose value differs between
// before and after.
func diffPatch(before, after, patch map[string]any, prefix string, out *[]string) {
	for k, pv := range patch {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		b, hadB := before[k]
		a, hasA := after[k]
		if pm, ok := pv.(map[string]any); ok {
			bm, bok := b.(map[string]any)
			am, aok := a.(map[string]any)
			if bok && aok {
				diffPatch(bm, am, pm, path, out)
				continue
			}
		}
		if hadB != hasA || !equal(b, a) {
			*out = append(*out, path)
		}
	}
}

// Filter narrows serialized signals by leaf path. A nil pattern matches
// everything for Include and nothing for Exclude.
type Filter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

// CompileFilter compiles include and exclude patterns; empty strings are
// treated as unset.
func CompileFilter(include, exclude string) (Filter, error) {
	var f Filter
	var err error
	if include != "" {
		if f.Include, err = regexp.Compile(include); err != nil {
			return f, errors.New("E103").WithDetailf("include pattern %q", include).Wrap(err)
		}
	}
	if exclude != "" {
		if f.Exclude, err = regexp.Compile(exclude); err != nil {
			return f, errors.New("E103").WithDetailf("exclude pattern %q", exclude).Wrap(err)
		}
	}
	return f, nil
}

// Match reports whether the filter keeps path.
func (f Filter) Match(path string) bool {
	if f.Include != nil && !f.Include.MatchString(path) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(path) {
		return false
	}
	return true
}

// Serialize returns the JSON object of public signals kept by f.
func (s *Store) Serialize(f Filter) ([]byte, error) {
	return json.Marshal(s.filtered(f))
}

// Snapshot returns a copy of every public signal.
func (s *Store) Snapshot() map[string]any {
	return s.filtered(Filter{})
}

// TrackedSnapshot is Snapshot that also subscribes the running
// subscription to every signal.
func (s *Store) TrackedSnapshot() map[string]any {
	s.track("")
	return s.Snapshot()
}

// Local returns a copy of the full tree, local signals included. Handles
// are not part of it.
func (s *Store) Local() map[string]any {
	return clone(s.root).(map[string]any)
}

func (s *Store) filtered(f Filter) map[string]any {
	out := make(map[string]any)
	walkLeaves(s.root, "", func(path string, v any) {
		if s.IsLocal(path) || !f.Match(path) {
			return
		}
		assign(out, Split(path), clone(v))
	})
	return out
}
