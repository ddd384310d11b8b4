package signal

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/metrics"
)

const (
	// DefaultLocalPrefix marks local signal path segments.
	DefaultLocalPrefix = "_"

	// DefaultMaxCascadeDepth bounds nested writes from subscriptions.
	DefaultMaxCascadeDepth = 64
)

// Store holds the signals of one page.
type Store struct {
	root    map[string]any
	handles map[string]any

	subs   []*Subscription
	nextID uint64

	// tracking is the stack of running subscriptions; reads are recorded
	// against the top frame.
	tracking []*frame

	depth    int
	maxDepth int

	batchDepth int
	pending    []string

	patchObservers []*patchObserver
	nextObserver   int

	localPrefix string
	onError     func(*Subscription, error)
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type frame struct {
	sub   *Subscription
	reads map[string]struct{}
}

type patchObserver struct {
	id int
	fn func(map[string]any)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithMaxCascadeDepth sets the maximum nesting of writes made by
// subscriptions.
func WithMaxCascadeDepth(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithLocalPrefix sets the prefix that marks local path segments.
func WithLocalPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.localPrefix = prefix
		}
	}
}

// WithErrorHandler sets the function that receives errors returned by
// subscriptions re-run after a write. The default logs them.
func WithErrorHandler(fn func(*Subscription, error)) Option {
	return func(s *Store) {
		s.onError = fn
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		root:        make(map[string]any),
		handles:     make(map[string]any),
		maxDepth:    DefaultMaxCascadeDepth,
		localPrefix: DefaultLocalPrefix,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalPrefix returns the prefix marking local path segments.
func (s *Store) LocalPrefix() string {
	return s.localPrefix
}

// IsLocal reports whether path names a local signal.
func (s *Store) IsLocal(path string) bool {
	for _, seg := range Split(path) {
		if strings.HasPrefix(seg, s.localPrefix) {
			return true
		}
	}
	return false
}

// Get returns the value at path and records the read on the running
// subscription. Objects and arrays are returned as copies.
func (s *Store) Get(path string) any {
	s.track(path)
	return s.Peek(path)
}

// Peek returns the value at path without recording a read.
func (s *Store) Peek(path string) any {
	if h, ok := s.handles[path]; ok {
		return h
	}
	v, _ := lookup(s.root, Split(path))
	return clone(v)
}

// Has reports whether path is defined.
func (s *Store) Has(path string) bool {
	if _, ok := s.handles[path]; ok {
		return true
	}
	_, ok := lookup(s.root, Split(path))
	return ok
}

func (s *Store) track(path string) {
	if n := len(s.tracking); n > 0 {
		s.tracking[n-1].reads[path] = struct{}{}
	}
}

// Set writes value at path, creating intermediate objects, and re-runs the
// subscriptions that read an overlapping path. Writing an equal value is a
// no-op.
func (s *Store) Set(path string, value any) error {
	segs, err := validatePath(path)
	if err != nil {
		return err
	}
	if err := s.checkDepth(path); err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return errors.New("E081").WithDetailf("signal %q", path).Wrap(err)
	}

	_, hadHandle := s.handles[path]
	if !hadHandle {
		if old, ok := lookup(s.root, segs); ok && equal(old, v) {
			return nil
		}
	}
	delete(s.handles, path)
	assign(s.root, segs, v)
	s.metrics.SignalWrite()
	s.notify([]string{path})
	return nil
}

// SetHandle stores a non-serializable value (such as an element handle) at
// path. Handles are readable through Get but never serialized.
func (s *Store) SetHandle(path string, h any) error {
	segs, err := validatePath(path)
	if err != nil {
		return err
	}
	if err := s.checkDepth(path); err != nil {
		return err
	}
	if old, ok := s.handles[path]; ok && old == h {
		return nil
	}
	remove(s.root, segs)
	s.handles[path] = h
	s.notify([]string{path})
	return nil
}

// Remove deletes path and notifies its readers.
func (s *Store) Remove(path string) error {
	segs, err := validatePath(path)
	if err != nil {
		return err
	}
	_, hadHandle := s.handles[path]
	delete(s.handles, path)
	if !remove(s.root, segs) && !hadHandle {
		return nil
	}
	s.notify([]string{path})
	return nil
}

// Reset clears every signal, as on a full navigation. Subscriptions stay
// registered and are re-run.
func (s *Store) Reset() {
	paths := make([]string, 0, len(s.root)+len(s.handles))
	for k := range s.root {
		paths = append(paths, k)
	}
	for k := range s.handles {
		paths = append(paths, k)
	}
	s.root = make(map[string]any)
	s.handles = make(map[string]any)
	s.notify(paths)
}

func (s *Store) checkDepth(path string) error {
	if s.depth < s.maxDepth {
		return nil
	}
	s.metrics.CascadeRejected()
	return errors.New("E080").WithDetailf("write to %q at depth %d", path, s.depth)
}

// Batch runs fn and defers notifications until it returns, so each
// affected subscription runs at most once.
func (s *Store) Batch(fn func() error) error {
	s.batchDepth++
	err := fn()
	s.batchDepth--
	if s.batchDepth == 0 && len(s.pending) > 0 {
		paths := s.pending
		s.pending = nil
		s.notify(paths)
	}
	return err
}

// notify re-runs, in registration order, every subscription whose read-set
// overlaps one of paths.
func (s *Store) notify(paths []string) {
	if len(paths) == 0 {
		return
	}
	if s.batchDepth > 0 {
		s.pending = append(s.pending, paths...)
		return
	}

	var due []*Subscription
	for _, sub := range s.subs {
		if sub.affectedBy(paths) {
			due = append(due, sub)
		}
	}
	if len(due) == 0 {
		return
	}

	s.depth++
	defer func() { s.depth-- }()
	for _, sub := range due {
		if sub.disposed {
			continue
		}
		if err := sub.Run(); err != nil {
			s.reportError(sub, err)
		}
	}
}

func (s *Store) reportError(sub *Subscription, err error) {
	if s.onError != nil {
		s.onError(sub, err)
		return
	}
	s.logger.Error("signal subscription failed",
		"subscription", sub.id,
		"error", err)
}

// OnPatch registers fn to be called after every applied signal patch with
// the effective patch object. The returned function unregisters it.
func (s *Store) OnPatch(fn func(patch map[string]any)) (cancel func()) {
	s.nextObserver++
	o := &patchObserver{id: s.nextObserver, fn: fn}
	s.patchObservers = append(s.patchObservers, o)
	return func() {
		for i, e := range s.patchObservers {
			if e == o {
				s.patchObservers = append(s.patchObservers[:i:i], s.patchObservers[i+1:]...)
				return
			}
		}
	}
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	return len(s.subs)
}

// Paths returns the sorted leaf paths of the JSON tree, local ones
// included. Handles are not listed.
func (s *Store) Paths() []string {
	var out []string
	walkLeaves(s.root, "", func(path string, _ any) {
		out = append(out, path)
	})
	sort.Strings(out)
	return out
}

func walkLeaves(m map[string]any, prefix string, fn func(string, any)) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok && len(child) > 0 {
			walkLeaves(child, path, fn)
			continue
		}
		fn(path, v)
	}
}
