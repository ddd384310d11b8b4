package signal

import (
	"sort"
)

// Subscription is a tracked computation. Its read-set is replaced every
// time it runs.
type Subscription struct {
	id       uint64
	store    *Store
	fn       func() error
	reads    map[string]struct{}
	disposed bool
}

// Subscribe registers fn without running it. Call Run to evaluate it and
// collect its read-set.
func (s *Store) Subscribe(fn func() error) *Subscription {
	s.nextID++
	sub := &Subscription{
		id:    s.nextID,
		store: s,
		fn:    fn,
		reads: map[string]struct{}{},
	}
	s.subs = append(s.subs, sub)
	s.metrics.SubscriptionAdded()
	return sub
}

// Effect registers fn and runs it once. The error of that first run is
// returned; errors of later runs go to the store's error handler.
func (s *Store) Effect(fn func() error) (*Subscription, error) {
	sub := s.Subscribe(fn)
	return sub, sub.Run()
}

// ID returns the registration id.
func (sub *Subscription) ID() uint64 {
	return sub.id
}

// Run evaluates the subscription, replacing its read-set.
func (sub *Subscription) Run() error {
	if sub.disposed {
		return nil
	}
	s := sub.store
	f := &frame{sub: sub, reads: map[string]struct{}{}}
	s.tracking = append(s.tracking, f)
	defer func() {
		s.tracking = s.tracking[:len(s.tracking)-1]
		if !sub.disposed {
			sub.reads = f.reads
		}
	}()
	return sub.fn()
}

// Reads returns the sorted read-set of the last run.
func (sub *Subscription) Reads() []string {
	out := make([]string, 0, len(sub.reads))
	for p := range sub.reads {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Disposed reports whether Dispose was called.
func (sub *Subscription) Disposed() bool {
	return sub.disposed
}

// Dispose unregisters the subscription. It is safe to call more than once.
func (sub *Subscription) Dispose() {
	if sub.disposed {
		return
	}
	sub.disposed = true
	sub.reads = nil
	s := sub.store
	for i, e := range s.subs {
		if e == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			break
		}
	}
	s.metrics.SubscriptionRemoved()
}

func (sub *Subscription) affectedBy(paths []string) bool {
	for r := range sub.reads {
		for _, w := range paths {
			if overlaps(r, w) {
				return true
			}
		}
	}
	return false
}
