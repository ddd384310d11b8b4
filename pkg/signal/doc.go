// Package signal implements the reactive signal store of a page.
//
// Signals live in a single JSON tree addressed by dot paths ("user.email").
// Reads made while a Subscription runs are recorded as its read-set; a write
// re-runs every subscription whose read-set overlaps the written path, in the
// order the subscriptions were registered.
//
// # Visibility
//
// A path with any segment starting with the local prefix (default "_") is
// local: it is readable and writable like any other signal but is never
// included in Serialize or Snapshot.
//
// # Cascades
//
// Subscriptions may write signals while they run. Writes nested deeper than
// the store's cascade depth are rejected with a ReactiveCycleError
// (errors.KindReactiveCycle); earlier writes of the cascade stand.
//
// A Store is not safe for concurrent use. It belongs to the goroutine that
// runs the page's loop.
package signal
