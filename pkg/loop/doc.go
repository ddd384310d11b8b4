// Package loop provides the cooperative event loop the runtime runs on.
//
// All DOM mutation, signal writes and expression evaluation happen on a
// single goroutine that drains a FIFO of tasks. Goroutines doing I/O
// (stream readers, HTTP requests) never touch shared state directly; they
// Post closures onto the loop. Timers fire by posting their callback, so a
// timer callback never interleaves with another task.
//
//	l := loop.New(loop.WithLogger(logger))
//	go l.Run(ctx)
//	l.Post(func() { store.Set("count", 1) })
//
// Tests drive the loop by hand with a fake clock:
//
//	clock := loop.NewFakeClock(time.Unix(0, 0))
//	l := loop.New(loop.WithClock(clock))
//	l.AfterFunc(300*time.Millisecond, fire)
//	clock.Advance(300 * time.Millisecond)
//	l.Drain() // runs fire
package loop
