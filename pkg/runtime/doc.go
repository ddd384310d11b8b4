// Package runtime assembles a live page.
//
// A Page owns one document and one signal store together with the binding
// registry, morph engine, lifecycle manager, action dispatcher and the loop
// that serializes all of them. Streams and actions run their I/O on their
// own goroutines and post back to the loop.
//
// Typical use:
//
//	page, err := runtime.Load(ctx, "http://localhost:8080/")
//	if err != nil {
//	    return err
//	}
//	defer page.Close()
//	if err := page.Start(); err != nil {
//	    log.Print(err) // bindings that failed are skipped
//	}
//	return page.Run(ctx)
package runtime
