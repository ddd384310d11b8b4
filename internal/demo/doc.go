// Package demo is a small server that speaks the patch protocol. It backs
// the demo command and the end-to-end tests of the runtime.
//
// Routes:
//
//	GET  /            counter page with bindings
//	POST /increment   stream: count signal and a log entry
//	POST /reset       JSON signal patch
//	GET  /greet       HTML fragment built from the name signal
//	GET  /clock       stream of clock ticks, ?n= bounds the count
//	GET  /ws          the clock over a websocket
//	GET  /script      JavaScript response run by the page
//	POST /flaky       fails until ?ok= attempts have been made
package demo
