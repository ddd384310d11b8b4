// Package morph applies element patches to a live document.
//
// Outer and inner patches reconcile in place: matched nodes keep their
// identity (and with it their properties, listeners and bindings) while
// attributes and text are brought in line with the new markup. Children
// are matched by id first, then by tag at the current position.
//
// Markers honoured on existing elements:
//
//	data-ignore-morph     the subtree is kept verbatim
//	data-preserve-attr    space or comma separated attribute names to keep
//
// Structural changes are reported to an Observer, the headless stand-in
// for a mutation observer.
package morph
