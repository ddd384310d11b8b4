// Package binding attaches declarative data-* attributes to live elements.
//
// Attribute grammar:
//
//	data-<plugin>[:<key>][__<modifier>[.<tag>]...]="<expression>"
//
// The plugin name must match a registered plugin exactly; other data-*
// attributes are ignored. Modifiers are order-independent and carry
// dot-delimited tags, for example data-on:input__debounce.300ms.leading.
//
// Each plugin is a Factory that receives the parsed Binding and returns a
// Teardown. Timers started by a binding run on the page loop and are
// cancelled by its teardown.
package binding
