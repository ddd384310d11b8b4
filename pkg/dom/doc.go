// Package dom is the live document model the runtime reconciles into.
//
// Nodes are golang.org/x/net/html nodes; a node's identity is its pointer,
// so code that keeps a *html.Node keeps the same element across morphs.
// The Document adds what a browser keeps next to the markup: DOM properties
// (an input's live value, arbitrary marker properties), event listeners with
// capture/bubble dispatch, window-scoped listeners and focus.
//
// Selectors are CSS selectors compiled with cascadia.
package dom
