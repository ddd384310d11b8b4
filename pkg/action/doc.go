// Package action sends user intents to the server.
//
// An action is an HTTP request carrying a snapshot of the public signals.
// GET requests carry the snapshot in the "patchwire" query parameter; other
// methods send it as the body. The response is routed by content type:
// patch streams are followed by a stream.Consumer, HTML becomes an outer
// element patch, JSON a signal patch and JavaScript a script event.
//
// The dispatcher owns retry for the streams it opens. Every request ends
// its element's indicator exactly once, whatever the outcome.
package action
